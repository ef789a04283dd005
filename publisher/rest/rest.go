// Package rest publishes outbound events with HTTP POST requests.
package rest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/xfyecn/sitewhere-master-sub001/errors"
	"github.com/xfyecn/sitewhere-master-sub001/pkg/tlsutil"
	"github.com/xfyecn/sitewhere-master-sub001/publisher"
)

// Config configures the HTTP endpoint. Routes are joined onto BaseURL.
type Config struct {
	BaseURL     string            `json:"base_url" yaml:"base_url"`
	Headers     map[string]string `json:"headers" yaml:"headers"`
	ContentType string            `json:"content_type" yaml:"content_type"`
	Timeout     time.Duration     `json:"timeout" yaml:"timeout"`
	// ProbePath, when set, is fetched on connect. Any response below 500
	// counts as reachable.
	ProbePath string `json:"probe_path" yaml:"probe_path"`
	// TLS applies only to the client New creates.
	TLS tlsutil.ClientConfig `json:"tls" yaml:"tls"`
}

// Transport posts each payload to BaseURL joined with the message route.
type Transport struct {
	cfg       Config
	base      *url.URL
	client    *http.Client
	ownClient bool
}

var _ publisher.Transport = (*Transport)(nil)

// New creates a REST transport. A nil client gets one with cfg.Timeout.
func New(cfg Config, client *http.Client) *Transport {
	if cfg.ContentType == "" {
		cfg.ContentType = "application/json"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	t := &Transport{cfg: cfg, client: client}
	if client == nil {
		t.client = &http.Client{Timeout: cfg.Timeout}
		t.ownClient = true
	}
	return t
}

func (t *Transport) Connect(ctx context.Context) error {
	if t.cfg.BaseURL == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "rest-publisher", "Connect", "base url")
	}
	base, err := url.Parse(t.cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return errors.WrapInvalid(fmt.Errorf("%w: base url %q", errors.ErrInvalidConfig, t.cfg.BaseURL),
			"rest-publisher", "Connect", "parse base url")
	}
	t.base = base

	if t.ownClient {
		tlsConfig, err := tlsutil.LoadClientConfig(t.cfg.TLS)
		if err != nil {
			return err
		}
		if tlsConfig != nil {
			transport := http.DefaultTransport.(*http.Transport).Clone()
			transport.TLSClientConfig = tlsConfig
			t.client.Transport = transport
		}
	}

	if t.cfg.ProbePath == "" {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base.JoinPath(t.cfg.ProbePath).String(), nil)
	if err != nil {
		return err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return errors.WrapTransient(err, "rest-publisher", "Connect", "probe endpoint")
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 500 {
		return errors.WrapTransient(fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status),
			"rest-publisher", "Connect", "probe endpoint")
	}
	return nil
}

func (t *Transport) Publish(ctx context.Context, msg publisher.Message) error {
	if t.base == nil {
		return errors.ErrNotStarted
	}
	target := t.base.JoinPath(strings.Split(msg.Route, "/")...).String()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(msg.Payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", t.cfg.ContentType)
	for key, value := range t.cfg.Headers {
		req.Header.Set(key, value)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// drain so the connection is reused
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}
	return nil
}

func (t *Transport) Close(context.Context) error {
	t.client.CloseIdleConnections()
	return nil
}
