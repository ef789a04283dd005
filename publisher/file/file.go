// Package file publishes outbound events to files on local disk.
//
// Each route names a file below the configured directory, so a route template
// such as "{tenant}/{hardwareId}" keeps one file per device. Writes are
// buffered and flushed when the buffer fills, on a timer, and on close.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xfyecn/sitewhere-master-sub001/errors"
	"github.com/xfyecn/sitewhere-master-sub001/publisher"
)

// Config configures the output files.
type Config struct {
	Directory string `json:"directory" yaml:"directory"`
	// Format is "jsonl" (one payload per line), "json" (indented) or "raw".
	// It is also the file extension.
	Format string `json:"format" yaml:"format"`
	// Truncate empties each file the first time it is written after connect.
	Truncate      bool          `json:"truncate" yaml:"truncate"`
	BufferSize    int           `json:"buffer_size" yaml:"buffer_size"`
	FlushInterval time.Duration `json:"flush_interval" yaml:"flush_interval"`
}

// Validate checks the configuration for errors.
func (c Config) Validate() error {
	if c.Directory == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "file-publisher", "Validate", "directory")
	}
	switch c.Format {
	case "", "jsonl", "json", "raw":
	default:
		return errors.WrapInvalid(fmt.Errorf("%w: format %q, want jsonl, json or raw", errors.ErrInvalidConfig, c.Format),
			"file-publisher", "Validate", "format")
	}
	if c.BufferSize < 0 {
		return errors.WrapInvalid(fmt.Errorf("%w: buffer_size cannot be negative", errors.ErrInvalidConfig),
			"file-publisher", "Validate", "buffer size")
	}
	return nil
}

// Transport appends each message to the file its route names.
type Transport struct {
	cfg    Config
	logger *slog.Logger

	bufMu   sync.Mutex
	pending []publisher.Message

	fileMu sync.Mutex
	files  map[string]*os.File

	shutdown chan struct{}
	wg       sync.WaitGroup

	messagesWritten atomic.Int64
	bytesWritten    atomic.Int64
	errorCount      atomic.Int64
}

var _ publisher.Transport = (*Transport)(nil)

// New creates a file transport. A nil logger uses slog.Default.
func New(cfg Config, logger *slog.Logger) *Transport {
	if cfg.Format == "" {
		cfg.Format = "jsonl"
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{cfg: cfg, logger: logger}
}

func (t *Transport) Connect(context.Context) error {
	if err := t.cfg.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(t.cfg.Directory, 0o755); err != nil {
		return errors.WrapFatal(err, "file-publisher", "Connect", "create output directory")
	}

	t.fileMu.Lock()
	t.files = make(map[string]*os.File)
	t.fileMu.Unlock()

	t.shutdown = make(chan struct{})
	t.wg.Add(1)
	go t.flushLoop(t.shutdown)

	t.logger.Info("File publisher started",
		"directory", t.cfg.Directory,
		"format", t.cfg.Format,
		"truncate", t.cfg.Truncate,
		"buffer_size", t.cfg.BufferSize)
	return nil
}

// Publish buffers msg. It flushes, and reports write failures, when the
// buffer is full.
func (t *Transport) Publish(_ context.Context, msg publisher.Message) error {
	if _, err := t.path(msg.Route); err != nil {
		return err
	}

	t.bufMu.Lock()
	t.pending = append(t.pending, msg)
	full := len(t.pending) >= t.cfg.BufferSize
	t.bufMu.Unlock()

	if full {
		return t.flush()
	}
	return nil
}

func (t *Transport) Close(context.Context) error {
	if t.shutdown != nil {
		close(t.shutdown)
		t.wg.Wait()
		t.shutdown = nil
	}
	err := t.flush()

	t.fileMu.Lock()
	defer t.fileMu.Unlock()
	for path, f := range t.files {
		if cerr := f.Close(); cerr != nil {
			t.logger.Warn("Failed to close output file", "path", path, "error", cerr)
		}
	}
	t.files = nil
	return err
}

// Stats returns the number of messages and bytes written and failed writes.
func (t *Transport) Stats() (messages, bytes, failures int64) {
	return t.messagesWritten.Load(), t.bytesWritten.Load(), t.errorCount.Load()
}

func (t *Transport) flushLoop(shutdown <-chan struct{}) {
	defer t.wg.Done()

	ticker := time.NewTicker(t.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-shutdown:
			return
		case <-ticker.C:
			if err := t.flush(); err != nil {
				t.logger.Error("Periodic flush failed", "error", err)
			}
		}
	}
}

// path maps a route to a file below the output directory. Routes that would
// leave the directory are rejected.
func (t *Transport) path(route string) (string, error) {
	if route == "" {
		route = "events"
	}
	rel := filepath.FromSlash(route) + "." + t.cfg.Format
	if !filepath.IsLocal(rel) {
		return "", errors.WrapInvalid(fmt.Errorf("%w: route %q escapes the output directory", errors.ErrInvalidData, route),
			"file-publisher", "Publish", "route mapping")
	}
	return filepath.Join(t.cfg.Directory, rel), nil
}

func (t *Transport) flush() error {
	t.bufMu.Lock()
	messages := t.pending
	t.pending = nil
	t.bufMu.Unlock()
	if len(messages) == 0 {
		return nil
	}

	t.fileMu.Lock()
	defer t.fileMu.Unlock()

	var firstErr error
	for _, msg := range messages {
		n, err := t.write(msg)
		if err != nil {
			t.errorCount.Add(1)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		t.messagesWritten.Add(1)
		t.bytesWritten.Add(int64(n))
	}
	return firstErr
}

// write runs with fileMu held.
func (t *Transport) write(msg publisher.Message) (int, error) {
	if t.files == nil {
		return 0, errors.ErrNotStarted
	}
	path, err := t.path(msg.Route)
	if err != nil {
		return 0, err
	}

	f, ok := t.files[path]
	if !ok {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return 0, errors.WrapTransient(err, "file-publisher", "write", "create route directory")
		}
		flags := os.O_CREATE | os.O_WRONLY | os.O_APPEND
		if t.cfg.Truncate {
			flags |= os.O_TRUNC
		}
		f, err = os.OpenFile(path, flags, 0o644)
		if err != nil {
			return 0, errors.WrapTransient(err, "file-publisher", "write", "open output file")
		}
		t.files[path] = f
	}

	n, err := f.Write(t.format(msg.Payload))
	if err != nil {
		return n, errors.WrapTransient(err, "file-publisher", "write", path)
	}
	return n, nil
}

func (t *Transport) format(payload []byte) []byte {
	switch t.cfg.Format {
	case "raw":
		return payload
	case "json":
		var obj any
		if err := json.Unmarshal(payload, &obj); err == nil {
			if indented, err := json.MarshalIndent(obj, "", "  "); err == nil {
				return append(indented, '\n')
			}
		}
	}
	return append(append([]byte(nil), payload...), '\n')
}
