// Package source ties receivers to a decoder and the inbound processor chain.
package source

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/xfyecn/sitewhere-master-sub001/component"
	"github.com/xfyecn/sitewhere-master-sub001/decoder"
	"github.com/xfyecn/sitewhere-master-sub001/errors"
	"github.com/xfyecn/sitewhere-master-sub001/event"
	"github.com/xfyecn/sitewhere-master-sub001/processor/inbound"
	"github.com/xfyecn/sitewhere-master-sub001/receiver"
)

// ErrPaused is returned for payloads that reach a paused event source.
var ErrPaused = fmt.Errorf("event source paused: %w", errors.ErrNotStarted)

// EventSource owns one decoder and any number of receivers. Every payload a
// receiver gets is decoded and each resulting request is dispatched to the
// inbound chain, on the receiver's goroutine.
type EventSource[T any] struct {
	*component.Lifecycle
	component.TenantScope

	id        string
	decoder   decoder.Decoder[T]
	receivers []receiver.Receiver[T]
	inbound   inbound.Dispatcher

	paused atomic.Bool
}

var _ receiver.Sink[[]byte] = (*EventSource[[]byte])(nil)

// New creates an event source. id names the source in logs and metrics.
func New[T any](deps component.Dependencies, id string, dec decoder.Decoder[T], in inbound.Dispatcher, receivers ...receiver.Receiver[T]) *EventSource[T] {
	s := &EventSource[T]{
		id:        id,
		decoder:   dec,
		receivers: receivers,
		inbound:   in,
	}
	s.Lifecycle = component.NewLifecycle(s, component.TypeEventSource, "event-source-"+id, deps.LifecycleOptions()...)
	return s
}

// Start starts the decoder, then every receiver. Receivers are started last so
// no payload arrives before the decoder is ready.
func (s *EventSource[T]) Start(ctx context.Context, monitor component.Monitor) error {
	if s.decoder == nil {
		return errors.WrapInvalid(errors.ErrMissingConfig, s.Name(), "Start", "decoder lookup")
	}
	if s.inbound == nil {
		return errors.WrapInvalid(errors.ErrMissingConfig, s.Name(), "Start", "inbound chain lookup")
	}
	if len(s.receivers) == 0 {
		return errors.WrapInvalid(errors.ErrMissingConfig, s.Name(), "Start", "receiver lookup")
	}

	if err := s.StartNested(ctx, s.decoder, monitor, "Starting event decoder", true); err != nil {
		return err
	}
	for i, r := range s.receivers {
		r.SetSink(s)
		msg := fmt.Sprintf("Starting receiver %d (%s)", i, r.Name())
		if err := s.StartNested(ctx, r, monitor, msg, true); err != nil {
			return err
		}
	}
	return nil
}

// Pause pauses every receiver, then refuses whatever is still delivered.
// Receivers that can hold their input (queues) stop taking; the others keep
// their sockets and have payloads rejected until Resume.
func (s *EventSource[T]) Pause(ctx context.Context, monitor component.Monitor) error {
	for i := len(s.receivers) - 1; i >= 0; i-- {
		s.PauseNested(ctx, s.receivers[i], monitor)
	}
	s.paused.Store(true)
	return nil
}

// Resume accepts payloads again and resumes the receivers.
func (s *EventSource[T]) Resume(ctx context.Context, monitor component.Monitor) error {
	s.paused.Store(false)
	for i, r := range s.receivers {
		msg := fmt.Sprintf("Resuming receiver %d (%s)", i, r.Name())
		if err := s.ResumeNested(ctx, r, monitor, msg, true); err != nil {
			return err
		}
	}
	return nil
}

// Stop stops receivers first and the decoder last.
func (s *EventSource[T]) Stop(ctx context.Context, monitor component.Monitor) error {
	s.paused.Store(false)
	for _, r := range s.receivers {
		s.StopNested(ctx, r, monitor)
	}
	if s.decoder != nil {
		s.StopNested(ctx, s.decoder, monitor)
	}
	return nil
}

// OnEncodedEventReceived decodes a payload and dispatches the resulting
// requests. A decode failure is counted and returned; the payload is dropped.
func (s *EventSource[T]) OnEncodedEventReceived(ctx context.Context, receiverName string, payload T, metadata map[string]any) error {
	if s.paused.Load() {
		return errors.WrapTransient(ErrPaused, s.Name(), "OnEncodedEventReceived", "receiver "+receiverName)
	}
	tenant := component.TenantID(s)
	m := s.Metrics()
	m.RecordPayload(tenant, s.id)

	if metadata == nil {
		metadata = make(map[string]any, 1)
	}
	if _, ok := metadata[decoder.MetaReceiver]; !ok {
		metadata[decoder.MetaReceiver] = receiverName
	}

	started := time.Now()
	requests, err := s.decode(ctx, payload, metadata)
	m.RecordDecode(tenant, s.id, time.Since(started), err)
	if err != nil {
		s.Logger().Warn("Payload could not be decoded", "receiver", receiverName, "error", err)
		return err
	}

	for _, req := range requests {
		if req == nil {
			continue
		}
		m.RecordRequest(tenant, string(req.Kind()))
		if err := s.inbound.Dispatch(ctx, req); err != nil {
			s.Logger().Error("Decoded request not dispatched",
				"hardware_id", req.HardwareID, "kind", req.Kind(), "error", err)
		}
	}
	return nil
}

func (s *EventSource[T]) decode(ctx context.Context, payload T, metadata map[string]any) (reqs []*event.DecodedRequest, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.WrapDecode(fmt.Errorf("decoder panicked: %v", r), s.Name(), "decode", "payload decode")
		}
	}()
	reqs, err = s.decoder.Decode(ctx, payload, metadata)
	if err != nil && !errors.IsDecode(err) {
		err = errors.WrapDecode(err, s.Name(), "decode", "payload decode")
	}
	return reqs, err
}
