package inbound

import (
	"context"

	"github.com/xfyecn/sitewhere-master-sub001/component"
	"github.com/xfyecn/sitewhere-master-sub001/device"
	"github.com/xfyecn/sitewhere-master-sub001/errors"
	"github.com/xfyecn/sitewhere-master-sub001/event"
	"github.com/xfyecn/sitewhere-master-sub001/store"
)

// ChunkSender delivers a stored stream chunk back to a device.
type ChunkSender interface {
	SendStreamData(ctx context.Context, hardwareID, streamID string, seq int64, data []byte) error
}

// StreamProcessor handles device streams: creating them, appending chunks and
// sending chunks back to the device on request.
type StreamProcessor struct {
	*component.Lifecycle
	component.TenantScope
	Base

	resolver device.Resolver
	streams  store.StreamStore
	sender   ChunkSender
}

var _ Processor = (*StreamProcessor)(nil)

// NewStreamProcessor creates a stream processor. Without a sender, send
// requests fail.
func NewStreamProcessor(deps component.Dependencies, resolver device.Resolver, streams store.StreamStore, sender ChunkSender) *StreamProcessor {
	p := &StreamProcessor{resolver: resolver, streams: streams, sender: sender}
	p.Lifecycle = component.NewLifecycle(p, component.TypeInboundProcessor, "stream-processor", deps.LifecycleOptions()...)
	return p
}

func (p *StreamProcessor) Start(context.Context, component.Monitor) error {
	if p.resolver == nil || p.streams == nil {
		return errors.WrapInvalid(errors.ErrMissingConfig, "stream-processor", "Start", "stream store lookup")
	}
	return nil
}

func (p *StreamProcessor) assignment(ctx context.Context, hardwareID string) (string, error) {
	d, err := p.resolver.GetDevice(ctx, hardwareID)
	if err != nil {
		return "", errors.Wrap(err, "stream-processor", "assignment", "device lookup")
	}
	return d.AssignmentToken, nil
}

func (p *StreamProcessor) OnStreamCreateRequest(ctx context.Context, hardwareID, _ string, req *event.StreamCreateRequest) error {
	token, err := p.assignment(ctx, hardwareID)
	if err != nil {
		return err
	}
	err = p.streams.CreateStream(ctx, &store.Stream{
		AssignmentToken: token,
		StreamID:        req.StreamID,
		ContentType:     req.ContentType,
	})
	if err != nil {
		return errors.Wrap(err, "stream-processor", "OnStreamCreateRequest", "stream create")
	}
	p.Logger().Info("Device stream created", "hardware_id", hardwareID, "stream", req.StreamID)
	return nil
}

func (p *StreamProcessor) OnStreamDataCreateRequest(ctx context.Context, hardwareID, _ string, req *event.StreamDataRequest) error {
	token, err := p.assignment(ctx, hardwareID)
	if err != nil {
		return err
	}
	if err := p.streams.AppendChunk(ctx, token, req.StreamID, req.SequenceNumber, req.Data); err != nil {
		return errors.Wrap(err, "stream-processor", "OnStreamDataCreateRequest", "chunk append")
	}
	return nil
}

func (p *StreamProcessor) OnSendStreamDataRequest(ctx context.Context, hardwareID, _ string, req *event.SendStreamDataRequest) error {
	if p.sender == nil {
		return errors.WrapInvalid(errors.ErrMissingConfig, "stream-processor", "OnSendStreamDataRequest", "chunk sender lookup")
	}
	token, err := p.assignment(ctx, hardwareID)
	if err != nil {
		return err
	}
	data, err := p.streams.GetChunk(ctx, token, req.StreamID, req.SequenceNumber)
	if err != nil {
		return errors.Wrap(err, "stream-processor", "OnSendStreamDataRequest", "chunk lookup")
	}
	if err := p.sender.SendStreamData(ctx, hardwareID, req.StreamID, req.SequenceNumber, data); err != nil {
		return errors.Wrap(err, "stream-processor", "OnSendStreamDataRequest", "chunk delivery")
	}
	return nil
}
