package events

import (
	"context"
	"encoding/json"
	"fmt"
)

// Publisher puts one event on the event bus.
type Publisher interface {
	Publish(ctx context.Context, source, detailType string, detail []byte) error
	Close() error
}

// Route is the fixed (source, detailType) pair of an adapter family.
type Route struct {
	Source     string
	DetailType string
}

var (
	ImageRoute  = Route{Source: "hotspace.image-processing", DetailType: "ImageProcessedStatus"}
	OfficeRoute = Route{Source: "hotspace.libre-processor", DetailType: "LibreProcessorStatus"}
	MarkupRoute = Route{Source: "hotspace.pandoc-processor", DetailType: "PandocProcessorStatus"}
	SharpRoute  = Route{Source: "hotspace.sharp-processor", DetailType: "SharpProcessorStatus"}

	// VideoRoute carries relayed MediaConvert job state changes. EventBridge
	// reserves the "aws." source prefix, so relays go out under our own source.
	VideoRoute = Route{Source: "hotspace.video-processor", DetailType: "MediaConvert Job State Change"}
)

// Recorder observes published events, e.g. for metrics.
type Recorder interface {
	IncEventsPublished(source, status string)
}

// Emitter publishes status events for one adapter family. Publish errors are
// returned as-is; the emitter never retries.
type Emitter struct {
	publisher Publisher
	route     Route
	recorder  Recorder
}

func NewEmitter(publisher Publisher, route Route, recorder Recorder) *Emitter {
	return &Emitter{publisher: publisher, route: route, recorder: recorder}
}

func (e *Emitter) Route() Route { return e.route }

// Emit publishes a result detail.
func (e *Emitter) Emit(ctx context.Context, detail Detail) error {
	raw, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("marshal %s detail: %w", e.route.DetailType, err)
	}
	return e.EmitRaw(ctx, string(detail.Status), raw)
}

// EmitRaw publishes an already-encoded detail unchanged.
func (e *Emitter) EmitRaw(ctx context.Context, status string, raw []byte) error {
	if err := e.publisher.Publish(ctx, e.route.Source, e.route.DetailType, raw); err != nil {
		return fmt.Errorf("publish %s: %w", e.route.DetailType, err)
	}
	if e.recorder != nil {
		e.recorder.IncEventsPublished(e.route.Source, status)
	}
	return nil
}
