package events

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	kgo "github.com/segmentio/kafka-go"
)

type published struct {
	source, detailType string
	detail             []byte
}

type fakePublisher struct {
	events []published
	err    error
}

func (f *fakePublisher) Publish(_ context.Context, source, detailType string, detail []byte) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, published{source, detailType, detail})
	return nil
}

func (f *fakePublisher) Close() error { return nil }

type countingRecorder struct{ n map[string]int }

func (c *countingRecorder) IncEventsPublished(source, status string) {
	if c.n == nil {
		c.n = map[string]int{}
	}
	c.n[source+"/"+status]++
}

func TestEmitterPublishesDetail(t *testing.T) {
	pub := &fakePublisher{}
	rec := &countingRecorder{}
	em := NewEmitter(pub, ImageRoute, rec)

	err := em.Emit(context.Background(), Detail{
		InodeID:         "i1",
		ObjectKey:       "k1",
		CallbackContext: json.RawMessage(`{"appUrl":"https://a"}`),
		Status:          StatusComplete,
		Width:           2000,
		Height:          1000,
	})
	if err != nil {
		t.Fatalf("emit: %v", err)
	}
	if len(pub.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(pub.events))
	}
	ev := pub.events[0]
	if ev.source != "hotspace.image-processing" || ev.detailType != "ImageProcessedStatus" {
		t.Fatalf("unexpected route %s/%s", ev.source, ev.detailType)
	}
	var got map[string]any
	if err := json.Unmarshal(ev.detail, &got); err != nil {
		t.Fatalf("unmarshal detail: %v", err)
	}
	if got["status"] != "COMPLETE" || got["width"].(float64) != 2000 {
		t.Fatalf("unexpected detail %v", got)
	}
	if _, ok := got["errorMsg"]; ok {
		t.Fatalf("errorMsg should be omitted on success")
	}
	if cc := got["callbackContext"].(map[string]any); cc["appUrl"] != "https://a" {
		t.Fatalf("callback context not echoed: %v", cc)
	}
	if rec.n["hotspace.image-processing/COMPLETE"] != 1 {
		t.Fatalf("recorder not called: %v", rec.n)
	}
}

func TestEmitterSurfacesPublishFailure(t *testing.T) {
	boom := errors.New("bus down")
	em := NewEmitter(&fakePublisher{err: boom}, MarkupRoute, nil)
	err := em.Emit(context.Background(), Detail{Status: StatusError})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped publish error, got %v", err)
	}
}

func TestStatusTerminal(t *testing.T) {
	if !StatusComplete.Terminal() || !StatusError.Terminal() || StatusStatusUpdate.Terminal() {
		t.Fatalf("unexpected terminal classification")
	}
}

type fakePutEvents struct {
	in  *eventbridge.PutEventsInput
	out *eventbridge.PutEventsOutput
}

func (f *fakePutEvents) PutEvents(_ context.Context, in *eventbridge.PutEventsInput, _ ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error) {
	f.in = in
	return f.out, nil
}

func TestEventBridgePublisher(t *testing.T) {
	api := &fakePutEvents{out: &eventbridge.PutEventsOutput{}}
	p := &EventBridgePublisher{client: api, busName: "app-bus"}
	if err := p.Publish(context.Background(), "src", "Type", []byte(`{"a":1}`)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	entry := api.in.Entries[0]
	if aws.ToString(entry.EventBusName) != "app-bus" || aws.ToString(entry.Detail) != `{"a":1}` {
		t.Fatalf("unexpected entry %+v", entry)
	}

	api.out = &eventbridge.PutEventsOutput{
		FailedEntryCount: 1,
		Entries:          []types.PutEventsResultEntry{{ErrorCode: aws.String("ThrottlingException"), ErrorMessage: aws.String("slow down")}},
	}
	if err := p.Publish(context.Background(), "src", "Type", []byte(`{}`)); err == nil {
		t.Fatalf("expected failed entry to be an error")
	}
}

func TestEventBridgePublisherRejectsReservedSource(t *testing.T) {
	api := &fakePutEvents{out: &eventbridge.PutEventsOutput{}}
	p := &EventBridgePublisher{client: api, busName: "app-bus"}
	if err := p.Publish(context.Background(), "aws.mediaconvert", "MediaConvert Job State Change", []byte(`{}`)); err == nil {
		t.Fatalf("expected reserved source to be refused")
	}
	if api.in != nil {
		t.Fatalf("PutEvents must not be called for a reserved source")
	}
	for _, r := range []Route{ImageRoute, OfficeRoute, MarkupRoute, SharpRoute, VideoRoute} {
		if strings.HasPrefix(r.Source, "aws.") {
			t.Fatalf("route %s uses a reserved source", r.Source)
		}
	}
}

type fakeWriter struct{ msgs []kgo.Message }

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kgo.Message) error {
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func TestKafkaPublisherKeysBySource(t *testing.T) {
	w := &fakeWriter{}
	p := &KafkaPublisher{writer: w, timeout: defaultFlushTimeout}
	if err := p.Publish(context.Background(), "hotspace.libre-processor", "LibreProcessorStatus", []byte(`{}`)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(w.msgs) != 1 || string(w.msgs[0].Key) != "hotspace.libre-processor" {
		t.Fatalf("unexpected messages %+v", w.msgs)
	}
	if got := splitCSV(" a:1, ,b:2 "); len(got) != 2 || got[1] != "b:2" {
		t.Fatalf("unexpected split %v", got)
	}
}

func TestNatsPublisherSubject(t *testing.T) {
	p := &NatsPublisher{prefix: "events."}
	if got := p.Subject("hotspace.image-processing"); got != "events.hotspace.image-processing" {
		t.Fatalf("unexpected subject %s", got)
	}
	var nilPub *NatsPublisher
	if err := nilPub.Publish(context.Background(), "s", "t", nil); !errors.Is(err, errNilBus) {
		t.Fatalf("expected errNilBus, got %v", err)
	}
}
