package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/martpet/hotspace-aws/internal/config"
	"github.com/martpet/hotspace-aws/internal/entities"
	"github.com/martpet/hotspace-aws/internal/retry"
)

type memSink struct {
	mu      sync.Mutex
	letters []entities.DeadLetter
}

func (s *memSink) InsertDeadLetter(_ context.Context, dl entities.DeadLetter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.letters = append(s.letters, dl)
	return nil
}

type emittedErr struct{ error }

func (emittedErr) TerminalEventEmitted() bool { return true }

type permanentErr struct{ error }

func (permanentErr) Permanent() bool { return true }

type staticClient struct{ rc redis.UniversalClient }

func (s staticClient) Get() redis.UniversalClient { return s.rc }

func newTestConsumer(t *testing.T, maxReceive int, h HandlerFunc) (*Consumer, *Producer, *memSink, redis.UniversalClient) {
	t.Helper()
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rc.Close() })

	cfg := config.QueueConfig{
		Stream:            "media:office",
		Group:             "office-workers",
		Consumer:          "test-1",
		Workers:           1,
		VisibilityTimeout: 100 * time.Millisecond,
		BlockTimeout:      10 * time.Millisecond,
	}
	sink := &memSink{}
	c := NewConsumer(staticClient{rc}, cfg, retry.NewPolicy(maxReceive), h, sink)
	if err := c.EnsureGroup(context.Background()); err != nil {
		t.Fatalf("ensure group: %v", err)
	}
	p := NewProducer(staticClient{rc}, map[Kind]Stream{KindOffice: {Name: cfg.Stream}})
	return c, p, sink, rc
}

func enqueue(t *testing.T, p *Producer) string {
	t.Helper()
	id, err := p.Enqueue(context.Background(), Envelope{Kind: KindOffice, InodeID: "i1", ObjectKey: "k/1"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	return id
}

func readOne(t *testing.T, c *Consumer) redis.XMessage {
	t.Helper()
	msgs, err := c.next(context.Background())
	if err != nil || len(msgs) != 1 {
		t.Fatalf("expected one message, got %d (%v)", len(msgs), err)
	}
	return msgs[0]
}

func TestConsumerAcksOnSuccess(t *testing.T) {
	var got []retry.Attempt
	c, p, sink, rc := newTestConsumer(t, 3, func(_ context.Context, env Envelope, a retry.Attempt) error {
		if env.ObjectKey != "k/1" {
			t.Fatalf("unexpected envelope %+v", env)
		}
		got = append(got, a)
		return nil
	})
	enqueue(t, p)
	c.handle(context.Background(), readOne(t, c))

	if len(got) != 1 || got[0].ReceiveCount != 1 || got[0].IsLast() {
		t.Fatalf("unexpected attempts %+v", got)
	}
	if n := rc.XLen(context.Background(), "media:office").Val(); n != 0 {
		t.Fatalf("expected message deleted, stream has %d", n)
	}
	if len(sink.letters) != 0 {
		t.Fatalf("nothing should be dead-lettered")
	}
}

func TestConsumerDeadLettersOnLastAttempt(t *testing.T) {
	c, p, sink, rc := newTestConsumer(t, 1, func(context.Context, Envelope, retry.Attempt) error {
		return emittedErr{errors.New("libreoffice crashed")}
	})
	id := enqueue(t, p)
	c.handle(context.Background(), readOne(t, c))

	if len(sink.letters) != 1 {
		t.Fatalf("expected one dead letter, got %d", len(sink.letters))
	}
	dl := sink.letters[0]
	if dl.MessageID != id || dl.Kind != "office" || dl.ReceiveCount != 1 || !dl.TerminalEventEmitted {
		t.Fatalf("unexpected dead letter %+v", dl)
	}
	if n := rc.XLen(context.Background(), "media:office").Val(); n != 0 {
		t.Fatalf("expected message removed, stream has %d", n)
	}
}

func TestConsumerRedeliversAfterVisibilityTimeout(t *testing.T) {
	var attempts []int
	c, p, sink, rc := newTestConsumer(t, 3, func(_ context.Context, _ Envelope, a retry.Attempt) error {
		attempts = append(attempts, a.ReceiveCount)
		if a.ReceiveCount < 2 {
			return errors.New("transient")
		}
		return nil
	})
	enqueue(t, p)
	c.handle(context.Background(), readOne(t, c))

	pending := rc.XPending(context.Background(), "media:office", "office-workers").Val()
	if pending.Count != 1 {
		t.Fatalf("failed message should stay pending, got %d", pending.Count)
	}
	if again := c.reclaim(context.Background()); len(again) != 0 {
		t.Fatalf("message reclaimed before visibility timeout")
	}

	time.Sleep(150 * time.Millisecond)
	claimed := c.reclaim(context.Background())
	if len(claimed) != 1 {
		t.Fatalf("expected one reclaimed message, got %d", len(claimed))
	}
	c.handle(context.Background(), claimed[0])

	if len(attempts) != 2 || attempts[0] != 1 || attempts[1] != 2 {
		t.Fatalf("unexpected receive counts %v", attempts)
	}
	if len(sink.letters) != 0 || rc.XLen(context.Background(), "media:office").Val() != 0 {
		t.Fatalf("expected clean completion")
	}
}

func TestConsumerPermanentFailureSkipsRetries(t *testing.T) {
	c, p, sink, _ := newTestConsumer(t, 3, func(context.Context, Envelope, retry.Attempt) error {
		return permanentErr{errors.New("no adapter registered")}
	})
	enqueue(t, p)
	c.handle(context.Background(), readOne(t, c))
	if len(sink.letters) != 1 || sink.letters[0].TerminalEventEmitted {
		t.Fatalf("expected one dead letter without event, got %+v", sink.letters)
	}
}

func TestConsumerMalformedPayload(t *testing.T) {
	called := false
	c, _, sink, rc := newTestConsumer(t, 3, func(context.Context, Envelope, retry.Attempt) error {
		called = true
		return nil
	})
	rc.XAdd(context.Background(), &redis.XAddArgs{Stream: "media:office", Values: map[string]any{payloadField: "{oops"}})
	c.handle(context.Background(), readOne(t, c))

	if called {
		t.Fatalf("handler must not see malformed payloads")
	}
	if len(sink.letters) != 1 || sink.letters[0].Payload != "{oops" {
		t.Fatalf("expected malformed payload dead-lettered, got %+v", sink.letters)
	}
}

func TestConsumerStartStopsOnCancel(t *testing.T) {
	done := make(chan struct{}, 1)
	c, p, _, rc := newTestConsumer(t, 3, func(context.Context, Envelope, retry.Attempt) error {
		done <- struct{}{}
		return nil
	})
	enqueue(t, p)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- c.Start(ctx) }()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("message was not consumed")
	}
	deadline := time.Now().Add(2 * time.Second)
	for rc.XLen(context.Background(), "media:office").Val() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("message was not acknowledged")
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("unexpected stop error %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("consumer did not stop")
	}
}

func TestProducerUnknownKind(t *testing.T) {
	_, p, _, _ := newTestConsumer(t, 3, nil)
	if _, err := p.Enqueue(context.Background(), Envelope{Kind: KindImage, InodeID: "i", ObjectKey: "k"}); err == nil {
		t.Fatalf("expected error for unrouted kind")
	}
}
