package queue

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/redis/go-redis/v9"

	"github.com/martpet/hotspace-aws/internal/config"
	"github.com/martpet/hotspace-aws/internal/entities"
	"github.com/martpet/hotspace-aws/internal/retry"
)

const payloadField = "payload"

// Handler processes one delivery. A nil error acknowledges the message.
type Handler interface {
	Handle(ctx context.Context, env Envelope, attempt retry.Attempt) error
}

type HandlerFunc func(ctx context.Context, env Envelope, attempt retry.Attempt) error

func (f HandlerFunc) Handle(ctx context.Context, env Envelope, attempt retry.Attempt) error {
	return f(ctx, env, attempt)
}

// ClientSource hands out the current Redis client, which may be replaced
// after a reconnect.
type ClientSource interface {
	Get() redis.UniversalClient
}

// DeadLetterSink keeps messages the consumer gave up on.
type DeadLetterSink interface {
	InsertDeadLetter(ctx context.Context, dl entities.DeadLetter) error
}

// Consumer feeds one adapter family from its stream. Messages stay pending
// until handled; a message idle for longer than the visibility timeout is
// reclaimed and delivered again with a higher receive count.
type Consumer struct {
	clients ClientSource
	cfg     config.QueueConfig
	policy  retry.Policy
	handler Handler
	sink    DeadLetterSink
}

func NewConsumer(rc ClientSource, cfg config.QueueConfig, policy retry.Policy, handler Handler, sink DeadLetterSink) *Consumer {
	return &Consumer{clients: rc, cfg: cfg, policy: policy, handler: handler, sink: sink}
}

func (c *Consumer) EnsureGroup(ctx context.Context) error {
	// MkStream lets the group exist before the first message does.
	err := c.clients.Get().XGroupCreateMkStream(ctx, c.cfg.Stream, c.cfg.Group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

// Start runs the workers and the reclaim loop until ctx is done, then waits
// for in-flight deliveries to finish.
func (c *Consumer) Start(ctx context.Context) error {
	if err := c.EnsureGroup(ctx); err != nil {
		return fmt.Errorf("failed to ensure Redis group: %w", err)
	}

	workers := max(c.cfg.Workers, 1)
	log.Printf("[queue] starting consumer stream=%s group=%s consumer=%s workers=%d visibility=%s",
		c.cfg.Stream, c.cfg.Group, c.cfg.Consumer, workers, c.cfg.VisibilityTimeout)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			c.loop(ctx)
			log.Printf("[queue] stream=%s worker #%d stopped", c.cfg.Stream, id)
		}(i)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		c.reclaimLoop(ctx)
	}()

	<-ctx.Done()
	wg.Wait()
	return ctx.Err()
}

func (c *Consumer) loop(ctx context.Context) {
	for ctx.Err() == nil {
		msgs, err := c.next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("[queue] stream=%s read failed: %v", c.cfg.Stream, err)
			sleep(ctx, time.Second)
			continue
		}
		for _, m := range msgs {
			c.handle(ctx, m)
		}
	}
}

// next reads at most one new message for this consumer.
func (c *Consumer) next(ctx context.Context) ([]redis.XMessage, error) {
	streams, err := c.clients.Get().XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.cfg.Group,
		Consumer: c.cfg.Consumer,
		Streams:  []string{c.cfg.Stream, ">"},
		Count:    1,
		Block:    c.cfg.BlockTimeout,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var msgs []redis.XMessage
	for _, s := range streams {
		msgs = append(msgs, s.Messages...)
	}
	return msgs, nil
}

func (c *Consumer) reclaimLoop(ctx context.Context) {
	interval := c.cfg.VisibilityTimeout / 2
	if interval <= 0 {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			for _, m := range c.reclaim(ctx) {
				c.handle(ctx, m)
			}
		}
	}
}

// reclaim takes over messages whose last delivery is older than the
// visibility timeout, whichever consumer held them.
func (c *Consumer) reclaim(ctx context.Context) []redis.XMessage {
	var (
		claimed []redis.XMessage
		next    = "0-0"
	)
	for {
		msgs, start, err := c.clients.Get().XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   c.cfg.Stream,
			Group:    c.cfg.Group,
			Consumer: c.cfg.Consumer,
			MinIdle:  c.cfg.VisibilityTimeout,
			Start:    next,
			Count:    100,
		}).Result()
		if err != nil {
			if ctx.Err() == nil {
				log.Printf("[queue] stream=%s auto-claim failed: %v", c.cfg.Stream, err)
			}
			return claimed
		}
		claimed = append(claimed, msgs...)
		if start == "0-0" || len(msgs) == 0 {
			return claimed
		}
		next = start
	}
}

func (c *Consumer) handle(ctx context.Context, m redis.XMessage) {
	raw, _ := m.Values[payloadField].(string)
	receiveCount := c.receiveCount(ctx, m.ID)
	attempt := c.policy.Attempt(receiveCount)

	env, err := DecodeEnvelope(raw)
	if err != nil {
		c.deadLetter(ctx, m.ID, raw, env, receiveCount, err)
		return
	}

	err = c.handler.Handle(ctx, env, attempt)
	switch {
	case err == nil:
		c.ack(ctx, m.ID)
	case ctx.Err() != nil:
		// Shutting down; leave it pending for the next process.
		log.Printf("[queue] stream=%s id=%s interrupted: %v", c.cfg.Stream, m.ID, err)
	case isPermanent(err) || attempt.IsLast():
		c.deadLetter(ctx, m.ID, raw, env, receiveCount, err)
	default:
		log.Printf("[queue] stream=%s id=%s attempt=%d/%d left for redelivery: %v",
			c.cfg.Stream, m.ID, attempt.ReceiveCount, attempt.MaxReceiveCount, err)
	}
}

// receiveCount is the pending entry's delivery counter.
func (c *Consumer) receiveCount(ctx context.Context, id string) int {
	pending, err := c.clients.Get().XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: c.cfg.Stream,
		Group:  c.cfg.Group,
		Start:  id,
		End:    id,
		Count:  1,
	}).Result()
	if err != nil || len(pending) == 0 {
		return 1
	}
	return int(pending[0].RetryCount)
}

func (c *Consumer) ack(ctx context.Context, id string) {
	_, err := c.clients.Get().TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.XAck(ctx, c.cfg.Stream, c.cfg.Group, id)
		p.XDel(ctx, c.cfg.Stream, id)
		return nil
	})
	if err != nil {
		log.Printf("[queue] stream=%s id=%s ack failed: %v", c.cfg.Stream, id, err)
	}
}

func (c *Consumer) deadLetter(ctx context.Context, id, raw string, env Envelope, receiveCount int, cause error) {
	dl := entities.DeadLetter{
		MessageID:            id,
		Stream:               c.cfg.Stream,
		Kind:                 string(env.Kind),
		InodeID:              env.InodeID,
		ObjectKey:            env.ObjectKey,
		Payload:              raw,
		ReceiveCount:         receiveCount,
		Reason:               cause.Error(),
		TerminalEventEmitted: terminalEventEmitted(cause),
	}
	log.Printf("[queue] stream=%s id=%s dead-lettered after %d receives (event emitted=%t): %v",
		c.cfg.Stream, id, receiveCount, dl.TerminalEventEmitted, cause)

	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("stream", c.cfg.Stream)
		scope.SetExtra("message_id", id)
		scope.SetExtra("payload", raw)
		sentry.CaptureException(cause)
	})

	if c.sink != nil {
		if err := c.sink.InsertDeadLetter(ctx, dl); err != nil {
			// Acked regardless: a redelivery would repeat the terminal event.
			log.Printf("[queue] stream=%s id=%s dead-letter write failed: %v", c.cfg.Stream, id, err)
			sentry.CaptureException(err)
		}
	}
	c.ack(ctx, id)
}

func isPermanent(err error) bool {
	var p interface{ Permanent() bool }
	return errors.As(err, &p) && p.Permanent()
}

func terminalEventEmitted(err error) bool {
	var t interface{ TerminalEventEmitted() bool }
	return errors.As(err, &t) && t.TerminalEventEmitted()
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
