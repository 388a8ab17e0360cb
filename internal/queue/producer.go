package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Stream is where envelopes of one kind are appended.
type Stream struct {
	Name   string
	MaxLen int64
}

type Producer struct {
	r       ClientSource
	streams map[Kind]Stream
}

func NewProducer(r ClientSource, streams map[Kind]Stream) *Producer {
	return &Producer{r: r, streams: streams}
}

// Enqueue encodes env as JSON and appends it to the stream of its kind.
// It returns the stream entry id.
func (p *Producer) Enqueue(ctx context.Context, env Envelope) (string, error) {
	s, ok := p.streams[env.Kind]
	if !ok {
		return "", fmt.Errorf("no stream configured for kind %q", env.Kind)
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("encode envelope: %w", err)
	}
	args := &redis.XAddArgs{
		Stream: s.Name,
		Values: map[string]any{payloadField: string(raw)},
	}
	if s.MaxLen > 0 {
		args.MaxLen = s.MaxLen
		args.Approx = true
	}
	return p.r.Get().XAdd(ctx, args).Result()
}
