package events

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

var (
	errNilBus     = errors.New("nats bus not initialized")
	errEmptyTopic = errors.New("empty source")
)

const defaultFlushTimeout = 5 * time.Second

// busEvent mirrors the EventBridge envelope so subscribers can filter on
// source and detail-type regardless of the transport.
type busEvent struct {
	Source     string          `json:"source"`
	DetailType string          `json:"detail-type"`
	Time       time.Time       `json:"time"`
	Detail     json.RawMessage `json:"detail"`
}

// NatsPublisher publishes status events on "<prefix>.<source>".
type NatsPublisher struct {
	nc     *nats.Conn
	prefix string
}

// NewNatsPublisher dials NATS at the provided URL.
func NewNatsPublisher(url, prefix string) (*NatsPublisher, error) {
	opts := []nats.Option{
		nats.Name("hotspace-media-pipeline"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Printf("[events] disconnected from NATS: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[events] reconnected to NATS at %s", nc.ConnectedUrl())
		}),
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, err
	}
	return &NatsPublisher{nc: nc, prefix: prefix}, nil
}

// Subject returns the subject an event from source is published on.
func (p *NatsPublisher) Subject(source string) string {
	if p.prefix == "" {
		return source
	}
	return strings.TrimSuffix(p.prefix, ".") + "." + source
}

func (p *NatsPublisher) Publish(ctx context.Context, source, detailType string, detail []byte) error {
	if p == nil || p.nc == nil {
		return errNilBus
	}
	if source == "" {
		return errEmptyTopic
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(busEvent{
		Source:     source,
		DetailType: detailType,
		Time:       time.Now().UTC(),
		Detail:     detail,
	})
	if err != nil {
		return err
	}
	if err := p.nc.Publish(p.Subject(source), data); err != nil {
		return err
	}
	// Flush so a dead connection surfaces as a publish failure instead of
	// a silently buffered message.
	return p.nc.FlushTimeout(defaultFlushTimeout)
}

func (p *NatsPublisher) Close() error {
	if p != nil && p.nc != nil {
		p.nc.Close()
	}
	return nil
}
