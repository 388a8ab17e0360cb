package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/martpet/hotspace-aws/internal/config"
	"github.com/martpet/hotspace-aws/internal/entities"
	"github.com/martpet/hotspace-aws/internal/pipeline"
	"github.com/martpet/hotspace-aws/internal/queue"
	"github.com/martpet/hotspace-aws/internal/redisholder"
)

type fakeRepo struct {
	closed bool
}

func (f *fakeRepo) InsertDeadLetter(context.Context, entities.DeadLetter) error { return nil }
func (f *fakeRepo) ListDeadLetters(context.Context, int) ([]entities.DeadLetter, error) {
	return nil, nil
}
func (f *fakeRepo) PurgeDeadLetters(context.Context, time.Time) (int64, error) { return 0, nil }
func (f *fakeRepo) Ping(context.Context) error                                 { return nil }
func (f *fakeRepo) Close()                                                     { f.closed = true }

func testConfig() *config.Config {
	return &config.Config{
		Storage: config.StorageConfig{
			BucketName:  "hotspace-files",
			Region:      "eu-central-1",
			AccessKeyID: "AKID",
			SecretKey:   "SECRET",
		},
		Events: config.EventsConfig{
			Backend: config.BackendNATS,
			// nothing listens on port 1
			NATSURL: "nats://127.0.0.1:1",
		},
		Retry:   config.RetryConfig{MaxReceiveCount: 3},
		Metrics: config.MetricsConfig{Namespace: "test"},
	}
}

func TestAssembleClosesConnectionsOnFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	holder := redisholder.NewHolder(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	repo := &fakeRepo{}

	a, err := assemble(context.Background(), testConfig(), repo, holder)
	if err == nil || a != nil {
		t.Fatalf("expected publisher failure, got %v", err)
	}
	if !repo.closed {
		t.Fatalf("dead-letter store left open")
	}
	if err := holder.Ping(context.Background()); !errors.Is(err, redis.ErrClosed) {
		t.Fatalf("redis client left open: %v", err)
	}
}

func TestQueueConfigsCoverRegisteredKinds(t *testing.T) {
	cfg := testConfig()
	cfg.Queues = config.QueuesConfig{
		Image:  config.QueueConfig{Stream: "media:image"},
		Office: config.QueueConfig{Stream: "media:office"},
		Markup: config.QueueConfig{Stream: "media:markup"},
		Sharp:  config.QueueConfig{Stream: "media:sharp"},
	}
	families := queueConfigs(cfg)

	p := pipeline.New(nil, nil)
	for _, k := range []queue.Kind{queue.KindImage, queue.KindSharp, queue.KindOffice, queue.KindMarkup} {
		p.Register(k, nil, nil)
	}
	for _, k := range p.Kinds() {
		if families[k].Stream != "media:"+string(k) {
			t.Fatalf("kind %s mapped to %q", k, families[k].Stream)
		}
	}
}
