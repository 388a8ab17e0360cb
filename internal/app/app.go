package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/martpet/hotspace-aws/cmd/migrate"
	"github.com/martpet/hotspace-aws/internal/blob"
	"github.com/martpet/hotspace-aws/internal/cache"
	"github.com/martpet/hotspace-aws/internal/config"
	"github.com/martpet/hotspace-aws/internal/converter"
	"github.com/martpet/hotspace-aws/internal/entities"
	"github.com/martpet/hotspace-aws/internal/events"
	"github.com/martpet/hotspace-aws/internal/metrics"
	"github.com/martpet/hotspace-aws/internal/pipeline"
	"github.com/martpet/hotspace-aws/internal/processor"
	"github.com/martpet/hotspace-aws/internal/queue"
	"github.com/martpet/hotspace-aws/internal/redisholder"
	"github.com/martpet/hotspace-aws/internal/repository/storage"
	"github.com/martpet/hotspace-aws/internal/retry"
	"github.com/martpet/hotspace-aws/internal/transport/handler"
	"github.com/martpet/hotspace-aws/internal/transport/router"
	use_case "github.com/martpet/hotspace-aws/internal/use-case"
	"github.com/martpet/hotspace-aws/internal/video"
)

type deadLetterStore interface {
	queue.DeadLetterSink
	use_case.DeadLetterStore
	PurgeDeadLetters(ctx context.Context, cutoff time.Time) (int64, error)
	Ping(ctx context.Context) error
	Close()
}

type App struct {
	HttpServer *http.Server

	cfg       *config.Config
	holder    *redisholder.Holder
	repo      deadLetterStore
	publisher events.Publisher
	consumers []*queue.Consumer
}

func New(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := migrate.Migrate(ctx, cfg.Database.DSN, migrate.Migrations); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	repo, err := storage.New(ctx, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}

	holder, err := redisholder.Build(ctx, &cfg.Redis)
	if err != nil {
		repo.Close()
		return nil, err
	}

	return assemble(ctx, cfg, repo, holder)
}

// assemble builds everything on top of the database and Redis connections.
// It takes ownership of both and closes them, together with anything it
// opened itself, when it fails.
func assemble(ctx context.Context, cfg *config.Config, repo deadLetterStore, holder *redisholder.Holder) (_ *App, err error) {
	var publisher events.Publisher
	defer func() {
		if err == nil {
			return
		}
		if publisher != nil {
			_ = publisher.Close()
		}
		_ = holder.Close()
		repo.Close()
	}()

	prom := metrics.NewProm(cfg.Metrics.Namespace)

	blobStore, err := blob.NewStorage(ctx, &cfg.Storage)
	if err != nil {
		return nil, err
	}

	publisher, err = newPublisher(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("event publisher: %w", err)
	}

	p := pipeline.New(blobStore, prom)
	thumbs := make([]processor.Thumb, 0, len(cfg.Image.Thumbs))
	for _, t := range cfg.Image.Thumbs {
		thumbs = append(thumbs, processor.Thumb{Name: t.Name, Height: t.Height, Quality: t.Quality})
	}
	p.Register(queue.KindImage,
		processor.NewRasterAdapter(cfg.Image.MaxPixels, thumbs),
		events.NewEmitter(publisher, events.ImageRoute, prom))
	p.Register(queue.KindSharp,
		processor.NewPreviewAdapter(cfg.Image.MaxPixels),
		events.NewEmitter(publisher, events.SharpRoute, prom))
	p.Register(queue.KindOffice,
		converter.NewOfficeAdapter(cfg.Converter.LibreOfficePath, cfg.Converter.ScratchDir, cfg.Converter.Timeout, nil),
		events.NewEmitter(publisher, events.OfficeRoute, prom))
	p.Register(queue.KindMarkup,
		converter.NewMarkupAdapter(cfg.Converter.PandocPath, cfg.Converter.ScratchDir, cfg.Converter.Timeout, nil),
		events.NewEmitter(publisher, events.MarkupRoute, prom))

	policy := retry.NewPolicy(cfg.Retry.MaxReceiveCount)
	handle := queue.HandlerFunc(func(ctx context.Context, env queue.Envelope, attempt retry.Attempt) error {
		_, err := p.Handle(ctx, env, attempt)
		return err
	})
	sink := countedSink{DeadLetterSink: repo, recorder: prom}

	families := queueConfigs(cfg)
	streams := make(map[queue.Kind]queue.Stream, len(families))
	var consumers []*queue.Consumer
	for _, kind := range p.Kinds() {
		qc, ok := families[kind]
		if !ok {
			return nil, fmt.Errorf("no queue configured for kind %q", kind)
		}
		streams[kind] = queue.Stream{Name: qc.Stream, MaxLen: qc.MaxLen}
		if qc.Workers < 0 {
			log.Printf("[app] %s consumer disabled", kind)
			continue
		}
		consumers = append(consumers, queue.NewConsumer(holder, qc, policy, handle, sink))
	}
	producer := queue.NewProducer(holder, streams)

	var videoSvc use_case.VideoService
	if cfg.Video.Enabled {
		awsCfg, err := blob.AWSConfig(ctx, &cfg.Storage, cfg.Video.Region)
		if err != nil {
			return nil, err
		}
		videoSvc = video.NewService(
			video.NewMediaConvertClient(awsCfg, cfg.Video),
			cfg.Video,
			cfg.Storage.BucketName,
			events.NewEmitter(publisher, events.VideoRoute, prom),
			cache.NewCache("hotspace:video-events", holder),
		)
	}

	uc := use_case.New(producer, videoSvc, repo, prom)
	h := handler.New(uc, cfg, map[string]handler.Pinger{"redis": holder, "postgres": repo})
	r := router.NewRouter(h, prom.Handler())

	s := &http.Server{
		Handler:      r,
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return &App{
		HttpServer: s,
		cfg:        cfg,
		holder:     holder,
		repo:       repo,
		publisher:  publisher,
		consumers:  consumers,
	}, nil
}

// queueConfigs maps each queue-driven kind to its stream settings.
func queueConfigs(cfg *config.Config) map[queue.Kind]config.QueueConfig {
	return map[queue.Kind]config.QueueConfig{
		queue.KindImage:  cfg.Queues.Image,
		queue.KindSharp:  cfg.Queues.Sharp,
		queue.KindOffice: cfg.Queues.Office,
		queue.KindMarkup: cfg.Queues.Markup,
	}
}

func newPublisher(ctx context.Context, cfg *config.Config) (events.Publisher, error) {
	switch cfg.Events.Backend {
	case config.BackendEventBridge:
		awsCfg, err := blob.AWSConfig(ctx, &cfg.Storage, cfg.Storage.Region)
		if err != nil {
			return nil, err
		}
		return events.NewEventBridgePublisher(awsCfg, cfg.Events.EventBusName), nil
	case config.BackendKafka:
		return events.NewKafkaPublisher(cfg.Events.KafkaBrokers, cfg.Events.KafkaTopic), nil
	default:
		p, err := events.NewNatsPublisher(cfg.Events.NATSURL, cfg.Events.SubjectPrefix)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
}

// Run serves HTTP and consumes every enabled family until ctx is done.
func (a *App) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, c := range a.consumers {
		wg.Add(1)
		go func(c *queue.Consumer) {
			defer wg.Done()
			if err := c.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("[app] consumer stopped: %v", err)
			}
		}(c)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.purgeLoop(ctx)
	}()

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[app] http server listening on %s", a.HttpServer.Addr)
		if err := a.HttpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.HttpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("[app] http shutdown: %v", err)
	}

	wg.Wait()
	if err := a.publisher.Close(); err != nil {
		log.Printf("[app] publisher close: %v", err)
	}
	if err := a.holder.Close(); err != nil {
		log.Printf("[app] redis close: %v", err)
	}
	a.repo.Close()
	return runErr
}

// purgeLoop drops dead letters older than the retention window.
func (a *App) purgeLoop(ctx context.Context) {
	t := time.NewTicker(a.cfg.DeadLetter.PurgeInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			cutoff := time.Now().Add(-a.cfg.DeadLetter.Retention)
			n, err := a.repo.PurgeDeadLetters(ctx, cutoff)
			if err != nil {
				log.Printf("[app] dead-letter purge failed: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("[app] purged %d dead letters older than %s", n, cutoff.Format(time.RFC3339))
			}
		}
	}
}

type countedSink struct {
	queue.DeadLetterSink
	recorder interface{ IncDeadLetters(stream string) }
}

func (s countedSink) InsertDeadLetter(ctx context.Context, dl entities.DeadLetter) error {
	s.recorder.IncDeadLetters(dl.Stream)
	return s.DeadLetterSink.InsertDeadLetter(ctx, dl)
}
