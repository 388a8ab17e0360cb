package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/martpet/hotspace-aws/internal/blob"
	"github.com/martpet/hotspace-aws/internal/events"
	"github.com/martpet/hotspace-aws/internal/naming"
	"github.com/martpet/hotspace-aws/internal/queue"
	"github.com/martpet/hotspace-aws/internal/retry"
)

// Store is the object storage the pipeline reads sources from and writes
// artifacts to.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, body []byte, opts blob.PutOptions) error
}

// Metrics observes deliveries.
type Metrics interface {
	IncJobsReceived(kind string)
	IncOutcome(kind, outcome string)
	AddArtifactsWritten(kind string, n int)
	ObserveTransform(kind string, d time.Duration)
}

type family struct {
	adapter Adapter
	emitter *events.Emitter
}

// Pipeline runs one delivery of one envelope: fetch, transform, store, report.
type Pipeline struct {
	store    Store
	metrics  Metrics
	families map[queue.Kind]family
}

func New(store Store, metrics Metrics) *Pipeline {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Pipeline{store: store, metrics: metrics, families: make(map[queue.Kind]family)}
}

// Register binds an adapter family to the emitter carrying its route. It is
// meant to be called during startup only.
func (p *Pipeline) Register(kind queue.Kind, adapter Adapter, emitter *events.Emitter) {
	p.families[kind] = family{adapter: adapter, emitter: emitter}
}

// Kinds lists the registered families in sorted order.
func (p *Pipeline) Kinds() []queue.Kind {
	kinds := make([]queue.Kind, 0, len(p.families))
	for k := range p.families {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	return kinds
}

// Handle processes env once. A nil error means the message is done with and
// can be deleted; any error leaves the retry decision to the queue. Failed
// deliveries return a *Failure.
func (p *Pipeline) Handle(ctx context.Context, env queue.Envelope, attempt retry.Attempt) (Outcome, error) {
	kind := string(env.Kind)
	p.metrics.IncJobsReceived(kind)

	outcome, err := p.handle(ctx, env, attempt)
	p.metrics.IncOutcome(kind, outcome.String())
	if err != nil {
		return outcome, &Failure{Outcome: outcome, Err: err}
	}
	return outcome, nil
}

func (p *Pipeline) handle(ctx context.Context, env queue.Envelope, attempt retry.Attempt) (Outcome, error) {
	fam, ok := p.families[env.Kind]
	if !ok {
		return OutcomeRejected, Permanent(fmt.Errorf("no adapter registered for kind %q", env.Kind))
	}

	err := p.run(ctx, fam, env)
	if err == nil {
		return OutcomeCompleted, nil
	}
	if errors.Is(err, errPublish) {
		log.Printf("[pipeline] kind=%s inode=%s attempt=%d publish failed: %v", env.Kind, env.InodeID, attempt.ReceiveCount, err)
		return OutcomePublishFailed, err
	}

	switch {
	case IsPermanent(err):
		log.Printf("[pipeline] kind=%s inode=%s rejected: %v", env.Kind, env.InodeID, err)
		if perr := p.emitError(ctx, fam, env, err); perr != nil {
			return OutcomePublishFailed, perr
		}
		return OutcomeRejected, nil
	case attempt.IsLast():
		log.Printf("[pipeline] kind=%s inode=%s attempt=%d/%d failed, reporting: %v",
			env.Kind, env.InodeID, attempt.ReceiveCount, attempt.MaxReceiveCount, err)
		sentry.CaptureException(err)
		if perr := p.emitError(ctx, fam, env, err); perr != nil {
			return OutcomePublishFailed, perr
		}
		return OutcomeReported, err
	default:
		log.Printf("[pipeline] kind=%s inode=%s attempt=%d/%d failed, will retry: %v",
			env.Kind, env.InodeID, attempt.ReceiveCount, attempt.MaxReceiveCount, err)
		return OutcomeSuppressed, err
	}
}

var errPublish = errors.New("terminal event not published")

func (p *Pipeline) run(ctx context.Context, fam family, env queue.Envelope) error {
	if v, ok := fam.adapter.(Validator); ok {
		if err := v.Validate(env); err != nil {
			return err
		}
	}

	src, err := p.store.Get(ctx, env.ObjectKey)
	if err != nil {
		return fmt.Errorf("fetch source: %w", err)
	}

	start := time.Now()
	out, err := fam.adapter.Transform(ctx, src, env)
	p.metrics.ObserveTransform(string(env.Kind), time.Since(start))
	if err != nil {
		return fmt.Errorf("transform: %w", err)
	}

	for _, a := range out.Artifacts {
		opts := blob.PutOptions{
			ContentType:        a.ContentType,
			CacheControl:       naming.CacheControl,
			ContentDisposition: a.ContentDisposition,
		}
		if err := p.store.Put(ctx, naming.Key(env.ObjectKey, a.Name), a.Body, opts); err != nil {
			return fmt.Errorf("write %s: %w", a.Name, err)
		}
	}
	p.metrics.AddArtifactsWritten(string(env.Kind), len(out.Artifacts))

	detail := events.Detail{
		InodeID:         env.InodeID,
		ObjectKey:       env.ObjectKey,
		CallbackContext: env.CallbackContext,
		Status:          events.StatusComplete,
		Width:           out.Width,
		Height:          out.Height,
		Exif:            out.Exif,
		PreviewFileName: out.PreviewFileName,
	}
	if err := fam.emitter.Emit(ctx, detail); err != nil {
		return fmt.Errorf("%w: %w", errPublish, err)
	}
	return nil
}

func (p *Pipeline) emitError(ctx context.Context, fam family, env queue.Envelope, cause error) error {
	detail := events.Detail{
		InodeID:         env.InodeID,
		ObjectKey:       env.ObjectKey,
		CallbackContext: env.CallbackContext,
		Status:          events.StatusError,
		ErrorMsg:        cause.Error(),
	}
	if err := fam.emitter.Emit(ctx, detail); err != nil {
		return fmt.Errorf("%w: %w", errPublish, err)
	}
	return nil
}

type noopMetrics struct{}

func (noopMetrics) IncJobsReceived(string)                  {}
func (noopMetrics) IncOutcome(string, string)               {}
func (noopMetrics) AddArtifactsWritten(string, int)         {}
func (noopMetrics) ObserveTransform(string, time.Duration) {}
