package use_case

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/martpet/hotspace-aws/internal/entities"
	"github.com/martpet/hotspace-aws/internal/queue"
	"github.com/martpet/hotspace-aws/internal/video"
)

// ErrVideoDisabled is returned by video operations when transcoding is not
// configured.
var ErrVideoDisabled = errors.New("video transcoding is disabled")

type Producer interface {
	Enqueue(ctx context.Context, env queue.Envelope) (string, error)
}

type VideoService interface {
	Submit(ctx context.Context, req video.SubmitRequest) (string, error)
	Forward(ctx context.Context, raw []byte) (bool, error)
	Cancel(ctx context.Context, jobID string) error
}

type DeadLetterStore interface {
	ListDeadLetters(ctx context.Context, limit int) ([]entities.DeadLetter, error)
}

type Recorder interface {
	IncJobsEnqueued(kind string)
}

type useCase struct {
	producer    Producer
	video       VideoService
	deadLetters DeadLetterStore
	recorder    Recorder
}

// New wires the intake operations. video may be nil when transcoding is off.
func New(producer Producer, video VideoService, deadLetters DeadLetterStore, recorder Recorder) *useCase {
	return &useCase{
		producer:    producer,
		video:       video,
		deadLetters: deadLetters,
		recorder:    recorder,
	}
}

// EnqueueJob queues a validated envelope on its family's stream.
func (c *useCase) EnqueueJob(ctx context.Context, env queue.Envelope) (string, error) {
	id, err := c.producer.Enqueue(ctx, env)
	if err != nil {
		return "", fmt.Errorf("enqueue %s job: %w", env.Kind, err)
	}
	if c.recorder != nil {
		c.recorder.IncJobsEnqueued(string(env.Kind))
	}
	log.Printf("[intake] kind=%s inode=%s enqueued id=%s", env.Kind, env.InodeID, id)
	return id, nil
}

func (c *useCase) SubmitVideo(ctx context.Context, req video.SubmitRequest) (string, error) {
	if c.video == nil {
		return "", ErrVideoDisabled
	}
	return c.video.Submit(ctx, req)
}

func (c *useCase) CancelVideo(ctx context.Context, jobID string) error {
	if c.video == nil {
		return ErrVideoDisabled
	}
	return c.video.Cancel(ctx, jobID)
}

func (c *useCase) ForwardVideoEvent(ctx context.Context, raw []byte) (bool, error) {
	if c.video == nil {
		return false, ErrVideoDisabled
	}
	return c.video.Forward(ctx, raw)
}

func (c *useCase) ListDeadLetters(ctx context.Context, limit int) ([]entities.DeadLetter, error) {
	return c.deadLetters.ListDeadLetters(ctx, limit)
}
