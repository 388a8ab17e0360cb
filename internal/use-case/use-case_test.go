package use_case

import (
	"context"
	"errors"
	"testing"

	"github.com/martpet/hotspace-aws/internal/queue"
	"github.com/martpet/hotspace-aws/internal/video"
)

type fakeProducer struct {
	envs []queue.Envelope
	err  error
}

func (f *fakeProducer) Enqueue(_ context.Context, env queue.Envelope) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.envs = append(f.envs, env)
	return "1-0", nil
}

type countingRecorder map[string]int

func (r countingRecorder) IncJobsEnqueued(kind string) { r[kind]++ }

func TestEnqueueJob(t *testing.T) {
	p := &fakeProducer{}
	rec := countingRecorder{}
	uc := New(p, nil, nil, rec)

	id, err := uc.EnqueueJob(context.Background(), queue.Envelope{Kind: queue.KindImage, InodeID: "i", ObjectKey: "k"})
	if err != nil || id != "1-0" {
		t.Fatalf("unexpected result %q %v", id, err)
	}
	if len(p.envs) != 1 || rec["image"] != 1 {
		t.Fatalf("expected one enqueue recorded, got %d %v", len(p.envs), rec)
	}

	p.err = errors.New("redis down")
	if _, err := uc.EnqueueJob(context.Background(), queue.Envelope{Kind: queue.KindImage}); err == nil {
		t.Fatalf("expected producer error")
	}
	if rec["image"] != 1 {
		t.Fatalf("failed enqueue must not be counted")
	}
}

func TestVideoDisabled(t *testing.T) {
	uc := New(&fakeProducer{}, nil, nil, nil)
	if _, err := uc.SubmitVideo(context.Background(), video.SubmitRequest{}); !errors.Is(err, ErrVideoDisabled) {
		t.Fatalf("expected ErrVideoDisabled, got %v", err)
	}
	if _, err := uc.ForwardVideoEvent(context.Background(), nil); !errors.Is(err, ErrVideoDisabled) {
		t.Fatalf("expected ErrVideoDisabled, got %v", err)
	}
	if err := uc.CancelVideo(context.Background(), "job-1"); !errors.Is(err, ErrVideoDisabled) {
		t.Fatalf("expected ErrVideoDisabled, got %v", err)
	}
}

type fakeVideo struct{ cancelled []string }

func (f *fakeVideo) Submit(context.Context, video.SubmitRequest) (string, error) { return "job-1", nil }
func (f *fakeVideo) Forward(context.Context, []byte) (bool, error)               { return true, nil }
func (f *fakeVideo) Cancel(_ context.Context, jobID string) error {
	f.cancelled = append(f.cancelled, jobID)
	return nil
}

func TestCancelVideo(t *testing.T) {
	v := &fakeVideo{}
	uc := New(&fakeProducer{}, v, nil, nil)
	if err := uc.CancelVideo(context.Background(), "job-9"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if len(v.cancelled) != 1 || v.cancelled[0] != "job-9" {
		t.Fatalf("unexpected cancels %v", v.cancelled)
	}
}
