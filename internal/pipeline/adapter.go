package pipeline

import (
	"context"

	"github.com/martpet/hotspace-aws/internal/naming"
	"github.com/martpet/hotspace-aws/internal/queue"
)

// Output is what an adapter derives from one source object.
type Output struct {
	Artifacts       []naming.Artifact
	Width           int
	Height          int
	Exif            any
	PreviewFileName string
}

// Adapter converts source bytes into derived artifacts. It does not touch
// storage or the event bus; the pipeline writes the artifacts and reports.
type Adapter interface {
	Transform(ctx context.Context, src []byte, env queue.Envelope) (Output, error)
}

// Validator is implemented by adapters that can reject a job before its
// source is fetched. A rejection should be marked Permanent.
type Validator interface {
	Validate(env queue.Envelope) error
}
