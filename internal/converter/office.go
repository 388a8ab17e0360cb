package converter

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/martpet/hotspace-aws/internal/naming"
	"github.com/martpet/hotspace-aws/internal/pipeline"
	"github.com/martpet/hotspace-aws/internal/queue"
)

const defaultLibreOffice = "libreoffice"

// OfficeAdapter renders office documents to a preview through LibreOffice.
type OfficeAdapter struct {
	Binary     string
	ScratchDir string
	Timeout    time.Duration
	Runner     Runner
}

func NewOfficeAdapter(binary, scratchDir string, timeout time.Duration, runner Runner) *OfficeAdapter {
	if binary == "" {
		binary = defaultLibreOffice
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	return &OfficeAdapter{Binary: binary, ScratchDir: scratchDir, Timeout: timeout, Runner: runner}
}

// Validate rejects unsupported targets before the source is fetched.
func (a *OfficeAdapter) Validate(env queue.Envelope) error {
	_, err := OfficeFormats.Lookup(env.TargetMimeType)
	return err
}

func (a *OfficeAdapter) Transform(ctx context.Context, src []byte, env queue.Envelope) (pipeline.Output, error) {
	format, err := OfficeFormats.Lookup(env.TargetMimeType)
	if err != nil {
		return pipeline.Output{}, err
	}
	if a.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.Timeout)
		defer cancel()
	}

	s := newScratch(a.ScratchDir)
	defer s.cleanup()

	input, err := s.write(inputSuffix(env.FileExt), src)
	if err != nil {
		return pipeline.Output{}, err
	}
	// LibreOffice names its output after the input, with the target extension.
	output := s.path("." + format.Ext)

	if err := run(ctx, a.Runner, a.Binary, "--headless", "--convert-to", format.Ext, input, "--outdir", s.dir); err != nil {
		return pipeline.Output{}, err
	}

	body, err := os.ReadFile(output)
	if err != nil {
		return pipeline.Output{}, fmt.Errorf("read converted %s: %w", format.Ext, err)
	}

	art := format.artifact(body, env.FileName+"."+format.Ext)
	return pipeline.Output{
		Artifacts:       []naming.Artifact{art},
		PreviewFileName: art.Name,
	}, nil
}
