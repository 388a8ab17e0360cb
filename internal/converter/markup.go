package converter

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/martpet/hotspace-aws/internal/naming"
	"github.com/martpet/hotspace-aws/internal/pipeline"
	"github.com/martpet/hotspace-aws/internal/queue"
)

const defaultPandoc = "pandoc"

var (
	//go:embed assets/header.html
	htmlHeader []byte
	//go:embed assets/style.css
	htmlStyle []byte
)

// MarkupAdapter renders markup sources through pandoc.
type MarkupAdapter struct {
	Binary     string
	ScratchDir string
	Timeout    time.Duration
	Runner     Runner
}

func NewMarkupAdapter(binary, scratchDir string, timeout time.Duration, runner Runner) *MarkupAdapter {
	if binary == "" {
		binary = defaultPandoc
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	return &MarkupAdapter{Binary: binary, ScratchDir: scratchDir, Timeout: timeout, Runner: runner}
}

// Validate rejects unsupported targets before the source is fetched.
func (a *MarkupAdapter) Validate(env queue.Envelope) error {
	_, err := MarkupFormats.Lookup(env.TargetMimeType)
	return err
}

func (a *MarkupAdapter) Transform(ctx context.Context, src []byte, env queue.Envelope) (pipeline.Output, error) {
	format, err := MarkupFormats.Lookup(env.TargetMimeType)
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
	output := s.path(".out." + format.Ext)

	args := []string{input, "-o", output, "--standalone"}
	if format.Ext == "html" {
		header, err := s.write(".header.html", htmlHeader)
		if err != nil {
			return pipeline.Output{}, err
		}
		style, err := s.write(".style.css", htmlStyle)
		if err != nil {
			return pipeline.Output{}, err
		}
		args = append(args, "--embed-resources", "--include-in-header", header, "--css", style)
	}

	if err := run(ctx, a.Runner, a.Binary, args...); err != nil {
		return pipeline.Output{}, err
	}

	body, err := os.ReadFile(output)
	if err != nil {
		return pipeline.Output{}, fmt.Errorf("read converted %s: %w", format.Ext, err)
	}

	// An HTML preview stands in for the source itself and keeps its name.
	name := env.FileName
	if format.Ext != "html" {
		name += "." + format.Ext
	}
	art := format.artifact(body, name)
	return pipeline.Output{
		Artifacts:       []naming.Artifact{art},
		PreviewFileName: art.Name,
	}, nil
}
