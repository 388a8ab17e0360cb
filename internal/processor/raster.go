package processor

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/martpet/hotspace-aws/internal/naming"
	"github.com/martpet/hotspace-aws/internal/pipeline"
	"github.com/martpet/hotspace-aws/internal/queue"
)

// DefaultMaxPixels bounds decoding against decompression bombs.
const DefaultMaxPixels = 900_000_000

// ErrPixelLimit rejects a source whose decoded size would exceed MaxPixels.
var ErrPixelLimit = errors.New("image exceeds pixel limit")

// Thumb is one JPEG rendition bounded by height.
type Thumb struct {
	Name    string
	Height  int
	Quality int
}

// RasterAdapter renders thumbnails and extracts EXIF from raster images.
type RasterAdapter struct {
	MaxPixels int64
	Thumbs    []Thumb
}

func NewRasterAdapter(maxPixels int64, thumbs []Thumb) *RasterAdapter {
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	if len(thumbs) == 0 {
		thumbs = []Thumb{
			{Name: naming.ThumbMedium, Height: 500, Quality: 90},
			{Name: naming.ThumbSmall, Height: 150, Quality: 80},
		}
	}
	return &RasterAdapter{MaxPixels: maxPixels, Thumbs: thumbs}
}

// PreviewThumbs are the renditions of the sharp family.
var PreviewThumbs = []Thumb{
	{Name: naming.Preview("jpeg"), Height: 500, Quality: 90},
	{Name: naming.PreviewSmall, Height: 150, Quality: 80},
}

// NewPreviewAdapter is a RasterAdapter writing PreviewThumbs.
func NewPreviewAdapter(maxPixels int64) *RasterAdapter {
	return NewRasterAdapter(maxPixels, append([]Thumb(nil), PreviewThumbs...))
}

// Transform decodes the source once and encodes each thumbnail from it in
// turn. Width and height in the output are the source's stored dimensions.
func (a *RasterAdapter) Transform(ctx context.Context, data []byte, env queue.Envelope) (pipeline.Output, error) {
	src, err := Inspect(data)
	if err != nil {
		return pipeline.Output{}, err
	}
	if src.Pixels() > a.MaxPixels {
		return pipeline.Output{}, fmt.Errorf("%w: %dx%d > %d", ErrPixelLimit, src.Width, src.Height, a.MaxPixels)
	}

	img, err := src.Decode()
	if err != nil {
		return pipeline.Output{}, err
	}

	disposition := naming.Inline(env.FileName)
	artifacts := make([]naming.Artifact, 0, len(a.Thumbs))
	for _, thumb := range a.Thumbs {
		if err := ctx.Err(); err != nil {
			return pipeline.Output{}, err
		}
		resizer := &ImageResizer{Height: thumb.Height}
		var buf bytes.Buffer
		if err := EncodeJPEG(&buf, resizer.Modify(img), thumb.Quality); err != nil {
			return pipeline.Output{}, fmt.Errorf("encode %s: %w", thumb.Name, err)
		}
		artifacts = append(artifacts, naming.Artifact{
			Name:               thumb.Name,
			Body:               buf.Bytes(),
			ContentType:        "image/jpeg",
			ContentDisposition: disposition,
		})
	}

	out := pipeline.Output{
		Artifacts: artifacts,
		Width:     src.Width,
		Height:    src.Height,
	}
	if e := ExtractExif(data); e != nil {
		out.Exif = e
	}
	return out, nil
}
