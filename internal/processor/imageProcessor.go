package processor

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"math"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
)

// ImageModifier defines an image modifier
type ImageModifier interface {
	Modify(img image.Image) image.Image
}

// ImageResizer shrinks an image to fit inside Width x Height, keeping the
// aspect ratio. A zero bound is unconstrained. Images already inside the
// bounds are returned as-is: never upscale.
type ImageResizer struct {
	Width  int
	Height int
}

// Modify to implement ImageModifier interface
func (r *ImageResizer) Modify(img image.Image) image.Image {
	w := float64(img.Bounds().Dx())
	h := float64(img.Bounds().Dy())

	if w == 0 || h == 0 || (r.Width == 0 && r.Height == 0) {
		return img
	}

	ratio := 0.0
	if r.Width > 0 {
		ratio = w / float64(r.Width)
	}
	if r.Height > 0 {
		if hRatio := h / float64(r.Height); hRatio > ratio {
			ratio = hRatio
		}
	}

	// Nothing to do - return original image
	if ratio <= 1 {
		return img
	}

	return imaging.Resize(img, scaled(w, ratio), scaled(h, ratio), imaging.Lanczos)
}

func scaled(v, ratio float64) int {
	return max(1, int(math.Round(v/ratio)))
}

// Source is a detected, size-checked raster input.
type Source struct {
	data   []byte
	mime   *mimetype.MIME
	Width  int
	Height int
}

// Inspect detects the format and reads the dimensions without decoding
// pixel data.
func Inspect(data []byte) (*Source, error) {
	mt := mimetype.Detect(data)
	if !isImage(mt) {
		return nil, fmt.Errorf("unsupported source type: %s", mt.String())
	}

	var (
		cfg image.Config
		err error
	)
	if mt.Is("image/webp") {
		cfg, err = webp.DecodeConfig(bytes.NewReader(data))
	} else {
		cfg, _, err = image.DecodeConfig(bytes.NewReader(data))
	}
	if err != nil {
		return nil, fmt.Errorf("read %s header: %w", mt.String(), err)
	}
	return &Source{data: data, mime: mt, Width: cfg.Width, Height: cfg.Height}, nil
}

func isImage(mt *mimetype.MIME) bool {
	return strings.HasPrefix(mt.String(), "image/")
}

// Pixels is the decoded size the source would occupy.
func (s *Source) Pixels() int64 {
	return int64(s.Width) * int64(s.Height)
}

// Decode decodes the source, applying its EXIF orientation, and runs the
// modifiers in order.
func (s *Source) Decode(modifiers ...ImageModifier) (image.Image, error) {
	var (
		img image.Image
		err error
	)
	if s.mime.Is("image/webp") {
		img, err = webp.Decode(bytes.NewReader(s.data))
	} else {
		img, err = imaging.Decode(bytes.NewReader(s.data), imaging.AutoOrientation(true))
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.mime.String(), err)
	}

	for _, modifier := range modifiers {
		img = modifier.Modify(img)
	}
	return img, nil
}

// EncodeJPEG writes img as a JPEG of the given quality.
func EncodeJPEG(w io.Writer, img image.Image, quality int) error {
	return imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(quality))
}
