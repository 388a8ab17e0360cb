package converter

import (
	"fmt"
	"strings"

	"github.com/martpet/hotspace-aws/internal/naming"
	"github.com/martpet/hotspace-aws/internal/pipeline"
)

// Format is one supported conversion target.
type Format struct {
	MimeType string
	Ext      string
}

// Formats maps target mime types to output extensions. The first entry is
// the default used when a job names no target.
type Formats []Format

var (
	OfficeFormats = Formats{
		{MimeType: "application/pdf", Ext: "pdf"},
		{MimeType: "image/png", Ext: "png"},
		{MimeType: "image/jpeg", Ext: "jpg"},
	}
	MarkupFormats = Formats{
		{MimeType: "text/html", Ext: "html"},
		{MimeType: "application/epub+zip", Ext: "epub"},
		{MimeType: "application/vnd.openxmlformats-officedocument.wordprocessingml.document", Ext: "docx"},
	}
)

// Lookup resolves a target mime type. Unsupported targets are permanent
// failures.
func (f Formats) Lookup(mimeType string) (Format, error) {
	mimeType = strings.TrimSpace(mimeType)
	if mimeType == "" {
		return f[0], nil
	}
	for _, format := range f {
		if strings.EqualFold(format.MimeType, mimeType) {
			return format, nil
		}
	}
	return Format{}, pipeline.Permanent(fmt.Errorf("unsupported target mime type: %s", mimeType))
}

func (f Format) artifact(body []byte, dispositionName string) naming.Artifact {
	return naming.Artifact{
		Name:               naming.Preview(f.Ext),
		Body:               body,
		ContentType:        f.MimeType,
		ContentDisposition: naming.Inline(dispositionName),
	}
}

func inputSuffix(ext string) string {
	ext = strings.TrimPrefix(strings.TrimSpace(ext), ".")
	if ext == "" || strings.ContainsAny(ext, `/\`) {
		return ""
	}
	return "." + ext
}
