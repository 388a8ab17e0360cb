// Package naming derives artifact keys and HTTP metadata for objects written
// next to a source object. Keys depend only on the source key and the
// variant, so a redelivered job overwrites its previous output.
package naming

import (
	"net/url"
	"strings"
)

const (
	ThumbMedium = "thumb_md.jpeg"
	ThumbSmall  = "thumb_sm.jpeg"

	// PreviewSmall sits next to Preview("jpeg") for sharp renditions.
	PreviewSmall = "preview_sm.jpeg"

	previewBase = "preview"
	videoDir    = "video"

	// CacheControl is applied to every derived artifact.
	CacheControl = "public, max-age=31536000, immutable"
)

// Artifact is one derived object ready to be written.
type Artifact struct {
	Name               string
	Body               []byte
	ContentType        string
	ContentDisposition string
}

// Key nests an artifact name under the source object's key.
func Key(objectKey, name string) string {
	return strings.TrimSuffix(objectKey, "/") + "/" + name
}

// Preview is the artifact name of a converted document.
func Preview(ext string) string {
	return previewBase + "." + strings.TrimPrefix(ext, ".")
}

// VideoPrefix is the pseudo-directory that holds transcoded renditions.
func VideoPrefix(objectKey string) string {
	return Key(objectKey, videoDir) + "/"
}

// Inline builds a content-disposition header carrying the original file
// name, percent-encoded per RFC 5987.
func Inline(fileName string) string {
	return "inline; filename*=UTF-8''" + encodeFileName(fileName)
}

// encodeFileName leaves only RFC 5987 attr-chars bare. Spaces become %20,
// not '+', and quotes, parentheses and '*' are escaped.
func encodeFileName(name string) string {
	escaped := url.QueryEscape(name)
	escaped = strings.ReplaceAll(escaped, "+", "%20")
	return strings.ReplaceAll(escaped, "%21", "!")
}
