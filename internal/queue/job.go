package queue

import (
	"encoding/json"
	"fmt"
)

// Kind tags a job envelope and selects the adapter that handles it.
type Kind string

const (
	KindImage  Kind = "image"
	KindOffice Kind = "office"
	KindMarkup Kind = "markup"
	// KindSharp renders preview JPEGs of a raster source.
	KindSharp  Kind = "sharp"
)

// Valid reports whether k names a queue-driven adapter family.
func (k Kind) Valid() bool {
	switch k {
	case KindImage, KindOffice, KindMarkup, KindSharp:
		return true
	}
	return false
}

// Envelope is what we push to Redis Streams.
// No bytes here; workers fetch by ObjectKey.
type Envelope struct {
	Kind      Kind   `json:"kind" validate:"required,oneof=image office markup sharp"`
	InodeID   string `json:"inodeId" validate:"required"`
	ObjectKey string `json:"objectKey" validate:"required"`
	FileName  string `json:"fileName,omitempty"`
	FileExt   string `json:"fileExt,omitempty"`
	// TargetMimeType applies to the office and markup families only.
	TargetMimeType string `json:"targetMimeType,omitempty"`
	// CallbackContext is echoed back in the status event untouched.
	CallbackContext json.RawMessage `json:"callbackContext,omitempty"`
}

// DecodeEnvelope parses one queued payload.
func DecodeEnvelope(raw string) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return env, fmt.Errorf("decode envelope: %w", err)
	}
	if !env.Kind.Valid() {
		return env, fmt.Errorf("decode envelope: unknown kind %q", env.Kind)
	}
	if env.InodeID == "" || env.ObjectKey == "" {
		return env, fmt.Errorf("decode envelope: inodeId and objectKey are required")
	}
	return env, nil
}
