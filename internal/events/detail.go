package events

import "encoding/json"

// Status is the outcome carried by a status event.
type Status string

const (
	StatusComplete     Status = "COMPLETE"
	StatusError        Status = "ERROR"
	StatusStatusUpdate Status = "STATUS_UPDATE"
)

// Terminal reports whether s ends a job's lifetime.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusError
}

// Detail is the payload of an outgoing status event. Its JSON shape is the
// contract the application tier's webhook consumes.
type Detail struct {
	InodeID         string          `json:"inodeId"`
	ObjectKey       string          `json:"objectKey"`
	CallbackContext json.RawMessage `json:"callbackContext,omitempty"`
	Status          Status          `json:"status"`

	Width  int `json:"width,omitempty"`
	Height int `json:"height,omitempty"`
	// Exif holds the curated EXIF subset of a raster source.
	Exif any `json:"exif,omitempty"`

	PreviewFileName string `json:"previewFileName,omitempty"`
	ErrorMsg        string `json:"errorMsg,omitempty"`
}
