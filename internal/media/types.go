// Package media holds the multimodal content-part type shared across
// channels, the bus, and providers without circular imports (grounded on
// teacher pkg/media/types.go).
package media

// ContentPart represents a single part of a multimodal message.
type ContentPart struct {
	Type      string `json:"type"`       // "text" or "image"
	Text      string `json:"text,omitempty"`
	MediaType string `json:"media_type,omitempty"` // MIME type, e.g. "image/jpeg"
	Data      string `json:"data,omitempty"`       // base64-encoded image data
	FileName  string `json:"file_name,omitempty"`
}
