package entity

import (
	"encoding/json"
	"time"

	"github.com/nfscan/nfscan/constants"
)

// Invoice represents one uploaded document's pipeline state, as persisted in
// the record store. ID and CreatedAt are server-assigned.
type Invoice struct {
	ID          string                  `json:"id"`
	Filename    string                  `json:"filename"`
	Status      constants.InvoiceStatus `json:"status"`
	OCRText     *string                 `json:"ocr_text,omitempty"`
	LLMResponse json.RawMessage         `json:"llm_response,omitempty"`
	Error       *string                 `json:"error,omitempty"`
	CreatedAt   time.Time               `json:"created_at"`
	UpdatedAt   time.Time               `json:"updated_at"`

	// Base64 copy of the original document, persisted so later sessions can
	// re-run OCR without re-upload.
	ImageData     *string `json:"image_data,omitempty"`
	ImageMIMEType *string `json:"image_mime_type,omitempty"`
	ImageFilename *string `json:"image_filename,omitempty"`
}
