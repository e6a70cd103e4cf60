package constants

// InvoiceStatus is the canonical status for invoice records.
type InvoiceStatus string

// Stable values (the record store persists these exact strings).
const (
	StatusUploaded InvoiceStatus = "uploaded" // record created, document registered
	StatusOCRDone  InvoiceStatus = "ocr_done" // stage 1 completed (transcript extracted)
	StatusLLMSent  InvoiceStatus = "llm_sent" // stage 2 completed (envelope persisted)
	StatusError    InvoiceStatus = "error"    // last stage failed; re-runnable
)

// Valid reports whether s is one of the known statuses.
func (s InvoiceStatus) Valid() bool {
	switch s {
	case StatusUploaded, StatusOCRDone, StatusLLMSent, StatusError:
		return true
	}
	return false
}
