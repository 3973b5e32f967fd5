package sink

import (
	"context"
	"fmt"
	"time"
)

// StatusContacted is the status column value written for every appended hold.
const StatusContacted = "CONTACTED"

// Row is one line appended to the hold grid, one-to-one with a successful,
// applicable extraction.
type Row struct {
	ContactEmail   string
	City           string
	VenueName      string
	RequestedDates string
	Status         string

	// MessageID and ProcessedAt tie the row back to its source email.
	MessageID   string
	ProcessedAt time.Time
}

// Header returns the stable column ordering for appended rows.
func Header() []string {
	return []string{
		"contact_email",
		"city",
		"venue_name",
		"requested_dates",
		"status",
		"message_id",
		"processed_at",
	}
}

// Values renders the row in Header() order.
func (r Row) Values() []string {
	return []string{
		r.ContactEmail,
		r.City,
		r.VenueName,
		r.RequestedDates,
		r.Status,
		r.MessageID,
		r.ProcessedAt.UTC().Format(time.RFC3339),
	}
}

// Validate checks the row shape before any append. A failure here is a
// programming-level contract breach upstream, not a runtime condition to
// retry.
func (r Row) Validate() error {
	if r.MessageID == "" {
		return &ValidationError{Reason: "missing message id"}
	}
	if r.ProcessedAt.IsZero() {
		return &ValidationError{Reason: "missing processed timestamp"}
	}
	if r.Status == "" {
		return &ValidationError{Reason: "missing status"}
	}
	return nil
}

// Sink appends rows to the spreadsheet. Appends are ordered and append-only;
// no in-place edits.
type Sink interface {
	Append(ctx context.Context, row Row) error
}

// SinkError marks an append failure as retryable (network, quota).
type SinkError struct {
	Err error
}

func (e *SinkError) Error() string {
	if e == nil || e.Err == nil {
		return "sink error"
	}
	return e.Err.Error()
}

func (e *SinkError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ValidationError marks a malformed row reaching the sink. Non-retryable:
// it indicates an internal contract violation and is logged as a defect.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	if e == nil {
		return "invalid row"
	}
	return fmt.Sprintf("invalid row: %s", e.Reason)
}
