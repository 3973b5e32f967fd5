package extract

import "context"

// Result is the structured extraction output for one email body.
//
// All fields are strings to keep the sheet output simple and stable. A field
// absent from the text maps to an empty string, never a guessed default.
type Result struct {
	// Applicable reports whether the message was booking-related at all.
	// When false, no row is written but the message still counts as
	// handled.
	Applicable bool

	VenueName      string
	City           string
	RequestedDates string
	ContactEmail   string
}

// Extractor pulls booking fields out of one message body. Malformed or
// ambiguous content yields Applicable=false rather than an error; an error is
// returned only when the upstream model call itself fails.
type Extractor interface {
	Extract(ctx context.Context, bodyText string) (Result, error)
}

// ExtractionError marks an upstream model failure (quota, timeout, malformed
// response) as retryable with backoff. After retries are exhausted the
// message is left unmarked so a later cycle re-offers it.
type ExtractionError struct {
	Err error
}

func (e *ExtractionError) Error() string {
	if e == nil || e.Err == nil {
		return "extraction error"
	}
	return e.Err.Error()
}

func (e *ExtractionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
