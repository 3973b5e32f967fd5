package mail

import (
	"context"
	"time"
)

// Message is one sent email observed by the pipeline.
//
// Messages are read-only: the source builds them on fetch and the pipeline
// discards them once the iteration completes.
type Message struct {
	// ID is the provider-assigned identifier, stable across fetches.
	ID string

	// Timestamp is the send time, used for ordering and checkpointing.
	Timestamp time.Time

	// BodyText is the plain-text content passed to extraction.
	BodyText string

	// To is the raw recipient header. Used as a contact fallback when
	// extraction finds no email address in the body.
	To string
}

// Source yields candidate sent messages with send time at or after the
// watermark, ordered by timestamp ascending. Polling never alters mailbox
// state; an empty slice is a normal result.
type Source interface {
	Poll(ctx context.Context, since time.Time) ([]Message, error)
}

// TransientFetchError marks a poll failure as retryable (rate limiting,
// network faults).
type TransientFetchError struct {
	Err error
}

func (e *TransientFetchError) Error() string {
	if e == nil || e.Err == nil {
		return "transient fetch error"
	}
	return e.Err.Error()
}

func (e *TransientFetchError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// AuthError marks invalid or expired mailbox credentials. It is fatal to the
// polling loop: credentials need external renewal before processing can
// resume.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	if e == nil || e.Err == nil {
		return "mailbox auth error"
	}
	return e.Err.Error()
}

func (e *AuthError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
