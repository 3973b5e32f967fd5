// Package pipeline orchestrates the polling-dedupe-extract-append loop.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/holdgrid/bookingwatch/internal/extract"
	"github.com/holdgrid/bookingwatch/internal/logging"
	mailsrc "github.com/holdgrid/bookingwatch/internal/mail"
	"github.com/holdgrid/bookingwatch/internal/sink"
	"github.com/holdgrid/bookingwatch/internal/util"
)

// StateStore is the durable processing state consulted and advanced by the
// loop: the at-most-once gate plus the mailbox poll cursor.
type StateStore interface {
	Contains(ctx context.Context, messageID string) (bool, error)
	Mark(ctx context.Context, messageID string, processedAt time.Time) error
	Watermark(ctx context.Context) (time.Time, error)
	SetWatermark(ctx context.Context, t time.Time) error
}

type Options struct {
	// PollInterval is the sleep between cycles.
	PollInterval time.Duration

	// Retry governs per-step retry/backoff for transient failures.
	Retry RetryPolicy

	// RateLimitRPS limits extraction calls. Set to <=0 to disable.
	RateLimitRPS float64

	// Now is the clock used for processed timestamps. Defaults to UTC now.
	Now func() time.Time
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = time.Minute
	}
	o.Retry = o.Retry.withDefaults()
	if o.Now == nil {
		o.Now = func() time.Time { return time.Now().UTC() }
	}
	return o
}

// CycleStats summarizes one batch pass for logging and tests.
type CycleStats struct {
	Fetched      int
	Skipped      int
	Inapplicable int
	Appended     int
	Marked       int
	Failed       int
}

// Pipeline runs the single-threaded processing loop. Side effects are
// strictly sequential per message: skip if already processed, extract, append
// if applicable, then mark. Marking happens only after the append has
// definitively succeeded (or was skipped because the message was not
// booking-related).
type Pipeline struct {
	source    mailsrc.Source
	extractor extract.Extractor
	sink      sink.Sink
	store     StateStore
	log       *logging.Logger
	opts      Options
	limiter   *rate.Limiter
}

func New(source mailsrc.Source, extractor extract.Extractor, snk sink.Sink, store StateStore, log *logging.Logger, opts Options) *Pipeline {
	opts = opts.withDefaults()
	p := &Pipeline{
		source:    source,
		extractor: extractor,
		sink:      snk,
		store:     store,
		log:       log,
		opts:      opts,
	}
	if opts.RateLimitRPS > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(opts.RateLimitRPS), 1)
	}
	return p
}

// Run cycles until the context is cancelled or the mailbox credentials go
// bad. Any other failure is contained inside the cycle and logged; the loop
// continues on the next interval.
func (p *Pipeline) Run(ctx context.Context) error {
	for {
		stats, err := p.Cycle(ctx)
		if err != nil {
			var authErr *mailsrc.AuthError
			if errors.As(err, &authErr) {
				p.log.Errorw("mailbox credentials rejected, stopping",
					"error", util.RedactSecrets(err.Error()))
				return err
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.log.Errorw("cycle failed", "error", util.RedactSecrets(err.Error()))
		} else {
			p.log.Infow("cycle complete",
				"fetched", stats.Fetched,
				"skipped", stats.Skipped,
				"inapplicable", stats.Inapplicable,
				"appended", stats.Appended,
				"marked", stats.Marked,
				"failed", stats.Failed,
			)
		}

		t := time.NewTimer(p.opts.PollInterval)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		}
	}
}

// Cycle performs one batch pass: poll, then walk the fetched messages in
// timestamp order through the per-message state machine, then advance the
// watermark.
//
// A message whose extract or append step exhausts its retries is left
// unmarked and holds the watermark back to its timestamp, so the next poll
// window re-offers it. Already-marked messages inside the overlap are
// absorbed by the dedupe gate.
func (p *Pipeline) Cycle(ctx context.Context) (CycleStats, error) {
	cycleID := uuid.NewString()[:8]
	log := p.log.With("cycle", cycleID)
	var stats CycleStats

	since, err := p.store.Watermark(ctx)
	if err != nil {
		return stats, fmt.Errorf("read watermark: %w", err)
	}

	var msgs []mailsrc.Message
	err = p.withRetry(ctx, log, "poll", func(ctx context.Context) error {
		var pollErr error
		msgs, pollErr = p.source.Poll(ctx, since)
		return pollErr
	})
	if err != nil {
		var authErr *mailsrc.AuthError
		if errors.As(err, &authErr) {
			return stats, err
		}
		// Transient poll failure past its retry budget: skip this cycle,
		// the mailbox is unchanged.
		log.Warnw("poll failed, skipping cycle", "error", util.RedactSecrets(err.Error()))
		return stats, nil
	}

	stats.Fetched = len(msgs)
	var maxTS time.Time
	var minUnresolved time.Time

	for _, msg := range msgs {
		if msg.Timestamp.After(maxTS) {
			maxTS = msg.Timestamp
		}
		resolved := p.processMessage(ctx, log, msg, &stats)
		if !resolved {
			stats.Failed++
			if minUnresolved.IsZero() || msg.Timestamp.Before(minUnresolved) {
				minUnresolved = msg.Timestamp
			}
		}
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
	}

	target := maxTS
	if !minUnresolved.IsZero() {
		// Hold the cursor at the oldest unresolved message so a later
		// cycle re-offers it.
		target = minUnresolved
	}
	if !target.IsZero() {
		if err := p.store.SetWatermark(ctx, target); err != nil {
			return stats, fmt.Errorf("advance watermark: %w", err)
		}
	}
	return stats, nil
}

// processMessage walks one message through skip/extract/write/mark. It
// reports whether the message was resolved (marked processed); false means
// the message stays eligible for a later cycle.
func (p *Pipeline) processMessage(ctx context.Context, log *logging.Logger, msg mailsrc.Message, stats *CycleStats) bool {
	mlog := log.With("messageId", msg.ID)

	seen, err := p.store.Contains(ctx, msg.ID)
	if err != nil {
		mlog.Errorw("processed-state lookup failed", "error", err.Error())
		return false
	}
	if seen {
		stats.Skipped++
		return true
	}

	var result extract.Result
	err = p.withRetry(ctx, mlog, "extract", func(ctx context.Context) error {
		if p.limiter != nil {
			if err := p.limiter.Wait(ctx); err != nil {
				return err
			}
		}
		var exErr error
		result, exErr = p.extractor.Extract(ctx, msg.BodyText)
		return exErr
	})
	if err != nil {
		mlog.Warnw("extraction failed, leaving unmarked",
			"error", util.RedactSecrets(err.Error()))
		return false
	}

	processedAt := p.opts.Now()

	if result.Applicable {
		row := p.buildRow(msg, result, processedAt)
		err = p.withRetry(ctx, mlog, "append", func(ctx context.Context) error {
			return p.sink.Append(ctx, row)
		})
		if err != nil {
			var valErr *sink.ValidationError
			if errors.As(err, &valErr) {
				mlog.Errorw("row rejected by sink, this is a defect", "error", err.Error())
			} else {
				mlog.Warnw("append failed, leaving unmarked",
					"error", util.RedactSecrets(err.Error()))
			}
			return false
		}
		stats.Appended++
		mlog.Infow("row appended",
			"venue", row.VenueName,
			"city", row.City,
			"dates", row.RequestedDates,
		)
	} else {
		stats.Inapplicable++
		mlog.Debugw("not booking-related, marking without row")
	}

	if err := p.store.Mark(ctx, msg.ID, processedAt); err != nil {
		// The row (if any) is already appended; reprocessing may duplicate
		// it. Accepted tradeoff, called out loudly.
		mlog.Errorw("mark failed after side effects", "error", err.Error())
		return false
	}
	stats.Marked++
	return true
}

func (p *Pipeline) buildRow(msg mailsrc.Message, result extract.Result, processedAt time.Time) sink.Row {
	contact := result.ContactEmail
	if contact == "" {
		contact = recipientAddress(msg.To)
	}
	return sink.Row{
		ContactEmail:   contact,
		City:           result.City,
		VenueName:      result.VenueName,
		RequestedDates: result.RequestedDates,
		Status:         sink.StatusContacted,
		MessageID:      msg.ID,
		ProcessedAt:    processedAt,
	}
}

// recipientAddress extracts a bare address from a To header. The header is
// the fallback contact when the body names none.
func recipientAddress(to string) string {
	to = strings.TrimSpace(to)
	if to == "" {
		return ""
	}
	addr, err := mail.ParseAddress(to)
	if err != nil {
		// Multi-recipient or nonstandard header: take the first entry.
		if list, listErr := mail.ParseAddressList(to); listErr == nil && len(list) > 0 {
			return list[0].Address
		}
		return to
	}
	return addr.Address
}

// withRetry runs one step, consulting the retry policy between attempts. The
// policy decides; this loop only waits.
func (p *Pipeline) withRetry(ctx context.Context, log *logging.Logger, op string, fn func(context.Context) error) error {
	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		delay, again := p.opts.Retry.Next(attempt, err)
		if !again {
			return err
		}
		log.Debugw("retrying step",
			"op", op,
			"attempt", attempt,
			"delay", delay.String(),
			"error", util.RedactSecrets(err.Error()),
		)
		t := time.NewTimer(delay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		}
	}
}
