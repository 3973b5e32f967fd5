// Package gmail adapts the Gmail API to the pipeline's mail source contract.
package gmail

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"

	gmailv1 "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/holdgrid/bookingwatch/internal/mail"
)

const user = "me"

type Config struct {
	// Label restricts the poll to one mailbox label. Defaults to SENT.
	Label string

	// ExtraQuery is appended to the Gmail search query, e.g. to scope
	// polling to one recipient domain.
	ExtraQuery string

	// PageSize is the Gmail list page size, not an overall cap.
	PageSize int64
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.Label) == "" {
		c.Label = "SENT"
	}
	if c.PageSize <= 0 {
		c.PageSize = 100
	}
	return c
}

// Source polls sent mail through the Gmail API. It requires only read scope
// and never mutates mailbox state.
type Source struct {
	svc *gmailv1.Service
	cfg Config
}

func New(ctx context.Context, client *http.Client, cfg Config) (*Source, error) {
	svc, err := gmailv1.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("create gmail service: %w", err)
	}
	return &Source{svc: svc, cfg: cfg.withDefaults()}, nil
}

// Poll lists messages matching the label and watermark query, fetches each in
// full, and returns them ordered by send time ascending.
func (s *Source) Poll(ctx context.Context, since time.Time) ([]mail.Message, error) {
	var ids []string
	pageToken := ""
	for {
		call := s.svc.Users.Messages.List(user).
			LabelIds(s.cfg.Label).
			Q(buildQuery(since, s.cfg.ExtraQuery)).
			MaxResults(s.cfg.PageSize).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		resp, err := call.Do()
		if err != nil {
			return nil, classifyErr(err)
		}
		for _, m := range resp.Messages {
			ids = append(ids, m.Id)
		}
		pageToken = resp.NextPageToken
		if pageToken == "" {
			break
		}
	}

	msgs := make([]mail.Message, 0, len(ids))
	for _, id := range ids {
		full, err := s.svc.Users.Messages.Get(user, id).Format("full").Context(ctx).Do()
		if err != nil {
			return nil, classifyErr(err)
		}
		msg := mail.Message{
			ID:        full.Id,
			Timestamp: time.UnixMilli(full.InternalDate).UTC(),
			BodyText:  extractPlainText(full.Payload),
			To:        headerValue(full, "To"),
		}
		// The after: operator is second-granular; re-check the watermark
		// so the window stays inclusive without drifting backwards.
		if msg.Timestamp.Before(since) {
			continue
		}
		msgs = append(msgs, msg)
	}

	sort.Slice(msgs, func(i, j int) bool {
		return msgs[i].Timestamp.Before(msgs[j].Timestamp)
	})
	return msgs, nil
}

// buildQuery renders the Gmail search query for one poll window. The after:
// operator takes epoch seconds and is exclusive enough at second granularity
// that the boundary is pulled back by one second; the processed-id gate
// absorbs the overlap.
func buildQuery(since time.Time, extra string) string {
	parts := make([]string, 0, 2)
	if !since.IsZero() {
		parts = append(parts, fmt.Sprintf("after:%d", since.Unix()-1))
	}
	if q := strings.TrimSpace(extra); q != "" {
		parts = append(parts, q)
	}
	return strings.Join(parts, " ")
}

func headerValue(m *gmailv1.Message, name string) string {
	if m == nil || m.Payload == nil {
		return ""
	}
	for _, h := range m.Payload.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// classifyErr maps Gmail API failures onto the pipeline's error taxonomy.
// Credential problems are fatal; rate limits and network faults are
// retryable.
func classifyErr(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusUnauthorized:
			return &mail.AuthError{Err: err}
		case apiErr.Code == http.StatusForbidden && !isRateReason(apiErr):
			return &mail.AuthError{Err: err}
		case apiErr.Code == http.StatusTooManyRequests || apiErr.Code/100 == 5 ||
			apiErr.Code == http.StatusForbidden:
			return &mail.TransientFetchError{Err: err}
		}
		return err
	}
	var ne net.Error
	if errors.As(err, &ne) && (ne.Timeout() || ne.Temporary()) {
		return &mail.TransientFetchError{Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &mail.TransientFetchError{Err: err}
	}
	return err
}

// isRateReason reports whether a 403 is really a quota signal rather than a
// permission problem.
func isRateReason(apiErr *googleapi.Error) bool {
	for _, item := range apiErr.Errors {
		switch item.Reason {
		case "rateLimitExceeded", "userRateLimitExceeded", "quotaExceeded", "dailyLimitExceeded":
			return true
		}
	}
	return false
}
