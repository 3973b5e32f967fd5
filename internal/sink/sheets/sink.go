// Package sheets appends hold-grid rows through the Google Sheets API.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	sheetsv4 "google.golang.org/api/sheets/v4"

	"github.com/holdgrid/bookingwatch/internal/sink"
)

type Config struct {
	// SpreadsheetID identifies the target spreadsheet.
	SpreadsheetID string

	// Range is the worksheet append range, e.g. "Hold Grid!A:G".
	Range string
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.Range) == "" {
		c.Range = "Hold Grid!A:G"
	}
	return c
}

// Sink appends one spreadsheet row per call via values.append, which always
// adds rows after the existing table rather than editing in place.
type Sink struct {
	svc *sheetsv4.Service
	cfg Config
}

func New(ctx context.Context, client *http.Client, cfg Config) (*Sink, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, fmt.Errorf("spreadsheet id is required")
	}
	svc, err := sheetsv4.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &Sink{svc: svc, cfg: cfg.withDefaults()}, nil
}

func (s *Sink) Append(ctx context.Context, row sink.Row) error {
	if err := row.Validate(); err != nil {
		return err
	}

	values := row.Values()
	cells := make([]interface{}, len(values))
	for i, v := range values {
		cells[i] = v
	}

	_, err := s.svc.Spreadsheets.Values.
		Append(s.cfg.SpreadsheetID, s.cfg.Range, &sheetsv4.ValueRange{
			Values: [][]interface{}{cells},
		}).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return classifyErr(err)
	}
	return nil
}

// classifyErr wraps network and quota failures as retryable sink errors.
func classifyErr(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusTooManyRequests || apiErr.Code/100 == 5 {
			return &sink.SinkError{Err: err}
		}
		return err
	}
	var ne net.Error
	if errors.As(err, &ne) && (ne.Timeout() || ne.Temporary()) {
		return &sink.SinkError{Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &sink.SinkError{Err: err}
	}
	return err
}
