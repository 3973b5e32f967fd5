package sink_test

import (
	"errors"
	"testing"
	"time"

	"github.com/holdgrid/bookingwatch/internal/sink"
)

func validRow() sink.Row {
	return sink.Row{
		ContactEmail:   "a@x.com",
		City:           "SF",
		VenueName:      "The Fillmore",
		RequestedDates: "June 1-2",
		Status:         sink.StatusContacted,
		MessageID:      "m1",
		ProcessedAt:    time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestRowValidate(t *testing.T) {
	t.Parallel()

	if err := validRow().Validate(); err != nil {
		t.Fatalf("valid row rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*sink.Row)
	}{
		{name: "missing_message_id", mutate: func(r *sink.Row) { r.MessageID = "" }},
		{name: "missing_processed_at", mutate: func(r *sink.Row) { r.ProcessedAt = time.Time{} }},
		{name: "missing_status", mutate: func(r *sink.Row) { r.Status = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := validRow()
			tt.mutate(&row)
			err := row.Validate()
			var valErr *sink.ValidationError
			if !errors.As(err, &valErr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
		})
	}
}

func TestRowValues(t *testing.T) {
	t.Parallel()

	values := validRow().Values()
	header := sink.Header()
	if len(values) != len(header) {
		t.Fatalf("values has %d cells, header has %d", len(values), len(header))
	}
	want := []string{"a@x.com", "SF", "The Fillmore", "June 1-2", "CONTACTED", "m1", "2025-06-01T10:00:00Z"}
	for i, v := range values {
		if v != want[i] {
			t.Fatalf("values[%d] (%s) = %q, want %q", i, header[i], v, want[i])
		}
	}
}
