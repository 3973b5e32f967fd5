package gmail

import (
	"encoding/base64"
	"errors"
	"testing"
	"time"

	gmailv1 "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"

	"github.com/holdgrid/bookingwatch/internal/mail"
)

type tempNetErr struct{}

func (tempNetErr) Error() string   { return "temp net err" }
func (tempNetErr) Timeout() bool   { return false }
func (tempNetErr) Temporary() bool { return true }

func TestClassifyErr(t *testing.T) {
	rateLimited403 := &googleapi.Error{
		Code:   403,
		Errors: []googleapi.ErrorItem{{Reason: "userRateLimitExceeded"}},
	}

	tests := []struct {
		name          string
		in            error
		wantAuth      bool
		wantTransient bool
	}{
		{name: "nil", in: nil},
		{name: "api_401", in: &googleapi.Error{Code: 401}, wantAuth: true},
		{name: "api_403_permission", in: &googleapi.Error{Code: 403}, wantAuth: true},
		{name: "api_403_rate", in: rateLimited403, wantTransient: true},
		{name: "api_429", in: &googleapi.Error{Code: 429}, wantTransient: true},
		{name: "api_500", in: &googleapi.Error{Code: 500}, wantTransient: true},
		{name: "api_404", in: &googleapi.Error{Code: 404}},
		{name: "net_temporary", in: tempNetErr{}, wantTransient: true},
		{name: "plain", in: errors.New("boom")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyErr(tt.in)

			var authErr *mail.AuthError
			if isAuth := errors.As(got, &authErr); isAuth != tt.wantAuth {
				t.Fatalf("auth=%v want=%v (err=%T %v)", isAuth, tt.wantAuth, got, got)
			}
			var fetchErr *mail.TransientFetchError
			if isTransient := errors.As(got, &fetchErr); isTransient != tt.wantTransient {
				t.Fatalf("transient=%v want=%v (err=%T %v)", isTransient, tt.wantTransient, got, got)
			}
		})
	}
}

func TestBuildQuery(t *testing.T) {
	since := time.Unix(1748772000, 0).UTC()

	tests := []struct {
		name  string
		since time.Time
		extra string
		want  string
	}{
		{name: "zero_since", want: ""},
		{name: "zero_since_extra", extra: "to:b@venues.com", want: "to:b@venues.com"},
		{name: "since", since: since, want: "after:1748771999"},
		{name: "since_extra", since: since, extra: "to:b@venues.com", want: "after:1748771999 to:b@venues.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := buildQuery(tt.since, tt.extra); got != tt.want {
				t.Fatalf("buildQuery = %q, want %q", got, tt.want)
			}
		})
	}
}

func b64(s string) string {
	return base64.URLEncoding.EncodeToString([]byte(s))
}

func TestExtractPlainText(t *testing.T) {
	plain := &gmailv1.MessagePart{
		MimeType: "text/plain",
		Body:     &gmailv1.MessagePartBody{Data: b64("hello venue")},
	}
	html := &gmailv1.MessagePart{
		MimeType: "text/html",
		Body:     &gmailv1.MessagePartBody{Data: b64("<b>hello venue</b>")},
	}

	tests := []struct {
		name string
		in   *gmailv1.MessagePart
		want string
	}{
		{name: "nil", in: nil, want: ""},
		{name: "flat_plain", in: plain, want: "hello venue"},
		{
			name: "alternative_prefers_plain",
			in: &gmailv1.MessagePart{
				MimeType: "multipart/alternative",
				Parts:    []*gmailv1.MessagePart{html, plain},
			},
			want: "hello venue",
		},
		{
			name: "nested_multipart",
			in: &gmailv1.MessagePart{
				MimeType: "multipart/mixed",
				Parts: []*gmailv1.MessagePart{{
					MimeType: "multipart/alternative",
					Parts:    []*gmailv1.MessagePart{plain},
				}},
			},
			want: "hello venue",
		},
		{name: "html_only", in: html, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractPlainText(tt.in); got != tt.want {
				t.Fatalf("extractPlainText = %q, want %q", got, tt.want)
			}
		})
	}
}
