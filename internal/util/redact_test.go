package util

import "testing"

func TestRedactSecrets(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "empty", in: "", want: ""},
		{
			name: "bearer",
			in:   "googleapi: got 401: Authorization: Bearer ya29.secret-token",
			want: "googleapi: got 401: Authorization: Bearer <redacted>",
		},
		{
			name: "api_key_kv",
			in:   "request failed: gemini_api_key=AIzaSyFake",
			want: "request failed: <redacted_kv>",
		},
		{
			name: "google_key_kv",
			in:   "GOOGLE_API_KEY: AIzaSyFake oops",
			want: "<redacted_kv> oops",
		},
		{name: "plain", in: "no secrets here", want: "no secrets here"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RedactSecrets(tt.in); got != tt.want {
				t.Fatalf("RedactSecrets(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
