package gmail

import (
	"encoding/base64"
	"strings"

	gmailv1 "google.golang.org/api/gmail/v1"
)

// extractPlainText walks a MIME part tree and returns the first text/plain
// body found, base64url decoded. For multipart/alternative it prefers
// text/plain over other parts.
func extractPlainText(part *gmailv1.MessagePart) string {
	if part == nil {
		return ""
	}

	if strings.EqualFold(part.MimeType, "text/plain") && part.Body != nil && part.Body.Data != "" {
		return decodeBase64URL(part.Body.Data)
	}

	if len(part.Parts) > 0 {
		for _, sub := range part.Parts {
			if strings.EqualFold(sub.MimeType, "text/plain") {
				if body := extractPlainText(sub); body != "" {
					return body
				}
			}
		}
		for _, sub := range part.Parts {
			if body := extractPlainText(sub); body != "" {
				return body
			}
		}
	}

	return ""
}

func decodeBase64URL(data string) string {
	b, err := base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(strings.TrimRight(data, "="))
	if err != nil {
		return ""
	}
	return string(b)
}
