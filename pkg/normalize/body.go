// Package normalize turns raw notification messages into comparable plain
// text: it decodes transport-encoded MIME bodies, strips HTML markup and
// canonicalizes extracted vendor strings.
package normalize

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/rushikc/pennywise-sync/pkg/api"
)

// FindBody walks a MIME part tree depth-first and returns the best decoded
// body along with whether it came from an HTML part. At each level HTML is
// preferred over plain text, and a non-empty nested result wins over the
// current level's own text. Returns "" when nothing decodes.
func FindBody(parts []*api.MessagePart) (body string, html bool) {
	if len(parts) == 0 {
		return "", false
	}

	var htmlBody, plainBody string

	for _, part := range parts {
		if part == nil {
			continue
		}

		if part.Body != nil {
			if text, err := DecodePayload(part.Body); err == nil && text != "" {
				switch part.MimeType {
				case "text/html":
					htmlBody = text
				case "text/plain":
					plainBody = text
				}
			}
		}

		if len(part.Parts) > 0 {
			if nested, nestedHTML := FindBody(part.Parts); nested != "" {
				return nested, nestedHTML
			}
		}
	}

	if htmlBody != "" {
		return htmlBody, true
	}
	if plainBody != "" {
		return plainBody, false
	}
	return "", false
}

// Text returns the best-effort plain text for a message. It prefers the full
// decoded body (HTML-stripped when needed) and falls back to the snippet when
// no body is extractable.
func Text(msg *api.RawMessage) string {
	var parts []*api.MessagePart
	if msg.Payload != nil {
		parts = msg.Payload.Parts
		if len(parts) == 0 && msg.Payload.Body != nil {
			parts = []*api.MessagePart{msg.Payload}
		}
	}

	body, html := FindBody(parts)
	if body == "" {
		return CleanSnippet(msg.Snippet)
	}
	if html || (msg.Payload != nil && msg.Payload.MimeType == "text/html") {
		return ExtractPlainText(body)
	}
	return body
}

// CleanSnippet fixes provider quirks in the short preview text. Some
// notification templates double the salutation.
func CleanSnippet(snippet string) string {
	return strings.Replace(snippet, "Dear Customer,Dear Customer,", "Dear Customer,", 1)
}

// DecodePayload decodes a transport-encoded part payload: a base64 string
// (URL-safe alphabet allowed) or a numeric byte array. Malformed input
// returns an error instead of panicking so one bad part never aborts a batch.
func DecodePayload(data any) (string, error) {
	switch v := data.(type) {
	case string:
		if v == "" {
			return "", fmt.Errorf("empty payload")
		}
		return decodeBase64(v)
	case []byte:
		return string(v), nil
	case []any:
		return decodeByteArray(v)
	default:
		return "", fmt.Errorf("unsupported payload type %T", data)
	}
}

// decodeBase64 decodes after applying URL-safe character substitution, so
// both standard and URL-safe alphabets are accepted.
func decodeBase64(s string) (string, error) {
	s = strings.ReplaceAll(s, "-", "+")
	s = strings.ReplaceAll(s, "_", "/")

	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return string(b), nil
	}

	b, err := base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
	if err != nil {
		return "", fmt.Errorf("decoding base64 payload: %w", err)
	}
	return string(b), nil
}

// decodeByteArray converts a JSON-decoded numeric array into text.
func decodeByteArray(values []any) (string, error) {
	if len(values) == 0 {
		return "", fmt.Errorf("empty byte array")
	}

	buf := make([]byte, 0, len(values))
	for i, v := range values {
		switch n := v.(type) {
		case float64:
			if n < 0 || n > 255 || n != float64(int(n)) {
				return "", fmt.Errorf("byte array element %d out of range: %v", i, n)
			}
			buf = append(buf, byte(n))
		case int:
			if n < 0 || n > 255 {
				return "", fmt.Errorf("byte array element %d out of range: %d", i, n)
			}
			buf = append(buf, byte(n))
		default:
			return "", fmt.Errorf("byte array element %d has type %T", i, v)
		}
	}
	return string(buf), nil
}
