package normalize

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/rushikc/pennywise-sync/pkg/api"
)

// vendorShapeRe detects the "<identifier-with-@> <display name>" shape UPI
// notifications use: one non-space run containing "@", whitespace, then the
// remainder.
var vendorShapeRe = regexp.MustCompile(`^([^\s@]+@[^\s@]+)\s+(.+)$`)

// Vendor canonicalizes a raw counterparty string. When the input is a payment
// identifier followed by a display name, the two are reordered to
// "NAME identifier" so vendor strings compare equal regardless of which order
// the notification used. Upper-casing and truncation to api.VendorMaxLen are
// applied either way.
//
// Vendor is pure and idempotent: truncation runs before the reorder detection
// so both see the string a second invocation would, and the reorder is
// skipped when the display-name remainder itself contains "@". Applying
// Vendor to its own output never changes it.
func Vendor(raw string) string {
	v := strings.TrimSpace(raw)

	if utf8.RuneCountInString(v) > api.VendorMaxLen {
		// Trim again: the cut can land right after a space.
		v = strings.TrimSpace(string([]rune(v)[:api.VendorMaxLen]))
	}

	// The reorder never grows the string, so the length bound holds.
	if m := vendorShapeRe.FindStringSubmatch(v); m != nil {
		id := strings.TrimSpace(m[1])
		name := strings.TrimSpace(m[2])
		if id != "" && name != "" && !strings.Contains(name, "@") {
			v = name + " " + id
		}
	}

	return strings.ToUpper(v)
}
