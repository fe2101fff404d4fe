// Package tagmap resolves vendor strings against the learned vendor-to-tag
// mappings. The pipeline loads one immutable snapshot per batch run; new
// mappings are written by the tagging UI and picked up on the next load.
package tagmap

import (
	"strings"

	"github.com/rushikc/pennywise-sync/pkg/api"
)

// Map is an immutable snapshot of the vendor-tag store.
type Map struct {
	exact   map[string]string
	entries []api.VendorTag
}

// New builds a snapshot from store entries. Later entries win on duplicate
// vendors, matching last-write-wins in the store.
func New(entries []api.VendorTag) *Map {
	exact := make(map[string]string, len(entries))
	for _, e := range entries {
		if e.Vendor != "" && e.Tag != "" {
			exact[e.Vendor] = e.Tag
		}
	}
	return &Map{exact: exact, entries: entries}
}

// Len returns the number of entries in the snapshot.
func (m *Map) Len() int {
	return len(m.entries)
}

// Lookup returns the tag for a canonicalized vendor string. Exact,
// case-sensitive match only; both sides are expected to have gone through the
// same normalization.
func (m *Map) Lookup(vendor string) (string, bool) {
	tag, ok := m.exact[vendor]
	return tag, ok
}

// LookupSubstring returns the tag of the first mapping whose vendor is a
// case-insensitive substring of the given vendor string. Used by the tag
// backfill, where stored vendors may carry extra identifier text around the
// mapped name.
func (m *Map) LookupSubstring(vendor string) (string, bool) {
	upper := strings.ToUpper(vendor)
	for _, e := range m.entries {
		if e.Vendor == "" || e.Tag == "" {
			continue
		}
		if strings.Contains(upper, strings.ToUpper(e.Vendor)) {
			return e.Tag, true
		}
	}
	return "", false
}
