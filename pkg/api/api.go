// Package api defines the core data structures and collaborator interfaces
// for the pennywise sync pipeline.
package api

import (
	"context"
	"errors"
)

// Cost direction of an expense.
const (
	CostTypeDebit  = "debit"
	CostTypeCredit = "credit"
)

// VendorMaxLen is the length expense vendor strings are truncated to.
const VendorMaxLen = 100

// Expense is a structured transaction extracted from a notification mail.
type Expense struct {
	// MailID is the source message identifier. It doubles as the
	// idempotency key: persisting the same MailID twice overwrites the
	// earlier record instead of duplicating it.
	MailID string `json:"mailId"`
	// Cost is the transaction amount as it appears in the source text.
	Cost float64 `json:"cost"`
	// CostType is CostTypeDebit or CostTypeCredit.
	CostType string `json:"costType"`
	// Type labels the transaction channel, e.g. "upi-debit", "credit-card".
	Type string `json:"type"`
	// Vendor is the canonicalized counterparty string (upper-cased,
	// truncated to VendorMaxLen).
	Vendor string `json:"vendor"`
	// Tag is the resolved category. Empty until a vendor mapping exists.
	Tag string `json:"tag,omitempty"`
	// Date is the provider receive timestamp in epoch milliseconds.
	Date int64 `json:"date"`
	// ModifiedDate is when the record was last written, epoch milliseconds.
	ModifiedDate int64 `json:"modifiedDate"`
	// User is the local part of the recipient address, lower-cased.
	User string `json:"user"`
}

// RawMessage is a notification mail as fetched from the message provider.
// It is read-only input; the pipeline never mutates or owns it.
type RawMessage struct {
	ID           string            `json:"id"`
	Snippet      string            `json:"snippet"`
	Payload      *MessagePart      `json:"payload"`
	Headers      map[string]string `json:"headers"`
	InternalDate int64             `json:"internalDate"`
}

// MessagePart is one node of a MIME part tree.
type MessagePart struct {
	MimeType string `json:"mimeType"`
	// Body holds the transport-encoded payload: either a base64 string
	// (URL-safe alphabet allowed) or a numeric byte array, matching the
	// two shapes the provider emits.
	Body  any            `json:"body,omitempty"`
	Parts []*MessagePart `json:"parts,omitempty"`
}

// VendorTag maps a canonical vendor string to a user-chosen tag.
type VendorTag struct {
	Vendor       string `json:"vendor"`
	Tag          string `json:"tag"`
	ModifiedDate int64  `json:"modifiedDate"`
}

// Summary reports the outcome of one batch run.
type Summary struct {
	Processed int `json:"processed"`
	Expenses  int `json:"expenses"`
	Skipped   int `json:"skipped"`
}

// MessageSource lists and fetches raw messages for a mailbox.
// ListMessageIDs returns ids most-recent-first with a bounded page size,
// matching the provider default.
type MessageSource interface {
	ListMessageIDs(ctx context.Context) ([]string, error)
	GetMessage(ctx context.Context, id string) (*RawMessage, error)
}

// ExpenseSink persists expenses keyed by MailID, so repeated writes for the
// same message overwrite rather than duplicate.
type ExpenseSink interface {
	Put(ctx context.Context, expense *Expense) error
	// ListSince returns expenses modified at or after the given epoch-millis
	// timestamp, used by the tag backfill.
	ListSince(ctx context.Context, sinceMillis int64) ([]*Expense, error)
}

// CursorStore persists small named values: the last processed message id per
// mailbox scope and the tag-backfill watermark. Get returns "" when the key
// has never been set.
type CursorStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}

// VendorTagStore reads the learned vendor-to-tag mappings. The pipeline takes
// one snapshot per run; new mappings are written by the tagging UI, not here.
type VendorTagStore interface {
	GetAll(ctx context.Context) ([]VendorTag, error)
}

// ErrLocked is returned by Locker.TryAcquire when another run holds the lease
// for the same scope.
var ErrLocked = errors.New("sync already running for this scope")

// Lease is a held mutual-exclusion lease for one mailbox scope.
type Lease interface {
	Release(ctx context.Context) error
}

// Locker serializes batch runs per mailbox scope. Overlapping triggers would
// otherwise compute overlapping pending slices and race on the cursor commit.
type Locker interface {
	TryAcquire(ctx context.Context, scope string) (Lease, error)
}
