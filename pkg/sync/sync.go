// Package sync runs the transaction-extraction batch: it computes the pending
// message slice from the stored cursor, runs each message through
// normalization, rule matching and vendor tagging, persists the extracted
// expenses and commits the advanced cursor.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"slices"
	"strings"
	"time"

	"github.com/rushikc/pennywise-sync/pkg/api"
	"github.com/rushikc/pennywise-sync/pkg/normalize"
	"github.com/rushikc/pennywise-sync/pkg/rules"
	"github.com/rushikc/pennywise-sync/pkg/tagmap"
)

// DefaultScope is the mailbox scope used when none is configured.
const DefaultScope = "me"

const cursorKeyPrefix = "lastGmailId"

// Options wires a Runner. Source, Sink, Cursors, Tags and Rules are required;
// Locker is optional (no coordination when absent).
type Options struct {
	Scope   string
	Source  api.MessageSource
	Sink    api.ExpenseSink
	Cursors api.CursorStore
	Tags    api.VendorTagStore
	Locker  api.Locker
	Rules   rules.Loader
	Logger  *slog.Logger
}

// Runner executes sync batches for one mailbox scope.
type Runner struct {
	scope     string
	source    api.MessageSource
	sink      api.ExpenseSink
	cursors   api.CursorStore
	tags      api.VendorTagStore
	locker    api.Locker
	loadRules rules.Loader
	logger    *slog.Logger
}

// New creates a batch runner.
func New(opts Options) (*Runner, error) {
	if opts.Source == nil || opts.Sink == nil || opts.Cursors == nil || opts.Tags == nil {
		return nil, fmt.Errorf("source, sink, cursor store and tag store are required")
	}
	if opts.Rules == nil {
		return nil, fmt.Errorf("rule loader is required")
	}
	if opts.Scope == "" {
		opts.Scope = DefaultScope
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Runner{
		scope:     opts.Scope,
		source:    opts.Source,
		sink:      opts.Sink,
		cursors:   opts.Cursors,
		tags:      opts.Tags,
		locker:    opts.Locker,
		loadRules: opts.Rules,
		logger:    opts.Logger,
	}, nil
}

func (r *Runner) cursorKey() string {
	return cursorKeyPrefix + ":" + r.scope
}

// RunBatch executes one sequential sync batch and returns outcome counts.
//
// Failures at batch start (rule config, tag snapshot, message listing, cursor
// read) abort the run before the cursor is touched; the next run retries from
// the same cursor. Per-message failures are logged and counted but never stop
// the batch. The cursor is committed once, after the batch, to the id of the
// last message attempted.
func (r *Runner) RunBatch(ctx context.Context) (api.Summary, error) {
	var summary api.Summary

	if r.locker != nil {
		lease, err := r.locker.TryAcquire(ctx, r.scope)
		if err != nil {
			if errors.Is(err, api.ErrLocked) {
				return summary, err
			}
			return summary, fmt.Errorf("acquiring sync lease: %w", err)
		}
		defer func() {
			if err := lease.Release(ctx); err != nil {
				r.logger.Warn("failed to release sync lease", "scope", r.scope, "error", err)
			}
		}()
	}

	ruleSet, err := r.loadRules(ctx)
	if err != nil {
		return summary, fmt.Errorf("loading parsing rules: %w", err)
	}

	entries, err := r.tags.GetAll(ctx)
	if err != nil {
		return summary, fmt.Errorf("loading vendor tags: %w", err)
	}
	tags := tagmap.New(entries)

	ids, err := r.source.ListMessageIDs(ctx)
	if err != nil {
		return summary, fmt.Errorf("listing messages: %w", err)
	}

	cursor, err := r.cursors.Get(ctx, r.cursorKey())
	if err != nil {
		return summary, fmt.Errorf("reading cursor: %w", err)
	}

	pending := pendingAfter(chronological(ids), cursor)
	r.logger.Info("computed pending messages",
		"scope", r.scope,
		"listed", len(ids),
		"pending", len(pending),
		"rules", len(ruleSet),
		"vendor_tags", tags.Len(),
	)

	if len(pending) == 0 {
		return summary, nil
	}

	var lastAttempted string
	for _, id := range pending {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		lastAttempted = id
		summary.Processed++

		if r.processMessage(ctx, id, ruleSet, tags) {
			summary.Expenses++
		} else {
			summary.Skipped++
		}
	}

	if err := r.cursors.Set(ctx, r.cursorKey(), lastAttempted); err != nil {
		return summary, fmt.Errorf("committing cursor: %w", err)
	}

	r.logger.Info("batch complete",
		"scope", r.scope,
		"processed", summary.Processed,
		"expenses", summary.Expenses,
		"skipped", summary.Skipped,
		"cursor", lastAttempted,
	)
	return summary, nil
}

// chronological reverses the provider's most-recent-first listing.
func chronological(ids []string) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[len(ids)-1-i] = id
	}
	return out
}

// pendingAfter returns the slice of ids strictly after the cursor position.
// When the cursor is absent or has aged out of the provider's retained list,
// the whole list is pending: full reprocessing over silently skipping a gap.
// The sink's MailID-keyed upsert keeps the reprocess free of duplicates.
func pendingAfter(ids []string, cursor string) []string {
	idx := -1
	if cursor != "" {
		idx = slices.Index(ids, cursor)
	}
	return ids[idx+1:]
}

// processMessage runs the per-message pipeline. Returns true when an expense
// was persisted; every failure path logs and returns false so the batch moves
// on to the next message.
func (r *Runner) processMessage(ctx context.Context, id string, ruleSet []rules.Rule, tags *tagmap.Map) bool {
	msg, err := r.source.GetMessage(ctx, id)
	if err != nil {
		r.logger.Error("failed to fetch message", "mail_id", id, "error", err)
		return false
	}

	snippet := normalize.CleanSnippet(msg.Snippet)

	rule := rules.Select(ruleSet, snippet)
	if rule == nil {
		// Non-transaction mail (promotions etc.); not an error.
		r.logger.Debug("no rule matched", "mail_id", id)
		return false
	}
	if rule.Ignore {
		r.logger.Debug("message matched ignore rule", "mail_id", id, "rule", rule.Type)
		return false
	}

	text := normalize.Text(msg)
	if text == snippet {
		r.logger.Debug("no full body extractable, using snippet", "mail_id", id)
	}

	cost, vendor, err := rules.Extract(rule, text)
	if err != nil {
		r.logger.Warn("extraction failed", "mail_id", id, "rule", rule.Type, "error", err)
		return false
	}

	expense := r.buildExpense(msg, rule, cost, vendor, tags)

	if err := r.sink.Put(ctx, expense); err != nil {
		r.logger.Error("failed to persist expense",
			"mail_id", id,
			"rule", rule.Type,
			"vendor", expense.Vendor,
			"error", err,
		)
		return false
	}

	r.logger.Info("extracted expense",
		"mail_id", id,
		"rule", rule.Type,
		"cost", expense.Cost,
		"vendor", expense.Vendor,
		"tag", expense.Tag,
	)
	return true
}

// buildExpense assembles the final record from extracted fields and message
// metadata.
func (r *Runner) buildExpense(msg *api.RawMessage, rule *rules.Rule, cost float64, vendor string, tags *tagmap.Map) *api.Expense {
	canonical := normalize.Vendor(vendor)

	expense := &api.Expense{
		MailID:       msg.ID,
		Cost:         cost,
		CostType:     rule.CostType,
		Type:         rule.Type,
		Vendor:       canonical,
		Date:         msg.InternalDate,
		ModifiedDate: time.Now().UnixMilli(),
		User:         ownerFromHeaders(msg.Headers),
	}

	if tag, ok := tags.Lookup(canonical); ok {
		expense.Tag = tag
	}

	return expense
}

// ownerFromHeaders derives the owning user from the first recipient address:
// the local part before "@", lower-cased. Malformed headers yield "".
func ownerFromHeaders(headers map[string]string) string {
	to := headers["To"]
	if to == "" {
		return ""
	}

	addrs, err := mail.ParseAddressList(to)
	if err != nil || len(addrs) == 0 {
		return ""
	}

	local, _, found := strings.Cut(addrs[0].Address, "@")
	if !found {
		return ""
	}
	return strings.ToLower(local)
}
