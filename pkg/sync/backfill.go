package sync

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rushikc/pennywise-sync/pkg/tagmap"
)

const taggedKeyPrefix = "lastTaggedTime"

// defaultBackfillWindow bounds the first backfill when no watermark exists.
const defaultBackfillWindow = 7 * 24 * time.Hour

// BackfillTags re-tags stored expenses that have a vendor but no tag,
// matching vendors case-insensitively by substring against the current
// vendor-tag snapshot. A lastTaggedTime watermark limits each run to expenses
// modified since the previous one. Returns the number of expenses tagged.
func (r *Runner) BackfillTags(ctx context.Context) (int, error) {
	key := taggedKeyPrefix + ":" + r.scope

	stored, err := r.cursors.Get(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("reading backfill watermark: %w", err)
	}

	since := time.Now().Add(-defaultBackfillWindow).UnixMilli()
	if stored != "" {
		parsed, err := strconv.ParseInt(stored, 10, 64)
		if err != nil {
			r.logger.Warn("invalid backfill watermark, using default window", "value", stored)
		} else {
			since = parsed
		}
	}

	entries, err := r.tags.GetAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("loading vendor tags: %w", err)
	}
	tags := tagmap.New(entries)

	expenses, err := r.sink.ListSince(ctx, since)
	if err != nil {
		return 0, fmt.Errorf("listing expenses since watermark: %w", err)
	}

	r.logger.Info("backfill scan",
		"scope", r.scope,
		"since", since,
		"expenses", len(expenses),
		"vendor_tags", tags.Len(),
	)

	started := time.Now().UnixMilli()
	tagged := 0

	for _, expense := range expenses {
		if err := ctx.Err(); err != nil {
			return tagged, err
		}
		if expense.Tag != "" || expense.Vendor == "" {
			continue
		}

		tag, ok := tags.LookupSubstring(expense.Vendor)
		if !ok {
			continue
		}

		expense.Tag = tag
		expense.ModifiedDate = time.Now().UnixMilli()
		if err := r.sink.Put(ctx, expense); err != nil {
			r.logger.Error("failed to persist backfilled tag",
				"mail_id", expense.MailID,
				"vendor", expense.Vendor,
				"error", err,
			)
			continue
		}

		tagged++
		r.logger.Debug("backfilled tag", "vendor", expense.Vendor, "tag", tag)
	}

	if err := r.cursors.Set(ctx, key, strconv.FormatInt(started, 10)); err != nil {
		return tagged, fmt.Errorf("committing backfill watermark: %w", err)
	}

	r.logger.Info("backfill complete", "scope", r.scope, "tagged", tagged)
	return tagged, nil
}
