// Package blocks holds the patron block rules shared by the panel and the sweeper:
// which blocks are active, how manual and automated blocks are merged and labelled,
// how the list is sorted and how expired blocks are retired.
package blocks

import (
	"slices"
	"time"

	"github.com/libraryops/patron-blocks/internal/models"
)

// IsActive reports whether b is still in force at now. Blocks without an expiration
// date never lapse; a block expiring exactly at now is still active.
func IsActive(b models.Block, now time.Time) bool {
	return b.ExpiresAt == nil || !b.ExpiresAt.Before(now)
}

// IsExpired reports whether b carries an expiration date at or before now.
func IsExpired(b models.Block, now time.Time) bool {
	return b.ExpiresAt != nil && !b.ExpiresAt.After(now)
}

// Active returns the blocks that are active at now, preserving order.
func Active(bs []models.Block, now time.Time) []models.Block {
	out := make([]models.Block, 0, len(bs))
	for _, b := range bs {
		if IsActive(b, now) {
			out = append(out, b)
		}
	}
	return out
}

// Expired returns the blocks that have expired at now, preserving order.
func Expired(bs []models.Block, now time.Time) []models.Block {
	var out []models.Block
	for _, b := range bs {
		if IsExpired(b, now) {
			out = append(out, b)
		}
	}
	return out
}

// Merge builds the display sequence: every automated block first, then the active
// manual blocks, most recently created first.
func Merge(automated, manual []models.Block, now time.Time) []models.Block {
	active := Active(manual, now)
	slices.SortStableFunc(active, func(a, b models.Block) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	out := make([]models.Block, 0, len(automated)+len(active))
	out = append(out, automated...)
	return append(out, active...)
}

// FromManual adapts a batch of manual blocks.
func FromManual(ms []models.ManualBlock) []models.Block {
	out := make([]models.Block, len(ms))
	for i, m := range ms {
		out[i] = models.FromManual(m)
	}
	return out
}

// FromAutomated adapts a batch of automated blocks.
func FromAutomated(as []models.AutomatedBlock) []models.Block {
	out := make([]models.Block, len(as))
	for i, a := range as {
		out[i] = models.FromAutomated(a)
	}
	return out
}
