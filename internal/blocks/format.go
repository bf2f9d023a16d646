package blocks

import (
	"strings"

	"github.com/libraryops/patron-blocks/internal/i18n"
	"github.com/libraryops/patron-blocks/internal/models"
)

// Localizer translates a message ID into the caller's language.
type Localizer interface {
	Localize(id string) string
}

// Formatter turns normalized blocks into display rows.
type Formatter struct {
	loc Localizer
}

// NewFormatter creates a Formatter.
func NewFormatter(loc Localizer) *Formatter {
	return &Formatter{loc: loc}
}

// Type returns the manual block type, or the localized automated label.
func (f *Formatter) Type(b models.Block) string {
	if b.Type != "" {
		return b.Type
	}
	return f.loc.Localize(i18n.MsgAutomatedType)
}

// BlockedActions joins the labels of the blocked actions in the fixed order
// borrowing, renewals, requests.
func (f *Formatter) BlockedActions(a models.BlockedActions) string {
	if !a.Any() {
		return ""
	}
	labels := make([]string, 0, 3)
	if a.Borrowing {
		labels = append(labels, f.loc.Localize(i18n.MsgActionBorrowing))
	}
	if a.Renewals {
		labels = append(labels, f.loc.Localize(i18n.MsgActionRenewals))
	}
	if a.Requests {
		labels = append(labels, f.loc.Localize(i18n.MsgActionRequests))
	}
	return strings.Join(labels, ", ")
}

// Row formats a single block.
func (f *Formatter) Row(b models.Block) models.DisplayRow {
	return models.DisplayRow{
		ID:             b.ID,
		Kind:           b.Kind,
		Type:           f.Type(b),
		Description:    b.Description,
		BlockedActions: f.BlockedActions(b.Actions),
	}
}

// Rows formats bs in order.
func (f *Formatter) Rows(bs []models.Block) []models.DisplayRow {
	rows := make([]models.DisplayRow, len(bs))
	for i, b := range bs {
		rows[i] = f.Row(b)
	}
	return rows
}
