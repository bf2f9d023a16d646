package i18n

import (
	goi18n "github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

// Message IDs used by the patron blocks list.
const (
	MsgColumnType          = "blocks.columns.type"
	MsgColumnDesc          = "blocks.columns.desc"
	MsgColumnBlocked       = "blocks.columns.blocked"
	MsgAutomatedType       = "blocks.columns.automated.type"
	MsgActionBorrowing     = "blocks.columns.borrowing"
	MsgActionRenewals      = "blocks.columns.renewals"
	MsgActionRequests      = "blocks.columns.requests"
	MsgPanelLabel          = "blocks.label"
	MsgCreateButton        = "blocks.buttons.add"
	MsgErrorPanelNotFound  = "blocks.errors.panelNotFound"
	MsgErrorInvalidSortKey = "blocks.errors.invalidSortKey"
)

// builtinMessages returns the catalog compiled into the binary. JSON files loaded with
// LoadDir override entries with the same ID.
func builtinMessages() map[language.Tag][]*goi18n.Message {
	return map[language.Tag][]*goi18n.Message{
		language.English: {
			{ID: MsgColumnType, Other: "Type"},
			{ID: MsgColumnDesc, Other: "Display description"},
			{ID: MsgColumnBlocked, Other: "Blocked actions"},
			{ID: MsgAutomatedType, Other: "Automated"},
			{ID: MsgActionBorrowing, Other: "Borrowing"},
			{ID: MsgActionRenewals, Other: "Renewals"},
			{ID: MsgActionRequests, Other: "Requests"},
			{ID: MsgPanelLabel, Other: "Patron blocks"},
			{ID: MsgCreateButton, Other: "Create block"},
			{ID: MsgErrorPanelNotFound, Other: "Patron blocks panel not found"},
			{ID: MsgErrorInvalidSortKey, Other: "Unknown sort column"},
		},
		language.German: {
			{ID: MsgColumnType, Other: "Typ"},
			{ID: MsgColumnDesc, Other: "Beschreibung"},
			{ID: MsgColumnBlocked, Other: "Gesperrte Aktionen"},
			{ID: MsgAutomatedType, Other: "Automatisch"},
			{ID: MsgActionBorrowing, Other: "Ausleihe"},
			{ID: MsgActionRenewals, Other: "Verlängerungen"},
			{ID: MsgActionRequests, Other: "Vormerkungen"},
			{ID: MsgPanelLabel, Other: "Benutzersperren"},
			{ID: MsgCreateButton, Other: "Sperre anlegen"},
		},
		language.Spanish: {
			{ID: MsgColumnType, Other: "Tipo"},
			{ID: MsgColumnDesc, Other: "Descripción"},
			{ID: MsgColumnBlocked, Other: "Acciones bloqueadas"},
			{ID: MsgAutomatedType, Other: "Automatizado"},
			{ID: MsgActionBorrowing, Other: "Préstamo"},
			{ID: MsgActionRenewals, Other: "Renovaciones"},
			{ID: MsgActionRequests, Other: "Solicitudes"},
			{ID: MsgPanelLabel, Other: "Bloqueos del usuario"},
			{ID: MsgCreateButton, Other: "Crear bloqueo"},
		},
	}
}
