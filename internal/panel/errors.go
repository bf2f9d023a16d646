package panel

import "errors"

var (
	// ErrAlreadyMounted is returned when Mount runs a second time.
	ErrAlreadyMounted = errors.New("panel already mounted")

	// ErrPanelClosed is returned when the panel was torn down.
	ErrPanelClosed = errors.New("panel closed")

	// ErrPanelNotFound is returned for unknown panel ids.
	ErrPanelNotFound = errors.New("panel not found")

	// ErrAutomatedUnavailable wraps a failed automated fetch. The panel still shows
	// the manual blocks it loaded.
	ErrAutomatedUnavailable = errors.New("automated blocks unavailable")

	// ErrNotOwner is returned when a panel is accessed by someone other than its owner.
	ErrNotOwner = errors.New("panel belongs to another user")
)
