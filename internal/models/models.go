// Package models contains the data models and DTOs for the patron blocks service.
package models

import (
	"time"
)

// BlockKind tells a staff-created block apart from one computed by the policy engine.
type BlockKind string

// BlockKind constants.
const (
	BlockKindManual    BlockKind = "manual"
	BlockKindAutomated BlockKind = "automated"
)

// Metadata carries record store bookkeeping for a manual block.
type Metadata struct {
	CreatedDate     time.Time  `json:"createdDate"`
	UpdatedDate     *time.Time `json:"updatedDate,omitempty"`
	CreatedByUserID string     `json:"createdByUserId,omitempty"`
	UpdatedByUserID string     `json:"updatedByUserId,omitempty"`
}

// ManualBlock is a patron restriction explicitly created by staff.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type ManualBlock struct {
	ID               string     `json:"id"`
	UserID           string     `json:"userId"`
	Type             string     `json:"type"`
	Desc             string     `json:"desc"`
	StaffInformation string     `json:"staffInformation,omitempty"`
	PatronMessage    string     `json:"patronMessage,omitempty"`
	Borrowing        bool       `json:"borrowing"`
	Renewals         bool       `json:"renewals"`
	Requests         bool       `json:"requests"`
	ExpirationDate   *time.Time `json:"expirationDate,omitempty"`
	Metadata         Metadata   `json:"metadata"`
}

// AutomatedBlock is a restriction computed by the external policy engine.
// It never expires and is never deleted by this service.
type AutomatedBlock struct {
	PatronBlockConditionID string `json:"patronBlockConditionId"`
	BlockBorrowing         bool   `json:"blockBorrowing"`
	BlockRenewal           bool   `json:"blockRenewal"`
	BlockRequest           bool   `json:"blockRequest"`
	Message                string `json:"message"`
}

// BlockedActions is the uniform set of action flags shared by both block kinds.
type BlockedActions struct {
	Borrowing bool `json:"borrowing"`
	Renewals  bool `json:"renewals"`
	Requests  bool `json:"requests"`
}

// Any reports whether at least one action is blocked.
func (a BlockedActions) Any() bool {
	return a.Borrowing || a.Renewals || a.Requests
}

// Block is the normalized form of a manual or automated block.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type Block struct {
	Kind        BlockKind      `json:"kind"`
	ID          string         `json:"id"`
	PatronID    string         `json:"patronId,omitempty"`
	Type        string         `json:"type,omitempty"`
	Description string         `json:"description"`
	Actions     BlockedActions `json:"actions"`
	CreatedAt   time.Time      `json:"createdAt"`
	ExpiresAt   *time.Time     `json:"expiresAt,omitempty"`
}

// FromManual adapts a manual block. The description falls back to the patron message.
func FromManual(m ManualBlock) Block {
	desc := m.Desc
	if desc == "" {
		desc = m.PatronMessage
	}

	var expires *time.Time
	if m.ExpirationDate != nil {
		t := m.ExpirationDate.UTC()
		expires = &t
	}

	return Block{
		Kind:        BlockKindManual,
		ID:          m.ID,
		PatronID:    m.UserID,
		Type:        m.Type,
		Description: desc,
		Actions: BlockedActions{
			Borrowing: m.Borrowing,
			Renewals:  m.Renewals,
			Requests:  m.Requests,
		},
		CreatedAt: m.Metadata.CreatedDate.UTC(),
		ExpiresAt: expires,
	}
}

// FromAutomated adapts an automated block. Automated rows carry the condition id as
// their row id so the UI can still address them.
func FromAutomated(a AutomatedBlock) Block {
	return Block{
		Kind:        BlockKindAutomated,
		ID:          a.PatronBlockConditionID,
		Description: a.Message,
		Actions: BlockedActions{
			Borrowing: a.BlockBorrowing,
			Renewals:  a.BlockRenewal,
			Requests:  a.BlockRequest,
		},
	}
}

// DisplayRow is one formatted line of the patron blocks list.
type DisplayRow struct {
	ID             string    `json:"id"`
	Kind           BlockKind `json:"kind"`
	Type           string    `json:"type"`
	Description    string    `json:"description"`
	BlockedActions string    `json:"blockedActions"`
}

// ActiveRecord points at the manual block currently being removed for a patron.
type ActiveRecord struct {
	BlockID string `json:"blockId" binding:"required"`
}

// ManualBlockCollection is the record store list envelope.
type ManualBlockCollection struct {
	ManualBlocks []ManualBlock `json:"manualblocks"`
	TotalRecords int           `json:"totalRecords"`
}

// AutomatedBlockCollection is the policy engine list envelope.
type AutomatedBlockCollection struct {
	AutomatedPatronBlocks []AutomatedBlock `json:"automatedPatronBlocks"`
}

// BlockExpiredEvent is published after an expired manual block has been removed.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type BlockExpiredEvent struct {
	BlockID        string    `json:"blockId"`
	PatronID       string    `json:"patronId"`
	Type           string    `json:"type"`
	ExpirationDate time.Time `json:"expirationDate"`
	RemovedAt      time.Time `json:"removedAt"`
	Source         string    `json:"source"`
}

// ErrorResponse represents an error response.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type ErrorResponse struct {
	Timestamp time.Time `json:"timestamp"`
	Status    int       `json:"status"`
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Path      string    `json:"path"`
}
