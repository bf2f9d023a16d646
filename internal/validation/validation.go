// Package validation checks manual block records before they reach the database.
package validation

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/libraryops/patron-blocks/internal/models"
)

const (
	maxDescLength    = 1000
	maxMessageLength = 1000
	maxTypeLength    = 100
)

// Validator validates manual blocks.
type Validator struct {
	validate *validator.Validate
	now      func() time.Time
}

// New creates a Validator. A nil clock means time.Now.
func New(now func() time.Time) *Validator {
	if now == nil {
		now = time.Now
	}
	return &Validator{
		validate: validator.New(validator.WithRequiredStructEnabled()),
		now:      now,
	}
}

// ValidateCreate checks a block about to be created. A new block cannot already be expired.
func (v *Validator) ValidateCreate(b *models.ManualBlock) error {
	if err := v.validateFields(b); err != nil {
		return err
	}
	if b.ExpirationDate != nil && !b.ExpirationDate.After(v.now()) {
		return fmt.Errorf("expirationDate must be in the future")
	}
	return nil
}

// ValidateUpdate checks a replacement for an existing block.
func (v *Validator) ValidateUpdate(b *models.ManualBlock) error {
	if err := v.validate.Var(b.ID, "required,uuid"); err != nil {
		return fmt.Errorf("invalid id: %s", b.ID)
	}
	return v.validateFields(b)
}

func (v *Validator) validateFields(b *models.ManualBlock) error {
	if strings.TrimSpace(b.UserID) == "" {
		return fmt.Errorf("userId is required")
	}
	if b.ID != "" {
		if err := v.validate.Var(b.ID, "uuid"); err != nil {
			return fmt.Errorf("invalid id: %s", b.ID)
		}
	}
	if strings.TrimSpace(b.Desc) == "" && strings.TrimSpace(b.PatronMessage) == "" {
		return fmt.Errorf("desc or patronMessage is required")
	}

	checks := []struct {
		field string
		value string
		tag   string
	}{
		{"type", b.Type, fmt.Sprintf("max=%d", maxTypeLength)},
		{"desc", b.Desc, fmt.Sprintf("max=%d", maxDescLength)},
		{"patronMessage", b.PatronMessage, fmt.Sprintf("max=%d", maxMessageLength)},
		{"staffInformation", b.StaffInformation, fmt.Sprintf("max=%d", maxMessageLength)},
	}
	for _, c := range checks {
		if err := v.validate.Var(c.value, c.tag); err != nil {
			return fmt.Errorf("%s exceeds maximum length", c.field)
		}
	}

	return nil
}
