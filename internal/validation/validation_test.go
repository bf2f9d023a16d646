package validation

import (
	"strings"
	"testing"
	"time"

	"github.com/libraryops/patron-blocks/internal/models"
)

var fixedNow = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

func ptr(t time.Time) *time.Time { return &t }

func validBlock() *models.ManualBlock {
	return &models.ManualBlock{
		UserID:    "patron-1",
		Type:      "Manual",
		Desc:      "Lost item",
		Borrowing: true,
	}
}

func TestValidator_ValidateCreate(t *testing.T) {
	v := New(func() time.Time { return fixedNow })

	tests := []struct {
		name    string
		mutate  func(b *models.ManualBlock)
		wantErr bool
		errMsg  string
	}{
		{name: "valid block", mutate: func(*models.ManualBlock) {}},
		{
			name:   "patron message stands in for desc",
			mutate: func(b *models.ManualBlock) { b.Desc = ""; b.PatronMessage = "See the desk" },
		},
		{
			name:    "missing user",
			mutate:  func(b *models.ManualBlock) { b.UserID = " " },
			wantErr: true,
			errMsg:  "userId is required",
		},
		{
			name:    "no description at all",
			mutate:  func(b *models.ManualBlock) { b.Desc = "" },
			wantErr: true,
			errMsg:  "desc or patronMessage is required",
		},
		{
			name:    "malformed id",
			mutate:  func(b *models.ManualBlock) { b.ID = "abc" },
			wantErr: true,
			errMsg:  "invalid id",
		},
		{
			name:    "desc too long",
			mutate:  func(b *models.ManualBlock) { b.Desc = strings.Repeat("x", maxDescLength+1) },
			wantErr: true,
			errMsg:  "desc exceeds maximum length",
		},
		{
			name:    "already expired",
			mutate:  func(b *models.ManualBlock) { b.ExpirationDate = ptr(fixedNow.Add(-time.Hour)) },
			wantErr: true,
			errMsg:  "expirationDate must be in the future",
		},
		{
			name:    "expiring exactly now",
			mutate:  func(b *models.ManualBlock) { b.ExpirationDate = ptr(fixedNow) },
			wantErr: true,
			errMsg:  "expirationDate must be in the future",
		},
		{
			name:   "expiring tomorrow",
			mutate: func(b *models.ManualBlock) { b.ExpirationDate = ptr(fixedNow.Add(24 * time.Hour)) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := validBlock()
			tt.mutate(b)

			err := v.ValidateCreate(b)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateCreate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("ValidateCreate() error = %v, want containing %q", err, tt.errMsg)
			}
		})
	}
}

func TestValidator_ValidateUpdate(t *testing.T) {
	v := New(func() time.Time { return fixedNow })

	b := validBlock()
	if err := v.ValidateUpdate(b); err == nil {
		t.Error("ValidateUpdate() without id should fail")
	}

	b.ID = "0b9b3b7e-3c4f-4a55-9f0b-1d2c3e4f5a6b"
	b.ExpirationDate = ptr(fixedNow.Add(-time.Hour))
	if err := v.ValidateUpdate(b); err != nil {
		t.Errorf("ValidateUpdate() error = %v, past expiration is allowed on update", err)
	}
}

func TestNew_DefaultClock(t *testing.T) {
	v := New(nil)
	if v.now == nil {
		t.Fatal("New(nil) left the clock unset")
	}
}
