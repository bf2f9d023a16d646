// Package service provides the record store behind the patron blocks API and the
// Redis and RabbitMQ adapters it uses.
package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/libraryops/patron-blocks/internal/blocks"
	"github.com/libraryops/patron-blocks/internal/db"
	"github.com/libraryops/patron-blocks/internal/db/repository"
	"github.com/libraryops/patron-blocks/internal/models"
	"github.com/libraryops/patron-blocks/internal/validation"
	"github.com/libraryops/patron-blocks/pkg/logger"
)

const maxManualBlocksPerPatron = 1000

// RecordStore holds manual blocks in Postgres, proxies automated blocks from the
// policy engine and tracks each patron's active record.
type RecordStore struct {
	repo      repository.ManualBlockRepository
	automated AutomatedSource
	active    ActiveRecords
	validator *validation.Validator
}

// NewRecordStore creates a new RecordStore.
func NewRecordStore(
	repo repository.ManualBlockRepository,
	automated AutomatedSource,
	active ActiveRecords,
	validator *validation.Validator,
) *RecordStore {
	return &RecordStore{
		repo:      repo,
		automated: automated,
		active:    active,
		validator: validator,
	}
}

// ListManualBlocks returns every manual block of the patron.
func (s *RecordStore) ListManualBlocks(ctx context.Context, patronID string) ([]models.ManualBlock, error) {
	page, err := s.ListManualBlocksPage(ctx, patronID, maxManualBlocksPerPatron, 0)
	if err != nil {
		return nil, err
	}
	return page.ManualBlocks, nil
}

// ListManualBlocksPage returns one page of the patron's manual blocks.
func (s *RecordStore) ListManualBlocksPage(
	ctx context.Context,
	patronID string,
	limit, offset int,
) (*models.ManualBlockCollection, error) {
	rows, total, err := s.repo.ListByUser(ctx, patronID, limit, offset)
	if err != nil {
		return nil, &ProcessingError{Message: "failed to list manual blocks", Cause: err}
	}

	out := &models.ManualBlockCollection{
		ManualBlocks: make([]models.ManualBlock, 0, len(rows)),
		TotalRecords: total,
	}
	for _, r := range rows {
		out.ManualBlocks = append(out.ManualBlocks, *r)
	}
	return out, nil
}

// GetManualBlock returns a manual block by id.
func (s *RecordStore) GetManualBlock(ctx context.Context, id string) (*models.ManualBlock, error) {
	b, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, s.wrapRepoError(err, "failed to get manual block")
	}
	return b, nil
}

// CreateManualBlock validates and stores a new manual block.
func (s *RecordStore) CreateManualBlock(ctx context.Context, b *models.ManualBlock) error {
	if err := s.validator.ValidateCreate(b); err != nil {
		return &ValidationError{Message: err.Error()}
	}
	if b.Type == "" {
		b.Type = "Manual"
	}

	if err := s.repo.Create(ctx, b); err != nil {
		if db.IsInvalidRecord(err) || db.IsDuplicateKey(err) {
			return &ValidationError{Message: err.Error()}
		}
		return &ProcessingError{Message: "failed to create manual block", Cause: err}
	}

	logger.Log.Info("Manual block created",
		zap.String("blockId", b.ID),
		zap.String("patronId", b.UserID),
	)
	return nil
}

// UpdateManualBlock replaces a manual block.
func (s *RecordStore) UpdateManualBlock(ctx context.Context, b *models.ManualBlock) error {
	if err := s.validator.ValidateUpdate(b); err != nil {
		return &ValidationError{Message: err.Error()}
	}

	if err := s.repo.Update(ctx, b); err != nil {
		return s.wrapRepoError(err, "failed to update manual block")
	}

	logger.Log.Info("Manual block updated",
		zap.String("blockId", b.ID),
		zap.String("patronId", b.UserID),
	)
	return nil
}

// DeleteManualBlock deletes a manual block and clears the active record pointing at it.
func (s *RecordStore) DeleteManualBlock(ctx context.Context, id string) error {
	b, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return goneIfNotFound(s.wrapRepoError(err, "failed to delete manual block"))
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return goneIfNotFound(s.wrapRepoError(err, "failed to delete manual block"))
	}

	if s.active != nil {
		if err := s.active.Clear(ctx, b.UserID, id); err != nil {
			logger.Log.Warn("Failed to clear active record",
				zap.Error(err),
				zap.String("blockId", id),
				zap.String("patronId", b.UserID),
			)
		}
	}

	logger.Log.Info("Manual block deleted",
		zap.String("blockId", id),
		zap.String("patronId", b.UserID),
	)
	return nil
}

// ListAutomatedBlocks returns the automated blocks computed for the patron.
func (s *RecordStore) ListAutomatedBlocks(
	ctx context.Context,
	patronID string,
	limit int,
) ([]models.AutomatedBlock, error) {
	if s.automated == nil {
		return []models.AutomatedBlock{}, nil
	}
	automated, err := s.automated.ListAutomatedBlocks(ctx, patronID, limit)
	if err != nil {
		return nil, &ProcessingError{Message: "failed to list automated blocks", Cause: err}
	}
	return automated, nil
}

// SetActiveRecord points the patron's active record at blockID.
func (s *RecordStore) SetActiveRecord(ctx context.Context, patronID, blockID string) error {
	if s.active == nil {
		return nil
	}
	if err := s.active.Set(ctx, patronID, blockID); err != nil {
		return &ProcessingError{Message: "failed to set active record", Cause: err}
	}
	return nil
}

// GetActiveRecord returns the patron's active record.
func (s *RecordStore) GetActiveRecord(ctx context.Context, patronID string) (*models.ActiveRecord, error) {
	if s.active == nil {
		return nil, ErrNoActiveRecord
	}
	id, err := s.active.Get(ctx, patronID)
	if err != nil {
		if errors.Is(err, ErrNoActiveRecord) {
			return nil, err
		}
		return nil, &ProcessingError{Message: "failed to get active record", Cause: err}
	}
	return &models.ActiveRecord{BlockID: id}, nil
}

func (s *RecordStore) wrapRepoError(err error, msg string) error {
	switch {
	case db.IsNotFound(err), db.IsInvalidID(err):
		return fmt.Errorf("%s: %w", msg, ErrBlockNotFound)
	default:
		return &ProcessingError{Message: msg, Cause: err}
	}
}

// goneIfNotFound lets the expiry engine tell a block removed elsewhere from a failed delete.
func goneIfNotFound(err error) error {
	if errors.Is(err, ErrBlockNotFound) {
		return fmt.Errorf("%w: %w", err, blocks.ErrGone)
	}
	return err
}
