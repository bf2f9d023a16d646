// Package repository provides PostgreSQL repositories for patron block records.
package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/libraryops/patron-blocks/internal/db"
	"github.com/libraryops/patron-blocks/internal/models"
)

// ManualBlockRepository defines operations for managing manual patron blocks.
type ManualBlockRepository interface {
	// Create inserts a block and fills in its id and creation date.
	Create(ctx context.Context, block *models.ManualBlock) error

	// GetByID retrieves a block by id.
	GetByID(ctx context.Context, id string) (*models.ManualBlock, error)

	// ListByUser returns a page of a patron's blocks, newest first, and the total count.
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*models.ManualBlock, int, error)

	// Update replaces the mutable fields of a block.
	Update(ctx context.Context, block *models.ManualBlock) error

	// Delete removes a block by id.
	Delete(ctx context.Context, id string) error

	// ListExpired returns blocks whose expiration date is at or before now, oldest first.
	ListExpired(ctx context.Context, now time.Time, limit int) ([]*models.ManualBlock, error)
}

type manualBlockRepository struct {
	pool *pgxpool.Pool
}

// NewManualBlockRepository creates a new ManualBlockRepository.
func NewManualBlockRepository(pool *pgxpool.Pool) ManualBlockRepository {
	return &manualBlockRepository{pool: pool}
}

const manualBlockColumns = `
	id::text, user_id, type, description, staff_information, patron_message,
	borrowing, renewals, requests, expiration_date,
	created_at, updated_at, COALESCE(created_by_user_id, ''), COALESCE(updated_by_user_id, '')
`

func (r *manualBlockRepository) Create(ctx context.Context, block *models.ManualBlock) error {
	query := `
		INSERT INTO manual_blocks (
			user_id, type, description, staff_information, patron_message,
			borrowing, renewals, requests, expiration_date, created_by_user_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''))
		RETURNING id::text, created_at
	`

	err := r.pool.QueryRow(ctx, query,
		block.UserID,
		block.Type,
		block.Desc,
		block.StaffInformation,
		block.PatronMessage,
		block.Borrowing,
		block.Renewals,
		block.Requests,
		block.ExpirationDate,
		block.Metadata.CreatedByUserID,
	).Scan(&block.ID, &block.Metadata.CreatedDate)

	if err != nil {
		return db.WrapError(err, "create manual block")
	}

	return nil
}

func (r *manualBlockRepository) GetByID(ctx context.Context, id string) (*models.ManualBlock, error) {
	query := `SELECT ` + manualBlockColumns + ` FROM manual_blocks WHERE id = $1`

	block, err := scanManualBlock(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, db.WrapError(err, "get manual block")
	}

	return block, nil
}

func (r *manualBlockRepository) ListByUser(
	ctx context.Context,
	userID string,
	limit, offset int,
) ([]*models.ManualBlock, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM manual_blocks WHERE user_id = $1`, userID,
	).Scan(&total); err != nil {
		return nil, 0, db.WrapError(err, "count manual blocks")
	}

	query := `
		SELECT ` + manualBlockColumns + `
		FROM manual_blocks
		WHERE user_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3
	`

	rows, err := r.pool.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, 0, db.WrapError(err, "list manual blocks")
	}
	defer rows.Close()

	blocks, err := collectManualBlocks(rows)
	if err != nil {
		return nil, 0, db.WrapError(err, "list manual blocks")
	}

	return blocks, total, nil
}

func (r *manualBlockRepository) Update(ctx context.Context, block *models.ManualBlock) error {
	query := `
		UPDATE manual_blocks
		SET type = $2,
			description = $3,
			staff_information = $4,
			patron_message = $5,
			borrowing = $6,
			renewals = $7,
			requests = $8,
			expiration_date = $9,
			updated_by_user_id = NULLIF($10, ''),
			updated_at = NOW()
		WHERE id = $1
		RETURNING user_id, created_at, updated_at
	`

	err := r.pool.QueryRow(ctx, query,
		block.ID,
		block.Type,
		block.Desc,
		block.StaffInformation,
		block.PatronMessage,
		block.Borrowing,
		block.Renewals,
		block.Requests,
		block.ExpirationDate,
		block.Metadata.UpdatedByUserID,
	).Scan(&block.UserID, &block.Metadata.CreatedDate, &block.Metadata.UpdatedDate)

	if err != nil {
		return db.WrapError(err, "update manual block")
	}

	return nil
}

func (r *manualBlockRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM manual_blocks WHERE id = $1`, id)
	if err != nil {
		return db.WrapError(err, "delete manual block")
	}

	if tag.RowsAffected() == 0 {
		return db.WrapError(pgx.ErrNoRows, "delete manual block")
	}

	return nil
}

func (r *manualBlockRepository) ListExpired(
	ctx context.Context,
	now time.Time,
	limit int,
) ([]*models.ManualBlock, error) {
	query := `
		SELECT ` + manualBlockColumns + `
		FROM manual_blocks
		WHERE expiration_date IS NOT NULL AND expiration_date <= $1
		ORDER BY expiration_date, id
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, now, limit)
	if err != nil {
		return nil, db.WrapError(err, "list expired manual blocks")
	}
	defer rows.Close()

	blocks, err := collectManualBlocks(rows)
	if err != nil {
		return nil, db.WrapError(err, "list expired manual blocks")
	}

	return blocks, nil
}

func scanManualBlock(row pgx.Row) (*models.ManualBlock, error) {
	var b models.ManualBlock
	err := row.Scan(
		&b.ID,
		&b.UserID,
		&b.Type,
		&b.Desc,
		&b.StaffInformation,
		&b.PatronMessage,
		&b.Borrowing,
		&b.Renewals,
		&b.Requests,
		&b.ExpirationDate,
		&b.Metadata.CreatedDate,
		&b.Metadata.UpdatedDate,
		&b.Metadata.CreatedByUserID,
		&b.Metadata.UpdatedByUserID,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func collectManualBlocks(rows pgx.Rows) ([]*models.ManualBlock, error) {
	var blocks []*models.ManualBlock
	for rows.Next() {
		b, err := scanManualBlock(rows)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return blocks, nil
}
