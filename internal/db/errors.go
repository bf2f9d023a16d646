package db

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound is returned when a requested record is not found.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateKey is returned when attempting to insert a duplicate record.
	ErrDuplicateKey = errors.New("duplicate key violation")

	// ErrInvalidRecord is returned when a row violates a check constraint.
	ErrInvalidRecord = errors.New("record violates a constraint")

	// ErrInvalidID is returned when an id is not a valid UUID.
	ErrInvalidID = errors.New("invalid record id")
)

// WrapError wraps database errors with additional context and maps them to custom error types.
func WrapError(err error, operation string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", operation, ErrNotFound)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%s: %w (constraint: %s)", operation, ErrDuplicateKey, pgErr.ConstraintName)
		case "23514", "23502": // check_violation, not_null_violation
			return fmt.Errorf("%s: %w (constraint: %s)", operation, ErrInvalidRecord, pgErr.ConstraintName)
		case "22P02": // invalid_text_representation
			return fmt.Errorf("%s: %w: %s", operation, ErrInvalidID, pgErr.Message)
		default:
			return fmt.Errorf("%s: database error [%s]: %w", operation, pgErr.Code, err)
		}
	}

	return fmt.Errorf("%s: %w", operation, err)
}

// IsNotFound returns true if the error is an ErrNotFound error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsDuplicateKey returns true if the error is an ErrDuplicateKey error.
func IsDuplicateKey(err error) bool {
	return errors.Is(err, ErrDuplicateKey)
}

// IsInvalidRecord returns true if the error is an ErrInvalidRecord error.
func IsInvalidRecord(err error) bool {
	return errors.Is(err, ErrInvalidRecord)
}

// IsInvalidID returns true if the error is an ErrInvalidID error.
func IsInvalidID(err error) bool {
	return errors.Is(err, ErrInvalidID)
}
