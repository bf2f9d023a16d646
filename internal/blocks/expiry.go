package blocks

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/libraryops/patron-blocks/internal/models"
	"github.com/libraryops/patron-blocks/pkg/logger"
)

const defaultExpiryConcurrency = 8

// ErrGone marks a delete that found no block. Removers wrap it so the expiry engine
// counts the block as removed by someone else.
var ErrGone = errors.New("block already removed")

// Remover is the part of the record store the expiry engine writes to.
type Remover interface {
	SetActiveRecord(ctx context.Context, patronID, blockID string) error
	DeleteManualBlock(ctx context.Context, id string) error
}

// Notifier is told about every block the expiry engine removed.
type Notifier interface {
	BlockExpired(ctx context.Context, b models.Block, source string) error
}

// Outcome is the result of retiring one block.
type Outcome struct {
	Block models.Block
	Err   error
}

// Report summarizes one expiry run.
type Report struct {
	Removed []models.Block
	Failed  []Outcome
}

// Err returns a combined error for the failed removals, or nil.
func (r Report) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	return fmt.Errorf("%d of %d expired blocks not removed: %w",
		len(r.Failed), len(r.Failed)+len(r.Removed), r.Failed[0].Err)
}

// Expirer retires expired manual blocks. Each block is marked as the patron's active
// record and then deleted; blocks are processed concurrently and one failure never
// stops the others.
type Expirer struct {
	remover     Remover
	notifier    Notifier
	source      string
	concurrency int
}

// ExpirerOption configures an Expirer.
type ExpirerOption func(*Expirer)

// WithConcurrency bounds the number of blocks retired at once.
func WithConcurrency(n int) ExpirerOption {
	return func(e *Expirer) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithSource labels metrics and logs with the caller, e.g. "panel" or "sweeper".
func WithSource(source string) ExpirerOption {
	return func(e *Expirer) {
		e.source = source
	}
}

// WithNotifier reports removed blocks to n. Notification errors are logged only.
func WithNotifier(n Notifier) ExpirerOption {
	return func(e *Expirer) {
		e.notifier = n
	}
}

// NewExpirer creates an Expirer.
func NewExpirer(remover Remover, opts ...ExpirerOption) *Expirer {
	e := &Expirer{
		remover:     remover,
		source:      "panel",
		concurrency: defaultExpiryConcurrency,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Expire retires every block in expired and blocks until each one is acknowledged.
func (e *Expirer) Expire(ctx context.Context, expired []models.Block) Report {
	var (
		mu     sync.Mutex
		report Report
		g      errgroup.Group
	)
	g.SetLimit(e.concurrency)

	for _, b := range expired {
		g.Go(func() error {
			err := e.retire(ctx, b)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed = append(report.Failed, Outcome{Block: b, Err: err})
				return nil
			}
			report.Removed = append(report.Removed, b)
			return nil
		})
	}
	_ = g.Wait()

	return report
}

func (e *Expirer) retire(ctx context.Context, b models.Block) error {
	if err := e.remover.SetActiveRecord(ctx, b.PatronID, b.ID); err != nil {
		// the pointer is informational; deletion goes by id
		logger.Log.Warn("Failed to set active record",
			zap.Error(err),
			zap.String("blockId", b.ID),
			zap.String("patronId", b.PatronID),
		)
	}

	err := e.remover.DeleteManualBlock(ctx, b.ID)
	if errors.Is(err, ErrGone) {
		logger.Log.Debug("Expired block already removed",
			zap.String("blockId", b.ID),
			zap.String("patronId", b.PatronID),
			zap.String("source", e.source),
		)
		return nil
	}
	if err != nil {
		expiryFailures.WithLabelValues(e.source).Inc()
		logger.Log.Error("Failed to delete expired block",
			zap.Error(err),
			zap.String("blockId", b.ID),
			zap.String("patronId", b.PatronID),
			zap.String("source", e.source),
		)
		return fmt.Errorf("delete block %s: %w", b.ID, err)
	}

	blocksExpired.WithLabelValues(e.source).Inc()
	logger.Log.Info("Expired block removed",
		zap.String("blockId", b.ID),
		zap.String("patronId", b.PatronID),
		zap.String("source", e.source),
	)

	if e.notifier != nil {
		if err := e.notifier.BlockExpired(ctx, b, e.source); err != nil {
			logger.Log.Warn("Failed to announce expired block",
				zap.Error(err),
				zap.String("blockId", b.ID),
			)
		}
	}
	return nil
}
