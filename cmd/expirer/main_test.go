package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/libraryops/patron-blocks/internal/blocks"
	"github.com/libraryops/patron-blocks/internal/models"
)

var sweepNow = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

// mockManualBlockRepository mocks the ManualBlockRepository interface
type mockManualBlockRepository struct {
	mock.Mock
}

func (m *mockManualBlockRepository) Create(ctx context.Context, b *models.ManualBlock) error {
	return m.Called(ctx, b).Error(0)
}

func (m *mockManualBlockRepository) GetByID(ctx context.Context, id string) (*models.ManualBlock, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ManualBlock), args.Error(1)
}

func (m *mockManualBlockRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*models.ManualBlock, int, error) {
	args := m.Called(ctx, userID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]*models.ManualBlock), args.Int(1), args.Error(2)
}

func (m *mockManualBlockRepository) Update(ctx context.Context, b *models.ManualBlock) error {
	return m.Called(ctx, b).Error(0)
}

func (m *mockManualBlockRepository) Delete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockManualBlockRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]*models.ManualBlock, error) {
	args := m.Called(ctx, now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.ManualBlock), args.Error(1)
}

// mockRemover mocks the blocks.Remover interface
type mockRemover struct {
	mock.Mock
}

func (m *mockRemover) SetActiveRecord(ctx context.Context, patronID, blockID string) error {
	return m.Called(ctx, patronID, blockID).Error(0)
}

func (m *mockRemover) DeleteManualBlock(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

// mockNotifier mocks the blocks.Notifier interface
type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) BlockExpired(ctx context.Context, b models.Block, source string) error {
	return m.Called(ctx, b.ID, source).Error(0)
}

func expiredBlock(id, patron string) *models.ManualBlock {
	expires := sweepNow.Add(-time.Hour)
	return &models.ManualBlock{
		ID:             id,
		UserID:         patron,
		Type:           "Manual",
		Desc:           "Overdue fines",
		Borrowing:      true,
		ExpirationDate: &expires,
	}
}

func newSweeper(repo *mockManualBlockRepository, remover *mockRemover, notifier *mockNotifier) *Sweeper {
	opts := []blocks.ExpirerOption{blocks.WithSource("sweeper")}
	if notifier != nil {
		opts = append(opts, blocks.WithNotifier(notifier))
	}
	return &Sweeper{
		repo:      repo,
		expirer:   blocks.NewExpirer(remover, opts...),
		batchSize: 50,
		now:       func() time.Time { return sweepNow },
	}
}

func TestSweeper_SweepExpired(t *testing.T) {
	ctx := context.Background()
	repo := new(mockManualBlockRepository)
	remover := new(mockRemover)
	notifier := new(mockNotifier)

	repo.On("ListExpired", ctx, sweepNow, 50).Return([]*models.ManualBlock{
		expiredBlock("b1", "patron-1"),
		expiredBlock("b2", "patron-2"),
	}, nil)
	remover.On("SetActiveRecord", ctx, "patron-1", "b1").Return(nil)
	remover.On("SetActiveRecord", ctx, "patron-2", "b2").Return(nil)
	remover.On("DeleteManualBlock", ctx, "b1").Return(nil)
	remover.On("DeleteManualBlock", ctx, "b2").Return(nil)
	notifier.On("BlockExpired", ctx, "b1", "sweeper").Return(nil)
	notifier.On("BlockExpired", ctx, "b2", "sweeper").Return(nil)

	report, err := newSweeper(repo, remover, notifier).SweepExpired(ctx)
	require.NoError(t, err)
	assert.Len(t, report.Removed, 2)
	assert.Empty(t, report.Failed)

	remover.AssertExpectations(t)
	notifier.AssertExpectations(t)
}

func TestSweeper_SweepExpired_NothingDue(t *testing.T) {
	ctx := context.Background()
	repo := new(mockManualBlockRepository)
	remover := new(mockRemover)

	repo.On("ListExpired", ctx, sweepNow, 50).Return([]*models.ManualBlock{}, nil)

	report, err := newSweeper(repo, remover, nil).SweepExpired(ctx)
	require.NoError(t, err)
	assert.Empty(t, report.Removed)
	remover.AssertNotCalled(t, "DeleteManualBlock", mock.Anything, mock.Anything)
}

func TestSweeper_SweepExpired_ListError(t *testing.T) {
	ctx := context.Background()
	repo := new(mockManualBlockRepository)

	repo.On("ListExpired", ctx, sweepNow, 50).Return(nil, errors.New("connection refused"))

	_, err := newSweeper(repo, new(mockRemover), nil).SweepExpired(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to list expired blocks")
}

func TestSweeper_SweepExpired_PartialFailure(t *testing.T) {
	ctx := context.Background()
	repo := new(mockManualBlockRepository)
	remover := new(mockRemover)
	notifier := new(mockNotifier)

	repo.On("ListExpired", ctx, sweepNow, 50).Return([]*models.ManualBlock{
		expiredBlock("b1", "patron-1"),
		expiredBlock("b2", "patron-1"),
	}, nil)
	remover.On("SetActiveRecord", ctx, "patron-1", mock.Anything).Return(nil)
	remover.On("DeleteManualBlock", ctx, "b1").Return(nil)
	remover.On("DeleteManualBlock", ctx, "b2").Return(errors.New("locked"))
	notifier.On("BlockExpired", ctx, "b1", "sweeper").Return(nil)

	report, err := newSweeper(repo, remover, notifier).SweepExpired(ctx)
	require.Error(t, err)
	require.Len(t, report.Removed, 1)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, "b2", report.Failed[0].Block.ID)

	notifier.AssertNotCalled(t, "BlockExpired", ctx, "b2", "sweeper")
}

func TestSweeper_RunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	repo := new(mockManualBlockRepository)

	repo.On("ListExpired", mock.Anything, sweepNow, 50).Return([]*models.ManualBlock{}, nil).Run(func(mock.Arguments) {
		cancel()
	})

	done := make(chan struct{})
	go func() {
		newSweeper(repo, new(mockRemover), nil).Run(ctx, time.Hour)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop after cancel")
	}
	repo.AssertNumberOfCalls(t, "ListExpired", 1)
}
