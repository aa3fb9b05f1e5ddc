package storage_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/atinyakov/GalleryKeeper/internal/errs"
	"github.com/atinyakov/GalleryKeeper/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedPin(createdAt time.Time, code string) models.DownloadPin {
	return models.DownloadPin{
		Pin:          code,
		CollectionID: "c1",
		Resolution:   models.ResolutionWeb,
		ExpiresAt:    createdAt.Add(24 * time.Hour),
		MaxAttempts:  5,
		CreatedAt:    createdAt,
	}
}

func TestFindDownloadPins(t *testing.T) {
	ctx := context.Background()
	s, _, clk := fixture(t)
	now := clk.Now()

	older, err := s.CreateDownloadPin(ctx, seedPin(now.Add(-2*time.Hour), "1234"))
	require.NoError(t, err)
	newer, err := s.CreateDownloadPin(ctx, seedPin(now.Add(-time.Hour), "1234"))
	require.NoError(t, err)
	_, err = s.CreateDownloadPin(ctx, seedPin(now.Add(-48*time.Hour), "1234"))
	require.NoError(t, err)
	_, err = s.CreateDownloadPin(ctx, seedPin(now, "9999"))
	require.NoError(t, err)

	found := s.FindDownloadPins(ctx, "1234", now)
	require.Len(t, found, 2)
	assert.Equal(t, newer.ID, found[0].ID)
	assert.Equal(t, older.ID, found[1].ID)

	active := s.ActiveDownloadPins(ctx, "c1", now)
	assert.Len(t, active, 3)
	assert.Empty(t, s.ActiveDownloadPins(ctx, "c2", now))
}

func TestCreateDownloadPin_Validation(t *testing.T) {
	ctx := context.Background()
	s, _, _ := fixture(t)

	_, err := s.CreateDownloadPin(ctx, models.DownloadPin{CollectionID: "c1"})
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestMutateDownloadPin_ConcurrentAttempts(t *testing.T) {
	ctx := context.Background()
	s, _, clk := fixture(t)
	pin, err := s.CreateDownloadPin(ctx, seedPin(clk.Now(), "4321"))
	require.NoError(t, err)

	const workers = 50
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.MutateDownloadPin(ctx, pin.ID, func(p *models.DownloadPin) error {
				p.Attempts++
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := s.DownloadPin(ctx, pin.ID)
	require.NoError(t, err)
	assert.Equal(t, workers, got.Attempts)
}

func TestMutateDownloadPin_Errors(t *testing.T) {
	ctx := context.Background()
	s, b, clk := fixture(t)
	pin, err := s.CreateDownloadPin(ctx, seedPin(clk.Now(), "4321"))
	require.NoError(t, err)

	_, err = s.MutateDownloadPin(ctx, "missing", func(*models.DownloadPin) error { return nil })
	assert.ErrorIs(t, err, errs.ErrNotFound)

	// fn's error is returned while its changes are still persisted.
	updated, err := s.MutateDownloadPin(ctx, pin.ID, func(p *models.DownloadPin) error {
		p.Attempts++
		return errs.ErrAccessMismatch
	})
	assert.ErrorIs(t, err, errs.ErrAccessMismatch)
	assert.Equal(t, 1, updated.Attempts)

	// Unchanged pins are not written.
	writes := b.applied
	_, err = s.MutateDownloadPin(ctx, pin.ID, func(*models.DownloadPin) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, writes, b.applied)

	b.applyErr = errors.New("io")
	_, err = s.MutateDownloadPin(ctx, pin.ID, func(p *models.DownloadPin) error {
		p.Attempts++
		return errs.ErrInvalidPin
	})
	assert.ErrorIs(t, err, errs.ErrInternal)

	got, err := s.DownloadPin(ctx, pin.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Attempts)
}

func TestActivities(t *testing.T) {
	ctx := context.Background()
	s, _, clk := fixture(t)

	require.NoError(t, s.RecordActivity(ctx, models.Activity{Type: models.ActivityPinRequested, Success: true}))
	clk.Advance(time.Second)
	require.NoError(t, s.RecordActivity(ctx, models.Activity{Type: models.ActivityPinRejected, Reason: "invalid pin"}))

	got := s.Activities(ctx)
	require.Len(t, got, 2)
	assert.Equal(t, models.ActivityPinRequested, got[0].Type)
	assert.Equal(t, models.ActivityPinRejected, got[1].Type)
	assert.NotEmpty(t, got[1].ID)
}
