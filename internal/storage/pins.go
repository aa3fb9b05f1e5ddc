package storage

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/atinyakov/GalleryKeeper/internal/errs"
	"github.com/atinyakov/GalleryKeeper/internal/models"
)

// CreateDownloadPin stores a new PIN. ID and CreatedAt are filled in when empty.
func (s *Store) CreateDownloadPin(ctx context.Context, p models.DownloadPin) (models.DownloadPin, error) {
	if err := s.ensureLoaded(ctx); err != nil {
		return models.DownloadPin{}, err
	}
	if strings.TrimSpace(p.Pin) == "" || strings.TrimSpace(p.CollectionID) == "" {
		return models.DownloadPin{}, errs.Validationf("pin and collection id are required")
	}
	if p.ID == "" {
		p.ID = newID()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
	}

	s.pins.mu.Lock()
	defer s.pins.mu.Unlock()

	m, err := upsert(TableDownloadPins, p.ID, p)
	if err != nil {
		return models.DownloadPin{}, err
	}
	if err := s.persist(ctx, m); err != nil {
		return models.DownloadPin{}, err
	}
	s.pins.rows[p.ID] = clonePin(p)
	return p, nil
}

// DownloadPin returns one PIN by id.
func (s *Store) DownloadPin(ctx context.Context, id string) (models.DownloadPin, error) {
	if err := s.ensureLoaded(ctx); err != nil {
		return models.DownloadPin{}, err
	}
	s.pins.mu.RLock()
	defer s.pins.mu.RUnlock()
	p, ok := s.pins.get(id)
	if !ok {
		return models.DownloadPin{}, errs.NotFoundf("download pin %q", id)
	}
	return p, nil
}

// FindDownloadPins returns the unexpired PINs whose code equals pin, newest first.
func (s *Store) FindDownloadPins(ctx context.Context, pin string, now time.Time) []models.DownloadPin {
	s.loadForRead(ctx)
	s.pins.mu.RLock()
	defer s.pins.mu.RUnlock()

	var out []models.DownloadPin
	for _, p := range s.pins.rows {
		if p.Pin == pin && !p.Expired(now) {
			out = append(out, clonePin(p))
		}
	}
	sortNewestFirst(out)
	return out
}

// ActiveDownloadPins returns the unexpired, non-exhausted PINs gating
// collectionID or any of its photos, newest first.
func (s *Store) ActiveDownloadPins(ctx context.Context, collectionID string, now time.Time) []models.DownloadPin {
	s.loadForRead(ctx)
	s.pins.mu.RLock()
	defer s.pins.mu.RUnlock()

	var out []models.DownloadPin
	for _, p := range s.pins.rows {
		if p.CollectionID == collectionID && !p.Expired(now) && !p.Exhausted() {
			out = append(out, clonePin(p))
		}
	}
	sortNewestFirst(out)
	return out
}

func sortNewestFirst(pins []models.DownloadPin) {
	sort.Slice(pins, func(i, j int) bool {
		if pins[i].CreatedAt.Equal(pins[j].CreatedAt) {
			return pins[i].ID > pins[j].ID
		}
		return pins[i].CreatedAt.After(pins[j].CreatedAt)
	})
}

// MutateDownloadPin runs fn on a copy of the PIN while holding the PIN's key
// lock, then persists the copy if its attempt counter or use time changed.
// Concurrent calls for the same PIN are serialized, so increments are never
// lost. fn's error is returned after the write; a write failure wins.
func (s *Store) MutateDownloadPin(ctx context.Context, id string, fn func(*models.DownloadPin) error) (models.DownloadPin, error) {
	if err := s.ensureLoaded(ctx); err != nil {
		return models.DownloadPin{}, err
	}
	unlock := s.pinLocks.Lock(id)
	defer unlock()

	s.pins.mu.RLock()
	current, ok := s.pins.get(id)
	s.pins.mu.RUnlock()
	if !ok {
		return models.DownloadPin{}, errs.NotFoundf("download pin %q", id)
	}

	next := clonePin(current)
	fnErr := fn(&next)
	next.ID = current.ID

	if next.Attempts == current.Attempts && sameTime(next.UsedAt, current.UsedAt) {
		return next, fnErr
	}

	s.pins.mu.Lock()
	defer s.pins.mu.Unlock()

	m, err := upsert(TableDownloadPins, id, next)
	if err != nil {
		return current, err
	}
	if err := s.persist(ctx, m); err != nil {
		return current, err
	}
	s.pins.rows[id] = clonePin(next)
	return next, fnErr
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

// RecordActivity appends an audit record. ID and CreatedAt are filled in when empty.
func (s *Store) RecordActivity(ctx context.Context, a models.Activity) error {
	if err := s.ensureLoaded(ctx); err != nil {
		return err
	}
	if a.ID == "" {
		a.ID = newID()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now()
	}

	s.activity.mu.Lock()
	defer s.activity.mu.Unlock()

	m, err := upsert(TableActivity, a.ID, a)
	if err != nil {
		return err
	}
	if err := s.persist(ctx, m); err != nil {
		return err
	}
	s.activity.rows[a.ID] = a
	return nil
}

// Activities returns the audit trail, oldest first.
func (s *Store) Activities(ctx context.Context) []models.Activity {
	s.loadForRead(ctx)
	s.activity.mu.RLock()
	defer s.activity.mu.RUnlock()

	out := make([]models.Activity, 0, len(s.activity.rows))
	for _, a := range s.activity.rows {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
