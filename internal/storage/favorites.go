package storage

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/atinyakov/GalleryKeeper/internal/errs"
	"github.com/atinyakov/GalleryKeeper/internal/models"
	"go.uber.org/zap"
)

// DefaultFavoriteRetentionDays is the session age purged by ClearOldFavoriteSessions
// when no positive age is given.
const DefaultFavoriteRetentionDays = 30

// FavoriteSessions returns a copy of every favorite session keyed by id.
func (s *Store) FavoriteSessions(ctx context.Context) map[string]models.FavoriteSession {
	s.loadForRead(ctx)
	s.sessions.mu.RLock()
	defer s.sessions.mu.RUnlock()
	return s.sessions.snapshot()
}

// FavoriteAnalytics returns a copy of the per-photo analytics keyed by photo id.
func (s *Store) FavoriteAnalytics(ctx context.Context) map[string]models.FavoriteAnalytics {
	s.loadForRead(ctx)
	s.sessions.mu.RLock()
	defer s.sessions.mu.RUnlock()
	return s.analyticsSnapshot()
}

// FavoritesSnapshot returns sessions and analytics read under one lock, so the
// two always agree.
func (s *Store) FavoritesSnapshot(ctx context.Context) ([]models.FavoriteSession, map[string]models.FavoriteAnalytics) {
	s.loadForRead(ctx)
	s.sessions.mu.RLock()
	defer s.sessions.mu.RUnlock()

	sessions := make([]models.FavoriteSession, 0, len(s.sessions.rows))
	for _, sess := range s.sessions.rows {
		sessions = append(sessions, sess.Clone())
	}
	return sessions, s.analyticsSnapshot()
}

func (s *Store) analyticsSnapshot() map[string]models.FavoriteAnalytics {
	out := make(map[string]models.FavoriteAnalytics, len(s.favIndex))
	for id, a := range s.favIndex {
		out[id] = a.Clone()
	}
	return out
}

// UpdateFavorites toggles photoID in the session identified by (shareToken,
// clientID), creating the session on first add and deleting it when its last
// favorite is removed. Adding a present photo and removing an absent one
// change nothing. The session and the analytics index
// are updated inside one critical section after the session write succeeded.
func (s *Store) UpdateFavorites(
	ctx context.Context,
	shareToken, clientID, photoID string,
	action models.FavoriteAction,
	info *models.ClientInfo,
) (models.FavoriteSession, error) {
	if err := s.ensureLoaded(ctx); err != nil {
		return models.FavoriteSession{}, err
	}
	if !action.Valid() {
		return models.FavoriteSession{}, errs.Validationf("unknown favorite action %q", action)
	}
	if strings.TrimSpace(clientID) == "" || strings.TrimSpace(photoID) == "" {
		return models.FavoriteSession{}, errs.Validationf("client identifier and photo id are required")
	}

	share, err := s.ShareByToken(ctx, shareToken)
	if err != nil {
		return models.FavoriteSession{}, err
	}
	if action == models.FavoriteAdd {
		p, err := s.Photo(ctx, photoID)
		if err != nil {
			return models.FavoriteSession{}, err
		}
		if p.CollectionID != share.CollectionID {
			return models.FavoriteSession{}, errs.NotFoundf("photo %q in shared collection", photoID)
		}
	}

	s.sessions.mu.Lock()
	defer s.sessions.mu.Unlock()

	now := s.now()
	key := keyOf(shareToken, clientID)
	current, exists := s.sessions.get(s.sessionKeys[key])

	switch {
	case action == models.FavoriteRemove && (!exists || !current.Has(photoID)):
		if !exists {
			return models.FavoriteSession{ShareToken: shareToken, ClientIdentifier: clientID, CollectionID: share.CollectionID}, nil
		}
		return current, nil
	case action == models.FavoriteAdd && exists && current.Has(photoID):
		return current, nil
	}

	next := current
	if !exists {
		next = models.FavoriteSession{
			ID:               newID(),
			ShareToken:       shareToken,
			ClientIdentifier: clientID,
			CollectionID:     share.CollectionID,
			FavoritePhotoIDs: []string{},
			CreatedAt:        now,
		}
	}
	if action == models.FavoriteAdd {
		next.FavoritePhotoIDs = append(next.FavoritePhotoIDs, photoID)
	} else {
		next.FavoritePhotoIDs = slices.DeleteFunc(next.FavoritePhotoIDs, func(id string) bool { return id == photoID })
	}
	if info != nil {
		ci := *info
		next.ClientInfo = &ci
	}
	next.LastUpdatedAt = now

	// A session without favorites is deleted, so add followed by remove
	// leaves no trace.
	if len(next.FavoritePhotoIDs) == 0 {
		if err := s.persist(ctx, remove(TableFavoriteSessions, next.ID)); err != nil {
			return models.FavoriteSession{}, err
		}
		delete(s.sessions.rows, next.ID)
		delete(s.sessionKeys, key)
		s.indexRemove(next.ID, photoID)
		return next, nil
	}

	m, err := upsert(TableFavoriteSessions, next.ID, next)
	if err != nil {
		return models.FavoriteSession{}, err
	}
	if err := s.persist(ctx, m); err != nil {
		return models.FavoriteSession{}, err
	}

	s.sessions.rows[next.ID] = next.Clone()
	s.sessionKeys[key] = next.ID
	if action == models.FavoriteAdd {
		s.indexAdd(next, photoID)
	} else {
		s.indexRemove(next.ID, photoID)
	}
	return next, nil
}

// ClearOldFavoriteSessions deletes sessions last updated more than daysOld
// days ago and removes them from every analytics entry. Entries left without
// sessions are dropped. It returns the number of sessions removed.
func (s *Store) ClearOldFavoriteSessions(ctx context.Context, daysOld int) (int, error) {
	if err := s.ensureLoaded(ctx); err != nil {
		return 0, err
	}
	if daysOld <= 0 {
		daysOld = DefaultFavoriteRetentionDays
	}
	cutoff := s.now().Add(-time.Duration(daysOld) * 24 * time.Hour)

	s.sessions.mu.Lock()
	defer s.sessions.mu.Unlock()

	var stale []models.FavoriteSession
	var batch []Mutation
	for id, sess := range s.sessions.rows {
		if sess.LastUpdatedAt.Before(cutoff) {
			stale = append(stale, sess)
			batch = append(batch, remove(TableFavoriteSessions, id))
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}
	if err := s.persist(ctx, batch...); err != nil {
		return 0, err
	}

	for _, sess := range stale {
		for _, photoID := range sess.FavoritePhotoIDs {
			s.indexRemove(sess.ID, photoID)
		}
		delete(s.sessions.rows, sess.ID)
		delete(s.sessionKeys, keyOf(sess.ShareToken, sess.ClientIdentifier))
	}
	s.log.Info("favorite sessions purged", zap.Int("count", len(stale)), zap.Int("days_old", daysOld))
	return len(stale), nil
}
