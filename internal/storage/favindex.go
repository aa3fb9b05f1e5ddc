package storage

import (
	"slices"
	"sort"

	"github.com/atinyakov/GalleryKeeper/internal/models"
)

type sessionKey struct {
	shareToken string
	client     string
}

func keyOf(shareToken, client string) sessionKey {
	return sessionKey{shareToken: shareToken, client: client}
}

// BuildFavoriteAnalytics derives the per-photo analytics index from sessions.
// Sessions contribute in creation order, so the result is deterministic.
func BuildFavoriteAnalytics(sessions []models.FavoriteSession) map[string]models.FavoriteAnalytics {
	ordered := slices.Clone(sessions)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].CreatedAt.Equal(ordered[j].CreatedAt) {
			return ordered[i].ID < ordered[j].ID
		}
		return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
	})

	out := make(map[string]models.FavoriteAnalytics)
	for _, sess := range ordered {
		for _, photoID := range sess.FavoritePhotoIDs {
			a, ok := out[photoID]
			if !ok {
				a = models.FavoriteAnalytics{PhotoID: photoID, CollectionID: sess.CollectionID}
			}
			if slices.Contains(a.FavoriteSessions, sess.ID) {
				continue
			}
			a.FavoriteSessions = append(a.FavoriteSessions, sess.ID)
			a.TotalFavorites = len(a.FavoriteSessions)
			if sess.LastUpdatedAt.After(a.LastFavoritedAt) {
				a.LastFavoritedAt = sess.LastUpdatedAt
			}
			out[photoID] = a
		}
	}
	return out
}

// indexAdd records that session favorited photo. Callers hold sessions.mu.
func (s *Store) indexAdd(sess models.FavoriteSession, photoID string) {
	a, ok := s.favIndex[photoID]
	if !ok {
		a = &models.FavoriteAnalytics{PhotoID: photoID, CollectionID: sess.CollectionID}
		s.favIndex[photoID] = a
	}
	if slices.Contains(a.FavoriteSessions, sess.ID) {
		return
	}
	a.FavoriteSessions = append(a.FavoriteSessions, sess.ID)
	a.TotalFavorites = len(a.FavoriteSessions)
	a.LastFavoritedAt = sess.LastUpdatedAt
}

// indexRemove drops session from photo's entry, deleting the entry once no
// session references it. Callers hold sessions.mu.
func (s *Store) indexRemove(sessionID, photoID string) {
	a, ok := s.favIndex[photoID]
	if !ok {
		return
	}
	a.FavoriteSessions = slices.DeleteFunc(a.FavoriteSessions, func(id string) bool { return id == sessionID })
	a.TotalFavorites = len(a.FavoriteSessions)
	if a.TotalFavorites == 0 {
		delete(s.favIndex, photoID)
	}
}
