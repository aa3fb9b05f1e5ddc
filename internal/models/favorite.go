package models

import (
	"slices"
	"time"
)

// FavoriteAction is the toggle direction of a favorites update.
type FavoriteAction string

const (
	FavoriteAdd    FavoriteAction = "add"
	FavoriteRemove FavoriteAction = "remove"
)

// Valid reports whether a is a known action.
func (a FavoriteAction) Valid() bool {
	return a == FavoriteAdd || a == FavoriteRemove
}

// ClientInfo is an optional fingerprint of the favoriting client.
type ClientInfo struct {
	UserAgent string `json:"userAgent,omitempty"`
	IP        string `json:"ip,omitempty"`
	Country   string `json:"country,omitempty"`
}

// FavoriteSession is one client's favorites on one share link.
// Its identity is the pair (ShareToken, ClientIdentifier).
type FavoriteSession struct {
	ID               string `json:"id"`
	ShareToken       string `json:"shareToken"`
	ClientIdentifier string `json:"clientIdentifier"`
	// CollectionID is copied from the share at creation so the analytics
	// index can be derived from sessions alone.
	CollectionID     string      `json:"collectionId"`
	FavoritePhotoIDs []string    `json:"favoritePhotoIds"`
	ClientInfo       *ClientInfo `json:"clientInfo,omitempty"`
	CreatedAt        time.Time   `json:"createdAt"`
	LastUpdatedAt    time.Time   `json:"lastUpdatedAt"`
}

// Has reports whether photoID is in the session's favorites.
func (s FavoriteSession) Has(photoID string) bool {
	return slices.Contains(s.FavoritePhotoIDs, photoID)
}

// Clone returns a deep copy of s.
func (s FavoriteSession) Clone() FavoriteSession {
	out := s
	out.FavoritePhotoIDs = slices.Clone(s.FavoritePhotoIDs)
	if s.ClientInfo != nil {
		info := *s.ClientInfo
		out.ClientInfo = &info
	}
	return out
}

// FavoriteAnalytics is the per-photo aggregate derived from sessions.
// TotalFavorites always equals len(FavoriteSessions).
type FavoriteAnalytics struct {
	PhotoID          string    `json:"photoId"`
	CollectionID     string    `json:"collectionId"`
	TotalFavorites   int       `json:"totalFavorites"`
	FavoriteSessions []string  `json:"favoriteSessions"`
	LastFavoritedAt  time.Time `json:"lastFavoritedAt"`
}

// Clone returns a deep copy of a.
func (a FavoriteAnalytics) Clone() FavoriteAnalytics {
	out := a
	out.FavoriteSessions = slices.Clone(a.FavoriteSessions)
	return out
}
