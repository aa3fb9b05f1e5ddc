package service

import (
	"context"
	"sort"
	"time"

	"github.com/atinyakov/GalleryKeeper/internal/metrics"
	"github.com/atinyakov/GalleryKeeper/internal/models"
	"go.uber.org/zap"
)

// recentSessionsLimit caps the sessions listed in a collection report.
const recentSessionsLimit = 10

// FavoritesStore defines the persistence operations needed by the FavoritesService.
type FavoritesStore interface {
	Collection(ctx context.Context, id string) (models.Collection, error)
	ShareByToken(ctx context.Context, token string) (models.ShareLink, error)
	UpdateFavorites(ctx context.Context, shareToken, clientID, photoID string, action models.FavoriteAction, info *models.ClientInfo) (models.FavoriteSession, error)
	// FavoritesSnapshot returns sessions and analytics read consistently.
	FavoritesSnapshot(ctx context.Context) ([]models.FavoriteSession, map[string]models.FavoriteAnalytics)
}

// FavoriteUpdate is one add or remove issued by a client on a share link.
type FavoriteUpdate struct {
	ShareToken       string
	ClientIdentifier string
	PhotoID          string
	Action           models.FavoriteAction
	ClientInfo       *models.ClientInfo
}

// PhotoFavorites is the favorite count of one photo.
type PhotoFavorites struct {
	PhotoID         string    `json:"photoId"`
	TotalFavorites  int       `json:"totalFavorites"`
	LastFavoritedAt time.Time `json:"lastFavoritedAt,omitempty"`
}

// CollectionReport summarizes favorites across every share of a collection.
type CollectionReport struct {
	CollectionID   string                   `json:"collectionId"`
	TotalSessions  int                      `json:"totalSessions"`
	TotalFavorites int                      `json:"totalFavorites"`
	TopPhoto       *PhotoFavorites          `json:"topPhoto"`
	Photos         []PhotoFavorites         `json:"photos"`
	RecentSessions []models.FavoriteSession `json:"recentSessions"`
}

// ShareReport lists the photos favorited through one share link.
type ShareReport struct {
	ShareToken    string           `json:"shareToken"`
	CollectionID  string           `json:"collectionId"`
	TotalSessions int              `json:"totalSessions"`
	Photos        []PhotoFavorites `json:"photos"`
	// ClientFavorites holds the requesting client's own selection, if identified.
	ClientFavorites []string `json:"clientFavorites"`
}

// FavoritesService applies favorite toggles and builds favorites reports.
type FavoritesService struct {
	store FavoritesStore
	log   *zap.Logger
}

// NewFavoritesService constructs a FavoritesService.
func NewFavoritesService(store FavoritesStore, log *zap.Logger) *FavoritesService {
	if log == nil {
		log = zap.NewNop()
	}
	return &FavoritesService{store: store, log: log}
}

// Toggle applies one favorites update and returns the resulting session.
func (s *FavoritesService) Toggle(ctx context.Context, u FavoriteUpdate) (models.FavoriteSession, error) {
	sess, err := s.store.UpdateFavorites(ctx, u.ShareToken, u.ClientIdentifier, u.PhotoID, u.Action, u.ClientInfo)
	if err != nil {
		metrics.RecordFavoriteToggle(string(u.Action), metrics.StatusFailure)
		return models.FavoriteSession{}, err
	}
	metrics.RecordFavoriteToggle(string(u.Action), metrics.StatusSuccess)
	s.log.Debug("favorites updated",
		zap.String("session_id", sess.ID),
		zap.String("photo_id", u.PhotoID),
		zap.String("action", string(u.Action)),
		zap.Int("favorites", len(sess.FavoritePhotoIDs)),
	)
	return sess, nil
}

// CollectionReport ranks the photos of a collection by favorite count.
func (s *FavoritesService) CollectionReport(ctx context.Context, collectionID string) (CollectionReport, error) {
	if _, err := s.store.Collection(ctx, collectionID); err != nil {
		return CollectionReport{}, err
	}
	sessions, analytics := s.store.FavoritesSnapshot(ctx)

	report := CollectionReport{
		CollectionID:   collectionID,
		Photos:         []PhotoFavorites{},
		RecentSessions: []models.FavoriteSession{},
	}
	for _, a := range analytics {
		if a.CollectionID != collectionID {
			continue
		}
		report.Photos = append(report.Photos, PhotoFavorites{
			PhotoID:         a.PhotoID,
			TotalFavorites:  a.TotalFavorites,
			LastFavoritedAt: a.LastFavoritedAt,
		})
		report.TotalFavorites += a.TotalFavorites
	}
	rank(report.Photos)
	if len(report.Photos) > 0 {
		top := report.Photos[0]
		report.TopPhoto = &top
	}

	for _, sess := range sessions {
		if sess.CollectionID == collectionID {
			report.RecentSessions = append(report.RecentSessions, sess)
		}
	}
	report.TotalSessions = len(report.RecentSessions)
	sort.Slice(report.RecentSessions, func(i, j int) bool {
		a, b := report.RecentSessions[i], report.RecentSessions[j]
		if a.LastUpdatedAt.Equal(b.LastUpdatedAt) {
			return a.ID < b.ID
		}
		return a.LastUpdatedAt.After(b.LastUpdatedAt)
	})
	if len(report.RecentSessions) > recentSessionsLimit {
		report.RecentSessions = report.RecentSessions[:recentSessionsLimit]
	}
	return report, nil
}

// ShareReport unions the favorites of every session on a share link and
// counts, per photo, how many of those sessions picked it.
func (s *FavoritesService) ShareReport(ctx context.Context, shareToken, clientID string) (ShareReport, error) {
	share, err := s.store.ShareByToken(ctx, shareToken)
	if err != nil {
		return ShareReport{}, err
	}
	sessions, _ := s.store.FavoritesSnapshot(ctx)

	report := ShareReport{
		ShareToken:      shareToken,
		CollectionID:    share.CollectionID,
		Photos:          []PhotoFavorites{},
		ClientFavorites: []string{},
	}
	counts := map[string]*PhotoFavorites{}
	for _, sess := range sessions {
		if sess.ShareToken != shareToken {
			continue
		}
		report.TotalSessions++
		if clientID != "" && sess.ClientIdentifier == clientID {
			report.ClientFavorites = append(report.ClientFavorites, sess.FavoritePhotoIDs...)
		}
		for _, photoID := range sess.FavoritePhotoIDs {
			pf, ok := counts[photoID]
			if !ok {
				pf = &PhotoFavorites{PhotoID: photoID}
				counts[photoID] = pf
			}
			pf.TotalFavorites++
			if sess.LastUpdatedAt.After(pf.LastFavoritedAt) {
				pf.LastFavoritedAt = sess.LastUpdatedAt
			}
		}
	}
	for _, pf := range counts {
		report.Photos = append(report.Photos, *pf)
	}
	rank(report.Photos)
	return report, nil
}

// rank orders photos by favorite count, most recent first on ties.
func rank(photos []PhotoFavorites) {
	sort.Slice(photos, func(i, j int) bool {
		a, b := photos[i], photos[j]
		if a.TotalFavorites != b.TotalFavorites {
			return a.TotalFavorites > b.TotalFavorites
		}
		if !a.LastFavoritedAt.Equal(b.LastFavoritedAt) {
			return a.LastFavoritedAt.After(b.LastFavoritedAt)
		}
		return a.PhotoID < b.PhotoID
	})
}
