package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/atinyakov/GalleryKeeper/internal/errs"
	"github.com/atinyakov/GalleryKeeper/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// table is one cached record table. mu guards rows and is held for writing
// across the backend write of a mutation, so the cache never runs ahead of
// what was persisted.
type table[T any] struct {
	name  string
	mu    sync.RWMutex
	rows  map[string]T
	clone func(T) T
}

func (t *table[T]) init(name string, clone func(T) T) {
	t.name = name
	t.rows = make(map[string]T)
	t.clone = clone
}

func (t *table[T]) get(id string) (T, bool) {
	v, ok := t.rows[id]
	if !ok {
		return v, false
	}
	return t.clone(v), true
}

func (t *table[T]) snapshot() map[string]T {
	out := make(map[string]T, len(t.rows))
	for id, v := range t.rows {
		out[id] = t.clone(v)
	}
	return out
}

// decode parses raw records, skipping the ones that do not unmarshal.
func (t *table[T]) decode(raw map[string][]byte, log *zap.Logger) map[string]T {
	rows := make(map[string]T, len(raw))
	for id, data := range raw {
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			log.Warn("skipping corrupt record",
				zap.String("table", t.name), zap.String("id", id), zap.Error(err))
			continue
		}
		rows[id] = v
	}
	return rows
}

func (t *table[T]) replace(rows map[string]T) {
	t.mu.Lock()
	t.rows = rows
	t.mu.Unlock()
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for timestamps and cutoffs.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the logger used for load warnings.
func WithLogger(log *zap.Logger) Option {
	return func(s *Store) {
		if log != nil {
			s.log = log
		}
	}
}

// Store is the cached, backend-mirrored store of collections, photos, shares,
// favorite sessions, download PINs and audit activity.
//
// Tables are loaded by Load or lazily on first access. Reads are served from memory and
// return copies. Every mutation is written through the backend before the
// cache changes; a failed write leaves the cache untouched.
//
// Lock order when more than one table is involved:
// collections, photos, shares, favorite sessions, download pins, activity.
type Store struct {
	backend Backend
	log     *zap.Logger
	now     func() time.Time

	loadMu sync.Mutex
	loaded atomic.Bool

	collections table[models.Collection]
	photos      table[models.Photo]
	shares      table[models.ShareLink]
	sessions    table[models.FavoriteSession]
	pins        table[models.DownloadPin]
	activity    table[models.Activity]

	// shareTokens maps access tokens to share ids; guarded by shares.mu.
	shareTokens map[string]string
	// sessionKeys maps (share token, client) to session ids; guarded by sessions.mu.
	sessionKeys map[sessionKey]string
	// favIndex is the per-photo analytics derived from sessions; guarded by sessions.mu.
	favIndex map[string]*models.FavoriteAnalytics

	pinLocks keyLock
}

// New constructs a Store over backend. Nothing is read until Load or first use.
func New(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend:     backend,
		log:         zap.NewNop(),
		now:         time.Now,
		shareTokens: make(map[string]string),
		sessionKeys: make(map[sessionKey]string),
		favIndex:    make(map[string]*models.FavoriteAnalytics),
	}
	s.collections.init(TableCollections, cloneCollection)
	s.photos.init(TablePhotos, func(p models.Photo) models.Photo { return p })
	s.shares.init(TableShares, cloneShare)
	s.sessions.init(TableFavoriteSessions, models.FavoriteSession.Clone)
	s.pins.init(TableDownloadPins, clonePin)
	s.activity.init(TableActivity, func(a models.Activity) models.Activity { return a })
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load reads every table into the cache. It is a no-op once a load has
// succeeded. A table the backend reports as corrupt degrades to empty; any
// other failure leaves the store unloaded so a later call retries.
// Cancellation of ctx does not abort the load.
func (s *Store) Load(ctx context.Context) error {
	if s.loaded.Load() {
		return nil
	}
	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	if s.loaded.Load() {
		return nil
	}

	ctx = context.WithoutCancel(ctx)
	raw := make(map[string]map[string][]byte, len(Tables))
	for _, name := range Tables {
		records, err := s.backend.Load(ctx, name)
		switch {
		case err == nil:
		case errors.Is(err, ErrCorrupt):
			s.log.Warn("table unreadable, starting empty", zap.String("table", name), zap.Error(err))
		default:
			s.log.Error("store load failed", zap.String("table", name), zap.Error(err))
			return fmt.Errorf("%w: load %s: %w", errs.ErrInternal, name, err)
		}
		raw[name] = records
	}

	collections := s.collections.decode(raw[TableCollections], s.log)
	photos := s.photos.decode(raw[TablePhotos], s.log)
	shares := s.shares.decode(raw[TableShares], s.log)
	sessions := s.sessions.decode(raw[TableFavoriteSessions], s.log)
	pins := s.pins.decode(raw[TableDownloadPins], s.log)
	activity := s.activity.decode(raw[TableActivity], s.log)

	s.collections.replace(collections)
	s.photos.replace(photos)

	s.shares.mu.Lock()
	s.shares.rows = shares
	s.shareTokens = make(map[string]string, len(shares))
	for id, sh := range shares {
		s.shareTokens[sh.AccessToken] = id
	}
	s.shares.mu.Unlock()

	s.sessions.mu.Lock()
	s.sessions.rows = sessions
	s.sessionKeys = make(map[sessionKey]string, len(sessions))
	list := make([]models.FavoriteSession, 0, len(sessions))
	for id, sess := range sessions {
		s.sessionKeys[keyOf(sess.ShareToken, sess.ClientIdentifier)] = id
		list = append(list, sess)
	}
	s.favIndex = make(map[string]*models.FavoriteAnalytics)
	for photoID, a := range BuildFavoriteAnalytics(list) {
		entry := a
		s.favIndex[photoID] = &entry
	}
	s.sessions.mu.Unlock()

	s.pins.replace(pins)
	s.activity.replace(activity)
	s.loaded.Store(true)

	s.log.Info("store loaded",
		zap.Int("collections", len(collections)),
		zap.Int("photos", len(photos)),
		zap.Int("shares", len(shares)),
		zap.Int("favorite_sessions", len(sessions)),
		zap.Int("download_pins", len(pins)),
	)
	return nil
}

// ensureLoaded loads the store on first use. Mutations refuse to run on an
// unloaded store so uniqueness checks never see a partial cache.
func (s *Store) ensureLoaded(ctx context.Context) error {
	return s.Load(ctx)
}

// loadForRead loads the store on first use. Reads on a store that failed to
// load see empty tables; the failure is logged by Load.
func (s *Store) loadForRead(ctx context.Context) {
	_ = s.Load(ctx)
}

// persist writes a batch through the backend.
func (s *Store) persist(ctx context.Context, muts ...Mutation) error {
	if len(muts) == 0 {
		return nil
	}
	if err := s.backend.Apply(ctx, muts); err != nil {
		return fmt.Errorf("%w: persist %s: %w", errs.ErrInternal, muts[0].Table, err)
	}
	return nil
}

func newID() string {
	return uuid.NewString()
}

func cloneCollection(c models.Collection) models.Collection {
	out := c
	if c.CoverPhoto != nil {
		cover := *c.CoverPhoto
		out.CoverPhoto = &cover
	}
	if c.Tags != nil {
		out.Tags = append([]string(nil), c.Tags...)
	}
	if c.Design != nil {
		out.Design = append(json.RawMessage(nil), c.Design...)
	}
	return out
}

func cloneShare(sh models.ShareLink) models.ShareLink {
	out := sh
	if sh.ExpiresAt != nil {
		t := *sh.ExpiresAt
		out.ExpiresAt = &t
	}
	return out
}

func clonePin(p models.DownloadPin) models.DownloadPin {
	out := p
	if p.UsedAt != nil {
		t := *p.UsedAt
		out.UsedAt = &t
	}
	return out
}
