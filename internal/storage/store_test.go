package storage_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/atinyakov/GalleryKeeper/internal/errs"
	"github.com/atinyakov/GalleryKeeper/internal/models"
	"github.com/atinyakov/GalleryKeeper/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memBackend struct {
	mu       sync.Mutex
	tables   map[string]map[string][]byte
	loadErr  map[string]error
	applyErr error
	applied  int
}

var _ storage.Backend = (*memBackend)(nil)

func newMemBackend() *memBackend {
	return &memBackend{tables: map[string]map[string][]byte{}, loadErr: map[string]error{}}
}

func (m *memBackend) Load(_ context.Context, table string) (map[string][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.loadErr[table]; err != nil {
		return nil, err
	}
	out := map[string][]byte{}
	for id, data := range m.tables[table] {
		out[id] = data
	}
	return out, nil
}

func (m *memBackend) Apply(_ context.Context, muts []storage.Mutation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.applyErr != nil {
		return m.applyErr
	}
	m.applied++
	for _, mu := range muts {
		if m.tables[mu.Table] == nil {
			m.tables[mu.Table] = map[string][]byte{}
		}
		if mu.Deleted() {
			delete(m.tables[mu.Table], mu.ID)
			continue
		}
		m.tables[mu.Table][mu.ID] = mu.Data
	}
	return nil
}

// ctxBackend fails every load whose context is already done, like a SQL
// driver would.
type ctxBackend struct {
	*memBackend
}

func (c ctxBackend) Load(ctx context.Context, table string) (map[string][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.memBackend.Load(ctx, table)
}

func (m *memBackend) count(table string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tables[table])
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// fixture seeds a collection c1 with photos p1..p3 and a share token "tok".
func fixture(t *testing.T) (*storage.Store, *memBackend, *clock) {
	t.Helper()
	ctx := context.Background()
	b := newMemBackend()
	clk := &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	s := storage.New(b, storage.WithClock(clk.Now))

	require.NoError(t, s.SetCollection(ctx, models.Collection{
		ID: "c1", Slug: "wedding", Name: "Wedding", AllowDownloads: true,
	}))
	for i, id := range []string{"p1", "p2", "p3"} {
		require.NoError(t, s.SetPhoto(ctx, models.Photo{
			ID: id, CollectionID: "c1", Filename: id + ".jpg", OrderIndex: i,
			WebURL: "/uploads/web/" + id + ".jpg",
		}))
	}
	require.NoError(t, s.SetShare(ctx, models.ShareLink{ID: "s1", AccessToken: "tok", CollectionID: "c1"}))
	return s, b, clk
}

func TestSetCollection_SlugRules(t *testing.T) {
	ctx := context.Background()
	s, _, _ := fixture(t)

	err := s.SetCollection(ctx, models.Collection{ID: "c2", Slug: "wedding"})
	assert.ErrorIs(t, err, errs.ErrAlreadyExists)

	err = s.SetCollection(ctx, models.Collection{ID: "c1", Slug: "renamed"})
	assert.ErrorIs(t, err, errs.ErrValidation)

	err = s.SetCollection(ctx, models.Collection{ID: "c3", Slug: "x", Visibility: "secret"})
	assert.ErrorIs(t, err, errs.ErrValidation)

	c, err := s.Collection(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "wedding", c.Slug)
	assert.Equal(t, models.Private, c.Visibility)
	assert.Equal(t, 3, c.PhotoCount)
}

func TestUpdateCollection(t *testing.T) {
	ctx := context.Background()
	s, b, clk := fixture(t)
	clk.Advance(time.Hour)

	name := "Renamed"
	require.NoError(t, s.UpdateCollection(ctx, "c1", models.CollectionPatch{Name: &name}))
	c, err := s.Collection(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", c.Name)
	assert.Equal(t, clk.Now(), c.UpdatedAt)

	// Unknown ids are accepted without effect.
	before := b.applied
	require.NoError(t, s.UpdateCollection(ctx, "missing", models.CollectionPatch{Name: &name}))
	assert.Equal(t, before, b.applied)
	_, err = s.Collection(ctx, "missing")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestSetPhoto_Rules(t *testing.T) {
	ctx := context.Background()
	s, _, _ := fixture(t)

	err := s.SetPhoto(ctx, models.Photo{ID: "p9", CollectionID: "nope"})
	assert.ErrorIs(t, err, errs.ErrNotFound)

	err = s.SetPhoto(ctx, models.Photo{ID: "p9", CollectionID: "c1", OrderIndex: 1})
	assert.ErrorIs(t, err, errs.ErrAlreadyExists)

	// Re-saving a photo with its own index is allowed and does not recount.
	require.NoError(t, s.SetPhoto(ctx, models.Photo{ID: "p2", CollectionID: "c1", OrderIndex: 1}))
	c, err := s.Collection(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 3, c.PhotoCount)

	photos := s.PhotosByCollection(ctx, "c1")
	require.Len(t, photos, 3)
	assert.Equal(t, "p1", photos[0].ID)
	assert.Equal(t, "p3", photos[2].ID)
}

func TestCollectionCover(t *testing.T) {
	ctx := context.Background()
	s, _, _ := fixture(t)

	cover, err := s.CollectionCover(ctx, "c1")
	require.NoError(t, err)
	require.NotNil(t, cover)
	assert.Equal(t, "p1", cover.PhotoID)

	explicit := &models.CoverPhoto{PhotoID: "p3", WebURL: "/uploads/web/p3.jpg"}
	require.NoError(t, s.UpdateCollection(ctx, "c1", models.CollectionPatch{CoverPhoto: explicit}))
	cover, err = s.CollectionCover(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "p3", cover.PhotoID)

	require.NoError(t, s.DeletePhoto(ctx, "p3"))
	c, err := s.Collection(ctx, "c1")
	require.NoError(t, err)
	assert.Nil(t, c.CoverPhoto)
	assert.Equal(t, 2, c.PhotoCount)
}

func TestReadsReturnCopies(t *testing.T) {
	ctx := context.Background()
	s, _, _ := fixture(t)

	_, err := s.UpdateFavorites(ctx, "tok", "client-a", "p1", models.FavoriteAdd, nil)
	require.NoError(t, err)

	sessions := s.FavoriteSessions(ctx)
	for id, sess := range sessions {
		sess.FavoritePhotoIDs[0] = "tampered"
		sessions[id] = sess
	}
	analytics := s.FavoriteAnalytics(ctx)
	a := analytics["p1"]
	a.FavoriteSessions[0] = "tampered"

	for _, sess := range s.FavoriteSessions(ctx) {
		assert.Equal(t, []string{"p1"}, sess.FavoritePhotoIDs)
	}
	assert.NotEqual(t, "tampered", s.FavoriteAnalytics(ctx)["p1"].FavoriteSessions[0])
}

func TestShareTokens(t *testing.T) {
	ctx := context.Background()
	s, _, _ := fixture(t)

	err := s.SetShare(ctx, models.ShareLink{ID: "s2", AccessToken: "tok", CollectionID: "c1"})
	assert.ErrorIs(t, err, errs.ErrAlreadyExists)

	err = s.SetShare(ctx, models.ShareLink{ID: "s2", AccessToken: "other", CollectionID: "nope"})
	assert.ErrorIs(t, err, errs.ErrNotFound)

	require.NoError(t, s.SetShare(ctx, models.ShareLink{ID: "s1", AccessToken: "rotated", CollectionID: "c1"}))
	_, err = s.ShareByToken(ctx, "tok")
	assert.ErrorIs(t, err, errs.ErrNotFound)
	sh, err := s.ShareByToken(ctx, "rotated")
	require.NoError(t, err)
	assert.Equal(t, "s1", sh.ID)

	require.NoError(t, s.DeleteShare(ctx, "s1"))
	_, err = s.ShareByToken(ctx, "rotated")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestFailedWriteLeavesCacheUntouched(t *testing.T) {
	ctx := context.Background()
	s, b, _ := fixture(t)
	b.applyErr = errors.New("disk full")

	_, err := s.UpdateFavorites(ctx, "tok", "client-a", "p1", models.FavoriteAdd, nil)
	require.ErrorIs(t, err, errs.ErrInternal)
	assert.Empty(t, s.FavoriteSessions(ctx))
	assert.Empty(t, s.FavoriteAnalytics(ctx))

	name := "Nope"
	require.Error(t, s.UpdateCollection(ctx, "c1", models.CollectionPatch{Name: &name}))
	c, err := s.Collection(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "Wedding", c.Name)
}

func TestLoad_DegradesToEmpty(t *testing.T) {
	ctx := context.Background()
	b := newMemBackend()
	b.tables[storage.TableCollections] = map[string][]byte{
		"good": []byte(`{"id":"good","slug":"good","visibility":"public"}`),
		"bad":  []byte(`{not json`),
	}
	b.loadErr[storage.TablePhotos] = fmt.Errorf("parse photos: %w", storage.ErrCorrupt)

	s := storage.New(b)
	cols := s.Collections(ctx)
	assert.Len(t, cols, 1)
	assert.Contains(t, cols, "good")
	assert.Empty(t, s.Photos(ctx))
}

func TestLoad_RebuildsIndexes(t *testing.T) {
	ctx := context.Background()
	s, b, _ := fixture(t)
	_, err := s.UpdateFavorites(ctx, "tok", "client-a", "p1", models.FavoriteAdd, nil)
	require.NoError(t, err)
	_, err = s.UpdateFavorites(ctx, "tok", "client-b", "p1", models.FavoriteAdd, nil)
	require.NoError(t, err)

	reloaded := storage.New(b)
	sh, err := reloaded.ShareByToken(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, "c1", sh.CollectionID)

	a := reloaded.FavoriteAnalytics(ctx)["p1"]
	assert.Equal(t, 2, a.TotalFavorites)

	// The reloaded store must find the existing session rather than make a new one.
	_, err = reloaded.UpdateFavorites(ctx, "tok", "client-a", "p2", models.FavoriteAdd, nil)
	require.NoError(t, err)
	assert.Len(t, reloaded.FavoriteSessions(ctx), 2)
}

func TestLoad_CancelledFirstAccessStillLoads(t *testing.T) {
	_, b, _ := fixture(t)
	s := storage.New(ctxBackend{b})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Len(t, s.Collections(ctx), 1)

	err := s.SetCollection(context.Background(), models.Collection{ID: "c2", Slug: "wedding"})
	assert.ErrorIs(t, err, errs.ErrAlreadyExists)
}

func TestLoad_TransientFailureRetries(t *testing.T) {
	ctx := context.Background()
	_, b, _ := fixture(t)
	b.loadErr[storage.TableShares] = errors.New("connection reset")
	s := storage.New(b)

	require.ErrorIs(t, s.Load(ctx), errs.ErrInternal)
	assert.Empty(t, s.Collections(ctx))

	// Writes are refused while the cache is not loaded.
	err := s.SetCollection(ctx, models.Collection{ID: "c2", Slug: "wedding"})
	require.ErrorIs(t, err, errs.ErrInternal)
	_, err = s.UpdateFavorites(ctx, "tok", "client-a", "p1", models.FavoriteAdd, nil)
	require.ErrorIs(t, err, errs.ErrInternal)
	assert.Equal(t, 1, b.count(storage.TableCollections))

	delete(b.loadErr, storage.TableShares)
	require.NoError(t, s.Load(ctx))
	assert.Len(t, s.Collections(ctx), 1)
	sh, err := s.ShareByToken(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, "c1", sh.CollectionID)

	err = s.SetCollection(ctx, models.Collection{ID: "c2", Slug: "wedding"})
	assert.ErrorIs(t, err, errs.ErrAlreadyExists)
}
