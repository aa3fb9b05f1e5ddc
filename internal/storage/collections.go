package storage

import (
	"context"
	"sort"
	"strings"

	"github.com/atinyakov/GalleryKeeper/internal/errs"
	"github.com/atinyakov/GalleryKeeper/internal/models"
)

// Collections returns a copy of every collection keyed by id.
func (s *Store) Collections(ctx context.Context) map[string]models.Collection {
	s.loadForRead(ctx)
	s.collections.mu.RLock()
	defer s.collections.mu.RUnlock()
	return s.collections.snapshot()
}

// Collection returns one collection by id.
func (s *Store) Collection(ctx context.Context, id string) (models.Collection, error) {
	if err := s.ensureLoaded(ctx); err != nil {
		return models.Collection{}, err
	}
	s.collections.mu.RLock()
	defer s.collections.mu.RUnlock()
	c, ok := s.collections.get(id)
	if !ok {
		return models.Collection{}, errs.NotFoundf("collection %q", id)
	}
	return c, nil
}

// SetCollection upserts a collection. The slug must be unique across all
// collections and cannot change once the collection exists.
func (s *Store) SetCollection(ctx context.Context, c models.Collection) error {
	if err := s.ensureLoaded(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(c.ID) == "" || strings.TrimSpace(c.Slug) == "" {
		return errs.Validationf("collection id and slug are required")
	}
	if c.Visibility == "" {
		c.Visibility = models.Private
	}
	if !c.Visibility.Valid() {
		return errs.Validationf("unknown visibility %q", c.Visibility)
	}

	s.collections.mu.Lock()
	defer s.collections.mu.Unlock()

	if existing, ok := s.collections.rows[c.ID]; ok {
		if existing.Slug != c.Slug {
			return errs.Validationf("slug of collection %q is immutable", c.ID)
		}
		if c.CreatedAt.IsZero() {
			c.CreatedAt = existing.CreatedAt
		}
	}
	for id, other := range s.collections.rows {
		if id != c.ID && other.Slug == c.Slug {
			return errs.ErrAlreadyExists
		}
	}

	now := s.now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = now
	}

	m, err := upsert(TableCollections, c.ID, c)
	if err != nil {
		return err
	}
	if err := s.persist(ctx, m); err != nil {
		return err
	}
	s.collections.rows[c.ID] = cloneCollection(c)
	return nil
}

// UpdateCollection merges patch onto the collection and stamps UpdatedAt.
// An unknown id is silently ignored and reported as success.
func (s *Store) UpdateCollection(ctx context.Context, id string, patch models.CollectionPatch) error {
	if err := s.ensureLoaded(ctx); err != nil {
		return err
	}
	if patch.Visibility != nil && !patch.Visibility.Valid() {
		return errs.Validationf("unknown visibility %q", *patch.Visibility)
	}

	s.collections.mu.Lock()
	defer s.collections.mu.Unlock()

	c, ok := s.collections.get(id)
	if !ok {
		return nil
	}
	patch.Apply(&c)
	c.UpdatedAt = s.now()

	m, err := upsert(TableCollections, id, c)
	if err != nil {
		return err
	}
	if err := s.persist(ctx, m); err != nil {
		return err
	}
	s.collections.rows[id] = c
	return nil
}

// DeleteCollection removes a collection. Photos and shares that reference it
// are left for the owning CRUD layer to clean up.
func (s *Store) DeleteCollection(ctx context.Context, id string) error {
	if err := s.ensureLoaded(ctx); err != nil {
		return err
	}
	s.collections.mu.Lock()
	defer s.collections.mu.Unlock()

	if _, ok := s.collections.rows[id]; !ok {
		return nil
	}
	if err := s.persist(ctx, remove(TableCollections, id)); err != nil {
		return err
	}
	delete(s.collections.rows, id)
	return nil
}

// CollectionCover returns the explicit cover of a collection, falling back to
// the photo with the lowest ordering index. It returns nil for an empty
// collection without a cover.
func (s *Store) CollectionCover(ctx context.Context, id string) (*models.CoverPhoto, error) {
	c, err := s.Collection(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.CoverPhoto != nil {
		return c.CoverPhoto, nil
	}
	photos := s.PhotosByCollection(ctx, id)
	if len(photos) == 0 {
		return nil, nil
	}
	cover := photos[0].Cover()
	return &cover, nil
}

// Photos returns a copy of every photo keyed by id.
func (s *Store) Photos(ctx context.Context) map[string]models.Photo {
	s.loadForRead(ctx)
	s.photos.mu.RLock()
	defer s.photos.mu.RUnlock()
	return s.photos.snapshot()
}

// Photo returns one photo by id.
func (s *Store) Photo(ctx context.Context, id string) (models.Photo, error) {
	if err := s.ensureLoaded(ctx); err != nil {
		return models.Photo{}, err
	}
	s.photos.mu.RLock()
	defer s.photos.mu.RUnlock()
	p, ok := s.photos.get(id)
	if !ok {
		return models.Photo{}, errs.NotFoundf("photo %q", id)
	}
	return p, nil
}

// PhotosByCollection returns the photos of a collection in gallery order.
func (s *Store) PhotosByCollection(ctx context.Context, collectionID string) []models.Photo {
	s.loadForRead(ctx)
	s.photos.mu.RLock()
	defer s.photos.mu.RUnlock()

	var out []models.Photo
	for _, p := range s.photos.rows {
		if p.CollectionID == collectionID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderIndex < out[j].OrderIndex })
	return out
}

// SetPhoto upserts a photo. The parent collection must exist and the ordering
// index must be unique inside it. The denormalized photo count of affected
// collections is written in the same batch.
func (s *Store) SetPhoto(ctx context.Context, p models.Photo) error {
	if err := s.ensureLoaded(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(p.ID) == "" || strings.TrimSpace(p.CollectionID) == "" {
		return errs.Validationf("photo id and collection id are required")
	}
	if p.Status == "" {
		p.Status = models.StatusPending
	}

	s.collections.mu.Lock()
	defer s.collections.mu.Unlock()
	s.photos.mu.Lock()
	defer s.photos.mu.Unlock()

	parent, ok := s.collections.get(p.CollectionID)
	if !ok {
		return errs.NotFoundf("collection %q", p.CollectionID)
	}
	for id, other := range s.photos.rows {
		if id != p.ID && other.CollectionID == p.CollectionID && other.OrderIndex == p.OrderIndex {
			return errs.ErrAlreadyExists
		}
	}

	now := s.now()
	existing, exists := s.photos.rows[p.ID]
	if exists && p.CreatedAt.IsZero() {
		p.CreatedAt = existing.CreatedAt
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	m, err := upsert(TablePhotos, p.ID, p)
	if err != nil {
		return err
	}
	batch := []Mutation{m}
	changed := map[string]models.Collection{}

	switch {
	case !exists:
		parent.PhotoCount++
		changed[parent.ID] = parent
	case existing.CollectionID != p.CollectionID:
		parent.PhotoCount++
		changed[parent.ID] = parent
		if old, ok := s.collections.get(existing.CollectionID); ok {
			old.PhotoCount = max(old.PhotoCount-1, 0)
			changed[old.ID] = old
		}
	}
	for id, c := range changed {
		c.UpdatedAt = now
		cm, err := upsert(TableCollections, id, c)
		if err != nil {
			return err
		}
		batch = append(batch, cm)
		changed[id] = c
	}

	if err := s.persist(ctx, batch...); err != nil {
		return err
	}
	s.photos.rows[p.ID] = p
	for id, c := range changed {
		s.collections.rows[id] = c
	}
	return nil
}

// DeletePhoto removes a photo, decrements its collection's photo count and
// clears the collection cover if it pointed at the photo.
func (s *Store) DeletePhoto(ctx context.Context, id string) error {
	if err := s.ensureLoaded(ctx); err != nil {
		return err
	}
	s.collections.mu.Lock()
	defer s.collections.mu.Unlock()
	s.photos.mu.Lock()
	defer s.photos.mu.Unlock()

	p, ok := s.photos.rows[id]
	if !ok {
		return nil
	}
	batch := []Mutation{remove(TablePhotos, id)}

	parent, hasParent := s.collections.get(p.CollectionID)
	if hasParent {
		parent.PhotoCount = max(parent.PhotoCount-1, 0)
		if parent.CoverPhoto != nil && parent.CoverPhoto.PhotoID == id {
			parent.CoverPhoto = nil
		}
		parent.UpdatedAt = s.now()
		cm, err := upsert(TableCollections, parent.ID, parent)
		if err != nil {
			return err
		}
		batch = append(batch, cm)
	}

	if err := s.persist(ctx, batch...); err != nil {
		return err
	}
	delete(s.photos.rows, id)
	if hasParent {
		s.collections.rows[parent.ID] = parent
	}
	return nil
}
