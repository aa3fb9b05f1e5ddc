package storage

import (
	"context"
	"strings"

	"github.com/atinyakov/GalleryKeeper/internal/errs"
	"github.com/atinyakov/GalleryKeeper/internal/models"
)

// Shares returns a copy of every share link keyed by id.
func (s *Store) Shares(ctx context.Context) map[string]models.ShareLink {
	s.loadForRead(ctx)
	s.shares.mu.RLock()
	defer s.shares.mu.RUnlock()
	return s.shares.snapshot()
}

// ShareByToken resolves a share link by its access token. Expiry is not
// checked here; callers decide how an expired link is treated.
func (s *Store) ShareByToken(ctx context.Context, token string) (models.ShareLink, error) {
	if err := s.ensureLoaded(ctx); err != nil {
		return models.ShareLink{}, err
	}
	s.shares.mu.RLock()
	defer s.shares.mu.RUnlock()
	id, ok := s.shareTokens[token]
	if !ok || token == "" {
		return models.ShareLink{}, errs.NotFoundf("share")
	}
	sh, _ := s.shares.get(id)
	return sh, nil
}

// SetShare upserts a share link. Access tokens are unique and the target
// collection must exist.
func (s *Store) SetShare(ctx context.Context, sh models.ShareLink) error {
	if err := s.ensureLoaded(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(sh.ID) == "" || strings.TrimSpace(sh.AccessToken) == "" {
		return errs.Validationf("share id and access token are required")
	}

	s.collections.mu.RLock()
	_, ok := s.collections.rows[sh.CollectionID]
	s.collections.mu.RUnlock()
	if !ok {
		return errs.NotFoundf("collection %q", sh.CollectionID)
	}

	s.shares.mu.Lock()
	defer s.shares.mu.Unlock()

	if owner, taken := s.shareTokens[sh.AccessToken]; taken && owner != sh.ID {
		return errs.ErrAlreadyExists
	}
	previous, existed := s.shares.rows[sh.ID]
	if sh.CreatedAt.IsZero() {
		if existed {
			sh.CreatedAt = previous.CreatedAt
		} else {
			sh.CreatedAt = s.now()
		}
	}

	m, err := upsert(TableShares, sh.ID, sh)
	if err != nil {
		return err
	}
	if err := s.persist(ctx, m); err != nil {
		return err
	}
	if existed && previous.AccessToken != sh.AccessToken {
		delete(s.shareTokens, previous.AccessToken)
	}
	s.shares.rows[sh.ID] = cloneShare(sh)
	s.shareTokens[sh.AccessToken] = sh.ID
	return nil
}

// DeleteShare removes a share link.
func (s *Store) DeleteShare(ctx context.Context, id string) error {
	if err := s.ensureLoaded(ctx); err != nil {
		return err
	}
	s.shares.mu.Lock()
	defer s.shares.mu.Unlock()

	sh, ok := s.shares.rows[id]
	if !ok {
		return nil
	}
	if err := s.persist(ctx, remove(TableShares, id)); err != nil {
		return err
	}
	delete(s.shares.rows, id)
	delete(s.shareTokens, sh.AccessToken)
	return nil
}
