// Package service holds the download authorization gate and the favorites
// reporting logic, delegating persistence to store interfaces.
package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/atinyakov/GalleryKeeper/internal/errs"
	"github.com/atinyakov/GalleryKeeper/internal/metrics"
	"github.com/atinyakov/GalleryKeeper/internal/models"
	"github.com/atinyakov/GalleryKeeper/internal/urlsign"
	"go.uber.org/zap"
)

var pinPattern = regexp.MustCompile(`^[0-9]{4}$`)

// errFileUnavailable marks a correct PIN whose file cannot be resolved. It
// never leaves the service.
var errFileUnavailable = errors.New("file unavailable")

// DownloadStore defines the persistence operations needed by the DownloadService.
type DownloadStore interface {
	Collection(ctx context.Context, id string) (models.Collection, error)
	Photo(ctx context.Context, id string) (models.Photo, error)
	ShareByToken(ctx context.Context, token string) (models.ShareLink, error)
	CreateDownloadPin(ctx context.Context, p models.DownloadPin) (models.DownloadPin, error)
	// FindDownloadPins returns unexpired PINs with the given code, newest first.
	FindDownloadPins(ctx context.Context, pin string, now time.Time) []models.DownloadPin
	// ActiveDownloadPins returns unexpired, non-exhausted PINs of a collection.
	ActiveDownloadPins(ctx context.Context, collectionID string, now time.Time) []models.DownloadPin
	// MutateDownloadPin applies fn to the PIN under its key lock and persists the result.
	MutateDownloadPin(ctx context.Context, id string, fn func(*models.DownloadPin) error) (models.DownloadPin, error)
	RecordActivity(ctx context.Context, a models.Activity) error
}

// URLSigner issues capability tokens for files under its root.
type URLSigner interface {
	Issue(filePath string, ttl time.Duration) urlsign.Token
	VerifyQuery(q url.Values) (string, error)
	Root() string
}

// DownloadConfig holds the gate's tunables.
type DownloadConfig struct {
	PinTTL      time.Duration
	TokenTTL    time.Duration
	MaxAttempts int
	// UploadURLPrefix is stripped from photo URLs to obtain paths below the
	// upload root. URLs without it are not downloadable.
	UploadURLPrefix string
	// SecureURL is the absolute or host-relative URL of the secure delivery endpoint.
	SecureURL string
}

// PinRequest asks for a PIN gating one photo or a whole collection.
type PinRequest struct {
	PhotoID      string
	CollectionID string
	ClientEmail  string
	Resolution   models.Resolution
	ShareToken   string
	RemoteAddr   string
}

// PinGrant is returned to the client after a PIN was issued.
type PinGrant struct {
	Pin         string    `json:"pin"`
	ExpiresAt   time.Time `json:"expiresAt"`
	MaxAttempts int       `json:"maxAttempts"`
}

// DownloadGrant is returned after a successful verification.
type DownloadGrant struct {
	DownloadURL string `json:"downloadUrl"`
	Filename    string `json:"filename"`
	FileSize    int64  `json:"fileSize"`
	ExpiresIn   int    `json:"expiresIn"`
}

// DownloadService issues download PINs and trades verified PINs for signed URLs.
type DownloadService struct {
	store  DownloadStore
	signer URLSigner
	cfg    DownloadConfig
	log    *zap.Logger
	now    func() time.Time
	random io.Reader
}

// DownloadOption configures a DownloadService.
type DownloadOption func(*DownloadService)

// WithDownloadClock overrides the time source.
func WithDownloadClock(now func() time.Time) DownloadOption {
	return func(s *DownloadService) { s.now = now }
}

// WithRandom overrides the randomness source used for PIN generation.
func WithRandom(r io.Reader) DownloadOption {
	return func(s *DownloadService) { s.random = r }
}

// NewDownloadService constructs a DownloadService.
func NewDownloadService(store DownloadStore, signer URLSigner, cfg DownloadConfig, log *zap.Logger, opts ...DownloadOption) *DownloadService {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.PinTTL <= 0 {
		cfg.PinTTL = 24 * time.Hour
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = time.Hour
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.SecureURL == "" {
		cfg.SecureURL = "/downloads/secure"
	}
	s := &DownloadService{
		store:  store,
		signer: signer,
		cfg:    cfg,
		log:    log,
		now:    time.Now,
		random: rand.Reader,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RequestPin issues a PIN for exactly one of a photo or a collection. The
// collection must allow downloads. A share token, when given, must grant the
// same collection.
func (s *DownloadService) RequestPin(ctx context.Context, req PinRequest) (PinGrant, error) {
	if req.Resolution == "" {
		req.Resolution = models.ResolutionHighRes
	}
	if !req.Resolution.Valid() {
		return PinGrant{}, errs.Validationf("unknown resolution %q", req.Resolution)
	}
	if (req.PhotoID == "") == (req.CollectionID == "") {
		return PinGrant{}, errs.Validationf("exactly one of photoId and collectionId is required")
	}

	collectionID := req.CollectionID
	scope := "collection"
	if req.PhotoID != "" {
		scope = "photo"
		p, err := s.store.Photo(ctx, req.PhotoID)
		if err != nil {
			return PinGrant{}, err
		}
		collectionID = p.CollectionID
	}
	c, err := s.store.Collection(ctx, collectionID)
	if err != nil {
		return PinGrant{}, err
	}
	if !c.AllowDownloads {
		return PinGrant{}, errs.ErrDownloadsDisabled
	}
	if req.ShareToken != "" {
		if _, err := s.shareFor(ctx, req.ShareToken, collectionID); err != nil {
			return PinGrant{}, err
		}
	}

	code, err := s.generatePin()
	if err != nil {
		return PinGrant{}, fmt.Errorf("%w: generate pin: %w", errs.ErrInternal, err)
	}
	now := s.now()
	pin, err := s.store.CreateDownloadPin(ctx, models.DownloadPin{
		Pin:          code,
		CollectionID: collectionID,
		PhotoID:      req.PhotoID,
		ClientEmail:  req.ClientEmail,
		Resolution:   req.Resolution,
		ExpiresAt:    now.Add(s.cfg.PinTTL),
		MaxAttempts:  s.cfg.MaxAttempts,
		CreatedAt:    now,
	})
	if err != nil {
		return PinGrant{}, err
	}

	s.audit(ctx, models.Activity{
		Type:         models.ActivityPinRequested,
		ShareToken:   req.ShareToken,
		PinID:        pin.ID,
		CollectionID: pin.CollectionID,
		PhotoID:      pin.PhotoID,
		Success:      true,
		RemoteAddr:   req.RemoteAddr,
	})
	metrics.RecordPinIssued(scope, string(pin.Resolution))
	s.log.Info("download pin issued",
		zap.String("pin_id", pin.ID),
		zap.String("scope", scope),
		zap.String("collection_id", pin.CollectionID),
		zap.String("resolution", string(pin.Resolution)),
	)

	return PinGrant{Pin: pin.Pin, ExpiresAt: pin.ExpiresAt, MaxAttempts: pin.MaxAttempts}, nil
}

// VerifyPin checks pin against the share identified by shareToken and, on
// success, returns a signed download URL for the PIN's scope.
//
// A guess that matches no active PIN counts as a failed attempt on every
// active PIN of the share's collection. A correct PIN presented with a share
// of another collection also consumes an attempt.
func (s *DownloadService) VerifyPin(ctx context.Context, shareToken, pin, remoteAddr string) (DownloadGrant, error) {
	if !pinPattern.MatchString(pin) {
		return DownloadGrant{}, errs.Validationf("pin must be exactly 4 digits")
	}
	if strings.TrimSpace(shareToken) == "" {
		return DownloadGrant{}, errs.Validationf("share token is required")
	}
	now := s.now()
	share, shareErr := s.store.ShareByToken(ctx, shareToken)
	if shareErr == nil && share.Expired(now) {
		shareErr = errs.NotFoundf("share expired")
	}

	candidates := s.store.FindDownloadPins(ctx, pin, now)
	if len(candidates) == 0 {
		if shareErr == nil {
			s.penalize(ctx, share.CollectionID, now)
		}
		s.reject(ctx, models.Activity{ShareToken: shareToken, CollectionID: share.CollectionID, RemoteAddr: remoteAddr}, errs.ErrInvalidPin)
		return DownloadGrant{}, errs.ErrInvalidPin
	}
	candidate := candidates[0]
	if shareErr == nil {
		for _, c := range candidates {
			if c.CollectionID == share.CollectionID {
				candidate = c
				break
			}
		}
	}

	// Resolve before the use is committed so a missing rendition leaves the
	// PIN untouched.
	rel, filename, size, resolveErr := s.resolveFile(ctx, candidate)

	verified, err := s.store.MutateDownloadPin(ctx, candidate.ID, func(p *models.DownloadPin) error {
		switch {
		case p.Exhausted():
			return errs.ErrAttemptsExceeded
		case p.Expired(now):
			return errs.ErrInvalidPin
		case shareErr != nil || share.CollectionID != p.CollectionID:
			p.Attempts++
			return errs.ErrAccessMismatch
		case resolveErr != nil:
			return errFileUnavailable
		}
		p.Attempts++
		used := now
		p.UsedAt = &used
		return nil
	})
	rejected := models.Activity{
		ShareToken:   shareToken,
		PinID:        candidate.ID,
		CollectionID: candidate.CollectionID,
		PhotoID:      candidate.PhotoID,
		RemoteAddr:   remoteAddr,
	}
	if errors.Is(err, errFileUnavailable) {
		s.log.Error("resolve download file", zap.String("pin_id", candidate.ID), zap.Error(resolveErr))
		s.reject(ctx, rejected, err)
		return DownloadGrant{}, errs.ErrInvalidPin
	}
	if err != nil {
		s.reject(ctx, rejected, err)
		return DownloadGrant{}, err
	}
	tok := s.signer.Issue(rel, s.cfg.TokenTTL)

	s.audit(ctx, models.Activity{
		Type:         models.ActivityPinVerified,
		ShareToken:   shareToken,
		PinID:        verified.ID,
		CollectionID: verified.CollectionID,
		PhotoID:      verified.PhotoID,
		Path:         rel,
		Success:      true,
		RemoteAddr:   remoteAddr,
	})
	metrics.RecordPinVerification("verified")
	s.log.Info("download pin verified",
		zap.String("pin_id", verified.ID),
		zap.Int("attempts", verified.Attempts),
		zap.String("path", rel),
	)

	return DownloadGrant{
		DownloadURL: tok.URL(s.cfg.SecureURL),
		Filename:    filename,
		FileSize:    size,
		ExpiresIn:   int(s.cfg.TokenTTL / time.Second),
	}, nil
}

// AuthorizeDownload verifies the signed link carried by q and returns the
// absolute path of the file it grants. Rejections are audited.
func (s *DownloadService) AuthorizeDownload(ctx context.Context, q url.Values, remoteAddr string) (string, error) {
	abs, err := s.signer.VerifyQuery(q)
	if err != nil {
		if errors.Is(err, errs.ErrUnauthorized) {
			s.audit(ctx, models.Activity{
				Type:       models.ActivitySignatureRejected,
				Path:       q.Get(urlsign.ParamPath),
				Reason:     err.Error(),
				RemoteAddr: remoteAddr,
			})
			s.log.Warn("signed url rejected",
				zap.String("path", q.Get(urlsign.ParamPath)),
				zap.String("remote_addr", remoteAddr),
				zap.Error(err),
			)
		}
		metrics.RecordSignedURLCheck(metrics.StatusFailure, 0)
		return "", err
	}

	return abs, nil
}

// RecordDelivery audits the outcome of serving an authorized link: a
// download_served record once the file was opened, a download_missing record
// when openErr reports it absent.
func (s *DownloadService) RecordDelivery(ctx context.Context, q url.Values, remoteAddr string, openErr error) {
	a := models.Activity{
		Type:       models.ActivityDownloadServed,
		Path:       q.Get(urlsign.ParamPath),
		Success:    true,
		RemoteAddr: remoteAddr,
	}
	if openErr != nil {
		a.Type = models.ActivityDownloadMissing
		a.Success = false
		a.Reason = openErr.Error()
		s.log.Warn("authorized file missing",
			zap.String("path", a.Path),
			zap.String("remote_addr", remoteAddr),
			zap.Error(openErr),
		)
	}
	s.audit(ctx, a)
}

// penalize charges one attempt to every active PIN of collectionID.
func (s *DownloadService) penalize(ctx context.Context, collectionID string, now time.Time) {
	for _, p := range s.store.ActiveDownloadPins(ctx, collectionID, now) {
		_, err := s.store.MutateDownloadPin(ctx, p.ID, func(pin *models.DownloadPin) error {
			if !pin.Exhausted() && !pin.Expired(now) {
				pin.Attempts++
			}
			return nil
		})
		if err != nil {
			s.log.Error("charge failed attempt", zap.String("pin_id", p.ID), zap.Error(err))
		}
	}
}

// resolveFile maps a verified PIN to a path below the upload root, the file
// name offered to the client and its size.
func (s *DownloadService) resolveFile(ctx context.Context, p models.DownloadPin) (string, string, int64, error) {
	if !p.PhotoScoped() {
		c, err := s.store.Collection(ctx, p.CollectionID)
		if err != nil {
			return "", "", 0, err
		}
		// Archive generation happens behind the secure endpoint.
		return path.Join("archives", c.ID+".zip"), c.Slug + ".zip", 0, nil
	}

	photo, err := s.store.Photo(ctx, p.PhotoID)
	if err != nil {
		return "", "", 0, err
	}
	var u string
	switch p.Resolution {
	case models.ResolutionWeb:
		u = photo.WebURL
	case models.ResolutionHighRes:
		u = photo.HighResURL
		if u == "" {
			u = photo.WebURL
		}
	case models.ResolutionOriginal:
		u = photo.OriginalURL
	}
	if u == "" {
		return "", "", 0, errs.NotFoundf("%s rendition of photo %q", p.Resolution, photo.ID)
	}

	rel, ok := strings.CutPrefix(u, s.cfg.UploadURLPrefix)
	if !ok || strings.Contains(rel, "://") {
		return "", "", 0, errs.NotFoundf("%s rendition of photo %q is not an upload", p.Resolution, photo.ID)
	}
	rel = strings.TrimLeft(rel, "/")

	filename := path.Base(rel)
	if p.Resolution == models.ResolutionOriginal && photo.OriginalFilename != "" {
		filename = photo.OriginalFilename
	}

	size := photo.Size
	if info, err := os.Stat(filepath.Join(s.signer.Root(), filepath.FromSlash(rel))); err == nil && !info.IsDir() {
		size = info.Size()
	}
	return rel, filename, size, nil
}

// shareFor resolves an unexpired share granting collectionID.
func (s *DownloadService) shareFor(ctx context.Context, token, collectionID string) (models.ShareLink, error) {
	share, err := s.store.ShareByToken(ctx, token)
	if err != nil || share.Expired(s.now()) || share.CollectionID != collectionID {
		return models.ShareLink{}, errs.ErrAccessMismatch
	}
	return share, nil
}

func (s *DownloadService) generatePin() (string, error) {
	n, err := rand.Int(s.random, big.NewInt(10000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%04d", n.Int64()), nil
}

func (s *DownloadService) reject(ctx context.Context, a models.Activity, cause error) {
	outcome := "error"
	switch {
	case errors.Is(cause, errs.ErrAttemptsExceeded):
		outcome = "attempts_exceeded"
	case errors.Is(cause, errs.ErrAccessMismatch):
		outcome = "access_mismatch"
	case errors.Is(cause, errFileUnavailable):
		outcome = "file_unavailable"
	case errors.Is(cause, errs.ErrInvalidPin):
		outcome = "invalid_pin"
	}
	a.Type = models.ActivityPinRejected
	a.Reason = outcome
	s.audit(ctx, a)
	metrics.RecordPinVerification(outcome)
	s.log.Warn("download pin rejected",
		zap.String("pin_id", a.PinID),
		zap.String("reason", outcome),
		zap.String("remote_addr", a.RemoteAddr),
	)
}

func (s *DownloadService) audit(ctx context.Context, a models.Activity) {
	if err := s.store.RecordActivity(ctx, a); err != nil {
		s.log.Error("record activity", zap.String("type", string(a.Type)), zap.Error(err))
	}
}
