// Package http provides the chi router and JSON handlers of the gallery
// download gate and favorites API.
package http

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	"github.com/atinyakov/GalleryKeeper/internal/errs"
	"github.com/atinyakov/GalleryKeeper/internal/metrics"
	"github.com/atinyakov/GalleryKeeper/internal/middleware"
	"github.com/atinyakov/GalleryKeeper/internal/models"
	"github.com/atinyakov/GalleryKeeper/internal/service"
	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"
)

// Messages returned for credential failures. They do not reveal which check
// failed.
const (
	msgVerifyDenied   = "invalid or expired pin"
	msgDownloadDenied = "access denied"
)

// DownloadService defines the PIN gate operations required by the DownloadHandler.
type DownloadService interface {
	// RequestPin issues a PIN for one photo or a whole collection.
	RequestPin(ctx context.Context, req service.PinRequest) (service.PinGrant, error)
	// VerifyPin trades a PIN for a signed download link.
	VerifyPin(ctx context.Context, shareToken, pin, remoteAddr string) (service.DownloadGrant, error)
	// AuthorizeDownload checks a signed link and returns the absolute file path it grants.
	AuthorizeDownload(ctx context.Context, q url.Values, remoteAddr string) (string, error)
	// RecordDelivery audits whether the authorized file could be opened.
	RecordDelivery(ctx context.Context, q url.Values, remoteAddr string, openErr error)
}

// DownloadHandler handles PIN requests, PIN verification and secure file delivery.
type DownloadHandler struct {
	DownloadService DownloadService
	Logger          *zap.Logger
}

// PinRequestBody represents the JSON payload of POST /download/request.
type PinRequestBody struct {
	PhotoID      string            `json:"photoId"`
	CollectionID string            `json:"collectionId"`
	ClientEmail  string            `json:"clientEmail"`
	Resolution   models.Resolution `json:"resolution"`
	ShareToken   string            `json:"shareToken"`
}

// VerifyRequestBody represents the JSON payload of POST /download/verify.
type VerifyRequestBody struct {
	Pin        string `json:"pin"`
	ShareToken string `json:"shareToken"`
}

// Request handles POST /download/request.
func (h *DownloadHandler) Request(w http.ResponseWriter, r *http.Request) {
	var body PinRequestBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err, "")
		return
	}

	grant, err := h.DownloadService.RequestPin(r.Context(), service.PinRequest{
		PhotoID:      body.PhotoID,
		CollectionID: body.CollectionID,
		ClientEmail:  body.ClientEmail,
		Resolution:   body.Resolution,
		ShareToken:   firstNonEmpty(middleware.GetShareTokenFromContext(r.Context()), body.ShareToken),
		RemoteAddr:   r.RemoteAddr,
	})
	if err != nil {
		writeError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, grant)
}

// Verify handles POST /download/verify. Every credential failure answers 403
// with the same message.
func (h *DownloadHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var body VerifyRequestBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err, "")
		return
	}

	token := firstNonEmpty(middleware.GetShareTokenFromContext(r.Context()), body.ShareToken)
	grant, err := h.DownloadService.VerifyPin(r.Context(), token, body.Pin, r.RemoteAddr)
	if err != nil {
		writeError(w, err, msgVerifyDenied)
		return
	}
	writeJSON(w, http.StatusOK, grant)
}

// Secure handles GET /downloads/secure. It streams the file granted by the
// signed link in the query string.
func (h *DownloadHandler) Secure(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	abs, err := h.DownloadService.AuthorizeDownload(r.Context(), q, r.RemoteAddr)
	if err != nil {
		writeError(w, err, msgDownloadDenied)
		return
	}

	f, err := os.Open(abs)
	if errors.Is(err, fs.ErrNotExist) {
		h.missing(w, r, q)
		return
	}
	if err != nil {
		h.logger().Error("open download", zap.String("path", abs), zap.Error(err))
		writeError(w, err, "")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		h.missing(w, r, q)
		return
	}
	h.DownloadService.RecordDelivery(r.Context(), q, r.RemoteAddr, nil)

	if mt, err := mimetype.DetectReader(f); err == nil {
		w.Header().Set("Content-Type", mt.String())
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		writeError(w, err, "")
		return
	}
	w.Header().Set("Content-Disposition", `attachment; filename="`+filepath.Base(abs)+`"`)
	w.Header().Set("Cache-Control", "private, no-store")

	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
	metrics.RecordSignedURLCheck(metrics.StatusSuccess, info.Size())
}

func (h *DownloadHandler) missing(w http.ResponseWriter, r *http.Request, q url.Values) {
	notFound := errs.NotFoundf("file not found")
	h.DownloadService.RecordDelivery(r.Context(), q, r.RemoteAddr, notFound)
	metrics.RecordSignedURLCheck(metrics.StatusFailure, 0)
	writeError(w, notFound, "")
}

func (h *DownloadHandler) logger() *zap.Logger {
	if h.Logger == nil {
		return zap.NewNop()
	}
	return h.Logger
}
