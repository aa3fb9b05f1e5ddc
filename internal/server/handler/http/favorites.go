package http

import (
	"context"
	"net/http"

	"github.com/atinyakov/GalleryKeeper/internal/errs"
	"github.com/atinyakov/GalleryKeeper/internal/middleware"
	"github.com/atinyakov/GalleryKeeper/internal/models"
	"github.com/atinyakov/GalleryKeeper/internal/service"
	"github.com/go-chi/chi/v5"
)

// FavoritesService defines the favorites operations required by the FavoritesHandler.
type FavoritesService interface {
	Toggle(ctx context.Context, u service.FavoriteUpdate) (models.FavoriteSession, error)
	CollectionReport(ctx context.Context, collectionID string) (service.CollectionReport, error)
	ShareReport(ctx context.Context, shareToken, clientID string) (service.ShareReport, error)
}

// FavoritesHandler handles favorite toggles and favorites reports.
type FavoritesHandler struct {
	FavoritesService FavoritesService
}

// ToggleRequestBody represents the JSON payload of POST /favorites.
type ToggleRequestBody struct {
	ShareToken       string                `json:"shareToken"`
	ClientIdentifier string                `json:"clientIdentifier"`
	PhotoID          string                `json:"photoId"`
	Action           models.FavoriteAction `json:"action"`
	ClientInfo       *models.ClientInfo    `json:"clientInfo"`
}

// Toggle handles POST /favorites.
func (h *FavoritesHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	var body ToggleRequestBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err, "")
		return
	}
	token := firstNonEmpty(middleware.GetShareTokenFromContext(r.Context()), body.ShareToken)
	if token == "" {
		writeError(w, errs.Validationf("share token is required"), "")
		return
	}

	sess, err := h.FavoritesService.Toggle(r.Context(), service.FavoriteUpdate{
		ShareToken:       token,
		ClientIdentifier: body.ClientIdentifier,
		PhotoID:          body.PhotoID,
		Action:           body.Action,
		ClientInfo:       body.ClientInfo,
	})
	if err != nil {
		writeError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// ShareReport handles GET /favorites/shares/{token}. The optional "client"
// query parameter adds that client's own selection to the report.
func (h *FavoritesHandler) ShareReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.FavoritesService.ShareReport(r.Context(), chi.URLParam(r, "token"), r.URL.Query().Get("client"))
	if err != nil {
		writeError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// CollectionReport handles GET /favorites/collections/{id}/report.
func (h *FavoritesHandler) CollectionReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.FavoritesService.CollectionReport(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, report)
}
