package http_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/atinyakov/GalleryKeeper/internal/middleware"
	handler "github.com/atinyakov/GalleryKeeper/internal/server/handler/http"
	"go.uber.org/zap"
)

func newTestRouter() (http.Handler, *fakeDownloadService, *fakeFavoritesService) {
	dl := &fakeDownloadService{}
	fav := &fakeFavoritesService{}
	r := handler.NewRouter(
		&handler.DownloadHandler{DownloadService: dl},
		&handler.FavoritesHandler{FavoritesService: fav},
		zap.NewNop(),
	)
	return r, dl, fav
}

func TestRouter_Routes(t *testing.T) {
	r, _, _ := newTestRouter()

	tests := []struct {
		method, target, body string
		want                 int
	}{
		{http.MethodGet, "/healthz", "", http.StatusOK},
		{http.MethodGet, "/metrics", "", http.StatusOK},
		{http.MethodPost, "/download/request", `{"photoId":"p1"}`, http.StatusOK},
		{http.MethodPost, "/download/verify", `{"pin":"1234"}`, http.StatusOK},
		{http.MethodGet, "/favorites/shares/tok", "", http.StatusOK},
		{http.MethodGet, "/favorites/collections/c1/report", "", http.StatusOK},
		{http.MethodGet, "/download/request", "", http.StatusMethodNotAllowed},
		{http.MethodGet, "/nowhere", "", http.StatusNotFound},
	}
	for _, tc := range tests {
		req := httptest.NewRequest(tc.method, tc.target, strings.NewReader(tc.body))
		if tc.body != "" {
			req.Header.Set("Content-Type", "application/json")
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != tc.want {
			t.Errorf("%s %s: status = %d; want %d", tc.method, tc.target, w.Code, tc.want)
		}
	}
}

func TestRouter_RejectsNonJSON(t *testing.T) {
	r, _, _ := newTestRouter()

	req := httptest.NewRequest(http.MethodPost, "/download/verify", strings.NewReader(`pin=1234`))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnsupportedMediaType {
		t.Errorf("status = %d; want 415", w.Code)
	}
}

func TestRouter_ShareTokenHeader(t *testing.T) {
	r, dl, _ := newTestRouter()

	req := httptest.NewRequest(http.MethodPost, "/download/verify", strings.NewReader(`{"pin":"1234"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.ShareTokenHeader, "tok")
	r.ServeHTTP(httptest.NewRecorder(), req)

	if dl.gotToken != "tok" {
		t.Errorf("token = %q; want tok", dl.gotToken)
	}
}
