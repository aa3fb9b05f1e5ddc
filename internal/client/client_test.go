package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/atinyakov/GalleryKeeper/internal/middleware"
	"github.com/atinyakov/GalleryKeeper/internal/service"
)

type roundTripperFunc func(req *http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func newTestClient(fn roundTripperFunc) *http.Client {
	return &http.Client{Transport: fn, Timeout: time.Second}
}

func TestRequestPin_SendsTokenAndBody(t *testing.T) {
	var got PinRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != apiRequest {
			t.Errorf("path = %s", r.URL.Path)
		}
		if tok := r.Header.Get(middleware.ShareTokenHeader); tok != "tok" {
			t.Errorf("share token = %q", tok)
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("content type = %q", r.Header.Get("Content-Type"))
		}
		if r.Header.Get(requestIDHeader) == "" {
			t.Error("missing request id")
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(service.PinGrant{Pin: "0042", MaxAttempts: 5})
	}))
	defer srv.Close()

	c := New(srv.URL, "tok", srv.Client())
	grant, err := c.RequestPin(context.Background(), PinRequest{PhotoID: "p1", Resolution: "web"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if grant.Pin != "0042" || grant.MaxAttempts != 5 {
		t.Errorf("grant = %+v", grant)
	}
	if got.PhotoID != "p1" || got.Resolution != "web" {
		t.Errorf("server got %+v", got)
	}
}

func TestVerifyPin_ServerError(t *testing.T) {
	c := New("http://example.com", "tok", newTestClient(func(req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusForbidden,
			Body:       io.NopCloser(strings.NewReader(`{"error":"invalid or expired pin"}`)),
		}, nil
	}))
	_, err := c.VerifyPin(context.Background(), "1234")
	if err == nil || !strings.Contains(err.Error(), "server error (403): invalid or expired pin") {
		t.Errorf("expected server error, got %v", err)
	}
}

func TestVerifyPin_NetworkError(t *testing.T) {
	c := New("http://example.com", "", newTestClient(func(req *http.Request) (*http.Response, error) {
		return nil, errors.New("network down")
	}))
	_, err := c.VerifyPin(context.Background(), "1234")
	if err == nil || !strings.Contains(err.Error(), "network down") {
		t.Errorf("expected network failure, got %v", err)
	}
}

func TestVerifyPin_InvalidJSON(t *testing.T) {
	c := New("http://example.com", "", newTestClient(func(req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(strings.NewReader("not-json")),
		}, nil
	}))
	_, err := c.VerifyPin(context.Background(), "1234")
	if err == nil || !strings.Contains(err.Error(), "failed to decode response") {
		t.Errorf("expected decode error, got %v", err)
	}
}

func TestFetch_ResolvesRelativeLink(t *testing.T) {
	var gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotQuery = r.URL.Path, r.URL.RawQuery
		_, _ = w.Write([]byte("jpeg-bytes"))
	}))
	defer srv.Close()

	c := New(srv.URL+"/", "", srv.Client())
	var buf bytes.Buffer
	n, err := c.Fetch(context.Background(), "/downloads/secure?path=web%2Fa.jpg&expires=1&signature=ab", &buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != int64(len("jpeg-bytes")) || buf.String() != "jpeg-bytes" {
		t.Errorf("fetched %d bytes: %q", n, buf.String())
	}
	if gotPath != "/downloads/secure" || !strings.Contains(gotQuery, "signature=ab") {
		t.Errorf("server saw %s?%s", gotPath, gotQuery)
	}
}

func TestFetch_NotFound(t *testing.T) {
	c := New("http://example.com", "", newTestClient(func(req *http.Request) (*http.Response, error) {
		if req.URL.Host != "cdn.example.com" {
			t.Errorf("absolute link was rewritten: %s", req.URL)
		}
		return &http.Response{
			StatusCode: http.StatusNotFound,
			Body:       io.NopCloser(strings.NewReader(`{"error":"file not found"}`)),
		}, nil
	}))
	_, err := c.Fetch(context.Background(), "https://cdn.example.com/downloads/secure?path=x", io.Discard)
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Errorf("expected 404 error, got %v", err)
	}
}

func TestNewHTTPClient(t *testing.T) {
	if c, err := NewHTTPClient(""); err != nil || c == nil {
		t.Fatalf("NewHTTPClient(\"\") = %v, %v", c, err)
	}
	if _, err := NewHTTPClient(filepath.Join(t.TempDir(), "missing.crt")); err == nil {
		t.Error("expected error for missing CA file")
	}
	bad := filepath.Join(t.TempDir(), "bad.crt")
	if err := os.WriteFile(bad, []byte("not a cert"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := NewHTTPClient(bad); err == nil || !strings.Contains(err.Error(), "failed to parse CA cert") {
		t.Errorf("expected parse error, got %v", err)
	}
}
