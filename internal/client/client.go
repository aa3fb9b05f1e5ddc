// Package client implements a small HTTP client for the gallery download
// gate: request a PIN, trade it for a signed link, fetch the file.
package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/atinyakov/GalleryKeeper/internal/middleware"
	"github.com/atinyakov/GalleryKeeper/internal/service"
	"github.com/google/uuid"
)

const (
	apiRequest = "/download/request"
	apiVerify  = "/download/verify"
)

// requestIDHeader matches chi's RequestID middleware.
const requestIDHeader = "X-Request-Id"

// Client talks to a running gallery server on behalf of one share link.
type Client struct {
	BaseURL    string
	ShareToken string
	HTTP       *http.Client
}

// New creates a Client. A nil httpClient uses a client with a 10s timeout.
func New(baseURL, shareToken string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{BaseURL: strings.TrimRight(baseURL, "/"), ShareToken: shareToken, HTTP: httpClient}
}

// NewHTTPClient returns an http.Client that trusts only the CA in caFile.
// An empty caFile uses the system roots.
func NewHTTPClient(caFile string) (*http.Client, error) {
	if caFile == "" {
		return &http.Client{Timeout: 10 * time.Second}, nil
	}
	caCert, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA cert: %w", err)
	}
	caPool := x509.NewCertPool()
	if !caPool.AppendCertsFromPEM(caCert) {
		return nil, errors.New("failed to parse CA cert")
	}
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			RootCAs:    caPool,
			MinVersion: tls.VersionTLS12,
		},
	}
	return &http.Client{Transport: transport, Timeout: 10 * time.Second}, nil
}

// PinRequest is the body of a PIN request.
type PinRequest struct {
	PhotoID      string `json:"photoId,omitempty"`
	CollectionID string `json:"collectionId,omitempty"`
	ClientEmail  string `json:"clientEmail,omitempty"`
	Resolution   string `json:"resolution,omitempty"`
}

// RequestPin asks the server to issue a download PIN.
func (c *Client) RequestPin(ctx context.Context, req PinRequest) (service.PinGrant, error) {
	var grant service.PinGrant
	err := c.postJSON(ctx, apiRequest, req, &grant)
	return grant, err
}

// VerifyPin trades a PIN for a signed download link.
func (c *Client) VerifyPin(ctx context.Context, pin string) (service.DownloadGrant, error) {
	var grant service.DownloadGrant
	err := c.postJSON(ctx, apiVerify, map[string]string{"pin": pin}, &grant)
	return grant, err
}

// Fetch downloads the file behind a signed link into w and returns the
// number of bytes written. Relative links are resolved against BaseURL.
func (c *Client) Fetch(ctx context.Context, downloadURL string, w io.Writer) (int64, error) {
	target, err := c.resolve(downloadURL)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set(requestIDHeader, uuid.NewString())

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, serverError(resp)
	}
	return io.Copy(w, resp.Body)
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	b, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(requestIDHeader, uuid.NewString())
	if c.ShareToken != "" {
		req.Header.Set(middleware.ShareTokenHeader, c.ShareToken)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%s failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return serverError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) resolve(link string) (string, error) {
	u, err := url.Parse(link)
	if err != nil {
		return "", fmt.Errorf("invalid download url: %w", err)
	}
	if u.IsAbs() {
		return link, nil
	}
	base, err := url.Parse(c.BaseURL + "/")
	if err != nil {
		return "", fmt.Errorf("invalid base url: %w", err)
	}
	return base.ResolveReference(u).String(), nil
}

// serverError turns a non-200 response into an error carrying the server's
// message.
func serverError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var body struct {
		Error string `json:"error"`
	}
	msg := strings.TrimSpace(string(data))
	if json.Unmarshal(data, &body) == nil && body.Error != "" {
		msg = body.Error
	}
	return fmt.Errorf("server error (%d): %s", resp.StatusCode, msg)
}
