// Package urlsign issues and verifies time-limited, HMAC-signed download
// links scoped to a single file under the upload root. No server-side state
// is kept: a link is valid exactly when its signature recomputes.
package urlsign

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/atinyakov/GalleryKeeper/internal/errs"
)

// Query parameter names carried by a signed link.
const (
	ParamPath      = "path"
	ParamExpires   = "expires"
	ParamSignature = "signature"
)

// Token is a signed capability for one file path.
type Token struct {
	FilePath  string
	Expires   int64 // unix milliseconds
	Signature string
}

// Query encodes the token as URL query parameters.
func (t Token) Query() url.Values {
	q := url.Values{}
	q.Set(ParamPath, t.FilePath)
	q.Set(ParamExpires, strconv.FormatInt(t.Expires, 10))
	q.Set(ParamSignature, t.Signature)
	return q
}

// URL appends the token to base, e.g. "https://host/downloads/secure".
func (t Token) URL(base string) string {
	return base + "?" + t.Query().Encode()
}

// Signer signs and verifies capability tokens.
type Signer struct {
	secret []byte
	root   string
	now    func() time.Time
}

// Option configures a Signer.
type Option func(*Signer)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Signer) { s.now = now }
}

// New returns a Signer for files below uploadRoot.
func New(secret, uploadRoot string, opts ...Option) (*Signer, error) {
	if secret == "" {
		return nil, fmt.Errorf("hmac secret is required")
	}
	if strings.TrimSpace(uploadRoot) == "" {
		return nil, fmt.Errorf("upload root is required")
	}
	root, err := filepath.Abs(uploadRoot)
	if err != nil {
		return nil, fmt.Errorf("resolve upload root: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		root = resolved
	}

	s := &Signer{secret: []byte(secret), root: root, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Root returns the absolute upload root.
func (s *Signer) Root() string {
	return s.root
}

// Issue signs filePath for ttl from now.
func (s *Signer) Issue(filePath string, ttl time.Duration) Token {
	expires := s.now().Add(ttl).UnixMilli()
	return Token{
		FilePath:  filePath,
		Expires:   expires,
		Signature: s.sign(filePath, expires),
	}
}

// Verify checks a token and returns the absolute path it grants. Checks run
// in order: expiry, signature, then containment in the upload root, which
// also rejects symlinks leading outside it.
func (s *Signer) Verify(filePath string, expires int64, signature string) (string, error) {
	if s.now().UnixMilli() > expires {
		return "", errs.ErrTokenExpired
	}
	expected := s.sign(filePath, expires)
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(signature))) {
		return "", errs.ErrBadSignature
	}
	return s.resolve(filePath)
}

// VerifyQuery reads path, expires and signature from q and verifies them.
func (s *Signer) VerifyQuery(q url.Values) (string, error) {
	filePath := q.Get(ParamPath)
	rawExpires := q.Get(ParamExpires)
	signature := q.Get(ParamSignature)
	if filePath == "" || rawExpires == "" || signature == "" {
		return "", errs.Validationf("path, expires and signature are required")
	}
	expires, err := strconv.ParseInt(rawExpires, 10, 64)
	if err != nil {
		return "", errs.Validationf("expires must be an integer")
	}
	return s.Verify(filePath, expires, signature)
}

func (s *Signer) sign(filePath string, expires int64) string {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(filePath + ":" + strconv.FormatInt(expires, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}

func (s *Signer) resolve(filePath string) (string, error) {
	if strings.ContainsRune(filePath, 0) {
		return "", errs.ErrAccessDenied
	}
	abs := filepath.Join(s.root, filepath.FromSlash(filePath))
	if !within(s.root, abs) {
		return "", errs.ErrAccessDenied
	}

	resolved, err := filepath.EvalSymlinks(abs)
	switch {
	case err == nil:
		if !within(s.root, resolved) {
			return "", errs.ErrAccessDenied
		}
		return resolved, nil
	case errors.Is(err, fs.ErrNotExist):
		// The file itself may be absent, which the delivery endpoint reports,
		// but its nearest existing ancestor must not lead out of the root.
		if !s.ancestorWithin(filepath.Dir(abs)) {
			return "", errs.ErrAccessDenied
		}
		return abs, nil
	default:
		return "", fmt.Errorf("%w: resolve %s: %w", errs.ErrInternal, filePath, err)
	}
}

func (s *Signer) ancestorWithin(dir string) bool {
	for {
		resolved, err := filepath.EvalSymlinks(dir)
		if err == nil {
			return resolved == s.root || within(s.root, resolved)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return false
		}
		dir = parent
	}
}

// within reports whether path lies strictly below root.
func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return false
	}
	return !filepath.IsAbs(rel)
}
