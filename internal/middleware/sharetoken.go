// Package middleware provides HTTP middlewares for share-token extraction,
// request logging and request metrics.
package middleware

import (
	"context"
	"net/http"
	"strings"
)

type ctxKey string

const shareTokenKey ctxKey = "shareToken"

// ShareTokenHeader carries the share link access token.
const ShareTokenHeader = "X-Share-Token"

// ShareToken is a middleware that reads the share link access token from the
// X-Share-Token header or, failing that, the "token" query parameter, and
// stores it in the request context. Requests without a token pass through
// unchanged; handlers decide whether one is required.
func ShareToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimSpace(r.Header.Get(ShareTokenHeader))
		if token == "" {
			token = strings.TrimSpace(r.URL.Query().Get("token"))
		}
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}
		ctx := context.WithValue(r.Context(), shareTokenKey, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetShareTokenFromContext extracts the share token stored by ShareToken.
// Returns an empty string if not found.
func GetShareTokenFromContext(ctx context.Context) string {
	val := ctx.Value(shareTokenKey)
	if s, ok := val.(string); ok {
		return s
	}
	return ""
}
