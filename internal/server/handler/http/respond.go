package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/atinyakov/GalleryKeeper/internal/errs"
)

// errorResponse is the body of every failed JSON request.
type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError answers with the status of err's class. A non-empty generic
// message replaces the error text for credential failures.
func writeError(w http.ResponseWriter, err error, generic string) {
	status := errs.HTTPStatus(err)
	msg := err.Error()
	switch {
	case status == http.StatusInternalServerError:
		msg = "internal error"
	case generic != "" && errors.Is(err, errs.ErrUnauthorized):
		msg = generic
	}
	writeJSON(w, status, errorResponse{Error: msg})
}

// decodeBody decodes a JSON request body into dst.
func decodeBody(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errs.Validationf("invalid body")
	}
	return nil
}

// firstNonEmpty returns the first non-empty value.
func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
