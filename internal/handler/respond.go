package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/quill-app/quill/internal/domain"
)

// maxJSONBody bounds request bodies for JSON endpoints (1 MB).
const maxJSONBody = 1 << 20

// writeJSON writes v as a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON decodes the request body into dst, rejecting unknown
// fields and oversized bodies.
func decodeJSON(r *http.Request, op string, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return domain.Invalid(op, "Invalid JSON request body")
	}
	return nil
}
