package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/TimurManjosov/cclengine/internal/registry"
)

// maxBodyBytes bounds request bodies; a wallet with a few dozen
// certificates stays far below it.
const maxBodyBytes = 1 << 20

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON reads the request body into v and writes the error response
// itself when that fails.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			RequestTooLargeError(w, r, "request body exceeds 1 MiB")
		case errors.Is(err, io.EOF):
			BadRequestError(w, r, ErrCodeInvalidJSON, "request body is empty")
		default:
			BadRequestError(w, r, ErrCodeInvalidJSON, "invalid JSON: "+err.Error())
		}
		return false
	}
	return true
}

// selectionFromQuery reads country, version and allowDefault.
func selectionFromQuery(r *http.Request) ([]registry.EvalOption, error) {
	q := r.URL.Query()
	var opts []registry.EvalOption
	if c := strings.TrimSpace(q.Get("country")); c != "" {
		opts = append(opts, registry.WithCountry(c))
	}
	if v := strings.TrimSpace(q.Get("version")); v != "" {
		opts = append(opts, registry.WithVersion(v))
	}
	if raw := q.Get("allowDefault"); raw != "" {
		allow, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, errors.New("allowDefault must be a boolean")
		}
		opts = append(opts, registry.AllowDefault(allow))
	}
	return opts, nil
}
