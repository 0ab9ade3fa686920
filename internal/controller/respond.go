// internal/controller/respond.go
package controller

import (
	"encoding/json"
	"errors"
	"net/http"

	appErrors "github.com/unclebandit/venue-broadcast/internal/errors"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	body := errorBody{Error: err.Error()}
	var verr *appErrors.ValidationError
	if errors.As(err, &verr) {
		body.Field = verr.Field
	}
	writeJSON(w, status, body)
}

// decodeBody reads a bounded JSON body into dst.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return appErrors.NewValidationError("body", "invalid JSON: "+err.Error())
	}
	return nil
}
