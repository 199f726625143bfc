package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/eventdesk/server/internal/api/pagination"
	"github.com/eventdesk/server/internal/fault"
)

// envelope is the success body shared by every JSON endpoint.
type envelope struct {
	Success       bool             `json:"success"`
	Authenticated *bool            `json:"authenticated,omitempty"`
	Message       string           `json:"message,omitempty"`
	Data          any              `json:"data,omitempty"`
	Pagination    *pagination.Meta `json:"pagination,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeData(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, envelope{Success: true, Message: message, Data: data})
}

var (
	errEmptyBody    = fault.Validation("body", "request body is required")
	errMalformed    = fault.Validation("body", "request body must be valid JSON")
	errBodyTooLarge = fault.Validation("body", "request body is too large")
)

// decodeJSON reads one JSON object from the request body into dst.
func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return errEmptyBody
		case errors.As(err, &maxErr):
			return errBodyTooLarge
		default:
			return errMalformed
		}
	}
	return nil
}
