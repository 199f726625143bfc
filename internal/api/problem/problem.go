// Package problem writes the JSON error envelope shared by every endpoint:
// {"success": false, "error": <code>, "message": <text>}.
package problem

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/eventdesk/server/internal/fault"
	"github.com/rs/zerolog"
)

const contentType = "application/json"

type Body struct {
	Success       bool   `json:"success"`
	Error         string `json:"error"`
	Message       string `json:"message"`
	Authenticated *bool  `json:"authenticated,omitempty"`
}

type Option func(*Body)

// WithAuthenticated adds the "authenticated" flag session probes rely on.
func WithAuthenticated(authenticated bool) Option {
	return func(b *Body) {
		b.Authenticated = &authenticated
	}
}

// WithMessage replaces the message derived from the error.
func WithMessage(message string) Option {
	return func(b *Body) {
		b.Message = message
	}
}

// Status maps an error to its HTTP status. Registration rejections are
// reported as 400 to match existing clients.
func Status(err error) int {
	switch fault.CodeOf(err) {
	case "already_registered", "event_full", "registration_closed":
		return http.StatusBadRequest
	}
	switch fault.KindOf(err) {
	case fault.KindAuth:
		return http.StatusUnauthorized
	case fault.KindForbidden:
		return http.StatusForbidden
	case fault.KindValidation:
		return http.StatusBadRequest
	case fault.KindConflict:
		return http.StatusConflict
	case fault.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Write classifies err and writes the envelope. Server-side failures are
// logged with their cause and reported without internal detail outside
// development and test environments.
func Write(w http.ResponseWriter, r *http.Request, err error, env string, opts ...Option) {
	if err == nil {
		err = errors.New("unknown error")
	}
	status := Status(err)

	body := Body{Error: fault.CodeOf(err), Message: fault.MessageOf(err)}
	if status >= http.StatusInternalServerError {
		body.Error = "internal_error"
		body.Message = "internal server error"
		if env == "development" || env == "test" {
			body.Message = err.Error()
		}
	}
	if body.Error == "" {
		body.Error = http.StatusText(status)
	}
	if body.Message == "" {
		body.Message = err.Error()
	}
	for _, opt := range opts {
		opt(&body)
	}

	if r != nil {
		logger := zerolog.Ctx(r.Context())
		event := logger.Warn()
		if status >= http.StatusInternalServerError {
			event = logger.Error()
		}
		event.Err(err).
			Int("status", status).
			Str("code", body.Error).
			Str("path", r.URL.Path).
			Str("method", r.Method).
			Msg("request failed")
	}

	WriteBody(w, status, body)
}

// WriteBody writes body with status.
func WriteBody(w http.ResponseWriter, status int, body Body) {
	payload, err := json.Marshal(body)
	if err != nil {
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"success":false,"error":"internal_error","message":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	_, _ = w.Write(payload)
}
