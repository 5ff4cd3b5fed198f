package web

// errors.go provides unified error response handling for the web layer.
//
// The error flow:
//  1. Handler encounters a domain error
//  2. Calls respondError(w, r, err, statusCode)
//  3. Error is mapped via imports.MapError to a user-friendly message
//  4. Technical error + context is logged with the request ID for correlation
//  5. The user message is written as JSON

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/reliantlabs/medcat/internal/imports"
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action)
// fields.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// respondError handles error responses with user-friendly messages.
// It logs the technical error server-side and returns the mapped message.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	userMsg := imports.MapError(err)

	slog.Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", statusCode,
		"error", err.Error(),
		"code", userMsg.Code,
		"request_id", middleware.GetReqID(r.Context()),
	)

	writeJSON(w, statusCode, ErrorResponse{
		Error:   userMsg.Message,
		Message: userMsg.Message,
		Action:  userMsg.Action,
		Code:    userMsg.Code,
	})
}

// importErrorStatus maps import service errors to HTTP status codes.
// Anything unrecognized falls back to 400: every other error the service
// returns synchronously describes a problem with the request.
func importErrorStatus(err error) int {
	switch {
	case errors.Is(err, imports.ErrInvalidFileType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, imports.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, imports.ErrPhase):
		return http.StatusConflict
	case errors.Is(err, imports.ErrBusy):
		return http.StatusTooManyRequests
	case errors.Is(err, imports.ErrReconciliationUnavailable),
		errors.Is(err, imports.ErrPersistenceFailed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadRequest
	}
}
