package handler

// RESPONSE HELPERS:
// Every JSON body the API sends has the same envelope:
//
//	{"success": true, ...payload}
//	{"success": false, "message": "...", "error": "not_found"}
//
// The web client checks `success` first and only then looks for its
// payload key, so handlers never write a bare array or object.
//
// CONFLICTS ARE NOT HTTP ERRORS:
// "Already claimed", "already linked" and friends are idempotent no-ops the
// client handles inline. They come back as 200 with success=false and the
// machine-readable code as the message, e.g.
//
//	{"success": false, "message": "item_already_claimed"}

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/gifteo/internal/apperror"
)

// envelope is the payload part of a successful response.
type envelope map[string]any

// ErrorResponse is the body of every unsuccessful response.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"` // apperror.Kind, e.g. "not_found"
	Field   string `json:"field,omitempty"` // offending input field, validation only
}

const genericInternalMessage = "An internal error occurred"

// writeJSON sends data with the given status. Headers must be set before
// WriteHeader; anything after that is ignored by net/http.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are gone already; logging is all that is left.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeSuccess sends {"success": true} merged with payload.
func writeSuccess(w http.ResponseWriter, status int, payload envelope) {
	body := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		body[k] = v
	}
	body["success"] = true
	writeJSON(w, status, body)
}

// writeError maps a service error onto the envelope.
//
//	validation      → 400 (with field)
//	unauthenticated → 401
//	forbidden       → 403
//	not found       → 404
//	conflict        → 200, message = conflict code
//	anything else   → 500; the detail is logged, never sent
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var appErr *apperror.AppError
	hasAppErr := errors.As(err, &appErr)

	kind := apperror.KindOf(err)
	resp := ErrorResponse{Success: false, Error: kind.String()}
	status := http.StatusInternalServerError

	switch kind {
	case apperror.KindValidation:
		status = http.StatusBadRequest
	case apperror.KindUnauthenticated:
		status = http.StatusUnauthorized
	case apperror.KindForbidden:
		status = http.StatusForbidden
	case apperror.KindNotFound:
		status = http.StatusNotFound
	case apperror.KindConflict:
		status = http.StatusOK
	}

	switch {
	case kind == apperror.KindConflict && hasAppErr && appErr.Code != "":
		resp.Message = appErr.Code
		resp.Error = ""
	case kind == apperror.KindInternal:
		resp.Message = genericInternalMessage
		detail := err.Error()
		if hasAppErr {
			if appErr.Message != "" {
				resp.Message = appErr.Message
			}
			if appErr.Err != nil {
				detail = appErr.Err.Error()
			}
		}
		logger.Error("request failed", slog.String("error", detail))
	case hasAppErr:
		resp.Message = appErr.Message
		resp.Field = appErr.Field
	default:
		resp.Message = err.Error()
	}

	writeJSON(w, status, resp)
}
