package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/gifteo/internal/apperror"
)

func TestWriteError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantMessage string
		wantField   string
	}{
		{"validation", apperror.ValidationFailed("name", "name is required"), http.StatusBadRequest, "name is required", "name"},
		{"wrapped not found", fmt.Errorf("service: %w", apperror.NotFound("wishlist", "w1")), http.StatusNotFound, "wishlist not found with id w1", ""},
		{"forbidden", apperror.Forbidden("nope"), http.StatusForbidden, "nope", ""},
		{"unauthenticated", apperror.Unauthenticated(), http.StatusUnauthorized, "valid authentication required", ""},
		{"conflict code", apperror.Conflict(apperror.CodeItemAlreadyClaimed, "someone else got it"), http.StatusOK, "item_already_claimed", ""},
		{"internal with safe message", apperror.Internal("could not extract product details from this page", errors.New("dial tcp")), http.StatusInternalServerError, "could not extract product details from this page", ""},
		{"unknown", errors.New("sql: database is locked"), http.StatusInternalServerError, genericInternalMessage, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var logs bytes.Buffer
			rec := httptest.NewRecorder()
			writeError(rec, slog.New(slog.NewTextHandler(&logs, nil)), tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)
			var body ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.False(t, body.Success)
			assert.Equal(t, tt.wantMessage, body.Message)
			assert.Equal(t, tt.wantField, body.Field)
		})
	}
}

func TestWriteError_LogsInternalDetail(t *testing.T) {
	var logs bytes.Buffer
	writeError(httptest.NewRecorder(), slog.New(slog.NewTextHandler(&logs, nil)),
		apperror.Internal("safe", errors.New("connection refused")))

	assert.Contains(t, logs.String(), "connection refused")
}

func TestWriteSuccess(t *testing.T) {
	rec := httptest.NewRecorder()
	writeSuccess(rec, http.StatusCreated, envelope{"id": "x1"})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"success":true,"id":"x1"}`, rec.Body.String())
}
