package httputil

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "rollguard/pkg/domain-errors"
)

type nameRequest struct {
	Name     string `json:"name" validate:"notblank"`
	RoleType string `json:"role_type" validate:"oneof=first_name last_name parent_name guardian_name"`
	trimmed  bool
}

func (r *nameRequest) Sanitize() {
	r.trimmed = true
}

type notesRequest struct {
	Action string `json:"action"`
	Notes  string `json:"notes"`
}

func (r *notesRequest) Validate() error {
	if r.Action == "rejected" && r.Notes == "" {
		return errors.New("notes are required when rejecting")
	}
	if r.Action == "" {
		return dErrors.New(dErrors.CodeBadRequest, "action is required")
	}
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestDecodeJSON(t *testing.T) {
	ctx := context.Background()

	t.Run("decodes body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"name":"Asha","role_type":"first_name"}`))
		w := httptest.NewRecorder()

		got, ok := DecodeJSON[nameRequest](w, req, discardLogger(), ctx, "req-1")
		require.True(t, ok)
		assert.Equal(t, "Asha", got.Name)
	})

	t.Run("malformed body is bad request", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{broken`))
		w := httptest.NewRecorder()

		got, ok := DecodeJSON[nameRequest](w, req, discardLogger(), ctx, "req-2")
		assert.False(t, ok)
		assert.Nil(t, got)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "bad_request", decodeError(t, w).Error)
	})
}

func TestDecodeAndPrepare(t *testing.T) {
	ctx := context.Background()

	t.Run("runs sanitize and struct tags", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"name":"Asha","role_type":"last_name"}`))
		w := httptest.NewRecorder()

		got, ok := DecodeAndPrepare[nameRequest](w, req, discardLogger(), ctx, "req-3")
		require.True(t, ok)
		assert.True(t, got.trimmed)
	})

	t.Run("struct tag failure is a validation error", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"name":"Asha","role_type":"alias"}`))
		w := httptest.NewRecorder()

		_, ok := DecodeAndPrepare[nameRequest](w, req, discardLogger(), ctx, "req-4")
		assert.False(t, ok)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "validation_error", decodeError(t, w).Error)
	})

	t.Run("domain error code from Validate is preserved", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{}`))
		w := httptest.NewRecorder()

		_, ok := DecodeAndPrepare[notesRequest](w, req, discardLogger(), ctx, "req-5")
		assert.False(t, ok)
		assert.Equal(t, "bad_request", decodeError(t, w).Error)
	})

	t.Run("plain error from Validate becomes validation error", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"action":"rejected"}`))
		w := httptest.NewRecorder()

		_, ok := DecodeAndPrepare[notesRequest](w, req, discardLogger(), ctx, "req-6")
		assert.False(t, ok)
		resp := decodeError(t, w)
		assert.Equal(t, "validation_error", resp.Error)
		assert.Contains(t, resp.Description, "notes are required")
	})
}
