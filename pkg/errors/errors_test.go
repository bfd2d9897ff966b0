package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"tattoo-datasync/pkg/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWrap_KeepsAppErrorType(t *testing.T) {
	err := Wrap(NewUnknownMigrationError("addGeohash"), "rollback")

	assert.True(t, IsNotFound(err))
	assert.True(t, HasCode(err, CodeUnknownMigration))
	assert.Contains(t, err.Error(), "rollback: migration 'addGeohash' not found")
}

func TestWrap_PlainErrorBecomesInternal(t *testing.T) {
	cause := fmt.Errorf("connection reset")
	err := Wrapf(cause, "scan %s", "artists")

	assert.True(t, IsType(err, ErrorTypeInternal))
	assert.ErrorIs(t, err, cause)
	assert.Nil(t, Wrap(nil, "ignored"))
}

func TestNewUnauthorizedError_DefaultMessage(t *testing.T) {
	err := NewUnauthorizedError("")

	assert.True(t, IsUnauthorized(err))
	assert.Equal(t, http.StatusUnauthorized, err.HTTPStatus)
	assert.Equal(t, "UNAUTHORIZED: unauthorized", err.Error())
}

func TestErrorHandler_RendersAppError(t *testing.T) {
	h := NewErrorHandler(zap.NewNop(), false)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/conflicts/resolve", nil)
	req = req.WithContext(common.WithRequestID(req.Context(), "req-1"))
	rec := httptest.NewRecorder()

	h.Handle(rec, req, NewLockedError("datasync"))

	assert.Equal(t, http.StatusConflict, rec.Code)
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Error)
	assert.Equal(t, string(ErrorTypeLocked), body.Type)
	assert.Equal(t, CodeRunLocked, body.Code)
	assert.Equal(t, "req-1", body.RequestID)
	assert.Nil(t, body.Details)
}

func TestErrorHandler_HidesUnexpectedErrors(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/backups", nil)

	rec := httptest.NewRecorder()
	NewErrorHandler(zap.NewNop(), false).Handle(rec, req, fmt.Errorf("secret detail"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "secret detail")

	rec = httptest.NewRecorder()
	NewErrorHandler(zap.NewNop(), true).Handle(rec, req, fmt.Errorf("secret detail"))
	assert.Contains(t, rec.Body.String(), "secret detail")
}

func TestErrorHandler_DebugAddsStackTrace(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/migrations", nil)

	NewErrorHandler(zap.NewNop(), true).Handle(rec, req, NewManifestMissingError("/tmp/snap"))

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "/tmp/snap", body.Details["dir"])
	assert.NotEmpty(t, body.Details["stack_trace"])
}

func TestErrorHandler_MiddlewareRecoversPanics(t *testing.T) {
	h := NewErrorHandler(zap.NewNop(), false)
	handler := h.Middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), string(ErrorTypeInternal))
}
