package utils

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teahouse-backend/pkg/apperror"
)

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) errorEnvelope {
	t.Helper()
	var env errorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func TestWriteAppErrorValidation(t *testing.T) {
	rec := httptest.NewRecorder()
	err := apperror.New(apperror.CodeValidation, "優惠碼已過期").WithDetails(map[string]string{"reason": "expired"})

	WriteAppError(context.Background(), rec, err)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
	assert.Equal(t, "優惠碼已過期", env.Error.Message)
	assert.Equal(t, map[string]any{"reason": "expired"}, env.Error.Details)
}

func TestWriteAppErrorHidesInternalText(t *testing.T) {
	rec := httptest.NewRecorder()

	WriteAppError(context.Background(), rec, errors.New("pq: relation orders does not exist"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, "INTERNAL_ERROR", env.Error.Code)
	assert.Equal(t, "internal server error", env.Error.Message)
	assert.Nil(t, env.Error.Details)
}
