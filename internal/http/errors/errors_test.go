package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteError_AppError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, ErrInvalidState.WithDetail("state expired"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "INVALID_STATE", body["code"])
	assert.Equal(t, "state expired", body["detail"])
}

func TestWriteError_WrappedAndPlain(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, fmt.Errorf("callback: %w", ErrBadGateway))
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	rec = httptest.NewRecorder()
	WriteError(rec, stderrors.New("db exploded"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "db exploded")
}

func TestWithCause_DoesNotMutateBase(t *testing.T) {
	cause := stderrors.New("cause")
	e := ErrBadRequest.WithCause(cause)
	assert.Nil(t, ErrBadRequest.Err)
	assert.ErrorIs(t, e, cause)
	assert.Contains(t, e.Error(), "BAD_REQUEST")
}
