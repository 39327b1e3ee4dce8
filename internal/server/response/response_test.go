package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Leshauts/milo/pkg/errors"
)

func decode(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestOK(t *testing.T) {
	rec := httptest.NewRecorder()
	OK(rec, map[string]any{"level": 42})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	resp := decode(t, rec)
	assert.Nil(t, resp.Error)
	data := resp.Data.(map[string]any)
	assert.Equal(t, float64(42), data["level"])
}

func TestAccepted(t *testing.T) {
	rec := httptest.NewRecorder()
	Accepted(rec, map[string]string{"status": "transitioning"})

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Nil(t, decode(t, rec).Error)
}

func TestBusy(t *testing.T) {
	rec := httptest.NewRecorder()
	Busy(rec, "switching to bluetooth")

	assert.Equal(t, http.StatusConflict, rec.Code)
	resp := decode(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "BUSY", resp.Error.Code)
	assert.Equal(t, "switching to bluetooth", resp.Error.Details)
}

func TestMethodNotAllowed(t *testing.T) {
	rec := httptest.NewRecorder()
	MethodNotAllowed(rec, http.MethodDelete)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	resp := decode(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "METHOD_NOT_ALLOWED", resp.Error.Code)
	assert.Contains(t, resp.Error.Details, "DELETE")
}

func TestInternalError_HidesDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	InternalError(rec, errors.New("db password was hunter2"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decode(t, rec)
	require.NotNil(t, resp.Error)
	assert.NotContains(t, resp.Error.Message, "hunter2")
	assert.NotContains(t, resp.Error.Details, "hunter2")
}

func TestErrorFromType(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"busy", errors.NewBusyError("bluetooth", "librespot"), http.StatusConflict, "BUSY"},
		{"unknown source", errors.NewSourceError("tape"), http.StatusNotFound, "NOT_FOUND"},
		{"validation", errors.NewValidationError("level", 200, "out of range"), http.StatusBadRequest, "BAD_REQUEST"},
		{"no active source", errors.ErrNoActiveSource, http.StatusConflict, "NO_ACTIVE_SOURCE"},
		{"backend", errors.NewBackendError("snapcast", "start", errors.New("boom")), http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE"},
		{"unclassified", errors.New("surprise"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			ErrorFromType(rec, tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)
			resp := decode(t, rec)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
		})
	}
}
