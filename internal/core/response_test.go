package core

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studiobook/internal/types"
)

func newRequestWithID(method, target, body string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	return req.WithContext(types.WithRequestID(req.Context(), "req-test-1"))
}

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	r := newRequestWithID(http.MethodGet, "/test", "")

	JSON(w, r, http.StatusCreated, APIResponse{Data: map[string]string{"id": "zone_1"}})

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var resp struct {
		Data map[string]string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "zone_1", resp.Data["id"])
}

func TestError_AppError(t *testing.T) {
	tests := []struct {
		name       string
		code       types.ErrorCode
		wantStatus int
	}{
		{"validation", types.ErrCodeValidationTimeRange, http.StatusBadRequest},
		{"not found", types.ErrCodeNotFoundClass, http.StatusNotFound},
		{"conflict", types.ErrCodeConflictCapacityExceeded, http.StatusConflict},
		{"webhook auth", types.ErrCodeWebhookSignatureInvalid, http.StatusUnauthorized},
		{"upstream", types.ErrCodeUpstreamPayment, http.StatusBadGateway},
		{"internal", types.ErrCodeInternalDB, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := newRequestWithID(http.MethodGet, "/test", "")

			Error(w, r, types.NewAppError(tt.code, "boom", nil))

			assert.Equal(t, tt.wantStatus, w.Code)

			var resp APIErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, string(tt.code), resp.Error.Code)
			assert.Equal(t, "boom", resp.Error.Message)
			assert.Equal(t, "req-test-1", resp.Error.RequestID)
		})
	}
}

func TestError_UnknownErrorHidesInternals(t *testing.T) {
	w := httptest.NewRecorder()
	r := newRequestWithID(http.MethodGet, "/test", "")

	Error(w, r, assert.AnError)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), assert.AnError.Error())

	var resp APIErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, string(types.ErrCodeInternalUnexpected), resp.Error.Code)
}

func TestError_IncludesDetails(t *testing.T) {
	w := httptest.NewRecorder()
	r := newRequestWithID(http.MethodGet, "/test", "")

	Error(w, r, types.NewAppErrorWithDetails(types.ErrCodeConflictZoneCapacity,
		"capacity_limit exceeds zone capacity", nil,
		map[string]any{"zone_max_capacity": 20}))

	var resp APIErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, float64(20), resp.Error.Details["zone_max_capacity"])
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Name     string `json:"name"`
		Capacity int    `json:"capacity"`
	}

	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"valid", `{"name":"Main Room","capacity":20}`, ""},
		{"unknown field", `{"name":"Main Room","bogus":true}`, "unknown field"},
		{"empty body", ``, "must not be empty"},
		{"truncated", `{"name":`, "malformed JSON"},
		{"malformed", `{"name"::1}`, "malformed JSON"},
		{"wrong type", `{"name":"x","capacity":"twenty"}`, "invalid value for field"},
		{"multiple values", `{"name":"a"}{"name":"b"}`, "single JSON object"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := newRequestWithID(http.MethodPost, "/test", tt.body)

			var dst payload
			err := DecodeJSON(w, r, &dst)

			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.Equal(t, "Main Room", dst.Name)
				return
			}

			require.Error(t, err)
			appErr, ok := err.(*types.AppError)
			require.True(t, ok, "expected *types.AppError, got %T", err)
			assert.Equal(t, errCodeValidationInvalidJSON, appErr.Code)
			assert.Contains(t, appErr.Message, tt.wantErr)
			assert.Equal(t, http.StatusBadRequest, appErr.HTTPStatus())
		})
	}
}
