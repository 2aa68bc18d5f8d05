package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thomhuang/FireZipCodes/internal/logging"
	"github.com/thomhuang/FireZipCodes/internal/pipeline"
	"github.com/thomhuang/FireZipCodes/internal/report"
	"github.com/thomhuang/FireZipCodes/internal/types"
)

type mockRunner struct {
	result *pipeline.Result
	err    error
	radius float64
	calls  int
}

func (m *mockRunner) Run(_ context.Context, radiusKM float64) (*pipeline.Result, error) {
	m.calls++
	m.radius = radiusKM
	return m.result, m.err
}

func serve(t *testing.T, runner Runner, target string) *httptest.ResponseRecorder {
	t.Helper()
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("firezips_runs_total 0\n"))
	})
	h := NewHandler(runner, 2, metrics, logging.Discard())
	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorDetail {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func TestHandleAffected_OK(t *testing.T) {
	runner := &mockRunner{result: &pipeline.Result{
		RunID:       "run-1",
		RadiusKM:    5,
		Detections:  1,
		PostalAreas: 2,
		Affected:    types.AffectedAreaSet{"90001": {}},
	}}

	rec := serve(t, runner, "/v1/affected?radius=5")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, 5.0, runner.radius)

	var doc report.Document
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, []string{"90001"}, doc.Affected)
	assert.Equal(t, "run-1", doc.RunID)
}

func TestHandleAffected_BadRadiusParameter(t *testing.T) {
	for _, target := range []string{"/v1/affected", "/v1/affected?radius=far"} {
		t.Run(target, func(t *testing.T) {
			runner := &mockRunner{}
			rec := serve(t, runner, target)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "invalid_argument", decodeError(t, rec).Code)
			assert.Zero(t, runner.calls)
		})
	}
}

func TestHandleAffected_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"invalid radius", types.NewInvalidArgument("radius must be positive"), http.StatusBadRequest, "invalid_argument"},
		{"malformed feed", &types.ParseError{Source: "feed", Row: 3, Field: "confidence", Value: "high"}, http.StatusUnprocessableEntity, "parse_error"},
		{"upstream down", types.NewAppError(types.ErrCodeUpstreamUnavailable, "fetching feed failed", errors.New("503")), http.StatusBadGateway, "upstream_unavailable"},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, "internal_unexpected"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(t, &mockRunner{err: tt.err}, "/v1/affected?radius=5")
			assert.Equal(t, tt.status, rec.Code)
			detail := decodeError(t, rec)
			assert.Equal(t, tt.code, detail.Code)
			assert.NotEmpty(t, detail.RequestID)
			assert.NotContains(t, detail.Message, "boom")
		})
	}
}

func TestHandleHealth(t *testing.T) {
	rec := serve(t, &mockRunner{}, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","postal_areas":2}`, rec.Body.String())
}

func TestMetricsRoute(t *testing.T) {
	rec := serve(t, &mockRunner{}, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "firezips_runs_total")
}

func TestUnknownRoute(t *testing.T) {
	rec := serve(t, &mockRunner{}, "/v1/zips")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
