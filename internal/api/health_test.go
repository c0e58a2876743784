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

	"github.com/ashureev/vetcheck/internal/healthz"
)

type staticChecker healthz.Report

func (s staticChecker) Check(context.Context) healthz.Report { return healthz.Report(s) }

func TestHealth(t *testing.T) {
	tests := []struct {
		name   string
		report healthz.Report
		code   int
		status string
	}{
		{"healthy", healthz.Report{Providers: map[string]error{"vqa": nil}}, http.StatusOK, "healthy"},
		{"provider down", healthz.Report{Providers: map[string]error{"vqa": errors.New("refused")}}, http.StatusOK, "degraded"},
		{"database down", healthz.Report{Database: errors.New("closed")}, http.StatusServiceUnavailable, "degraded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			NewHealthHandler(staticChecker(tt.report)).Health(w, httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, tt.code, w.Code)
			var body struct {
				Status string            `json:"status"`
				Checks map[string]string `json:"checks"`
			}
			require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
			assert.Equal(t, tt.status, body.Status)
			assert.Equal(t, "ok", body.Checks["api"])
		})
	}
}
