package http

import (
	"context"
	"encoding/json"
	"errors"
	stdhttp "net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"devflow/internal/core/version"
	phttp "devflow/internal/platform/net/http"
)

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func readyStatus(t *testing.T, d Deps) (int, ReadyResponse) {
	t.Helper()
	mux := chi.NewRouter()
	Register(phttp.AdaptChi(mux), d)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(stdhttp.MethodGet, "/ready", nil))
	var env struct {
		Data ReadyResponse `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return rec.Code, env.Data
}

func TestReady(t *testing.T) {
	down := pinger{err: errors.New("connection refused")}
	tests := []struct {
		name   string
		deps   Deps
		code   int
		status string
	}{
		{"all ok", Deps{PG: pinger{}, CH: pinger{}}, 200, "ok"},
		{"no clickhouse", Deps{PG: pinger{}}, 200, "ok"},
		{"clickhouse down", Deps{PG: pinger{}, CH: down}, 200, "degraded"},
		{"clickhouse required", Deps{PG: pinger{}, CH: down, CHRequired: true}, 503, "fail"},
		{"pg down", Deps{PG: down, CH: pinger{}}, 503, "fail"},
		{"pg missing", Deps{}, 503, "fail"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			code, body := readyStatus(t, tc.deps)
			if code != tc.code || body.Status != tc.status {
				t.Fatalf("code=%d status=%q want %d %q", code, body.Status, tc.code, tc.status)
			}
		})
	}
}

func TestHealthAndVersion(t *testing.T) {
	mux := chi.NewRouter()
	Register(phttp.AdaptChi(mux), Deps{
		ServiceName: "devflow-api",
		StartedAt:   time.Now().Add(-time.Minute),
		Build:       version.Info("devflow-api", 1),
	})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(stdhttp.MethodGet, "/health", nil))
	var h struct {
		Data HealthResponse `json:"data"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &h)
	if !h.Data.OK || h.Data.Service != "devflow-api" || h.Data.Uptime < 59 {
		t.Fatalf("health = %+v", h.Data)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(stdhttp.MethodGet, "/version", nil))
	var v struct {
		Data version.BuildInfo `json:"data"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &v)
	if v.Data.MetricsSchema != 1 || v.Data.Version != "dev" {
		t.Fatalf("version = %+v", v.Data)
	}
}
