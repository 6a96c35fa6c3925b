package http

import (
	"context"
	"encoding/json"
	stdhttp "net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	perr "devflow/internal/platform/errors"
	phttp "devflow/internal/platform/net/http"
	"devflow/internal/services/ingest/domain"
)

type fakeRunner struct {
	asked domain.TriggerKind
	run   domain.Run
	err   error
}

func (f *fakeRunner) Run(context.Context, domain.Trigger) (domain.Run, error) { return f.run, f.err }

func (f *fakeRunner) LatestRun(_ context.Context, k domain.TriggerKind) (domain.Run, error) {
	f.asked = k
	return f.run, f.err
}

func serve(t *testing.T, fr *fakeRunner, target string) *httptest.ResponseRecorder {
	t.Helper()
	mux := chi.NewRouter()
	Register(phttp.AdaptChi(mux), fr)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(stdhttp.MethodGet, target, nil))
	return rec
}

func TestLatestDefaultsToIncremental(t *testing.T) {
	fr := &fakeRunner{run: domain.Run{Trigger: domain.KindIncremental, State: domain.StateCompleted, ProjectsOK: 3}}
	rec := serve(t, fr, "/runs/latest")
	if rec.Code != stdhttp.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	if fr.asked != domain.KindIncremental {
		t.Fatalf("asked = %q", fr.asked)
	}
	var env struct {
		Data struct {
			Status string `json:"status"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Data.Status != string(domain.StateCompleted) {
		t.Fatalf("status field = %q", env.Data.Status)
	}
}

func TestLatestPassesTriggerAndMapsErrors(t *testing.T) {
	fr := &fakeRunner{err: perr.NotFoundf("no backfill run")}
	rec := serve(t, fr, "/runs/latest?trigger=backfill")
	if fr.asked != domain.KindBackfill {
		t.Fatalf("asked = %q", fr.asked)
	}
	if rec.Code != stdhttp.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}
