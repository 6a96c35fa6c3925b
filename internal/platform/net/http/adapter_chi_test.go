package http

import (
	stdhttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

func serve(h stdhttp.Handler, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func status(code int) Handler {
	return func(w stdhttp.ResponseWriter, _ *stdhttp.Request) { w.WriteHeader(code) }
}

func TestAdaptChiRoutes(t *testing.T) {
	mux := chi.NewRouter()
	r := AdaptChi(mux)

	var scoped []string
	r.Get("/health", status(stdhttp.StatusOK))
	r.Method(stdhttp.MethodDelete, "/runs/1", status(stdhttp.StatusNoContent))
	r.Handle("/docs/*", stdhttp.HandlerFunc(status(stdhttp.StatusTeapot)))
	r.Route("/api/v1", func(api Router) {
		api.Use(func(next stdhttp.Handler) stdhttp.Handler {
			return stdhttp.HandlerFunc(func(w stdhttp.ResponseWriter, req *stdhttp.Request) {
				scoped = append(scoped, req.URL.Path)
				next.ServeHTTP(w, req)
			})
		})
		api.Post("/metrics/compute", status(stdhttp.StatusCreated))
		api.Group(func(g Router) {
			g.Get("/quality/report", status(stdhttp.StatusOK))
		})
	})

	cases := []struct {
		method, path string
		want         int
	}{
		{stdhttp.MethodGet, "/health", stdhttp.StatusOK},
		{stdhttp.MethodDelete, "/runs/1", stdhttp.StatusNoContent},
		{stdhttp.MethodGet, "/docs/index.html", stdhttp.StatusTeapot},
		{stdhttp.MethodPost, "/api/v1/metrics/compute", stdhttp.StatusCreated},
		{stdhttp.MethodGet, "/api/v1/quality/report", stdhttp.StatusOK},
		{stdhttp.MethodGet, "/api/v1/metrics/compute", stdhttp.StatusMethodNotAllowed},
		{stdhttp.MethodGet, "/missing", stdhttp.StatusNotFound},
	}
	for _, tc := range cases {
		if rec := serve(r.Mux(), tc.method, tc.path); rec.Code != tc.want {
			t.Errorf("%s %s = %d, want %d", tc.method, tc.path, rec.Code, tc.want)
		}
	}
	if len(scoped) < 2 {
		t.Fatalf("scoped middleware saw %v", scoped)
	}
	for _, p := range scoped {
		if !strings.HasPrefix(p, "/api/v1/") {
			t.Fatalf("middleware leaked outside its scope: %v", scoped)
		}
	}
}

func TestSubrouterMuxServesScope(t *testing.T) {
	mux := chi.NewRouter()
	var sub Router
	AdaptChi(mux).Route("/ingest", func(r Router) {
		r.Get("/runs/latest", status(stdhttp.StatusOK))
		sub = r
	})
	if rec := serve(sub.Mux(), stdhttp.MethodGet, "/runs/latest"); rec.Code != stdhttp.StatusOK {
		t.Fatalf("sub mux status = %d", rec.Code)
	}
}
