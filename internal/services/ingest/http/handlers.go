// Package http provides http transport for ingest run history
package http

import (
	stdhttp "net/http"

	"devflow/internal/modkit/httpkit"
	"devflow/internal/services/ingest/domain"
)

// Register mounts ingest endpoints on the given router
func Register(r httpkit.Router, runner domain.RunnerPort) {
	h := &handlers{runner: runner}

	httpkit.Get(r, "/runs/latest", h.latest)
}

type handlers struct{ runner domain.RunnerPort }

// swagger:route GET /ingest/runs/latest Ingest ingestLatestRun
// @Summary Most recent run for a trigger kind
// @Tags Ingest
// @Produce json
// @Param trigger query string false "incremental, backfill or discovery" default(incremental)
// @Success 200 {object} domain.Run "ok"
// @Router /ingest/runs/latest [get]
func (h *handlers) latest(r *stdhttp.Request) (any, error) {
	kind := domain.KindIncremental
	if v := r.URL.Query().Get("trigger"); v != "" {
		kind = domain.TriggerKind(v)
	}
	return h.runner.LatestRun(r.Context(), kind)
}
