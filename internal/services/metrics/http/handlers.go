// Package http provides http transport for metrics
package http

import (
	stdhttp "net/http"
	"strconv"

	"devflow/internal/core/devmetrics"
	"devflow/internal/core/identity"
	"devflow/internal/modkit/httpkit"
	perr "devflow/internal/platform/errors"
	"devflow/internal/services/metrics/domain"
)

// Register mounts metrics endpoints on the given router
func Register(r httpkit.Router, svc domain.ComputePort, catalog *devmetrics.Catalog) {
	h := &handlers{svc: svc, catalog: catalog}

	httpkit.PostJSON[ComputeRequest](r, "/compute", h.compute)
	httpkit.PostJSON[BatchRequest](r, "/batch", h.batch)
	httpkit.Get(r, "/latest", h.latest)
	httpkit.Get(r, "/catalog", h.catalogList)
	httpkit.Get(r, "/developers", h.developers)
}

type handlers struct {
	svc     domain.ComputePort
	catalog *devmetrics.Catalog
}

// ComputeRequest asks for one developer and window
type ComputeRequest struct {
	DeveloperID string `json:"developer_id" validate:"required,devref,max=256" example:"alice"`
	domain.Options
	// Record stores the result as a snapshot
	Record bool `json:"record"`
}

// BatchRequest asks for many developers in one window; empty ids means every configured developer
type BatchRequest struct {
	DeveloperIDs []string `json:"developer_ids" validate:"omitempty,max=500,dive,required,devref"`
	domain.Options
	Record bool `json:"record"`
}

// BatchResponse carries the results that succeeded
type BatchResponse struct {
	Results map[string]devmetrics.Result `json:"results"`
	Missing []string                     `json:"missing"`
	Summary *domain.RecordSummary        `json:"summary,omitempty"`
}

// CatalogResponse lists metric definitions
type CatalogResponse struct {
	SchemaVersion int                     `json:"schema_version" example:"1"`
	Metrics       []devmetrics.Definition `json:"metrics"`
}

// DevelopersResponse lists configured developers and windows
type DevelopersResponse struct {
	Developers []identity.Developer `json:"developers"`
	Windows    []int                `json:"windows"`
}

// swagger:route POST /metrics/compute Metrics metricsCompute
// @Summary Compute metrics for one developer and window
// @Tags Metrics
// @Accept json
// @Produce json
// @Param payload body ComputeRequest true "Query"
// @Success 200 {object} devmetrics.Result "ok"
// @Router /metrics/compute [post]
func (h *handlers) compute(r *stdhttp.Request, in ComputeRequest) (any, error) {
	res, err := h.svc.Compute(r.Context(), in.DeveloperID, in.Options)
	if err != nil {
		return nil, err
	}
	if in.Record {
		if _, err := h.svc.Record(r.Context(), []devmetrics.Result{res}); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// swagger:route POST /metrics/batch Metrics metricsBatch
// @Summary Compute metrics for many developers
// @Tags Metrics
// @Accept json
// @Produce json
// @Param payload body BatchRequest true "Query"
// @Success 200 {object} BatchResponse "ok"
// @Router /metrics/batch [post]
func (h *handlers) batch(r *stdhttp.Request, in BatchRequest) (any, error) {
	ids := in.DeveloperIDs
	if len(ids) == 0 {
		for _, d := range h.svc.Developers() {
			ids = append(ids, d.ID)
		}
	}
	got := h.svc.ComputeBatch(r.Context(), ids, in.Options)

	out := BatchResponse{Results: got, Missing: []string{}}
	results := make([]devmetrics.Result, 0, len(got))
	for _, id := range ids {
		res, ok := got[id]
		if !ok {
			out.Missing = append(out.Missing, id)
			continue
		}
		results = append(results, res)
	}
	if in.Record && len(results) > 0 {
		sum, err := h.svc.Record(r.Context(), results)
		if err != nil {
			return nil, err
		}
		out.Summary = &sum
	}
	return out, nil
}

// swagger:route GET /metrics/latest Metrics metricsLatest
// @Summary Latest stored snapshot
// @Tags Metrics
// @Produce json
// @Param developer query string true "Developer id, email or username"
// @Param window query int true "Window days"
// @Success 200 {object} domain.Snapshot "ok"
// @Router /metrics/latest [get]
func (h *handlers) latest(r *stdhttp.Request) (any, error) {
	q := r.URL.Query()
	days, err := strconv.Atoi(q.Get("window"))
	if err != nil {
		return nil, perr.WithField(perr.Validationf("window must be an integer"), "window")
	}
	return h.svc.Latest(r.Context(), q.Get("developer"), days)
}

// swagger:route GET /metrics/catalog Metrics metricsCatalog
// @Summary Metric definitions
// @Tags Metrics
// @Produce json
// @Success 200 {object} CatalogResponse "ok"
// @Router /metrics/catalog [get]
func (h *handlers) catalogList(_ *stdhttp.Request) (any, error) {
	return CatalogResponse{SchemaVersion: h.catalog.Version(), Metrics: h.catalog.Definitions()}, nil
}

// swagger:route GET /metrics/developers Metrics metricsDevelopers
// @Summary Configured developers and supported windows
// @Tags Metrics
// @Produce json
// @Success 200 {object} DevelopersResponse "ok"
// @Router /metrics/developers [get]
func (h *handlers) developers(_ *stdhttp.Request) (any, error) {
	return DevelopersResponse{Developers: h.svc.Developers(), Windows: h.svc.Windows()}, nil
}
