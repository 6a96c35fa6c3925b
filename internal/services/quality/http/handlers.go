// Package http exposes data quality reports
package http

import (
	stdhttp "net/http"

	"devflow/internal/modkit/httpkit"
	"devflow/internal/services/quality/domain"
)

// Register mounts quality endpoints on the given router
func Register(r httpkit.Router, svc domain.AuditPort) {
	h := &handlers{svc: svc}
	httpkit.Get(r, "/report", h.report)
	httpkit.Get(r, "/report/latest", h.latest)
}

type handlers struct{ svc domain.AuditPort }

// swagger:route GET /quality/report Quality qualityReport
// @Summary Run the data quality checks now
// @Description Read only; the report is not stored
// @Tags Quality
// @Produce json
// @Success 200 {object} quality.Report "ok"
// @Router /quality/report [get]
func (h *handlers) report(r *stdhttp.Request) (any, error) {
	return h.svc.Audit(r.Context(), false)
}

// swagger:route GET /quality/report/latest Quality qualityLatest
// @Summary Latest stored data quality report
// @Tags Quality
// @Produce json
// @Success 200 {object} quality.Report "ok"
// @Failure 404 {object} map[string]any "no report stored yet"
// @Router /quality/report/latest [get]
func (h *handlers) latest(r *stdhttp.Request) (any, error) {
	return h.svc.Latest(r.Context())
}
