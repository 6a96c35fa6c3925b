package repo

import (
	"context"
	"encoding/json"

	"devflow/internal/core/devmetrics"
	perr "devflow/internal/platform/errors"
	"devflow/internal/platform/store"
)

// mirrorTable receives one row per snapshot for cross developer analytics
const mirrorTable = "developer_metrics_snapshots"

const mirrorDDL = `
CREATE TABLE IF NOT EXISTS ` + mirrorTable + ` (
	developer_id  String,
	window_days   UInt16,
	window_start  DateTime64(3, 'UTC'),
	window_end    DateTime64(3, 'UTC'),
	computed_at   DateTime64(3, 'UTC'),
	data_quality  LowCardinality(String),
	commit_count  UInt32,
	mrs_merged    UInt32,
	pipeline_count UInt32,
	metrics       String,
	audit         String
) ENGINE = MergeTree
ORDER BY (developer_id, window_days, window_end, computed_at)`

// CH mirrors snapshots into clickhouse
type CH struct {
	ch store.Clickhouse
}

// NewCH returns a mirror over c
func NewCH(c store.Clickhouse) *CH {
	if c == nil {
		panic("metrics mirror requires a clickhouse client")
	}
	return &CH{ch: c}
}

// Ensure creates the mirror table
func (m *CH) Ensure(ctx context.Context) error {
	if err := m.ch.Exec(ctx, mirrorDDL); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeDB, "metrics: create %s", mirrorTable)
	}
	return nil
}

// Mirror appends results in one batch
func (m *CH) Mirror(ctx context.Context, results []devmetrics.Result) error {
	rows := make([][]any, 0, len(results))
	for _, r := range results {
		metrics, err := json.Marshal(r.Metrics)
		if err != nil {
			return perr.Wrapf(err, perr.ErrorCodeJSON, "metrics: encode mirror row")
		}
		audit, err := json.Marshal(r.Audit)
		if err != nil {
			return perr.Wrapf(err, perr.ErrorCodeJSON, "metrics: encode mirror row")
		}
		rows = append(rows, []any{
			r.DeveloperID,
			uint16(r.WindowDays),
			r.WindowStart.UTC(),
			r.WindowEnd.UTC(),
			r.ComputedAt.UTC(),
			string(r.Audit.DataQuality),
			uint32(r.Metrics.CommitCount),
			uint32(r.Metrics.MRsMerged),
			uint32(r.Metrics.PipelineCount),
			string(metrics),
			string(audit),
		})
	}
	if err := m.ch.Insert(ctx, mirrorTable, rows); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeDB, "metrics: mirror %d snapshots", len(rows))
	}
	return nil
}
