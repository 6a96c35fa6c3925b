// Package export writes metric snapshots and the metric catalog as append-only JSON files
package export

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"devflow/internal/core/devmetrics"
	perr "devflow/internal/platform/errors"
	"devflow/internal/platform/logger"
)

// File name stamps stay sortable and free of colons. computedLayout keeps
// nanoseconds so recomputations within one second get distinct files
const (
	stampLayout    = "20060102T150405Z"
	computedLayout = "20060102T150405.000000000Z"
)

// Snapshot is the on-disk shape of one result
type Snapshot struct {
	SchemaVersion int `json:"schema_version"`
	devmetrics.Result
}

// CatalogFile is the on-disk shape of the metric catalog
type CatalogFile struct {
	SchemaVersion int                     `json:"schema_version"`
	Metrics       []devmetrics.Definition `json:"metrics"`
}

// Writer lays files out under Dir; it never overwrites an existing file
type Writer struct {
	Dir string
}

// New returns a writer rooted at dir
func New(dir string) *Writer {
	if dir == "" {
		panic("export.Writer requires a directory")
	}
	return &Writer{Dir: dir}
}

// SnapshotPath is <dir>/<developer>/<N>d/<windowEnd>_<computedAt>_v<schema>.json
func (w *Writer) SnapshotPath(r devmetrics.Result) (string, error) {
	dev, err := safeSegment(r.DeveloperID)
	if err != nil {
		return "", err
	}
	name := r.WindowEnd.UTC().Format(stampLayout) + "_" +
		r.ComputedAt.UTC().Format(computedLayout) + "_v" + strconv.Itoa(devmetrics.SchemaVersion) + ".json"
	return filepath.Join(w.Dir, dev, strconv.Itoa(r.WindowDays)+"d", name), nil
}

// Write stores r and returns the file path; an existing snapshot is a Conflict
func (w *Writer) Write(r devmetrics.Result) (string, error) {
	path, err := w.SnapshotPath(r)
	if err != nil {
		return "", err
	}
	if err := writeExclusive(path, Snapshot{SchemaVersion: devmetrics.SchemaVersion, Result: r}); err != nil {
		return "", err
	}
	logger.Named("export").Debug().Str("path", path).Str("developer_id", r.DeveloperID).Msg("snapshot written")
	return path, nil
}

// WriteCatalog stores catalog_v<schema>.json once per schema version
func (w *Writer) WriteCatalog(c *devmetrics.Catalog) (string, error) {
	path := filepath.Join(w.Dir, "catalog_v"+strconv.Itoa(c.Version())+".json")
	err := writeExclusive(path, CatalogFile{SchemaVersion: c.Version(), Metrics: c.Definitions()})
	if perr.IsCode(err, perr.ErrorCodeConflict) {
		// a schema version's catalog never changes
		return path, nil
	}
	return path, err
}

func writeExclusive(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeJSON, "export: encode %s", filepath.Base(path))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeUnknown, "export: mkdir %s", filepath.Dir(path))
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return perr.Wrapf(err, perr.ErrorCodeConflict, "export: %s already exists", path)
		}
		return perr.Wrapf(err, perr.ErrorCodeUnknown, "export: create %s", path)
	}
	if _, err := f.Write(append(b, '\n')); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return perr.Wrapf(err, perr.ErrorCodeUnknown, "export: write %s", path)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return perr.Wrapf(err, perr.ErrorCodeUnknown, "export: close %s", path)
	}
	return nil
}

// safeSegment refuses ids that would escape the export directory
func safeSegment(id string) (string, error) {
	s := strings.TrimSpace(id)
	if s == "" || s == "." || s == ".." || strings.ContainsAny(s, `/\`) || strings.ContainsRune(s, 0) {
		return "", perr.Validationf("export: unusable developer id %q", id)
	}
	return s, nil
}
