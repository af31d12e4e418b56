// Package store defines the target-datastore contract and its backends. The
// engine drives any row/column store that can list and add fields, scan its
// records in pages, write single cells, and append records.
package store

import (
	"context"
	"regexp"

	"github.com/rotisserie/eris"

	"github.com/sells-group/collector-cli/internal/model"
)

// Record is one stored row: its backend-assigned identifier plus the cell
// values keyed by field name.
type Record struct {
	ID     string
	Values map[string]any
}

// RecordPage is one page of a bounded table scan.
type RecordPage struct {
	Records       []Record
	HasMore       bool
	NextPageToken string
}

// TableStore is the capability the engine needs from a target table. Writes
// are at-least-once; no transactional guarantee is assumed across calls.
type TableStore interface {
	ListFields(ctx context.Context) ([]model.Field, error)
	EnsureField(ctx context.Context, name string, kind model.FieldKind) error
	ScanRecords(ctx context.Context, pageToken string) (*RecordPage, error)
	SetCellValue(ctx context.Context, field, rowID string, value any) error
	AddRecord(ctx context.Context, values map[string]any) (string, error)
	Close() error
}

// BatchInserter is the optional batch-append capability. Backends without it
// are driven one record at a time with no behavioral difference beyond
// throughput.
type BatchInserter interface {
	AddRecords(ctx context.Context, values []map[string]any) ([]string, error)
}

// RunLog persists per-run outcomes so `status` works across invocations.
type RunLog interface {
	SaveReport(ctx context.Context, r model.RunReport) error
	LastReport(ctx context.Context, kind model.RunKind) (*model.RunReport, error)
	ListReports(ctx context.Context, limit int) ([]model.RunReport, error)
}

// identPattern is the shape of a safe SQL identifier. Field and table names
// are interpolated into DDL, so anything else is rejected up front.
var identPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func validIdent(name string) error {
	if !identPattern.MatchString(name) {
		return eris.Errorf("store: invalid identifier %q", name)
	}
	return nil
}

// scanPageSize is the fixed page size of ScanRecords for the SQL backends.
const scanPageSize = 200
