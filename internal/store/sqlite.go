package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/collector-cli/internal/model"
)

// SQLiteStore implements TableStore, BatchInserter and RunLog using
// modernc.org/sqlite. Columns are added dynamically per EnsureField; declared
// field kinds are kept in a side table because SQLite's column affinity is
// too loose to round-trip them.
type SQLiteStore struct {
	db    *sql.DB
	table string
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn, table string) (*SQLiteStore, error) {
	if err := validIdent(table); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, table: table}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS field_defs (
	table_name TEXT NOT NULL,
	name       TEXT NOT NULL,
	kind       TEXT NOT NULL,
	PRIMARY KEY (table_name, name)
);

CREATE TABLE IF NOT EXISTS run_log (
	id          TEXT PRIMARY KEY,
	kind        TEXT NOT NULL,
	report      TEXT NOT NULL,
	finished_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_run_log_kind ON run_log(kind, finished_at);
`

// Migrate creates the target table and the engine's side tables.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteMigration); err != nil {
		return eris.Wrap(err, "sqlite: migrate")
	}
	_, err := s.db.ExecContext(ctx,
		`CREATE TABLE IF NOT EXISTS "`+s.table+`" (id INTEGER PRIMARY KEY AUTOINCREMENT)`)
	return eris.Wrapf(err, "sqlite: create table %s", s.table)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) ListFields(ctx context.Context) ([]model.Field, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, kind FROM field_defs WHERE table_name = ? ORDER BY rowid`, s.table)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list fields")
	}
	defer rows.Close()

	var out []model.Field
	for rows.Next() {
		var f model.Field
		var kind string
		if err := rows.Scan(&f.Name, &kind); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan field")
		}
		f.Kind = model.FieldKind(kind)
		out = append(out, f)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list fields")
}

func (s *SQLiteStore) EnsureField(ctx context.Context, name string, kind model.FieldKind) error {
	if err := validIdent(name); err != nil {
		return err
	}
	var existing string
	err := s.db.QueryRowContext(ctx,
		`SELECT kind FROM field_defs WHERE table_name = ? AND name = ?`, s.table, name).Scan(&existing)
	if err == nil {
		return nil
	}
	if !eris.Is(err, sql.ErrNoRows) {
		return eris.Wrapf(err, "sqlite: lookup field %s", name)
	}

	colType := "TEXT"
	if kind == model.FieldNumber {
		colType = "NUMERIC"
	}
	if _, err := s.db.ExecContext(ctx,
		`ALTER TABLE "`+s.table+`" ADD COLUMN "`+name+`" `+colType); err != nil {
		return eris.Wrapf(err, "sqlite: add column %s", name)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO field_defs (table_name, name, kind) VALUES (?, ?, ?)`, s.table, name, string(kind))
	return eris.Wrapf(err, "sqlite: register field %s", name)
}

func (s *SQLiteStore) ScanRecords(ctx context.Context, pageToken string) (*RecordPage, error) {
	after := int64(0)
	if pageToken != "" {
		n, err := strconv.ParseInt(pageToken, 10, 64)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: bad page token %q", pageToken)
		}
		after = n
	}

	fields, err := s.ListFields(ctx)
	if err != nil {
		return nil, err
	}
	cols := make([]string, 0, len(fields)+1)
	cols = append(cols, "id")
	for _, f := range fields {
		cols = append(cols, `"`+f.Name+`"`)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+strings.Join(cols, ", ")+` FROM "`+s.table+`" WHERE id > ? ORDER BY id LIMIT ?`,
		after, scanPageSize+1)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan records")
	}
	defer rows.Close()

	page := &RecordPage{}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan record row")
		}
		rec := Record{Values: make(map[string]any, len(fields))}
		rec.ID = strconv.FormatInt(vals[0].(int64), 10)
		for i, f := range fields {
			v := vals[i+1]
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			if v != nil {
				rec.Values[f.Name] = v
			}
		}
		page.Records = append(page.Records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: scan records")
	}

	if len(page.Records) > scanPageSize {
		page.Records = page.Records[:scanPageSize]
		page.HasMore = true
		page.NextPageToken = page.Records[len(page.Records)-1].ID
	}
	return page, nil
}

func (s *SQLiteStore) SetCellValue(ctx context.Context, field, rowID string, value any) error {
	if err := validIdent(field); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE "`+s.table+`" SET "`+field+`" = ? WHERE id = ?`, value, rowID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set %s on row %s", field, rowID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Errorf("sqlite: row %s not found", rowID)
	}
	return nil
}

func (s *SQLiteStore) AddRecord(ctx context.Context, values map[string]any) (string, error) {
	return s.addRecord(ctx, s.db, values)
}

// AddRecords appends a batch inside one transaction. The assigned ids are
// returned in input order.
func (s *SQLiteStore) AddRecords(ctx context.Context, values []map[string]any) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin batch")
	}
	defer tx.Rollback()

	ids := make([]string, 0, len(values))
	for _, v := range values {
		id, err := s.addRecord(ctx, tx, v)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit batch")
	}
	return ids, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLiteStore) addRecord(ctx context.Context, db execer, values map[string]any) (string, error) {
	if len(values) == 0 {
		return "", eris.New("sqlite: empty record")
	}
	cols := make([]string, 0, len(values))
	marks := make([]string, 0, len(values))
	args := make([]any, 0, len(values))
	for name, v := range values {
		if err := validIdent(name); err != nil {
			return "", err
		}
		cols = append(cols, `"`+name+`"`)
		marks = append(marks, "?")
		args = append(args, v)
	}
	res, err := db.ExecContext(ctx,
		`INSERT INTO "`+s.table+`" (`+strings.Join(cols, ", ")+`) VALUES (`+strings.Join(marks, ", ")+`)`,
		args...)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: insert record")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return "", eris.Wrap(err, "sqlite: last insert id")
	}
	return strconv.FormatInt(id, 10), nil
}

// SaveReport appends a run outcome to the run log.
func (s *SQLiteStore) SaveReport(ctx context.Context, r model.RunReport) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal report")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO run_log (id, kind, report, finished_at) VALUES (?, ?, ?, ?)`,
		r.RunID, string(r.Kind), string(payload), r.FinishedAt.UTC())
	return eris.Wrap(err, "sqlite: save report")
}

// LastReport returns the most recent report for a run kind, or nil.
func (s *SQLiteStore) LastReport(ctx context.Context, kind model.RunKind) (*model.RunReport, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT report FROM run_log WHERE kind = ? ORDER BY finished_at DESC LIMIT 1`,
		string(kind)).Scan(&payload)
	if eris.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: last report")
	}
	var r model.RunReport
	if err := json.Unmarshal([]byte(payload), &r); err != nil {
		return nil, eris.Wrap(err, "sqlite: decode report")
	}
	return &r, nil
}

// ListReports returns recent reports, newest first.
func (s *SQLiteStore) ListReports(ctx context.Context, limit int) ([]model.RunReport, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT report FROM run_log ORDER BY finished_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list reports")
	}
	defer rows.Close()

	var out []model.RunReport
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan report")
		}
		var r model.RunReport
		if err := json.Unmarshal([]byte(payload), &r); err != nil {
			return nil, eris.Wrap(err, "sqlite: decode report")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list reports")
}
