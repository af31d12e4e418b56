package store

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/collector-cli/internal/model"
)

// Pool is the subset of pgxpool.Pool the store needs; pgxmock satisfies it
// in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Close()
}

// PostgresStore implements TableStore, BatchInserter and RunLog on pgx.
type PostgresStore struct {
	pool  Pool
	table string
}

// NewPostgres connects a pool to the given database.
func NewPostgres(ctx context.Context, connString, table string) (*PostgresStore, error) {
	if err := validIdent(table); err != nil {
		return nil, err
	}
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	return &PostgresStore{pool: pool, table: table}, nil
}

// NewPostgresWithPool wraps an existing pool; used by tests.
func NewPostgresWithPool(pool Pool, table string) (*PostgresStore, error) {
	if err := validIdent(table); err != nil {
		return nil, err
	}
	return &PostgresStore{pool: pool, table: table}, nil
}

// Migrate creates the target table and the engine's side tables.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS field_defs (
			table_name TEXT NOT NULL,
			name       TEXT NOT NULL,
			kind       TEXT NOT NULL,
			pos        BIGSERIAL,
			PRIMARY KEY (table_name, name)
		)`,
		`CREATE TABLE IF NOT EXISTS run_log (
			id          TEXT PRIMARY KEY,
			kind        TEXT NOT NULL,
			report      JSONB NOT NULL,
			finished_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_run_log_kind ON run_log(kind, finished_at)`,
		`CREATE TABLE IF NOT EXISTS "` + s.table + `" (id BIGSERIAL PRIMARY KEY)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return eris.Wrap(err, "postgres: migrate")
		}
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) ListFields(ctx context.Context) ([]model.Field, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT name, kind FROM field_defs WHERE table_name = $1 ORDER BY pos`, s.table)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list fields")
	}
	defer rows.Close()

	var out []model.Field
	for rows.Next() {
		var f model.Field
		var kind string
		if err := rows.Scan(&f.Name, &kind); err != nil {
			return nil, eris.Wrap(err, "postgres: scan field")
		}
		f.Kind = model.FieldKind(kind)
		out = append(out, f)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list fields")
}

func (s *PostgresStore) EnsureField(ctx context.Context, name string, kind model.FieldKind) error {
	if err := validIdent(name); err != nil {
		return err
	}
	colType := "TEXT"
	if kind == model.FieldNumber {
		colType = "DOUBLE PRECISION"
	}
	if _, err := s.pool.Exec(ctx,
		`ALTER TABLE "`+s.table+`" ADD COLUMN IF NOT EXISTS "`+name+`" `+colType); err != nil {
		return eris.Wrapf(err, "postgres: add column %s", name)
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO field_defs (table_name, name, kind) VALUES ($1, $2, $3)
		 ON CONFLICT (table_name, name) DO NOTHING`,
		s.table, name, string(kind))
	return eris.Wrapf(err, "postgres: register field %s", name)
}

func (s *PostgresStore) ScanRecords(ctx context.Context, pageToken string) (*RecordPage, error) {
	after := int64(0)
	if pageToken != "" {
		n, err := strconv.ParseInt(pageToken, 10, 64)
		if err != nil {
			return nil, eris.Wrapf(err, "postgres: bad page token %q", pageToken)
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

	rows, err := s.pool.Query(ctx,
		`SELECT `+strings.Join(cols, ", ")+` FROM "`+s.table+`" WHERE id > $1 ORDER BY id LIMIT $2`,
		after, scanPageSize+1)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan records")
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
			return nil, eris.Wrap(err, "postgres: scan record row")
		}
		rec := Record{Values: make(map[string]any, len(fields))}
		switch id := vals[0].(type) {
		case int64:
			rec.ID = strconv.FormatInt(id, 10)
		case int32:
			rec.ID = strconv.FormatInt(int64(id), 10)
		default:
			return nil, eris.Errorf("postgres: unexpected id type %T", vals[0])
		}
		for i, f := range fields {
			if v := vals[i+1]; v != nil {
				rec.Values[f.Name] = v
			}
		}
		page.Records = append(page.Records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: scan records")
	}

	if len(page.Records) > scanPageSize {
		page.Records = page.Records[:scanPageSize]
		page.HasMore = true
		page.NextPageToken = page.Records[len(page.Records)-1].ID
	}
	return page, nil
}

func (s *PostgresStore) SetCellValue(ctx context.Context, field, rowID string, value any) error {
	if err := validIdent(field); err != nil {
		return err
	}
	id, err := strconv.ParseInt(rowID, 10, 64)
	if err != nil {
		return eris.Wrapf(err, "postgres: bad row id %q", rowID)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE "`+s.table+`" SET "`+field+`" = $1 WHERE id = $2`, value, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: set %s on row %s", field, rowID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: row %s not found", rowID)
	}
	return nil
}

func (s *PostgresStore) AddRecord(ctx context.Context, values map[string]any) (string, error) {
	sql, args, err := s.insertSQL(values)
	if err != nil {
		return "", err
	}
	var id int64
	if err := s.pool.QueryRow(ctx, sql, args...).Scan(&id); err != nil {
		return "", eris.Wrap(err, "postgres: insert record")
	}
	return strconv.FormatInt(id, 10), nil
}

// AddRecords appends the batch through one pipelined pgx batch, returning
// ids in input order.
func (s *PostgresStore) AddRecords(ctx context.Context, values []map[string]any) ([]string, error) {
	batch := &pgx.Batch{}
	for _, v := range values {
		sql, args, err := s.insertSQL(v)
		if err != nil {
			return nil, err
		}
		batch.Queue(sql, args...)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	ids := make([]string, 0, len(values))
	for range values {
		var id int64
		if err := results.QueryRow().Scan(&id); err != nil {
			return nil, eris.Wrap(err, "postgres: batch insert")
		}
		ids = append(ids, strconv.FormatInt(id, 10))
	}
	return ids, nil
}

func (s *PostgresStore) insertSQL(values map[string]any) (string, []any, error) {
	if len(values) == 0 {
		return "", nil, eris.New("postgres: empty record")
	}
	cols := make([]string, 0, len(values))
	marks := make([]string, 0, len(values))
	args := make([]any, 0, len(values))
	i := 1
	for name, v := range values {
		if err := validIdent(name); err != nil {
			return "", nil, err
		}
		cols = append(cols, `"`+name+`"`)
		marks = append(marks, "$"+strconv.Itoa(i))
		args = append(args, v)
		i++
	}
	sql := `INSERT INTO "` + s.table + `" (` + strings.Join(cols, ", ") + `) VALUES (` +
		strings.Join(marks, ", ") + `) RETURNING id`
	return sql, args, nil
}

func (s *PostgresStore) SaveReport(ctx context.Context, r model.RunReport) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal report")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO run_log (id, kind, report, finished_at) VALUES ($1, $2, $3, $4)`,
		r.RunID, string(r.Kind), payload, r.FinishedAt.UTC())
	return eris.Wrap(err, "postgres: save report")
}

func (s *PostgresStore) LastReport(ctx context.Context, kind model.RunKind) (*model.RunReport, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT report FROM run_log WHERE kind = $1 ORDER BY finished_at DESC LIMIT 1`,
		string(kind)).Scan(&payload)
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: last report")
	}
	var r model.RunReport
	if err := json.Unmarshal(payload, &r); err != nil {
		return nil, eris.Wrap(err, "postgres: decode report")
	}
	return &r, nil
}

func (s *PostgresStore) ListReports(ctx context.Context, limit int) ([]model.RunReport, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx,
		`SELECT report FROM run_log ORDER BY finished_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list reports")
	}
	defer rows.Close()

	var out []model.RunReport
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, eris.Wrap(err, "postgres: scan report")
		}
		var r model.RunReport
		if err := json.Unmarshal(payload, &r); err != nil {
			return nil, eris.Wrap(err, "postgres: decode report")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list reports")
}
