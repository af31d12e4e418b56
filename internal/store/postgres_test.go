package store

import (
	"context"
	"regexp"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/collector-cli/internal/model"
)

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })
	s, err := NewPostgresWithPool(mock, "content")
	require.NoError(t, err)
	return s, mock
}

func TestPostgres_EnsureField(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta(`ALTER TABLE "content" ADD COLUMN IF NOT EXISTS "views" DOUBLE PRECISION`)).
		WillReturnResult(pgxmock.NewResult("ALTER", 0))
	mock.ExpectExec(`INSERT INTO field_defs`).
		WithArgs("content", "views", "number").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.EnsureField(context.Background(), "views", model.FieldNumber))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_EnsureField_RejectsBadIdent(t *testing.T) {
	s, _ := newMockStore(t)
	require.Error(t, s.EnsureField(context.Background(), `v"; DROP TABLE content; --`, model.FieldText))
}

func TestPostgres_SetCellValue(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "content" SET "views" = $1 WHERE id = $2`)).
		WithArgs(int64(42), int64(7)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, s.SetCellValue(context.Background(), "views", "7", int64(42)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_SetCellValue_MissingRow(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "content" SET "views" = $1 WHERE id = $2`)).
		WithArgs(int64(42), int64(999)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	require.Error(t, s.SetCellValue(context.Background(), "views", "999", int64(42)))
}

func TestPostgres_AddRecord(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`INSERT INTO "content"`).
		WithArgs("https://x.example/v/1").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(11)))

	id, err := s.AddRecord(context.Background(), map[string]any{"share_url": "https://x.example/v/1"})
	require.NoError(t, err)
	assert.Equal(t, "11", id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ListFields(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT name, kind FROM field_defs`).
		WithArgs("content").
		WillReturnRows(pgxmock.NewRows([]string{"name", "kind"}).
			AddRow("share_url", "url").
			AddRow("views", "number"))

	fields, err := s.ListFields(context.Background())
	require.NoError(t, err)
	require.Len(t, fields, 2)
	assert.Equal(t, model.FieldURL, fields[0].Kind)
	assert.Equal(t, model.FieldNumber, fields[1].Kind)
}

func TestPostgres_LastReport_None(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT report FROM run_log`).
		WithArgs("keyword").
		WillReturnError(pgx.ErrNoRows)

	r, err := s.LastReport(context.Background(), model.RunKindKeyword)
	require.NoError(t, err)
	assert.Nil(t, r)
}
