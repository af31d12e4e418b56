package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/collector-cli/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"), "content")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestSQLite_EnsureAndListFields(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.EnsureField(ctx, "share_url", model.FieldURL))
	require.NoError(t, s.EnsureField(ctx, "views", model.FieldNumber))
	// Idempotent.
	require.NoError(t, s.EnsureField(ctx, "share_url", model.FieldURL))

	fields, err := s.ListFields(ctx)
	require.NoError(t, err)
	require.Len(t, fields, 2)
	assert.Equal(t, model.Field{Name: "share_url", Kind: model.FieldURL}, fields[0])
	assert.Equal(t, model.Field{Name: "views", Kind: model.FieldNumber}, fields[1])
}

func TestSQLite_EnsureField_RejectsBadIdent(t *testing.T) {
	s := newTestStore(t)
	err := s.EnsureField(context.Background(), `x"; DROP TABLE content; --`, model.FieldText)
	require.Error(t, err)
}

func TestSQLite_AddScanSetCell(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.EnsureField(ctx, "share_url", model.FieldURL))
	require.NoError(t, s.EnsureField(ctx, "views", model.FieldNumber))

	id1, err := s.AddRecord(ctx, map[string]any{"share_url": "https://x.example/v/1", "views": int64(10)})
	require.NoError(t, err)
	id2, err := s.AddRecord(ctx, map[string]any{"share_url": "https://x.example/v/2"})
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)

	page, err := s.ScanRecords(ctx, "")
	require.NoError(t, err)
	require.Len(t, page.Records, 2)
	assert.False(t, page.HasMore)
	assert.Equal(t, "https://x.example/v/1", page.Records[0].Values["share_url"])
	assert.Equal(t, int64(10), page.Records[0].Values["views"])
	// Unset cell is absent, not a zero value.
	assert.NotContains(t, page.Records[1].Values, "views")

	require.NoError(t, s.SetCellValue(ctx, "views", id2, int64(99)))
	page, err = s.ScanRecords(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, int64(99), page.Records[1].Values["views"])

	// Missing row errors.
	require.Error(t, s.SetCellValue(ctx, "views", "424242", int64(1)))
}

func TestSQLite_AddRecords_Batch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.EnsureField(ctx, "share_url", model.FieldURL))

	batch := []map[string]any{
		{"share_url": "https://x.example/v/1"},
		{"share_url": "https://x.example/v/2"},
		{"share_url": "https://x.example/v/3"},
	}
	ids, err := s.AddRecords(ctx, batch)
	require.NoError(t, err)
	require.Len(t, ids, 3)

	page, err := s.ScanRecords(ctx, "")
	require.NoError(t, err)
	assert.Len(t, page.Records, 3)
}

func TestSQLite_ScanRecords_Paging(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.EnsureField(ctx, "share_url", model.FieldURL))

	var batch []map[string]any
	for i := 0; i < scanPageSize+7; i++ {
		batch = append(batch, map[string]any{"share_url": "https://x.example/v"})
	}
	_, err := s.AddRecords(ctx, batch)
	require.NoError(t, err)

	first, err := s.ScanRecords(ctx, "")
	require.NoError(t, err)
	assert.Len(t, first.Records, scanPageSize)
	require.True(t, first.HasMore)

	second, err := s.ScanRecords(ctx, first.NextPageToken)
	require.NoError(t, err)
	assert.Len(t, second.Records, 7)
	assert.False(t, second.HasMore)
}

func TestSQLite_RunLog(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	none, err := s.LastReport(ctx, model.RunKindKeyword)
	require.NoError(t, err)
	assert.Nil(t, none)

	r1 := model.RunReport{
		RunID: "r1", Kind: model.RunKindKeyword, State: model.RunStateCompleted,
		EndCause: model.EndCauseCompleted, TotalWritten: 10, Pages: 2,
		FinishedAt: time.Now().Add(-time.Hour),
	}
	r2 := r1
	r2.RunID = "r2"
	r2.TotalWritten = 3
	r2.FinishedAt = time.Now()
	require.NoError(t, s.SaveReport(ctx, r1))
	require.NoError(t, s.SaveReport(ctx, r2))

	last, err := s.LastReport(ctx, model.RunKindKeyword)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, "r2", last.RunID)

	all, err := s.ListReports(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
