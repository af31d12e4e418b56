package scheduler

import (
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/collector-cli/internal/model"
	"github.com/sells-group/collector-cli/internal/store"
)

// pagedStore serves a fixed ordered record list through ScanRecords paging.
type pagedStore struct {
	records  []store.Record
	pageSize int
	scans    int
}

func (p *pagedStore) ScanRecords(_ context.Context, token string) (*store.RecordPage, error) {
	p.scans++
	start := 0
	if token != "" {
		start, _ = strconv.Atoi(token)
	}
	end := start + p.pageSize
	if end > len(p.records) {
		end = len(p.records)
	}
	page := &store.RecordPage{Records: p.records[start:end]}
	if end < len(p.records) {
		page.HasMore = true
		page.NextPageToken = strconv.Itoa(end)
	}
	return page, nil
}

func (p *pagedStore) ListFields(context.Context) ([]model.Field, error) { return nil, nil }
func (p *pagedStore) EnsureField(context.Context, string, model.FieldKind) error {
	return nil
}
func (p *pagedStore) SetCellValue(context.Context, string, string, any) error { return nil }
func (p *pagedStore) AddRecord(context.Context, map[string]any) (string, error) {
	return "", nil
}
func (p *pagedStore) Close() error { return nil }

func TestScanEmptySlots(t *testing.T) {
	p := &pagedStore{pageSize: 3, records: []store.Record{
		{ID: "1", Values: map[string]any{}},
		{ID: "2", Values: map[string]any{"share_url": "https://x.example/v/1"}},
		{ID: "3", Values: map[string]any{"caption": "   "}},
		{ID: "4", Values: map[string]any{"views": int64(12)}},
		{ID: "5", Values: map[string]any{"caption": nil}},
	}}

	pool, err := ScanEmptySlots(context.Background(), p, 500)
	require.NoError(t, err)
	require.Equal(t, 3, pool.Len())

	// Pool pops in table order.
	id, ok := pool.Pop()
	require.True(t, ok)
	assert.Equal(t, "1", id)
	id, _ = pool.Pop()
	assert.Equal(t, "3", id)
	id, _ = pool.Pop()
	assert.Equal(t, "5", id)
	_, ok = pool.Pop()
	assert.False(t, ok)
}

func TestScanEmptySlots_BoundedByRowsExamined(t *testing.T) {
	var records []store.Record
	for i := 0; i < 40; i++ {
		records = append(records, store.Record{ID: strconv.Itoa(i), Values: map[string]any{}})
	}
	p := &pagedStore{pageSize: 10, records: records}

	pool, err := ScanEmptySlots(context.Background(), p, 25)
	require.NoError(t, err)
	assert.Equal(t, 25, pool.Len())
	assert.Equal(t, 3, p.scans)
}

func TestScanSeenKeys_SeedsAccountFallbackKeys(t *testing.T) {
	// Rows written for items without a share URL store the account key in
	// the key column; a later run must still dedup against them.
	p := &pagedStore{pageSize: 10, records: []store.Record{
		{ID: "1", Values: map[string]any{"share_url": "https://clipstream/@Maker"}},
	}}

	seen, err := ScanSeenKeys(context.Background(), p, "share_url", 5000)
	require.NoError(t, err)
	assert.Equal(t, 1, seen.Len())
	assert.True(t, seen.Has("https://clipstream/@maker"))
}

func TestScanSeenKeys_Recanonicalizes(t *testing.T) {
	p := &pagedStore{pageSize: 10, records: []store.Record{
		{ID: "1", Values: map[string]any{"share_url": "HTTPS://X.Example/v/1/?utm=z"}},
		{ID: "2", Values: map[string]any{"share_url": "https://x.example/v/2"}},
		{ID: "3", Values: map[string]any{"share_url": "  "}},
		{ID: "4", Values: map[string]any{"views": int64(3)}},
	}}

	seen, err := ScanSeenKeys(context.Background(), p, "share_url", 5000)
	require.NoError(t, err)
	assert.Equal(t, 2, seen.Len())
	assert.True(t, seen.Has("https://x.example/v/1"))
	assert.True(t, seen.Has("https://x.example/v/2"))
}
