package project

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/collector-cli/internal/model"
)

func testItem(url string) *model.RawItem {
	return &model.RawItem{
		ID:           "v1",
		Platform:     "www.example.com",
		AuthorHandle: "creator",
		ShareURL:     url,
		CreatedAt:    time.Now().Add(-48 * time.Hour),
		Duration:     37.8,
		Stats:        model.Stats{Views: 1000, Likes: 100, Comments: 20, Shares: 30},
	}
}

func newCtx(t *testing.T, fields ...string) *RunContext {
	t.Helper()
	cfg := model.NewRunConfig(model.Query{Kind: model.RunKindKeyword, Keyword: "mugs"}, "content", fields)
	return NewRunContext(cfg, NewKeySet())
}

func TestProject_DedupAcrossVariants(t *testing.T) {
	rc := newCtx(t)
	first := Project(testItem("https://www.example.com/v/1"), rc)
	require.NotNil(t, first)
	assert.Equal(t, "https://www.example.com/v/1", first.Key)

	// Same logical URL, different query string and casing: skipped.
	dup := Project(testItem("HTTPS://WWW.EXAMPLE.COM/v/1?utm=x"), rc)
	assert.Nil(t, dup)
	assert.Equal(t, 1, rc.Seen.Len())
}

func TestProject_AccountFallbackKeyIsStored(t *testing.T) {
	rc := newCtx(t)
	it := testItem("") // no usable share URL, dedup falls back to the account
	rec := Project(it, rc)
	require.NotNil(t, rec)

	// The key column carries the computed dedup key so a later run's
	// pre-scan can seed its seen set from it.
	assert.Equal(t, "https://www.example.com/@creator", rec.Key)
	assert.Equal(t, rec.Key, rec.Values["share_url"])
}

func TestProject_KeyColumnIgnoresSelection(t *testing.T) {
	rc := newCtx(t, "views")
	rec := Project(testItem("https://www.example.com/v/9"), rc)
	require.NotNil(t, rec)
	assert.Equal(t, "https://www.example.com/v/9", rec.Values["share_url"])
	assert.Contains(t, rec.Values, "views")
}

func TestProject_NoKeySkips(t *testing.T) {
	rc := newCtx(t)
	it := testItem("")
	it.AuthorHandle = ""
	assert.Nil(t, Project(it, rc))
	assert.Equal(t, 0, rc.Seen.Len())
}

func TestProject_NumericTruncation(t *testing.T) {
	rc := newCtx(t)
	rec := Project(testItem("https://www.example.com/v/2"), rc)
	require.NotNil(t, rec)

	// Plain numbers truncate to integers.
	assert.Equal(t, int64(37), rec.Values["duration_secs"])
	assert.Equal(t, int64(1000), rec.Values["views"])

	// The two ratio/frequency fields keep their fraction.
	rate, ok := rec.Values["engagement_rate"].(float64)
	require.True(t, ok)
	assert.InDelta(t, 0.15, rate, 1e-9)
	_, ok = rec.Values["engagements_per_day"].(float64)
	assert.True(t, ok)
}

func TestProject_FieldSelection(t *testing.T) {
	rc := newCtx(t, "share_url", "views", "keyword")
	rec := Project(testItem("https://www.example.com/v/3"), rc)
	require.NotNil(t, rec)
	assert.Equal(t, []string{"share_url", "views", "keyword"}, rec.Order)
	assert.Equal(t, "mugs", rec.Values["keyword"])
	assert.NotContains(t, rec.Values, "caption")
}

func TestProject_CommerceGate(t *testing.T) {
	rc := newCtx(t)
	it := testItem("https://www.example.com/v/4")
	it.Commerce.IsShoppable = true
	rec := Project(it, rc)
	require.NotNil(t, rec)
	assert.Equal(t, int64(1), rec.Values["is_commercial"])
	assert.Equal(t, "commercial_flag", rec.Values["commerce_reasons"])

	plain := Project(testItem("https://www.example.com/v/5"), rc)
	require.NotNil(t, plain)
	assert.Equal(t, int64(0), plain.Values["is_commercial"])
}

func TestFields_PerKindExtras(t *testing.T) {
	kw := Fields(model.RunKindKeyword)
	assert.Equal(t, "keyword", kw[len(kw)-1].Name)
	acct := Fields(model.RunKindAccount)
	assert.Equal(t, "account", acct[len(acct)-1].Name)
	tag := Fields(model.RunKindTag)
	assert.Equal(t, "tag", tag[len(tag)-1].Name)
	// Base set is shared.
	assert.Equal(t, len(kw), len(acct))
}
