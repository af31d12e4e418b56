package enrich

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/collector-cli/internal/model"
)

func TestExtract_PlainItem(t *testing.T) {
	sig := Extract(&model.RawItem{})
	assert.False(t, sig.IsCommercial)
	assert.Empty(t, sig.Reasons)
	assert.Empty(t, sig.Products)
}

func TestExtract_AnchorProducts(t *testing.T) {
	it := &model.RawItem{
		Platform: "www.example.com",
		Commerce: model.CommerceFields{
			AnchorsRaw: `[
				{"component_key":"anchor_shop_link","extra":"{\"products\":[{\"product_id\":42,\"title\":\"Mug\",\"price\":\"9.99\",\"currency\":\"usd\"}]}"},
				{"component_key":"location","extra":"{}"}
			]`,
		},
	}
	sig := Extract(it)
	require.True(t, sig.IsCommercial)
	require.Len(t, sig.Products, 1)
	assert.Equal(t, "42", sig.Products[0].ID)
	assert.Equal(t, "Mug", sig.Products[0].Title)
	assert.Equal(t, []model.CauseCode{model.CauseAnchor}, sig.Reasons)
	// No absolute link in the payload: synthesized from id and platform.
	assert.Equal(t, "https://www.example.com/view/product/42", sig.Products[0].Link)
}

func TestExtract_WideProductIDSurvives(t *testing.T) {
	// 19-digit id inside a JSON-string sub-field must come out verbatim,
	// not rounded through a float64.
	it := &model.RawItem{
		Commerce: model.CommerceFields{
			AnchorsRaw: `[{"component_key":"product_card","extra":"{\"products\":[{\"product_id\":1234567890123456789,\"title\":\"Widget\"}]}"}]`,
		},
	}
	sig := Extract(it)
	require.Len(t, sig.Products, 1)
	assert.Equal(t, "1234567890123456789", sig.Products[0].ID)
}

func TestExtract_ProductListsAndFlags(t *testing.T) {
	it := &model.RawItem{
		Commerce: model.CommerceFields{
			ProductListBottom: `[{"product_id":"7","title":"Hat"}]`,
			ProductListInfo:   `[{"product_id":"7","title":"Hat"}]`,
			IsAd:              true,
			WithGoods:         true,
			CommissionText:    "Earn Commission on every sale",
		},
	}
	sig := Extract(it)
	require.True(t, sig.IsCommercial)
	// Same product from two lists collapses to one.
	require.Len(t, sig.Products, 1)
	// One cause per contributing source, first-seen order, flags collapsed.
	assert.Equal(t, []model.CauseCode{
		model.CauseProductList,
		model.CauseCommercialFlag,
		model.CauseCommission,
	}, sig.Reasons)
}

func TestExtract_BrandedContentOnly(t *testing.T) {
	it := &model.RawItem{Commerce: model.CommerceFields{BrandedContentType: 1}}
	sig := Extract(it)
	assert.True(t, sig.IsCommercial)
	assert.Equal(t, []model.CauseCode{model.CauseBrandedContent}, sig.Reasons)
	assert.Empty(t, sig.Products)
}

func TestExtract_FlagOnlyNoProducts(t *testing.T) {
	// isCommercial must hold on any evidence, not just products.
	it := &model.RawItem{Commerce: model.CommerceFields{IsShoppable: true}}
	sig := Extract(it)
	assert.True(t, sig.IsCommercial)
	assert.Empty(t, sig.Products)
}

func TestDedupProducts_Idempotent(t *testing.T) {
	in := []model.Product{
		{ID: "1", Title: "A"},
		{Title: "B"},
		{ID: "1", Title: "A dup"},
		{Title: "B"}, // no id, distinct ordinal: kept
		{ID: "2"},
	}
	once := DedupProducts(in)
	twice := DedupProducts(once)
	assert.Equal(t, once, twice)
	require.Len(t, once, 4)
	assert.Equal(t, "A", once[0].Title)
}

func TestResolveLink(t *testing.T) {
	abs := model.Product{ID: "5", Link: "https://cdn.example.com/p/5"}
	assert.Equal(t, "https://cdn.example.com/p/5", resolveLink(abs, "www.example.com"))

	rel := model.Product{ID: "5", Link: "/p/5"}
	assert.Equal(t, "https://www.example.com/view/product/5", resolveLink(rel, "www.example.com"))

	none := model.Product{Title: "no id"}
	assert.Equal(t, "", resolveLink(none, "www.example.com"))

	noPlatform := model.Product{ID: "5"}
	assert.Equal(t, "", resolveLink(noPlatform, ""))
}

func TestRenderProductText(t *testing.T) {
	out := RenderProductText([]model.Product{
		{ID: "1", Title: "Mug", Price: "9.99", Currency: "USD", Link: "https://x.example/p/1"},
		{ID: "2", Title: "Hat", Price: "5", Currency: "notacode"},
	})
	assert.Equal(t, "1. Mug (9.99 USD) https://x.example/p/1\n2. Hat (5)", out)
	assert.Equal(t, "", RenderProductText(nil))
}
