// Package enrich derives commercial-intent signals from raw items: shop
// anchors, attached product listings, commercial flags, commission and
// branded-content markers. It depends on nothing but its input.
package enrich

import (
	"strings"

	"github.com/tidwall/gjson"

	"github.com/sells-group/collector-cli/internal/model"
)

// commerceKeyPatterns mark an anchor as shop/product/commerce related. Match
// is a case-insensitive substring test on the anchor's component key.
var commerceKeyPatterns = []string{"shop", "product", "commerce", "seller", "store"}

func isCommerceKey(key string) bool {
	k := strings.ToLower(key)
	for _, p := range commerceKeyPatterns {
		if strings.Contains(k, p) {
			return true
		}
	}
	return false
}

// Extract computes the commerce signal for one item. Callers should gate on
// RawItem.HasCommerceIndicators; Extract on a plain item returns the zero
// signal.
func Extract(it *model.RawItem) model.CommerceSignal {
	var sig model.CommerceSignal
	var products []model.Product

	addCause := func(c model.CauseCode) {
		for _, have := range sig.Reasons {
			if have == c {
				return
			}
		}
		sig.Reasons = append(sig.Reasons, c)
	}

	// 1. Shop anchors. Each anchor carries its product payload in an extra
	// field that is itself a JSON document, sometimes double-encoded.
	if it.Commerce.AnchorsRaw != "" {
		found := false
		gjson.Parse(it.Commerce.AnchorsRaw).ForEach(func(_, anchor gjson.Result) bool {
			key := anchor.Get("component_key").String()
			if key == "" {
				key = anchor.Get("keyword").String()
			}
			if !isCommerceKey(key) {
				return true
			}
			extra := anchor.Get("extra")
			if extra.Type == gjson.String {
				extra = gjson.Parse(extra.String())
			}
			ps := parseProducts(extra, "anchor")
			if len(ps) == 0 {
				ps = parseProducts(anchor, "anchor")
			}
			if len(ps) > 0 {
				found = true
				products = append(products, ps...)
			}
			return true
		})
		if found {
			addCause(model.CauseAnchor)
		}
	}

	// 2. Named product-list fields.
	for _, raw := range []string{
		it.Commerce.ProductListBottom,
		it.Commerce.ProductListInfo,
		it.Commerce.ProductListRight,
	} {
		if raw == "" {
			continue
		}
		if ps := parseProducts(gjson.Parse(raw), "list"); len(ps) > 0 {
			products = append(products, ps...)
			addCause(model.CauseProductList)
		}
	}

	// 3. Boolean commercial flags collapse into one synthetic cause.
	if it.Commerce.IsAd || it.Commerce.IsShoppable || it.Commerce.WithGoods {
		addCause(model.CauseCommercialFlag)
	}

	// 4. Commission marker.
	if strings.Contains(strings.ToLower(it.Commerce.CommissionText), "commission") {
		addCause(model.CauseCommission)
	}

	// 5. Branded content marker.
	if it.Commerce.BrandedContentType != 0 {
		addCause(model.CauseBrandedContent)
	}

	sig.Products = DedupProducts(products)
	for i := range sig.Products {
		sig.Products[i].Link = resolveLink(sig.Products[i], it.Platform)
	}
	sig.ProductText = RenderProductText(sig.Products)
	sig.IsCommercial = len(sig.Products) > 0 ||
		it.Commerce.IsAd || it.Commerce.IsShoppable || it.Commerce.WithGoods ||
		strings.Contains(strings.ToLower(it.Commerce.CommissionText), "commission") ||
		it.Commerce.BrandedContentType != 0 ||
		len(sig.Reasons) > 0
	return sig
}

// parseProducts reads products from a gjson node that is either an array of
// product objects, an object with a "products" array, or a single product
// object. Product ids are read from the raw token so ids wider than 53 bits
// never pass through a float.
func parseProducts(node gjson.Result, source string) []model.Product {
	var out []model.Product
	collect := func(p gjson.Result) {
		prod := model.Product{
			ID:       rawID(p),
			Title:    p.Get("title").String(),
			Price:    p.Get("price").String(),
			Currency: strings.ToUpper(p.Get("currency").String()),
			Link:     p.Get("link").String(),
			Source:   source,
		}
		if prod.Link == "" {
			prod.Link = p.Get("url").String()
		}
		if prod.ID == "" && prod.Title == "" {
			return
		}
		out = append(out, prod)
	}

	switch {
	case node.IsArray():
		node.ForEach(func(_, p gjson.Result) bool { collect(p); return true })
	case node.Get("products").IsArray():
		node.Get("products").ForEach(func(_, p gjson.Result) bool { collect(p); return true })
	case node.IsObject():
		if node.Get("product_id").Exists() || node.Get("title").Exists() {
			collect(node)
		}
	}
	return out
}

// rawID extracts a product id as the literal digit string. Numeric tokens use
// Raw (the undecoded JSON text); string tokens use the string value.
func rawID(p gjson.Result) string {
	for _, key := range []string{"product_id", "id"} {
		r := p.Get(key)
		switch r.Type {
		case gjson.Number:
			return strings.TrimSpace(r.Raw)
		case gjson.String:
			if r.Str != "" {
				return r.Str
			}
		}
	}
	return ""
}

// DedupProducts removes duplicate products preserving first-seen order.
// Identity is the product id when present, otherwise title plus ordinal
// position, which makes the operation idempotent.
func DedupProducts(in []model.Product) []model.Product {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]model.Product, 0, len(in))
	for i, p := range in {
		id := p.Identity(i)
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, p)
	}
	return out
}

// resolveLink keeps the product's own link only when it is an absolute
// http(s) URL; otherwise it synthesizes the canonical product page from the
// id on the item's platform; otherwise empty.
func resolveLink(p model.Product, platform string) string {
	l := strings.ToLower(p.Link)
	if strings.HasPrefix(l, "http://") || strings.HasPrefix(l, "https://") {
		return p.Link
	}
	if p.ID != "" && platform != "" {
		return "https://" + platform + "/view/product/" + p.ID
	}
	return ""
}
