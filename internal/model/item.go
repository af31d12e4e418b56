package model

import "time"

// Stats holds the engagement counters attached to a raw item.
type Stats struct {
	Views     int64 `json:"views"`
	Likes     int64 `json:"likes"`
	Comments  int64 `json:"comments"`
	Shares    int64 `json:"shares"`
	Favorites int64 `json:"favorites"`
}

// CommerceFields carries the commerce-indicator fields of a raw item. The
// anchor and product-list payloads are kept as raw JSON so enrichment can
// read wide numeric ids without a float64 round trip.
type CommerceFields struct {
	AnchorsRaw         string `json:"anchors_raw,omitempty"`
	ProductListBottom  string `json:"product_list_bottom,omitempty"`
	ProductListInfo    string `json:"product_list_info,omitempty"`
	ProductListRight   string `json:"product_list_right,omitempty"`
	IsAd               bool   `json:"is_ad,omitempty"`
	IsShoppable        bool   `json:"is_shoppable,omitempty"`
	WithGoods          bool   `json:"with_goods,omitempty"`
	CommissionText     string `json:"commission_text,omitempty"`
	BrandedContentType int    `json:"branded_content_type,omitempty"`
}

// Empty reports whether no commerce indicator is present at all.
func (c CommerceFields) Empty() bool {
	return c.AnchorsRaw == "" &&
		c.ProductListBottom == "" &&
		c.ProductListInfo == "" &&
		c.ProductListRight == "" &&
		!c.IsAd && !c.IsShoppable && !c.WithGoods &&
		c.CommissionText == "" &&
		c.BrandedContentType == 0
}

// RawItem is one source-provided record. It is transient: consumed by the
// projector immediately after the page that carried it.
type RawItem struct {
	ID           string         `json:"id"`
	Platform     string         `json:"platform"`
	AuthorHandle string         `json:"author_handle"`
	AuthorName   string         `json:"author_name"`
	ShareURL     string         `json:"share_url"`
	Caption      string         `json:"caption"`
	CreatedAt    time.Time      `json:"created_at"`
	Duration     float64        `json:"duration"`
	Stats        Stats          `json:"stats"`
	Commerce     CommerceFields `json:"commerce"`

	CoverURL      string `json:"cover_url,omitempty"`
	TranscriptURL string `json:"transcript_url,omitempty"`

	// Side-fetched payloads, filled by the orchestrator before projection.
	Cover      string `json:"-"`
	Transcript string `json:"-"`
}

// HasCommerceIndicators gates enrichment: plain content items skip the
// commerce scan entirely.
func (it *RawItem) HasCommerceIndicators() bool {
	return !it.Commerce.Empty()
}
