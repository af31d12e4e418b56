package model

import "strconv"

// CauseCode names one source of commercial-intent evidence. Codes are
// recorded in first-seen order and deduplicated.
type CauseCode string

const (
	CauseAnchor         CauseCode = "anchor"
	CauseProductList    CauseCode = "product_list"
	CauseCommercialFlag CauseCode = "commercial_flag"
	CauseCommission     CauseCode = "commission"
	CauseBrandedContent CauseCode = "branded_content"
)

// Product is one commercial listing attached to an item. ID is kept as the
// literal digit string from the payload: product ids can be wider than 53
// bits and must never pass through a float.
type Product struct {
	ID       string `json:"id,omitempty"`
	Title    string `json:"title,omitempty"`
	Price    string `json:"price,omitempty"`
	Currency string `json:"currency,omitempty"`
	Link     string `json:"link,omitempty"`
	Source   string `json:"source,omitempty"`
}

// Identity returns the dedup identity of a product: its id when present,
// otherwise title plus ordinal position in the merged list.
func (p Product) Identity(pos int) string {
	if p.ID != "" {
		return "id:" + p.ID
	}
	return "title:" + p.Title + ":" + strconv.Itoa(pos)
}

// CommerceSignal is the derived commercial-intent metadata of one item.
// IsCommercial holds exactly when any evidence exists: a product, a boolean
// flag, a monetization marker, or any recorded cause code.
type CommerceSignal struct {
	IsCommercial bool        `json:"is_commercial"`
	Reasons      []CauseCode `json:"reasons,omitempty"`
	Products     []Product   `json:"products,omitempty"`
	ProductText  string      `json:"product_text,omitempty"`
}
