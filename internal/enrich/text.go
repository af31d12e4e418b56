package enrich

import (
	"strconv"
	"strings"

	"golang.org/x/text/currency"

	"github.com/sells-group/collector-cli/internal/model"
)

// RenderProductText builds the human-readable product summary stored next to
// the structured list: one numbered line per product. Currency codes are
// validated against ISO 4217; an unknown code is dropped rather than shown.
func RenderProductText(products []model.Product) string {
	if len(products) == 0 {
		return ""
	}
	var b strings.Builder
	for i, p := range products {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString(". ")
		if p.Title != "" {
			b.WriteString(p.Title)
		} else {
			b.WriteString("product ")
			b.WriteString(p.ID)
		}
		if p.Price != "" {
			b.WriteString(" (")
			b.WriteString(p.Price)
			if unit := isoCurrency(p.Currency); unit != "" {
				b.WriteByte(' ')
				b.WriteString(unit)
			}
			b.WriteByte(')')
		}
		if p.Link != "" {
			b.WriteByte(' ')
			b.WriteString(p.Link)
		}
	}
	return b.String()
}

func isoCurrency(code string) string {
	if code == "" {
		return ""
	}
	unit, err := currency.ParseISO(code)
	if err != nil {
		return ""
	}
	return unit.String()
}
