package project

import (
	"strings"
	"time"

	"github.com/sells-group/collector-cli/internal/model"
	"github.com/sells-group/collector-cli/internal/normalize"
)

// FieldSpec declares one output field: its name, datastore kind, and the
// extractor that produces its value. Fractional marks the ratio/frequency
// fields that keep their fraction; every other numeric value is truncated to
// an integer at projection time.
type FieldSpec struct {
	Name       string
	Kind       model.FieldKind
	Fractional bool
	Extract    func(it *model.RawItem, sig model.CommerceSignal, rc *RunContext) any
}

// FieldKey is the field that carries the dedup key in the target table. The
// pre-scans and the projector agree on this name.
const FieldKey = "share_url"

// baseFields are emitted for every run kind, in declaration order.
var baseFields = []FieldSpec{
	{Name: FieldKey, Kind: model.FieldURL, Extract: func(it *model.RawItem, _ model.CommerceSignal, _ *RunContext) any {
		return normalize.ItemKey(it.Platform, it.ShareURL, it.AuthorHandle)
	}},
	{Name: "platform", Kind: model.FieldText, Extract: func(it *model.RawItem, _ model.CommerceSignal, _ *RunContext) any {
		return it.Platform
	}},
	{Name: "author_handle", Kind: model.FieldText, Extract: func(it *model.RawItem, _ model.CommerceSignal, _ *RunContext) any {
		return it.AuthorHandle
	}},
	{Name: "author_name", Kind: model.FieldText, Extract: func(it *model.RawItem, _ model.CommerceSignal, _ *RunContext) any {
		return it.AuthorName
	}},
	{Name: "caption", Kind: model.FieldText, Extract: func(it *model.RawItem, _ model.CommerceSignal, _ *RunContext) any {
		return it.Caption
	}},
	{Name: "published_at", Kind: model.FieldText, Extract: func(it *model.RawItem, _ model.CommerceSignal, _ *RunContext) any {
		if it.CreatedAt.IsZero() {
			return ""
		}
		return it.CreatedAt.UTC().Format(time.RFC3339)
	}},
	{Name: "duration_secs", Kind: model.FieldNumber, Extract: func(it *model.RawItem, _ model.CommerceSignal, _ *RunContext) any {
		return it.Duration
	}},
	{Name: "views", Kind: model.FieldNumber, Extract: func(it *model.RawItem, _ model.CommerceSignal, _ *RunContext) any {
		return it.Stats.Views
	}},
	{Name: "likes", Kind: model.FieldNumber, Extract: func(it *model.RawItem, _ model.CommerceSignal, _ *RunContext) any {
		return it.Stats.Likes
	}},
	{Name: "comments", Kind: model.FieldNumber, Extract: func(it *model.RawItem, _ model.CommerceSignal, _ *RunContext) any {
		return it.Stats.Comments
	}},
	{Name: "shares", Kind: model.FieldNumber, Extract: func(it *model.RawItem, _ model.CommerceSignal, _ *RunContext) any {
		return it.Stats.Shares
	}},
	{Name: "favorites", Kind: model.FieldNumber, Extract: func(it *model.RawItem, _ model.CommerceSignal, _ *RunContext) any {
		return it.Stats.Favorites
	}},
	{Name: "engagement_rate", Kind: model.FieldNumber, Fractional: true, Extract: func(it *model.RawItem, _ model.CommerceSignal, _ *RunContext) any {
		if it.Stats.Views == 0 {
			return float64(0)
		}
		return float64(it.Stats.Likes+it.Stats.Comments+it.Stats.Shares) / float64(it.Stats.Views)
	}},
	{Name: "engagements_per_day", Kind: model.FieldNumber, Fractional: true, Extract: func(it *model.RawItem, _ model.CommerceSignal, rc *RunContext) any {
		if it.CreatedAt.IsZero() {
			return float64(0)
		}
		days := rc.CollectedAt.Sub(it.CreatedAt).Hours() / 24
		if days < 1 {
			days = 1
		}
		return float64(it.Stats.Likes+it.Stats.Comments+it.Stats.Shares) / days
	}},
	{Name: "is_commercial", Kind: model.FieldNumber, Extract: func(_ *model.RawItem, sig model.CommerceSignal, _ *RunContext) any {
		if sig.IsCommercial {
			return int64(1)
		}
		return int64(0)
	}},
	{Name: "commerce_reasons", Kind: model.FieldText, Extract: func(_ *model.RawItem, sig model.CommerceSignal, _ *RunContext) any {
		codes := make([]string, len(sig.Reasons))
		for i, c := range sig.Reasons {
			codes[i] = string(c)
		}
		return strings.Join(codes, ",")
	}},
	{Name: "product_count", Kind: model.FieldNumber, Extract: func(_ *model.RawItem, sig model.CommerceSignal, _ *RunContext) any {
		return int64(len(sig.Products))
	}},
	{Name: "products", Kind: model.FieldText, Extract: func(_ *model.RawItem, sig model.CommerceSignal, _ *RunContext) any {
		return sig.ProductText
	}},
	{Name: "cover", Kind: model.FieldText, Extract: func(it *model.RawItem, _ model.CommerceSignal, _ *RunContext) any {
		return it.Cover
	}},
	{Name: "transcript", Kind: model.FieldText, Extract: func(it *model.RawItem, _ model.CommerceSignal, _ *RunContext) any {
		return it.Transcript
	}},
	{Name: "run_kind", Kind: model.FieldText, Extract: func(_ *model.RawItem, _ model.CommerceSignal, rc *RunContext) any {
		return string(rc.Run.Query.Kind)
	}},
	{Name: "query", Kind: model.FieldText, Extract: func(_ *model.RawItem, _ model.CommerceSignal, rc *RunContext) any {
		return rc.Run.Query.Term()
	}},
	{Name: "collected_at", Kind: model.FieldText, Extract: func(_ *model.RawItem, _ model.CommerceSignal, rc *RunContext) any {
		return rc.CollectedAt.Format(time.RFC3339)
	}},
}

// kindFields appends the per-kind extras to the shared base.
var kindFields = map[model.RunKind][]FieldSpec{
	model.RunKindKeyword: {
		{Name: "keyword", Kind: model.FieldText, Extract: func(_ *model.RawItem, _ model.CommerceSignal, rc *RunContext) any {
			return rc.Run.Query.Keyword
		}},
	},
	model.RunKindAccount: {
		{Name: "account", Kind: model.FieldText, Extract: func(_ *model.RawItem, _ model.CommerceSignal, rc *RunContext) any {
			return rc.Run.Query.Handle
		}},
	},
	model.RunKindTag: {
		{Name: "tag", Kind: model.FieldText, Extract: func(_ *model.RawItem, _ model.CommerceSignal, rc *RunContext) any {
			return rc.Run.Query.Tag
		}},
	},
}

// Fields returns the ordered field declarations for a run kind.
func Fields(kind model.RunKind) []FieldSpec {
	out := make([]FieldSpec, 0, len(baseFields)+1)
	out = append(out, baseFields...)
	out = append(out, kindFields[kind]...)
	return out
}
