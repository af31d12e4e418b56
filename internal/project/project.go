package project

import (
	"github.com/sells-group/collector-cli/internal/enrich"
	"github.com/sells-group/collector-cli/internal/model"
	"github.com/sells-group/collector-cli/internal/normalize"
)

// Project maps one raw item into a projected record. It returns nil — not an
// error — when the item has no usable dedup key or the key was already seen,
// so the caller simply skips it. On success the key is recorded in the run's
// seen set.
func Project(it *model.RawItem, rc *RunContext) *model.ProjectedRecord {
	key := normalize.ItemKey(it.Platform, it.ShareURL, it.AuthorHandle)
	if key == "" || rc.Seen.Has(key) {
		return nil
	}

	var sig model.CommerceSignal
	if it.HasCommerceIndicators() {
		sig = enrich.Extract(it)
	}

	rec := &model.ProjectedRecord{Key: key}
	for _, f := range Fields(rc.Run.Query.Kind) {
		// The key column always carries the computed dedup key, never the
		// raw URL: account-fallback items have no share URL, and later runs
		// seed their seen set from this column.
		if f.Name == FieldKey {
			rec.Set(f.Name, key)
			continue
		}
		if !rc.Selected(f.Name) {
			continue
		}
		rec.Set(f.Name, coerce(f, f.Extract(it, sig, rc)))
	}

	rc.Seen.Add(key)
	return rec
}

// coerce applies the numeric truncation rule: number fields are truncated to
// int64 unless the spec is marked fractional.
func coerce(f FieldSpec, v any) any {
	if f.Kind != model.FieldNumber || f.Fractional {
		return v
	}
	switch n := v.(type) {
	case float64:
		return int64(n)
	case float32:
		return int64(n)
	case int:
		return int64(n)
	}
	return v
}
