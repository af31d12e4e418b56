package scheduler

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/collector-cli/internal/normalize"
	"github.com/sells-group/collector-cli/internal/project"
	"github.com/sells-group/collector-cli/internal/store"
)

// ScanEmptySlots walks the table and collects content-free rows, bounded by
// maxRows examined. Runs once before a run starts; the pool it returns is
// private to that run.
func ScanEmptySlots(ctx context.Context, st store.TableStore, maxRows int) (*SlotPool, error) {
	if maxRows <= 0 {
		maxRows = 500
	}
	var ids []string
	examined := 0
	token := ""
	for examined < maxRows {
		page, err := st.ScanRecords(ctx, token)
		if err != nil {
			return nil, err
		}
		for _, rec := range page.Records {
			if examined >= maxRows {
				break
			}
			examined++
			if recordEmpty(rec) {
				ids = append(ids, rec.ID)
			}
		}
		if !page.HasMore || examined >= maxRows {
			break
		}
		token = page.NextPageToken
	}
	zap.L().Debug("empty-slot pre-scan done",
		zap.Int("examined", examined),
		zap.Int("slots", len(ids)),
	)
	return NewSlotPool(ids), nil
}

// recordEmpty treats a row as reusable when every cell is absent or blank.
func recordEmpty(rec store.Record) bool {
	for _, v := range rec.Values {
		switch t := v.(type) {
		case nil:
			continue
		case string:
			if strings.TrimSpace(t) != "" {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// ScanSeenKeys seeds a run's dedup set from the table's existing key column,
// bounded by maxRows examined. Stored keys are re-canonicalized so rows
// written by older versions still dedup correctly.
func ScanSeenKeys(ctx context.Context, st store.TableStore, keyField string, maxRows int) (*project.KeySet, error) {
	if maxRows <= 0 {
		maxRows = 5000
	}
	seen := project.NewKeySet()
	examined := 0
	token := ""
	for examined < maxRows {
		page, err := st.ScanRecords(ctx, token)
		if err != nil {
			return nil, err
		}
		for _, rec := range page.Records {
			if examined >= maxRows {
				break
			}
			examined++
			raw, ok := rec.Values[keyField].(string)
			if !ok || strings.TrimSpace(raw) == "" {
				continue
			}
			key := normalize.CanonicalURL(raw)
			if key == "" {
				key = strings.TrimSpace(raw)
			}
			seen.Add(key)
		}
		if !page.HasMore || examined >= maxRows {
			break
		}
		token = page.NextPageToken
	}
	zap.L().Debug("dedup-key pre-scan done",
		zap.Int("examined", examined),
		zap.Int("keys", seen.Len()),
	)
	return seen, nil
}
