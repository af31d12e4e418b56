package source

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/collector-cli/internal/model"
)

// EndReason records how a walk over the result set terminated.
type EndReason string

const (
	// EndCompleted is the natural end: the source reported no more results.
	EndCompleted EndReason = "completed"
	// EndStalledCursor means the source kept claiming more results without
	// producing a fresh cursor. Soft end, not a failure.
	EndStalledCursor EndReason = "stalled_cursor"
	// EndCancelled means the walk observed cancellation. Quiet stop.
	EndCancelled EndReason = "cancelled"
	// EndPageCeiling means the fixed page ceiling bounded the walk.
	EndPageCeiling EndReason = "page_ceiling"
)

// WalkResult is the outcome of one pagination walk.
type WalkResult struct {
	Pages int
	End   EndReason
}

// WalkerConfig bounds a pagination walk.
type WalkerConfig struct {
	// MaxPages aborts pagination after this many processed pages even if the
	// source still reports more. Default: 100.
	MaxPages int
	// PageDelay is the fixed pause between pages, itself a cancellation
	// point. Default: 300ms.
	PageDelay time.Duration
}

// Walker drives pagination: one page request per iteration, end-of-results
// and cursor-stall detection, page ceiling enforcement. It performs no
// page-level retry; transport retry belongs below it and only for idempotent
// side-fetches.
type Walker struct {
	fetcher PageFetcher
	cfg     WalkerConfig
	log     *zap.Logger
}

// NewWalker creates a walker over the given fetcher.
func NewWalker(f PageFetcher, cfg WalkerConfig) *Walker {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 100
	}
	if cfg.PageDelay <= 0 {
		cfg.PageDelay = 300 * time.Millisecond
	}
	return &Walker{fetcher: f, cfg: cfg, log: zap.L().Named("walker")}
}

// Walk fetches pages for the query until the source is exhausted, the page
// ceiling is hit, the cursor stalls, the context is cancelled, or fn or the
// fetch fails. fn is invoked once per processed page in source order.
//
// Stall handling: when the source claims HasMore but returns an empty or
// unchanged cursor, the same cursor is retried exactly once. A second stall
// ends the walk with EndStalledCursor without processing the repeated page.
//
// Cancellation terminates quietly (nil error); every other fetch error
// propagates unchanged, including the quota-exhausted signal.
func (w *Walker) Walk(ctx context.Context, q model.Query, fn func(pageNo int, items []model.RawItem) error) (WalkResult, error) {
	var res WalkResult
	cursor := ""
	retriedStall := false

	for {
		if ctx.Err() != nil {
			res.End = EndCancelled
			return res, nil
		}

		page, err := w.fetcher.FetchPage(ctx, q, cursor)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				res.End = EndCancelled
				return res, nil
			}
			return res, err
		}
		if page == nil {
			return res, &MalformedResponseError{Reason: "nil page"}
		}

		stalled := page.HasMore && (page.NextCursor == "" || page.NextCursor == cursor)
		if stalled && retriedStall {
			w.log.Warn("cursor stalled twice, ending walk early",
				zap.String("cursor", cursor),
				zap.Int("pages", res.Pages),
			)
			res.End = EndStalledCursor
			return res, nil
		}

		res.Pages++
		if err := fn(res.Pages, page.Items); err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				res.End = EndCancelled
				return res, nil
			}
			return res, err
		}

		if !page.HasMore {
			res.End = EndCompleted
			return res, nil
		}
		if res.Pages >= w.cfg.MaxPages {
			w.log.Info("page ceiling reached", zap.Int("pages", res.Pages))
			res.End = EndPageCeiling
			return res, nil
		}

		if stalled {
			retriedStall = true
		} else {
			retriedStall = false
			cursor = page.NextCursor
		}

		// Fixed pacing pause between pages; also a cancellation point.
		timer := time.NewTimer(w.cfg.PageDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			res.End = EndCancelled
			return res, nil
		case <-timer.C:
		}
	}
}
