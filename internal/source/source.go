// Package source defines the content-source contract and the pagination
// walker that drives it.
package source

import (
	"context"

	"github.com/sells-group/collector-cli/internal/model"
)

// Page is one fetched slice of the result set. NextCursor is opaque; the
// walker only ever compares it for equality with the cursor just used.
type Page struct {
	Items      []model.RawItem
	HasMore    bool
	NextCursor string
}

// PageFetcher issues one page request. Implementations must surface the
// authoritative allowance-exhausted signal as *resilience.QuotaExhaustedError
// so it is distinguishable from generic failure, and must not retry page
// fetches themselves.
type PageFetcher interface {
	FetchPage(ctx context.Context, q model.Query, cursor string) (*Page, error)
}

// SideFetcher retrieves auxiliary per-item payloads. These fetches are
// idempotent and are the only calls routed through the retry policy.
type SideFetcher interface {
	FetchCover(ctx context.Context, coverURL string) (string, error)
	FetchTranscript(ctx context.Context, transcriptURL string) (string, error)
}

// MalformedResponseError reports an unexpected page shape. It terminates the
// run and is surfaced verbatim.
type MalformedResponseError struct {
	Reason string
}

func (e *MalformedResponseError) Error() string {
	return "malformed source response: " + e.Reason
}
