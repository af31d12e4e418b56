// Package mediasource is an HTTP client for a cursor-paginated short-video
// content API. It implements the engine's page-fetch and side-fetch
// contracts: page fetches are never retried at the transport level, side
// fetches are idempotent and go through a retrying client.
package mediasource

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rotisserie/eris"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/sells-group/collector-cli/internal/model"
	"github.com/sells-group/collector-cli/internal/resilience"
	"github.com/sells-group/collector-cli/internal/source"
)

const defaultBaseURL = "https://api.clipstream.example"

// Option configures the client.
type Option func(*Client)

// WithBaseURL sets a custom API base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithHTTPClient sets the client used for page fetches.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.page = hc }
}

// WithRateLimit sets the per-host request pacing. Defaults to 5 req/s,
// burst 1.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		c.rps = rate.Limit(rps)
		c.burst = burst
	}
}

// WithPlatform overrides the platform tag stamped on items the API does not
// tag itself.
func WithPlatform(p string) Option {
	return func(c *Client) { c.platform = p }
}

// WithQuotaHook registers a callback invoked with the allowance counters the
// API reports on each page response. A counter the API omitted is -1.
func WithQuotaHook(fn func(remaining, ceiling int64)) Option {
	return func(c *Client) { c.onQuota = fn }
}

// Client talks to the content API. It satisfies source.PageFetcher and
// source.SideFetcher.
type Client struct {
	apiKey   string
	baseURL  string
	platform string
	page     *http.Client
	side     *http.Client
	onQuota  func(remaining, ceiling int64)

	rps   rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewClient creates a content API client.
func NewClient(apiKey string, opts ...Option) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.RetryWaitMin = 300 * time.Millisecond
	rc.RetryWaitMax = 5 * time.Second
	rc.Logger = nil

	c := &Client{
		apiKey:   apiKey,
		baseURL:  defaultBaseURL,
		platform: "clipstream",
		page: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		side:     rc.StandardClient(),
		rps:      5,
		burst:    1,
		limiters: make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchPage requests one result page. HTTP 429 is surfaced as
// *resilience.QuotaExhaustedError; no transport retry happens here, the
// walker owns pagination policy.
func (c *Client) FetchPage(ctx context.Context, q model.Query, cursor string) (*source.Page, error) {
	reqURL, err := c.pageURL(q, cursor)
	if err != nil {
		return nil, err
	}
	body, err := c.do(ctx, c.page, reqURL)
	if err != nil {
		return nil, err
	}

	root := gjson.ParseBytes(body)
	items := root.Get("items")
	if items.Exists() && !items.IsArray() {
		return nil, &source.MalformedResponseError{Reason: "items is not an array"}
	}

	page := &source.Page{
		HasMore:    root.Get("has_more").Bool(),
		NextCursor: root.Get("cursor").String(),
	}
	for _, it := range items.Array() {
		page.Items = append(page.Items, c.parseItem(it))
	}
	return page, nil
}

// FetchCover resolves a cover URL to its durable location, following the
// CDN's redirect chain.
func (c *Client) FetchCover(ctx context.Context, coverURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, coverURL, nil)
	if err != nil {
		return "", eris.Wrap(err, "mediasource: create cover request")
	}
	if err := c.waitHost(ctx, req.URL.Host); err != nil {
		return "", err
	}
	resp, err := c.side.Do(req)
	if err != nil {
		return "", eris.Wrap(err, "mediasource: cover fetch")
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", eris.Errorf("mediasource: cover fetch status %d", resp.StatusCode)
	}
	return resp.Request.URL.String(), nil
}

// FetchTranscript retrieves the transcript text for an item.
func (c *Client) FetchTranscript(ctx context.Context, transcriptURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, transcriptURL, nil)
	if err != nil {
		return "", eris.Wrap(err, "mediasource: create transcript request")
	}
	if err := c.waitHost(ctx, req.URL.Host); err != nil {
		return "", err
	}
	resp, err := c.side.Do(req)
	if err != nil {
		return "", eris.Wrap(err, "mediasource: transcript fetch")
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", eris.Wrap(err, "mediasource: read transcript")
	}
	if resp.StatusCode != http.StatusOK {
		return "", eris.Errorf("mediasource: transcript fetch status %d", resp.StatusCode)
	}
	return string(body), nil
}

func (c *Client) pageURL(q model.Query, cursor string) (string, error) {
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return "", eris.Wrap(err, "mediasource: parse base URL")
	}
	vals := url.Values{}
	switch q.Kind {
	case model.RunKindAccount:
		base.Path = "/v1/account/posts"
		vals.Set("handle", q.Handle)
	case model.RunKindTag:
		base.Path = "/v1/tag/feed"
		vals.Set("tag", q.Tag)
	default:
		base.Path = "/v1/search"
		vals.Set("keyword", q.Keyword)
	}
	if cursor != "" {
		vals.Set("cursor", cursor)
	}
	base.RawQuery = vals.Encode()
	return base.String(), nil
}

// do issues one request through the given client and returns the body of a
// 200 response. Non-200 statuses are mapped to the error taxonomy.
func (c *Client) do(ctx context.Context, hc *http.Client, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "mediasource: create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	if err := c.waitHost(ctx, req.URL.Host); err != nil {
		return nil, err
	}

	resp, err := hc.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "mediasource: request failed")
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "mediasource: read response body")
	}

	c.reportQuota(resp.Header)

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, quotaError(resp.Header)
	case resp.StatusCode == http.StatusServiceUnavailable:
		return nil, resilience.NewBusyError(
			eris.Errorf("mediasource: status %d: %s", resp.StatusCode, string(body)),
			retryAfter(resp.Header),
		)
	case resilience.IsTransientHTTPStatus(resp.StatusCode):
		return nil, resilience.NewTransientError(
			eris.Errorf("mediasource: status %d: %s", resp.StatusCode, string(body)),
			resp.StatusCode,
		)
	default:
		return nil, eris.Errorf("mediasource: unexpected status %d: %s", resp.StatusCode, string(body))
	}
}

// waitHost blocks on the per-host pacing limiter.
func (c *Client) waitHost(ctx context.Context, host string) error {
	c.mu.Lock()
	lim, ok := c.limiters[host]
	if !ok {
		lim = rate.NewLimiter(c.rps, c.burst)
		c.limiters[host] = lim
	}
	c.mu.Unlock()
	if err := lim.Wait(ctx); err != nil {
		return eris.Wrap(err, "mediasource: rate limit wait")
	}
	return nil
}

func (c *Client) reportQuota(h http.Header) {
	if c.onQuota == nil {
		return
	}
	remaining := headerInt(h, "X-Quota-Remaining")
	ceiling := headerInt(h, "X-Quota-Ceiling")
	if remaining >= 0 || ceiling >= 0 {
		c.onQuota(remaining, ceiling)
	}
}

// parseItem maps one wire item. Raw commerce payloads stay as raw JSON text
// so wide numeric product ids survive untouched.
func (c *Client) parseItem(it gjson.Result) model.RawItem {
	platform := it.Get("platform").String()
	if platform == "" {
		platform = c.platform
	}
	return model.RawItem{
		ID:           rawString(it.Get("id")),
		Platform:     platform,
		AuthorHandle: it.Get("author.handle").String(),
		AuthorName:   it.Get("author.nickname").String(),
		ShareURL:     it.Get("share_url").String(),
		Caption:      it.Get("caption").String(),
		CreatedAt:    time.Unix(it.Get("created_at").Int(), 0).UTC(),
		Duration:     it.Get("duration").Float(),
		Stats: model.Stats{
			Views:     it.Get("stats.views").Int(),
			Likes:     it.Get("stats.likes").Int(),
			Comments:  it.Get("stats.comments").Int(),
			Shares:    it.Get("stats.shares").Int(),
			Favorites: it.Get("stats.favorites").Int(),
		},
		Commerce: model.CommerceFields{
			AnchorsRaw:         it.Get("commerce.anchors").Raw,
			ProductListBottom:  it.Get("commerce.product_list_bottom").Raw,
			ProductListInfo:    it.Get("commerce.product_list_info").Raw,
			ProductListRight:   it.Get("commerce.product_list_right").Raw,
			IsAd:               it.Get("commerce.is_ad").Bool(),
			IsShoppable:        it.Get("commerce.is_shoppable").Bool(),
			WithGoods:          it.Get("commerce.with_goods").Bool(),
			CommissionText:     it.Get("commerce.commission").String(),
			BrandedContentType: int(it.Get("commerce.branded_content_type").Int()),
		},
		CoverURL:      it.Get("cover_url").String(),
		TranscriptURL: it.Get("transcript_url").String(),
	}
}

// rawString returns the literal wire text of a numeric value, so ids wider
// than 53 bits are not rounded through a float.
func rawString(r gjson.Result) string {
	if r.Type == gjson.Number {
		return r.Raw
	}
	return r.String()
}

// quotaError builds the authoritative exhaustion signal from a 429.
func quotaError(h http.Header) error {
	qe := &resilience.QuotaExhaustedError{Remaining: headerInt(h, "X-Quota-Remaining")}
	if ra := retryAfter(h); ra > 0 {
		qe.ResetAt = time.Now().UTC().Add(ra)
	}
	return qe
}

// retryAfter parses the Retry-After header, either delta-seconds or an HTTP
// date. Zero when absent or unparseable.
func retryAfter(h http.Header) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

func headerInt(h http.Header, name string) int64 {
	v := h.Get(name)
	if v == "" {
		return -1
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return -1
	}
	return n
}
