// Package normalize derives canonical deduplication keys from raw
// identifiers. All functions are pure and depend only on their input.
package normalize

import (
	"net/url"
	"strings"
)

// CanonicalURL reduces a share URL to its dedup form: scheme://host/path
// lower-cased, query and fragment stripped, and any trailing slash removed.
// Returns "" for unparseable input or non-http(s) schemes, so callers can
// treat an empty key as "skip".
func CanonicalURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return ""
	}
	host := strings.ToLower(u.Host)
	if host == "" {
		return ""
	}
	path := strings.ToLower(strings.TrimSuffix(u.Path, "/"))
	return scheme + "://" + host + path
}

// AccountKey builds the canonical key for an account: the @-profile URL on
// the given platform host. A leading @ in the handle is tolerated. Returns
// "" when either part is missing.
func AccountKey(platform, handle string) string {
	platform = strings.ToLower(strings.TrimSpace(platform))
	handle = strings.TrimPrefix(strings.TrimSpace(handle), "@")
	if platform == "" || handle == "" {
		return ""
	}
	return "https://" + platform + "/@" + strings.ToLower(handle)
}

// ItemKey derives the dedup key for a raw item: the canonical share URL when
// one exists, otherwise the account key. Empty means the item carries no
// usable identity and must be skipped, not errored.
func ItemKey(platform, shareURL, handle string) string {
	if k := CanonicalURL(shareURL); k != "" {
		return k
	}
	return AccountKey(platform, handle)
}
