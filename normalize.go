package stash

import (
	"net/url"
	"strings"
)

// trackingParams are query parameters stripped during URL normalization.
// Matched case-insensitively against the raw key.
var trackingParams = map[string]bool{
	// Generic
	"utm_source": true, "utm_medium": true, "utm_campaign": true,
	"utm_term": true, "utm_content": true,
	"source": true, "ref": true, "referrer": true, "ref_src": true, "ref_url": true,
	// Social media
	"fbclid": true, "igshid": true, "twclid": true, "_ga": true,
	// Amazon
	"tag": true, "linkid": true, "pd_rd_r": true, "pd_rd_w": true, "pd_rd_wg": true,
	// Others
	"gclid": true, "dclid": true, "affiliate": true, "zanpid": true,
	"mc_cid": true, "mc_eid": true,
}

// NormalizeURL cleans and canonicalizes a raw URL string. It prepends
// https:// when no scheme is present, lowercases the host, drops the
// fragment, and strips known tracking parameters while preserving the
// order of the remaining ones. It never fails; malformed input comes
// back best-effort.
func NormalizeURL(raw string) string {
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = "https://" + raw
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	parsed.Host = strings.ToLower(parsed.Host)
	parsed.Fragment = ""
	parsed.RawFragment = ""
	parsed.RawQuery = filterQuery(parsed.RawQuery)
	// A trailing "?" with no surviving params collapses to no query at all.
	parsed.ForceQuery = false

	return parsed.String()
}

// filterQuery removes tracking parameters from a raw query string.
// Pairs are kept in their original order and casing. A bare key with no
// "=" is malformed and dropped entirely.
func filterQuery(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}

	var kept []string
	for _, param := range strings.Split(rawQuery, "&") {
		key, _, ok := strings.Cut(param, "=")
		if !ok {
			continue
		}
		if trackingParams[strings.ToLower(key)] {
			continue
		}
		kept = append(kept, param)
	}

	return strings.Join(kept, "&")
}
