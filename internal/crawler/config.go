package crawler

import (
	"net/http"
	"regexp"
	"time"
)

// Request defaults shared by every fetch.
const (
	DefaultUserAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	DefaultRequestTimeout = 10 * time.Second
	DefaultMaxPages       = 10
	DefaultPageSize       = 10
	DefaultPersistBatch   = 5
	DefaultEnrichBatch    = 10
)

var stockCodePattern = regexp.MustCompile(`^\d{6}$`)

// ValidStockCode reports whether code is exactly six digits.
func ValidStockCode(code string) bool {
	return stockCodePattern.MatchString(code)
}

// DefaultBrowserHeaders returns the header set the source sites expect from a desktop browser.
func DefaultBrowserHeaders(userAgent string) http.Header {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	h := http.Header{}
	h.Set("User-Agent", userAgent)
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	h.Set("Accept-Language", "zh-CN,zh;q=0.9,en;q=0.8")
	h.Set("Referer", "https://www.eastmoney.com/")
	h.Set("Cache-Control", "no-cache")
	return h
}
