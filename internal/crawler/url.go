package crawler

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

var unsafeNameChars = regexp.MustCompile(`[\\/:*?"<>|]`)

// NormalizeLink turns protocol-relative and scheme-less links into absolute http links.
// Root-relative links ("/path") need the page they came from and are returned unchanged;
// see ResolveLink.
func NormalizeLink(link string) string {
	link = strings.TrimSpace(link)
	switch {
	case link == "":
		return ""
	case strings.HasPrefix(link, "http://"), strings.HasPrefix(link, "https://"):
		return link
	case strings.HasPrefix(link, "//"):
		return "http:" + link
	case strings.HasPrefix(link, "/"):
		return link
	default:
		return "http://" + link
	}
}

// ResolveLink normalizes link and resolves a root-relative result against the page URL base.
func ResolveLink(base, link string) string {
	link = NormalizeLink(link)
	if !strings.HasPrefix(link, "/") {
		return link
	}
	page, err := url.Parse(base)
	if err != nil || page.Host == "" {
		return link
	}
	ref, err := url.Parse(link)
	if err != nil {
		return link
	}
	return page.ResolveReference(ref).String()
}

// SafeName replaces characters that are not allowed in blob path segments.
func SafeName(name string) string {
	return unsafeNameChars.ReplaceAllString(strings.TrimSpace(name), "_")
}

// ExpandTemplate fills {stock_code}, {stock_name} and {page} placeholders.
// The stock name is query-escaped.
func ExpandTemplate(tmpl, stockCode, stockName string, page int) string {
	r := strings.NewReplacer(
		"{stock_code}", stockCode,
		"{stock_name}", url.QueryEscape(stockName),
		"{page}", strconv.Itoa(page),
	)
	return r.Replace(tmpl)
}
