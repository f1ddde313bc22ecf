package extract

import (
	"regexp"

	"go.uber.org/zap"

	"github.com/JakeFAU/stock-sentiment-crawler/internal/crawler"
)

var (
	postRowOpen = regexp.MustCompile(`<(?:div|tr|li)\b[^>]*class="[^"]*\b(?:articleh|normal_post)\b[^"]*"[^>]*>`)
	newsRowOpen = regexp.MustCompile(`<(?:div|li)\b[^>]*class="[^"]*\b(?:news-item|article-item)\b[^"]*"[^>]*>`)

	h3Anchor = regexp.MustCompile(`(?s)<h3\b[^>]*>.*?<a\b([^>]*)>(.*?)</a>`)
	hrefAttr = regexp.MustCompile(`href="([^"]*)"`)

	listItem    = regexp.MustCompile(`(?s)<li>(.*?)</li>`)
	itemAnchor  = regexp.MustCompile(`>([^<]+)</a>`)
	itemDate    = regexp.MustCompile(`(\d{4}-\d{2}-\d{2})`)
	reportItem  = regexp.MustCompile(`(?s)<div class="notice_item(?:_t)?"[^>]*>.*?<a\b[^>]*?href="([^"]*)"`)
	detailTitle = regexp.MustCompile(`(?is)<h1[^>]*id="zw-title"[^>]*>(.*?)</h1>`)
	pageTitle   = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	pdfHref     = regexp.MustCompile(`(?i)href="([^"]*?\.pdf(?:\?[^"]*)?)"`)

	textCells   = map[string]*regexp.Regexp{}
	anchorCells = map[string]*regexp.Regexp{}
)

func init() {
	for _, cls := range []string{"l1", "l2", "l5", "source", "time"} {
		textCells[cls] = regexp.MustCompile(`(?s)class="[^"]*\b` + cls + `\b[^"]*"[^>]*>(.*?)</(?:span|div|td|em|p)>`)
	}
	for _, cls := range []string{"l3", "l4", "title"} {
		anchorCells[cls] = regexp.MustCompile(`(?s)class="[^"]*\b` + cls + `\b[^"]*"[^>]*>.*?<a\b([^>]*)>(.*?)</a>`)
	}
}

// Regex extracts by pattern matching the raw markup.
type Regex struct {
	clock  crawler.Clock
	logger *zap.Logger
}

// NewRegex builds a pattern based extractor.
func NewRegex(clock crawler.Clock, logger *zap.Logger) *Regex {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Regex{clock: clock, logger: logger}
}

// Name implements Extractor.
func (r *Regex) Name() string { return ModeRegex }

// Posts implements Extractor.
func (r *Regex) Posts(html []byte, stockCode string, limit int) ([]crawler.SourceRecord, error) {
	now := crawlTime(r.clock)
	var out []crawler.SourceRecord
	for i, row := range rows(string(html), postRowOpen) {
		_, title := anchorCell(row, "l3")
		if title == "" {
			_, title = anchorCell(row, "title")
		}
		_, author := anchorCell(row, "l4")
		fields := postFields{
			title:     title,
			read:      textCell(row, "l1"),
			comments:  textCell(row, "l2"),
			author:    author,
			published: textCell(row, "l5"),
		}
		rec, err := fields.record(stockCode, now)
		if err != nil {
			r.logger.Debug("dropping post", zap.Error(&crawler.ParseError{Source: "posts", Index: i, Err: err}))
			continue
		}
		out = append(out, rec)
		if capLimit(len(out), limit) {
			break
		}
	}
	return out, nil
}

// News implements Extractor. Pages without news rows are read as plain <li> lists.
func (r *Regex) News(html []byte, stockCode, stockName string, limit int) ([]crawler.SourceRecord, error) {
	now := crawlTime(r.clock)
	text := string(html)
	var out []crawler.SourceRecord
	for i, row := range rows(text, newsRowOpen) {
		var link, title string
		if m := h3Anchor.FindStringSubmatch(row); m != nil {
			link, title = attrHref(m[1]), m[2]
		} else {
			link, title = anchorCell(row, "title")
		}
		fields := newsFields{
			title:     title,
			link:      link,
			source:    textCell(row, "source"),
			published: textCell(row, "time"),
		}
		rec, err := fields.record(stockCode, stockName, now)
		if err != nil {
			r.logger.Debug("dropping news", zap.Error(&crawler.ParseError{Source: "news", Index: i, Err: err}))
			continue
		}
		out = append(out, rec)
		if capLimit(len(out), limit) {
			return out, nil
		}
	}
	if len(out) > 0 {
		return out, nil
	}

	for _, m := range listItem.FindAllStringSubmatch(text, -1) {
		titleMatch := itemAnchor.FindStringSubmatch(m[1])
		dateMatch := itemDate.FindStringSubmatch(m[1])
		if titleMatch == nil || dateMatch == nil {
			continue
		}
		link := ""
		if hm := hrefAttr.FindStringSubmatch(m[1]); hm != nil {
			link = hm[1]
		}
		rec, err := newsFields{title: titleMatch[1], link: link, published: dateMatch[1]}.record(stockCode, stockName, now)
		if err != nil {
			continue
		}
		out = append(out, rec)
		if capLimit(len(out), limit) {
			break
		}
	}
	return out, nil
}

// ReportLinks implements Extractor.
func (r *Regex) ReportLinks(html []byte, limit int) ([]string, error) {
	var out []string
	for _, m := range reportItem.FindAllStringSubmatch(string(html), -1) {
		if link := crawler.NormalizeLink(m[1]); link != "" {
			out = append(out, link)
		}
		if capLimit(len(out), limit) {
			break
		}
	}
	return out, nil
}

// ReportDetail implements Extractor.
func (r *Regex) ReportDetail(html []byte, pageURL string) (ReportDetail, error) {
	text := string(html)
	title := ""
	if m := detailTitle.FindStringSubmatch(text); m != nil {
		title = cleanText(m[1])
	}
	if title == "" {
		if m := pageTitle.FindStringSubmatch(text); m != nil {
			title = cleanText(m[1])
		}
	}
	if title == "" {
		title = pageURL
	}
	return ReportDetail{Title: title, DocumentURL: crawler.ResolveLink(pageURL, findPDFLink(html))}, nil
}

func findPDFLink(html []byte) string {
	if m := pdfHref.FindSubmatch(html); m != nil {
		return string(m[1])
	}
	return ""
}

// rows splits text into chunks that each start at a match of open.
func rows(text string, open *regexp.Regexp) []string {
	idx := open.FindAllStringIndex(text, -1)
	out := make([]string, 0, len(idx))
	for i, loc := range idx {
		end := len(text)
		if i+1 < len(idx) {
			end = idx[i+1][0]
		}
		out = append(out, text[loc[1]:end])
	}
	return out
}

func textCell(row, cls string) string {
	if m := textCells[cls].FindStringSubmatch(row); m != nil {
		return m[1]
	}
	return ""
}

func anchorCell(row, cls string) (href, text string) {
	m := anchorCells[cls].FindStringSubmatch(row)
	if m == nil {
		return "", ""
	}
	return attrHref(m[1]), m[2]
}

func attrHref(attrs string) string {
	if m := hrefAttr.FindStringSubmatch(attrs); m != nil {
		return m[1]
	}
	return ""
}
