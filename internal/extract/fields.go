package extract

import (
	"errors"
	"html"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/JakeFAU/stock-sentiment-crawler/internal/crawler"
)

var (
	errNoTitle = errors.New("missing title")

	whitespace = regexp.MustCompile(`\s+`)
	tags       = regexp.MustCompile(`(?s)<[^>]*>`)
	countRe    = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(万|亿)?`)
)

// cleanText strips tags, unescapes entities and collapses whitespace.
func cleanText(s string) string {
	s = tags.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}

// parseCount reads forum counters such as "1234", "1.2万" or "3亿". Anything else is 0.
func parseCount(s string) int {
	m := countRe.FindStringSubmatch(strings.ReplaceAll(s, ",", ""))
	if m == nil {
		return 0
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}
	switch m[2] {
	case "万":
		v *= 1e4
	case "亿":
		v *= 1e8
	}
	return int(v)
}

type postFields struct {
	title, read, comments, author, published string
}

func (p postFields) record(stockCode string, now time.Time) (crawler.SourceRecord, error) {
	title := cleanText(p.title)
	if title == "" {
		return crawler.SourceRecord{}, errNoTitle
	}
	return crawler.SourceRecord{
		Kind:          crawler.KindPost,
		Title:         title,
		StockCode:     stockCode,
		Author:        orDefault(cleanText(p.author), UnknownAuthor),
		ReadCount:     parseCount(p.read),
		CommentCount:  parseCount(p.comments),
		PublishedText: orDefault(cleanText(p.published), now.Format(time.DateTime)),
		OccurredAt:    crawler.CalendarDate(now),
		CrawledAt:     now,
	}, nil
}

type newsFields struct {
	title, link, source, published string
}

func (n newsFields) record(stockCode, stockName string, now time.Time) (crawler.SourceRecord, error) {
	title := cleanText(n.title)
	if title == "" {
		return crawler.SourceRecord{}, errNoTitle
	}
	return crawler.SourceRecord{
		Kind:          crawler.KindNews,
		Title:         title,
		StockCode:     stockCode,
		StockName:     stockName,
		Author:        orDefault(cleanText(n.source), UnknownSource),
		URL:           crawler.NormalizeLink(html.UnescapeString(n.link)),
		PublishedText: orDefault(cleanText(n.published), now.Format(time.DateTime)),
		OccurredAt:    crawler.CalendarDate(now),
		CrawledAt:     now,
	}, nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
