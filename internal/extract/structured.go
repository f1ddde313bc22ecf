package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/stock-sentiment-crawler/internal/crawler"
)

// Selectors for the source pages.
const (
	postRowSelector    = ".articleh, .normal_post"
	postTitleSelector  = ".l3 a, .title a"
	newsRowSelector    = ".news-item, .article-item"
	newsTitleSelector  = "h3 a, .title a"
	reportItemSelector = ".notice_item, .notice_item_t"
)

// Structured extracts with CSS selectors over the parsed DOM.
type Structured struct {
	clock  crawler.Clock
	logger *zap.Logger
}

// NewStructured builds a goquery based extractor.
func NewStructured(clock crawler.Clock, logger *zap.Logger) *Structured {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Structured{clock: clock, logger: logger}
}

// Name implements Extractor.
func (s *Structured) Name() string { return ModeStructured }

// Posts implements Extractor.
func (s *Structured) Posts(html []byte, stockCode string, limit int) ([]crawler.SourceRecord, error) {
	doc, err := parse(html)
	if err != nil {
		return nil, err
	}
	now := crawlTime(s.clock)
	var out []crawler.SourceRecord
	doc.Find(postRowSelector).EachWithBreak(func(i int, row *goquery.Selection) bool {
		fields := postFields{
			title:     row.Find(postTitleSelector).First().Text(),
			read:      row.Find(".l1").First().Text(),
			comments:  row.Find(".l2").First().Text(),
			author:    row.Find(".l4 a").First().Text(),
			published: row.Find(".l5").First().Text(),
		}
		rec, ferr := fields.record(stockCode, now)
		if ferr != nil {
			s.logger.Debug("dropping post", zap.Error(&crawler.ParseError{Source: "posts", Index: i, Err: ferr}))
			return true
		}
		out = append(out, rec)
		return !capLimit(len(out), limit)
	})
	return out, nil
}

// News implements Extractor.
func (s *Structured) News(html []byte, stockCode, stockName string, limit int) ([]crawler.SourceRecord, error) {
	doc, err := parse(html)
	if err != nil {
		return nil, err
	}
	now := crawlTime(s.clock)
	var out []crawler.SourceRecord
	doc.Find(newsRowSelector).EachWithBreak(func(i int, row *goquery.Selection) bool {
		anchor := row.Find(newsTitleSelector).First()
		link, _ := anchor.Attr("href")
		fields := newsFields{
			title:     anchor.Text(),
			link:      link,
			source:    row.Find(".source").First().Text(),
			published: row.Find(".time").First().Text(),
		}
		rec, ferr := fields.record(stockCode, stockName, now)
		if ferr != nil {
			s.logger.Debug("dropping news", zap.Error(&crawler.ParseError{Source: "news", Index: i, Err: ferr}))
			return true
		}
		out = append(out, rec)
		return !capLimit(len(out), limit)
	})
	return out, nil
}

// ReportLinks implements Extractor.
func (s *Structured) ReportLinks(html []byte, limit int) ([]string, error) {
	doc, err := parse(html)
	if err != nil {
		return nil, err
	}
	var out []string
	doc.Find(reportItemSelector).EachWithBreak(func(_ int, item *goquery.Selection) bool {
		href, _ := item.Find("a").First().Attr("href")
		if link := crawler.NormalizeLink(href); link != "" {
			out = append(out, link)
		}
		return !capLimit(len(out), limit)
	})
	return out, nil
}

// ReportDetail implements Extractor.
func (s *Structured) ReportDetail(html []byte, pageURL string) (ReportDetail, error) {
	doc, err := parse(html)
	if err != nil {
		return ReportDetail{}, err
	}
	title := cleanText(doc.Find("h1#zw-title").First().Text())
	if title == "" {
		title = cleanText(doc.Find("title").First().Text())
	}
	if title == "" {
		title = pageURL
	}

	link, _ := doc.Find("a.pdf-link").First().Attr("href")
	if strings.TrimSpace(link) == "" {
		link, _ = doc.Find("a[class*=pdf]").First().Attr("href")
	}
	if strings.TrimSpace(link) == "" {
		link = findPDFLink(html)
	}
	return ReportDetail{Title: title, DocumentURL: crawler.ResolveLink(pageURL, link)}, nil
}

func parse(html []byte) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}
