// Package extract turns raw source pages into SourceRecords and report links.
//
// Two strategies exist: Structured walks the DOM with goquery selectors and
// Regex scans the raw markup. Fallback chains them so a page that the DOM
// strategy cannot read still gets a second chance.
package extract

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/stock-sentiment-crawler/internal/crawler"
)

// Extraction modes accepted by New.
const (
	ModeAuto       = "auto"
	ModeStructured = "structured"
	ModeRegex      = "regex"
)

// Placeholders used when a page omits a field.
const (
	UnknownAuthor = "未知"
	UnknownSource = "未知来源"
)

// ReportDetail is what a research report detail page yields.
type ReportDetail struct {
	Title       string
	DocumentURL string
}

// Extractor reads one kind of source page.
type Extractor interface {
	// Posts returns at most limit forum posts from a listing page.
	Posts(html []byte, stockCode string, limit int) ([]crawler.SourceRecord, error)
	// News returns at most limit news items from a search results page.
	News(html []byte, stockCode, stockName string, limit int) ([]crawler.SourceRecord, error)
	// ReportLinks returns at most limit detail page URLs from a report search page.
	ReportLinks(html []byte, limit int) ([]string, error)
	// ReportDetail returns the title and PDF link of a report detail page.
	ReportDetail(html []byte, pageURL string) (ReportDetail, error)
	Name() string
}

// New builds the extractor for mode. An empty mode means ModeAuto.
func New(mode string, clock crawler.Clock, logger *zap.Logger) (Extractor, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("extract")
	switch mode {
	case "", ModeAuto:
		return NewFallback(NewStructured(clock, logger), NewRegex(clock, logger), logger), nil
	case ModeStructured:
		return NewStructured(clock, logger), nil
	case ModeRegex:
		return NewRegex(clock, logger), nil
	default:
		return nil, fmt.Errorf("unknown extractor mode %q", mode)
	}
}

// Fallback runs primary first and secondary whenever primary errors or finds nothing.
type Fallback struct {
	primary   Extractor
	secondary Extractor
	logger    *zap.Logger
}

// NewFallback chains two strategies.
func NewFallback(primary, secondary Extractor, logger *zap.Logger) *Fallback {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fallback{primary: primary, secondary: secondary, logger: logger}
}

// Name implements Extractor.
func (f *Fallback) Name() string { return ModeAuto }

// Posts implements Extractor.
func (f *Fallback) Posts(html []byte, stockCode string, limit int) ([]crawler.SourceRecord, error) {
	records, err := f.primary.Posts(html, stockCode, limit)
	if err == nil && len(records) > 0 {
		return records, nil
	}
	f.fallingBack("posts", err)
	return f.secondary.Posts(html, stockCode, limit)
}

// News implements Extractor.
func (f *Fallback) News(html []byte, stockCode, stockName string, limit int) ([]crawler.SourceRecord, error) {
	records, err := f.primary.News(html, stockCode, stockName, limit)
	if err == nil && len(records) > 0 {
		return records, nil
	}
	f.fallingBack("news", err)
	return f.secondary.News(html, stockCode, stockName, limit)
}

// ReportLinks implements Extractor.
func (f *Fallback) ReportLinks(html []byte, limit int) ([]string, error) {
	links, err := f.primary.ReportLinks(html, limit)
	if err == nil && len(links) > 0 {
		return links, nil
	}
	f.fallingBack("report_links", err)
	return f.secondary.ReportLinks(html, limit)
}

// ReportDetail implements Extractor. The secondary strategy runs when no document link was found.
func (f *Fallback) ReportDetail(html []byte, pageURL string) (ReportDetail, error) {
	detail, err := f.primary.ReportDetail(html, pageURL)
	if err == nil && detail.DocumentURL != "" {
		return detail, nil
	}
	f.fallingBack("report_detail", err)
	second, serr := f.secondary.ReportDetail(html, pageURL)
	if serr != nil {
		return ReportDetail{}, serr
	}
	// Keep the better title when only the link was missing.
	if err == nil && detail.Title != "" && detail.Title != pageURL {
		second.Title = detail.Title
	}
	return second, nil
}

func (f *Fallback) fallingBack(what string, err error) {
	fields := []zap.Field{
		zap.String("what", what),
		zap.String("from", f.primary.Name()),
		zap.String("to", f.secondary.Name()),
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	f.logger.Debug("extractor falling back", fields...)
}

func capLimit(n, limit int) bool {
	return limit > 0 && n >= limit
}

func crawlTime(clock crawler.Clock) time.Time {
	if clock == nil {
		return time.Now().UTC()
	}
	return clock.Now()
}
