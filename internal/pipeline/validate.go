package pipeline

import (
	"strings"
	"time"

	"github.com/JakeFAU/stock-sentiment-crawler/internal/crawler"
)

// ValidateCrawl turns a raw request into a job config.
// Pages are clamped to [1, maxPages]; a non-positive page size falls back to the default.
func ValidateCrawl(req crawler.CrawlRequest, maxPages, defaultPageSize int) (crawler.CrawlJobConfig, error) {
	code := strings.TrimSpace(req.StockCode)
	if !crawler.ValidStockCode(code) {
		return crawler.CrawlJobConfig{}, crawler.NewValidationError("stock_code", "must be 6 digits")
	}

	dataTypes := make([]string, 0, 2)
	seen := map[string]bool{}
	for _, dt := range req.DataTypes {
		dt = strings.ToLower(strings.TrimSpace(dt))
		if dt != crawler.DataTypePosts && dt != crawler.DataTypeNews {
			return crawler.CrawlJobConfig{}, crawler.NewValidationError("data_types", "unknown data type %q", dt)
		}
		if !seen[dt] {
			seen[dt] = true
			dataTypes = append(dataTypes, dt)
		}
	}
	if len(dataTypes) == 0 {
		dataTypes = append(dataTypes, crawler.DataTypePosts)
	}

	pages := req.Pages
	if pages < 1 {
		pages = 1
	}
	if maxPages > 0 && pages > maxPages {
		pages = maxPages
	}
	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	return crawler.CrawlJobConfig{
		StockCode:   code,
		StockName:   strings.TrimSpace(req.StockName),
		DataTypes:   dataTypes,
		TargetPages: pages,
		PageSize:    pageSize,
	}, nil
}

// DateRange is an inclusive calendar range.
type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

func validateAnalysis(req AnalysisRequest, today time.Time) (string, time.Time, time.Time, error) {
	code := strings.TrimSpace(req.StockCode)
	if !crawler.ValidStockCode(code) {
		return "", time.Time{}, time.Time{}, crawler.NewValidationError("stock_code", "must be 6 digits")
	}
	startText := strings.TrimSpace(req.StartDate)
	if startText == "" {
		return "", time.Time{}, time.Time{}, crawler.NewValidationError("start_date", "is required")
	}
	start, err := time.Parse(crawler.DateLayout, startText)
	if err != nil {
		return "", time.Time{}, time.Time{}, crawler.NewValidationError("start_date", "must be YYYY-MM-DD")
	}
	end := crawler.CalendarDate(today)
	if endText := strings.TrimSpace(req.EndDate); endText != "" {
		end, err = time.Parse(crawler.DateLayout, endText)
		if err != nil {
			return "", time.Time{}, time.Time{}, crawler.NewValidationError("end_date", "must be YYYY-MM-DD")
		}
	}
	if end.Before(start) {
		return "", time.Time{}, time.Time{}, crawler.NewValidationError("end_date", "must not be before start_date")
	}
	return code, start, end, nil
}
