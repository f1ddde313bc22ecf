package pipeline

import (
	"context"
	"fmt"
	"regexp"
	"runtime/debug"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/stock-sentiment-crawler/internal/crawler"
	"github.com/JakeFAU/stock-sentiment-crawler/internal/extract"
	"github.com/JakeFAU/stock-sentiment-crawler/internal/metrics"
)

// DownloadTimeLayout formats report timestamps.
const DownloadTimeLayout = "2006-01-02 15:04:05"

// ReportRequest asks for research reports about one stock.
type ReportRequest struct {
	StockCode string `json:"stock_code,omitempty"`
	StockName string `json:"stock_name"`
	Pages     int    `json:"pages,omitempty"`
}

// ReportItem is one collected or listed report.
type ReportItem struct {
	ReportTitle  string `json:"report_title"`
	ReportURL    string `json:"report_url"`
	DownloadTime string `json:"download_time"`
	DocumentID   string `json:"document_id"`
}

// ReportsResponse is returned by Collect and List.
type ReportsResponse struct {
	Status  string       `json:"status"`
	Message string       `json:"message,omitempty"`
	Data    []ReportItem `json:"data"`
}

// Reports collects report PDFs into the blob store and lists them back.
type Reports struct {
	cfg    Config
	deps   Deps
	logger *zap.Logger
}

// NewReports builds a Reports workflow.
func NewReports(cfg Config, deps Deps) *Reports {
	deps = deps.withDefaults()
	return &Reports{cfg: cfg.withDefaults(), deps: deps, logger: deps.Logger.Named("reports")}
}

// Collect walks the report search pages, downloads each report PDF, stores and indexes it.
// A failing detail page is logged and skipped.
func (r *Reports) Collect(ctx context.Context, req ReportRequest) (resp ReportsResponse, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("report collection panicked", zap.Any("panic", rec), zap.ByteString("stack", debug.Stack()))
			err = &crawler.JobError{Stage: crawler.StageCollectingReports, Err: fmt.Errorf("panic: %v", rec)}
			resp = ReportsResponse{Status: crawler.StatusError, Message: err.Error(), Data: []ReportItem{}}
		}
	}()

	name := strings.TrimSpace(req.StockName)
	if name == "" {
		verr := crawler.NewValidationError("stock_name", "is required")
		return ReportsResponse{Status: crawler.StatusError, Message: verr.Error(), Data: []ReportItem{}}, verr
	}
	pages := req.Pages
	if pages < 1 {
		pages = 1
	}
	if pages > r.cfg.MaxPages {
		pages = r.cfg.MaxPages
	}
	logger := r.logger.With(zap.String("stock_name", name))

	links := r.collectLinks(ctx, name, strings.TrimSpace(req.StockCode), pages, logger)

	items := []ReportItem{}
	pacer := crawler.NewPacer(r.deps.Pauser, r.cfg.DetailDelay)
	for _, link := range links {
		if len(items) >= r.cfg.MaxReports {
			break
		}
		if err := pacer.Wait(ctx); err != nil {
			logger.Warn("report collection interrupted", zap.Error(err))
			break
		}
		item, ok := r.collectOne(ctx, name, link, logger)
		if ok {
			items = append(items, item)
		}
	}

	logger.Info("report collection complete", zap.Int("links", len(links)), zap.Int("reports", len(items)))
	return ReportsResponse{
		Status:  crawler.StatusOK,
		Message: fmt.Sprintf("collected %d reports", len(items)),
		Data:    items,
	}, nil
}

func (r *Reports) collectLinks(ctx context.Context, name, code string, pages int, logger *zap.Logger) []string {
	var links []string
	pacer := crawler.NewPacer(r.deps.Pauser, r.cfg.PageDelay)
	for page := 1; page <= pages && len(links) < r.cfg.MaxReports; page++ {
		if err := pacer.Wait(ctx); err != nil {
			break
		}
		url := crawler.ExpandTemplate(r.cfg.ReportsURL, code, name, page)
		body, err := r.deps.Fetcher.Get(ctx, url)
		if err != nil {
			logger.Warn("report list page failed", zap.String("url", url), zap.Error(err))
			continue
		}
		found, err := r.deps.Extractor.ReportLinks(body, r.cfg.MaxReports-len(links))
		if err != nil {
			logger.Warn("report list parse failed", zap.String("url", url), zap.Error(err))
			continue
		}
		for _, link := range found {
			links = append(links, crawler.ResolveLink(url, link))
		}
	}
	return crawler.Dedupe(links, func(s string) string { return s })
}

// collectOne returns false when the detail page itself could not be read.
// A report whose PDF cannot be stored is still returned, without a document ID.
func (r *Reports) collectOne(ctx context.Context, name, link string, logger *zap.Logger) (ReportItem, bool) {
	logger = logger.With(zap.String("detail_url", link))
	body, err := r.deps.Fetcher.Get(ctx, link)
	if err != nil {
		logger.Warn("report detail failed", zap.Error(err))
		metrics.ObserveDocument("detail_failed")
		return ReportItem{}, false
	}
	detail, err := r.deps.Extractor.ReportDetail(body, link)
	if err != nil || strings.TrimSpace(detail.Title) == "" {
		logger.Warn("report detail unreadable", zap.Error(err))
		metrics.ObserveDocument("detail_failed")
		return ReportItem{}, false
	}

	now := r.deps.Clock.Now()
	fileName := crawler.SafeName(detail.Title) + ".pdf"
	item := ReportItem{
		ReportTitle:  detail.Title + ".pdf",
		ReportURL:    detail.DocumentURL,
		DownloadTime: now.Format(DownloadTimeLayout),
	}
	if item.ReportURL == "" {
		item.ReportURL = "#"
		metrics.ObserveDocument("no_document")
		return item, true
	}

	doc, err := r.store(ctx, name, fileName, detail, now)
	if err != nil {
		logger.Warn("report document not stored", zap.Error(err))
		metrics.ObserveDocument("store_failed")
		return item, true
	}
	metrics.ObserveDocument("stored")
	item.DocumentID = doc.ID
	return item, true
}

func (r *Reports) store(ctx context.Context, name, fileName string, detail extract.ReportDetail, now time.Time) (crawler.Document, error) {
	data, err := r.deps.Fetcher.Download(ctx, detail.DocumentURL, r.cfg.DocMaxBytes, r.cfg.DownloadTimeout)
	if err != nil {
		return crawler.Document{}, fmt.Errorf("download: %w", err)
	}
	var digest string
	if r.deps.Hasher != nil {
		if digest, err = r.deps.Hasher.Hash(data); err != nil {
			return crawler.Document{}, fmt.Errorf("hash: %w", err)
		}
	}
	path := strings.Join([]string{r.cfg.DocPrefix, crawler.SafeName(name), fileName}, "/")
	uri, err := r.deps.Blobs.PutObject(ctx, path, r.cfg.ContentType, data)
	if err != nil {
		return crawler.Document{}, fmt.Errorf("upload %s: %w", path, err)
	}

	doc := crawler.Document{
		StockName:    name,
		Title:        fileName,
		Path:         path,
		SourceURL:    detail.DocumentURL,
		BlobURI:      uri,
		ContentHash:  digest,
		SizeBytes:    int64(len(data)),
		DownloadedAt: now,
	}
	if r.deps.IDs != nil {
		if doc.ID, err = r.deps.IDs.NewID(); err != nil {
			return crawler.Document{}, fmt.Errorf("document id: %w", err)
		}
	}
	if err := r.deps.Documents.AddDocument(ctx, doc); err != nil {
		return crawler.Document{}, fmt.Errorf("index %s: %w", path, err)
	}
	return doc, nil
}

// List returns the stored reports for a stock name or code, newest first.
func (r *Reports) List(ctx context.Context, nameOrCode string) (ReportsResponse, error) {
	raw := strings.TrimSpace(nameOrCode)
	safe := crawler.SafeName(raw)
	if safe == "" {
		verr := crawler.NewValidationError("name_or_code", "is required")
		return ReportsResponse{Status: crawler.StatusError, Message: verr.Error(), Data: []ReportItem{}}, verr
	}

	docs, err := r.deps.Documents.FindByPath(ctx, ReportPathPattern(r.cfg.DocPrefix, raw))
	if err != nil {
		jobErr := &crawler.JobError{Stage: crawler.StageQuerying, Err: err}
		r.logger.Error("report listing failed", zap.Error(jobErr))
		return ReportsResponse{Status: crawler.StatusError, Message: jobErr.Error(), Data: []ReportItem{}}, jobErr
	}
	sort.SliceStable(docs, func(i, j int) bool { return docs[i].DownloadedAt.After(docs[j].DownloadedAt) })

	items := make([]ReportItem, 0, len(docs))
	for _, doc := range docs {
		url, err := r.deps.Blobs.SignedURL(ctx, doc.Path, r.cfg.URLTTL)
		if err != nil {
			r.logger.Warn("signed url failed", zap.String("path", doc.Path), zap.Error(err))
			url = "#"
		}
		title := doc.Title
		if title == "" {
			title = doc.Path[strings.LastIndex(doc.Path, "/")+1:]
		}
		items = append(items, ReportItem{
			ReportTitle:  title,
			ReportURL:    url,
			DownloadTime: doc.DownloadedAt.Format(DownloadTimeLayout),
			DocumentID:   doc.ID,
		})
	}
	return ReportsResponse{
		Status:  crawler.StatusOK,
		Message: fmt.Sprintf("found %d reports", len(items)),
		Data:    items,
	}, nil
}

// ReportPathPattern matches PDFs under the safe or the raw directory of nameOrCode.
// Document indexes apply it case-insensitively.
func ReportPathPattern(prefix, nameOrCode string) string {
	raw := strings.TrimSpace(nameOrCode)
	dirs := []string{
		regexp.QuoteMeta(prefix + "/" + crawler.SafeName(raw) + "/"),
		regexp.QuoteMeta(prefix + "/" + raw + "/"),
	}
	return `^(` + strings.Join(dirs, "|") + `).*\.pdf$`
}
