package pipeline

import (
	"context"
	"fmt"
	"runtime/debug"

	"go.uber.org/zap"

	"github.com/JakeFAU/stock-sentiment-crawler/internal/crawler"
)

// StageObserver is told about every stage a crawl enters.
type StageObserver func(stage crawler.Stage)

// Orchestrator runs crawl jobs: fetch pages per branch, dedupe, persist.
type Orchestrator struct {
	cfg       Config
	deps      Deps
	persister *Persister
	logger    *zap.Logger
}

// NewOrchestrator builds an Orchestrator.
func NewOrchestrator(cfg Config, deps Deps) *Orchestrator {
	deps = deps.withDefaults()
	return &Orchestrator{
		cfg:       cfg.withDefaults(),
		deps:      deps,
		persister: NewPersister(deps.Records, deps.Logger),
		logger:    deps.Logger.Named("orchestrator"),
	}
}

// Crawl runs one crawl request to completion.
func (o *Orchestrator) Crawl(ctx context.Context, req crawler.CrawlRequest) (crawler.CrawlResponse, error) {
	return o.CrawlObserved(ctx, req, nil)
}

// CrawlObserved is Crawl with stage notifications.
// The response is always populated; the error is non-nil for validation failures and recovered panics.
func (o *Orchestrator) CrawlObserved(ctx context.Context, req crawler.CrawlRequest, observe StageObserver) (resp crawler.CrawlResponse, err error) {
	stage := crawler.StageValidating
	enter := func(s crawler.Stage) {
		stage = s
		if observe != nil {
			observe(s)
		}
	}
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("crawl panicked",
				zap.Any("panic", r),
				zap.String("stage", string(stage)),
				zap.ByteString("stack", debug.Stack()),
			)
			err = &crawler.JobError{Stage: stage, Err: fmt.Errorf("panic: %v", r)}
			resp = crawler.CrawlResponse{Status: crawler.StatusError, Message: err.Error(), StockCode: req.StockCode}
			if observe != nil {
				observe(crawler.StageFailed)
			}
		}
	}()

	enter(crawler.StageValidating)
	job, err := ValidateCrawl(req, o.cfg.MaxPages, o.cfg.PageSize)
	if err != nil {
		enter(crawler.StageFailed)
		return crawler.CrawlResponse{Status: crawler.StatusError, Message: err.Error(), StockCode: req.StockCode}, err
	}

	name := job.StockName
	if name == "" {
		name = job.StockCode
	}
	data := &crawler.CrawlData{
		StockCode: job.StockCode,
		StockName: name,
		Posts:     crawler.BranchResult{Data: []crawler.SourceRecord{}},
		News:      crawler.BranchResult{Data: []crawler.SourceRecord{}},
	}
	logger := o.logger.With(zap.String("stock_code", job.StockCode))

	var posts, news []crawler.SourceRecord
	if job.Wants(crawler.DataTypePosts) {
		enter(crawler.StageFetchingPosts)
		data.Posts, posts = o.fetchBranch(ctx, job, crawler.KindPost)
	}
	if job.Wants(crawler.DataTypeNews) {
		enter(crawler.StageFetchingNews)
		data.News, news = o.fetchBranch(ctx, job, crawler.KindNews)
	}

	enter(crawler.StagePersisting)
	o.persistBranch(ctx, &data.Posts, posts, crawler.KindPost)
	o.persistBranch(ctx, &data.News, news, crawler.KindNews)

	enter(crawler.StageDone)
	logger.Info("crawl complete",
		zap.Int("posts", data.Posts.Count),
		zap.Int("posts_persisted", data.Posts.Persisted),
		zap.Int("news", data.News.Count),
		zap.Int("news_persisted", data.News.Persisted),
	)
	msg := fmt.Sprintf("data crawl complete (posts: %d pages/%d items; news: %d pages/%d items)",
		data.Posts.Pages, data.Posts.Count, data.News.Pages, data.News.Count)
	return crawler.CrawlResponse{
		Status:    crawler.StatusSuccess,
		Message:   msg,
		StockCode: job.StockCode,
		Data:      data,
	}, nil
}

// fetchBranch collects, dedupes and caps one data type. A panic inside becomes the branch error.
func (o *Orchestrator) fetchBranch(ctx context.Context, job crawler.CrawlJobConfig, kind crawler.RecordKind) (res crawler.BranchResult, records []crawler.SourceRecord) {
	res.Data = []crawler.SourceRecord{}
	logger := o.logger.With(zap.String("stock_code", job.StockCode), zap.String("kind", string(kind)))
	defer func() {
		if r := recover(); r != nil {
			logger.Error("branch panicked", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			res = crawler.BranchResult{Data: []crawler.SourceRecord{}, Error: fmt.Sprintf("panic: %v", r)}
			records = nil
		}
	}()

	tmpl := o.cfg.PostsURL
	if kind == crawler.KindNews {
		if job.StockName == "" {
			res.Error = crawler.NewValidationError("stock_name", "is required for news").Error()
			return res, nil
		}
		tmpl = o.cfg.NewsURL
	}

	pacer := crawler.NewPacer(o.deps.Pauser, o.cfg.PageDelay)
	var collected []crawler.SourceRecord
	for page := 1; page <= job.TargetPages; page++ {
		if err := pacer.Wait(ctx); err != nil {
			res.Error = err.Error()
			break
		}
		url := crawler.ExpandTemplate(tmpl, job.StockCode, job.StockName, page)
		items, err := o.fetchPage(ctx, url, job, kind)
		if err != nil {
			logger.Warn("page failed", zap.Int("page", page), zap.String("url", url), zap.Error(err))
			if ctx.Err() != nil {
				res.Error = err.Error()
				break
			}
			continue
		}
		res.Pages++
		collected = append(collected, items...)
	}

	unique := crawler.Dedupe(collected, crawler.RecordTitle)
	if limit := job.TargetPages * job.PageSize; len(unique) > limit {
		unique = unique[:limit]
	}
	res.Count = len(unique)
	res.Data = unique
	return res, unique
}

func (o *Orchestrator) fetchPage(ctx context.Context, url string, job crawler.CrawlJobConfig, kind crawler.RecordKind) ([]crawler.SourceRecord, error) {
	body, err := o.deps.Fetcher.Get(ctx, url)
	if err != nil {
		return nil, err
	}
	var records []crawler.SourceRecord
	if kind == crawler.KindNews {
		records, err = o.deps.Extractor.News(body, job.StockCode, job.StockName, job.PageSize)
	} else {
		records, err = o.deps.Extractor.Posts(body, job.StockCode, job.PageSize)
	}
	for i := range records {
		if records[i].URL != "" {
			records[i].URL = crawler.ResolveLink(url, records[i].URL)
		}
	}
	return records, err
}

func (o *Orchestrator) persistBranch(ctx context.Context, res *crawler.BranchResult, records []crawler.SourceRecord, kind crawler.RecordKind) {
	if len(records) == 0 {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("persist panicked", zap.String("kind", string(kind)), zap.Any("panic", r))
			if res.Error == "" {
				res.Error = fmt.Sprintf("persist: panic: %v", r)
			}
		}
	}()
	pr := o.persister.Persist(ctx, kind, records, o.cfg.PersistBatch)
	// records shares its backing array with res.Data, so assigned IDs show up in the response.
	res.Persisted = pr.Committed
}
