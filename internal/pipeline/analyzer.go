package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"

	"go.uber.org/zap"

	"github.com/JakeFAU/stock-sentiment-crawler/internal/analysis"
	"github.com/JakeFAU/stock-sentiment-crawler/internal/crawler"
	"github.com/JakeFAU/stock-sentiment-crawler/internal/sentiment"
)

// AnalysisRequest selects the records to analyze.
type AnalysisRequest struct {
	StockCode string `json:"stock_code"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date,omitempty"`
}

// UnmarshalJSON also accepts the stock/stockCode, start/startDate and end/endDate spellings.
func (r *AnalysisRequest) UnmarshalJSON(data []byte) error {
	var raw struct {
		StockCode  string `json:"stock_code"`
		Stock      string `json:"stock"`
		StockCamel string `json:"stockCode"`
		StartDate  string `json:"start_date"`
		Start      string `json:"start"`
		StartCamel string `json:"startDate"`
		EndDate    string `json:"end_date"`
		End        string `json:"end"`
		EndCamel   string `json:"endDate"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode analysis request: %w", err)
	}
	r.StockCode = firstNonEmpty(raw.StockCode, raw.Stock, raw.StockCamel)
	r.StartDate = firstNonEmpty(raw.StartDate, raw.Start, raw.StartCamel)
	r.EndDate = firstNonEmpty(raw.EndDate, raw.End, raw.EndCamel)
	return nil
}

// Summary is the headline of an analysis.
type Summary struct {
	TotalPosts      int    `json:"total_posts"`
	TotalNews       int    `json:"total_news"`
	AvgSentiment    string `json:"avg_sentiment"`
	PositivePercent string `json:"positive_percent"`
}

// SampleData holds the first few records of each kind.
type SampleData struct {
	Posts []crawler.SourceRecord `json:"posts"`
	News  []crawler.SourceRecord `json:"news"`
}

// Enrichment reports how scoring went per kind.
type Enrichment struct {
	Posts sentiment.EnrichResult `json:"posts"`
	News  sentiment.EnrichResult `json:"news"`
}

// AnalysisData is the body of a successful analysis.
type AnalysisData struct {
	StockCode             string                         `json:"stock_code"`
	DateRange             DateRange                      `json:"date_range"`
	Summary               Summary                        `json:"summary"`
	WordCloud             []analysis.WordCloudEntry      `json:"word_cloud"`
	SentimentDistribution analysis.SentimentDistribution `json:"sentiment_distribution"`
	SampleData            SampleData                     `json:"sample_data"`
	Enrichment            Enrichment                     `json:"enrichment"`
}

// AnalysisResponse is returned for every analysis request.
type AnalysisResponse struct {
	Status  string        `json:"status"`
	Message string        `json:"message"`
	Data    *AnalysisData `json:"data,omitempty"`
}

// Analyzer queries stored records, scores them and aggregates the result.
type Analyzer struct {
	cfg      Config
	deps     Deps
	enricher *sentiment.Enricher
	logger   *zap.Logger
}

// NewAnalyzer builds an Analyzer. enrichBatch is the score write-back group size.
func NewAnalyzer(cfg Config, deps Deps, enrichBatch int) *Analyzer {
	deps = deps.withDefaults()
	return &Analyzer{
		cfg:      cfg.withDefaults(),
		deps:     deps,
		enricher: sentiment.NewEnricher(deps.Scorer, deps.Records, enrichBatch, deps.Logger),
		logger:   deps.Logger.Named("analyzer"),
	}
}

// Analyze runs Validating → Querying → Enriching → Aggregating.
func (a *Analyzer) Analyze(ctx context.Context, req AnalysisRequest) (resp AnalysisResponse, err error) {
	stage := crawler.StageValidating
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("analysis panicked", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			err = &crawler.JobError{Stage: stage, Err: fmt.Errorf("panic: %v", r)}
			resp = AnalysisResponse{Status: crawler.StatusError, Message: err.Error()}
		}
	}()

	code, start, end, err := validateAnalysis(req, a.deps.Clock.Now())
	if err != nil {
		return AnalysisResponse{Status: crawler.StatusError, Message: err.Error()}, err
	}
	rng := DateRange{Start: start.Format(crawler.DateLayout), End: end.Format(crawler.DateLayout)}
	logger := a.logger.With(zap.String("stock_code", code), zap.String("start", rng.Start), zap.String("end", rng.End))

	stage = crawler.StageQuerying
	posts, err := a.deps.Records.Query(ctx, crawler.RecordQuery{
		Kind: crawler.KindPost, StockCode: code, From: start, To: end, Limit: a.cfg.PostLimit,
	})
	if err != nil {
		return a.failed(stage, fmt.Errorf("query posts: %w", err))
	}
	news, err := a.deps.Records.Query(ctx, crawler.RecordQuery{
		Kind: crawler.KindNews, StockCode: code, From: start, To: end, Limit: a.cfg.NewsLimit,
	})
	if err != nil {
		return a.failed(stage, fmt.Errorf("query news: %w", err))
	}

	stage = crawler.StageEnriching
	var enrichment Enrichment
	if enrichment.Posts, err = a.enricher.Enrich(ctx, crawler.KindPost, posts); err != nil {
		return a.failed(stage, err)
	}
	if enrichment.News, err = a.enricher.Enrich(ctx, crawler.KindNews, news); err != nil {
		return a.failed(stage, err)
	}

	stage = crawler.StageAggregating
	titles := make([]string, 0, len(posts)+len(news))
	scores := make([]float64, 0, len(posts)+len(news))
	for _, r := range append(append([]crawler.SourceRecord(nil), posts...), news...) {
		titles = append(titles, r.Title)
		scores = append(scores, r.Score())
	}
	dist := analysis.Distribution(scores)

	logger.Info("analysis complete", zap.Int("posts", len(posts)), zap.Int("news", len(news)))
	return AnalysisResponse{
		Status:  crawler.StatusSuccess,
		Message: fmt.Sprintf("analyzed %d posts and %d news items", len(posts), len(news)),
		Data: &AnalysisData{
			StockCode: code,
			DateRange: rng,
			Summary: Summary{
				TotalPosts:      len(posts),
				TotalNews:       len(news),
				AvgSentiment:    analysis.FormatAverage(scores),
				PositivePercent: dist.PositivePercent,
			},
			WordCloud:             a.deps.Aggregator.WordCloud(titles),
			SentimentDistribution: dist,
			SampleData: SampleData{
				Posts: head(posts, DefaultSamplePosts),
				News:  head(news, DefaultSampleNews),
			},
			Enrichment: enrichment,
		},
	}, nil
}

func (a *Analyzer) failed(stage crawler.Stage, err error) (AnalysisResponse, error) {
	jobErr := &crawler.JobError{Stage: stage, Err: err}
	a.logger.Error("analysis failed", zap.Error(jobErr))
	return AnalysisResponse{Status: crawler.StatusError, Message: jobErr.Error()}, jobErr
}

func head(records []crawler.SourceRecord, n int) []crawler.SourceRecord {
	if len(records) < n {
		n = len(records)
	}
	out := make([]crawler.SourceRecord, n)
	copy(out, records[:n])
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
