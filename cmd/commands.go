package cmd

import (
	"github.com/spf13/cobra"

	"github.com/JakeFAU/stock-sentiment-crawler/internal/crawler"
	"github.com/JakeFAU/stock-sentiment-crawler/internal/pipeline"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Runs the HTTP API and the async crawl workers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			return app.Run(cmd.Context())
		},
	}
}

func newCrawlCmd() *cobra.Command {
	var req crawler.CrawlRequest
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawls posts and news for one stock and persists them",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			resp, err := app.Crawler().Crawl(cmd.Context(), req)
			return printResult(cmd, resp, err)
		},
	}
	cmd.Flags().StringVar(&req.StockCode, "code", "", "6-digit stock code")
	cmd.Flags().StringVar(&req.StockName, "name", "", "stock name, required for news")
	cmd.Flags().StringSliceVar(&req.DataTypes, "types", nil, "data types to crawl: posts,news (default posts)")
	cmd.Flags().IntVar(&req.Pages, "pages", 0, "pages per data type (default 1)")
	cmd.Flags().IntVar(&req.PageSize, "page-size", 0, "records kept per page")
	_ = cmd.MarkFlagRequired("code")
	return cmd
}

func newAnalyzeCmd() *cobra.Command {
	var req pipeline.AnalysisRequest
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Scores stored records for one stock and prints the aggregate",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			resp, err := app.Analyzer().Analyze(cmd.Context(), req)
			return printResult(cmd, resp, err)
		},
	}
	cmd.Flags().StringVar(&req.StockCode, "code", "", "6-digit stock code")
	cmd.Flags().StringVar(&req.StartDate, "start", "", "first day, YYYY-MM-DD")
	cmd.Flags().StringVar(&req.EndDate, "end", "", "last day, YYYY-MM-DD (default today)")
	_ = cmd.MarkFlagRequired("code")
	_ = cmd.MarkFlagRequired("start")
	return cmd
}

func newReportsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reports",
		Short: "Collects or lists research report PDFs",
	}

	var req pipeline.ReportRequest
	collect := &cobra.Command{
		Use:   "crawl",
		Short: "Downloads report PDFs for one stock into the blob store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			resp, err := app.Reports().Collect(cmd.Context(), req)
			return printResult(cmd, resp, err)
		},
	}
	collect.Flags().StringVar(&req.StockName, "name", "", "stock name used as the search keyword")
	collect.Flags().StringVar(&req.StockCode, "code", "", "stock code, informational")
	collect.Flags().IntVar(&req.Pages, "pages", 0, "search result pages (default 1)")
	_ = collect.MarkFlagRequired("name")

	var query string
	list := &cobra.Command{
		Use:   "list",
		Short: "Lists stored reports whose path matches a stock name or code",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			resp, err := app.Reports().List(cmd.Context(), query)
			return printResult(cmd, resp, err)
		},
	}
	list.Flags().StringVar(&query, "query", "", "stock name or code")
	_ = list.MarkFlagRequired("query")

	cmd.AddCommand(collect, list)
	return cmd
}
