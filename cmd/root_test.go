package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/stock-sentiment-crawler/internal/config"
	"github.com/JakeFAU/stock-sentiment-crawler/internal/crawler"
	"github.com/JakeFAU/stock-sentiment-crawler/internal/server"
)

// These tests swap the package-level factory and must not run in parallel.
func useTestApp(t *testing.T) {
	t.Helper()
	orig := newApp
	t.Cleanup(func() { newApp = orig })
	newApp = func(ctx context.Context, path string) (*server.App, error) {
		cfg, err := config.Load(path)
		require.NoError(t, err)
		cfg.Tracing.Enabled = false
		return server.Build(ctx, &cfg, zap.NewNop())
	}
}

func run(t *testing.T, args ...string) (map[string]any, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())

	var body map[string]any
	if out.Len() > 0 && out.Bytes()[0] == '{' {
		require.NoError(t, json.Unmarshal(out.Bytes(), &body))
	}
	return body, err
}

func TestReportsListPrintsEmptyResult(t *testing.T) {
	useTestApp(t)

	body, err := run(t, "reports", "list", "--query", "招商银行")
	require.NoError(t, err)
	require.Equal(t, crawler.StatusOK, body["status"])
	require.Empty(t, body["data"])
}

func TestCrawlRejectsInvalidCode(t *testing.T) {
	useTestApp(t)

	body, err := run(t, "crawl", "--code", "abc")
	require.Error(t, err)
	require.True(t, crawler.IsValidation(err))
	require.Equal(t, crawler.StatusError, body["status"])
}

func TestAnalyzeRequiresStart(t *testing.T) {
	useTestApp(t)

	_, err := run(t, "analyze", "--code", "600036")
	require.ErrorContains(t, err, "start")
}

func TestMissingConfigFileFails(t *testing.T) {
	useTestApp(t)
	newApp = func(ctx context.Context, path string) (*server.App, error) {
		_, err := config.Load(path)
		return nil, err
	}

	_, err := run(t, "--config", "/nonexistent/config.yaml", "reports", "list", "--query", "x")
	require.ErrorContains(t, err, "failed to initialize application services")
}

func TestCrawlTypesHelpNamesDefault(t *testing.T) {
	t.Parallel()

	flag := newCrawlCmd().Flags().Lookup("types")
	require.NotNil(t, flag)
	require.Contains(t, flag.Usage, "(default posts)")
}
