package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLimiterWaitSpacesSameHost(t *testing.T) {
	t.Parallel()

	l := New(Config{DefaultRPS: 10, DefaultBurst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://guba.eastmoney.com/list,600036.html"))

	// 10 RPS with burst 1 leaves the bucket empty for ~100ms.
	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://guba.eastmoney.com/list,600036.html?page=2"))
	require.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestLimiterDifferentHostsIndependent(t *testing.T) {
	t.Parallel()

	l := New(Config{DefaultRPS: 1, DefaultBurst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://a.example.com/1"))

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://b.example.com/1"))
	require.Less(t, time.Since(start), 50*time.Millisecond, "host b must not wait on host a")
}

func TestLimiterUnlimitedAndCanceled(t *testing.T) {
	t.Parallel()

	unlimited := New(Config{})
	for i := 0; i < 5; i++ {
		require.NoError(t, unlimited.Wait(context.Background(), "https://x.example.com"))
	}

	l := New(Config{DefaultRPS: 0.1, DefaultBurst: 1})
	require.NoError(t, l.Wait(context.Background(), "https://slow.example.com"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, l.Wait(ctx, "https://slow.example.com"))
}

func TestLimiterHostOverride(t *testing.T) {
	t.Parallel()

	l := New(Config{
		DefaultRPS:   100,
		DefaultBurst: 5,
		Hosts:        map[string]HostRate{"PDF.dfcfw.com": {RPS: 0.5, Burst: 1}},
	})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://pdf.dfcfw.com/pdf/H3_AP1.pdf"))
	short, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	require.Error(t, l.Wait(short, "https://pdf.dfcfw.com/pdf/H3_AP2.pdf"), "override bucket is empty for two seconds")

	for i := 0; i < 5; i++ {
		require.NoError(t, l.Wait(ctx, "https://data.eastmoney.com/report"))
	}
}
