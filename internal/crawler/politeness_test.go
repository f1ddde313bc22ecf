package crawler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTimerPauserHonorsContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := TimerPauser{}.Pause(ctx, 5*time.Second)
	require.Error(t, err)
	require.ErrorIs(t, err, context.Canceled)
	require.Less(t, time.Since(start), time.Second, "pause should exit immediately when context is done")
}

func TestTimerPauserZeroDelay(t *testing.T) {
	t.Parallel()

	require.NoError(t, TimerPauser{}.Pause(context.Background(), 0))
}

type recordingPauser struct {
	delays []time.Duration
}

func (p *recordingPauser) Pause(_ context.Context, delay time.Duration) error {
	p.delays = append(p.delays, delay)
	return nil
}

func TestPacerSkipsFirstStepOnly(t *testing.T) {
	t.Parallel()

	pauser := &recordingPauser{}
	pacer := NewPacer(pauser, 3*time.Second)
	for i := 0; i < 4; i++ {
		require.NoError(t, pacer.Wait(context.Background()))
	}
	require.Equal(t, []time.Duration{3 * time.Second, 3 * time.Second, 3 * time.Second}, pauser.delays)
}
