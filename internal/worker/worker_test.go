package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casetrack/casetrack/internal/domain"
	"github.com/casetrack/casetrack/internal/repository/memory"
)

func TestTokenSweeper_Sweep(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewRefreshTokenRepository()
	require.NoError(t, repo.Create(ctx, &domain.RefreshToken{UserID: "u", TokenID: "old", ExpiresAt: time.Now().Add(-time.Minute)}))
	require.NoError(t, repo.Create(ctx, &domain.RefreshToken{UserID: "u", TokenID: "live", ExpiresAt: time.Now().Add(time.Hour)}))

	s := NewTokenSweeper(repo, time.Hour, nil)
	assert.EqualValues(t, 1, s.Sweep(ctx))
	assert.Equal(t, 1, repo.Len())
	assert.Zero(t, s.Sweep(ctx))
}

type countingPurger struct {
	calls atomic.Int32
	err   error
}

func (p *countingPurger) DeleteExpired(context.Context) (int64, error) {
	p.calls.Add(1)
	return 0, p.err
}

func TestTokenSweeper_RunStopsWithContext(t *testing.T) {
	p := &countingPurger{err: errors.New("db down")}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		NewTokenSweeper(p, 5*time.Millisecond, nil).Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return p.calls.Load() >= 2 }, time.Second, time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestTokenSweeper_Disabled(t *testing.T) {
	p := &countingPurger{}
	NewTokenSweeper(p, 0, nil).Run(context.Background())
	assert.Zero(t, p.calls.Load())
}
