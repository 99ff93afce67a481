package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/venuescout/venuescout/internal/metrics"
)

func init() {
	metrics.Init()
}

func TestHostExtractsLowercaseHostname(t *testing.T) {
	host, err := Host("HTTPS://Example.COM/path?x=1")
	require.NoError(t, err)
	assert.Equal(t, "example.com", host)
}

func TestHostCollapsesSubdomainsToRegisteredDomain(t *testing.T) {
	www, err := Host("https://www.example.com/a")
	require.NoError(t, err)
	shop, err := Host("https://shop.example.com/b")
	require.NoError(t, err)
	assert.Equal(t, www, shop)
	assert.Equal(t, "example.com", www)
}

func TestPerHostConcurrencyCap(t *testing.T) {
	g := New(32, 2)
	ctx := context.Background()

	var inFlight int32
	var maxObserved int32
	var wg sync.WaitGroup

	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := g.Acquire(ctx, "shared.example")
			require.NoError(t, err)
			defer release()

			n := atomic.AddInt32(&inFlight, 1)
			for {
				max := atomic.LoadInt32(&maxObserved)
				if n <= max || atomic.CompareAndSwapInt32(&maxObserved, max, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			atomic.AddInt32(&inFlight, -1)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, int(maxObserved), 2)
}

func TestPenalizeAddsBackoffThatAcquireHonors(t *testing.T) {
	g := New(32, 2)
	g.Penalize("slow.example")

	remaining := g.backoffRemaining("slow.example")
	assert.Greater(t, remaining, time.Duration(0))
	assert.LessOrEqual(t, remaining, backoffBase*2)
}

func TestBackoffWaitsOutThePenaltyItOpens(t *testing.T) {
	g := New(32, 2)
	start := time.Now()
	err := g.Backoff(context.Background(), "slow.example")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), backoffBase/2)
	assert.Equal(t, time.Duration(0), g.backoffRemaining("slow.example"))
}

func TestResetClearsBackoff(t *testing.T) {
	g := New(32, 2)
	g.Penalize("flaky.example")
	g.Reset("flaky.example")
	assert.Equal(t, time.Duration(0), g.backoffRemaining("flaky.example"))
}

func TestAcquireRespectsContextCancellation(t *testing.T) {
	g := New(1, 1)
	ctx := context.Background()

	release, err := g.Acquire(ctx, "busy.example")
	require.NoError(t, err)
	defer release()

	cancelCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = g.Acquire(cancelCtx, "busy.example")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
