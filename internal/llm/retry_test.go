package llm

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turnrelay/engine/internal/models"
)

// seededPolicy returns the default policy with a deterministic jitter source.
func seededPolicy() BackoffPolicy {
	p := DefaultBackoffPolicy()
	p.Rand = rand.New(rand.NewSource(42))
	return p
}

func TestBackoffPolicy_DelayForGrowsAndCaps(t *testing.T) {
	p := seededPolicy()

	// Attempt 0 is base + jitter(0..base).
	d0 := p.DelayFor(0)
	assert.GreaterOrEqual(t, d0, 4*time.Second)
	assert.Less(t, d0, 8*time.Second)

	// Attempt 1 doubles.
	d1 := p.DelayFor(1)
	assert.GreaterOrEqual(t, d1, 8*time.Second)
	assert.Less(t, d1, 16*time.Second)

	// Far attempts cap at Max (+ jitter up to Max).
	dBig := p.DelayFor(30)
	assert.GreaterOrEqual(t, dBig, 60*time.Second)
	assert.Less(t, dBig, 120*time.Second)
}

func TestBackoffPolicy_RateLimitDelayHonorsResetWindow(t *testing.T) {
	p := seededPolicy()

	// Server says resets in 60s: delay is 60 + 120 + jitter(0..30) — the
	// [180s, 210s) window.
	d := p.RateLimitDelay(60 * time.Second)
	assert.GreaterOrEqual(t, d, 180*time.Second)
	assert.Less(t, d, 210*time.Second)

	// A negative/absent window still waits the buffer.
	d = p.RateLimitDelay(-5 * time.Second)
	assert.GreaterOrEqual(t, d, 120*time.Second)
	assert.Less(t, d, 150*time.Second)
}

// scriptedClient fails with the scripted errors in order, then succeeds.
type scriptedClient struct {
	errs  []error
	calls int
}

func (c *scriptedClient) Call(_ context.Context, _ LLMRequest) (LLMResponse, error) {
	c.calls++
	if len(c.errs) > 0 {
		err := c.errs[0]
		c.errs = c.errs[1:]
		return LLMResponse{}, err
	}
	return LLMResponse{ResponseID: "ok"}, nil
}

func (c *scriptedClient) Compact(_ context.Context, _ CompactRequest) (CompactResponse, error) {
	return CompactResponse{}, nil
}

// fastPolicy retries almost instantly so tests stay quick.
func fastPolicy() BackoffPolicy {
	return BackoffPolicy{
		Base:               time.Millisecond,
		Factor:             2,
		Max:                5 * time.Millisecond,
		MaxElapsed:         time.Second,
		RateLimitBuffer:    2 * time.Millisecond,
		RateLimitJitterMax: time.Millisecond,
		Rand:               rand.New(rand.NewSource(1)),
	}
}

func TestCallWithRetry_TransientThenSuccess(t *testing.T) {
	client := &scriptedClient{errs: []error{
		models.NewTransientError("server error (500)"),
		models.NewTransientError("server error (502)"),
	}}

	var statuses []RetryStatus
	resp, err := CallWithRetry(context.Background(), client, LLMRequest{}, fastPolicy(),
		func(s RetryStatus) { statuses = append(statuses, s) })

	require.NoError(t, err)
	assert.Equal(t, "ok", resp.ResponseID)
	assert.Equal(t, 3, client.calls)
	require.Len(t, statuses, 2)
	assert.False(t, statuses[0].IsRateLimit)
	assert.Contains(t, statuses[0].Reason, "server error")
}

func TestCallWithRetry_RateLimitStatusReported(t *testing.T) {
	client := &scriptedClient{errs: []error{
		models.NewAPILimitErrorWithReset("rate limit (429)", 0),
	}}

	var statuses []RetryStatus
	_, err := CallWithRetry(context.Background(), client, LLMRequest{}, fastPolicy(),
		func(s RetryStatus) { statuses = append(statuses, s) })

	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.True(t, statuses[0].IsRateLimit)
	assert.GreaterOrEqual(t, statuses[0].Sleep, 2*time.Millisecond)
}

func TestCallWithRetry_FatalSurfacesImmediately(t *testing.T) {
	client := &scriptedClient{errs: []error{
		models.NewFatalError("client error (401)"),
	}}

	_, err := CallWithRetry(context.Background(), client, LLMRequest{}, fastPolicy(), nil)

	require.Error(t, err)
	assert.Equal(t, 1, client.calls, "fatal errors must not retry")
}

func TestCallWithRetry_CancellationAbortsSleepPromptly(t *testing.T) {
	policy := fastPolicy()
	policy.Base = 10 * time.Second // long sleep the cancel must cut short
	policy.Max = 10 * time.Second

	client := &scriptedClient{errs: []error{
		models.NewTransientError("server error (500)"),
		models.NewTransientError("server error (500)"),
	}}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := CallWithRetry(ctx, client, LLMRequest{}, policy, nil)

	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 2*time.Second, "cancel must abort the backoff sleep")
}

func TestCallWithRetry_MaxElapsedBudget(t *testing.T) {
	policy := fastPolicy()
	policy.MaxElapsed = time.Millisecond
	policy.Base = 50 * time.Millisecond
	policy.Max = 50 * time.Millisecond

	client := &scriptedClient{errs: []error{
		models.NewTransientError("server error (500)"),
		models.NewTransientError("server error (500)"),
	}}

	_, err := CallWithRetry(context.Background(), client, LLMRequest{}, policy, nil)

	require.Error(t, err)
	assert.Equal(t, 1, client.calls, "budget exhausted before the first retry")
}

func TestParseRetryAfterSeconds(t *testing.T) {
	assert.Equal(t, 0, parseRetryAfterSeconds(""))
	assert.Equal(t, 60, parseRetryAfterSeconds("60"))
	assert.Equal(t, 5, parseRetryAfterSeconds(" 5 "))
	assert.Equal(t, 0, parseRetryAfterSeconds("-3"))
	assert.Equal(t, 0, parseRetryAfterSeconds("Wed, 21 Oct 2015 07:28:00 GMT"))
}
