package llm

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/turnrelay/engine/internal/models"
)

// BackoffPolicy is the provider-level retry schedule applied inside the LLM
// activity, underneath Temporal's own activity retry (which only fires on
// infrastructure failure). Transient provider errors back off
// exponentially; rate limits honor the server-reported reset window plus a
// buffer; fatal errors surface immediately.
type BackoffPolicy struct {
	Base       time.Duration // first delay
	Factor     float64       // multiplier per attempt
	Max        time.Duration // cap on a single delay, before jitter
	MaxElapsed time.Duration // total retry budget

	// RateLimitBuffer and RateLimitJitterMax shape rate-limit delays:
	// delay = max(resets_in, 0) + buffer + jitter(0..jitterMax).
	RateLimitBuffer    time.Duration
	RateLimitJitterMax time.Duration

	// Rand supplies jitter. A seeded source makes delays deterministic in
	// tests; nil uses the shared global source.
	Rand *rand.Rand
}

// DefaultBackoffPolicy returns the standard schedule: base 4s, factor 2,
// max 60s, one-hour total budget, 120s rate-limit buffer with up to 30s of
// jitter.
func DefaultBackoffPolicy() BackoffPolicy {
	return BackoffPolicy{
		Base:               4 * time.Second,
		Factor:             2,
		Max:                60 * time.Second,
		MaxElapsed:         time.Hour,
		RateLimitBuffer:    120 * time.Second,
		RateLimitJitterMax: 30 * time.Second,
	}
}

// DelayFor returns the backoff delay for the given zero-based attempt:
// base*factor^attempt capped at Max, plus uniform jitter in [0, capped).
func (p BackoffPolicy) DelayFor(attempt int) time.Duration {
	d := float64(p.Base)
	for i := 0; i < attempt; i++ {
		d *= p.Factor
		if time.Duration(d) >= p.Max {
			break
		}
	}
	capped := time.Duration(d)
	if capped > p.Max {
		capped = p.Max
	}
	return capped + p.jitter(capped)
}

// RateLimitDelay returns the wait for a 429/usage-limit error:
// max(resetsIn, 0) + buffer + jitter(0..jitterMax).
func (p BackoffPolicy) RateLimitDelay(resetsIn time.Duration) time.Duration {
	if resetsIn < 0 {
		resetsIn = 0
	}
	return resetsIn + p.RateLimitBuffer + p.jitter(p.RateLimitJitterMax)
}

func (p BackoffPolicy) jitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	if p.Rand != nil {
		return time.Duration(p.Rand.Int63n(int64(max)))
	}
	return time.Duration(rand.Int63n(int64(max)))
}

// RetryStatus is one retry attempt's status record, emitted on a side
// channel so a front-end can render a countdown without disturbing the
// call itself.
type RetryStatus struct {
	Sleep       time.Duration `json:"sleep"`
	IsRateLimit bool          `json:"is_rate_limit"`
	Reason      string        `json:"reason"`
}

// CallWithRetry invokes client.Call, retrying transient and rate-limit
// failures per the policy. onStatus (optional) receives a RetryStatus
// before each sleep. Context cancellation aborts a sleep promptly.
func CallWithRetry(
	ctx context.Context,
	client LLMClient,
	request LLMRequest,
	policy BackoffPolicy,
	onStatus func(RetryStatus),
) (LLMResponse, error) {
	start := time.Now()
	attempt := 0

	for {
		response, err := client.Call(ctx, request)
		if err == nil {
			return response, nil
		}

		var activityErr *models.ActivityError
		if !errors.As(err, &activityErr) || !activityErr.Retryable {
			return LLMResponse{}, err
		}

		var sleep time.Duration
		isRateLimit := activityErr.Type == models.ErrorTypeAPILimit
		if isRateLimit {
			sleep = policy.RateLimitDelay(time.Duration(activityErr.ResetsInSeconds) * time.Second)
		} else {
			sleep = policy.DelayFor(attempt)
		}

		if policy.MaxElapsed > 0 && time.Since(start)+sleep > policy.MaxElapsed {
			return LLMResponse{}, err
		}

		if onStatus != nil {
			onStatus(RetryStatus{Sleep: sleep, IsRateLimit: isRateLimit, Reason: activityErr.Message})
		}

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return LLMResponse{}, ctx.Err()
		case <-timer.C:
		}
		attempt++
	}
}
