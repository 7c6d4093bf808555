package gateway

import (
	"context"
	"math"
	"math/rand"
	"time"

	"connectrpc.com/connect"
	"go.uber.org/zap"
)

// RetryPolicy configures how the client retries read-only calls when the
// gateway is unreachable. Calls that change the instance (Open, Write,
// Delete and the property setters) are never retried.
type RetryPolicy struct {
	// MaxAttempts is the maximum number of attempts (1 = no retries).
	// Default: 3
	MaxAttempts int

	// InitialBackoff is the delay before the first retry.
	// Default: 200ms
	InitialBackoff time.Duration

	// MaxBackoff caps the delay between attempts.
	// Default: 5s
	MaxBackoff time.Duration

	// Jitter scales each delay by a random factor in [0.5, 1).
	Jitter bool
}

// DefaultRetryPolicy returns the policy used when ClientConfig.Retry is
// set to its zero value.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		Jitter:         true,
	}
}

// readOnly lists the procedures safe to repeat.
var readOnly = map[string]bool{
	ProcedureApplicationInfo: true,
	ProcedureListHandles:     true,
	ProcedureCheckCanApply:   true,
	ProcedureStoredData:      true,
}

// retryable reports whether err means the request did not reach the host.
func retryable(err error) bool {
	switch connect.CodeOf(err) {
	case connect.CodeUnavailable, connect.CodeResourceExhausted:
		return true
	default:
		return false
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	d := DefaultRetryPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = d.InitialBackoff
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = d.MaxBackoff
	}
	return p
}

// backoff returns the delay after the given failed attempt.
func (p RetryPolicy) backoff(attempt int) time.Duration {
	d := float64(p.InitialBackoff) * math.Pow(2, float64(attempt-1))
	if d > float64(p.MaxBackoff) {
		d = float64(p.MaxBackoff)
	}
	if p.Jitter {
		d *= 0.5 + rand.Float64()*0.5
	}
	return time.Duration(d)
}

// retryInterceptor retries read-only calls that failed with a transport
// level code.
func retryInterceptor(policy RetryPolicy, log *zap.Logger) connect.UnaryInterceptorFunc {
	policy = policy.withDefaults()

	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			if !readOnly[req.Spec().Procedure] {
				return next(ctx, req)
			}

			for attempt := 1; ; attempt++ {
				resp, err := next(ctx, req)
				if err == nil || !retryable(err) || attempt == policy.MaxAttempts {
					return resp, err
				}

				wait := policy.backoff(attempt)
				log.Debug("retrying call",
					zap.String("procedure", req.Spec().Procedure),
					zap.Int("attempt", attempt),
					zap.Duration("backoff", wait),
					zap.Error(err))

				select {
				case <-ctx.Done():
					return nil, err
				case <-time.After(wait):
				}
			}
		}
	}
}
