package providers

import (
	"context"
	"time"

	"github.com/mxf-project/mxf/internal/retry"
)

// BaseProvider holds the retry policy shared by every LLM adapter, so a
// rate-limited Anthropic call and a rate-limited OpenAI call back off the
// same way.
type BaseProvider struct {
	name       string
	maxRetries int
	policy     retry.Policy
}

// NewBaseProvider builds a base provider with the module-wide default
// backoff policy.
func NewBaseProvider(name string, maxRetries int) BaseProvider {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return BaseProvider{name: name, maxRetries: maxRetries, policy: retry.DefaultPolicy()}
}

// Retry runs op, retrying with exponential backoff while isRetryable(err)
// holds, up to maxRetries attempts or ctx cancellation.
func (b *BaseProvider) Retry(ctx context.Context, isRetryable func(error) bool, op func() error) error {
	var lastErr error
	for attempt := 1; attempt <= b.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := op()
		if err == nil {
			return nil
		}
		lastErr = err
		if isRetryable == nil || !isRetryable(err) || attempt >= b.maxRetries {
			return lastErr
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retry.Compute(b.policy, attempt)):
		}
	}
	return lastErr
}
