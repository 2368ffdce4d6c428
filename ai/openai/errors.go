package openai

import (
	"context"
	"errors"
	"fmt"

	"github.com/poiesic/lexis/core"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// classify maps a langchaingo failure onto the core error classes that
// drive retry strategy. Cancellation passes through untouched.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", core.ErrTimeout, err)
	}

	mapped := openai.MapError(err)
	switch {
	case llms.IsRateLimitError(mapped), llms.IsQuotaExceededError(mapped), llms.IsProviderUnavailableError(mapped):
		return fmt.Errorf("%w: %w", core.ErrRateLimit, err)
	case llms.IsTimeoutError(mapped):
		return fmt.Errorf("%w: %w", core.ErrTimeout, err)
	case llms.IsAuthenticationError(mapped):
		return fmt.Errorf("%w: %w", core.ErrConfiguration, err)
	}
	return err
}
