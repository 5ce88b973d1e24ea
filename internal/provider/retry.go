package provider

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thebtf/tabletalk/pkg/models"
)

const maxBackoff = 30 * time.Second

// retryProvider wraps a backend with the retry policy: transient and
// rate-limited failures retry with exponential backoff up to
// maxRetries; auth and quota failures surface immediately.
type retryProvider struct {
	inner      Provider
	maxRetries int
	baseDelay  time.Duration
}

// WithRetry wraps p with the standard retry policy.
func WithRetry(p Provider, maxRetries int, baseDelay time.Duration) Provider {
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	return &retryProvider{inner: p, maxRetries: maxRetries, baseDelay: baseDelay}
}

func (r *retryProvider) Name() string { return r.inner.Name() }

func (r *retryProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	for attempt := 0; ; attempt++ {
		resp, err := r.inner.Generate(ctx, req)
		if err == nil {
			return resp, nil
		}

		var pe *models.ProviderError
		if !errors.As(err, &pe) || !pe.Retryable() || attempt >= r.maxRetries {
			return nil, err
		}

		backoff := r.baseDelay << attempt
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
		log.Debug().
			Str("provider", r.inner.Name()).
			Int("attempt", attempt+1).
			Int("maxRetries", r.maxRetries).
			Dur("backoff", backoff).
			Err(err).
			Msg("Retrying provider call")

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, &models.ProviderError{
				Kind:     models.ProviderTransient,
				Provider: r.inner.Name(),
				Err:      ctx.Err(),
			}
		}
	}
}
