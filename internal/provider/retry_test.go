package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/tabletalk/pkg/models"
)

func transientErr() error {
	return &models.ProviderError{Kind: models.ProviderTransient, Provider: "mock", Err: errors.New("boom")}
}

func TestWithRetry_RetriesTransientFailures(t *testing.T) {
	mock := NewMock()
	mock.Enqueue(nil, transientErr())
	mock.Enqueue(nil, transientErr())
	mock.Enqueue(&Response{Text: "ok"}, nil)

	p := WithRetry(mock, 3, time.Millisecond)
	resp, err := p.Generate(context.Background(), Request{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
	assert.Len(t, mock.Calls(), 3)
}

func TestWithRetry_RetriesRateLimited(t *testing.T) {
	mock := NewMock()
	mock.Enqueue(nil, &models.ProviderError{Kind: models.ProviderRateLimited, Provider: "mock", Err: errors.New("slow down")})
	mock.Enqueue(&Response{Text: "ok"}, nil)

	p := WithRetry(mock, 3, time.Millisecond)
	_, err := p.Generate(context.Background(), Request{Prompt: "hi"})
	require.NoError(t, err)
	assert.Len(t, mock.Calls(), 2)
}

func TestWithRetry_AuthFailsImmediately(t *testing.T) {
	mock := NewMock()
	mock.Enqueue(nil, &models.ProviderError{Kind: models.ProviderAuth, Provider: "mock", Err: errors.New("bad key")})

	p := WithRetry(mock, 3, time.Millisecond)
	_, err := p.Generate(context.Background(), Request{Prompt: "hi"})
	require.Error(t, err)
	assert.Len(t, mock.Calls(), 1)

	var pe *models.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, models.ProviderAuth, pe.Kind)
}

func TestWithRetry_QuotaFailsImmediately(t *testing.T) {
	mock := NewMock()
	mock.Enqueue(nil, &models.ProviderError{Kind: models.ProviderQuota, Provider: "mock", Err: errors.New("no credit")})

	p := WithRetry(mock, 3, time.Millisecond)
	_, err := p.Generate(context.Background(), Request{Prompt: "hi"})
	require.Error(t, err)
	assert.Len(t, mock.Calls(), 1)
}

func TestWithRetry_ExhaustsRetries(t *testing.T) {
	mock := NewMock()
	for i := 0; i < 4; i++ {
		mock.Enqueue(nil, transientErr())
	}

	p := WithRetry(mock, 3, time.Millisecond)
	_, err := p.Generate(context.Background(), Request{Prompt: "hi"})
	require.Error(t, err)
	// Initial attempt plus three retries.
	assert.Len(t, mock.Calls(), 4)
}

func TestWithRetry_NonProviderErrorNotRetried(t *testing.T) {
	mock := NewMock()
	mock.Enqueue(nil, errors.New("plain failure"))

	p := WithRetry(mock, 3, time.Millisecond)
	_, err := p.Generate(context.Background(), Request{Prompt: "hi"})
	require.Error(t, err)
	assert.Len(t, mock.Calls(), 1)
}

func TestWithRetry_ContextCancelledDuringBackoff(t *testing.T) {
	mock := NewMock()
	mock.Enqueue(nil, transientErr())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := WithRetry(mock, 3, time.Hour)
	_, err := p.Generate(ctx, Request{Prompt: "hi"})
	require.Error(t, err)
	assert.Len(t, mock.Calls(), 0)
}

func TestNew_UnsupportedProvider(t *testing.T) {
	_, err := New(context.Background(), Options{Provider: "cobol"})
	require.Error(t, err)
}

func TestNew_MockProvider(t *testing.T) {
	p, err := New(context.Background(), Options{Provider: "mock", MaxRetries: 1, RetryDelaySeconds: 1})
	require.NoError(t, err)
	assert.Equal(t, "mock", p.Name())
}
