package imagebatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/mhpenta/imagebatch/ratelimiter"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestManager_Generate_RateLimit(t *testing.T) {
	calls := 0
	mockGen := &MockImageGenerator{
		ModelsFunc: func() []ModelInfo {
			return []ModelInfo{
				{
					Name:       "test-model",
					Provider:   ProviderStability,
					RateLimits: RateLimits{RequestsPerMinute: 1},
				},
			}
		},
		GenerateFunc: func(ctx context.Context, prompt string, config *GenerateConfig) (*GenerateResult, error) {
			calls++
			return &GenerateResult{
				Images: []GeneratedImage{{Data: []byte("fake-image")}},
			}, nil
		},
	}

	manager := NewManager(mockGen, WithLogger(quietLogger()))
	defer manager.Close()

	ctx := context.Background()

	if _, err := manager.Generate(ctx, "a cat", nil); err != nil {
		t.Fatalf("first request should pass: %v", err)
	}

	_, err := manager.Generate(ctx, "a cat", nil)
	if err == nil {
		t.Fatal("expected rate limit error, got nil")
	}
	if !IsRateLimitError(err) {
		t.Errorf("expected RateLimitError, got %T: %v", err, err)
	}
	if calls != 1 {
		t.Errorf("provider should not be called when rate limited, got %d calls", calls)
	}

	// Raise the limit
	manager.SetRateLimiter(ratelimiter.New(10))

	result, err := manager.Generate(ctx, "a cat", nil)
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if len(result.Images) == 0 {
		t.Error("expected images, got none")
	}
}

func TestManager_Generate_Validation(t *testing.T) {
	called := false
	mockGen := &MockImageGenerator{
		GenerateFunc: func(ctx context.Context, prompt string, config *GenerateConfig) (*GenerateResult, error) {
			called = true
			return &GenerateResult{}, nil
		},
	}

	manager := NewManager(mockGen, WithLogger(quietLogger()))

	_, err := manager.Generate(context.Background(), "   ", nil)
	if !errors.Is(err, ErrEmptyPrompt) {
		t.Errorf("expected ErrEmptyPrompt, got %v", err)
	}
	if called {
		t.Error("provider should not be called for an empty prompt")
	}
}

func TestManager_Generate_DefaultConfig(t *testing.T) {
	var got *GenerateConfig
	mockGen := &MockImageGenerator{
		GenerateFunc: func(ctx context.Context, prompt string, config *GenerateConfig) (*GenerateResult, error) {
			got = config
			return &GenerateResult{}, nil
		},
	}

	manager := NewManager(mockGen, WithLogger(quietLogger()))
	if _, err := manager.Generate(context.Background(), "a dog", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got == nil {
		t.Fatal("provider did not receive a config")
	}
	if got.Engine != EngineDefault || got.StylePreset != StylePresetDefault || got.CfgScale != DefaultCfgScale {
		t.Errorf("unexpected default config: %+v", got)
	}
}

func TestManager_Generate_ProviderError(t *testing.T) {
	provErr := &ProviderError{Provider: ProviderStability, StatusCode: 401, Body: `{"message":"bad key"}`}
	mockGen := &MockImageGenerator{
		GenerateFunc: func(ctx context.Context, prompt string, config *GenerateConfig) (*GenerateResult, error) {
			return nil, provErr
		},
	}

	manager := NewManager(mockGen, WithLogger(quietLogger()))
	_, err := manager.Generate(context.Background(), "a dog", nil)

	var pErr *ProviderError
	if !errors.As(err, &pErr) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if pErr.StatusCode != 401 {
		t.Errorf("expected status 401, got %d", pErr.StatusCode)
	}
}

func TestManager_SaveResult(t *testing.T) {
	manager := NewManager(&MockImageGenerator{}, WithLogger(quietLogger()))

	_, err := manager.SaveResult(context.Background(), &GenerateResult{}, "out.png")
	if !errors.Is(err, ErrStorageNotConfigured) {
		t.Errorf("expected ErrStorageNotConfigured, got %v", err)
	}
}

func TestManager_Close(t *testing.T) {
	closed := 0
	manager := NewManager(&MockImageGenerator{
		CloseFunc: func() error {
			closed++
			return nil
		},
	})

	if err := manager.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := manager.Close(); err != nil {
		t.Fatalf("second close should be a no-op: %v", err)
	}
	if closed != 1 {
		t.Errorf("expected provider closed once, got %d", closed)
	}

	_, err := manager.Generate(context.Background(), "a dog", nil)
	if !errors.Is(err, ErrProviderNotConfigured) {
		t.Errorf("expected ErrProviderNotConfigured after close, got %v", err)
	}
}
