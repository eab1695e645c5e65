package imagebatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/mhpenta/imagebatch/ratelimiter"
)

// ErrProviderNotConfigured is returned when the Manager has no provider.
var ErrProviderNotConfigured = errors.New("provider not configured")

// Manager implements Generator on top of a single provider, adding prompt
// validation, request pacing and structured logging.
type Manager struct {
	provider Generator

	// Rate limiting for the provider's requests (optional)
	limiter ratelimiter.Limiter

	// Logger for structured logging
	logger *slog.Logger

	// Storage for persisting generated images (optional)
	storage Storage

	mu sync.RWMutex
}

// Ensure Manager implements the interface.
var _ Generator = (*Manager)(nil)

// New creates a Manager wrapping provider. A request limiter is installed from
// the default model's RateLimits when they are set.
func New(provider Generator) *Manager {
	m := &Manager{
		provider: provider,
		logger:   slog.Default(),
	}
	if provider != nil {
		if models := provider.Models(); len(models) > 0 && models[0].RateLimits.RequestsPerMinute > 0 {
			m.limiter = ratelimiter.New(models[0].RateLimits.RequestsPerMinute)
		}
	}
	return m
}

// SetRateLimiter sets a custom rate limiter. A nil limiter disables pacing.
func (m *Manager) SetRateLimiter(limiter ratelimiter.Limiter) *Manager {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.limiter = limiter
	return m
}

// SetLogger sets a structured logger for the manager.
func (m *Manager) SetLogger(logger *slog.Logger) *Manager {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.logger = logger
	return m
}

// SetStorage sets a storage backend for persisting generated images.
func (m *Manager) SetStorage(storage Storage) *Manager {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.storage = storage
	return m
}

// Storage returns the configured storage backend, or nil if not set.
func (m *Manager) Storage() Storage {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.storage
}

// SaveResult writes the first image of result to path in the configured storage.
// If no storage is configured, returns ErrStorageNotConfigured.
func (m *Manager) SaveResult(ctx context.Context, result *GenerateResult, path string) (int, error) {
	m.mu.RLock()
	storage := m.storage
	m.mu.RUnlock()

	return SaveImage(ctx, storage, result, path)
}

// Generate creates images from a text prompt.
func (m *Manager) Generate(ctx context.Context, prompt string, config *GenerateConfig) (*GenerateResult, error) {
	if err := ValidatePrompt(prompt); err != nil {
		return nil, err
	}
	if config == nil {
		config = DefaultConfig()
	}

	m.mu.RLock()
	provider, limiter, logger := m.provider, m.limiter, m.logger
	m.mu.RUnlock()

	if provider == nil {
		return nil, ErrProviderNotConfigured
	}

	model := m.modelName(config)
	start := time.Now()

	logger.Debug("starting image generation",
		"model", model,
		"prompt_length", len(prompt),
	)

	if err := checkRateLimit(ctx, limiter, model, config); err != nil {
		logger.Warn("rate limit hit",
			"model", model,
			"error", err.Error(),
		)
		return nil, err
	}

	result, err := provider.Generate(ctx, prompt, config)
	duration := time.Since(start)

	if err != nil {
		logger.Error("generation failed",
			"model", model,
			"duration_ms", duration.Milliseconds(),
			"error", err.Error(),
		)
		return nil, err
	}

	logger.Info("generation completed",
		"model", model,
		"duration_ms", duration.Milliseconds(),
		"image_count", len(result.Images),
	)

	return result, nil
}

// Models returns the provider's model definitions.
func (m *Manager) Models() []ModelInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.provider == nil {
		return nil
	}
	return m.provider.Models()
}

// Close releases the provider's resources.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.provider == nil {
		return nil
	}
	err := m.provider.Close()
	m.provider = nil
	return err
}

// checkRateLimit takes one request slot, optionally waiting for it.
func checkRateLimit(ctx context.Context, limiter ratelimiter.Limiter, model string, config *GenerateConfig) error {
	if limiter == nil {
		return nil
	}

	if config.WaitOnRateLimit {
		if err := limiter.WaitAndConsume(ctx, 1, config.MaxWaitDuration); err != nil {
			if ctx.Err() != nil {
				return err
			}
			return &RateLimitError{
				RetryAfter: limiter.TimeUntilAvailable(1),
				LimitType:  "requests",
				Model:      model,
				Err:        err,
			}
		}
		return nil
	}

	if !limiter.TryConsume(1) {
		return &RateLimitError{
			RetryAfter: limiter.TimeUntilAvailable(1),
			LimitType:  "requests",
			Model:      model,
		}
	}

	return nil
}

// modelName picks the name used in log lines: the requested engine for
// Stability, the provider's default model otherwise.
func (m *Manager) modelName(config *GenerateConfig) string {
	models := m.Models()
	if len(models) == 0 {
		return string(config.Engine)
	}
	if models[0].Provider == ProviderStability && config.Engine != "" {
		return string(config.Engine)
	}
	return models[0].Name
}
