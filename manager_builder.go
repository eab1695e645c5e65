package imagebatch

import (
	"log/slog"

	"github.com/mhpenta/imagebatch/ratelimiter"
)

// ManagerOption configures the Manager.
type ManagerOption func(*Manager)

// WithLogger sets a structured logger for the manager.
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithStorage sets a storage backend for persisting generated images.
func WithStorage(storage Storage) ManagerOption {
	return func(m *Manager) {
		m.storage = storage
	}
}

// WithRateLimiter replaces the limiter derived from the provider's model info.
func WithRateLimiter(limiter ratelimiter.Limiter) ManagerOption {
	return func(m *Manager) {
		m.limiter = limiter
	}
}

// NewManager creates a Manager for provider with the given options.
//
// Example:
//
//	gen, err := stability.New(stability.Options{APIKey: apiKey})
//	if err != nil {
//	    return err
//	}
//	manager := imagebatch.NewManager(gen,
//	    imagebatch.WithLogger(slog.Default()),
//	    imagebatch.WithStorage(imagebatch.NewFileStore()),
//	)
func NewManager(provider Generator, opts ...ManagerOption) *Manager {
	m := New(provider)
	for _, opt := range opts {
		opt(m)
	}
	return m
}
