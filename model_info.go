package imagebatch

// Provider names a hosted image generation service.
type Provider string

const (
	ProviderStability Provider = "stability"
	ProviderDeepAI    Provider = "deepai"
	ProviderGemini    Provider = "gemini"
)

// RateLimits defines rate limiting parameters for a model.
type RateLimits struct {
	RequestsPerMinute int // 0 = unlimited
}

// ModelInfo contains metadata for a model served by a provider.
type ModelInfo struct {
	Name         string   // Public model name (e.g., "stable-diffusion-512-v2-1")
	Provider     Provider // Which provider serves this model
	APIModelName string   // Actual API name, if different from Name

	// DefaultWidth and DefaultHeight are the native output resolution
	DefaultWidth  int
	DefaultHeight int

	// SupportsStylePreset reports whether StylePreset is honored
	SupportsStylePreset bool

	// SupportsNegativePrompt reports whether NegativePrompt is honored
	SupportsNegativePrompt bool

	RateLimits RateLimits
}
