package imagebatch

import (
	"strings"
	"time"
)

// Engine identifies a Stability model variant, e.g. "stable-diffusion-512-v2-1".
type Engine string

// StylePreset is a provider-defined stylistic filter applied to generation.
type StylePreset string

const (
	EngineSDv1          Engine = "stable-diffusion-v1"
	EngineSDv15         Engine = "stable-diffusion-v1-5"
	EngineSD512v20      Engine = "stable-diffusion-512-v2-0"
	EngineSD768v20      Engine = "stable-diffusion-768-v2-0"
	EngineSD512v21      Engine = "stable-diffusion-512-v2-1"
	EngineSD768v21      Engine = "stable-diffusion-768-v2-1"
	EngineSDXLBeta      Engine = "stable-diffusion-xl-beta-v2-2-2"
	EngineInpaintingV10 Engine = "stable-inpainting-v1-0"
	EngineInpainting512 Engine = "stable-inpainting-512-v2-0"

	EngineDefault Engine = EngineSD512v21
)

const StylePresetDefault StylePreset = "enhance"

const (
	ClipGuidanceFastBlue = "FAST_BLUE"

	DefaultCfgScale = 7
	MinCfgScale     = 1
	MaxCfgScale     = 35

	MinIterations = 1
	MaxIterations = 9999
)

// Engines lists every engine accepted by the DreamStudio provider, in menu order.
var Engines = []Engine{
	EngineSDv1,
	EngineSDv15,
	EngineSD512v20,
	EngineSD768v20,
	EngineSD512v21,
	EngineSD768v21,
	EngineSDXLBeta,
	EngineInpaintingV10,
	EngineInpainting512,
}

// StylePresets lists every style preset accepted by the DreamStudio provider.
var StylePresets = []StylePreset{
	"3d-model",
	"analog-film",
	"anime",
	"cinematic",
	"comic-book",
	"digital-art",
	"enhance",
	"fantasy-art",
	"isometric",
	"line-art",
	"low-poly",
	"modeling-compound",
	"neon-punk",
	"origami",
	"photographic",
	"pixel-art",
	"tile-texture",
}

// GenerateConfig holds configuration options for image generation.
// Providers read only the fields they understand and ignore the rest.
type GenerateConfig struct {
	// Engine to use (Stability); empty means EngineDefault
	Engine Engine

	// StylePreset applied by the provider (Stability)
	StylePreset StylePreset

	// CfgScale controls how strictly generation follows the prompt (1-35)
	CfgScale int

	// Width and Height of the output image; zero lets the provider decide
	Width  int
	Height int

	// Samples is the number of images to request (default 1)
	Samples int

	// ClipGuidancePreset (Stability), default FAST_BLUE
	ClipGuidancePreset string

	// PromptWeight applied to the single text prompt (Stability), default 1.0
	PromptWeight float64

	// NegativePrompt describes what to avoid (deepai)
	NegativePrompt string

	// AspectRatio such as "1:1" or "16:9" (Gemini)
	AspectRatio string

	// Metadata to attach to requests (for logging/tracking)
	Metadata map[string]string

	// WaitOnRateLimit, if true, causes the Manager to wait when rate limited.
	// If false, a RateLimitError is returned immediately.
	WaitOnRateLimit bool

	// MaxWaitDuration is the maximum time to wait when WaitOnRateLimit is true.
	// Zero means no limit.
	MaxWaitDuration time.Duration
}

// DefaultConfig returns a GenerateConfig with the values the DreamStudio
// tools start with.
func DefaultConfig() *GenerateConfig {
	return &GenerateConfig{
		Engine:             EngineDefault,
		StylePreset:        StylePresetDefault,
		CfgScale:           DefaultCfgScale,
		Samples:            1,
		ClipGuidancePreset: ClipGuidanceFastBlue,
		PromptWeight:       1.0,
	}
}

// WithEngine returns a copy of the config with the specified engine.
func (c *GenerateConfig) WithEngine(engine Engine) *GenerateConfig {
	if c == nil {
		return &GenerateConfig{Engine: engine}
	}
	cX := *c
	cX.Engine = engine
	return &cX
}

// Dimensions returns the square output resolution for the engine:
// 768 for engines whose identifier contains "768", 512 otherwise.
func (e Engine) Dimensions() (width, height int) {
	if strings.Contains(string(e), "768") {
		return 768, 768
	}
	return 512, 512
}

// String returns the engine identifier.
func (e Engine) String() string {
	return string(e)
}

// String returns the style preset identifier.
func (s StylePreset) String() string {
	return string(s)
}
