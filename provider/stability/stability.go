// Package stability provides a Generator for Stability AI's DreamStudio
// REST API (v1 text-to-image).
package stability

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/imroc/req"
	"github.com/mhpenta/imagebatch"
	"github.com/tidwall/gjson"
)

// DefaultHost is used when neither Options.Host nor API_HOST is set.
const DefaultHost = "https://api.stability.ai"

// Options configures the DreamStudio client.
type Options struct {
	APIKey string

	// Host is the API base URL (default DefaultHost)
	Host string

	// HTTPClient overrides the transport; nil uses a fresh http.Client
	HTTPClient *http.Client

	// Timeout bounds each request; zero means no timeout
	Timeout time.Duration
}

// Generator implements imagebatch.Generator for DreamStudio.
type Generator struct {
	host   string
	header req.Header
	r      *req.Req
}

// Ensure Generator implements the interface.
var _ imagebatch.Generator = (*Generator)(nil)

type textPrompt struct {
	Text   string  `json:"text"`
	Weight float64 `json:"weight"`
}

type textToImageRequest struct {
	TextPrompts        []textPrompt `json:"text_prompts"`
	CfgScale           int          `json:"cfg_scale"`
	ClipGuidancePreset string       `json:"clip_guidance_preset"`
	Samples            int          `json:"samples"`
	StylePreset        string       `json:"style_preset,omitempty"`
	Width              int          `json:"width,omitempty"`
	Height             int          `json:"height,omitempty"`
}

// New creates a DreamStudio generator.
func New(opts Options) (*Generator, error) {
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("stability: %w", imagebatch.ErrMissingAPIKey)
	}

	host := strings.TrimRight(strings.TrimSpace(opts.Host), "/")
	if host == "" {
		host = DefaultHost
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	r := req.New()
	r.SetClient(client)
	if opts.Timeout > 0 {
		r.SetTimeout(opts.Timeout)
	}

	return &Generator{
		host: host,
		header: req.Header{
			"Content-Type":  "application/json",
			"Accept":        "application/json",
			"Authorization": "Bearer " + apiKey,
		},
		r: r,
	}, nil
}

// Generate sends one text-to-image request and decodes the returned artifacts.
func (g *Generator) Generate(ctx context.Context, prompt string, config *imagebatch.GenerateConfig) (*imagebatch.GenerateResult, error) {
	if err := imagebatch.ValidatePrompt(prompt); err != nil {
		return nil, err
	}
	if config == nil {
		config = imagebatch.DefaultConfig()
	}

	engine := config.Engine
	if engine == "" {
		engine = imagebatch.EngineDefault
	}

	resp, err := g.r.Post(g.endpoint(engine), g.header, req.BodyJSON(buildRequest(prompt, config)), ctx)
	if err != nil {
		return nil, fmt.Errorf("stability: request failed: %w", err)
	}

	body := resp.Bytes()
	status := resp.Response().StatusCode
	if status != http.StatusOK {
		return nil, providerError(status, body, engine)
	}

	return parseArtifacts(body)
}

// Models returns one entry per engine; the first is the default engine.
func (g *Generator) Models() []imagebatch.ModelInfo {
	models := make([]imagebatch.ModelInfo, 0, len(imagebatch.Engines))
	models = append(models, modelInfo(imagebatch.EngineDefault))
	for _, e := range imagebatch.Engines {
		if e != imagebatch.EngineDefault {
			models = append(models, modelInfo(e))
		}
	}
	return models
}

// Close releases any resources held by the generator.
func (g *Generator) Close() error {
	return nil
}

func (g *Generator) endpoint(engine imagebatch.Engine) string {
	return fmt.Sprintf("%s/v1/generation/%s/text-to-image", g.host, engine)
}

func buildRequest(prompt string, config *imagebatch.GenerateConfig) textToImageRequest {
	weight := config.PromptWeight
	if weight == 0 {
		weight = 1.0
	}
	cfgScale := config.CfgScale
	if cfgScale == 0 {
		cfgScale = imagebatch.DefaultCfgScale
	}
	clip := config.ClipGuidancePreset
	if clip == "" {
		clip = imagebatch.ClipGuidanceFastBlue
	}
	samples := config.Samples
	if samples <= 0 {
		samples = 1
	}

	return textToImageRequest{
		TextPrompts:        []textPrompt{{Text: prompt, Weight: weight}},
		CfgScale:           cfgScale,
		ClipGuidancePreset: clip,
		Samples:            samples,
		StylePreset:        string(config.StylePreset),
		Width:              config.Width,
		Height:             config.Height,
	}
}

// parseArtifacts decodes every base64 artifact of a success response.
func parseArtifacts(body []byte) (*imagebatch.GenerateResult, error) {
	artifacts := gjson.GetBytes(body, "artifacts").Array()
	if len(artifacts) == 0 {
		return nil, fmt.Errorf("stability: %w", imagebatch.ErrNoImage)
	}

	result := &imagebatch.GenerateResult{
		Images: make([]imagebatch.GeneratedImage, 0, len(artifacts)),
	}
	for i, a := range artifacts {
		data, err := base64.StdEncoding.DecodeString(a.Get("base64").String())
		if err != nil {
			return nil, fmt.Errorf("stability: artifact %d: invalid base64: %w", i, err)
		}
		if len(data) == 0 {
			return nil, fmt.Errorf("stability: artifact %d: %w", i, imagebatch.ErrNoImage)
		}
		result.Images = append(result.Images, imagebatch.GeneratedImage{
			Data:         data,
			MIMEType:     "image/png",
			Index:        i,
			Seed:         a.Get("seed").Int(),
			FinishReason: a.Get("finishReason").String(),
		})
	}
	return result, nil
}

// providerError keeps the raw body; 429 is additionally surfaced as a rate limit.
func providerError(status int, body []byte, engine imagebatch.Engine) error {
	pErr := &imagebatch.ProviderError{
		Provider:   imagebatch.ProviderStability,
		StatusCode: status,
		Body:       string(body),
	}
	if status == http.StatusTooManyRequests {
		return &imagebatch.RateLimitError{
			RetryAfter: 10 * time.Second, // DreamStudio limits per 10s window
			LimitType:  "requests",
			Model:      string(engine),
			Err:        pErr,
		}
	}
	return pErr
}

// ErrorMessage extracts the "message" field of a DreamStudio error body, or
// returns the body unchanged when it is not JSON.
func ErrorMessage(body string) string {
	if msg := gjson.Get(body, "message"); msg.Exists() {
		return msg.String()
	}
	return body
}

func modelInfo(e imagebatch.Engine) imagebatch.ModelInfo {
	w, h := e.Dimensions()
	return imagebatch.ModelInfo{
		Name:                string(e),
		Provider:            imagebatch.ProviderStability,
		APIModelName:        string(e),
		DefaultWidth:        w,
		DefaultHeight:       h,
		SupportsStylePreset: true,
		RateLimits: imagebatch.RateLimits{
			RequestsPerMinute: 900, // 150 per 10 seconds
		},
	}
}
