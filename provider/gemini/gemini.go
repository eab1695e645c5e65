// Package gemini provides a Generator backed by Google's Gemini image models.
//
// This provider uses the Gemini API backend via the official Go SDK:
// https://github.com/googleapis/go-genai
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/mhpenta/imagebatch"
	"google.golang.org/genai"
)

// Model name constants - the actual API model names.
const (
	// APIModelFlashImage is the API name for Gemini 2.5 Flash Image
	APIModelFlashImage = "gemini-2.5-flash-image"

	// APIModelProImage is the API name for Gemini 3 Pro Image
	APIModelProImage = "gemini-3-pro-image-preview"
)

// contentGenerator is the subset of genai.Models used here.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Generator implements imagebatch.Generator using the Gemini API.
type Generator struct {
	models contentGenerator
	model  string
}

// Ensure Generator implements the interface.
var _ imagebatch.Generator = (*Generator)(nil)

// New creates a Gemini generator. An empty model selects APIModelFlashImage.
func New(ctx context.Context, apiKey, model string) (*Generator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: %w", imagebatch.ErrMissingAPIKey)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return newGenerator(client.Models, model), nil
}

func newGenerator(models contentGenerator, model string) *Generator {
	if model == "" {
		model = APIModelFlashImage
	}
	return &Generator{models: models, model: model}
}

// Generate creates images from a text prompt.
func (g *Generator) Generate(ctx context.Context, prompt string, config *imagebatch.GenerateConfig) (*imagebatch.GenerateResult, error) {
	if err := imagebatch.ValidatePrompt(prompt); err != nil {
		return nil, err
	}

	contents := []*genai.Content{
		{Parts: []*genai.Part{{Text: prompt}}},
	}

	result, err := g.models.GenerateContent(ctx, g.model, contents, buildGenerateContentConfig(config))
	if err != nil {
		if rlErr := checkRateLimitError(err, g.model); rlErr != nil {
			return nil, rlErr
		}
		return nil, fmt.Errorf("generation failed: %w", err)
	}

	return parseResult(result)
}

// Models returns the configured model.
func (g *Generator) Models() []imagebatch.ModelInfo {
	return []imagebatch.ModelInfo{{
		Name:         g.model,
		Provider:     imagebatch.ProviderGemini,
		APIModelName: g.model,
		RateLimits:   imagebatch.RateLimits{RequestsPerMinute: 500},
	}}
}

// Close releases any resources held by the generator.
func (g *Generator) Close() error {
	// The genai.Client doesn't require explicit closing in the current SDK
	return nil
}

func buildGenerateContentConfig(config *imagebatch.GenerateConfig) *genai.GenerateContentConfig {
	genConfig := &genai.GenerateContentConfig{
		ResponseModalities: []string{"TEXT", "IMAGE"},
	}
	if config != nil && config.AspectRatio != "" {
		genConfig.ImageConfig = &genai.ImageConfig{AspectRatio: config.AspectRatio}
	}
	return genConfig
}

// parseResult collects inline image parts and text from all candidates.
func parseResult(result *genai.GenerateContentResponse) (*imagebatch.GenerateResult, error) {
	if result == nil || len(result.Candidates) == 0 {
		return nil, errors.New("empty response from model")
	}

	genResult := &imagebatch.GenerateResult{
		Images: make([]imagebatch.GeneratedImage, 0),
	}

	imageIndex := 0
	for _, candidate := range result.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part.Thought {
				continue
			}
			if part.Text != "" {
				genResult.Text += part.Text
			}
			if part.InlineData != nil && part.InlineData.Data != nil {
				genResult.Images = append(genResult.Images, imagebatch.GeneratedImage{
					Data:     part.InlineData.Data,
					MIMEType: part.InlineData.MIMEType,
					Index:    imageIndex,
				})
				imageIndex++
			}
		}
	}

	if len(genResult.Images) == 0 {
		return nil, fmt.Errorf("gemini: %w", imagebatch.ErrNoImage)
	}
	return genResult, nil
}

// checkRateLimitError maps a 429 API error to a RateLimitError and any other
// API error to a ProviderError. Non-API errors yield nil.
func checkRateLimitError(err error, model string) error {
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		return nil
	}

	pErr := &imagebatch.ProviderError{
		Provider:   imagebatch.ProviderGemini,
		StatusCode: apiErr.Code,
		Body:       apiErr.Message,
	}
	if apiErr.Code != http.StatusTooManyRequests && apiErr.Status != "RESOURCE_EXHAUSTED" {
		return pErr
	}

	return &imagebatch.RateLimitError{
		RetryAfter: 60 * time.Second, // API doesn't reliably provide Retry-After
		LimitType:  "requests",
		Model:      model,
		Err:        pErr,
	}
}
