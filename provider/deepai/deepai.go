// Package deepai provides a Generator for deepai.org's text2img API.
//
// The API answers with a URL; the image is fetched in a second request.
package deepai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/imroc/req"
	"github.com/mhpenta/imagebatch"
	"github.com/tidwall/gjson"
)

// DefaultEndpoint is the text2img endpoint.
const DefaultEndpoint = "https://api.deepai.org/api/text2img"

// ModelName is the public name of the deepai text2img model.
const ModelName = "text2img"

// Options configures the deepai client.
type Options struct {
	APIKey     string
	Endpoint   string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// Generator implements imagebatch.Generator for deepai.org.
type Generator struct {
	endpoint string
	header   req.Header
	r        *req.Req
}

// Ensure Generator implements the interface.
var _ imagebatch.Generator = (*Generator)(nil)

// New creates a deepai generator.
func New(opts Options) (*Generator, error) {
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("deepai: %w", imagebatch.ErrMissingAPIKey)
	}
	endpoint := strings.TrimSpace(opts.Endpoint)
	if endpoint == "" {
		endpoint = DefaultEndpoint
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
		endpoint: endpoint,
		header:   req.Header{"api-key": apiKey},
		r:        r,
	}, nil
}

// Generate posts the prompt as a form and downloads the image at output_url.
func (g *Generator) Generate(ctx context.Context, prompt string, config *imagebatch.GenerateConfig) (*imagebatch.GenerateResult, error) {
	if err := imagebatch.ValidatePrompt(prompt); err != nil {
		return nil, err
	}

	form := req.Param{
		"text":      prompt,
		"grid_size": "1",
	}
	if config != nil && config.NegativePrompt != "" {
		form["negative_prompt"] = config.NegativePrompt
	}

	resp, err := g.r.Post(g.endpoint, g.header, form, ctx)
	if err != nil {
		return nil, fmt.Errorf("deepai: request failed: %w", err)
	}
	if status := resp.Response().StatusCode; status != http.StatusOK {
		return nil, &imagebatch.ProviderError{
			Provider:   imagebatch.ProviderDeepAI,
			StatusCode: status,
			Body:       resp.String(),
		}
	}

	outputURL := gjson.GetBytes(resp.Bytes(), "output_url").String()
	if outputURL == "" {
		return nil, fmt.Errorf("deepai: %w: output_url missing", imagebatch.ErrNoImage)
	}

	data, mimeType, err := g.fetch(ctx, outputURL)
	if err != nil {
		return nil, err
	}

	return &imagebatch.GenerateResult{
		Images: []imagebatch.GeneratedImage{{
			Data:     data,
			MIMEType: mimeType,
			URL:      outputURL,
		}},
	}, nil
}

// Models returns the single deepai model.
func (g *Generator) Models() []imagebatch.ModelInfo {
	return []imagebatch.ModelInfo{{
		Name:                   ModelName,
		Provider:               imagebatch.ProviderDeepAI,
		APIModelName:           ModelName,
		SupportsNegativePrompt: true,
	}}
}

// Close releases any resources held by the generator.
func (g *Generator) Close() error {
	return nil
}

func (g *Generator) fetch(ctx context.Context, url string) ([]byte, string, error) {
	resp, err := g.r.Get(url, ctx)
	if err != nil {
		return nil, "", fmt.Errorf("deepai: fetch image: %w", err)
	}
	if status := resp.Response().StatusCode; status != http.StatusOK {
		return nil, "", &imagebatch.ProviderError{
			Provider:   imagebatch.ProviderDeepAI,
			StatusCode: status,
			Body:       resp.String(),
		}
	}

	data := resp.Bytes()
	if len(data) == 0 {
		return nil, "", fmt.Errorf("deepai: %w: empty download", imagebatch.ErrNoImage)
	}
	return data, http.DetectContentType(data), nil
}
