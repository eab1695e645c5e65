package imagebatch

import "context"

// Generator is the narrow interface the batch runner depends on.
// Each provider package implements it for one hosted service.
//
// The first model returned by Models() is considered the default model.
type Generator interface {
	// Generate creates images from a text prompt.
	Generate(ctx context.Context, prompt string, genConfig *GenerateConfig) (*GenerateResult, error)

	// Models returns the model definitions supported by this provider.
	// The first model in the list is the default.
	Models() []ModelInfo

	// Close releases any resources held by the generator.
	Close() error
}
