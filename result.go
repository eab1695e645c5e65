package imagebatch

// GeneratedImage represents a single generated image result.
type GeneratedImage struct {
	// Data contains the raw decoded image bytes
	Data []byte

	// MIMEType of the generated image
	MIMEType string

	// Index is the position in a multi-image result (0-indexed)
	Index int

	// Seed reported by the provider, if any
	Seed int64

	// FinishReason reported by the provider (e.g. "SUCCESS", "CONTENT_FILTERED")
	FinishReason string

	// URL the image was fetched from, for providers that return a link
	URL string
}

// GenerateResult holds the complete result of an image generation request.
type GenerateResult struct {
	// Images contains all generated images
	Images []GeneratedImage

	// Text contains any text response from the model
	Text string
}

// First returns the first image of the result, or false when there is none.
func (r *GenerateResult) First() (GeneratedImage, bool) {
	if r == nil || len(r.Images) == 0 {
		return GeneratedImage{}, false
	}
	return r.Images[0], true
}
