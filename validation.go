package imagebatch

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
)

// Validation errors
var (
	ErrEmptyPrompt        = errors.New("prompt cannot be empty")
	ErrInvalidCfgScale    = errors.New("cfg_scale out of range")
	ErrInvalidIterations  = errors.New("iterations out of range")
	ErrInvalidStylePreset = errors.New("unknown style preset")
	ErrInvalidEngine      = errors.New("unknown engine")
	ErrOutputDir          = errors.New("output directory is not usable")
)

// ValidatePrompt validates a text prompt.
func ValidatePrompt(prompt string) error {
	if strings.TrimSpace(prompt) == "" {
		return ErrEmptyPrompt
	}
	return nil
}

// ValidateCfgScale checks that scale lies in [MinCfgScale, MaxCfgScale].
func ValidateCfgScale(scale int) error {
	if scale < MinCfgScale || scale > MaxCfgScale {
		return fmt.Errorf("%w: %d (want %d-%d)", ErrInvalidCfgScale, scale, MinCfgScale, MaxCfgScale)
	}
	return nil
}

// ValidateIterations checks that n lies in [MinIterations, MaxIterations].
func ValidateIterations(n int) error {
	if n < MinIterations || n > MaxIterations {
		return fmt.Errorf("%w: %d (want %d-%d)", ErrInvalidIterations, n, MinIterations, MaxIterations)
	}
	return nil
}

// ValidateStylePreset checks membership in StylePresets.
func ValidateStylePreset(style StylePreset) error {
	if !slices.Contains(StylePresets, style) {
		return fmt.Errorf("%w: %q", ErrInvalidStylePreset, style)
	}
	return nil
}

// ValidateEngine checks membership in Engines.
func ValidateEngine(engine Engine) error {
	if !slices.Contains(Engines, engine) {
		return fmt.Errorf("%w: %q", ErrInvalidEngine, engine)
	}
	return nil
}

// ValidateOutputDir checks that dir exists, is a directory and accepts new
// files. Writability is checked by creating and removing a temp file.
func ValidateOutputDir(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return fmt.Errorf("%w: path is empty", ErrOutputDir)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrOutputDir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrOutputDir, dir)
	}
	f, err := os.CreateTemp(dir, ".imagebatch-*")
	if err != nil {
		return fmt.Errorf("%w: %s is not writable: %w", ErrOutputDir, dir, err)
	}
	name := f.Name()
	f.Close()
	os.Remove(name)
	return nil
}
