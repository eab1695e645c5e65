// Package batch runs a list of prompts against a Generator, writing one image
// per (iteration, prompt) pair under a collision-free file name.
package batch

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/mhpenta/imagebatch"
)

// ImageExt is the extension given to every output file.
const ImageExt = ".png"

// PromptJob is one unit of work, built once per run.
type PromptJob struct {
	Text         string
	BaseFilename string
	Width        int
	Height       int
}

var filenameReplacer = strings.NewReplacer(" ", "_", "/", "_", `\`, "_")

// BaseFilename derives the output file name for a prompt: spaces (and path
// separators) become underscores and ImageExt is appended.
func BaseFilename(text string) string {
	return filenameReplacer.Replace(text) + ImageExt
}

// NewJobs builds one job per prompt with the engine's resolution.
func NewJobs(prompts []string, engine imagebatch.Engine) []PromptJob {
	w, h := engine.Dimensions()
	jobs := make([]PromptJob, 0, len(prompts))
	for _, p := range prompts {
		jobs = append(jobs, PromptJob{
			Text:         p,
			BaseFilename: BaseFilename(p),
			Width:        w,
			Height:       h,
		})
	}
	return jobs
}

// LoadPrompts reads a prompt file in full: one prompt per line, trimmed,
// blank lines dropped.
func LoadPrompts(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompt file: %w", err)
	}
	return ParsePrompts(data)
}

// ParsePrompts splits data into trimmed, non-empty lines.
func ParsePrompts(data []byte) ([]string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	var prompts []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			prompts = append(prompts, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("parse prompt file: %w", err)
	}
	if len(prompts) == 0 {
		return nil, imagebatch.ErrEmptyPromptFile
	}
	return prompts, nil
}
