package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/mhpenta/imagebatch"
)

// Request is the run-level configuration, built fresh for every run.
type Request struct {
	StylePreset imagebatch.StylePreset
	Engine      imagebatch.Engine
	CfgScale    int
	Iterations  int
	Numbering   bool
	OutputDir   string

	// KeepNumberOnCollision keeps the number prefix when a numbered name
	// collides; see Namer.
	KeepNumberOnCollision bool

	// WaitOnRateLimit is forwarded to every GenerateConfig.
	WaitOnRateLimit bool
}

// DefaultRequest mirrors the initial state of the batch tool.
func DefaultRequest() Request {
	return Request{
		StylePreset: imagebatch.StylePresetDefault,
		Engine:      imagebatch.EngineDefault,
		CfgScale:    imagebatch.DefaultCfgScale,
		Iterations:  1,
		Numbering:   true,
		OutputDir:   ".",

		WaitOnRateLimit: true,
	}
}

// Validate checks every field against its closed set or range.
func (r Request) Validate() error {
	return errors.Join(
		imagebatch.ValidateStylePreset(r.StylePreset),
		imagebatch.ValidateEngine(r.Engine),
		imagebatch.ValidateCfgScale(r.CfgScale),
		imagebatch.ValidateIterations(r.Iterations),
		imagebatch.ValidateOutputDir(r.OutputDir),
	)
}

// Progress identifies one item of a run.
type Progress struct {
	RunID      string
	Iteration  int // 1-based
	Iterations int
	Index      int // 1-based position in the prompt list
	Total      int
	Prompt     string
}

// Output describes one written image.
type Output struct {
	Progress
	Path               string
	Size               int
	Seed               int64
	NumberingDiscarded bool
}

// Summary is returned by a run that completed every item.
type Summary struct {
	RunID    string
	Outputs  []Output
	Duration time.Duration
}

// RunError reports where a run was aborted.
type RunError struct {
	Iteration int
	Index     int
	Prompt    string
	Err       error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("batch aborted at iteration %d, prompt %d (%q): %v", e.Iteration, e.Index, e.Prompt, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// runState is the mutable state of a single run.
type runState struct {
	id      string
	counter int
	outputs []Output
}

// Runner executes batch requests sequentially.
type Runner struct {
	gen      imagebatch.Generator
	store    imagebatch.Storage
	reporter Reporter
	logger   *slog.Logger
	newID    func() string
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithReporter sets the progress reporter.
func WithReporter(r Reporter) RunnerOption {
	return func(rn *Runner) {
		rn.reporter = r
	}
}

// WithLogger sets a structured logger for the runner.
func WithLogger(logger *slog.Logger) RunnerOption {
	return func(rn *Runner) {
		rn.logger = logger
	}
}

// WithRunID overrides run id generation.
func WithRunID(fn func() string) RunnerOption {
	return func(rn *Runner) {
		rn.newID = fn
	}
}

// NewRunner creates a Runner. gen and store are required.
func NewRunner(gen imagebatch.Generator, store imagebatch.Storage, opts ...RunnerOption) (*Runner, error) {
	if gen == nil {
		return nil, fmt.Errorf("generator is required")
	}
	if store == nil {
		return nil, fmt.Errorf("storage is required: %w", imagebatch.ErrStorageNotConfigured)
	}

	rn := &Runner{
		gen:    gen,
		store:  store,
		logger: slog.Default(),
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(rn)
	}
	if rn.reporter == nil {
		rn.reporter = NewLogReporter(rn.logger)
	}
	return rn, nil
}

// Run processes every (iteration, job) pair: iterations are full passes over
// jobs in order. The first error aborts the run; files already written stay.
func (rn *Runner) Run(ctx context.Context, jobs []PromptJob, req Request) (*Summary, error) {
	if len(jobs) == 0 {
		return nil, imagebatch.ErrEmptyPromptFile
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	state := &runState{
		id:      rn.newID(),
		counter: 1,
		outputs: make([]Output, 0, len(jobs)*req.Iterations),
	}
	namer := Namer{Storage: rn.store, KeepNumberOnCollision: req.KeepNumberOnCollision}
	logger := rn.logger.With("run_id", state.id)

	logger.Info("batch started",
		"prompts", len(jobs),
		"iterations", req.Iterations,
		"engine", string(req.Engine),
		"style_preset", string(req.StylePreset),
		"numbering", req.Numbering,
	)

	for it := 1; it <= req.Iterations; it++ {
		for i, job := range jobs {
			p := Progress{
				RunID:      state.id,
				Iteration:  it,
				Iterations: req.Iterations,
				Index:      i + 1,
				Total:      len(jobs),
				Prompt:     job.Text,
			}
			if err := rn.runOne(ctx, state, namer, job, req, p); err != nil {
				logger.Error("batch aborted",
					"iteration", it,
					"index", i+1,
					"written", len(state.outputs),
					"error", err.Error(),
				)
				return nil, &RunError{Iteration: it, Index: i + 1, Prompt: job.Text, Err: err}
			}
		}
	}

	summary := &Summary{
		RunID:    state.id,
		Outputs:  state.outputs,
		Duration: time.Since(start),
	}
	rn.reporter.Finished(ctx, summary)
	logger.Info("batch completed",
		"images", len(summary.Outputs),
		"duration_ms", summary.Duration.Milliseconds(),
	)
	return summary, nil
}

func (rn *Runner) runOne(ctx context.Context, state *runState, namer Namer, job PromptJob, req Request, p Progress) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	rn.reporter.Started(ctx, p)

	config := imagebatch.DefaultConfig().WithEngine(req.Engine)
	config.StylePreset = req.StylePreset
	config.CfgScale = req.CfgScale
	config.Width = job.Width
	config.Height = job.Height
	config.WaitOnRateLimit = req.WaitOnRateLimit

	result, err := rn.gen.Generate(ctx, job.Text, config)
	if err != nil {
		return err
	}
	img, ok := result.First()
	if !ok {
		return imagebatch.ErrNoImage
	}

	resolved, err := namer.Resolve(req.OutputDir, job, req.Numbering, state.counter)
	if err != nil {
		return err
	}
	if resolved.NumberingDiscarded {
		rn.logger.Warn("numbered file name collided; number prefix dropped",
			"run_id", state.id,
			"number", state.counter,
			"path", resolved.Path,
		)
	}

	if err := rn.store.WriteNew(ctx, resolved.Path, img.Data); err != nil {
		return err
	}
	if req.Numbering {
		state.counter++
	}

	out := Output{
		Progress:           p,
		Path:               resolved.Path,
		Size:               len(img.Data),
		Seed:               img.Seed,
		NumberingDiscarded: resolved.NumberingDiscarded,
	}
	state.outputs = append(state.outputs, out)
	rn.reporter.Saved(ctx, out, img.Data)
	return nil
}
