package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mhpenta/imagebatch"
	"github.com/mhpenta/imagebatch/batch"
	"github.com/mhpenta/imagebatch/internal/config"
	"github.com/mhpenta/imagebatch/preview"
	"github.com/mhpenta/imagebatch/provider/deepai"
	"github.com/mhpenta/imagebatch/provider/gemini"
	"github.com/mhpenta/imagebatch/provider/stability"
)

// commonFlags are accepted by every subcommand that talks to a provider.
type commonFlags struct {
	configFile string
	keyFile    string
	timeout    time.Duration
	verbose    bool
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configFile, "config", "", "TOML config file")
	fs.StringVar(&c.keyFile, "api-key-file", "", "file whose first line is the API key (default api_key.txt)")
	fs.DurationVar(&c.timeout, "timeout", 0, "per-request timeout; 0 disables")
	fs.BoolVar(&c.verbose, "v", false, "debug logging")
}

// load resolves config and applies the common flags that were set.
func (c *commonFlags) load(set map[string]bool) (config.Config, error) {
	cfg, err := config.Load(config.Options{File: c.configFile})
	if err != nil {
		return config.Config{}, usageErr(err)
	}
	if set["api-key-file"] {
		cfg.APIKeyFile = c.keyFile
	}
	if set["timeout"] {
		cfg.RequestTimeout.Duration = c.timeout
	}
	return cfg, nil
}

func (c *commonFlags) logger(stderr io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if c.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
}

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

// parse returns the names of flags given on the command line.
func parse(fs *flag.FlagSet, args []string) (map[string]bool, error) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, err
		}
		return nil, usageErr(err)
	}
	if fs.NArg() > 0 {
		return nil, usagef("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return set, nil
}

func newStability(cfg config.Config, host string) (*stability.Generator, error) {
	key, err := cfg.StabilityKey()
	if err != nil {
		return nil, usageErr(err)
	}
	if host == "" {
		host = cfg.Stability.Host
	}
	gen, err := stability.New(stability.Options{
		APIKey:  key,
		Host:    host,
		Timeout: cfg.RequestTimeout.Duration,
	})
	if err != nil {
		return nil, usageErr(err)
	}
	return gen, nil
}

func runBatch(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var (
		common     commonFlags
		promptFile string
		engine     string
		style      string
		cfgScale   int
		iterations int
		numbering  bool
		keepNumber bool
		outputDir  string
		previewDir string
		host       string
	)
	fs := newFlagSet("batch", stderr)
	common.register(fs)
	fs.StringVar(&promptFile, "prompts", "", "prompt file, one prompt per line (required)")
	fs.StringVar(&engine, "engine", string(imagebatch.EngineDefault), "DreamStudio engine")
	fs.StringVar(&style, "style", string(imagebatch.StylePresetDefault), "style preset")
	fs.IntVar(&cfgScale, "cfg", imagebatch.DefaultCfgScale, "cfg scale (1-35)")
	fs.IntVar(&iterations, "iterations", 1, "passes over the prompt file (1-9999)")
	fs.BoolVar(&numbering, "numbering", true, "prefix file names with a running number")
	fs.BoolVar(&keepNumber, "keep-number", false, "keep the number prefix when a numbered name collides")
	fs.StringVar(&outputDir, "out", ".", "output directory")
	fs.StringVar(&previewDir, "preview", "", "directory for a latest.png thumbnail")
	fs.StringVar(&host, "host", "", "API host (default $API_HOST or "+config.DefaultAPIHost+")")

	set, err := parse(fs, args)
	if err != nil {
		return err
	}
	cfg, err := common.load(set)
	if err != nil {
		return err
	}

	req := batch.DefaultRequest()
	req.Engine = imagebatch.Engine(cfg.Batch.Engine)
	req.StylePreset = imagebatch.StylePreset(cfg.Batch.StylePreset)
	req.CfgScale = cfg.Batch.CfgScale
	req.Iterations = cfg.Batch.Iterations
	req.Numbering = cfg.Batch.Numbering
	req.KeepNumberOnCollision = cfg.Batch.KeepNumberOnCollision
	req.OutputDir = cfg.Batch.OutputDir
	if cfg.Batch.PreviewDir != "" && !set["preview"] {
		previewDir = cfg.Batch.PreviewDir
	}

	if set["engine"] {
		req.Engine = imagebatch.Engine(engine)
	}
	if set["style"] {
		req.StylePreset = imagebatch.StylePreset(style)
	}
	if set["cfg"] {
		req.CfgScale = cfgScale
	}
	if set["iterations"] {
		req.Iterations = iterations
	}
	if set["numbering"] {
		req.Numbering = numbering
	}
	if set["keep-number"] {
		req.KeepNumberOnCollision = keepNumber
	}
	if set["out"] {
		req.OutputDir = outputDir
	}

	if promptFile == "" {
		return usagef("-prompts is required")
	}
	if err := req.Validate(); err != nil {
		return usageErr(err)
	}
	prompts, err := batch.LoadPrompts(promptFile)
	if err != nil {
		return usageErr(err)
	}
	jobs := batch.NewJobs(prompts, req.Engine)

	logger := common.logger(stderr)
	provider, err := newStability(cfg, host)
	if err != nil {
		return err
	}

	store := imagebatch.NewFileStore()
	manager := imagebatch.NewManager(provider,
		imagebatch.WithLogger(logger),
		imagebatch.WithStorage(store),
	)
	defer manager.Close()

	reporters := []batch.Reporter{batch.NewLogReporter(logger), &printReporter{w: stdout}}
	if previewDir != "" {
		if err := imagebatch.ValidateOutputDir(previewDir); err != nil {
			return usageErr(err)
		}
		if sameDir(previewDir, req.OutputDir) {
			return usagef("-preview must differ from -out: %s would replace a generated %s", preview.DefaultFilename, preview.DefaultFilename)
		}
		reporters = append(reporters, preview.New(previewDir, preview.WithLogger(logger)))
	}

	runner, err := batch.NewRunner(manager, store,
		batch.WithLogger(logger),
		batch.WithReporter(batch.Reporters(reporters...)),
	)
	if err != nil {
		return err
	}

	summary, err := runner.Run(ctx, jobs, req)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%d images written (run %s)\n", len(summary.Outputs), summary.RunID)
	return nil
}

// sameDir reports whether a and b name the same directory, following links.
func sameDir(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA == nil && errB == nil && absA == absB {
		return true
	}
	infoA, errA := os.Stat(a)
	infoB, errB := os.Stat(b)
	return errA == nil && errB == nil && os.SameFile(infoA, infoB)
}

// singleFlags are shared by the one-prompt subcommands.
type singleFlags struct {
	commonFlags
	prompt string
	file   string
}

func (s *singleFlags) register(fs *flag.FlagSet) {
	s.commonFlags.register(fs)
	fs.StringVar(&s.prompt, "prompt", "", "image description (required)")
	fs.StringVar(&s.file, "file", "", "output file (required)")
}

func (s *singleFlags) check() error {
	if err := imagebatch.ValidatePrompt(s.prompt); err != nil {
		return usageErr(err)
	}
	if strings.TrimSpace(s.file) == "" {
		return usagef("-file is required")
	}
	return nil
}

// generateOne renders prompt through gen and writes the first image to file.
// A file without extension gets one from the image type.
func generateOne(ctx context.Context, gen imagebatch.Generator, logger *slog.Logger, prompt, file string, genCfg *imagebatch.GenerateConfig, stdout io.Writer) error {
	manager := imagebatch.NewManager(gen,
		imagebatch.WithLogger(logger),
		imagebatch.WithStorage(imagebatch.NewFileStore()),
	)
	defer manager.Close()

	result, err := manager.Generate(ctx, prompt, genCfg)
	if err != nil {
		return err
	}
	if img, ok := result.First(); ok && img.MIMEType != "" {
		if filepath.Ext(file) == "" {
			file += "." + imagebatch.ExtensionFromMIME(img.MIMEType)
		} else if want := imagebatch.GetMIMEType(file); want != img.MIMEType {
			logger.Warn("file extension does not match image type", "path", file, "mime_type", img.MIMEType)
		}
	}
	n, err := manager.SaveResult(ctx, result, file)
	if err != nil {
		return err
	}
	logger.Info("image saved", "path", file, "bytes", n)
	fmt.Fprintln(stdout, file)
	return nil
}

func runSingle(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var (
		flags  singleFlags
		engine string
		style  string
		host   string
	)
	fs := newFlagSet("single", stderr)
	flags.register(fs)
	fs.StringVar(&engine, "engine", string(imagebatch.EngineDefault), "DreamStudio engine")
	fs.StringVar(&style, "style", string(imagebatch.StylePresetDefault), "style preset")
	fs.StringVar(&host, "host", "", "API host (default $API_HOST or "+config.DefaultAPIHost+")")

	set, err := parse(fs, args)
	if err != nil {
		return err
	}
	if err := flags.check(); err != nil {
		return err
	}
	if err := errors.Join(
		imagebatch.ValidateEngine(imagebatch.Engine(engine)),
		imagebatch.ValidateStylePreset(imagebatch.StylePreset(style)),
	); err != nil {
		return usageErr(err)
	}
	cfg, err := flags.load(set)
	if err != nil {
		return err
	}
	provider, err := newStability(cfg, host)
	if err != nil {
		return err
	}

	// size is left to the engine
	genCfg := imagebatch.DefaultConfig().WithEngine(imagebatch.Engine(engine))
	genCfg.StylePreset = imagebatch.StylePreset(style)
	return generateOne(ctx, provider, flags.logger(stderr), flags.prompt, flags.file, genCfg, stdout)
}

func runDeepAI(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var (
		flags    singleFlags
		negative string
		endpoint string
	)
	fs := newFlagSet("deepai", stderr)
	flags.register(fs)
	fs.StringVar(&negative, "negative", "", "negative prompt (required)")
	fs.StringVar(&endpoint, "endpoint", "", "text2img endpoint (default "+deepai.DefaultEndpoint+")")

	set, err := parse(fs, args)
	if err != nil {
		return err
	}
	if err := flags.check(); err != nil {
		return err
	}
	if strings.TrimSpace(negative) == "" {
		return usagef("-negative is required")
	}
	cfg, err := flags.load(set)
	if err != nil {
		return err
	}
	key, err := cfg.DeepAIKey()
	if err != nil {
		return usageErr(err)
	}
	if endpoint == "" {
		endpoint = cfg.DeepAI.Endpoint
	}
	provider, err := deepai.New(deepai.Options{
		APIKey:   key,
		Endpoint: endpoint,
		Timeout:  cfg.RequestTimeout.Duration,
	})
	if err != nil {
		return usageErr(err)
	}

	genCfg := &imagebatch.GenerateConfig{NegativePrompt: negative, Samples: 1}
	return generateOne(ctx, provider, flags.logger(stderr), flags.prompt, flags.file, genCfg, stdout)
}

func runGemini(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var (
		flags  singleFlags
		aspect string
		model  string
	)
	fs := newFlagSet("gemini", stderr)
	flags.register(fs)
	fs.StringVar(&aspect, "aspect", "", "aspect ratio such as 1:1 or 16:9")
	fs.StringVar(&model, "model", "", "model (default "+gemini.APIModelFlashImage+")")

	set, err := parse(fs, args)
	if err != nil {
		return err
	}
	if err := flags.check(); err != nil {
		return err
	}
	cfg, err := flags.load(set)
	if err != nil {
		return err
	}
	key, err := cfg.GeminiKey()
	if err != nil {
		return usageErr(err)
	}
	if model == "" {
		model = cfg.Gemini.Model
	}
	provider, err := gemini.New(ctx, key, model)
	if err != nil {
		return err
	}

	genCfg := &imagebatch.GenerateConfig{AspectRatio: aspect, Samples: 1}
	if cfg.RequestTimeout.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.RequestTimeout.Duration)
		defer cancel()
	}
	return generateOne(ctx, provider, flags.logger(stderr), flags.prompt, flags.file, genCfg, stdout)
}

func runStyles(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if _, err := parse(newFlagSet("styles", stderr), args); err != nil {
		return err
	}
	for _, s := range imagebatch.StylePresets {
		fmt.Fprintln(stdout, s)
	}
	return nil
}

func runEngines(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if _, err := parse(newFlagSet("engines", stderr), args); err != nil {
		return err
	}
	for _, e := range imagebatch.Engines {
		w, h := e.Dimensions()
		fmt.Fprintf(stdout, "%s\t%dx%d\n", e, w, h)
	}
	return nil
}

// printReporter writes one line per saved image to stdout.
type printReporter struct {
	w io.Writer
}

func (p *printReporter) Started(ctx context.Context, prog batch.Progress) {}

func (p *printReporter) Saved(ctx context.Context, out batch.Output, data []byte) {
	fmt.Fprintln(p.w, out.Path)
}

func (p *printReporter) Finished(ctx context.Context, summary *batch.Summary) {}
