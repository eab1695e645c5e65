// Package config resolves runtime settings for the imagebatch tools.
//
// Sources, lowest precedence first: built-in defaults, an optional TOML file,
// .env files, the process environment. Command-line flags are applied by the
// caller on top of the returned Config.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/mhpenta/imagebatch"
)

// Environment variables read by Load.
const (
	EnvStabilityKey   = "STABILITY_API_KEY"
	EnvAPIHost        = "API_HOST"
	EnvDeepAIKey      = "DEEPAI_API_KEY"
	EnvGeminiKey      = "GEMINI_API_KEY"
	EnvRequestTimeout = "IMAGEBATCH_REQUEST_TIMEOUT"
)

const (
	DefaultAPIHost    = "https://api.stability.ai"
	DefaultAPIKeyFile = "api_key.txt"
)

// DefaultEnvFiles are loaded when Options.EnvFiles is nil.
var DefaultEnvFiles = []string{".env", ".env.local"}

// Duration decodes TOML strings such as "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

type Stability struct {
	APIKey string `toml:"api_key"`
	Host   string `toml:"host"`
}

type DeepAI struct {
	APIKey   string `toml:"api_key"`
	Endpoint string `toml:"endpoint"`
}

type Gemini struct {
	APIKey string `toml:"api_key"`
	Model  string `toml:"model"`
}

// Batch holds the defaults for a batch run.
type Batch struct {
	Engine                string `toml:"engine"`
	StylePreset           string `toml:"style_preset"`
	CfgScale              int    `toml:"cfg_scale"`
	Iterations            int    `toml:"iterations"`
	Numbering             bool   `toml:"numbering"`
	KeepNumberOnCollision bool   `toml:"keep_number_on_collision"`
	OutputDir             string `toml:"output_dir"`
	PreviewDir            string `toml:"preview_dir"`
}

type Config struct {
	// APIKeyFile is read when a provider key is not set elsewhere.
	APIKeyFile     string   `toml:"api_key_file"`
	RequestTimeout Duration `toml:"request_timeout"`

	Stability Stability `toml:"stability"`
	DeepAI    DeepAI    `toml:"deepai"`
	Gemini    Gemini    `toml:"gemini"`
	Batch     Batch     `toml:"batch"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		APIKeyFile: DefaultAPIKeyFile,
		Stability: Stability{
			Host: DefaultAPIHost,
		},
		Batch: Batch{
			Engine:      string(imagebatch.EngineDefault),
			StylePreset: string(imagebatch.StylePresetDefault),
			CfgScale:    imagebatch.DefaultCfgScale,
			Iterations:  1,
			Numbering:   true,
			OutputDir:   ".",
		},
	}
}

// Options controls where Load looks.
type Options struct {
	// File is an optional TOML file; empty skips it. A named file that does
	// not exist is an error.
	File string

	// EnvFiles are .env files; missing ones are skipped. Nil means
	// DefaultEnvFiles.
	EnvFiles []string

	// LookupEnv reads the environment; nil means os.LookupEnv.
	LookupEnv func(string) (string, bool)
}

// Load resolves a Config from all sources.
func Load(opts Options) (Config, error) {
	cfg := Default()

	if opts.File != "" {
		if _, err := toml.DecodeFile(opts.File, &cfg); err != nil {
			return Config{}, fmt.Errorf("load config %s: %w", opts.File, err)
		}
	}

	envFiles := opts.EnvFiles
	if envFiles == nil {
		envFiles = DefaultEnvFiles
	}
	dotenv, err := readEnvFiles(envFiles)
	if err != nil {
		return Config{}, err
	}

	lookup := opts.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}
	get := func(key string) (string, bool) {
		if v, ok := lookup(key); ok && v != "" {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok && v != ""
	}

	if v, ok := get(EnvStabilityKey); ok {
		cfg.Stability.APIKey = v
	}
	if v, ok := get(EnvAPIHost); ok {
		cfg.Stability.Host = v
	}
	if v, ok := get(EnvDeepAIKey); ok {
		cfg.DeepAI.APIKey = v
	}
	if v, ok := get(EnvGeminiKey); ok {
		cfg.Gemini.APIKey = v
	}
	if v, ok := get(EnvRequestTimeout); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", EnvRequestTimeout, err)
		}
		cfg.RequestTimeout.Duration = d
	}

	return cfg, nil
}

// readEnvFiles merges files in order; a later file overrides an earlier one.
func readEnvFiles(paths []string) (map[string]string, error) {
	merged := map[string]string{}
	for _, p := range paths {
		vals, err := godotenv.Read(p)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("load env file %s: %w", p, err)
		}
		for k, v := range vals {
			merged[k] = v
		}
	}
	return merged, nil
}

// ReadAPIKeyFile returns the trimmed first line of path. A missing file or
// blank first line is ErrMissingAPIKey.
func ReadAPIKeyFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s not found", imagebatch.ErrMissingAPIKey, path)
		}
		return "", fmt.Errorf("read api key file: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	var line string
	if sc.Scan() {
		line = strings.TrimSpace(sc.Text())
	}
	if err := sc.Err(); err != nil {
		return "", fmt.Errorf("read api key file: %w", err)
	}
	if line == "" {
		return "", fmt.Errorf("%w: %s is empty", imagebatch.ErrMissingAPIKey, path)
	}
	return line, nil
}

// StabilityKey returns the configured key or the key file's first line.
func (c Config) StabilityKey() (string, error) {
	return c.keyOrFile(c.Stability.APIKey)
}

// DeepAIKey returns the configured key or the key file's first line.
func (c Config) DeepAIKey() (string, error) {
	return c.keyOrFile(c.DeepAI.APIKey)
}

// GeminiKey returns the configured key or the key file's first line.
func (c Config) GeminiKey() (string, error) {
	return c.keyOrFile(c.Gemini.APIKey)
}

func (c Config) keyOrFile(key string) (string, error) {
	if key = strings.TrimSpace(key); key != "" {
		return key, nil
	}
	if c.APIKeyFile == "" {
		return "", imagebatch.ErrMissingAPIKey
	}
	return ReadAPIKeyFile(c.APIKeyFile)
}
