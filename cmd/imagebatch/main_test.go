package main

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolateEnv clears environment variables the CLI reads.
func isolateEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"STABILITY_API_KEY", "API_HOST", "DEEPAI_API_KEY", "GEMINI_API_KEY", "IMAGEBATCH_REQUEST_TIMEOUT"} {
		t.Setenv(k, "")
	}
}

func run(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := cliMain(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func stabilityServer(t *testing.T, failAfter int32) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if r.Header.Get("Authorization") != "Bearer test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			io.WriteString(w, `{"message":"bad key"}`)
			return
		}
		if failAfter > 0 && n > failAfter {
			w.WriteHeader(http.StatusInternalServerError)
			io.WriteString(w, `{"message":"engine exploded"}`)
			return
		}
		data := base64.StdEncoding.EncodeToString([]byte(fmt.Sprintf("image-%d", n)))
		fmt.Fprintf(w, `{"artifacts":[{"base64":%q,"seed":%d,"finishReason":"SUCCESS"}]}`, data, n)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func writePrompts(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "prompts.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func dirNames(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func TestCLI_Usage(t *testing.T) {
	code, _, stderr := run(t)
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, stderr, "usage: imagebatch")

	code, stdout, _ := run(t, "help")
	assert.Equal(t, exitOK, code)
	assert.Contains(t, stdout, "batch")

	code, _, stderr = run(t, "paint")
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, stderr, `unknown command "paint"`)
}

func TestCLI_Styles(t *testing.T) {
	code, stdout, _ := run(t, "styles")
	require.Equal(t, exitOK, code)

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	assert.Len(t, lines, 17)
	assert.Contains(t, lines, "enhance")
	assert.Contains(t, lines, "pixel-art")
}

func TestCLI_Engines(t *testing.T) {
	code, stdout, _ := run(t, "engines")
	require.Equal(t, exitOK, code)
	assert.Contains(t, stdout, "stable-diffusion-512-v2-1\t512x512")
	assert.Contains(t, stdout, "stable-diffusion-768-v2-1\t768x768")
}

func TestCLI_BatchRun(t *testing.T) {
	isolateEnv(t)
	t.Setenv("STABILITY_API_KEY", "test-key")
	srv, calls := stabilityServer(t, 0)
	out := t.TempDir()

	code, stdout, stderr := run(t, "batch",
		"-prompts", writePrompts(t, "a cat\nb dog\n"),
		"-iterations", "2",
		"-out", out,
		"-host", srv.URL,
	)
	require.Equal(t, exitOK, code, stderr)

	assert.EqualValues(t, 4, calls.Load())
	assert.Equal(t, []string{"0001_a_cat.png", "0002_b_dog.png", "0003_a_cat.png", "0004_b_dog.png"}, dirNames(t, out))
	assert.Contains(t, stdout, "4 images written")

	data, err := os.ReadFile(filepath.Join(out, "0003_a_cat.png"))
	require.NoError(t, err)
	assert.Equal(t, "image-3", string(data))
}

func TestCLI_BatchUnnumbered(t *testing.T) {
	isolateEnv(t)
	t.Setenv("STABILITY_API_KEY", "test-key")
	srv, _ := stabilityServer(t, 0)
	out := t.TempDir()

	code, _, stderr := run(t, "batch",
		"-prompts", writePrompts(t, "a cat\n"),
		"-iterations", "3",
		"-numbering=false",
		"-out", out,
		"-host", srv.URL,
	)
	require.Equal(t, exitOK, code, stderr)
	assert.Equal(t, []string{"a_cat.png", "a_cat_001.png", "a_cat_002.png"}, dirNames(t, out))
}

func TestCLI_BatchProviderFailure(t *testing.T) {
	isolateEnv(t)
	t.Setenv("STABILITY_API_KEY", "test-key")
	srv, _ := stabilityServer(t, 1)
	out := t.TempDir()

	code, _, stderr := run(t, "batch",
		"-prompts", writePrompts(t, "a cat\nb dog\nc owl\n"),
		"-out", out,
		"-host", srv.URL,
	)
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, stderr, "engine exploded")
	assert.Contains(t, stderr, "DreamStudio: engine exploded\n")
	assert.Contains(t, stderr, "prompt 2")
	assert.Equal(t, []string{"0001_a_cat.png"}, dirNames(t, out))
}

func TestCLI_BatchKeyFromFile(t *testing.T) {
	isolateEnv(t)
	srv, _ := stabilityServer(t, 0)
	out := t.TempDir()
	keyFile := filepath.Join(t.TempDir(), "api_key.txt")
	require.NoError(t, os.WriteFile(keyFile, []byte("test-key\n"), 0o600))

	code, _, stderr := run(t, "batch",
		"-prompts", writePrompts(t, "a cat\n"),
		"-api-key-file", keyFile,
		"-out", out,
		"-host", srv.URL,
	)
	require.Equal(t, exitOK, code, stderr)
	assert.Equal(t, []string{"0001_a_cat.png"}, dirNames(t, out))
}

func TestCLI_BatchConfigErrors(t *testing.T) {
	isolateEnv(t)
	t.Setenv("STABILITY_API_KEY", "test-key")
	prompts := writePrompts(t, "a cat\n")

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no prompt file", []string{"-out", t.TempDir()}, "-prompts is required"},
		{"missing prompt file", []string{"-prompts", filepath.Join(t.TempDir(), "nope.txt"), "-out", t.TempDir()}, "read prompt file"},
		{"empty prompt file", []string{"-prompts", writePrompts(t, "\n\n"), "-out", t.TempDir()}, "no prompts"},
		{"bad cfg", []string{"-prompts", prompts, "-cfg", "40", "-out", t.TempDir()}, "cfg_scale"},
		{"bad iterations", []string{"-prompts", prompts, "-iterations", "0", "-out", t.TempDir()}, "iterations"},
		{"bad style", []string{"-prompts", prompts, "-style", "watercolor", "-out", t.TempDir()}, "style preset"},
		{"bad engine", []string{"-prompts", prompts, "-engine", "dall-e", "-out", t.TempDir()}, "engine"},
		{"missing out dir", []string{"-prompts", prompts, "-out", filepath.Join(t.TempDir(), "x")}, "output directory"},
		{"unknown flag", []string{"-frobnicate"}, "frobnicate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, stderr := run(t, append([]string{"batch"}, tt.args...)...)
			assert.Equal(t, exitUsage, code)
			assert.Contains(t, strings.ToLower(stderr), tt.want)
		})
	}
}

func TestCLI_BatchMissingKey(t *testing.T) {
	isolateEnv(t)

	code, _, stderr := run(t, "batch",
		"-prompts", writePrompts(t, "a cat\n"),
		"-api-key-file", filepath.Join(t.TempDir(), "none.txt"),
		"-out", t.TempDir(),
	)
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, stderr, "missing API key")
}

func TestCLI_Single(t *testing.T) {
	isolateEnv(t)
	t.Setenv("STABILITY_API_KEY", "test-key")
	srv, _ := stabilityServer(t, 0)
	file := filepath.Join(t.TempDir(), "fox.png")

	code, stdout, stderr := run(t, "single", "-prompt", "a fox", "-file", file, "-host", srv.URL)
	require.Equal(t, exitOK, code, stderr)
	assert.Equal(t, file+"\n", stdout)

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Equal(t, "image-1", string(data))

	// existing files are never overwritten
	code, _, stderr = run(t, "single", "-prompt", "a fox", "-file", file, "-host", srv.URL)
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, stderr, "already exists")
}

func TestCLI_DeepAIRequiresAllInputs(t *testing.T) {
	isolateEnv(t)
	t.Setenv("DEEPAI_API_KEY", "k")
	file := filepath.Join(t.TempDir(), "out.jpg")

	tests := []struct {
		name string
		args []string
	}{
		{"no prompt", []string{"-negative", "blurry", "-file", file}},
		{"no negative", []string{"-prompt", "a fox", "-file", file}},
		{"no file", []string{"-prompt", "a fox", "-negative", "blurry"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, _ := run(t, append([]string{"deepai"}, tt.args...)...)
			assert.Equal(t, exitUsage, code)
		})
	}
}

func TestCLI_DeepAI(t *testing.T) {
	isolateEnv(t)
	t.Setenv("DEEPAI_API_KEY", "deepai-key")

	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/text2img":
			if r.Header.Get("api-key") != "deepai-key" || r.FormValue("negative_prompt") != "blurry" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			fmt.Fprintf(w, `{"id":"1","output_url":%q}`, srv.URL+"/img/1.jpg")
		case "/img/1.jpg":
			w.Write([]byte("jpeg-bytes"))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	file := filepath.Join(t.TempDir(), "out.jpg")

	code, _, stderr := run(t, "deepai",
		"-prompt", "a fox",
		"-negative", "blurry",
		"-file", file,
		"-endpoint", srv.URL+"/api/text2img",
	)
	require.Equal(t, exitOK, code, stderr)

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Equal(t, "jpeg-bytes", string(data))
}

func TestCLI_SubcommandHelp(t *testing.T) {
	code, _, stderr := run(t, "batch", "-h")
	assert.Equal(t, exitOK, code)
	assert.Contains(t, stderr, "-prompts")
}

func pngServer(t *testing.T, size int) *httptest.Server {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, size, size))))
	payload := base64.StdEncoding.EncodeToString(buf.Bytes())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"artifacts":[{"base64":%q,"seed":1,"finishReason":"SUCCESS"}]}`, payload)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func pngSize(t *testing.T, path string) int {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	cfg, err := png.DecodeConfig(f)
	require.NoError(t, err)
	return cfg.Width
}

func TestCLI_BatchPreviewSharesOutputDir(t *testing.T) {
	isolateEnv(t)
	t.Setenv("STABILITY_API_KEY", "test-key")
	srv := pngServer(t, 600)
	out := t.TempDir()

	for _, previewDir := range []string{out, filepath.Join(out, ".")} {
		code, _, stderr := run(t, "batch",
			"-prompts", writePrompts(t, "latest\n"),
			"-numbering=false",
			"-out", out,
			"-preview", previewDir,
			"-host", srv.URL,
		)
		assert.Equal(t, exitUsage, code)
		assert.Contains(t, stderr, "-preview must differ from -out")
	}
	assert.Empty(t, dirNames(t, out))
}

func TestCLI_BatchPreview(t *testing.T) {
	isolateEnv(t)
	t.Setenv("STABILITY_API_KEY", "test-key")
	srv := pngServer(t, 600)
	out := t.TempDir()
	previewDir := t.TempDir()

	code, _, stderr := run(t, "batch",
		"-prompts", writePrompts(t, "latest\n"),
		"-numbering=false",
		"-out", out,
		"-preview", previewDir,
		"-host", srv.URL,
	)
	require.Equal(t, exitOK, code, stderr)

	assert.Equal(t, 600, pngSize(t, filepath.Join(out, "latest.png")))
	assert.Equal(t, 256, pngSize(t, filepath.Join(previewDir, "latest.png")))
}
