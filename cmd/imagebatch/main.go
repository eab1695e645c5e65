// Command imagebatch generates images from text prompts.
//
// The batch subcommand reads one prompt per line and renders every prompt for
// a number of iterations through DreamStudio. The single, deepai and gemini
// subcommands render one prompt to one file.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/mhpenta/imagebatch"
	"github.com/mhpenta/imagebatch/provider/stability"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

// usageError marks a problem found before any request is sent.
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }

func (e *usageError) Unwrap() error { return e.err }

func usageErr(err error) error {
	return &usageError{err: err}
}

func usagef(format string, args ...any) error {
	return &usageError{err: fmt.Errorf(format, args...)}
}

type command struct {
	name    string
	summary string
	run     func(ctx context.Context, args []string, stdout, stderr io.Writer) error
}

var commands = []command{
	{"batch", "render every prompt of a file, N iterations, via DreamStudio", runBatch},
	{"single", "render one prompt to one file via DreamStudio", runSingle},
	{"deepai", "render one prompt with a negative prompt via deepai.org", runDeepAI},
	{"gemini", "render one prompt via Gemini", runGemini},
	{"styles", "list DreamStudio style presets", runStyles},
	{"engines", "list DreamStudio engines", runEngines},
}

func main() {
	os.Exit(cliMain(os.Args[1:], os.Stdout, os.Stderr))
}

// cliMain runs one subcommand and returns the process exit code. An interrupt
// cancels the running command.
func cliMain(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		printUsage(stderr)
		return exitUsage
	}
	switch args[0] {
	case "-h", "-help", "--help", "help":
		printUsage(stdout)
		return exitOK
	}

	for _, c := range commands {
		if c.name != args[0] {
			continue
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		err := c.run(ctx, args[1:], stdout, stderr)
		stop()
		return exitCode(err, stderr)
	}

	fmt.Fprintf(stderr, "unknown command %q\n\n", args[0])
	printUsage(stderr)
	return exitUsage
}

func exitCode(err error, stderr io.Writer) int {
	if err == nil || errors.Is(err, flag.ErrHelp) {
		return exitOK
	}
	fmt.Fprintf(stderr, "error: %v\n", err)

	var pErr *imagebatch.ProviderError
	if errors.As(err, &pErr) && pErr.Provider == imagebatch.ProviderStability {
		if msg := stability.ErrorMessage(pErr.Body); msg != pErr.Body {
			fmt.Fprintf(stderr, "DreamStudio: %s\n", msg)
		}
	}

	var uErr *usageError
	if errors.As(err, &uErr) {
		return exitUsage
	}
	return exitFailure
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "usage: imagebatch <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "commands:")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-8s %s\n", c.name, c.summary)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "run 'imagebatch <command> -h' for command flags")
}
