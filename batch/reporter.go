package batch

import (
	"context"
	"log/slog"
)

// Reporter receives progress for each item of a run. Started is called
// before the provider request, Saved after the file is written.
type Reporter interface {
	Started(ctx context.Context, p Progress)
	Saved(ctx context.Context, out Output, data []byte)
	Finished(ctx context.Context, summary *Summary)
}

// LogReporter reports progress as log lines.
type LogReporter struct {
	logger *slog.Logger
}

// NewLogReporter returns a Reporter logging to logger.
func NewLogReporter(logger *slog.Logger) *LogReporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogReporter{logger: logger}
}

func (r *LogReporter) Started(ctx context.Context, p Progress) {
	r.logger.InfoContext(ctx, "generating image",
		"prompt", p.Prompt,
		"iteration", p.Iteration,
		"index", p.Index,
		"total", p.Total,
	)
}

func (r *LogReporter) Saved(ctx context.Context, out Output, data []byte) {
	r.logger.InfoContext(ctx, "image saved",
		"path", out.Path,
		"bytes", len(data),
	)
}

func (r *LogReporter) Finished(ctx context.Context, summary *Summary) {
	r.logger.InfoContext(ctx, "done", "images", len(summary.Outputs))
}

// multiReporter fans out to several reporters in order.
type multiReporter []Reporter

// Reporters combines reporters; nil entries are skipped.
func Reporters(rs ...Reporter) Reporter {
	out := make(multiReporter, 0, len(rs))
	for _, r := range rs {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

func (m multiReporter) Started(ctx context.Context, p Progress) {
	for _, r := range m {
		r.Started(ctx, p)
	}
}

func (m multiReporter) Saved(ctx context.Context, out Output, data []byte) {
	for _, r := range m {
		r.Saved(ctx, out, data)
	}
}

func (m multiReporter) Finished(ctx context.Context, summary *Summary) {
	for _, r := range m {
		r.Finished(ctx, summary)
	}
}
