package pipeline

import (
	"context"
	"log/slog"
	"path/filepath"
)

// Worker turns a queued Build into a finished packaging run.
type Worker struct {
	builder    *Builder
	sourceRoot string
	sources    []string
	skipDirs   []string
	log        *slog.Logger
}

// NewWorker creates a worker that rediscovers sources on every build.
// The output's META-INF and OPS directories are never treated as sources.
func NewWorker(builder *Builder, sourceRoot, outputRoot string, sources []string, log *slog.Logger) *Worker {
	return &Worker{
		builder:    builder,
		sourceRoot: sourceRoot,
		sources:    sources,
		skipDirs: []string{
			filepath.Join(outputRoot, "OPS"),
			filepath.Join(outputRoot, "META-INF"),
		},
		log: log,
	}
}

// Process runs discovery and packaging for a build.
func (w *Worker) Process(ctx context.Context, b *Build) *Result {
	log := w.log.With("build_id", b.ID)

	// Phase 1: Discover
	b.SetStatus(StatusDiscovering, "discovering sources")
	docs, err := Discover(w.sourceRoot, w.sources, w.skipDirs...)
	if err != nil {
		log.Error("discovery failed", "error", err)
		b.AddError(err.Error())
		b.SetStatus(StatusFailed, "discovering")
		return nil
	}

	// Phase 2: Build
	res, err := w.builder.Run(ctx, docs, b)
	if err != nil {
		log.Error("build failed", "error", err)
		b.AddError(err.Error())
		b.SetStatus(StatusFailed, "building")
		return nil
	}

	b.SetResult(res)
	b.SetStatus(StatusCompleted, "done")
	return res
}
