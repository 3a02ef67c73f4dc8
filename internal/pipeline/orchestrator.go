package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dgallion1/epubmaker/internal/config"
)

// Orchestrator queues rebuilds of one book for serve mode. A single worker
// drains the queue so no two runs write the output tree at once.
type Orchestrator struct {
	builds *BuildStore
	queue  chan *Build
	worker *Worker
	log    *slog.Logger
	cfg    config.Config

	mu     sync.RWMutex
	latest *Result

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewOrchestrator creates the pipeline for sources.
func NewOrchestrator(cfg config.Config, sources []string, log *slog.Logger) (*Orchestrator, error) {
	builder, err := NewBuilder(cfg, log)
	if err != nil {
		return nil, err
	}
	o := &Orchestrator{
		builds: NewBuildStore(cfg.BuildTTL),
		queue:  make(chan *Build, cfg.MaxQueueSize),
		worker: NewWorker(builder, cfg.SourceRoot, cfg.OutputRoot, sources, log),
		log:    log,
		cfg:    cfg,
	}
	return o, nil
}

// Start launches the worker goroutine.
func (o *Orchestrator) Start(ctx context.Context) {
	workerCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		for {
			select {
			case <-workerCtx.Done():
				return
			case b, ok := <-o.queue:
				if !ok {
					return
				}
				if res := o.worker.Process(workerCtx, b); res != nil {
					o.mu.Lock()
					o.latest = res
					o.mu.Unlock()
				}
			}
		}
	}()

	// Start build store cleanup.
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C:
				o.builds.Cleanup()
			}
		}
	}()
}

// Stop gracefully shuts down the pipeline.
func (o *Orchestrator) Stop() {
	if o.cancel != nil {
		o.cancel()
	}
	close(o.queue)
	o.wg.Wait()
}

// Submit queues a build for processing.
func (o *Orchestrator) Submit(b *Build) error {
	o.builds.Put(b)
	select {
	case o.queue <- b:
		return nil
	default:
		b.SetStatus(StatusFailed, "queue_full")
		return fmt.Errorf("build queue is full (%d)", o.cfg.MaxQueueSize)
	}
}

// GetBuild returns a build by ID.
func (o *Orchestrator) GetBuild(id string) *Build {
	return o.builds.Get(id)
}

// Latest returns the most recent successful run, or nil.
func (o *Orchestrator) Latest() *Result {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.latest
}

// QueueDepth returns current queue depth.
func (o *Orchestrator) QueueDepth() int {
	return len(o.queue)
}

// Config returns the configuration builds run with.
func (o *Orchestrator) Config() config.Config {
	return o.cfg
}
