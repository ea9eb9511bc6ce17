// SPDX-License-Identifier: MIT

package build

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/wikidated/wikidated/rdf"
	"github.com/wikidated/wikidated/wikidata"
	"github.com/wikidated/wikidated/wikidated"
)

// Metrics holds the driver's optional Prometheus instrumentation. A nil
// *Metrics (the zero value of DriverOptions.Metrics) disables
// instrumentation entirely; NewMetrics registers the promoted form of the
// driver's progress-bar state against reg.
type Metrics struct {
	tasksTotal     *prometheus.GaugeVec
	tasksCompleted *prometheus.GaugeVec
	taskDuration   *prometheus.HistogramVec
}

// NewMetrics creates and registers the driver's gauges and histogram
// against reg. Call once per process; pass the result to every
// DriverOptions sharing that registry.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		tasksTotal: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "wikidated",
			Name:      "build_tasks_total",
			Help:      "Number of tasks queued for a build stage.",
		}, []string{"stage"}),
		tasksCompleted: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "wikidated",
			Name:      "build_tasks_completed",
			Help:      "Number of tasks completed for a build stage.",
		}, []string{"stage"}),
		taskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "wikidated",
			Name:      "build_task_duration_seconds",
			Help:      "Wall-clock time spent building one shard or entity-streams file.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}, []string{"stage"})}
	reg.MustRegister(m.tasksTotal, m.tasksCompleted, m.taskDuration)
	return m
}

func (m *Metrics) observe(stage string, total, completed int, elapsed time.Duration) {
	if m == nil {
		return
	}
	if total >= 0 {
		m.tasksTotal.WithLabelValues(stage).Set(float64(total))
	}
	m.tasksCompleted.WithLabelValues(stage).Add(float64(completed))
	if completed > 0 {
		m.taskDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
	}
}

// Progress is called by a worker after each task to report how far that
// task has gotten; the driver relays it to an overall progress display.
// total is -1 when unknown in advance.
type Progress func(taskName string, n, total int)

// DriverOptions configures C8's process-pool fan-out.
type DriverOptions struct {
	// Workers caps pool size; the effective size is
	// min(Workers, number of shards). Zero means runtime.NumCPU().
	Workers int

	// ContinueOnError makes a worker's failure get logged and skipped
	// instead of canceling every other in-flight task.
	ContinueOnError bool

	Progress Progress

	// Metrics is optional; when set, the driver exports per-stage task
	// gauges and build-duration histograms through it.
	Metrics *Metrics
}

func (o DriverOptions) poolSize(numTasks int) int {
	workers := o.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > numTasks {
		workers = numTasks
	}
	if workers < 1 {
		workers = 1
	}
	return workers
}

func (o DriverOptions) report(name string, n, total int) {
	if o.Progress != nil {
		o.Progress(name, n, total)
	}
}

// ShardResult is one dump shard's build outcome.
type ShardResult struct {
	Shard       *wikidata.DumpPagesMetaHistory
	ArchivePath string
	Stats       EntityStreamsStats
	Err         error
}

// BuildEntityStreamsAll runs C5 across every shard, one task per shard, on
// a worker pool sized per opts. Each worker constructs its own RDF
// converter bound to the shared sites table during a one-time init, and
// never shares it across goroutines, mirroring C8's one-instance-per-
// worker contract for the external serializer runtime.
func BuildEntityStreamsAll(ctx context.Context, shards []*wikidata.DumpPagesMetaHistory, sites *wikidata.Sites, dataset, outDir string, logger *log.Logger, opts DriverOptions) ([]ShardResult, error) {
	results := make([]ShardResult, len(shards))
	tasks := make(chan int, len(shards))
	for i := range shards {
		tasks <- i
	}
	close(tasks)

	opts.Metrics.observe("entity_streams", len(shards), 0, 0)

	group, groupCtx := errgroup.WithContext(ctx)
	poolSize := opts.poolSize(len(shards))
	for w := 0; w < poolSize; w++ {
		group.Go(func() error {
			// Per-worker init: one converter instance, reused for every
			// task this worker picks up, never touched by another
			// goroutine.
			converter := rdf.NewConverter(sites)

			for {
				select {
				case <-groupCtx.Done():
					return groupCtx.Err()
				case i, more := <-tasks:
					if !more {
						return nil
					}
					shard := shards[i]
					name := filepath.Base(shard.Path)
					opts.report(name, 0, -1)
					start := time.Now()
					path, stats, err := BuildEntityStreams(shard, converter, dataset, outDir, logger)
					opts.Metrics.observe("entity_streams", -1, 1, time.Since(start))
					opts.report(name, 1, 1)
					if err != nil {
						logf(logger, "build: shard %s failed: %v", name, err)
						if opts.ContinueOnError {
							results[i] = ShardResult{Shard: shard, Err: err}
							continue
						}
						return fmt.Errorf("build: shard %s: %w", name, err)
					}
					results[i] = ShardResult{Shard: shard, ArchivePath: path, Stats: stats}
				}
			}
		})
	}

	if err := group.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

// SortedShardResult is one entity-streams file's C6 re-sort outcome.
type SortedShardResult struct {
	EntityStreams *wikidated.EntityStreamsFile
	ArchivePath   string
	Err           error
}

// BuildSortedEntityStreamsAll runs C6 across every entity-streams file on
// a worker pool sized per opts. Unlike C5, a worker here carries no
// per-task state to initialize, so the pool is a plain task channel.
func BuildSortedEntityStreamsAll(ctx context.Context, files []*wikidated.EntityStreamsFile, outDir string, logger *log.Logger, opts DriverOptions) ([]SortedShardResult, error) {
	results := make([]SortedShardResult, len(files))
	tasks := make(chan int, len(files))
	for i := range files {
		tasks <- i
	}
	close(tasks)

	opts.Metrics.observe("sorted_entity_streams", len(files), 0, 0)

	group, groupCtx := errgroup.WithContext(ctx)
	poolSize := opts.poolSize(len(files))
	for w := 0; w < poolSize; w++ {
		group.Go(func() error {
			for {
				select {
				case <-groupCtx.Done():
					return groupCtx.Err()
				case i, more := <-tasks:
					if !more {
						return nil
					}
					f := files[i]
					name := filepath.Base(f.Path)
					opts.report(name, 0, -1)
					start := time.Now()
					path, err := BuildSortedEntityStreams(f, outDir, logger)
					opts.Metrics.observe("sorted_entity_streams", -1, 1, time.Since(start))
					opts.report(name, 1, 1)
					if err != nil {
						logf(logger, "build: re-sorting %s failed: %v", name, err)
						if opts.ContinueOnError {
							results[i] = SortedShardResult{EntityStreams: f, Err: err}
							continue
						}
						return fmt.Errorf("build: re-sorting %s: %w", name, err)
					}
					results[i] = SortedShardResult{EntityStreams: f, ArchivePath: path}
				}
			}
		})
	}

	if err := group.Wait(); err != nil {
		return results, err
	}
	return results, nil
}
