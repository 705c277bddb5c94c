package mirror

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/treemirror/treemirror/pkg/fingerprint"
	"github.com/treemirror/treemirror/pkg/fsx"
	"github.com/treemirror/treemirror/pkg/plog"
	"github.com/treemirror/treemirror/pkg/sharded"
)

// Options configures a mirror run. The zero value is usable: it selects
// worker counts from the machine, no exclusions, live execution, and
// logging of every decision.
type Options struct {
	// Workers is the size of the reconcile worker pool. Defaults to the
	// number of CPUs.
	Workers int
	// DeleteWorkers is the size of the orphan deletion pool. Defaults to
	// half of Workers, minimum one.
	DeleteWorkers int
	// BufferSizeKB is the per-worker copy and hash buffer size. Defaults
	// to 256.
	BufferSizeKB int

	// RetryCount is the number of additional copy attempts per file after
	// the first failure.
	RetryCount int
	// RetryWait is the pause between copy attempts.
	RetryWait time.Duration

	// DryRun reports every decision without touching the replica.
	DryRun bool
	// FailFast aborts the run on the first per-entry failure instead of
	// continuing.
	FailFast bool

	// ExcludeFiles and ExcludeDirs are gitignore-style patterns for
	// entries the mirror must neither copy nor delete.
	ExcludeFiles []string
	ExcludeDirs  []string

	Metrics  Metrics
	Reporter Reporter
}

// Summary holds the final counts of a run.
type Summary struct {
	DirsCreated        int64
	FilesCopiedNew     int64
	FilesCopiedUpdated int64
	FilesUpToDate      int64
	FilesDeleted       int64
	DirsDeleted        int64
	Failed             int64

	// Errors maps each failed relative path key to its error.
	Errors map[string]error

	// StuckDirs lists orphan directories the reducer could not empty.
	StuckDirs []string
}

// Orchestrator drives the three phases of a mirror run in strict order:
// reconcile the replica against the source, delete orphan files, then
// reduce emptied orphan directories. A phase only starts after the
// previous one has fully finished, so deletions never race with copies.
type Orchestrator struct {
	provider fsx.Provider
	opts     Options

	fileExclusions exclusionSet
	dirExclusions  exclusionSet
}

// New creates an Orchestrator over the given filesystem provider.
func New(provider fsx.Provider, opts Options) *Orchestrator {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.DeleteWorkers <= 0 {
		opts.DeleteWorkers = max(1, opts.Workers/2)
	}
	if opts.BufferSizeKB <= 0 {
		opts.BufferSizeKB = 256
	}
	if opts.Metrics == nil {
		opts.Metrics = &NoopMetrics{}
	}
	if opts.Reporter == nil {
		opts.Reporter = &LogReporter{DryRun: opts.DryRun}
	}
	return &Orchestrator{
		provider:       provider,
		opts:           opts,
		fileExclusions: makeExclusionSet(opts.ExcludeFiles),
		dirExclusions:  makeExclusionSet(opts.ExcludeDirs),
	}
}

// tallyReporter counts outcomes on their way to the configured reporter.
type tallyReporter struct {
	next Reporter

	dirsCreated        atomic.Int64
	filesCopiedNew     atomic.Int64
	filesCopiedUpdated atomic.Int64
	filesUpToDate      atomic.Int64
	filesDeleted       atomic.Int64
	dirsDeleted        atomic.Int64
}

func (t *tallyReporter) Report(o Outcome) {
	if o.Err == nil {
		switch o.Kind {
		case ActionCreateDir:
			t.dirsCreated.Add(1)
		case ActionCopyNew:
			t.filesCopiedNew.Add(1)
		case ActionCopyUpdated:
			t.filesCopiedUpdated.Add(1)
		case ActionSkip:
			t.filesUpToDate.Add(1)
		case ActionDeleteFile:
			t.filesDeleted.Add(1)
		case ActionDeleteDir:
			t.dirsDeleted.Add(1)
		}
	}
	t.next.Report(o)
}

// Run mirrors srcRoot into replicaRoot. Per-entry failures are collected
// into the Summary and do not abort the run; the returned error is
// reserved for root setup failures and phase-critical errors. The
// Summary is returned even alongside an error, with whatever counts had
// accumulated.
func (o *Orchestrator) Run(ctx context.Context, srcRoot, replicaRoot string) (*Summary, error) {
	tally := &tallyReporter{next: o.opts.Reporter}
	errs := sharded.NewMap[error]()
	summary := &Summary{}
	defer func() {
		summary.DirsCreated = tally.dirsCreated.Load()
		summary.FilesCopiedNew = tally.filesCopiedNew.Load()
		summary.FilesCopiedUpdated = tally.filesCopiedUpdated.Load()
		summary.FilesUpToDate = tally.filesUpToDate.Load()
		summary.FilesDeleted = tally.filesDeleted.Load()
		summary.DirsDeleted = tally.dirsDeleted.Load()
		summary.Failed = int64(errs.Count())
		summary.Errors = errs.Items()
	}()

	replicaReady, err := o.setupRoots(srcRoot, replicaRoot)
	if err != nil {
		return summary, err
	}

	reconciler := newReconciler(
		o.provider,
		o.newComparator(),
		tally,
		o.opts.Metrics,
		o.opts.Workers,
		o.opts.RetryCount,
		o.opts.RetryWait,
		o.opts.DryRun,
		o.opts.FailFast,
		o.fileExclusions,
		o.dirExclusions,
		errs,
	)
	if err := reconciler.run(ctx, srcRoot, replicaRoot); err != nil {
		return summary, err
	}

	if o.opts.FailFast && errs.Count() > 0 {
		return summary, errors.New("aborted after first failure")
	}

	// In a dry run against a replica that does not exist yet there is
	// nothing to clean up.
	if !replicaReady {
		return summary, nil
	}

	queue := NewDirQueue()
	collector := newOrphanCollector(
		o.provider,
		tally,
		o.opts.Metrics,
		o.opts.DeleteWorkers,
		o.opts.DryRun,
		o.fileExclusions,
		o.dirExclusions,
		queue,
		errs,
	)
	if err := collector.run(ctx, srcRoot, replicaRoot); err != nil {
		return summary, err
	}

	reducer := newDirReducer(o.provider, tally, o.opts.Metrics, o.opts.DryRun, queue, errs)
	if err := reducer.run(ctx, replicaRoot); err != nil {
		var stuck *ReductionStuckError
		if errors.As(err, &stuck) {
			// Leftover empty-looking directories are an anomaly worth
			// flagging, but not worth failing an otherwise clean run over.
			plog.Warn("Orphan directory reduction stalled", "dirs", stuck.Stuck)
			summary.StuckDirs = stuck.Stuck
			return summary, nil
		}
		return summary, err
	}

	return summary, nil
}

// setupRoots validates the source root and materializes the replica root.
// It reports whether the replica root exists (it always does after a live
// run; a dry run leaves a missing replica missing).
func (o *Orchestrator) setupRoots(srcRoot, replicaRoot string) (bool, error) {
	isDir, err := o.provider.Exists(srcRoot, fsx.KindDir)
	if err != nil {
		return false, fmt.Errorf("failed to check source root: %w", err)
	}
	if !isDir {
		exists, err := o.provider.Exists(srcRoot, fsx.KindAny)
		if err != nil {
			return false, fmt.Errorf("failed to check source root: %w", err)
		}
		if exists {
			return false, fmt.Errorf("source root %s is not a directory", srcRoot)
		}
		return false, fmt.Errorf("source root %s does not exist", srcRoot)
	}

	isDir, err = o.provider.Exists(replicaRoot, fsx.KindDir)
	if err != nil {
		return false, fmt.Errorf("failed to check replica root: %w", err)
	}
	if isDir {
		return true, nil
	}

	exists, err := o.provider.Exists(replicaRoot, fsx.KindAny)
	if err != nil {
		return false, fmt.Errorf("failed to check replica root: %w", err)
	}
	if exists {
		return false, fmt.Errorf("replica root %s exists but is not a directory", replicaRoot)
	}

	if o.opts.DryRun {
		return false, nil
	}
	if err := o.provider.Mkdir(replicaRoot); err != nil {
		return false, fmt.Errorf("failed to create replica root: %w", err)
	}
	return true, nil
}

func (o *Orchestrator) newComparator() *fingerprint.Comparator {
	c := fingerprint.NewComparator(o.provider, o.opts.BufferSizeKB)
	c.BytesHashed = o.opts.Metrics.AddBytesHashed
	return c
}
