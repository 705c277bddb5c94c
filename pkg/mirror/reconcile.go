package mirror

// The forward pass uses a producer-consumer pipeline. A single producer
// goroutine walks the source tree through the provider and sends one item
// per entry to a pool of workers. Each worker performs the I/O for its
// item: creating the replica directory, or deciding copy/skip for a file
// by fingerprinting both sides. Decisions stream out as Outcomes; nothing
// is buffered per-tree, so very large trees need no unbounded memory.
//
// The reconciliation pass never deletes. Deletions belong to the cleanup
// pass, which only starts once every worker here has finished.

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/treemirror/treemirror/pkg/fingerprint"
	"github.com/treemirror/treemirror/pkg/fsx"
	"github.com/treemirror/treemirror/pkg/pathmap"
	"github.com/treemirror/treemirror/pkg/plog"
	"github.com/treemirror/treemirror/pkg/sharded"
)

type reconcileItem struct {
	relPathKey string
	kind       fsx.Kind
}

type reconciler struct {
	provider   fsx.Provider
	comparator *fingerprint.Comparator
	reporter   Reporter
	metrics    Metrics

	workers    int
	retryCount int
	retryWait  time.Duration
	dryRun     bool
	failFast   bool

	fileExclusions exclusionSet
	dirExclusions  exclusionSet

	src     string
	replica string

	ctx    context.Context
	cancel context.CancelFunc

	// readyDirCache tracks replica directories already verified or created
	// by any worker, preventing duplicate provider calls across the pool.
	readyDirCache *sharded.Set

	// dirGroup deduplicates concurrent creation requests for the same
	// directory: only the first worker performs the I/O, the rest wait for
	// its result.
	dirGroup singleflight.Group

	// errs records non-fatal per-entry failures, keyed by relative path.
	errs *sharded.Map[error]

	items        chan reconcileItem
	criticalErrs chan error
	wg           sync.WaitGroup
}

func newReconciler(
	provider fsx.Provider,
	comparator *fingerprint.Comparator,
	reporter Reporter,
	metrics Metrics,
	workers, retryCount int,
	retryWait time.Duration,
	dryRun, failFast bool,
	fileExclusions, dirExclusions exclusionSet,
	errs *sharded.Map[error],
) *reconciler {
	if workers <= 0 {
		workers = 1
	}
	return &reconciler{
		provider:       provider,
		comparator:     comparator,
		reporter:       reporter,
		metrics:        metrics,
		workers:        workers,
		retryCount:     retryCount,
		retryWait:      retryWait,
		dryRun:         dryRun,
		failFast:       failFast,
		fileExclusions: fileExclusions,
		dirExclusions:  dirExclusions,
		readyDirCache:  sharded.NewSet(),
		errs:           errs,
		items:          make(chan reconcileItem, workers*64),
		criticalErrs:   make(chan error, 1),
	}
}

// run walks the source tree and reconciles the replica against it. The
// returned error is critical (walk failure at the root, or the first entry
// error in fail-fast mode); per-entry failures are recorded in errs and
// reported as failed Outcomes instead.
func (r *reconciler) run(ctx context.Context, srcRoot, replicaRoot string) error {
	r.src = srcRoot
	r.replica = replicaRoot
	r.ctx, r.cancel = context.WithCancel(ctx)
	defer r.cancel()

	// The replica root was materialized during root setup.
	r.readyDirCache.Store(".")

	for i := 0; i < r.workers; i++ {
		r.wg.Add(1)
		go r.worker()
	}
	go r.producer()

	r.wg.Wait()

	select {
	case err := <-r.criticalErrs:
		return fmt.Errorf("critical reconcile error: %w", err)
	default:
	}
	return ctx.Err()
}

// failEntry records a non-fatal per-entry failure and keeps the run going,
// unless fail-fast mode promotes it to a critical error.
func (r *reconciler) failEntry(relPathKey string, kind ActionKind, err error) {
	r.errs.Store(relPathKey, err)
	r.metrics.AddFailures(1)
	r.reporter.Report(Outcome{RelPathKey: relPathKey, Kind: kind, Err: err})
	if r.failFast {
		select {
		case r.criticalErrs <- err:
		default:
		}
		r.cancel()
	}
}

// producer walks the source tree and feeds items to the workers.
func (r *reconciler) producer() {
	defer close(r.items)

	err := fsx.Walk(r.provider, r.src, func(path string, kind fsx.Kind, walkErr error) error {
		select {
		case <-r.ctx.Done():
			return r.ctx.Err()
		default:
		}

		relPathKey, relErr := pathmap.Relativize(r.src, path)
		if relErr != nil {
			return relErr
		}

		if walkErr != nil {
			// An unreadable source root aborts the run; anything deeper is
			// logged and skipped so one bad subtree cannot stop the walk.
			if relPathKey == "." {
				return fmt.Errorf("source root is unreadable: %w", walkErr)
			}
			plog.Warn("SKIP", "reason", "error listing source directory", "path", relPathKey, "error", walkErr)
			return nil
		}

		if relPathKey == "." {
			return nil // Root setup already handled the replica root.
		}

		r.metrics.AddEntriesProcessed(1)

		if r.isExcluded(relPathKey, kind) {
			plog.Notice("EXCL", "reason", "excluded by pattern", "path", relPathKey)
			if kind == fsx.KindDir {
				r.metrics.AddDirsExcluded(1)
				return fsx.SkipDir
			}
			r.metrics.AddFilesExcluded(1)
			return nil
		}

		select {
		case <-r.ctx.Done():
			return r.ctx.Err()
		case r.items <- reconcileItem{relPathKey: relPathKey, kind: kind}:
			return nil
		}
	})

	if err != nil && r.ctx.Err() == nil {
		select {
		case r.criticalErrs <- fmt.Errorf("source walk failed: %w", err):
		default:
			plog.Warn("Source walk failed, but a critical error is already pending", "error", err)
		}
		r.cancel()
	}
}

func (r *reconciler) isExcluded(relPathKey string, kind fsx.Kind) bool {
	basename := pathmap.Base(relPathKey)
	if kind == fsx.KindDir {
		return r.dirExclusions.matches(relPathKey, basename)
	}
	return r.fileExclusions.matches(relPathKey, basename)
}

// worker consumes items and performs the per-entry I/O.
func (r *reconciler) worker() {
	defer r.wg.Done()

	for {
		select {
		case <-r.ctx.Done():
			return
		case item, ok := <-r.items:
			if !ok {
				return
			}
			if item.kind == fsx.KindDir {
				if err := r.ensureDirectory(item.relPathKey); err != nil {
					r.failEntry(item.relPathKey, ActionCreateDir, err)
				}
				continue
			}
			r.processFile(item.relPathKey)
		}
	}
}

// ensureDirectory guarantees that the replica directory for relPathKey
// exists. Directories that already exist are not re-created and produce no
// Outcome. Concurrent requests for the same path are collapsed through the
// singleflight group.
func (r *reconciler) ensureDirectory(relPathKey string) error {
	if r.readyDirCache.Has(relPathKey) {
		return nil
	}

	_, err, _ := r.dirGroup.Do(relPathKey, func() (any, error) {
		if r.readyDirCache.Has(relPathKey) {
			return nil, nil
		}

		// Parents first, so a deep file item arriving before its ancestor
		// directory items still finds the whole chain in place.
		if parent := pathmap.Parent(relPathKey); parent != "." {
			if err := r.ensureDirectory(parent); err != nil {
				return nil, err
			}
		}

		replicaPath := pathmap.Rebase(relPathKey, r.replica)

		isDir, err := r.provider.Exists(replicaPath, fsx.KindDir)
		if err != nil {
			return nil, fmt.Errorf("failed to check replica directory %s: %w", relPathKey, err)
		}
		if isDir {
			r.readyDirCache.Store(relPathKey)
			return nil, nil
		}

		occupied, err := r.provider.Exists(replicaPath, fsx.KindAny)
		if err != nil {
			return nil, fmt.Errorf("failed to check replica path %s: %w", relPathKey, err)
		}
		if occupied {
			return nil, fmt.Errorf("%w: %s: file blocks directory creation", ErrKindMismatch, relPathKey)
		}

		if !r.dryRun {
			if err := r.provider.Mkdir(replicaPath); err != nil {
				return nil, fmt.Errorf("failed to create replica directory %s: %w", relPathKey, err)
			}
		}

		r.readyDirCache.Store(relPathKey)
		r.metrics.AddDirsCreated(1)
		r.reporter.Report(Outcome{RelPathKey: relPathKey, Kind: ActionCreateDir})
		return nil, nil
	})
	return err
}

// processFile decides copy/skip for a single source file and executes the
// decision. Content equality is decided exclusively by fingerprint; replica
// timestamps are never consulted.
func (r *reconciler) processFile(relPathKey string) {
	srcPath := pathmap.Rebase(relPathKey, r.src)
	replicaPath := pathmap.Rebase(relPathKey, r.replica)

	if parent := pathmap.Parent(relPathKey); parent != "." {
		if err := r.ensureDirectory(parent); err != nil {
			r.failEntry(relPathKey, ActionCopyNew,
				fmt.Errorf("failed to ensure parent directory %s: %w", parent, err))
			return
		}
	}

	hasFile, err := r.provider.Exists(replicaPath, fsx.KindFile)
	if err != nil {
		r.failEntry(relPathKey, ActionCopyNew, fmt.Errorf("failed to check replica file %s: %w", relPathKey, err))
		return
	}

	if !hasFile {
		occupied, err := r.provider.Exists(replicaPath, fsx.KindAny)
		if err != nil {
			r.failEntry(relPathKey, ActionCopyNew, fmt.Errorf("failed to check replica path %s: %w", relPathKey, err))
			return
		}
		if occupied {
			r.failEntry(relPathKey, ActionCopyNew,
				fmt.Errorf("%w: %s: directory blocks file copy", ErrKindMismatch, relPathKey))
			return
		}
		r.copyFile(srcPath, replicaPath, relPathKey, ActionCopyNew)
		return
	}

	srcFp, err := r.comparator.Fingerprint(srcPath)
	if err != nil {
		r.failEntry(relPathKey, ActionSkip, err)
		return
	}
	replicaFp, err := r.comparator.Fingerprint(replicaPath)
	if err != nil {
		r.failEntry(relPathKey, ActionSkip, err)
		return
	}

	if fingerprint.Equal(srcFp, replicaFp) {
		r.metrics.AddFilesUpToDate(1)
		r.reporter.Report(Outcome{RelPathKey: relPathKey, Kind: ActionSkip})
		return
	}
	r.copyFile(srcPath, replicaPath, relPathKey, ActionCopyUpdated)
}

// copyFile executes a whole-file copy with the configured retry policy.
func (r *reconciler) copyFile(srcPath, replicaPath, relPathKey string, kind ActionKind) {
	if r.dryRun {
		r.recordCopy(relPathKey, kind)
		return
	}

	var lastErr error
	for attempt := 0; attempt < r.retryCount+1; attempt++ {
		if attempt > 0 {
			plog.Warn("Retrying file copy", "path", relPathKey,
				"attempt", fmt.Sprintf("%d/%d", attempt, r.retryCount), "after", r.retryWait)
			select {
			case <-r.ctx.Done():
				r.failEntry(relPathKey, kind, r.ctx.Err())
				return
			case <-time.After(r.retryWait):
			}
		}
		if lastErr = r.provider.CopyFile(srcPath, replicaPath); lastErr == nil {
			r.recordCopy(relPathKey, kind)
			return
		}
	}
	r.failEntry(relPathKey, kind,
		fmt.Errorf("failed to copy file to %s after %d attempts: %w", relPathKey, r.retryCount+1, lastErr))
}

func (r *reconciler) recordCopy(relPathKey string, kind ActionKind) {
	if kind == ActionCopyUpdated {
		r.metrics.AddFilesCopiedUpdated(1)
	} else {
		r.metrics.AddFilesCopiedNew(1)
	}
	r.reporter.Report(Outcome{RelPathKey: relPathKey, Kind: kind})
}
