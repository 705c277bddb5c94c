package mirror

// The cleanup pass walks the replica tree and removes entries that no
// longer exist in the source. Files are deleted through a small worker
// pool; directories are never deleted inline. They go onto a DirQueue
// instead, because a directory can only be removed once its own orphan
// descendants are gone, which is the reducer's job.

import (
	"context"
	"fmt"
	"sync"

	"github.com/treemirror/treemirror/pkg/fsx"
	"github.com/treemirror/treemirror/pkg/pathmap"
	"github.com/treemirror/treemirror/pkg/plog"
	"github.com/treemirror/treemirror/pkg/sharded"
)

type orphanCollector struct {
	provider fsx.Provider
	reporter Reporter
	metrics  Metrics

	workers int
	dryRun  bool

	fileExclusions exclusionSet
	dirExclusions  exclusionSet

	src     string
	replica string

	queue *DirQueue

	// errs shares the reconciler's failure map so the run reports one
	// consolidated set of per-entry errors.
	errs *sharded.Map[error]
}

func newOrphanCollector(
	provider fsx.Provider,
	reporter Reporter,
	metrics Metrics,
	workers int,
	dryRun bool,
	fileExclusions, dirExclusions exclusionSet,
	queue *DirQueue,
	errs *sharded.Map[error],
) *orphanCollector {
	if workers <= 0 {
		workers = 1
	}
	return &orphanCollector{
		provider:       provider,
		reporter:       reporter,
		metrics:        metrics,
		workers:        workers,
		dryRun:         dryRun,
		fileExclusions: fileExclusions,
		dirExclusions:  dirExclusions,
		queue:          queue,
		errs:           errs,
	}
}

// run walks the replica tree, deletes orphan files and queues orphan
// directories. An unreadable replica root aborts the run; per-entry
// failures only mark the entry and continue.
func (c *orphanCollector) run(ctx context.Context, srcRoot, replicaRoot string) error {
	c.src = srcRoot
	c.replica = replicaRoot

	deletions := make(chan string, c.workers*64)
	var wg sync.WaitGroup
	for i := 0; i < c.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for relPathKey := range deletions {
				c.deleteFile(relPathKey)
			}
		}()
	}

	err := fsx.Walk(c.provider, c.replica, func(path string, kind fsx.Kind, walkErr error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		relPathKey, relErr := pathmap.Relativize(c.replica, path)
		if relErr != nil {
			return relErr
		}

		if walkErr != nil {
			if relPathKey == "." {
				return fmt.Errorf("replica root is unreadable: %w", walkErr)
			}
			plog.Warn("SKIP", "reason", "error listing replica directory", "path", relPathKey, "error", walkErr)
			return nil
		}

		// The replica root itself is never an orphan.
		if relPathKey == "." {
			return nil
		}

		// Excluded entries are outside the mirror contract: they are neither
		// copied nor deleted, and their subtrees are left untouched.
		if c.isExcluded(relPathKey, kind) {
			if kind == fsx.KindDir {
				return fsx.SkipDir
			}
			return nil
		}

		srcPath := pathmap.Rebase(relPathKey, c.src)
		exists, existsErr := c.provider.Exists(srcPath, fsx.KindAny)
		if existsErr != nil {
			c.failEntry(relPathKey, kind, fmt.Errorf("failed to check source path %s: %w", relPathKey, existsErr))
			if kind == fsx.KindDir {
				return fsx.SkipDir
			}
			return nil
		}
		if exists {
			return nil
		}

		if kind == fsx.KindDir {
			// Keep descending: the directory's own orphan children must be
			// removed before the reducer can delete it.
			c.queue.Push(relPathKey)
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case deletions <- relPathKey:
			return nil
		}
	})

	close(deletions)
	wg.Wait()

	if err != nil {
		return fmt.Errorf("critical cleanup error: %w", err)
	}
	return nil
}

func (c *orphanCollector) isExcluded(relPathKey string, kind fsx.Kind) bool {
	basename := pathmap.Base(relPathKey)
	if kind == fsx.KindDir {
		return c.dirExclusions.matches(relPathKey, basename)
	}
	return c.fileExclusions.matches(relPathKey, basename)
}

func (c *orphanCollector) deleteFile(relPathKey string) {
	if !c.dryRun {
		if err := c.provider.RemoveFile(pathmap.Rebase(relPathKey, c.replica)); err != nil {
			c.failEntry(relPathKey, fsx.KindFile, fmt.Errorf("failed to delete orphan file %s: %w", relPathKey, err))
			return
		}
	}
	c.metrics.AddFilesDeleted(1)
	c.reporter.Report(Outcome{RelPathKey: relPathKey, Kind: ActionDeleteFile})
}

func (c *orphanCollector) failEntry(relPathKey string, kind fsx.Kind, err error) {
	c.errs.Store(relPathKey, err)
	c.metrics.AddFailures(1)
	action := ActionDeleteFile
	if kind == fsx.KindDir {
		action = ActionDeleteDir
	}
	c.reporter.Report(Outcome{RelPathKey: relPathKey, Kind: action, Err: err})
}
