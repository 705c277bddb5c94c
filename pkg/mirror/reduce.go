package mirror

// The reducer drains the orphan directory queue to a fixed point. Each
// pass removes every queued directory that has become empty; removing a
// child directory can empty its parent, so passes repeat until the queue
// is empty or a pass makes no progress. Insertion order happens to be
// walk order (parents before children), so most trees collapse in a
// handful of passes: one per level of nesting, deepest first.

import (
	"context"
	"fmt"

	"github.com/treemirror/treemirror/pkg/fsx"
	"github.com/treemirror/treemirror/pkg/pathmap"
	"github.com/treemirror/treemirror/pkg/sharded"
)

type dirReducer struct {
	provider fsx.Provider
	reporter Reporter
	metrics  Metrics

	dryRun  bool
	replica string

	queue *DirQueue
	errs  *sharded.Map[error]
}

func newDirReducer(
	provider fsx.Provider,
	reporter Reporter,
	metrics Metrics,
	dryRun bool,
	queue *DirQueue,
	errs *sharded.Map[error],
) *dirReducer {
	return &dirReducer{
		provider: provider,
		reporter: reporter,
		metrics:  metrics,
		dryRun:   dryRun,
		queue:    queue,
		errs:     errs,
	}
}

// run deletes the queued orphan directories, repeating passes until the
// queue drains. Returns *ReductionStuckError when a full pass removes
// nothing while directories remain.
func (d *dirReducer) run(ctx context.Context, replicaRoot string) error {
	d.replica = replicaRoot

	if d.dryRun {
		// No files were actually deleted, so live child counts would claim
		// every queued directory is still occupied. Report what a real run
		// would remove instead.
		for _, relPathKey := range d.queue.Keys() {
			d.metrics.AddDirsDeleted(1)
			d.reporter.Report(Outcome{RelPathKey: relPathKey, Kind: ActionDeleteDir})
			d.queue.Remove(relPathKey)
		}
		return nil
	}

	for d.queue.Len() > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}

		progress := 0
		for _, relPathKey := range d.queue.Keys() {
			removed, err := d.removeIfEmpty(relPathKey)
			if err != nil {
				d.failEntry(relPathKey, err)
				d.queue.Remove(relPathKey)
				progress++ // The entry left the queue; the pass is not stuck.
				continue
			}
			if removed {
				progress++
			}
		}

		if progress == 0 && d.queue.Len() > 0 {
			return &ReductionStuckError{Stuck: d.queue.Keys()}
		}
	}
	return nil
}

// removeIfEmpty deletes the directory when its child count is zero and
// reports whether the queue shrank.
func (d *dirReducer) removeIfEmpty(relPathKey string) (bool, error) {
	replicaPath := pathmap.Rebase(relPathKey, d.replica)

	exists, err := d.provider.Exists(replicaPath, fsx.KindDir)
	if err != nil {
		return false, fmt.Errorf("failed to check orphan directory %s: %w", relPathKey, err)
	}
	if !exists {
		// Already gone, e.g. removed along with a deleted ancestor.
		d.queue.Remove(relPathKey)
		return true, nil
	}

	count, err := d.provider.ChildCount(replicaPath)
	if err != nil {
		return false, fmt.Errorf("failed to count children of %s: %w", relPathKey, err)
	}
	if count > 0 {
		return false, nil
	}

	if err := d.provider.RemoveDir(replicaPath); err != nil {
		return false, fmt.Errorf("failed to delete orphan directory %s: %w", relPathKey, err)
	}
	d.queue.Remove(relPathKey)
	d.metrics.AddDirsDeleted(1)
	d.reporter.Report(Outcome{RelPathKey: relPathKey, Kind: ActionDeleteDir})
	return true, nil
}

func (d *dirReducer) failEntry(relPathKey string, err error) {
	d.errs.Store(relPathKey, err)
	d.metrics.AddFailures(1)
	d.reporter.Report(Outcome{RelPathKey: relPathKey, Kind: ActionDeleteDir, Err: err})
}
