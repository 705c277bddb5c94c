package mirror

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/treemirror/treemirror/pkg/fsx"
)

// newTestTree populates a provider with directories and files under root.
func newTestTree(t *testing.T, provider *fsx.Mem, root string, dirs []string, files map[string]string) {
	t.Helper()
	require.NoError(t, provider.Mkdir(root))
	for _, d := range dirs {
		require.NoError(t, provider.Mkdir(root+"/"+d))
	}
	for p, content := range files {
		require.NoError(t, provider.WriteFile(root+"/"+p, []byte(content)))
	}
}

func runMirror(t *testing.T, provider *fsx.Mem, opts Options) (*Summary, error) {
	t.Helper()
	if opts.Workers == 0 {
		opts.Workers = 2
	}
	if opts.DeleteWorkers == 0 {
		opts.DeleteWorkers = 2
	}
	return New(provider, opts).Run(context.Background(), "src", "dst")
}

func TestRunCreatesCompleteReplica(t *testing.T) {
	provider := fsx.NewMem()
	newTestTree(t, provider, "src", []string{"empty"}, map[string]string{
		"a.txt":             "alpha",
		"docs/readme.txt":   "hello",
		"docs/img/logo.png": "binarybits",
	})

	summary, err := runMirror(t, provider, Options{})
	require.NoError(t, err)

	assert.EqualValues(t, 3, summary.FilesCopiedNew)
	assert.EqualValues(t, 3, summary.DirsCreated) // docs, docs/img, empty
	assert.EqualValues(t, 0, summary.Failed)

	for p, want := range map[string]string{
		"dst/a.txt":             "alpha",
		"dst/docs/readme.txt":   "hello",
		"dst/docs/img/logo.png": "binarybits",
	} {
		got, err := provider.ReadFile(p)
		require.NoError(t, err)
		assert.Equal(t, want, string(got))
	}

	isDir, err := provider.Exists("dst/empty", fsx.KindDir)
	require.NoError(t, err)
	assert.True(t, isDir, "empty source directories must be recreated")
}

func TestRunIsIdempotent(t *testing.T) {
	provider := fsx.NewMem()
	newTestTree(t, provider, "src", nil, map[string]string{
		"a.txt":           "alpha",
		"docs/readme.txt": "hello",
	})

	_, err := runMirror(t, provider, Options{})
	require.NoError(t, err)
	before := provider.Paths("dst")

	summary, err := runMirror(t, provider, Options{})
	require.NoError(t, err)

	assert.EqualValues(t, 0, summary.FilesCopiedNew)
	assert.EqualValues(t, 0, summary.FilesCopiedUpdated)
	assert.EqualValues(t, 0, summary.DirsCreated)
	assert.EqualValues(t, 0, summary.FilesDeleted)
	assert.EqualValues(t, 0, summary.DirsDeleted)
	assert.EqualValues(t, 2, summary.FilesUpToDate)
	assert.Equal(t, before, provider.Paths("dst"))
}

func TestChangedContentIsCopied(t *testing.T) {
	provider := fsx.NewMem()
	newTestTree(t, provider, "src", nil, map[string]string{
		"same.txt":    "unchanged",
		"changed.txt": "new content",
	})
	newTestTree(t, provider, "dst", nil, map[string]string{
		"same.txt":    "unchanged",
		"changed.txt": "old content",
	})

	summary, err := runMirror(t, provider, Options{})
	require.NoError(t, err)

	assert.EqualValues(t, 1, summary.FilesCopiedUpdated)
	assert.EqualValues(t, 1, summary.FilesUpToDate)

	got, err := provider.ReadFile("dst/changed.txt")
	require.NoError(t, err)
	assert.Equal(t, "new content", string(got))
}

func TestOrphansAreDeleted(t *testing.T) {
	provider := fsx.NewMem()
	newTestTree(t, provider, "src", nil, map[string]string{
		"keep.txt": "keep",
	})
	newTestTree(t, provider, "dst", nil, map[string]string{
		"keep.txt":           "keep",
		"stale.txt":          "stale",
		"a/b/c/file.txt":     "deep orphan",
		"a/b/sibling.txt":    "orphan",
		"emptydir/inner.txt": "orphan",
	})

	summary, err := runMirror(t, provider, Options{})
	require.NoError(t, err)

	assert.EqualValues(t, 4, summary.FilesDeleted)
	// a/b/c, a/b, a, emptydir all collapse once their files are gone.
	assert.EqualValues(t, 4, summary.DirsDeleted)
	assert.Empty(t, summary.StuckDirs)

	assert.Equal(t, []string{"dst", "dst/keep.txt"}, provider.Paths("dst"))
}

func TestReplicaConvergesToSource(t *testing.T) {
	// Replica {a.txt, old.txt} mirrored from source {docs/readme.txt} must
	// end as exactly {docs/readme.txt}.
	provider := fsx.NewMem()
	newTestTree(t, provider, "src", nil, map[string]string{
		"docs/readme.txt": "hello",
	})
	newTestTree(t, provider, "dst", nil, map[string]string{
		"a.txt":   "a",
		"old.txt": "old",
	})

	summary, err := runMirror(t, provider, Options{})
	require.NoError(t, err)

	assert.EqualValues(t, 1, summary.FilesCopiedNew)
	assert.EqualValues(t, 2, summary.FilesDeleted)
	assert.Equal(t, []string{"dst", "dst/docs", "dst/docs/readme.txt"}, provider.Paths("dst"))
}

func TestKindMismatchFailsEntryWithoutDeleting(t *testing.T) {
	t.Run("file blocks directory", func(t *testing.T) {
		provider := fsx.NewMem()
		newTestTree(t, provider, "src", nil, map[string]string{
			"node/child.txt": "content",
		})
		newTestTree(t, provider, "dst", nil, map[string]string{
			"node": "i am a file",
		})

		summary, err := runMirror(t, provider, Options{})
		require.NoError(t, err)

		assert.Positive(t, summary.Failed)
		found := false
		for _, entryErr := range summary.Errors {
			if errors.Is(entryErr, ErrKindMismatch) {
				found = true
			}
		}
		assert.True(t, found, "expected an ErrKindMismatch entry error, got %v", summary.Errors)

		// The conflicting file must survive: resolving the conflict is the
		// operator's decision.
		got, readErr := provider.ReadFile("dst/node")
		require.NoError(t, readErr)
		assert.Equal(t, "i am a file", string(got))
	})

	t.Run("directory blocks file", func(t *testing.T) {
		provider := fsx.NewMem()
		newTestTree(t, provider, "src", nil, map[string]string{
			"node": "i am a file",
		})
		newTestTree(t, provider, "dst", []string{"node"}, nil)

		summary, err := runMirror(t, provider, Options{})
		require.NoError(t, err)

		assert.EqualValues(t, 1, summary.Failed)
		require.Contains(t, summary.Errors, "node")
		assert.ErrorIs(t, summary.Errors["node"], ErrKindMismatch)

		stillDir, existsErr := provider.Exists("dst/node", fsx.KindDir)
		require.NoError(t, existsErr)
		assert.True(t, stillDir, "conflicting directory must not be deleted")
	})
}

func TestEntryFailureDoesNotAbortRun(t *testing.T) {
	provider := fsx.NewMem()
	newTestTree(t, provider, "src", nil, map[string]string{
		"good.txt": "good",
		"bad.txt":  "bad",
	})
	provider.FailHook = func(op, p string) error {
		if op == "copy" && p == "dst/bad.txt" {
			return fmt.Errorf("disk full")
		}
		return nil
	}

	summary, err := runMirror(t, provider, Options{})
	require.NoError(t, err, "per-entry failures must not abort the run")

	assert.EqualValues(t, 1, summary.FilesCopiedNew)
	assert.EqualValues(t, 1, summary.Failed)
	require.Contains(t, summary.Errors, "bad.txt")

	got, readErr := provider.ReadFile("dst/good.txt")
	require.NoError(t, readErr)
	assert.Equal(t, "good", string(got))
}

func TestFailedSourceIsNeverOrphaned(t *testing.T) {
	// A replica file whose copy failed still has a source counterpart, so
	// the cleanup pass must leave it alone.
	provider := fsx.NewMem()
	newTestTree(t, provider, "src", nil, map[string]string{
		"flaky.txt": "new",
	})
	newTestTree(t, provider, "dst", nil, map[string]string{
		"flaky.txt": "old",
	})
	provider.FailHook = func(op, p string) error {
		if op == "copy" && p == "dst/flaky.txt" {
			return fmt.Errorf("transient error")
		}
		return nil
	}

	summary, err := runMirror(t, provider, Options{})
	require.NoError(t, err)

	assert.EqualValues(t, 1, summary.Failed)
	assert.EqualValues(t, 0, summary.FilesDeleted)

	got, readErr := provider.ReadFile("dst/flaky.txt")
	require.NoError(t, readErr)
	assert.Equal(t, "old", string(got), "stale replica content must survive a failed copy")
}

func TestFailFastAbortsRun(t *testing.T) {
	provider := fsx.NewMem()
	files := map[string]string{}
	for i := 0; i < 50; i++ {
		files[fmt.Sprintf("file%02d.txt", i)] = "content"
	}
	newTestTree(t, provider, "src", nil, files)
	provider.FailHook = func(op, p string) error {
		if op == "copy" && p == "dst/file00.txt" {
			return fmt.Errorf("boom")
		}
		return nil
	}

	_, err := runMirror(t, provider, Options{Workers: 1, FailFast: true})
	require.Error(t, err)
}

func TestRetrySucceedsAfterTransientFailure(t *testing.T) {
	provider := fsx.NewMem()
	newTestTree(t, provider, "src", nil, map[string]string{
		"flaky.txt": "eventually",
	})
	attempts := 0
	provider.FailHook = func(op, p string) error {
		if op == "copy" && p == "dst/flaky.txt" {
			attempts++
			if attempts <= 2 {
				return fmt.Errorf("transient error %d", attempts)
			}
		}
		return nil
	}

	summary, err := runMirror(t, provider, Options{Workers: 1, RetryCount: 3})
	require.NoError(t, err)

	assert.EqualValues(t, 0, summary.Failed)
	assert.EqualValues(t, 1, summary.FilesCopiedNew)
	assert.Equal(t, 3, attempts)
}

func TestDryRunMakesNoChanges(t *testing.T) {
	t.Run("existing replica", func(t *testing.T) {
		provider := fsx.NewMem()
		newTestTree(t, provider, "src", nil, map[string]string{
			"new.txt":       "new",
			"dir/inner.txt": "inner",
		})
		newTestTree(t, provider, "dst", nil, map[string]string{
			"orphan.txt":     "orphan",
			"ghost/gone.txt": "gone",
		})
		before := provider.Paths("dst")

		summary, err := runMirror(t, provider, Options{DryRun: true})
		require.NoError(t, err)

		assert.Equal(t, before, provider.Paths("dst"), "dry run must not touch the replica")
		assert.EqualValues(t, 2, summary.FilesCopiedNew)
		assert.EqualValues(t, 1, summary.DirsCreated)
		assert.EqualValues(t, 2, summary.FilesDeleted)
		assert.EqualValues(t, 1, summary.DirsDeleted)
	})

	t.Run("missing replica", func(t *testing.T) {
		provider := fsx.NewMem()
		newTestTree(t, provider, "src", nil, map[string]string{
			"a.txt": "alpha",
		})

		summary, err := runMirror(t, provider, Options{DryRun: true})
		require.NoError(t, err)

		exists, existsErr := provider.Exists("dst", fsx.KindAny)
		require.NoError(t, existsErr)
		assert.False(t, exists, "dry run must not create the replica root")
		assert.EqualValues(t, 1, summary.FilesCopiedNew)
	})
}

func TestExclusionsAreNeitherCopiedNorDeleted(t *testing.T) {
	provider := fsx.NewMem()
	newTestTree(t, provider, "src", nil, map[string]string{
		"app.log":         "source log",
		"keep.txt":        "keep",
		"build/out.bin":   "artifact",
		"build/sub/x.txt": "artifact",
	})
	newTestTree(t, provider, "dst", nil, map[string]string{
		"stale.log":       "replica-only log",
		"build/local.bin": "replica-only artifact",
	})

	summary, err := runMirror(t, provider, Options{
		ExcludeFiles: []string{"*.log"},
		ExcludeDirs:  []string{"build"},
	})
	require.NoError(t, err)

	assert.EqualValues(t, 1, summary.FilesCopiedNew)
	assert.EqualValues(t, 0, summary.FilesDeleted)

	// Excluded source entries were not copied.
	exists, _ := provider.Exists("dst/app.log", fsx.KindAny)
	assert.False(t, exists)
	exists, _ = provider.Exists("dst/build/out.bin", fsx.KindAny)
	assert.False(t, exists)

	// Excluded replica entries were not deleted.
	exists, _ = provider.Exists("dst/stale.log", fsx.KindFile)
	assert.True(t, exists)
	exists, _ = provider.Exists("dst/build/local.bin", fsx.KindFile)
	assert.True(t, exists)
}

func TestStuckReductionIsReportedNotFatal(t *testing.T) {
	provider := fsx.NewMem()
	newTestTree(t, provider, "src", nil, map[string]string{
		"keep.txt": "keep",
	})
	newTestTree(t, provider, "dst", nil, map[string]string{
		"keep.txt":       "keep",
		"ghost/stay.txt": "cannot delete me",
	})
	provider.FailHook = func(op, p string) error {
		if op == "removefile" && p == "dst/ghost/stay.txt" {
			return fmt.Errorf("permission denied")
		}
		return nil
	}

	summary, err := runMirror(t, provider, Options{})
	require.NoError(t, err, "a stalled reduction must not fail the run")

	assert.EqualValues(t, 1, summary.Failed) // the undeletable file
	assert.Equal(t, []string{"ghost"}, summary.StuckDirs)

	exists, _ := provider.Exists("dst/ghost/stay.txt", fsx.KindFile)
	assert.True(t, exists)
}

func TestMissingSourceRootAborts(t *testing.T) {
	provider := fsx.NewMem()
	require.NoError(t, provider.Mkdir("dst"))

	_, err := runMirror(t, provider, Options{})
	require.Error(t, err)
}

func TestSourceRootAsFileAborts(t *testing.T) {
	provider := fsx.NewMem()
	require.NoError(t, provider.Mkdir("parent"))
	require.NoError(t, provider.WriteFile("src", []byte("not a dir")))

	_, err := runMirror(t, provider, Options{})
	require.Error(t, err)
}

func TestUnreadableSourceSubtreeIsSkipped(t *testing.T) {
	provider := fsx.NewMem()
	newTestTree(t, provider, "src", []string{"locked"}, map[string]string{
		"good.txt": "good",
	})
	provider.FailHook = func(op, p string) error {
		if op == "list" && p == "src/locked" {
			return fmt.Errorf("permission denied")
		}
		return nil
	}

	summary, err := runMirror(t, provider, Options{})
	require.NoError(t, err, "an unreadable subtree below the root must not abort the run")

	assert.EqualValues(t, 1, summary.FilesCopiedNew)
	got, readErr := provider.ReadFile("dst/good.txt")
	require.NoError(t, readErr)
	assert.Equal(t, "good", string(got))
}

func TestOutcomesAreStreamedToReporter(t *testing.T) {
	provider := fsx.NewMem()
	newTestTree(t, provider, "src", nil, map[string]string{
		"a.txt":      "alpha",
		"dir/b.txt":  "beta",
		"up-to-date": "same",
	})
	newTestTree(t, provider, "dst", nil, map[string]string{
		"up-to-date": "same",
		"orphan.txt": "orphan",
	})

	var mu sync.Mutex
	outcomes := map[string]ActionKind{}
	reporter := ReporterFunc(func(o Outcome) {
		mu.Lock()
		defer mu.Unlock()
		if o.Err == nil {
			outcomes[o.RelPathKey] = o.Kind
		}
	})

	_, err := runMirror(t, provider, Options{Reporter: reporter})
	require.NoError(t, err)

	assert.Equal(t, ActionCopyNew, outcomes["a.txt"])
	assert.Equal(t, ActionCreateDir, outcomes["dir"])
	assert.Equal(t, ActionCopyNew, outcomes["dir/b.txt"])
	assert.Equal(t, ActionSkip, outcomes["up-to-date"])
	assert.Equal(t, ActionDeleteFile, outcomes["orphan.txt"])
}
