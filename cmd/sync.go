package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/treemirror/treemirror/pkg/buildinfo"
	"github.com/treemirror/treemirror/pkg/config"
	"github.com/treemirror/treemirror/pkg/fsx"
	"github.com/treemirror/treemirror/pkg/mirror"
	"github.com/treemirror/treemirror/pkg/plog"
	"github.com/treemirror/treemirror/pkg/preflight"
	"github.com/treemirror/treemirror/pkg/runlock"
)

// progressInterval is how often the periodic metrics summary line is logged
// during a long-running mirror.
const progressInterval = 30 * time.Second

// RunSync handles the logic for the main mirror execution.
func RunSync(ctx context.Context, flagMap map[string]any) error {
	// For sync, the replica flag is mandatory.
	replicaPath, ok := flagMap["replica"].(string)
	if !ok || replicaPath == "" {
		return fmt.Errorf("the -replica flag is required to run a mirror")
	}

	// Load config from the replica directory, or use defaults if not found.
	loadedConfig, err := config.Load(replicaPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration from replica: %w", err)
	}

	// Merge the flag values over the loaded config to get the final run config.
	runConfig := config.MergeConfigWithFlags(loadedConfig, flagMap)

	// CRITICAL: Validate the config for the run
	if err := runConfig.Validate(true); err != nil {
		return err
	}

	// Set the global log level based on the final configuration.
	plog.SetLevel(plog.LevelFromString(runConfig.LogLevel))

	runConfig.LogSummary()

	// Preflight: friendly errors before any filesystem mutation.
	if err := preflight.CheckSourceAccessible(runConfig.Source); err != nil {
		return err
	}
	if err := preflight.CheckReplicaAccessible(runConfig.Replica); err != nil {
		return err
	}

	if !runConfig.Runtime.DryRun {
		if err := preflight.CheckReplicaWritable(runConfig.Replica); err != nil {
			return err
		}

		// Two processes mirroring into the same replica would race each
		// other's deletions.
		lock, err := runlock.Acquire(runConfig.Replica)
		if err != nil {
			return err
		}
		defer func() {
			if err := lock.Release(); err != nil {
				plog.Warn("Failed to release replica lock", "error", err)
			}
		}()
	}

	var metrics mirror.Metrics = &mirror.NoopMetrics{}
	if runConfig.Engine.Metrics {
		syncMetrics := &mirror.SyncMetrics{}
		syncMetrics.StartProgress("Mirror in progress", progressInterval)
		defer syncMetrics.StopProgress()
		metrics = syncMetrics
	}

	orchestrator := mirror.New(fsx.NewOS(runConfig.Engine.Performance.BufferSizeKB), mirror.Options{
		Workers:       runConfig.Engine.Performance.Workers,
		DeleteWorkers: runConfig.Engine.Performance.DeleteWorkers,
		BufferSizeKB:  runConfig.Engine.Performance.BufferSizeKB,
		RetryCount:    runConfig.Mirror.RetryCount,
		RetryWait:     time.Duration(runConfig.Mirror.RetryWaitSeconds) * time.Second,
		DryRun:        runConfig.Runtime.DryRun,
		FailFast:      runConfig.Engine.FailFast,
		ExcludeFiles:  runConfig.Mirror.ExcludeFiles(),
		ExcludeDirs:   runConfig.Mirror.ExcludeDirs(),
		Metrics:       metrics,
		Reporter:      &mirror.LogReporter{DryRun: runConfig.Runtime.DryRun},
	})

	startTime := time.Now()
	summary, err := orchestrator.Run(ctx, runConfig.Source, runConfig.Replica)
	duration := time.Since(startTime).Round(time.Millisecond)

	metrics.LogSummary("Mirror finished")

	if err != nil {
		return err // The error will be logged with full details by main()
	}
	if summary.Failed > 0 {
		for relPathKey, entryErr := range summary.Errors {
			plog.Warn("Entry failed", "path", relPathKey, "error", entryErr)
		}
		return fmt.Errorf("mirror completed with %d failed entries", summary.Failed)
	}

	plog.Info(buildinfo.Name+" finished successfully.", "duration", duration)
	return nil
}
