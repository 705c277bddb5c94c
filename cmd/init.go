package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/treemirror/treemirror/pkg/buildinfo"
	"github.com/treemirror/treemirror/pkg/config"
	"github.com/treemirror/treemirror/pkg/plog"
	"github.com/treemirror/treemirror/pkg/preflight"
	"github.com/treemirror/treemirror/pkg/runlock"
)

// RunInit handles the logic for the 'init' command.
func RunInit(ctx context.Context, flagMap map[string]any) error {
	// For init, the replica flag is mandatory to know where to look/write.
	replica, ok := flagMap["replica"].(string)
	if !ok || replica == "" {
		return fmt.Errorf("the -replica flag is required for the init operation")
	}

	absReplicaPath, err := filepath.Abs(replica)
	if err != nil {
		return fmt.Errorf("could not determine absolute replica path for %s: %w", replica, err)
	}

	var baseConfig config.Config

	initDefault := false
	if v, ok := flagMap["default"]; ok {
		initDefault = v.(bool)
	}

	if initDefault {
		// Check for force flag to bypass confirmation
		force := false
		if f, ok := flagMap["force"]; ok {
			force = f.(bool)
		}

		if !force {
			absConfigFilePath := filepath.Join(absReplicaPath, config.ConfigFileName)
			if _, err := os.Stat(absConfigFilePath); err == nil {
				fmt.Printf("WARNING: Configuration file already exists at %s.\n", absConfigFilePath)
				fmt.Printf("Using -default will overwrite it with default values. All custom settings will be lost.\n")
				if !PromptForConfirmation("Are you sure you want to continue?", false) {
					plog.Info(buildinfo.Name + " init operation canceled.")
					return nil
				}
			}
		}
		baseConfig = config.NewDefault()
		baseConfig.Replica = absReplicaPath
	} else {
		// Try to load existing config to preserve settings.
		// If it fails (e.g. corrupt JSON or path mismatch), we fall back to defaults.
		// Note: config.Load returns NewDefault() if the file simply doesn't exist.
		var err error
		baseConfig, err = config.Load(absReplicaPath)
		if err != nil {
			plog.Warn("Could not load existing configuration, starting with defaults.", "reason", err)
			baseConfig = config.NewDefault()
			baseConfig.Replica = absReplicaPath
		}
	}

	// Create a config from base merged with user flags.
	runConfig := config.MergeConfigWithFlags(baseConfig, flagMap)

	// Ensure source is set (either from existing config or flags).
	if runConfig.Source == "" {
		return fmt.Errorf("the -source flag is required for the init operation (unless updating an existing config)")
	}

	// CRITICAL: Validate the config for the run
	if err := runConfig.Validate(true); err != nil {
		return err
	}

	startTime := time.Now()

	// 1. Preflight checks: the replica directory must exist (or be
	// creatable) and be writable before we put a config file into it.
	if err := preflight.CheckSourceAccessible(runConfig.Source); err != nil {
		return err
	}
	if err := preflight.CheckReplicaAccessible(runConfig.Replica); err != nil {
		return err
	}

	if runConfig.Runtime.DryRun {
		plog.Info("[DRY RUN] Initialization complete. No changes made.")
		return nil
	}

	if err := preflight.CheckReplicaWritable(runConfig.Replica); err != nil {
		return err
	}

	// 2. Acquire the replica lock to serialize against a running mirror.
	lock, err := runlock.Acquire(runConfig.Replica)
	if err != nil {
		return fmt.Errorf("failed to acquire lock on replica directory: %w", err)
	}
	defer func() {
		if err := lock.Release(); err != nil {
			plog.Warn("Failed to release replica lock", "error", err)
		}
	}()

	// 3. Generate the config file.
	if err := config.Generate(runConfig); err != nil {
		return fmt.Errorf("failed to generate config file: %w", err)
	}

	duration := time.Since(startTime).Round(time.Millisecond)
	plog.Info(buildinfo.Name+" replica successfully initialized.", "duration", duration)
	return nil
}

// PromptForConfirmation prompts the user for a yes/no response.
func PromptForConfirmation(prompt string, defaultYes bool) bool {
	suffix := "[y/N]"
	if defaultYes {
		suffix = "[Y/n]"
	}
	fmt.Printf("%s %s: ", prompt, suffix)

	var response string
	_, _ = fmt.Scanln(&response)
	response = strings.ToLower(strings.TrimSpace(response))

	if response == "" {
		return defaultYes
	}
	return response == "y" || response == "yes"
}
