package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/treemirror/treemirror/pkg/runlock"
)

func TestNewDefaultValidates(t *testing.T) {
	cfg := NewDefault()
	cfg.Source = t.TempDir()
	cfg.Replica = t.TempDir()

	require.NoError(t, cfg.Validate(true))
	assert.Equal(t, 4, cfg.Engine.Performance.Workers)
	assert.Equal(t, 256, cfg.Engine.Performance.BufferSizeKB)
	assert.Equal(t, 3, cfg.Mirror.RetryCount)
	assert.True(t, cfg.Engine.Metrics)
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, NewDefault().Engine, cfg.Engine)
}

func TestGenerateLoadRoundTrip(t *testing.T) {
	replica := t.TempDir()

	cfg := NewDefault()
	cfg.Source = "/data/photos"
	cfg.Replica = replica
	cfg.Engine.Performance.Workers = 7
	cfg.Mirror.UserExcludeFiles = []string{"*.iso"}
	require.NoError(t, Generate(cfg))

	loaded, err := Load(replica)
	require.NoError(t, err)
	assert.Equal(t, "/data/photos", loaded.Source)
	assert.Equal(t, replica, loaded.Replica)
	assert.Equal(t, 7, loaded.Engine.Performance.Workers)
	assert.Equal(t, []string{"*.iso"}, loaded.Mirror.UserExcludeFiles)
}

func TestLoadRejectsCorruptFile(t *testing.T) {
	replica := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(replica, ConfigFileName), []byte("{not json"), 0644))

	_, err := Load(replica)
	assert.Error(t, err)
}

func TestValidateRejectsNestedPaths(t *testing.T) {
	base := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(base, "src", "inner"), 0755))

	testCases := []struct {
		name    string
		source  string
		replica string
	}{
		{"same directory", filepath.Join(base, "src"), filepath.Join(base, "src")},
		{"replica inside source", filepath.Join(base, "src"), filepath.Join(base, "src", "inner")},
		{"source inside replica", filepath.Join(base, "src", "inner"), filepath.Join(base, "src")},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := NewDefault()
			cfg.Source = tc.source
			cfg.Replica = tc.replica
			assert.Error(t, cfg.Validate(true))
		})
	}

	// Sibling directories with a shared name prefix are fine.
	cfg := NewDefault()
	cfg.Source = filepath.Join(base, "src")
	cfg.Replica = filepath.Join(base, "src-mirror")
	assert.NoError(t, cfg.Validate(true))
}

func TestValidateRejectsBadValues(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()

	newValid := func() Config {
		cfg := NewDefault()
		cfg.Source = src
		cfg.Replica = dst
		return cfg
	}

	cfg := newValid()
	cfg.Source = ""
	assert.Error(t, cfg.Validate(true), "empty source must be rejected when checked")
	assert.NoError(t, cfg.Validate(false), "empty source is fine when not checked")

	cfg = newValid()
	cfg.Replica = ""
	assert.Error(t, cfg.Validate(true))

	cfg = newValid()
	cfg.Engine.Performance.Workers = 0
	assert.Error(t, cfg.Validate(true))

	cfg = newValid()
	cfg.Engine.Performance.BufferSizeKB = 0
	assert.Error(t, cfg.Validate(true))

	cfg = newValid()
	cfg.Mirror.RetryCount = -1
	assert.Error(t, cfg.Validate(true))

	cfg = newValid()
	cfg.Mirror.UserExcludeFiles = []string{"[unclosed"}
	assert.Error(t, cfg.Validate(true))
}

func TestValidateRejectsMissingSource(t *testing.T) {
	cfg := NewDefault()
	cfg.Source = filepath.Join(t.TempDir(), "does-not-exist")
	cfg.Replica = t.TempDir()
	assert.Error(t, cfg.Validate(true))
}

func TestExcludeFilesContainSystemPatterns(t *testing.T) {
	cfg := NewDefault()
	files := cfg.Mirror.ExcludeFiles()
	assert.Contains(t, files, ConfigFileName)
	assert.Contains(t, files, runlock.LockFileName)

	// User patterns are merged without duplicating defaults.
	cfg.Mirror.UserExcludeFiles = []string{"*.tmp", "*.iso"}
	files = cfg.Mirror.ExcludeFiles()
	assert.Contains(t, files, "*.iso")
	occurrences := 0
	for _, f := range files {
		if f == "*.tmp" {
			occurrences++
		}
	}
	assert.Equal(t, 1, occurrences)
}

func TestMergeConfigWithFlags(t *testing.T) {
	base := NewDefault()
	base.Source = "/old/source"

	merged := MergeConfigWithFlags(base, map[string]any{
		"source":            "/new/source",
		"replica":           "/new/replica",
		"dry-run":           true,
		"fail-fast":         true,
		"workers":           9,
		"retry-wait":        30,
		"user-exclude-dirs": []string{"cache"},
		"log-level":         "debug",
	})

	assert.Equal(t, "/new/source", merged.Source)
	assert.Equal(t, "/new/replica", merged.Replica)
	assert.True(t, merged.Runtime.DryRun)
	assert.True(t, merged.Engine.FailFast)
	assert.Equal(t, 9, merged.Engine.Performance.Workers)
	assert.Equal(t, 30, merged.Mirror.RetryWaitSeconds)
	assert.Equal(t, []string{"cache"}, merged.Mirror.UserExcludeDirs)
	assert.Equal(t, "debug", merged.LogLevel)

	// Untouched fields keep their base values.
	assert.Equal(t, base.Engine.Performance.BufferSizeKB, merged.Engine.Performance.BufferSizeKB)
	assert.Equal(t, base.Mirror.RetryCount, merged.Mirror.RetryCount)

	// The base itself is not mutated.
	assert.Equal(t, "/old/source", base.Source)
	assert.False(t, base.Runtime.DryRun)
}
