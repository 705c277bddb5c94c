package mirror

import (
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/treemirror/treemirror/pkg/plog"
)

// Metrics defines the interface for collecting and reporting synchronization statistics.
type Metrics interface {
	AddEntriesProcessed(n int64)
	AddDirsCreated(n int64)
	AddFilesCopiedNew(n int64)
	AddFilesCopiedUpdated(n int64)
	AddFilesUpToDate(n int64)
	AddFilesDeleted(n int64)
	AddDirsDeleted(n int64)
	AddFilesExcluded(n int64)
	AddDirsExcluded(n int64)
	AddFailures(n int64)
	AddBytesHashed(n int64)
	LogSummary(msg string)

	StartProgress(msg string, interval time.Duration)
	StopProgress()
}

// SyncMetrics holds the atomic counters for tracking the run's progress.
// It is the concrete implementation of the Metrics interface.
type SyncMetrics struct {
	EntriesProcessed   atomic.Int64
	DirsCreated        atomic.Int64
	FilesCopiedNew     atomic.Int64
	FilesCopiedUpdated atomic.Int64
	FilesUpToDate      atomic.Int64
	FilesDeleted       atomic.Int64
	DirsDeleted        atomic.Int64
	FilesExcluded      atomic.Int64
	DirsExcluded       atomic.Int64
	Failures           atomic.Int64
	BytesHashed        atomic.Int64

	stopChan  chan struct{}
	startTime time.Time
}

func (m *SyncMetrics) AddEntriesProcessed(n int64)   { m.EntriesProcessed.Add(n) }
func (m *SyncMetrics) AddDirsCreated(n int64)        { m.DirsCreated.Add(n) }
func (m *SyncMetrics) AddFilesCopiedNew(n int64)     { m.FilesCopiedNew.Add(n) }
func (m *SyncMetrics) AddFilesCopiedUpdated(n int64) { m.FilesCopiedUpdated.Add(n) }
func (m *SyncMetrics) AddFilesUpToDate(n int64)      { m.FilesUpToDate.Add(n) }
func (m *SyncMetrics) AddFilesDeleted(n int64)       { m.FilesDeleted.Add(n) }
func (m *SyncMetrics) AddDirsDeleted(n int64)        { m.DirsDeleted.Add(n) }
func (m *SyncMetrics) AddFilesExcluded(n int64)      { m.FilesExcluded.Add(n) }
func (m *SyncMetrics) AddDirsExcluded(n int64)       { m.DirsExcluded.Add(n) }
func (m *SyncMetrics) AddFailures(n int64)           { m.Failures.Add(n) }
func (m *SyncMetrics) AddBytesHashed(n int64)        { m.BytesHashed.Add(n) }

// StartProgress begins logging a periodic summary line until StopProgress.
func (m *SyncMetrics) StartProgress(msg string, interval time.Duration) {
	m.startTime = time.Now()
	m.stopChan = make(chan struct{})
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.LogSummary(msg)
			case <-m.stopChan:
				return
			}
		}
	}()
}

// StopProgress stops the periodic summary logging.
func (m *SyncMetrics) StopProgress() {
	if m.stopChan != nil {
		close(m.stopChan)
	}
}

// LogSummary prints a summary of the run with a custom message.
// Called by the background ticker and at the end of the run.
func (m *SyncMetrics) LogSummary(msg string) {
	duration := time.Duration(0)
	if !m.startTime.IsZero() {
		duration = time.Since(m.startTime)
	}

	plog.Info(msg,
		"entries_processed", m.EntriesProcessed.Load(),
		"bytes_hashed", humanize.IBytes(uint64(m.BytesHashed.Load())),
		"dirs_created", m.DirsCreated.Load(),
		"files_copied_new", m.FilesCopiedNew.Load(),
		"files_copied_updated", m.FilesCopiedUpdated.Load(),
		"files_uptodate", m.FilesUpToDate.Load(),
		"files_deleted", m.FilesDeleted.Load(),
		"dirs_deleted", m.DirsDeleted.Load(),
		"files_excluded", m.FilesExcluded.Load(),
		"dirs_excluded", m.DirsExcluded.Load(),
		"failures", m.Failures.Load(),
		"duration", duration.Round(time.Millisecond),
	)
}

// NoopMetrics is an implementation of the Metrics interface that performs no
// operations. It disables metrics collection without changing calling code.
type NoopMetrics struct{}

func (m *NoopMetrics) AddEntriesProcessed(n int64)                      {}
func (m *NoopMetrics) AddDirsCreated(n int64)                           {}
func (m *NoopMetrics) AddFilesCopiedNew(n int64)                        {}
func (m *NoopMetrics) AddFilesCopiedUpdated(n int64)                    {}
func (m *NoopMetrics) AddFilesUpToDate(n int64)                         {}
func (m *NoopMetrics) AddFilesDeleted(n int64)                          {}
func (m *NoopMetrics) AddDirsDeleted(n int64)                           {}
func (m *NoopMetrics) AddFilesExcluded(n int64)                         {}
func (m *NoopMetrics) AddDirsExcluded(n int64)                          {}
func (m *NoopMetrics) AddFailures(n int64)                              {}
func (m *NoopMetrics) AddBytesHashed(n int64)                           {}
func (m *NoopMetrics) LogSummary(msg string)                            {}
func (m *NoopMetrics) StartProgress(msg string, interval time.Duration) {}
func (m *NoopMetrics) StopProgress()                                    {}

// Statically assert that our types implement the interface.
var _ Metrics = (*SyncMetrics)(nil)
var _ Metrics = (*NoopMetrics)(nil)
