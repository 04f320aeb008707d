package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/Galad/musicmirror/pkg/plog"
	"github.com/Galad/musicmirror/pkg/util"
)

// Metrics collects what the mirror did.
type Metrics interface {
	AddFilesTranscoded(n int64)
	AddFilesCopied(n int64)
	AddFilesLinked(n int64)
	AddFilesDeleted(n int64)
	AddFilesRenamed(n int64)
	AddFilesUpToDate(n int64)
	AddBytesWritten(n int64)

	// ObserveEvent records one finished change event.
	ObserveEvent(kind string, failed bool, d time.Duration)
	SetInFlight(n int64)
	SetEnabled(enabled bool)

	LogSummary(msg string)
	StartProgress(msg string, interval time.Duration)
	StopProgress()
}

// SyncMetrics holds atomic counters and logs them through plog.
type SyncMetrics struct {
	FilesTranscoded atomic.Int64
	FilesCopied     atomic.Int64
	FilesLinked     atomic.Int64
	FilesDeleted    atomic.Int64
	FilesRenamed    atomic.Int64
	FilesUpToDate   atomic.Int64
	BytesWritten    atomic.Int64
	EventsProcessed atomic.Int64
	EventsFailed    atomic.Int64
	InFlight        atomic.Int64

	mu        sync.Mutex
	stopChan  chan struct{}
	startTime time.Time
}

func (m *SyncMetrics) AddFilesTranscoded(n int64) { m.FilesTranscoded.Add(n) }
func (m *SyncMetrics) AddFilesCopied(n int64)     { m.FilesCopied.Add(n) }
func (m *SyncMetrics) AddFilesLinked(n int64)     { m.FilesLinked.Add(n) }
func (m *SyncMetrics) AddFilesDeleted(n int64)    { m.FilesDeleted.Add(n) }
func (m *SyncMetrics) AddFilesRenamed(n int64)    { m.FilesRenamed.Add(n) }
func (m *SyncMetrics) AddFilesUpToDate(n int64)   { m.FilesUpToDate.Add(n) }
func (m *SyncMetrics) AddBytesWritten(n int64)    { m.BytesWritten.Add(n) }
func (m *SyncMetrics) SetInFlight(n int64)        { m.InFlight.Store(n) }
func (m *SyncMetrics) SetEnabled(enabled bool)    {}

func (m *SyncMetrics) ObserveEvent(kind string, failed bool, d time.Duration) {
	m.EventsProcessed.Add(1)
	if failed {
		m.EventsFailed.Add(1)
	}
}

// StartProgress logs a summary every interval until StopProgress.
func (m *SyncMetrics) StartProgress(msg string, interval time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopChan != nil {
		return
	}
	m.startTime = time.Now()
	m.stopChan = make(chan struct{})
	stop := m.stopChan
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.LogSummary(msg)
			case <-stop:
				return
			}
		}
	}()
}

func (m *SyncMetrics) StopProgress() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopChan != nil {
		close(m.stopChan)
		m.stopChan = nil
	}
}

// LogSummary logs every counter with msg.
func (m *SyncMetrics) LogSummary(msg string) {
	m.mu.Lock()
	start := m.startTime
	m.mu.Unlock()
	duration := time.Duration(0)
	if !start.IsZero() {
		duration = time.Since(start)
	}

	plog.Info(msg,
		"events_processed", m.EventsProcessed.Load(),
		"events_failed", m.EventsFailed.Load(),
		"in_flight", m.InFlight.Load(),
		"files_transcoded", m.FilesTranscoded.Load(),
		"files_copied", m.FilesCopied.Load(),
		"files_linked", m.FilesLinked.Load(),
		"files_deleted", m.FilesDeleted.Load(),
		"files_renamed", m.FilesRenamed.Load(),
		"files_uptodate", m.FilesUpToDate.Load(),
		"bytes_written", util.ByteCountIEC(m.BytesWritten.Load()),
		"duration", duration.Round(time.Millisecond),
	)
}

// NoopMetrics discards everything.
type NoopMetrics struct{}

func (NoopMetrics) AddFilesTranscoded(n int64)                             {}
func (NoopMetrics) AddFilesCopied(n int64)                                 {}
func (NoopMetrics) AddFilesLinked(n int64)                                 {}
func (NoopMetrics) AddFilesDeleted(n int64)                                {}
func (NoopMetrics) AddFilesRenamed(n int64)                                {}
func (NoopMetrics) AddFilesUpToDate(n int64)                               {}
func (NoopMetrics) AddBytesWritten(n int64)                                {}
func (NoopMetrics) ObserveEvent(kind string, failed bool, d time.Duration) {}
func (NoopMetrics) SetInFlight(n int64)                                    {}
func (NoopMetrics) SetEnabled(enabled bool)                                {}
func (NoopMetrics) LogSummary(msg string)                                  {}
func (NoopMetrics) StartProgress(msg string, interval time.Duration)       {}
func (NoopMetrics) StopProgress()                                          {}

var _ Metrics = (*SyncMetrics)(nil)
var _ Metrics = NoopMetrics{}
