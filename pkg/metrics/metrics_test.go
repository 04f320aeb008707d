package metrics

import (
	"bytes"
	"io"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Galad/musicmirror/pkg/plog"
)

func TestSyncMetrics_LogSummary(t *testing.T) {
	var logBuf bytes.Buffer
	plog.SetOutput(&logBuf)
	t.Cleanup(func() { plog.SetOutput(os.Stderr) })

	m := &SyncMetrics{}
	m.AddFilesTranscoded(2)
	m.AddFilesCopied(1)
	m.AddBytesWritten(2048)
	m.ObserveEvent("added", false, time.Millisecond)
	m.ObserveEvent("added", true, time.Millisecond)

	m.LogSummary("Mirror progress")

	output := logBuf.String()
	for _, want := range []string{
		"msg=\"Mirror progress\"",
		"events_processed=2",
		"events_failed=1",
		"files_transcoded=2",
		"files_copied=1",
		"bytes_written=\"2.0 KiB\"",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in summary, got: %s", want, output)
		}
	}
}

func TestSyncMetrics_StartStopProgress(t *testing.T) {
	plog.SetOutput(io.Discard)
	t.Cleanup(func() { plog.SetOutput(os.Stderr) })

	m := &SyncMetrics{}
	m.StartProgress("tick", time.Millisecond)
	m.StartProgress("tick", time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	m.StopProgress()
	m.StopProgress()
}

func TestPrometheus(t *testing.T) {
	inner := &SyncMetrics{}
	p := NewPrometheus(inner)

	p.AddFilesTranscoded(3)
	p.AddFilesUpToDate(1)
	p.ObserveEvent("renamed", true, 20*time.Millisecond)
	p.SetInFlight(4)
	p.SetEnabled(true)

	if got := testutil.ToFloat64(p.files.WithLabelValues("transcoded")); got != 3 {
		t.Errorf("expected 3 transcoded, got %v", got)
	}
	if got := testutil.ToFloat64(p.events.WithLabelValues("renamed", "failure")); got != 1 {
		t.Errorf("expected 1 failed rename, got %v", got)
	}
	if got := testutil.ToFloat64(p.inFlight); got != 4 {
		t.Errorf("expected in-flight gauge 4, got %v", got)
	}
	if inner.FilesTranscoded.Load() != 3 || inner.EventsFailed.Load() != 1 {
		t.Error("expected observations to be forwarded to the inner metrics")
	}

	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	if !strings.Contains(body, "musicmirror_sync_enabled 1") {
		t.Errorf("expected enabled gauge in scrape output, got: %s", body)
	}
}
