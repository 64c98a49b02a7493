package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()
	m.RecordIngested()
	m.RecordIngested()
	m.RecordDropped()
	m.Flush("uploaded")
	m.Flush("spooled")
	m.Flush("spooled")
	m.Upload(PathReplay, "ok", 20*time.Millisecond)
	m.Replayed()
	m.SpoolEntries(4)

	if got := testutil.ToFloat64(m.recordsIngested); got != 2 {
		t.Errorf("records_ingested_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.recordsDropped); got != 1 {
		t.Errorf("records_dropped_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.flushes.WithLabelValues("spooled")); got != 2 {
		t.Errorf("flushes_total{outcome=spooled} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.uploads.WithLabelValues(PathReplay, "ok")); got != 1 {
		t.Errorf("uploads_total{path=replay,result=ok} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.spoolEntries); got != 4 {
		t.Errorf("spool_entries = %v, want 4", got)
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordIngested()
	m.Flush("empty")
	m.Upload(PathFlush, "timeout", time.Second)
	m.GaugeFunc("x", "x", func() float64 { return 1 })
	if err := m.WriteTextfile(filepath.Join(t.TempDir(), "x.prom")); err != nil {
		t.Errorf("WriteTextfile on nil: %v", err)
	}
	if m.Registry() != nil {
		t.Error("Registry on nil should be nil")
	}
}

func TestMetrics_WriteTextfile(t *testing.T) {
	m := New()
	m.Flush("uploaded")
	m.GaugeFunc("buffered_records", "Records waiting for the next flush.", func() float64 { return 7 })

	path := filepath.Join(t.TempDir(), "fieldtrack.prom")
	if err := m.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	text := string(data)
	for _, want := range []string{
		`fieldtrack_flushes_total{outcome="uploaded"} 1`,
		`fieldtrack_buffered_records 7`,
		`# TYPE fieldtrack_uploads_total counter`,
	} {
		if !strings.Contains(text, want) {
			t.Errorf("textfile missing %q", want)
		}
	}

	// No temp files are left next to the output.
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("dir has %d entries, want only the textfile", len(entries))
	}
}

func TestMetrics_WriteTextfileMissingDir(t *testing.T) {
	err := New().WriteTextfile(filepath.Join(t.TempDir(), "absent", "x.prom"))
	if err == nil || errors.Is(err, os.ErrExist) {
		t.Fatalf("expected create error, got %v", err)
	}
}
