package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserve(t *testing.T) {
	m := New()

	m.ObserveAttempt("TIMEOUT", 2*time.Second)
	m.ObserveAttempt("TIMEOUT", time.Second)
	m.ObserveAttempt("OK", 10*time.Millisecond)
	m.ObserveLink("TIMEOUT")
	m.ObservePost("ok")
	m.IncInFlight()
	m.IncInFlight()
	m.IncInFlight()
	m.DecInFlight()

	if got := testutil.ToFloat64(m.AttemptsTotal.WithLabelValues("TIMEOUT")); got != 2 {
		t.Errorf("timeout attempts = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.LinksTotal.WithLabelValues("TIMEOUT")); got != 1 {
		t.Errorf("timeout links = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.PostsTotal.WithLabelValues("ok")); got != 1 {
		t.Errorf("posts ok = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.InFlight); got != 2 {
		t.Errorf("in flight = %v, want 2", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveAttempt("OK", time.Millisecond)
	m.ObserveLink("OK")
	m.ObservePost("failed")
	m.IncInFlight()
	m.DecInFlight()
	if err := m.WriteFile("unused"); err != nil {
		t.Errorf("WriteFile on nil metrics: %v", err)
	}
}

func TestWriteFile(t *testing.T) {
	m := New()
	m.ObserveLink("HTTP_ERROR")

	path := filepath.Join(t.TempDir(), "linkrot.prom")
	if err := m.WriteFile(path); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `linkrot_links_total{category="HTTP_ERROR"} 1`) {
		t.Errorf("metric missing from textfile:\n%s", data)
	}
}
