package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorderCounts(t *testing.T) {
	r := NewRecorder()
	r.ObserveActivity(ResultBalanced, 4, time.Millisecond)
	r.ObserveActivity(ResultSkipped, 0, time.Microsecond)
	r.ObserveActivity(ResultBalanced, 2, time.Millisecond)
	r.PackageWritten()

	if got := testutil.ToFloat64(r.Activities().WithLabelValues(ResultBalanced)); got != 2 {
		t.Fatalf("balanced=%v", got)
	}
	if got := testutil.ToFloat64(r.SampleRows()); got != 6 {
		t.Fatalf("rows=%v", got)
	}
	if got := testutil.ToFloat64(r.PackagesWritten()); got != 1 {
		t.Fatalf("packages=%v", got)
	}
	n, err := testutil.GatherAndCount(r.Registry(), "landbalancer_activity_duration_seconds")
	if err != nil || n != 1 {
		t.Fatalf("expected histogram to be registered: %d %v", n, err)
	}
	expected := `
# HELP landbalancer_activities_total Activities processed, by outcome.
# TYPE landbalancer_activities_total counter
landbalancer_activities_total{result="balanced"} 2
landbalancer_activities_total{result="skipped"} 1
`
	if err := testutil.GatherAndCompare(r.Registry(), strings.NewReader(expected), "landbalancer_activities_total"); err != nil {
		t.Fatalf("unexpected exposition: %v", err)
	}
}

func TestNilRecorderIsNoop(t *testing.T) {
	var r *Recorder
	r.ObserveActivity(ResultFailed, 1, time.Second)
	r.PackageWritten()
	if r.Registry() != nil {
		t.Fatalf("nil recorder must not expose a registry")
	}
	if r.Activities() != nil || r.SampleRows() != nil || r.PackagesWritten() != nil {
		t.Fatalf("nil recorder must not expose collectors")
	}
	if err := r.Push(context.Background(), "http://unused", "job"); err != nil {
		t.Fatalf("nil push: %v", err)
	}
}

func TestPush(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if !strings.Contains(req.URL.Path, "/metrics/job/landbalancer") {
			t.Errorf("unexpected push path %s", req.URL.Path)
		}
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := NewRecorder()
	r.PackageWritten()
	if err := r.Push(context.Background(), srv.URL, "landbalancer"); err != nil {
		t.Fatalf("push: %v", err)
	}
	if hits.Load() != 1 {
		t.Fatalf("expected one push, got %d", hits.Load())
	}
	if err := r.Push(context.Background(), "", "landbalancer"); err != nil {
		t.Fatalf("empty url must be a no-op: %v", err)
	}
}
