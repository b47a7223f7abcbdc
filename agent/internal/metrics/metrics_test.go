package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.FixAccepted()
	m.FixAccepted()
	m.FixRejected()
	if got := testutil.ToFloat64(m.fixes.WithLabelValues("accepted")); got != 2 {
		t.Errorf("accepted fixes = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.fixes.WithLabelValues("rejected")); got != 1 {
		t.Errorf("rejected fixes = %v, want 1", got)
	}

	m.SetPending(42)
	if got := testutil.ToFloat64(m.pending); got != 42 {
		t.Errorf("pending = %v, want 42", got)
	}

	m.SetCertDaysLeft(12)
	if got := testutil.ToFloat64(m.certDays); got != 12 {
		t.Errorf("cert days left = %v, want 12", got)
	}

	m.ObserveBatch("delivered", 300, 120*time.Millisecond)
	m.ObserveBatch("failed", 0, time.Second)
	m.ObserveBatch("superseded", 0, 0)
	if got := testutil.ToFloat64(m.batches.WithLabelValues("delivered")); got != 1 {
		t.Errorf("delivered batches = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.delivered); got != 300 {
		t.Errorf("delivered samples = %v, want 300", got)
	}
	if n := testutil.CollectAndCount(m.duration); n != 1 {
		t.Errorf("duration histogram series = %d, want 1", n)
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.FixAccepted()
	m.FixRejected()
	m.SetPending(1)
	m.ObserveBatch("delivered", 1, time.Second)
	m.SetCertDaysLeft(3)

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusNotFound {
		t.Errorf("nil handler status = %d, want 404", rr.Code)
	}
}

func TestMetrics_Exposition(t *testing.T) {
	m := New()
	m.SetPending(7)
	m.ObserveBatch("delivered", 5, 10*time.Millisecond)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("Accept", string(expfmt.NewFormat(expfmt.TypeTextPlain)))
	m.Handler().ServeHTTP(rr, req)

	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(rr.Body)
	if err != nil {
		t.Fatalf("parse exposition: %v", err)
	}

	if got := gaugeValue(mfs["trackrelay_buffer_pending"]); got != 7 {
		t.Errorf("trackrelay_buffer_pending = %v, want 7", got)
	}
	batches := mfs["trackrelay_batches_total"]
	if batches == nil || len(batches.GetMetric()) != 3 {
		t.Fatalf("trackrelay_batches_total should export 3 outcome series, got %v", batches)
	}
	if _, ok := mfs["trackrelay_upload_duration_seconds"]; !ok {
		t.Error("upload duration histogram missing from exposition")
	}
}

func gaugeValue(mf *dto.MetricFamily) float64 {
	if mf == nil || len(mf.GetMetric()) == 0 {
		return -1
	}
	return mf.GetMetric()[0].GetGauge().GetValue()
}
