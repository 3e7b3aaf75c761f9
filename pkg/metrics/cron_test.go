package metrics

import (
	"errors"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestCronStartRecordsOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)

	done := m.Start("outbox-retention")
	if got := testutil.ToFloat64(m.running.WithLabelValues("outbox-retention")); got != 1 {
		t.Fatalf("expected running=1 during the run, got %v", got)
	}
	done(nil)
	m.Start("outbox-retention")(errors.New("boom"))
	m.Skipped("outbox-retention")

	if got := testutil.ToFloat64(m.running.WithLabelValues("outbox-retention")); got != 0 {
		t.Fatalf("expected running=0 after the run, got %v", got)
	}
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, name := range []string{"job_success", "job_failure", "job_skipped_total"} {
		got, err := fetchCounterValue(mfs, name, "job", "outbox-retention")
		if err != nil {
			t.Fatalf("fetch %s: %v", name, err)
		}
		if got != 1 {
			t.Fatalf("expected %s=1, got %v", name, got)
		}
	}
	if n := testutil.CollectAndCount(m.duration); n != 1 {
		t.Fatalf("expected one duration series, got %d", n)
	}
	if findMetricFamily(mfs, "job_last_success_timestamp_seconds") == nil {
		t.Fatal("expected last success gauge")
	}
}

func TestCronEmptyJobNameIsLabelledUnknown(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCronJobMetrics(reg).Start("")(nil)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if _, err := fetchCounterValue(mfs, "job_success", "job", "unknown"); err != nil {
		t.Fatal(err)
	}
}

func TestNilCronMetricsIsNoop(t *testing.T) {
	m := NewCronJobMetrics(nil)
	m.Start("noop")(errors.New("ignored"))
	m.Skipped("noop")
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		for _, lp := range metric.GetLabel() {
			if lp.GetName() == label && lp.GetValue() == value {
				return metric.GetCounter().GetValue(), nil
			}
		}
	}
	return 0, fmt.Errorf("metric %q has no series %s=%s", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}
