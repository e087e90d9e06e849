package perf

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/shopspring/decimal"

	jobmetrics "github.com/odyssey-erp/bookledger/internal/jobs"
	"github.com/odyssey-erp/bookledger/internal/ledger/documents"
	"github.com/odyssey-erp/bookledger/internal/ledger/ledgertest"
	"github.com/odyssey-erp/bookledger/internal/ledger/periods"
	"github.com/odyssey-erp/bookledger/internal/ledger/shared"
	"github.com/odyssey-erp/bookledger/jobs"
)

func TestIntegrityScanThroughput(t *testing.T) {
	ctx := context.Background()
	l := ledgertest.NewLedger(ledgertest.Options{Now: func() time.Time {
		return time.Date(2024, 11, 5, 8, 0, 0, 0, time.UTC)
	}})
	if _, err := l.Periods.Create(ctx, periods.RangeInput{
		Start: time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC),
	}); err != nil {
		t.Fatalf("create period: %v", err)
	}
	for i := 0; i < 300; i++ {
		kind := shared.KindInvoice
		if i%7 == 0 {
			kind = shared.KindCreditNote
		}
		_, err := l.Documents.Create(ctx, documents.CreateInput{
			Kind:  kind,
			Party: shared.PartyRef{Kind: shared.PartySchool, ID: int64(i%12 + 1)},
			Items: []documents.ItemInput{
				{Description: "Reader", Quantity: int64(i%5 + 1), UnitPrice: decimal.RequireFromString("89.90"), DiscountPercent: decimal.RequireFromString("7.5")},
				{Description: "Atlas", Quantity: 2, UnitPrice: decimal.RequireFromString("310.00")},
			},
		})
		if err != nil {
			t.Fatalf("create document %d: %v", i, err)
		}
	}

	reg := prometheus.NewRegistry()
	job := jobs.NewIntegrityScanJob(l.Periods, l.Documents, l.Sequences, ledgertest.DiscardLogger(), jobmetrics.NewMetrics(reg))
	for i := 0; i < 20; i++ {
		report, err := job.Run(ctx, 0)
		if err != nil {
			t.Fatalf("scan %d: %v", i, err)
		}
		if report.Documents != 300 || len(report.Findings) != 0 {
			t.Fatalf("unexpected report: documents=%d findings=%v", report.Documents, report.Findings)
		}
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	success := metricValue(t, families, "bookledger_jobs_total", map[string]string{"job": jobs.TaskLedgerIntegrityScan, "status": "success"})
	if success != 20 {
		t.Fatalf("expected 20 successful scans, got %f", success)
	}
	mean := histogramMean(t, families, "bookledger_job_duration_seconds", map[string]string{"job": jobs.TaskLedgerIntegrityScan})
	if mean > 0.5 {
		t.Fatalf("integrity scan duration above budget: %f", mean)
	}
}

func metricValue(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				if fam.GetType() == dto.MetricType_COUNTER {
					return metric.GetCounter().GetValue()
				}
				if fam.GetType() == dto.MetricType_GAUGE {
					return metric.GetGauge().GetValue()
				}
			}
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func histogramMean(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				hist := metric.GetHistogram()
				if hist == nil || hist.GetSampleCount() == 0 {
					t.Fatalf("histogram %s missing samples", name)
				}
				return hist.GetSampleSum() / float64(hist.GetSampleCount())
			}
		}
	}
	t.Fatalf("histogram %s with labels %v not found", name, labels)
	return 0
}

func hasLabels(metric *dto.Metric, labels map[string]string) bool {
	for _, lp := range metric.GetLabel() {
		if val, ok := labels[lp.GetName()]; ok {
			if lp.GetValue() != val {
				return false
			}
		}
	}
	for key := range labels {
		found := false
		for _, lp := range metric.GetLabel() {
			if lp.GetName() == key {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
