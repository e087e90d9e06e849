package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	jobmetrics "github.com/odyssey-erp/bookledger/internal/jobs"
	"github.com/odyssey-erp/bookledger/internal/ledger/documents"
	"github.com/odyssey-erp/bookledger/internal/ledger/periods"
	"github.com/odyssey-erp/bookledger/internal/ledger/sequences"
	"github.com/odyssey-erp/bookledger/internal/ledger/shared"
)

// Integrity checks reported by the scan.
const (
	CheckNetTotal    = "net_total"
	CheckNonPositive = "non_positive"
	CheckItemSum     = "item_sum"
	CheckSequenceLag = "sequence_lag"
)

// PeriodSource resolves the period to scan.
type PeriodSource interface {
	Active(ctx context.Context) (periods.Period, error)
	Get(ctx context.Context, id int64) (periods.Period, error)
}

// DocumentSource lists every document of a period.
type DocumentSource interface {
	ListByPeriod(ctx context.Context, periodID int64) ([]documents.Document, error)
}

// SequenceSource lists the counters of a period.
type SequenceSource interface {
	List(ctx context.Context, periodID int64) ([]sequences.Sequence, error)
}

// Finding is one violated invariant.
type Finding struct {
	Check  string
	Ref    string
	Detail string
}

// IntegrityReport summarises one scan.
type IntegrityReport struct {
	PeriodID  int64
	Period    string
	Documents int
	Findings  []Finding
}

// IntegrityScanJob verifies document totals and sequence counters. It never
// writes to the ledger.
type IntegrityScanJob struct {
	Periods   PeriodSource
	Documents DocumentSource
	Sequences SequenceSource
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewIntegrityScanJob initialises the scan handler.
func NewIntegrityScanJob(periods PeriodSource, docs DocumentSource, seqs SequenceSource, logger *slog.Logger, metrics *jobmetrics.Metrics) *IntegrityScanJob {
	return &IntegrityScanJob{Periods: periods, Documents: docs, Sequences: seqs, Logger: logger, Metrics: metrics}
}

// Handle executes TaskLedgerIntegrityScan.
func (j *IntegrityScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("integrity scan: handler not configured")
	}
	var payload IntegrityScanPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	_, err := j.Run(ctx, payload.PeriodID)
	if errors.Is(err, shared.ErrNoActivePeriod) || errors.Is(err, shared.ErrPeriodNotFound) {
		j.logger().Info("integrity scan skipped", slog.Any("reason", err))
		return nil
	}
	return err
}

// Run scans periodID, or the active period when zero.
func (j *IntegrityScanJob) Run(ctx context.Context, periodID int64) (report IntegrityReport, resultErr error) {
	start := time.Now()
	tracker := j.metrics().Track(TaskLedgerIntegrityScan)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	period, err := j.resolve(ctx, periodID)
	if err != nil {
		return IntegrityReport{}, err
	}
	logger := j.logger().With(slog.Int64("period_id", period.ID), slog.String("period", period.Name))

	var (
		docs []documents.Document
		seqs []sequences.Sequence
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		docs, err = j.Documents.ListByPeriod(gctx, period.ID)
		return err
	})
	g.Go(func() error {
		var err error
		seqs, err = j.Sequences.List(gctx, period.ID)
		return err
	})
	if err := g.Wait(); err != nil {
		logger.Error("integrity scan failed", slog.Any("error", err))
		return IntegrityReport{}, err
	}

	report = IntegrityReport{PeriodID: period.ID, Period: period.Name, Documents: len(docs)}
	report.Findings = append(report.Findings, checkDocuments(docs)...)
	report.Findings = append(report.Findings, checkSequences(docs, seqs)...)

	counts := map[string]int{}
	for _, f := range report.Findings {
		counts[f.Check]++
		logger.Warn("ledger integrity finding",
			slog.String("check", f.Check),
			slog.String("ref", f.Ref),
			slog.String("detail", f.Detail))
	}
	for check, n := range counts {
		j.metrics().AddFindings(TaskLedgerIntegrityScan, check, period.ID, n)
	}
	logger.Info("completed integrity scan",
		slog.Int("documents", report.Documents),
		slog.Int("findings", len(report.Findings)),
		slog.Duration("duration", time.Since(start)))
	return report, nil
}

func (j *IntegrityScanJob) resolve(ctx context.Context, periodID int64) (periods.Period, error) {
	if periodID > 0 {
		return j.Periods.Get(ctx, periodID)
	}
	return j.Periods.Active(ctx)
}

func checkDocuments(docs []documents.Document) []Finding {
	var out []Finding
	for _, d := range docs {
		for _, problem := range documents.CheckTotals(d) {
			out = append(out, Finding{
				Check:  problem,
				Ref:    d.DocumentNo,
				Detail: fmt.Sprintf("gross=%s discount=%s net=%s", d.GrossAmount.StringFixed(2), d.TotalDiscount.StringFixed(2), d.NetAmount.StringFixed(2)),
			})
		}
	}
	return out
}

// checkSequences reports counters that trail the highest issued number. Payments
// live in their own table and are not compared here.
func checkSequences(docs []documents.Document, seqs []sequences.Sequence) []Finding {
	highest := map[shared.DocumentKind]int64{}
	for _, d := range docs {
		if d.Number > highest[d.Kind] {
			highest[d.Kind] = d.Number
		}
	}
	last := map[shared.DocumentKind]int64{}
	for _, s := range seqs {
		last[s.Kind] = s.LastNumber
	}
	var out []Finding
	for _, kind := range []shared.DocumentKind{shared.KindEstimation, shared.KindInvoice, shared.KindCreditNote} {
		if top := highest[kind]; top > last[kind] {
			out = append(out, Finding{
				Check:  CheckSequenceLag,
				Ref:    strings.ToLower(string(kind)),
				Detail: fmt.Sprintf("last_number=%d highest_issued=%d", last[kind], top),
			})
		}
	}
	return out
}

func (j *IntegrityScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskLedgerIntegrityScan))
	}
	return slog.Default().With(slog.String("job", TaskLedgerIntegrityScan))
}

func (j *IntegrityScanJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
