/*
Package pipeline orchestrates one ingestion run: scrape the listing, filter
out already-seen items, then fetch, analyze and persist the new ones in
fixed-width concurrent batches.
*/
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/shanehull/tdnetwatch/internal/types"
)

// SummaryFetchFailed is persisted when the disclosure PDF could not be
// downloaded; the item still counts as processed.
const SummaryFetchFailed = "PDF取得に失敗"

// Source supplies the disclosure listing and per-item documents.
type Source interface {
	ScrapeListing(ctx context.Context) ([]types.DisclosureItem, error)
	FetchPDF(ctx context.Context, url string) []byte
}

// Analyzer extracts financial signals from a document. It must degrade to a
// fallback Analysis instead of failing.
type Analyzer interface {
	AnalyzePDF(ctx context.Context, pdf []byte) types.Analysis
}

// Sink is the persistence layer: the dedup window and the idempotent insert.
type Sink interface {
	RecentIDs(ctx context.Context, limit int) (map[string]struct{}, error)
	InsertReport(ctx context.Context, item types.DisclosureItem, analysis types.Analysis) error
}

// Notifier receives the double-growth reports found during a run.
type Notifier interface {
	SendDigest(reports []types.Report) error
}

// State labels the stage a run is currently in.
type State string

// Run states, in transition order.
const (
	StateIdle       State = "idle"
	StateScraping   State = "scraping"
	StateDeduping   State = "deduping"
	StateProcessing State = "processing"
	StateFailed     State = "failed"
)

// Status is a snapshot of the runner for health reporting.
type Status struct {
	State     State  `json:"state"`
	LastRunAt int64  `json:"last_run_at,omitempty"`
	LastError string `json:"last_error,omitempty"`
	Found     int    `json:"found"`
	New       int    `json:"new"`
}

// Options tunes a Runner.
type Options struct {
	BatchWidth int
	DedupDepth int
}

// Runner drives scheduled ingestion runs.
type Runner struct {
	source   Source
	analyzer Analyzer
	sink     Sink
	notifier Notifier
	opts     Options
	log      zerolog.Logger

	mu     sync.Mutex
	status Status
}

// New creates a Runner. notifier may be nil.
func New(source Source, analyzer Analyzer, sink Sink, notifier Notifier, opts Options, log zerolog.Logger) *Runner {
	if opts.BatchWidth < 1 {
		opts.BatchWidth = 3
	}
	if opts.DedupDepth < 1 {
		opts.DedupDepth = 500
	}
	return &Runner{
		source:   source,
		analyzer: analyzer,
		sink:     sink,
		notifier: notifier,
		opts:     opts,
		log:      log,
		status:   Status{State: StateIdle},
	}
}

// Status returns a snapshot of the runner state.
func (r *Runner) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Run executes one full pipeline pass. A fatal error during scraping or
// dedup aborts the run with nothing persisted; per-item failures during
// processing are logged and isolated.
func (r *Runner) Run(ctx context.Context) error {
	r.setState(StateScraping)
	r.log.Info().Msg("starting disclosure scrape")

	items, err := r.source.ScrapeListing(ctx)
	if err != nil {
		return r.fail(fmt.Errorf("scrape failed: %w", err))
	}
	r.setFound(len(items))
	r.log.Info().Int("count", len(items)).Msg("earnings disclosures found")

	if len(items) == 0 {
		r.finish(0)
		return nil
	}

	r.setState(StateDeduping)
	seen, err := r.sink.RecentIDs(ctx, r.opts.DedupDepth)
	if err != nil {
		return r.fail(fmt.Errorf("dedup load failed: %w", err))
	}

	var newItems []types.DisclosureItem
	for _, item := range items {
		if _, ok := seen[item.ID]; !ok {
			newItems = append(newItems, item)
		}
	}
	r.log.Info().Int("count", len(newItems)).Msg("new disclosures to process")

	if len(newItems) == 0 {
		r.finish(0)
		return nil
	}

	r.setState(StateProcessing)
	doubleGrowth := r.processBatches(ctx, newItems)

	if r.notifier != nil && len(doubleGrowth) > 0 {
		if err := r.notifier.SendDigest(doubleGrowth); err != nil {
			r.log.Error().Err(err).Msg("failed to send digest")
		}
	}

	r.finish(len(newItems))
	r.log.Info().Int("processed", len(newItems)).Int("double_growth", len(doubleGrowth)).Msg("run complete")
	return nil
}

// processBatches runs fixed-width batches strictly in sequence; items within
// a batch run concurrently. Returns the double-growth reports persisted
// during this run.
func (r *Runner) processBatches(ctx context.Context, items []types.DisclosureItem) []types.Report {
	var (
		mu      sync.Mutex
		growers []types.Report
	)

	width := r.opts.BatchWidth
	for start := 0; start < len(items); start += width {
		end := start + width
		if end > len(items) {
			end = len(items)
		}

		var wg sync.WaitGroup
		for _, item := range items[start:end] {
			wg.Add(1)
			go func(item types.DisclosureItem) {
				defer wg.Done()

				report, ok := r.processItem(ctx, item)
				if ok && report.IsDoubleGrowth {
					mu.Lock()
					growers = append(growers, report)
					mu.Unlock()
				}
			}(item)
		}
		wg.Wait()
	}

	return growers
}

// processItem handles one disclosure end to end. Failures are logged, never
// propagated; a fetch failure persists a degraded placeholder so the item
// is not re-fetched on the next run.
func (r *Runner) processItem(ctx context.Context, item types.DisclosureItem) (types.Report, bool) {
	r.log.Info().Str("code", item.Code).Str("name", item.Name).Msg("processing disclosure")

	var analysis types.Analysis
	if pdf := r.source.FetchPDF(ctx, item.PDFURL); pdf != nil {
		analysis = r.analyzer.AnalyzePDF(ctx, pdf)
	} else {
		analysis = types.Analysis{Summary: SummaryFetchFailed}
	}

	if err := r.sink.InsertReport(ctx, item, analysis); err != nil {
		r.log.Error().Err(err).Str("id", item.ID).Msg("failed to persist report")
		return types.Report{}, false
	}

	r.log.Info().
		Str("code", item.Code).
		Interface("sales_pct", analysis.SalesPct).
		Interface("profit_pct", analysis.ProfitPct).
		Msg("report saved")

	return types.Report{
		ID:             item.ID,
		Code:           item.Code,
		Name:           item.Name,
		Title:          item.Title,
		SalesPct:       analysis.SalesPct,
		ProfitPct:      analysis.ProfitPct,
		IsDoubleGrowth: analysis.IsDoubleGrowth(),
		Summary:        analysis.Summary,
		PDFURL:         item.PDFURL,
		CreatedAt:      time.Now().UnixMilli(),
	}, true
}

func (r *Runner) setState(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status.State = s
	if s == StateScraping {
		r.status.LastError = ""
		r.status.Found = 0
		r.status.New = 0
	}
}

func (r *Runner) setFound(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status.Found = n
}

func (r *Runner) finish(newCount int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status.State = StateIdle
	r.status.New = newCount
	r.status.LastRunAt = time.Now().UnixMilli()
}

func (r *Runner) fail(err error) error {
	r.log.Error().Err(err).Msg("run aborted")
	r.mu.Lock()
	r.status.State = StateFailed
	r.status.LastError = err.Error()
	r.status.LastRunAt = time.Now().UnixMilli()
	r.mu.Unlock()
	return err
}
