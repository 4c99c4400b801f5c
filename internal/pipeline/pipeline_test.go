package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/shanehull/tdnetwatch/internal/types"
)

type fakeSource struct {
	items     []types.DisclosureItem
	err       error
	failPDFs  map[string]bool
	mu        sync.Mutex
	fetchURLs []string
}

func (f *fakeSource) ScrapeListing(ctx context.Context) ([]types.DisclosureItem, error) {
	return f.items, f.err
}

func (f *fakeSource) FetchPDF(ctx context.Context, url string) []byte {
	f.mu.Lock()
	f.fetchURLs = append(f.fetchURLs, url)
	f.mu.Unlock()

	if f.failPDFs[url] {
		return nil
	}
	return []byte("%PDF")
}

type fakeAnalyzer struct {
	mu      sync.Mutex
	active  int
	peak    int
	result  types.Analysis
	analyses int
}

func (f *fakeAnalyzer) AnalyzePDF(ctx context.Context, pdf []byte) types.Analysis {
	f.mu.Lock()
	f.active++
	if f.active > f.peak {
		f.peak = f.active
	}
	f.analyses++
	f.mu.Unlock()

	time.Sleep(5 * time.Millisecond)

	f.mu.Lock()
	f.active--
	f.mu.Unlock()

	return f.result
}

type fakeSink struct {
	mu          sync.Mutex
	seen        map[string]struct{}
	recentErr   error
	failInserts map[string]bool
	inserted    []string
	analyses    map[string]types.Analysis
}

func (f *fakeSink) RecentIDs(ctx context.Context, limit int) (map[string]struct{}, error) {
	if f.recentErr != nil {
		return nil, f.recentErr
	}
	if f.seen == nil {
		return map[string]struct{}{}, nil
	}
	return f.seen, nil
}

func (f *fakeSink) InsertReport(ctx context.Context, item types.DisclosureItem, analysis types.Analysis) error {
	if f.failInserts[item.ID] {
		return errors.New("disk full")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserted = append(f.inserted, item.ID)
	if f.analyses == nil {
		f.analyses = make(map[string]types.Analysis)
	}
	f.analyses[item.ID] = analysis
	return nil
}

func makeItems(n int) []types.DisclosureItem {
	items := make([]types.DisclosureItem, 0, n)
	for i := 1; i <= n; i++ {
		code := fmt.Sprintf("%04d", 1000+i)
		items = append(items, types.DisclosureItem{
			ID:     types.NewID(code, "15:30"),
			Code:   code,
			Name:   fmt.Sprintf("会社%d", i),
			Title:  "決算短信",
			PDFURL: fmt.Sprintf("https://example.com/%d.pdf", i),
			Time:   "15:30",
		})
	}
	return items
}

func newTestRunner(src *fakeSource, an *fakeAnalyzer, sink *fakeSink, notifier Notifier) *Runner {
	return New(src, an, sink, notifier, Options{BatchWidth: 3, DedupDepth: 500}, zerolog.Nop())
}

func TestRunBatchIsolation(t *testing.T) {
	items := makeItems(7)
	src := &fakeSource{items: items}
	an := &fakeAnalyzer{result: types.Analysis{Summary: "ok"}}
	sink := &fakeSink{failInserts: map[string]bool{items[3].ID: true}}

	r := newTestRunner(src, an, sink, nil)
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(sink.inserted) != 6 {
		t.Errorf("got %d persisted items, want 6 (failure on item 4 must not affect siblings)", len(sink.inserted))
	}
	for i, item := range items {
		if i == 3 {
			continue
		}
		found := false
		for _, id := range sink.inserted {
			if id == item.ID {
				found = true
			}
		}
		if !found {
			t.Errorf("item %s was not persisted", item.ID)
		}
	}

	if an.peak > 3 {
		t.Errorf("observed %d concurrent analyses, batch width is 3", an.peak)
	}
}

func TestRunDedupSkipsSeenItems(t *testing.T) {
	items := makeItems(4)
	src := &fakeSource{items: items}
	an := &fakeAnalyzer{result: types.Analysis{Summary: "ok"}}
	sink := &fakeSink{seen: map[string]struct{}{
		items[0].ID: {},
		items[2].ID: {},
	}}

	r := newTestRunner(src, an, sink, nil)
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	sort.Strings(sink.inserted)
	want := []string{items[1].ID, items[3].ID}
	sort.Strings(want)
	if len(sink.inserted) != 2 || sink.inserted[0] != want[0] || sink.inserted[1] != want[1] {
		t.Errorf("inserted = %v, want %v", sink.inserted, want)
	}

	for _, url := range src.fetchURLs {
		if url == items[0].PDFURL || url == items[2].PDFURL {
			t.Errorf("fetched PDF for already-seen item: %s", url)
		}
	}
}

func TestRunScrapeFailureAborts(t *testing.T) {
	src := &fakeSource{err: errors.New("connection refused")}
	sink := &fakeSink{}

	r := newTestRunner(src, &fakeAnalyzer{}, sink, nil)
	if err := r.Run(context.Background()); err == nil {
		t.Fatal("expected scrape failure to abort the run")
	}

	if len(sink.inserted) != 0 {
		t.Errorf("aborted run persisted %d items", len(sink.inserted))
	}
	if r.Status().State != StateFailed {
		t.Errorf("state = %s, want %s", r.Status().State, StateFailed)
	}
}

func TestRunDedupFailureAborts(t *testing.T) {
	src := &fakeSource{items: makeItems(2)}
	sink := &fakeSink{recentErr: errors.New("database locked")}

	r := newTestRunner(src, &fakeAnalyzer{}, sink, nil)
	if err := r.Run(context.Background()); err == nil {
		t.Fatal("expected dedup failure to abort the run")
	}
	if len(sink.inserted) != 0 {
		t.Errorf("aborted run persisted %d items", len(sink.inserted))
	}
}

func TestRunEmptyListingShortCircuits(t *testing.T) {
	src := &fakeSource{}
	sink := &fakeSink{recentErr: errors.New("should not be called")}

	r := newTestRunner(src, &fakeAnalyzer{}, sink, nil)
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("empty listing is not an error: %v", err)
	}
	if r.Status().State != StateIdle {
		t.Errorf("state = %s, want %s", r.Status().State, StateIdle)
	}
}

func TestRunAllSeenShortCircuits(t *testing.T) {
	items := makeItems(3)
	seen := make(map[string]struct{})
	for _, item := range items {
		seen[item.ID] = struct{}{}
	}
	src := &fakeSource{items: items}
	an := &fakeAnalyzer{}

	r := newTestRunner(src, an, &fakeSink{seen: seen}, nil)
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if an.analyses != 0 {
		t.Errorf("analyzed %d items, want 0 when everything is seen", an.analyses)
	}
}

func TestRunFetchFailurePersistsDegradedReport(t *testing.T) {
	items := makeItems(2)
	src := &fakeSource{
		items:    items,
		failPDFs: map[string]bool{items[0].PDFURL: true},
	}
	an := &fakeAnalyzer{result: types.Analysis{Summary: "ok"}}
	sink := &fakeSink{}

	r := newTestRunner(src, an, sink, nil)
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(sink.inserted) != 2 {
		t.Fatalf("got %d persisted items, want 2", len(sink.inserted))
	}
	if got := sink.analyses[items[0].ID].Summary; got != SummaryFetchFailed {
		t.Errorf("degraded summary = %q, want %q", got, SummaryFetchFailed)
	}
	if an.analyses != 1 {
		t.Errorf("analyzer ran %d times, want 1 (no analysis without a document)", an.analyses)
	}
}

type fakeNotifier struct {
	mu      sync.Mutex
	digests [][]types.Report
}

func (f *fakeNotifier) SendDigest(reports []types.Report) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.digests = append(f.digests, reports)
	return nil
}

func TestRunNotifiesDoubleGrowth(t *testing.T) {
	items := makeItems(3)
	sales, profit := 5.0, 2.0
	src := &fakeSource{items: items}
	an := &fakeAnalyzer{result: types.Analysis{SalesPct: &sales, ProfitPct: &profit, Summary: "増収増益"}}
	notifier := &fakeNotifier{}

	r := newTestRunner(src, an, &fakeSink{}, notifier)
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(notifier.digests) != 1 {
		t.Fatalf("got %d digests, want 1", len(notifier.digests))
	}
	if len(notifier.digests[0]) != 3 {
		t.Errorf("digest has %d reports, want 3", len(notifier.digests[0]))
	}
}
