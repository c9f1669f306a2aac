package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/reviewlens/reviewlens/internal/analysis"
	"github.com/reviewlens/reviewlens/internal/cache"
	"github.com/reviewlens/reviewlens/internal/progress"
	"github.com/reviewlens/reviewlens/internal/query"
	"github.com/reviewlens/reviewlens/internal/scraper"
	"github.com/reviewlens/reviewlens/internal/serp"
	"github.com/reviewlens/reviewlens/internal/storage"
)

type fakeSearcher struct {
	calls      atomic.Int32
	candidates []serp.Candidate
}

func (f *fakeSearcher) Search(ctx context.Context, product string) []serp.Candidate {
	f.calls.Add(1)
	return f.candidates
}

type fakeFetcher struct {
	calls atomic.Int32
	pages []scraper.Page
}

func (f *fakeFetcher) FetchAll(ctx context.Context, candidates []serp.Candidate) []scraper.Page {
	f.calls.Add(1)
	return f.pages
}

type fakeAnalyzer struct {
	calls atomic.Int32
	err   error
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, product, corpusText string) (analysis.Result, error) {
	f.calls.Add(1)
	if f.err != nil {
		return analysis.Result{}, f.err
	}
	kind := analysis.SourceCorpus
	if corpusText == "" {
		kind = analysis.SourceModelKnowledge
	}
	return analysis.Result{ModelUsed: "fake", Text: "the verdict", SourceKind: kind}, nil
}

type memArchive struct {
	mu      sync.Mutex
	records []*storage.Record
}

func (m *memArchive) Save(ctx context.Context, r *storage.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, r)
	return nil
}

func (m *memArchive) Query(ctx context.Context, f storage.Filter) ([]*storage.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*storage.Record(nil), m.records...), nil
}

func (m *memArchive) Close() error { return nil }

func (m *memArchive) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func testQuery(t *testing.T) query.Query {
	t.Helper()
	q, err := query.New("Sony WH-1000XM5")
	if err != nil {
		t.Fatalf("query.New: %v", err)
	}
	return q
}

func collect(s *progress.Stream) []progress.Event {
	var out []progress.Event
	for ev := range s.Events() {
		out = append(out, ev)
	}
	return out
}

func longPage(url string) scraper.Page {
	text := ""
	for i := 0; i < 20; i++ {
		text += "the battery life is excellent and the noise cancelling works "
	}
	return scraper.Page{URL: url, Text: text, FetchedAt: time.Now(), OK: true}
}

func TestPipeline_HappyPath(t *testing.T) {
	search := &fakeSearcher{candidates: []serp.Candidate{
		{URL: "http://a.example/review", Provider: "serper", Rank: 0},
		{URL: "http://b.example/thread", Provider: "duckduckgo", Rank: 1},
	}}
	fetch := &fakeFetcher{pages: []scraper.Page{
		longPage("http://a.example/review"),
		longPage("http://b.example/thread"),
	}}
	an := &fakeAnalyzer{}
	archive := &memArchive{}
	p := New(search, fetch, an, cache.New(time.Hour, 10), archive, Config{HeartbeatInterval: time.Minute}, nil)

	stream := progress.NewStream(32)
	p.Run(context.Background(), testQuery(t), stream)

	events := collect(stream)
	if len(events) < 4 {
		t.Fatalf("expected search/fetch/analyze/done events, got %d", len(events))
	}
	last := events[len(events)-1]
	if last.Percent != 100 || last.Answer != "the verdict" {
		t.Errorf("unexpected terminal event: %+v", last)
	}
	for i := 1; i < len(events); i++ {
		if !events[i].Terminal() && events[i].Percent < events[i-1].Percent {
			t.Errorf("percent regressed at event %d", i)
		}
	}

	// Archive write is async.
	deadline := time.After(2 * time.Second)
	for archive.len() == 0 {
		select {
		case <-deadline:
			t.Fatal("archive record never written")
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
	rec, _ := archive.Query(context.Background(), storage.Filter{})
	if rec[0].SourceKind != string(analysis.SourceCorpus) {
		t.Errorf("expected corpus-backed record, got %q", rec[0].SourceKind)
	}
	if len(rec[0].Sources) != 2 {
		t.Errorf("expected 2 sources, got %v", rec[0].Sources)
	}
}

func TestPipeline_CacheHitSkipsStages(t *testing.T) {
	search := &fakeSearcher{candidates: []serp.Candidate{{URL: "http://a.example", Provider: "serper"}}}
	fetch := &fakeFetcher{pages: []scraper.Page{longPage("http://a.example")}}
	an := &fakeAnalyzer{}
	p := New(search, fetch, an, cache.New(time.Hour, 10), nil, Config{HeartbeatInterval: time.Minute}, nil)
	q := testQuery(t)

	first := progress.NewStream(32)
	p.Run(context.Background(), q, first)
	collect(first)

	second := progress.NewStream(32)
	p.Run(context.Background(), q, second)
	events := collect(second)

	if got := search.calls.Load(); got != 1 {
		t.Errorf("search ran %d times, cached call must not re-search", got)
	}
	if got := an.calls.Load(); got != 1 {
		t.Errorf("analyzer ran %d times, cached call must not re-analyze", got)
	}
	last := events[len(events)-1]
	if last.Percent != 100 || last.Answer != "the verdict" {
		t.Errorf("cached terminal event wrong: %+v", last)
	}
}

func TestPipeline_NoCandidatesFallsBackToModelKnowledge(t *testing.T) {
	search := &fakeSearcher{}
	fetch := &fakeFetcher{}
	an := &fakeAnalyzer{}
	resultCache := cache.New(time.Hour, 10)
	p := New(search, fetch, an, resultCache, nil, Config{HeartbeatInterval: time.Minute}, nil)
	q := testQuery(t)

	stream := progress.NewStream(32)
	p.Run(context.Background(), q, stream)
	events := collect(stream)

	last := events[len(events)-1]
	if last.Percent != 100 || last.Answer == "" {
		t.Fatalf("model-knowledge path must still complete: %+v", last)
	}

	// A model-knowledge answer must not be cached: the next request should
	// retry the web.
	if _, ok := resultCache.Get(q.Key); ok {
		t.Error("model-knowledge result was cached")
	}
	next := progress.NewStream(32)
	p.Run(context.Background(), q, next)
	collect(next)
	if got := search.calls.Load(); got != 2 {
		t.Errorf("expected second request to re-search, search ran %d times", got)
	}
}

func TestPipeline_AllProvidersDown(t *testing.T) {
	search := &fakeSearcher{candidates: []serp.Candidate{{URL: "http://a.example", Provider: "serper"}}}
	fetch := &fakeFetcher{pages: []scraper.Page{longPage("http://a.example")}}
	an := &fakeAnalyzer{err: analysis.ErrExhausted}
	resultCache := cache.New(time.Hour, 10)
	archive := &memArchive{}
	p := New(search, fetch, an, resultCache, archive, Config{HeartbeatInterval: time.Minute}, nil)
	q := testQuery(t)

	stream := progress.NewStream(32)
	p.Run(context.Background(), q, stream)
	events := collect(stream)

	last := events[len(events)-1]
	if last.Percent != -1 || !last.Error {
		t.Fatalf("expected error terminal, got %+v", last)
	}
	if _, ok := resultCache.Get(q.Key); ok {
		t.Error("failed analysis must not be cached")
	}
	time.Sleep(20 * time.Millisecond)
	if archive.len() != 0 {
		t.Error("failed analysis must not be archived")
	}
}

func TestPipeline_ContextCancelledFailsCleanly(t *testing.T) {
	search := &fakeSearcher{}
	fetch := &fakeFetcher{}
	an := &fakeAnalyzer{err: errors.New("context canceled")}
	p := New(search, fetch, an, cache.New(time.Hour, 10), nil, Config{HeartbeatInterval: time.Minute}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stream := progress.NewStream(32)
	p.Run(ctx, testQuery(t), stream)
	events := collect(stream)

	last := events[len(events)-1]
	if !last.Terminal() {
		t.Fatalf("stream must terminate even on cancellation, got %+v", last)
	}
}
