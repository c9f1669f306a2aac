package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/reviewlens/reviewlens/internal/cache"
	"github.com/reviewlens/reviewlens/internal/progress"
	"github.com/reviewlens/reviewlens/internal/query"
	"github.com/reviewlens/reviewlens/pkg/ratelimit"
)

type scriptedRunner struct {
	fail bool
}

func (r *scriptedRunner) Run(ctx context.Context, q query.Query, stream *progress.Stream) {
	stream.Publish(10, "searching for reviews")
	stream.Publish(45, "reading pages")
	stream.Publish(75, "analyzing reviews")
	if r.fail {
		stream.Fail("analysis unavailable: all AI providers failed")
		return
	}
	stream.Done("analysis complete", "verdict for "+q.Product)
}

func newTestServer(t *testing.T, runner Runner, limit int) *httptest.Server {
	t.Helper()
	s := New(Config{
		Port:      0,
		Providers: map[string]bool{"serper": true, "gemini": true, "groq": false},
	}, runner, ratelimit.NewWindow(limit, time.Minute), cache.New(time.Hour, 10), nil)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func readSSE(t *testing.T, resp *http.Response) []progress.Event {
	t.Helper()
	defer resp.Body.Close()

	var events []progress.Event
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev progress.Event
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
			t.Fatalf("bad SSE frame %q: %v", line, err)
		}
		events = append(events, ev)
	}
	return events
}

func TestAnalyze_StreamsProgress(t *testing.T) {
	ts := newTestServer(t, &scriptedRunner{}, 100)

	resp, err := http.Get(ts.URL + "/analyze?product=Sony+WH-1000XM5")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("expected text/event-stream, got %q", ct)
	}

	events := readSSE(t, resp)
	if len(events) != 4 {
		t.Fatalf("expected 4 events, got %d: %+v", len(events), events)
	}
	last := events[len(events)-1]
	if last.Percent != 100 || !strings.Contains(last.Answer, "Sony WH-1000XM5") {
		t.Errorf("unexpected terminal event: %+v", last)
	}
	for i := 1; i < len(events); i++ {
		if events[i].Percent < events[i-1].Percent {
			t.Errorf("percent regressed at frame %d", i)
		}
	}
}

func TestAnalyze_ErrorTerminal(t *testing.T) {
	ts := newTestServer(t, &scriptedRunner{fail: true}, 100)

	resp, err := http.Get(ts.URL + "/analyze?product=Sony+WH-1000XM5")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	events := readSSE(t, resp)
	last := events[len(events)-1]
	if last.Percent != -1 || !last.Error {
		t.Errorf("expected error terminal, got %+v", last)
	}
}

func TestAnalyze_InvalidProduct(t *testing.T) {
	ts := newTestServer(t, &scriptedRunner{}, 100)

	for _, raw := range []string{"", "%3Cscript%3Ealert(1)%3C/script%3E", strings.Repeat("a", 200)} {
		resp, err := http.Get(ts.URL + "/analyze?product=" + raw)
		if err != nil {
			t.Fatalf("GET: %v", err)
		}
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("product %q: expected 400, got %d", raw, resp.StatusCode)
		}
		var body map[string]string
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("decode error body: %v", err)
		}
		resp.Body.Close()
		if body["error"] == "" {
			t.Error("400 response must carry an error message")
		}
	}
}

func TestAnalyze_RateLimited(t *testing.T) {
	ts := newTestServer(t, &scriptedRunner{}, 2)

	for i := 0; i < 2; i++ {
		resp, err := http.Get(ts.URL + "/analyze?product=widget")
		if err != nil {
			t.Fatalf("GET %d: %v", i, err)
		}
		readSSE(t, resp)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, resp.StatusCode)
		}
	}

	resp, err := http.Get(ts.URL + "/analyze?product=widget")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", resp.StatusCode)
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, &scriptedRunner{}, 100)

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %v", body["status"])
	}
	if _, ok := body["cache_size"]; !ok {
		t.Error("health must report cache_size")
	}
	if body["serper"] != true || body["groq"] != false {
		t.Errorf("provider flags wrong: %v", body)
	}
}
