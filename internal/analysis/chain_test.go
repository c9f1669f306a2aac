package analysis

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type fakeGen struct {
	name  string
	text  string
	err   error
	calls int
	order *[]string
}

func (f *fakeGen) Name() string { return f.name }

func (f *fakeGen) Generate(ctx context.Context, prompt string) (string, error) {
	f.calls++
	if f.order != nil {
		*f.order = append(*f.order, f.name)
	}
	return f.text, f.err
}

func TestChain_FirstProviderWins(t *testing.T) {
	c := NewChain([]Provider{
		&fakeGen{name: "p1", text: "first answer"},
		&fakeGen{name: "p2", text: "second answer"},
	}, time.Second, nil)

	res, err := c.Analyze(context.Background(), "widget", "[Source 1] evidence")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ModelUsed != "p1" || res.Text != "first answer" {
		t.Errorf("unexpected result: %+v", res)
	}
	if res.SourceKind != SourceCorpus {
		t.Errorf("corpus-backed analysis should carry SourceCorpus, got %q", res.SourceKind)
	}
}

func TestChain_FallsBackInOrder(t *testing.T) {
	var order []string
	p1 := &fakeGen{name: "p1", err: errors.New("boom"), order: &order}
	p2 := &fakeGen{name: "p2", text: "backup answer", order: &order}

	c := NewChain([]Provider{p1, p2}, time.Second, nil)
	res, err := c.Analyze(context.Background(), "widget", "evidence")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ModelUsed != "p2" {
		t.Errorf("expected p2 to be used, got %q", res.ModelUsed)
	}
	if len(order) != 2 || order[0] != "p1" || order[1] != "p2" {
		t.Errorf("expected strict p1-then-p2 order, got %v", order)
	}
}

func TestChain_AllFailIsExhausted(t *testing.T) {
	c := NewChain([]Provider{
		&fakeGen{name: "p1", err: errors.New("a")},
		&fakeGen{name: "p2", err: errors.New("b")},
	}, time.Second, nil)

	_, err := c.Analyze(context.Background(), "widget", "evidence")
	if !errors.Is(err, ErrExhausted) {
		t.Errorf("expected ErrExhausted, got %v", err)
	}
}

func TestChain_EmptyCorpusIsModelKnowledge(t *testing.T) {
	c := NewChain([]Provider{&fakeGen{name: "p1", text: "from memory"}}, time.Second, nil)

	res, err := c.Analyze(context.Background(), "widget", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.SourceKind != SourceModelKnowledge {
		t.Errorf("empty corpus should yield SourceModelKnowledge, got %q", res.SourceKind)
	}
}

func TestChain_NoProviders(t *testing.T) {
	c := NewChain(nil, time.Second, nil)
	if _, err := c.Analyze(context.Background(), "widget", "x"); !errors.Is(err, ErrExhausted) {
		t.Errorf("empty chain should be exhausted immediately, got %v", err)
	}
}

func TestBuildPrompt(t *testing.T) {
	prompt, kind := BuildPrompt("Widget X200", "[Source 1] solid")
	if kind != SourceCorpus {
		t.Errorf("expected SourceCorpus, got %q", kind)
	}
	if !strings.Contains(prompt, "Widget X200") || !strings.Contains(prompt, "[Source 1] solid") {
		t.Error("prompt should embed product and corpus")
	}

	prompt, kind = BuildPrompt("Widget X200", "   ")
	if kind != SourceModelKnowledge {
		t.Errorf("whitespace corpus should be model-knowledge, got %q", kind)
	}
	if !strings.Contains(prompt, noExternalData) {
		t.Error("prompt should embed the no-external-data marker")
	}
}
