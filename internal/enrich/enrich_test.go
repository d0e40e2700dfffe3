package enrich

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/fpang/auction-catalog/internal/assets"
	"github.com/fpang/auction-catalog/internal/catalog"
)

const goodResponse = "```json\n" + `{
  "title": "14K Yellow Gold Signet Ring",
  "description": "A classic signet ring.",
  "value_estimate": {"min_value": 120, "max_value": 180, "currency": "USD"},
  "discovered_metadata": {"weight_grams": 4.2, "markings": ["14K", "14K", " JM "]}
}` + "\n```"

// fakeCompleter answers by the first image key in the request.
type fakeCompleter struct {
	respond  func(ctx context.Context, firstKey string) (string, error)
	calls    atomic.Int32
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	mu       sync.Mutex
	requests []openai.ChatCompletionRequest
}

func (f *fakeCompleter) Complete(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	f.calls.Add(1)
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		m := f.maxSeen.Load()
		if n <= m || f.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	url := req.Messages[0].MultiContent[1].ImageURL.URL
	key := url[strings.LastIndex(url, "/")+1:]
	return f.respond(ctx, key)
}

func testGroup(index int, keys ...string) catalog.ItemGroup {
	g := catalog.ItemGroup{ItemIndex: index}
	for i, k := range keys {
		g.Images = append(g.Images, catalog.ImageReference{SequenceIndex: index*len(keys) + i, StorageKey: k})
	}
	return g
}

func newTestEnricher(f *fakeCompleter, cfg Config) *Enricher {
	cfg.Request = RequestBuilder{Model: "gpt-4o-mini", MaxTokens: 1000, ImageBaseURL: "https://bucket.s3.amazonaws.com"}
	return New(f, cfg)
}

func TestEnrichParsesFencedResponse(t *testing.T) {
	f := &fakeCompleter{respond: func(context.Context, string) (string, error) { return goodResponse, nil }}
	e := newTestEnricher(f, Config{})

	meta, err := e.Enrich(context.Background(), testGroup(0, "a.jpg", "b.jpg"), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if meta.Title != "14K Yellow Gold Signet Ring" {
		t.Errorf("Title = %q", meta.Title)
	}
	if meta.ValueEstimate != (catalog.ValueEstimate{Min: 120, Max: 180, Currency: "USD"}) {
		t.Errorf("ValueEstimate = %+v", meta.ValueEstimate)
	}
	if meta.Discovered.WeightGrams == nil || *meta.Discovered.WeightGrams != 4.2 {
		t.Errorf("WeightGrams = %v", meta.Discovered.WeightGrams)
	}
	if got := strings.Join(meta.Discovered.Markings, ","); got != "14K,JM" {
		t.Errorf("Markings = %q", got)
	}
}

func TestRequestsMatchSynchronousCalls(t *testing.T) {
	f := &fakeCompleter{respond: func(context.Context, string) (string, error) { return goodResponse, nil }}
	e := newTestEnricher(f, Config{})
	group := testGroup(3, "a.jpg", "b.jpg")
	meta := map[string]any{"lot": "A"}

	if _, err := e.Enrich(context.Background(), group, meta); err != nil {
		t.Fatal(err)
	}
	want := e.Requests().Build(group.StorageKeys(), meta)
	if !reflect.DeepEqual(f.requests[0], want) {
		t.Errorf("batch request body differs from synchronous call:\n got %+v\nwant %+v", want, f.requests[0])
	}
}

func TestEnrichFailureReturnsFallback(t *testing.T) {
	cases := map[string]func(context.Context, string) (string, error){
		"network error": func(context.Context, string) (string, error) {
			return "", fmt.Errorf("chat completion: %w", catalog.ErrExternalService)
		},
		"not json":     func(context.Context, string) (string, error) { return "I cannot help with that.", nil },
		"missing keys": func(context.Context, string) (string, error) { return `{"title":"Ring","description":"x"}`, nil },
	}
	for name, respond := range cases {
		t.Run(name, func(t *testing.T) {
			e := newTestEnricher(&fakeCompleter{respond: respond}, Config{})
			meta, err := e.Enrich(context.Background(), testGroup(0, "a.jpg"), nil)
			if err != nil {
				t.Fatalf("enrichment must not surface %v", err)
			}
			want := Fallback()
			if meta.Title != want.Title || meta.Description != want.Description || meta.ValueEstimate != want.ValueEstimate {
				t.Errorf("got %+v, want fallback", meta)
			}
			if meta.Discovered.WeightGrams != nil || len(meta.Discovered.Markings) != 0 {
				t.Errorf("fallback discovered = %+v", meta.Discovered)
			}
			desc := WithDisclaimer(meta.Description)
			if !strings.HasSuffix(desc, "\n\n"+assets.Disclaimer) {
				t.Errorf("disclaimer not appended: %q", desc)
			}
		})
	}
}

func TestEnrichTimeoutUsesFallback(t *testing.T) {
	f := &fakeCompleter{respond: func(ctx context.Context, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}
	e := newTestEnricher(f, Config{Timeout: 10 * time.Millisecond})

	meta, err := e.Enrich(context.Background(), testGroup(0, "a.jpg"), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if meta.Title != FallbackTitle {
		t.Errorf("Title = %q, want fallback", meta.Title)
	}
}

func TestEnrichSurfacesCredentialFault(t *testing.T) {
	f := &fakeCompleter{respond: func(context.Context, string) (string, error) {
		return "", fmt.Errorf("ssm: %w", catalog.ErrSecretNotFound)
	}}
	e := newTestEnricher(f, Config{})
	if _, err := e.Enrich(context.Background(), testGroup(0, "a.jpg"), nil); !errors.Is(err, catalog.ErrSecretNotFound) {
		t.Errorf("expected ErrSecretNotFound, got %v", err)
	}
	_, err := e.EnrichAll(context.Background(), []catalog.ItemGroup{testGroup(0, "a.jpg"), testGroup(1, "b.jpg")}, nil)
	if !errors.Is(err, catalog.ErrSecretNotFound) {
		t.Errorf("EnrichAll: expected ErrSecretNotFound, got %v", err)
	}
}

func TestEnrichAllKeepsIndexOrderAndBound(t *testing.T) {
	const n = 12
	f := &fakeCompleter{respond: func(ctx context.Context, key string) (string, error) {
		var idx int
		fmt.Sscanf(key, "item%d.jpg", &idx)
		// Later items finish first.
		time.Sleep(time.Duration(n-idx) * time.Millisecond)
		return fmt.Sprintf(`{"title":"Item %d","description":"d","value_estimate":{"min_value":%d,"max_value":%d},"discovered_metadata":{"markings":[]}}`, idx, idx, idx), nil
	}}
	e := newTestEnricher(f, Config{Concurrency: 3})

	groups := make([]catalog.ItemGroup, n)
	for i := range groups {
		groups[i] = testGroup(i, fmt.Sprintf("item%d.jpg", i))
	}
	out, err := e.EnrichAll(context.Background(), groups, nil)
	if err != nil {
		t.Fatal(err)
	}
	for i, m := range out {
		if m.Title != fmt.Sprintf("Item %d", i) {
			t.Errorf("out[%d].Title = %q", i, m.Title)
		}
		if m.ValueEstimate.Currency != "USD" {
			t.Errorf("out[%d] currency default not applied: %q", i, m.ValueEstimate.Currency)
		}
	}
	if f.calls.Load() != n {
		t.Errorf("calls = %d, want %d", f.calls.Load(), n)
	}
	if peak := f.maxSeen.Load(); peak > 3 {
		t.Errorf("max in-flight = %d, want <= 3", peak)
	}
}

func TestBuildRequest(t *testing.T) {
	b := RequestBuilder{Model: "gpt-4o-mini", MaxTokens: 1000, ImageBaseURL: "https://bucket.s3.amazonaws.com"}
	req := b.Build([]string{"u/1.jpg", "u/2.jpg", "u/3.jpg"}, map[string]any{"lot": "A12"})

	if req.Model != "gpt-4o-mini" || req.MaxTokens != 1000 {
		t.Errorf("model/max_tokens = %q/%d", req.Model, req.MaxTokens)
	}
	if len(req.Messages) != 1 || req.Messages[0].Role != openai.ChatMessageRoleUser {
		t.Fatalf("messages = %+v", req.Messages)
	}
	parts := req.Messages[0].MultiContent
	if len(parts) != 4 || parts[0].Type != openai.ChatMessagePartTypeText {
		t.Fatalf("parts = %+v", parts)
	}
	if !strings.Contains(parts[0].Text, `Existing Metadata:`+"\n"+`{"lot":"A12"}`) {
		t.Errorf("metadata not included in prompt")
	}
	for i, p := range parts[1:] {
		want := fmt.Sprintf("https://bucket.s3.amazonaws.com/u/%d.jpg", i+1)
		if p.Type != openai.ChatMessagePartTypeImageURL || p.ImageURL.URL != want || p.ImageURL.Detail != openai.ImageURLDetailLow {
			t.Errorf("part %d = %+v", i+1, p.ImageURL)
		}
	}
}

func TestParseMetadataTruncatesTitle(t *testing.T) {
	long := strings.Repeat("é", 75)
	meta, err := ParseMetadata(fmt.Sprintf(`{"title":%q,"description":"d","value_estimate":{"min_value":1,"max_value":2,"currency":"EUR"},"discovered_metadata":{}}`, long))
	if err != nil {
		t.Fatal(err)
	}
	if n := len([]rune(meta.Title)); n != MaxTitleRunes {
		t.Errorf("title runes = %d", n)
	}
	if meta.ValueEstimate.Currency != "EUR" {
		t.Errorf("currency = %q", meta.ValueEstimate.Currency)
	}
	if meta.Discovered.Markings == nil {
		t.Error("markings should be non-nil")
	}
}

func TestMerge(t *testing.T) {
	w := 3.5
	caller := map[string]any{"markings": []string{"caller"}, "lot": "A12"}
	found := catalog.DiscoveredMetadata{WeightGrams: &w, Markings: []string{"925"}}

	got := Merge(caller, found, DiscoveredWins)
	if m := got["markings"].([]string); len(m) != 1 || m[0] != "925" {
		t.Errorf("discovered-wins markings = %v", got["markings"])
	}
	if got["lot"] != "A12" || got["weight_grams"] != 3.5 {
		t.Errorf("discovered-wins = %v", got)
	}

	got = Merge(caller, found, CallerWins)
	if m := got["markings"].([]string); m[0] != "caller" {
		t.Errorf("caller-wins markings = %v", got["markings"])
	}

	got = Merge(nil, catalog.DiscoveredMetadata{}, DiscoveredWins)
	if _, ok := got["weight_grams"]; ok {
		t.Error("weight_grams should be absent when unknown")
	}
	if m, ok := got["markings"].([]string); !ok || len(m) != 0 {
		t.Errorf("markings = %#v, want empty slice", got["markings"])
	}
	if _, ok := caller["weight_grams"]; ok {
		t.Error("Merge modified caller metadata")
	}
}

func TestParseMergePolicy(t *testing.T) {
	if p, err := ParseMergePolicy(""); err != nil || p != DiscoveredWins {
		t.Errorf("default = %q, %v", p, err)
	}
	if p, err := ParseMergePolicy("Caller-Wins"); err != nil || p != CallerWins {
		t.Errorf("caller-wins = %q, %v", p, err)
	}
	if _, err := ParseMergePolicy("last-writer"); err == nil {
		t.Error("expected error")
	}
}
