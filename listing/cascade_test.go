package listing

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/labstack/gommon/log"

	"github.com/eringen/frontpage/docstore"
)

func testConfig() Config {
	cfg := Config{StrategyTimeout: 200 * time.Millisecond, Budget: 2 * time.Second}
	cfg.setDefaults()
	return cfg
}

func newCascade(store docstore.Store, cfg Config) *cascade {
	return &cascade{store: store, cfg: cfg, log: log.New("test")}
}

func TestStrategiesOrder(t *testing.T) {
	names := func(ss []Strategy) []string {
		var out []string
		for i, s := range ss {
			if s.Rank != i+1 {
				t.Errorf("%s has rank %d, want %d", s.Name, s.Rank, i+1)
			}
			out = append(out, s.Name)
		}
		return out
	}

	got := names(Strategies(Request{Lang: "EN"}))
	want := []string{"published-public-lang", "published-lang", "published", "titled"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("default location: got %v, want %v", got, want)
	}

	got = names(Strategies(Request{Lang: "de", Location: "berlin"}))
	want = append([]string{"published-public-lang-location"}, want...)
	if !reflect.DeepEqual(got, want) {
		t.Errorf("with location: got %v, want %v", got, want)
	}
}

func TestStrategiesLowercaseLang(t *testing.T) {
	s := Strategies(Request{Lang: " FR "})[0]
	if !reflect.DeepEqual(s.Filter[2], docstore.Eq(fieldLanguage, "fr")) {
		t.Errorf("language condition = %+v", s.Filter[2])
	}
}

func TestCascadeStopsAtFirstHit(t *testing.T) {
	now := time.Now()
	store := newMemStore(
		post("a", now, map[string]any{"isPublished": true, "visibility": "public", "language": "en"}),
		post("b", now.Add(-time.Minute), map[string]any{"isPublished": true, "language": "en"}),
	)
	out := newCascade(store, testConfig()).run(context.Background(), Strategies(Request{}))

	if out.Rank != 1 || out.Strategy != "published-public-lang" {
		t.Fatalf("settled on %s (rank %d)", out.Strategy, out.Rank)
	}
	if len(out.Docs) != 1 || out.Docs[0]["_id"] != "a" {
		t.Errorf("docs = %v", out.Docs)
	}
	if calls := store.findCalls(); len(calls) != 1 {
		t.Errorf("find calls = %d, want 1", len(calls))
	}
}

func TestCascadeIsMonotonic(t *testing.T) {
	now := time.Now()
	// Only the titled strategy matches.
	store := newMemStore(post("a", now, nil), post("b", now.Add(-time.Hour), nil))
	strategies := Strategies(Request{Location: "paris"})
	out := newCascade(store, testConfig()).run(context.Background(), strategies)

	if out.Strategy != "titled" {
		t.Fatalf("settled on %s", out.Strategy)
	}
	calls := store.findCalls()
	if len(calls) != len(strategies) {
		t.Fatalf("find calls = %d, want %d", len(calls), len(strategies))
	}
	for i, q := range calls {
		if !reflect.DeepEqual(q.Filter, strategies[i].Filter) {
			t.Errorf("call %d used filter %v, want %v", i, q.Filter, strategies[i].Filter)
		}
		if q.SortDesc != fieldCreatedAt || !q.Populate {
			t.Errorf("call %d: sort=%q populate=%v", i, q.SortDesc, q.Populate)
		}
	}
	if out.Docs[0]["_id"] != "a" {
		t.Errorf("results not newest first: %v", out.Docs)
	}
}

func TestCascadeRetriesWithoutPopulate(t *testing.T) {
	store := newMemStore(post("a", time.Now(), map[string]any{
		"isPublished": true, "visibility": "public", "language": "en", "category": "c1",
	}))
	store.populateErr = errors.New("categories unavailable")

	out := newCascade(store, testConfig()).run(context.Background(), Strategies(Request{}))
	if out.Rank != 1 || len(out.Docs) != 1 {
		t.Fatalf("settled on rank %d with %d docs", out.Rank, len(out.Docs))
	}
	if out.Docs[0]["category"] != "c1" {
		t.Errorf("category = %v, want raw reference", out.Docs[0]["category"])
	}
	calls := store.findCalls()
	if len(calls) != 2 || !calls[0].Populate || calls[1].Populate {
		t.Errorf("calls = %+v, want populated then plain", calls)
	}
	if len(out.Attempts) != 2 || out.Attempts[0].Error == "" {
		t.Errorf("attempts = %+v", out.Attempts)
	}
}

func TestCascadeTreatsTimeoutAsEmpty(t *testing.T) {
	hang := make(chan struct{})
	defer close(hang)
	doc := post("late", time.Now(), nil)
	store := &mockStore{}
	store.FindFunc = func(_ context.Context, q docstore.Query) ([]docstore.Document, error) {
		if len(q.Filter) > 1 {
			<-hang // ignores its context
		}
		if len(q.Filter) == 1 && q.Filter[0].Field == fieldTitle {
			return []docstore.Document{doc}, nil
		}
		return nil, nil
	}
	cfg := testConfig()
	cfg.StrategyTimeout = 20 * time.Millisecond

	start := time.Now()
	out := newCascade(store, cfg).run(context.Background(), Strategies(Request{}))
	if out.Strategy != "titled" {
		t.Fatalf("settled on %s", out.Strategy)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("cascade took %s", elapsed)
	}
	var timeouts int
	for _, a := range out.Attempts {
		if a.Error != "" {
			timeouts++
		}
	}
	// Two multi-condition strategies, each tried with and without population.
	if timeouts != 4 {
		t.Errorf("timed out attempts = %d, want 4: %+v", timeouts, out.Attempts)
	}
}

func TestCascadeFallsBackToSample(t *testing.T) {
	store := newMemStore(
		docstore.Document{"_id": "x1", "body": "no title"},
		docstore.Document{"_id": "x2", "isPublished": false},
	)
	out := newCascade(store, testConfig()).run(context.Background(), Strategies(Request{}))
	if out.Rank != RankSample || len(out.Docs) != 2 {
		t.Fatalf("rank = %d docs = %d", out.Rank, len(out.Docs))
	}
	if !out.Exhausted() {
		t.Error("sample outcome should be exhausted")
	}
	last := store.findCalls()[len(store.findCalls())-1]
	if last.Filter != nil || last.Limit != testConfig().SampleLimit {
		t.Errorf("sample query = %+v", last)
	}
}

func TestCascadeEmptyStore(t *testing.T) {
	store := newMemStore()
	out := newCascade(store, testConfig()).run(context.Background(), Strategies(Request{}))
	if out.Total != 0 || out.Rank != RankNone {
		t.Fatalf("outcome = %+v", out)
	}
	if out.Exhausted() {
		t.Error("an empty store is not exhausted")
	}
	if n := len(store.findCalls()); n != 0 {
		t.Errorf("find calls = %d, want 0", n)
	}
}

func TestCascadeCountFailureContinues(t *testing.T) {
	store := newMemStore(post("a", time.Now(), map[string]any{"isPublished": true}))
	store.CountFunc = func(context.Context, docstore.Filter) (int64, error) {
		return 0, fmt.Errorf("count unsupported")
	}
	out := newCascade(store, testConfig()).run(context.Background(), Strategies(Request{}))
	if out.Total != -1 || out.Strategy != "published" {
		t.Errorf("outcome = %s total %d", out.Strategy, out.Total)
	}
}

func TestCascadeProbeLatest(t *testing.T) {
	store := newMemStore(post("a", time.Now(), nil))
	cfg := testConfig()
	cfg.ProbeLatest = true
	out := newCascade(store, cfg).run(context.Background(), Strategies(Request{}))
	if out.Rank != RankLatest || out.Strategy != "latest" {
		t.Fatalf("settled on %s (rank %d)", out.Strategy, out.Rank)
	}
	if calls := store.findCalls(); len(calls) != 1 || calls[0].Filter != nil {
		t.Errorf("calls = %+v", calls)
	}
}

func TestCascadeStopsAfterResponse(t *testing.T) {
	store := newMemStore(post("a", time.Now(), nil))
	c := newCascade(store, testConfig())
	c.stop = func() bool { return true }
	out := c.run(context.Background(), Strategies(Request{}))
	if len(out.Docs) != 0 {
		t.Errorf("docs = %v, want none", out.Docs)
	}
	if n := len(store.findCalls()); n != 0 {
		t.Errorf("find calls = %d, want 0", n)
	}
}

func TestWithinRecoversPanic(t *testing.T) {
	_, err := within(context.Background(), time.Second, func(context.Context) (int, error) {
		panic("boom")
	})
	if err == nil {
		t.Fatal("expected an error")
	}
}

func TestWithinTimesOut(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	_, err := within(context.Background(), 10*time.Millisecond, func(context.Context) (int, error) {
		<-block
		return 1, nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
}
