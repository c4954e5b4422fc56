package ranking

import (
	"fmt"
	"math"
	"sync"
	"testing"
)

func newTestEngine(exploration float64) *Engine {
	return New(Params{
		ExplorationRate: exploration,
		LearningRate:    0.1,
		DiscountFactor:  0.9,
		Seed:            42,
	})
}

func TestStateKeyUsesAllowListedContextOnly(t *testing.T) {
	key := StateKey("polish prose", map[string]string{
		"stage":      "transformed",
		"content_id": "content_1_0_abc",
		"attempt":    "3",
		"worker":     "w-9",
	})
	want := "polish prose|content_id=content_1_0_abc|stage=transformed"
	if key != want {
		t.Fatalf("state key = %q, want %q", key, want)
	}

	if got := StateKey("polish prose", nil); got != "polish prose" {
		t.Fatalf("state key without context = %q", got)
	}
}

func TestObserveAppliesTemporalDifferenceUpdate(t *testing.T) {
	engine := newTestEngine(0)

	got := engine.Observe("state", "a", 1.0, "")
	if math.Abs(got-0.1) > 1e-9 {
		t.Fatalf("first update = %v, want 0.1", got)
	}

	got = engine.Observe("state", "a", 1.0, "")
	want := 0.1 + 0.1*(1.0-0.1)
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("second update = %v, want %v", got, want)
	}
}

func TestObserveBootstrapsFromNextState(t *testing.T) {
	engine := newTestEngine(0)
	engine.Observe("next", "b", 1.0, "")
	nextBest := engine.Value("next", "b")

	got := engine.Observe("state", "a", 0.5, "next")
	want := 0.1 * (0.5 + 0.9*nextBest)
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("bootstrapped update = %v, want %v", got, want)
	}
}

func TestObserveBootstrapsFromNegativeNextState(t *testing.T) {
	engine := newTestEngine(0)
	engine.Observe("next", "only", -1.0, "")
	nextBest := engine.Value("next", "only")
	if nextBest >= 0 {
		t.Fatalf("next best = %v, want negative", nextBest)
	}

	// The bootstrap term is the true maximum over the next state, even when
	// every known value there is negative.
	got := engine.Observe("state", "a", 0.5, "next")
	want := 0.1 * (0.5 + 0.9*nextBest)
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("bootstrapped update = %v, want %v", got, want)
	}
}

func TestSelectActionIsGreedyWithoutExploration(t *testing.T) {
	engine := newTestEngine(0)
	engine.Observe("state", "low", 0.1, "")
	engine.Observe("state", "high", 0.9, "")

	for range 20 {
		action, ok := engine.SelectAction("state", []string{"low", "high", "unseen"})
		if !ok {
			t.Fatal("expected a selection")
		}
		if action != "high" {
			t.Fatalf("greedy selection = %q, want %q", action, "high")
		}
	}
}

func TestSelectActionBreaksFullTiesRandomly(t *testing.T) {
	engine := newTestEngine(0)
	actions := []string{"a", "b", "c"}

	seen := map[string]int{}
	for range 300 {
		action, ok := engine.SelectAction("fresh-state", actions)
		if !ok {
			t.Fatal("expected a selection")
		}
		seen[action]++
	}
	for _, action := range actions {
		if seen[action] == 0 {
			t.Fatalf("action %q never selected across tied draws: %v", action, seen)
		}
	}
}

func TestSelectActionEmpty(t *testing.T) {
	engine := newTestEngine(0.5)
	if _, ok := engine.SelectAction("state", nil); ok {
		t.Fatal("expected no selection for empty action set")
	}
}

func TestRankCandidatesOrdersByValue(t *testing.T) {
	engine := newTestEngine(0)
	candidates := []Candidate{
		{ID: "v1", Content: "nothing relevant here"},
		{ID: "v2", Content: "the quick brown fox jumps"},
		{ID: "v3", Content: "quick fox"},
	}

	scored := engine.RankCandidates("quick brown fox", candidates, map[string]string{"stage": "transformed"}, nil)
	if len(scored) != 3 {
		t.Fatalf("scored %d candidates, want 3", len(scored))
	}
	if scored[0].ID != "v2" {
		t.Fatalf("top candidate = %q, want v2", scored[0].ID)
	}
	if scored[0].Reward != 1.0 {
		t.Fatalf("top reward = %v, want 1.0", scored[0].Reward)
	}
	for i := 1; i < len(scored); i++ {
		if scored[i].Value > scored[i-1].Value {
			t.Fatalf("ranking not descending at %d: %v then %v", i, scored[i-1].Value, scored[i].Value)
		}
	}
}

func TestRankCandidatesStableOnEqualValues(t *testing.T) {
	engine := newTestEngine(0)
	candidates := []Candidate{
		{ID: "first", Content: "same words"},
		{ID: "second", Content: "same words"},
		{ID: "third", Content: "same words"},
	}

	scored := engine.RankCandidates("same words", candidates, nil, nil)
	for i, want := range []string{"first", "second", "third"} {
		if scored[i].ID != want {
			t.Fatalf("position %d = %q, want %q", i, scored[i].ID, want)
		}
	}
}

func TestLexicalOverlapReward(t *testing.T) {
	cases := []struct {
		query   string
		content string
		want    float64
	}{
		{"quick fox", "the quick brown fox", 1.0},
		{"quick fox", "the quick brown dog", 0.5},
		{"QUICK", "a quick one", 1.0},
		{"absent", "nothing matches", 0},
		{"", "anything", 0},
	}
	for _, tc := range cases {
		got := LexicalOverlapReward(Candidate{Content: tc.content}, tc.query)
		if math.Abs(got-tc.want) > 1e-9 {
			t.Fatalf("reward(%q, %q) = %v, want %v", tc.query, tc.content, got, tc.want)
		}
	}
}

func TestConcurrentObserveLosesNoUpdates(t *testing.T) {
	engine := New(Params{LearningRate: 1.0, Seed: 7})

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			engine.Observe(fmt.Sprintf("state-%d", i), "a", 1.0, "")
		}(i)
	}
	wg.Wait()

	if got := engine.StateCount(); got != 50 {
		t.Fatalf("state count = %d, want 50", got)
	}
	for i := range 50 {
		if v := engine.Value(fmt.Sprintf("state-%d", i), "a"); v != 1.0 {
			t.Fatalf("state-%d value = %v, want 1.0", i, v)
		}
	}
}
