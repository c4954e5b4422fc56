package ranking

import (
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"
)

// Candidate is one rankable item: an action identifier plus the content the
// reward function scores against the query.
type Candidate struct {
	ID      string
	Content string
}

// Scored pairs a candidate with its reward for this observation and its
// updated value estimate.
type Scored struct {
	Candidate
	Reward float64
	Value  float64
}

// RewardFunc computes the immediate reward for a candidate given a query.
type RewardFunc func(candidate Candidate, query string) float64

// Params holds the value-function hyperparameters.
type Params struct {
	ExplorationRate float64
	LearningRate    float64
	DiscountFactor  float64
	Seed            int64
}

// Engine maintains a state/action value table with an epsilon-greedy
// selection policy and a one-step temporal-difference update.
//
// The table grows without bound: values are never decayed or evicted. That is
// acceptable for the corpus sizes this runs against, but callers introducing
// high-cardinality state keys should reconsider.
type Engine struct {
	explorationRate float64
	learningRate    float64
	discountFactor  float64

	mu     sync.Mutex
	values map[string]map[string]float64
	rng    *rand.Rand
}

// New constructs an Engine. A zero seed falls back to the clock; fix the seed
// to make exploration reproducible.
func New(params Params) *Engine {
	seed := params.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Engine{
		explorationRate: params.ExplorationRate,
		learningRate:    params.LearningRate,
		discountFactor:  params.DiscountFactor,
		values:          make(map[string]map[string]float64),
		rng:             rand.New(rand.NewSource(seed)),
	}
}

// stateKeyContextAllowList restricts which context entries contribute to a
// state key, keeping the state space bounded by meaningful dimensions.
var stateKeyContextAllowList = []string{"content_id", "stage"}

// StateKey derives a deterministic state key from a query and context.
func StateKey(query string, context map[string]string) string {
	if len(context) == 0 {
		return query
	}
	parts := []string{query}
	for _, key := range stateKeyContextAllowList {
		if value, ok := context[key]; ok {
			parts = append(parts, key+"="+value)
		}
	}
	return strings.Join(parts, "|")
}

// Value returns the current estimate for a state/action pair (0 when unseen).
func (e *Engine) Value(stateKey, action string) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.values[stateKey][action]
}

// SelectAction picks an action with an epsilon-greedy policy: with
// probability epsilon a uniformly random action, otherwise the argmax over
// current estimates. A full tie also selects uniformly at random so the
// policy never biases toward insertion order.
func (e *Engine) SelectAction(stateKey string, actions []string) (string, bool) {
	if len(actions) == 0 {
		return "", false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.explorationRate > 0 && e.rng.Float64() < e.explorationRate {
		return actions[e.rng.Intn(len(actions))], true
	}

	stateValues := e.values[stateKey]
	best := actions[0]
	bestValue := stateValues[best]
	tied := true
	for _, action := range actions[1:] {
		value := stateValues[action]
		if value != bestValue {
			tied = false
		}
		if value > bestValue {
			best = action
			bestValue = value
		}
	}
	if tied {
		return actions[e.rng.Intn(len(actions))], true
	}
	return best, true
}

// Observe applies a one-step temporal-difference update for the state/action
// pair. maxNextValue is the best known estimate at nextStateKey (0 when the
// next state is empty or unseen). The read-modify-write runs under the table
// lock so concurrent observers never lose updates.
func (e *Engine) Observe(stateKey, action string, reward float64, nextStateKey string) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.observeLocked(stateKey, action, reward, nextStateKey)
}

func (e *Engine) observeLocked(stateKey, action string, reward float64, nextStateKey string) float64 {
	stateValues := e.values[stateKey]
	if stateValues == nil {
		stateValues = make(map[string]float64)
		e.values[stateKey] = stateValues
	}

	var maxNext float64
	if nextStateKey != "" {
		first := true
		for _, value := range e.values[nextStateKey] {
			if first || value > maxNext {
				maxNext = value
				first = false
			}
		}
	}

	old := stateValues[action]
	updated := old + e.learningRate*(reward+e.discountFactor*maxNext-old)
	stateValues[action] = updated
	return updated
}

// RankCandidates scores every candidate with the reward function, observes
// each score, and returns the candidates sorted descending by updated value
// estimate. Ties keep the original order (stable sort) so equal learned
// values produce deterministic rankings.
func (e *Engine) RankCandidates(query string, candidates []Candidate, context map[string]string, rewardFn RewardFunc) []Scored {
	if len(candidates) == 0 {
		return nil
	}
	if rewardFn == nil {
		rewardFn = LexicalOverlapReward
	}

	stateKey := StateKey(query, context)

	e.mu.Lock()
	scored := make([]Scored, 0, len(candidates))
	for _, candidate := range candidates {
		reward := rewardFn(candidate, query)
		value := e.observeLocked(stateKey, candidate.ID, reward, "")
		scored = append(scored, Scored{Candidate: candidate, Reward: reward, Value: value})
	}
	e.mu.Unlock()

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Value > scored[j].Value
	})
	return scored
}

// StateCount returns the number of distinct state keys in the table.
func (e *Engine) StateCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.values)
}

// LexicalOverlapReward is the default reward: the fraction of
// whitespace-tokenized query terms found verbatim (case-insensitive) in the
// candidate content.
func LexicalOverlapReward(candidate Candidate, query string) float64 {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return 0
	}
	content := strings.ToLower(candidate.Content)
	matches := 0
	for _, term := range terms {
		if strings.Contains(content, term) {
			matches++
		}
	}
	return float64(matches) / float64(len(terms))
}
