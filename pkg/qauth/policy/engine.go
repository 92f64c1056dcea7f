package policy

import (
	"sort"
	"sync"

	"github.com/qauthteam/qshield/pkg/qerr"
)

// Store holds loaded policies keyed by URN, replaceable atomically per
// policy. The map is read-mostly: writes acquire exclusive access,
// reads acquire shared access.
type Store struct {
	mu       sync.RWMutex
	policies map[string]*Policy
}

func NewStore() *Store {
	return &Store{policies: make(map[string]*Policy)}
}

// Load replaces the whole policy object for its ID atomically; it is never
// mutated piecewise.
func (s *Store) Load(p *Policy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policies[p.ID] = p
}

// Get looks up a policy by URN.
func (s *Store) Get(id string) (*Policy, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.policies[id]
	return p, ok
}

// Evaluate runs the evaluation pipeline: lookup, validity window,
// ordered rule matching, default-deny fallback.
func (s *Store) Evaluate(policyID string, ctx EvalContext) (Result, error) {
	p, ok := s.Get(policyID)
	if !ok {
		return Result{}, qerr.New(qerr.KindPolicy, "policy not found: "+policyID)
	}
	return Evaluate(p, ctx)
}

// Evaluate runs the pipeline against an already-resolved policy
// object, exposed separately so callers that load policies outside
// the Store (e.g. tests) can evaluate directly.
func Evaluate(p *Policy, ctx EvalContext) (Result, error) {
	if p.ValidFrom != nil && ctx.Request.Timestamp.Before(*p.ValidFrom) {
		return Result{}, qerr.New(qerr.KindPolicy, "policy not yet valid: "+p.ID)
	}
	if p.ValidUntil != nil && ctx.Request.Timestamp.After(*p.ValidUntil) {
		return Result{}, qerr.New(qerr.KindPolicy, "policy expired: "+p.ID)
	}

	ordered := orderedRuleIndices(p.Rules)
	for _, idx := range ordered {
		rule := p.Rules[idx]

		matched := false
		for _, pattern := range rule.Resources {
			if matchResource(pattern, ctx.Resource.Path) {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		if !matchAction(rule.Actions, ctx.Request.Action) {
			continue
		}
		ok, err := evalConditions(rule.Conditions, ctx)
		if err != nil {
			return Result{}, err
		}
		if !ok {
			continue
		}

		i := idx
		return Result{Effect: rule.Effect, MatchedRule: &i, Reason: "rule matched", Audit: rule.Audit}, nil
	}

	return Result{Effect: p.Defaults.Effect, MatchedRule: nil, Reason: "no rule matched, default applied"}, nil
}

// orderedRuleIndices sorts rule indices by priority descending, ties
// broken by declaration order.
func orderedRuleIndices(rules []Rule) []int {
	idx := make([]int, len(rules))
	for i := range rules {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return rules[idx[a]].Priority > rules[idx[b]].Priority
	})
	return idx
}
