// Package matcher scores agents against an escalated query and picks the
// best candidate. It reads agent state and never mutates it.
package matcher

import (
	"slices"

	"github.com/zulandar/switchboard/internal/config"
	"github.com/zulandar/switchboard/internal/models"
)

// Weights are the scoring constants. They are tuning heuristics carried over
// for behavioural compatibility, not derived values.
type Weights struct {
	ExpertiseTag float64 // per capability tag found in the agent's expertise
	Language     float64 // agent speaks the query language
	HighPriority float64 // query priority is critical
	FreeSlot     float64 // per remaining conversation slot
}

// DefaultWeights are the production scoring constants.
var DefaultWeights = Weights{
	ExpertiseTag: 2,
	Language:     1,
	HighPriority: 1,
	FreeSlot:     0.5,
}

// DefaultReasonTags lists expertise tags that count for a reason in addition
// to the words of the reason itself. An empty matcher.reason_tags table in
// config drops them, leaving only the reason's own words.
var DefaultReasonTags = map[models.Reason][]string{
	models.ReasonPriceNegotiation:   {"price_negotiation", "finance"},
	models.ReasonCustomerComplaint:  {"complaints"},
	models.ReasonCustomRequirements: {"custom_requirements"},
	models.ReasonTechnicalIssue:     {"service"},
}

// Matcher selects agents using fixed weights and reason tags.
type Matcher struct {
	w    Weights
	tags map[models.Reason][]string
}

// New returns a Matcher. reasonTags may be nil.
func New(w Weights, reasonTags map[models.Reason][]string) *Matcher {
	m := &Matcher{w: w, tags: make(map[models.Reason][]string, len(models.Reasons))}
	for _, r := range models.Reasons {
		m.tags[r] = capabilityTags(r, reasonTags[r])
	}
	return m
}

// Default returns a Matcher using DefaultWeights and DefaultReasonTags.
func Default() *Matcher {
	return New(DefaultWeights, DefaultReasonTags)
}

// FromConfig builds a Matcher from configuration, falling back to the
// defaults for unset weights and a missing reason_tags table.
func FromConfig(cfg config.MatcherConfig) *Matcher {
	w := DefaultWeights
	if cfg.ExpertiseWeight > 0 {
		w.ExpertiseTag = cfg.ExpertiseWeight
	}
	if cfg.LanguageWeight > 0 {
		w.Language = cfg.LanguageWeight
	}
	if cfg.PriorityWeight > 0 {
		w.HighPriority = cfg.PriorityWeight
	}
	if cfg.FreeSlotWeight > 0 {
		w.FreeSlot = cfg.FreeSlotWeight
	}
	if cfg.ReasonTags == nil {
		return New(w, DefaultReasonTags)
	}
	tags := make(map[models.Reason][]string, len(cfg.ReasonTags))
	for r, t := range cfg.ReasonTags {
		tags[models.Reason(r)] = t
	}
	return New(w, tags)
}

// capabilityTags is the reason split into words followed by any extra tags,
// each tag appearing once.
func capabilityTags(r models.Reason, extra []string) []string {
	var out []string
	for _, t := range append(r.Words(), extra...) {
		if t != "" && !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	return out
}

// Tags returns the capability tags scored for a reason.
func (m *Matcher) Tags(r models.Reason) []string {
	if t, ok := m.tags[r]; ok {
		return slices.Clone(t)
	}
	return capabilityTags(r, nil)
}

// Score rates how well agent fits query. Higher is better.
func (m *Matcher) Score(q models.EscalatedQuery, a models.Agent) float64 {
	tags, ok := m.tags[q.Reason]
	if !ok {
		tags = capabilityTags(q.Reason, nil)
	}

	score := 0.0
	for _, tag := range tags {
		if a.HasExpertise(tag) {
			score += m.w.ExpertiseTag
		}
	}
	if a.SpeaksLanguage(q.Language) {
		score += m.w.Language
	}
	if q.Priority >= models.CriticalAt {
		score += m.w.HighPriority
	}
	score += m.w.FreeSlot * float64(a.MaxLoad-a.CurrentLoad)
	return score
}

// SelectBestAgent returns the candidate with the strictly highest score. On a
// tie the earliest candidate wins, so results follow roster order. ok is false
// when there are no candidates.
func (m *Matcher) SelectBestAgent(q models.EscalatedQuery, candidates []models.Agent) (best models.Agent, ok bool) {
	bestScore := 0.0
	for i, a := range candidates {
		s := m.Score(q, a)
		if i == 0 || s > bestScore {
			best, bestScore, ok = a, s, true
		}
	}
	return best, ok
}

// Ranked pairs an agent with its score.
type Ranked struct {
	Agent models.Agent
	Score float64
}

// Rank scores every candidate in input order, for diagnostics.
func (m *Matcher) Rank(q models.EscalatedQuery, candidates []models.Agent) []Ranked {
	out := make([]Ranked, len(candidates))
	for i, a := range candidates {
		out[i] = Ranked{Agent: a, Score: m.Score(q, a)}
	}
	return out
}
