// Package classifier decides whether a customer query should leave the
// automated path and, if so, why.
package classifier

import (
	"strings"
	"time"

	"github.com/zulandar/switchboard/internal/config"
	"github.com/zulandar/switchboard/internal/models"
)

// Decision is the outcome of classifying one query.
type Decision struct {
	Escalate bool
	Reason   models.Reason
}

// Rule names, in evaluation order.
const (
	RuleComplaint  = "complaint"
	RuleFinancial  = "financial"
	RuleCustom     = "custom"
	RuleTechnical  = "technical"
	RuleConfidence = "confidence"
	RuleLatency    = "latency"
	RuleEmergency  = "emergency"
)

type keywordRule struct {
	name     string
	reason   models.Reason
	keywords []string
}

// Classifier holds thresholds and keyword lists. It is immutable after New,
// so one value can be shared by concurrent callers and replaced wholesale
// when configuration changes.
type Classifier struct {
	confidenceThreshold float64
	latencyThreshold    time.Duration
	leading             []keywordRule // rules 1-4, before the threshold checks
	emergency           keywordRule
}

// New builds a Classifier from configuration. Keywords are lower-cased once
// here so Classify only lower-cases the query.
func New(cfg config.ClassifierConfig) *Classifier {
	kw := cfg.Keywords
	return &Classifier{
		confidenceThreshold: cfg.ConfidenceThreshold,
		latencyThreshold:    cfg.LatencyThreshold,
		leading: []keywordRule{
			{RuleComplaint, models.ReasonCustomerComplaint, lower(kw.Complaint)},
			{RuleFinancial, models.ReasonPriceNegotiation, lower(kw.Financial)},
			{RuleCustom, models.ReasonCustomRequirements, lower(kw.Custom)},
			{RuleTechnical, models.ReasonTechnicalIssue, lower(kw.Technical)},
		},
		emergency: keywordRule{RuleEmergency, models.ReasonEmergency, lower(kw.Emergency)},
	}
}

// Default returns a Classifier built from the default configuration.
func Default() *Classifier {
	return New(config.Default().Classifier)
}

// Classify evaluates the rules in fixed order and returns the first match.
// The order is a tie-break policy: a query matching several categories gets
// the reason of the earliest rule. Classify never returns an inconclusive
// result; when no rule fires the query stays on the automated path.
func (c *Classifier) Classify(query string, confidence float64, latency time.Duration) Decision {
	d, _ := c.Explain(query, confidence, latency)
	return d
}

// Explain is Classify plus the name of the rule that fired ("" when none).
func (c *Classifier) Explain(query string, confidence float64, latency time.Duration) (Decision, string) {
	q := strings.ToLower(query)

	for _, r := range c.leading {
		if containsAny(q, r.keywords) {
			return Decision{Escalate: true, Reason: r.reason}, r.name
		}
	}
	if confidence < c.confidenceThreshold {
		return Decision{Escalate: true, Reason: models.ReasonComplexQuery}, RuleConfidence
	}
	if latency > c.latencyThreshold {
		return Decision{Escalate: true, Reason: models.ReasonComplexQuery}, RuleLatency
	}
	if containsAny(q, c.emergency.keywords) {
		return Decision{Escalate: true, Reason: c.emergency.reason}, c.emergency.name
	}
	return Decision{}, ""
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if k != "" && strings.Contains(s, k) {
			return true
		}
	}
	return false
}

func lower(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, strings.ToLower(strings.TrimSpace(s)))
	}
	return out
}
