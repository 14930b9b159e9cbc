package policy

import (
	"fmt"
	"math"
	"unicode/utf8"

	"github.com/ppiankov/toolgate/internal/model"
)

// scorePrecision fixes scores to four decimal places so that recomputation
// by an auditor reproduces the recorded value exactly.
const scorePrecision = 1e4

// RiskContext is the scorer input, built per request and never persisted.
type RiskContext struct {
	Role     model.Role
	Action   model.ActionKind
	Resource string
	// Sensitive overrides classification when non-nil.
	Sensitive *bool
}

// Validate rejects malformed contexts.
func (c RiskContext) Validate() error {
	if !c.Role.Valid() {
		return &model.ValidationError{Field: "role", Value: c.Role, Reason: "unknown role"}
	}
	if !c.Action.Scoreable() {
		return &model.ValidationError{Field: "action", Value: c.Action, Reason: "not a scoreable action kind"}
	}
	if !utf8.ValidString(c.Resource) {
		return &model.ValidationError{Field: "resource", Value: c.Resource, Reason: "must be valid UTF-8"}
	}
	if toolName(c.Resource) == "" {
		return &model.ValidationError{Field: "resource", Value: c.Resource, Reason: "must not be empty"}
	}
	return nil
}

// Breakdown is the per-term explanation of a score.
type Breakdown struct {
	Base        float64 `json:"base"`
	Role        float64 `json:"role"`
	Sensitivity float64 `json:"sensitivity"`
	Sensitive   bool    `json:"sensitive"`
	// Tier: 0 plain execute, 1 sensitive execute, 2 registration.
	Tier  int     `json:"tier"`
	Score float64 `json:"score"`
}

// Scorer computes deterministic, explainable risk scores.
// A Scorer is immutable; reconfiguration builds a new one.
type Scorer struct {
	weights   Weights
	sensitive []string
}

// NewScorer validates the weights and returns a Scorer.
func NewScorer(w Weights, sensitiveTools []string) (*Scorer, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	tools := make([]string, len(sensitiveTools))
	copy(tools, sensitiveTools)
	return &Scorer{weights: w, sensitive: tools}, nil
}

// DefaultScorer returns a Scorer built from DefaultConfig.
func DefaultScorer() *Scorer {
	cfg := DefaultConfig()
	return &Scorer{weights: cfg.Weights, sensitive: cfg.SensitiveTools}
}

// Weights returns the scorer's weights.
func (s *Scorer) Weights() Weights {
	return s.weights
}

// IsSensitive reports whether the resource's tool is in the sensitive classification.
// Unknown tools are not sensitive.
func (s *Scorer) IsSensitive(resource string) bool {
	name := toolName(resource)
	if name == "" {
		return false
	}
	for _, pattern := range s.sensitive {
		if MatchPattern(pattern, name) {
			return true
		}
	}
	return false
}

// Score returns the clamped risk score for ctx.
func (s *Scorer) Score(ctx RiskContext) (float64, error) {
	b, err := s.Explain(ctx)
	if err != nil {
		return 0, err
	}
	return b.Score, nil
}

// Explain returns the score together with the terms that produced it.
func (s *Scorer) Explain(ctx RiskContext) (Breakdown, error) {
	if err := ctx.Validate(); err != nil {
		return Breakdown{}, err
	}

	var b Breakdown
	b.Role = s.weights.Roles.WeightFor(ctx.Role)

	if ctx.Action.IsRegistration() {
		// Registration is the top sensitivity tier on its own.
		b.Base = s.weights.Base.Registration
		b.Tier = 2
		b.Sensitive = true
	} else {
		b.Base = s.weights.Base.Execute
		if ctx.Sensitive != nil {
			b.Sensitive = *ctx.Sensitive
		} else {
			b.Sensitive = s.IsSensitive(ctx.Resource)
		}
		if b.Sensitive {
			b.Sensitivity = s.weights.Sensitive
			b.Tier = 1
		}
	}

	b.Score = clamp(b.Base + b.Role + b.Sensitivity)
	return b, nil
}

func clamp(v float64) float64 {
	v = math.Round(v*scorePrecision) / scorePrecision
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// FormatScore renders a score with the precision the scorer guarantees.
func FormatScore(v float64) string {
	return fmt.Sprintf("%.4f", v)
}
