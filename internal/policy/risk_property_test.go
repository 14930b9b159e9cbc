package policy

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/ppiankov/toolgate/internal/model"
)

var orderedRoles = []model.Role{
	model.RoleGuest,
	model.RoleReadOnly,
	model.RoleAnalyst,
	model.RoleBlueTeam,
	model.RoleRedTeam,
}

func resourceGen() gopter.Gen {
	return gen.OneConstOf("echo", "math_eval", "http_request", "shell_exec", "file_write", "unknown_tool", "tools/web_fetch")
}

// Property: for contexts differing only in role, score follows role tier.
func TestPropertyRoleMonotonic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)
	s := DefaultScorer()

	properties.Property("score is non-decreasing in role tier", prop.ForAll(
		func(i int, resource string, register bool) bool {
			kind := model.ActionExecute
			if register {
				kind = model.ActionRegisterTool
			}
			lo, err1 := s.Score(RiskContext{Role: orderedRoles[i], Action: kind, Resource: resource})
			hi, err2 := s.Score(RiskContext{Role: orderedRoles[i+1], Action: kind, Resource: resource})
			return err1 == nil && err2 == nil && lo <= hi
		},
		gen.IntRange(0, len(orderedRoles)-2),
		resourceGen(),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

// Property: for contexts differing only in sensitivity, plain <= sensitive < registration.
func TestPropertySensitivityMonotonic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)
	s := DefaultScorer()

	properties.Property("sensitivity tiers are ordered", prop.ForAll(
		func(i int, resource string) bool {
			role := model.Roles[i]
			off, on := false, true
			plain, _ := s.Score(RiskContext{Role: role, Action: model.ActionExecute, Resource: resource, Sensitive: &off})
			sensitive, _ := s.Score(RiskContext{Role: role, Action: model.ActionExecute, Resource: resource, Sensitive: &on})
			register, _ := s.Score(RiskContext{Role: role, Action: model.ActionRegisterTool, Resource: resource})
			return plain >= 0 && sensitive >= plain && register > sensitive
		},
		gen.IntRange(0, len(model.Roles)-1),
		resourceGen(),
	))

	properties.TestingRun(t)
}

// Property: every score lies in [0,1] for any valid weights.
func TestPropertyScoreBounded(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("score within [0,1]", prop.ForAll(
		func(exec, sens, red float64, i int) bool {
			w := DefaultConfig().Weights
			w.Base.Execute = exec
			w.Sensitive = sens
			w.Roles.RedTeam = red
			w.Base.Registration = 1
			s, err := NewScorer(w, DefaultSensitiveTools)
			if err != nil {
				return true // invalid weights are rejected, nothing to score
			}
			score, err := s.Score(RiskContext{Role: model.Roles[i], Action: model.ActionExecute, Resource: "http_request"})
			return err == nil && score >= 0 && score <= 1
		},
		gen.Float64Range(0, 0.5),
		gen.Float64Range(0, 0.5),
		gen.Float64Range(0.15, 0.5),
		gen.IntRange(0, len(model.Roles)-1),
	))

	properties.TestingRun(t)
}
