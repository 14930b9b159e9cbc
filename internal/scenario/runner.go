package scenario

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/toolgate/internal/audit"
	"github.com/ppiankov/toolgate/internal/gateway"
	"github.com/ppiankov/toolgate/internal/identity"
	"github.com/ppiankov/toolgate/internal/model"
	"github.com/ppiankov/toolgate/internal/policy"
	"github.com/ppiankov/toolgate/internal/signing"
)

// Invalid is the actual outcome of a case the gateway rejects as malformed.
const Invalid = "INVALID"

// NewDryRunGateway returns a gateway over a throwaway in-memory ledger,
// for previews that never record.
func NewDryRunGateway(cfg *policy.Config, hash string) (*gateway.Gateway, error) {
	key, err := signing.GenerateKey()
	if err != nil {
		return nil, err
	}
	signer, err := signing.NewHMAC(key)
	if err != nil {
		return nil, err
	}
	ledger, err := audit.Open(context.Background(), audit.NewMemoryStore(), signer)
	if err != nil {
		return nil, err
	}
	return gateway.New(gateway.Config{Ledger: ledger, Policy: cfg, PolicyHash: hash})
}

// Run evaluates all cases in a scenario against cfg. Cases are independent
// and nothing is recorded.
func Run(s *Scenario, cfg *policy.Config) (*RunResult, error) {
	evalCfg := *cfg
	if s.Threshold != nil {
		evalCfg.Threshold = *s.Threshold
	}
	gw, err := NewDryRunGateway(&evalCfg, policy.HashBytes(nil))
	if err != nil {
		return nil, err
	}

	result := &RunResult{
		Name:  s.Name,
		Total: len(s.Cases),
		Cases: []CaseResult{},
	}

	for i, c := range s.Cases {
		action := c.Action
		if action == "" {
			action = string(model.ActionExecute)
		}
		cr := CaseResult{
			Index:    i + 1,
			Role:     c.Role,
			Action:   action,
			Resource: c.Resource,
			Expected: NormalizeDecision(c.Expect),
		}

		role, err := model.ParseRole(c.Role)
		if err == nil {
			var d gateway.Decision
			d, err = gw.Check(gateway.Request{
				Actor:     identity.Actor{ID: "scenario", Role: role},
				Action:    action,
				Resource:  c.Resource,
				Sensitive: c.Sensitive,
			})
			cr.Actual, cr.Risk, cr.Reason = string(d.Decision), d.RiskScore, d.Reason
		}
		if err != nil {
			cr.Actual, cr.Reason = Invalid, err.Error()
		}

		cr.Passed = cr.Actual == cr.Expected
		if cr.Passed && c.Risk != nil && *c.Risk != cr.Risk {
			cr.Passed = false
			cr.Reason = fmt.Sprintf("risk %s, expected %s", policy.FormatScore(cr.Risk), policy.FormatScore(*c.Risk))
		}
		if cr.Passed {
			result.Passed++
		} else {
			result.Failed++
		}
		result.Cases = append(result.Cases, cr)
	}

	return result, nil
}

// NormalizeDecision maps the spellings accepted in scenario files to a
// decision name.
func NormalizeDecision(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "approve", "approved", "allow":
		return string(model.Approved)
	case "deny", "denied":
		return string(model.Denied)
	case "pending", "pending_approval", "hold", "require_approval":
		return string(model.PendingApproval)
	case "invalid", "error":
		return Invalid
	default:
		return strings.ToUpper(s)
	}
}

// LoadAndRun loads a scenario YAML file and the policy, then runs.
func LoadAndRun(path, policyPath string) (*RunResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario %s: %w", path, err)
	}

	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}

	cfg, err := policy.LoadConfig(policyPath)
	if err != nil {
		return nil, fmt.Errorf("load policy: %w", err)
	}

	result, err := Run(&s, cfg)
	if err != nil {
		return nil, err
	}
	result.File = path
	return result, nil
}
