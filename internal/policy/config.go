package policy

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/toolgate/internal/alert"
	"github.com/ppiankov/toolgate/internal/model"
)

// DefaultThreshold is the approval threshold used when none is configured.
const DefaultThreshold = 0.5

// BaseWeights are the starting scores per action tier.
type BaseWeights struct {
	Execute      float64 `yaml:"execute" json:"execute"`
	Registration float64 `yaml:"registration" json:"registration"`
}

// RoleWeights maps roles to their risk increments.
type RoleWeights struct {
	Guest         float64 `yaml:"guest" json:"guest"`
	ReadOnly      float64 `yaml:"read_only" json:"read_only"`
	Analyst       float64 `yaml:"analyst" json:"analyst"`
	BlueTeam      float64 `yaml:"blue_team" json:"blue_team"`
	RedTeam       float64 `yaml:"red_team" json:"red_team"`
	Administrator float64 `yaml:"administrator" json:"administrator"`
}

// WeightFor returns the risk increment for a role.
func (rw RoleWeights) WeightFor(r model.Role) float64 {
	switch r {
	case model.RoleGuest:
		return rw.Guest
	case model.RoleReadOnly:
		return rw.ReadOnly
	case model.RoleAnalyst:
		return rw.Analyst
	case model.RoleBlueTeam:
		return rw.BlueTeam
	case model.RoleRedTeam:
		return rw.RedTeam
	case model.RoleAdministrator:
		return rw.Administrator
	default:
		return 0
	}
}

// Weights holds every term of the risk score.
type Weights struct {
	Base      BaseWeights `yaml:"base" json:"base"`
	Roles     RoleWeights `yaml:"roles" json:"roles"`
	Sensitive float64     `yaml:"sensitive" json:"sensitive"`
}

// Validate enforces the ordering invariants the scorer guarantees:
// role increments are non-negative and non-decreasing from guest to red_team,
// administrator does not exceed red_team, a sensitive execute stays strictly
// below both 1 and a registration.
func (w Weights) Validate() error {
	terms := map[string]float64{
		"weights.base.execute":      w.Base.Execute,
		"weights.base.registration": w.Base.Registration,
		"weights.sensitive":         w.Sensitive,
	}
	for _, r := range model.Roles {
		terms["weights.roles."+string(r)] = w.Roles.WeightFor(r)
	}
	for field, v := range terms {
		if v < 0 || v > 1 || v != v {
			return &model.ValidationError{Field: field, Value: v, Reason: "must be within [0,1]"}
		}
	}

	ordered := []model.Role{model.RoleGuest, model.RoleReadOnly, model.RoleAnalyst, model.RoleBlueTeam, model.RoleRedTeam}
	for i := 1; i < len(ordered); i++ {
		lo, hi := w.Roles.WeightFor(ordered[i-1]), w.Roles.WeightFor(ordered[i])
		if hi < lo {
			return &model.ValidationError{
				Field:  "weights.roles." + string(ordered[i]),
				Value:  hi,
				Reason: fmt.Sprintf("must not be below %s (%v)", ordered[i-1], lo),
			}
		}
	}
	if w.Roles.Administrator > w.Roles.RedTeam {
		return &model.ValidationError{Field: "weights.roles.administrator", Value: w.Roles.Administrator, Reason: "administrator is exempt or capped at red_team"}
	}

	step := 1 / scorePrecision
	sensitiveExecute := w.Base.Execute + w.Roles.RedTeam + w.Sensitive
	if sensitiveExecute > 1-step {
		return &model.ValidationError{Field: "weights", Value: sensitiveExecute, Reason: "a sensitive execute must score below 1"}
	}
	if w.Base.Registration < w.Base.Execute+w.Sensitive+step {
		return &model.ValidationError{Field: "weights.base.registration", Value: w.Base.Registration, Reason: "must exceed execute + sensitive"}
	}
	return nil
}

// Config holds all configurable policy parameters.
type Config struct {
	Threshold      float64             `yaml:"threshold" json:"threshold"`
	Weights        Weights             `yaml:"weights" json:"weights"`
	SensitiveTools []string            `yaml:"sensitive_tools" json:"sensitive_tools"`
	PendingTTL     time.Duration       `yaml:"pending_ttl" json:"pending_ttl"`
	Alerts         []alert.AlertConfig `yaml:"alerts" json:"alerts"`
}

// Validate checks the semantic constraints that the schema cannot express.
func (c *Config) Validate() error {
	if c.Threshold < 0 || c.Threshold > 1 || c.Threshold != c.Threshold {
		return &model.ValidationError{Field: "threshold", Value: c.Threshold, Reason: "must be within [0,1]"}
	}
	if c.PendingTTL < 0 {
		return &model.ValidationError{Field: "pending_ttl", Value: c.PendingTTL, Reason: "must not be negative"}
	}
	return c.Weights.Validate()
}

// Clone returns a deep copy of c.
func (c *Config) Clone() *Config {
	out := *c
	out.SensitiveTools = append([]string(nil), c.SensitiveTools...)
	out.Alerts = make([]alert.AlertConfig, len(c.Alerts))
	for i, a := range c.Alerts {
		a.Events = append([]string(nil), a.Events...)
		if a.Headers != nil {
			h := make(map[string]string, len(a.Headers))
			for k, v := range a.Headers {
				h[k] = v
			}
			a.Headers = h
		}
		out.Alerts[i] = a
	}
	return &out
}

// Scorer builds the Scorer described by the config.
func (c *Config) Scorer() (*Scorer, error) {
	return NewScorer(c.Weights, c.SensitiveTools)
}

// DefaultSensitiveTools are tools that reach outside the process or mutate state.
var DefaultSensitiveTools = []string{
	"http_request",
	"web_fetch",
	"browser*",
	"shell*",
	"run_command",
	"code_exec*",
	"python_exec",
	"file_write*",
	"file_delete*",
	"file_move",
	"send_email",
	"send_message",
	"net_*",
}

// DefaultConfig returns the built-in policy config.
func DefaultConfig() *Config {
	tools := make([]string, len(DefaultSensitiveTools))
	copy(tools, DefaultSensitiveTools)
	return &Config{
		Threshold: DefaultThreshold,
		Weights: Weights{
			Base: BaseWeights{
				Execute:      0.10,
				Registration: 0.50,
			},
			Roles: RoleWeights{
				Guest:         0.00,
				ReadOnly:      0.05,
				Analyst:       0.10,
				BlueTeam:      0.15,
				RedTeam:       0.25,
				Administrator: 0.00,
			},
			Sensitive: 0.30,
		},
		SensitiveTools: tools,
		PendingTTL:     24 * time.Hour,
	}
}

// DefaultPath returns ~/.toolgate/policy.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".toolgate", "policy.yaml")
}

// LoadConfig loads policy configuration from a YAML file.
// Empty path falls back to ~/.toolgate/policy.yaml.
// Missing file returns defaults. Invalid YAML or invalid values return an error.
func LoadConfig(path string) (*Config, error) {
	cfg, _, err := LoadConfigWithHash(path)
	return cfg, err
}

// LoadConfigWithHash loads policy configuration and returns its SHA-256 hash.
// The hash is computed over the raw YAML bytes on disk.
// When no file exists (defaults used), the hash is the SHA-256 of empty input.
func LoadConfigWithHash(path string) (*Config, string, error) {
	if path == "" {
		path = DefaultPath()
	}

	var data []byte
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, "", fmt.Errorf("failed to read policy config: %w", err)
		}
		data = raw
	}

	cfg, err := ParseConfig(data)
	if err != nil {
		return nil, "", err
	}
	return cfg, HashBytes(data), nil
}

// ParseConfig decodes YAML over the defaults and validates the result.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if len(data) == 0 {
		return cfg, nil
	}
	if err := validateSchema(data); err != nil {
		return nil, fmt.Errorf("policy config does not match schema: %w", err)
	}
	// Start with defaults, YAML overwrites only specified fields
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse policy config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// HashBytes returns "sha256:<hex>" of the given bytes.
func HashBytes(data []byte) string {
	h := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(h[:])
}

// DefaultConfigYAML returns a commented YAML string for init-policy.
func DefaultConfigYAML() string {
	return `# toolgate policy configuration
# Generated by: toolgate init-policy
#
# score = base + role increment + sensitive increment, clamped to [0,1]
# score > threshold -> PENDING_APPROVAL, otherwise APPROVED

# Approval threshold. Only actors holding modify_risk_threshold may change it at runtime.
threshold: 0.5

weights:
  base:
    execute: 0.10
    # must exceed execute + sensitive
    registration: 0.50
  # must be non-decreasing from guest to red_team; administrator is exempt
  roles:
    guest: 0.0
    read_only: 0.05
    analyst: 0.10
    blue_team: 0.15
    red_team: 0.25
    administrator: 0.0
  sensitive: 0.30

# Tools that add the sensitive increment. Patterns: *x*, *.ext, prefix*, exact.
sensitive_tools:
  - http_request
  - web_fetch
  - browser*
  - shell*
  - run_command
  - code_exec*
  - python_exec
  - file_write*
  - file_delete*
  - file_move
  - send_email
  - send_message
  - net_*

# Pending approvals older than this are denied.
pending_ttl: 24h

# Webhook alerts. events: DENIED, PENDING_APPROVAL, integrity_violation, signing_unavailable
alerts: []
`
}
