// Package scenario runs policy assertion files: each case names a role
// and an action and states the decision the gateway must reach.
package scenario

// Case is one test case within a scenario.
type Case struct {
	Role     string `yaml:"role"`
	Action   string `yaml:"action,omitempty"`
	Resource string `yaml:"resource"`
	// Sensitive overrides tool classification when set.
	Sensitive *bool  `yaml:"sensitive,omitempty"`
	Expect    string `yaml:"expect"`
	// Risk, when set, must equal the computed score.
	Risk *float64 `yaml:"risk,omitempty"`
}

// Scenario is a named collection of policy test cases.
type Scenario struct {
	Name string `yaml:"name"`
	// Threshold overrides the policy threshold for this file.
	Threshold *float64 `yaml:"threshold,omitempty"`
	Cases     []Case   `yaml:"cases"`
}

// CaseResult is the outcome of evaluating one test case.
type CaseResult struct {
	Index    int     `json:"index"`
	Passed   bool    `json:"passed"`
	Role     string  `json:"role"`
	Action   string  `json:"action"`
	Resource string  `json:"resource"`
	Expected string  `json:"expected"`
	Actual   string  `json:"actual"`
	Risk     float64 `json:"risk"`
	Reason   string  `json:"reason"`
}

// RunResult is the outcome of running all cases in one scenario file.
type RunResult struct {
	File   string       `json:"file"`
	Name   string       `json:"name"`
	Total  int          `json:"total"`
	Passed int          `json:"passed"`
	Failed int          `json:"failed"`
	Cases  []CaseResult `json:"cases"`
}
