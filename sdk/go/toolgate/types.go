package toolgate

import (
	"context"
	"fmt"
)

// Decision is the gateway outcome for an action.
type Decision string

const (
	Approved        Decision = "APPROVED"
	Denied          Decision = "DENIED"
	PendingApproval Decision = "PENDING_APPROVAL"
)

// Action describes what a tool intends to do.
type Action struct {
	// Kind is execute, register_tool or register_agent. Empty means execute.
	Kind string
	// Resource is the tool name, optionally followed by arguments.
	Resource string
	// Sensitive overrides the gateway's classification when non-nil.
	Sensitive *bool
	Metadata  map[string]string
}

func (a Action) kind() string {
	if a.Kind == "" {
		return "execute"
	}
	return a.Kind
}

// Result is a recorded gateway decision.
type Result struct {
	ActionID  string
	Decision  Decision
	RiskScore float64
	Threshold float64
	Reason    string
	EntryID   uint64
}

// Allowed reports whether the action may proceed.
func (r Result) Allowed() bool {
	return r.Decision == Approved
}

// BlockedError is returned when the gateway denies or holds an action.
type BlockedError struct {
	Action   Action
	ActionID string
	Decision Decision
	Reason   string
	Risk     float64
}

func (e *BlockedError) Error() string {
	if e.Decision == PendingApproval {
		return fmt.Sprintf("toolgate held %s (%s): %s", e.ActionID, e.Decision, e.Reason)
	}
	return fmt.Sprintf("toolgate blocked (%s): %s", e.Decision, e.Reason)
}

// Authorizer asks the gateway for a recorded decision.
type Authorizer interface {
	Authorize(ctx context.Context, action Action) (Result, error)
}

// ToolFunc is the function signature that Wrap guards.
type ToolFunc func(ctx context.Context, action Action) (any, error)

// Wrap returns a ToolFunc that calls fn only for approved actions.
// Gateway errors are returned as they are and fn is not called.
func Wrap(a Authorizer, fn ToolFunc) ToolFunc {
	return func(ctx context.Context, action Action) (any, error) {
		res, err := a.Authorize(ctx, action)
		if err != nil {
			return nil, err
		}
		if !res.Allowed() {
			return nil, &BlockedError{
				Action:   action,
				ActionID: res.ActionID,
				Decision: res.Decision,
				Reason:   res.Reason,
				Risk:     res.RiskScore,
			}
		}
		return fn(ctx, action)
	}
}
