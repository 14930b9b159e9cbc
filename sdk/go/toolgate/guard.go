package toolgate

import (
	"context"
	"errors"

	"github.com/ppiankov/toolgate/internal/gateway"
	"github.com/ppiankov/toolgate/internal/identity"
	"github.com/ppiankov/toolgate/internal/model"
)

// Guard authorizes actions against an in-process gateway as one actor.
// Safe for concurrent tool calls.
type Guard struct {
	gw    *gateway.Gateway
	actor identity.Actor
}

// NewGuard binds a gateway to the actor whose tool calls it guards.
func NewGuard(gw *gateway.Gateway, actorID, role string) (*Guard, error) {
	if gw == nil {
		return nil, errors.New("toolgate: nil gateway")
	}
	r, err := model.ParseRole(role)
	if err != nil {
		return nil, err
	}
	if actorID == "" {
		return nil, errors.New("toolgate: empty actor id")
	}
	return &Guard{gw: gw, actor: identity.Actor{ID: actorID, Role: r}}, nil
}

// Authorize records a decision for action.
func (g *Guard) Authorize(ctx context.Context, action Action) (Result, error) {
	d, err := g.gw.Authorize(ctx, gateway.Request{
		Actor:     g.actor,
		Action:    action.kind(),
		Resource:  action.Resource,
		Sensitive: action.Sensitive,
		Metadata:  action.Metadata,
	})
	if err != nil {
		return Result{}, err
	}
	return Result{
		ActionID:  d.ActionID,
		Decision:  Decision(d.Decision),
		RiskScore: d.RiskScore,
		Threshold: d.Threshold,
		Reason:    d.Reason,
		EntryID:   d.EntryID,
	}, nil
}

// Check previews the decision without recording it.
func (g *Guard) Check(action Action) (Result, error) {
	d, err := g.gw.Check(gateway.Request{
		Actor:     g.actor,
		Action:    action.kind(),
		Resource:  action.Resource,
		Sensitive: action.Sensitive,
	})
	if err != nil {
		return Result{}, err
	}
	return Result{
		Decision:  Decision(d.Decision),
		RiskScore: d.RiskScore,
		Threshold: d.Threshold,
		Reason:    d.Reason,
	}, nil
}

// Wrap guards fn with this Guard.
func (g *Guard) Wrap(fn ToolFunc) ToolFunc {
	return Wrap(g, fn)
}
