// Package gateway composes the permission table, risk scorer, approval gate
// and audit ledger into a single decision point for tool requests.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ppiankov/toolgate/internal/alert"
	"github.com/ppiankov/toolgate/internal/approval"
	"github.com/ppiankov/toolgate/internal/audit"
	"github.com/ppiankov/toolgate/internal/identity"
	"github.com/ppiankov/toolgate/internal/model"
	"github.com/ppiankov/toolgate/internal/policy"
	"github.com/ppiankov/toolgate/internal/signing"
)

var (
	// ErrGatewayHalted is returned for every call after a signing failure until Resume succeeds.
	ErrGatewayHalted = errors.New("gateway: halted after signing failure")
	// ErrPermissionDenied is returned for administrative calls the actor may not make.
	ErrPermissionDenied = errors.New("gateway: permission denied")
	ErrNotFound         = approval.ErrNotFound
	ErrAlreadyResolved  = approval.ErrAlreadyResolved
)

// SystemActor records gateway-initiated changes such as policy reloads.
var SystemActor = identity.Actor{ID: "system", Role: model.RoleAdministrator}

// ThresholdResource is the resource recorded on set_threshold entries.
const ThresholdResource = "approval_threshold"

// Request is one tool call or registration to decide on.
type Request struct {
	Actor    identity.Actor
	Action   string
	Resource string
	// Sensitive overrides classification when non-nil.
	Sensitive *bool
	Metadata  map[string]string
}

// Decision is the outcome of Authorize or Resolve.
type Decision struct {
	ActionID  string           `json:"action_id"`
	Decision  model.Decision   `json:"decision"`
	RiskScore float64          `json:"risk_score"`
	Breakdown policy.Breakdown `json:"breakdown"`
	Threshold float64          `json:"threshold"`
	Reason    string           `json:"reason"`
	EntryID   uint64           `json:"entry_id"`
}

// Resolution approves or denies a held action.
type Resolution struct {
	ActionID string
	Resolver identity.Actor
	Approve  bool
	Reason   string
}

// Config wires a Gateway.
type Config struct {
	Ledger     *audit.Ledger
	Pending    approval.Store
	Policy     *policy.Config
	PolicyHash string
	Logger     *zap.Logger
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// active is the reloadable part of the gateway state.
type active struct {
	policy *policy.Config
	scorer *policy.Scorer
	hash   string
	ttl    time.Duration
	alerts *alert.Dispatcher
}

// Gateway is safe for concurrent use.
type Gateway struct {
	ledger  *audit.Ledger
	gate    *approval.Gate
	pending approval.Store
	state   atomic.Pointer[active]
	halted  atomic.Bool

	// serializes resolutions, expiry and administration
	adminMu sync.Mutex

	logger *zap.Logger
	now    func() time.Time
}

// New validates the policy and returns a Gateway.
func New(cfg Config) (*Gateway, error) {
	if cfg.Ledger == nil {
		return nil, errors.New("gateway: ledger is required")
	}
	if cfg.Pending == nil {
		cfg.Pending = approval.NewMemoryStore()
	}
	if cfg.Policy == nil {
		cfg.Policy = policy.DefaultConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.PolicyHash == "" {
		cfg.PolicyHash = policy.HashBytes(nil)
	}

	st, err := buildState(cfg.Policy, cfg.PolicyHash, cfg.Logger)
	if err != nil {
		return nil, err
	}
	gate, err := approval.NewGate(cfg.Policy.Threshold)
	if err != nil {
		return nil, err
	}

	g := &Gateway{
		ledger:  cfg.Ledger,
		gate:    gate,
		pending: cfg.Pending,
		logger:  cfg.Logger,
		now:     cfg.Clock,
	}
	g.state.Store(st)
	return g, nil
}

func buildState(cfg *policy.Config, hash string, logger *zap.Logger) (*active, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	scorer, err := cfg.Scorer()
	if err != nil {
		return nil, err
	}
	return &active{
		policy: cfg.Clone(),
		scorer: scorer,
		hash:   hash,
		ttl:    cfg.PendingTTL,
		alerts: alert.NewDispatcher(cfg.Alerts, logger),
	}, nil
}

// Threshold returns the current approval threshold.
func (g *Gateway) Threshold() float64 { return g.gate.Threshold() }

// PolicyHash returns the hash of the active policy file.
func (g *Gateway) PolicyHash() string { return g.state.Load().hash }

// Policy returns a copy of the active policy with the threshold in effect.
func (g *Gateway) Policy() *policy.Config {
	cfg := g.state.Load().policy.Clone()
	cfg.Threshold = g.gate.Threshold()
	return cfg
}

// Scorer returns the active risk scorer.
func (g *Gateway) Scorer() *policy.Scorer { return g.state.Load().scorer }

// Halted reports whether the gateway refuses work after a signing failure.
func (g *Gateway) Halted() bool { return g.halted.Load() }

// Ledger returns the underlying audit ledger.
func (g *Gateway) Ledger() *audit.Ledger { return g.ledger }

// Alerts returns the active alert dispatcher, which may be nil.
func (g *Gateway) Alerts() *alert.Dispatcher { return g.state.Load().alerts }

// Check computes the decision Authorize would make without recording it
// or holding the action. The returned ActionID is empty.
func (g *Gateway) Check(req Request) (Decision, error) {
	d, _, err := g.decide(g.state.Load(), req)
	return d, err
}

// decide validates req and scores it against the current policy.
func (g *Gateway) decide(st *active, req Request) (Decision, policy.RiskContext, error) {
	kind, err := model.ParseActionKind(req.Action)
	if err != nil {
		return Decision{}, policy.RiskContext{}, err
	}
	rc := policy.RiskContext{Role: req.Actor.Role, Action: kind, Resource: strings.TrimSpace(req.Resource), Sensitive: req.Sensitive}
	if err := rc.Validate(); err != nil {
		return Decision{}, rc, err
	}
	if req.Actor.ID == "" {
		return Decision{}, rc, &model.ValidationError{Field: "actor_id", Value: req.Actor.ID, Reason: "must not be empty"}
	}

	b, err := st.scorer.Explain(rc)
	if err != nil {
		return Decision{}, rc, err
	}
	threshold := g.gate.Threshold()

	d := Decision{
		RiskScore: b.Score,
		Breakdown: b,
		Threshold: threshold,
	}
	perm, _ := kind.RequiredPermission()
	switch {
	case !policy.HasPermission(req.Actor.Role, perm):
		d.Decision = model.Denied
		d.Reason = fmt.Sprintf("role %s lacks %s", req.Actor.Role, perm)
	case b.Score > threshold:
		d.Decision = model.PendingApproval
		d.Reason = fmt.Sprintf("risk %s exceeds threshold %s", policy.FormatScore(b.Score), policy.FormatScore(threshold))
	default:
		d.Decision = model.Approved
		d.Reason = fmt.Sprintf("risk %s within threshold %s", policy.FormatScore(b.Score), policy.FormatScore(threshold))
	}
	return d, rc, nil
}

// Authorize decides on a request and records the decision.
// A missing permission is a DENIED decision, not an error. Malformed
// requests return a ValidationError and leave no trace.
func (g *Gateway) Authorize(ctx context.Context, req Request) (Decision, error) {
	if g.halted.Load() {
		return Decision{}, ErrGatewayHalted
	}

	st := g.state.Load()
	d, rc, err := g.decide(st, req)
	if err != nil {
		return Decision{}, err
	}
	d.ActionID = uuid.NewString()
	kind := rc.Action

	entry := audit.Entry{
		ActionID:   d.ActionID,
		ActorID:    req.Actor.ID,
		Role:       req.Actor.Role,
		Action:     kind,
		Resource:   rc.Resource,
		Decision:   d.Decision,
		RiskScore:  d.RiskScore,
		Reason:     d.Reason,
		PolicyHash: st.hash,
		Metadata:   req.Metadata,
	}

	// The hold entry commits before the hold becomes resolvable, so a
	// resolution can never precede it in the ledger.
	recorded, err := g.record(ctx, entry)
	if err != nil {
		return Decision{}, err
	}
	if d.Decision == model.PendingApproval {
		held := approval.Pending{
			ActionID:  d.ActionID,
			ActorID:   req.Actor.ID,
			Role:      req.Actor.Role,
			Action:    kind,
			Resource:  rc.Resource,
			RiskScore: d.RiskScore,
			Reason:    d.Reason,
			Metadata:  req.Metadata,
			CreatedAt: g.now().UTC(),
		}
		if err := g.pending.Request(held); err != nil {
			g.closeUnstoredHold(ctx, recorded, err)
			return Decision{}, fmt.Errorf("gateway: hold action: %w", err)
		}
	}
	d.EntryID = recorded.ID

	g.logDecision("authorize", recorded)
	if d.Decision != model.Approved {
		st.alerts.Dispatch(alertFor(recorded, ""))
	}
	return d, nil
}

// closeUnstoredHold denies a recorded hold whose pending record could not
// be written, so the ledger does not end on an unresolvable PENDING_APPROVAL.
func (g *Gateway) closeUnstoredHold(ctx context.Context, hold audit.Entry, cause error) {
	deny := hold
	deny.ID, deny.Timestamp, deny.Signature = 0, "", ""
	deny.Decision = model.Denied
	deny.Reason = "hold could not be stored"
	deny.Metadata = map[string]string{"resolved_by": SystemActor.ID, "resolver_role": string(SystemActor.Role)}
	if _, err := g.record(ctx, deny); err != nil {
		g.logger.Error("failed to close unstored hold",
			zap.String("action_id", hold.ActionID), zap.NamedError("cause", cause), zap.Error(err))
		return
	}
	g.logger.Error("pending store rejected hold, action denied",
		zap.String("action_id", hold.ActionID), zap.Error(cause))
}

// Resolve approves or denies a pending action. The resolver needs
// modify_risk_threshold and may not resolve their own request.
// Exactly one ledger entry is appended per resolved action.
func (g *Gateway) Resolve(ctx context.Context, res Resolution) (Decision, error) {
	if g.halted.Load() {
		return Decision{}, ErrGatewayHalted
	}
	if !res.Resolver.Role.Valid() {
		return Decision{}, &model.ValidationError{Field: "role", Value: res.Resolver.Role, Reason: "unknown role"}
	}
	if !policy.HasPermission(res.Resolver.Role, model.PermModifyRiskThreshold) {
		g.logger.Warn("resolution refused",
			zap.String("action_id", res.ActionID),
			zap.String("resolver", res.Resolver.ID),
			zap.String("role", string(res.Resolver.Role)))
		return Decision{}, fmt.Errorf("%w: role %s lacks %s", ErrPermissionDenied, res.Resolver.Role, model.PermModifyRiskThreshold)
	}

	g.adminMu.Lock()
	defer g.adminMu.Unlock()

	p, err := g.pending.Get(res.ActionID)
	if err != nil {
		return Decision{}, err
	}
	if p.Resolved() {
		return Decision{}, fmt.Errorf("%w: %s is %s", ErrAlreadyResolved, p.ActionID, p.Status)
	}
	if p.ActorID == res.Resolver.ID {
		return Decision{}, fmt.Errorf("%w: actors cannot resolve their own requests", ErrPermissionDenied)
	}

	decision, status := model.Denied, approval.StatusDenied
	verb := "denied"
	if res.Approve {
		decision, status = model.Approved, approval.StatusApproved
		verb = "approved"
	}
	reason := fmt.Sprintf("%s by %s", verb, res.Resolver.ID)
	if r := strings.TrimSpace(res.Reason); r != "" {
		reason += ": " + r
	}
	return g.resolveLocked(ctx, p, decision, status, res.Resolver, reason)
}

func (g *Gateway) resolveLocked(ctx context.Context, p approval.Pending, decision model.Decision, status approval.Status, resolver identity.Actor, reason string) (Decision, error) {
	meta := map[string]string{
		"resolved_by":   resolver.ID,
		"resolver_role": string(resolver.Role),
	}
	for k, v := range p.Metadata {
		if _, taken := meta[k]; !taken {
			meta[k] = v
		}
	}
	st := g.state.Load()
	entry := audit.Entry{
		ActionID:   p.ActionID,
		ActorID:    p.ActorID,
		Role:       p.Role,
		Action:     p.Action,
		Resource:   p.Resource,
		Decision:   decision,
		RiskScore:  p.RiskScore,
		Reason:     reason,
		PolicyHash: st.hash,
		Metadata:   meta,
	}
	recorded, err := g.record(ctx, entry)
	if err != nil {
		return Decision{}, err
	}
	if _, err := g.pending.Resolve(p.ActionID, status, resolver.ID, reason, g.now()); err != nil {
		g.logger.Error("pending store out of sync with ledger",
			zap.String("action_id", p.ActionID), zap.Uint64("entry_id", recorded.ID), zap.Error(err))
		return Decision{}, fmt.Errorf("gateway: mark resolved: %w", err)
	}

	g.logDecision("resolve", recorded)
	if decision == model.Denied {
		st.alerts.Dispatch(alertFor(recorded, ""))
	}
	return Decision{
		ActionID:  p.ActionID,
		Decision:  decision,
		RiskScore: p.RiskScore,
		Threshold: g.gate.Threshold(),
		Reason:    reason,
		EntryID:   recorded.ID,
	}, nil
}

// ExpirePending denies every pending action older than the policy TTL.
// A zero TTL disables expiry.
func (g *Gateway) ExpirePending(ctx context.Context, now time.Time) (int, error) {
	if g.halted.Load() {
		return 0, ErrGatewayHalted
	}
	ttl := g.state.Load().ttl
	if ttl <= 0 {
		return 0, nil
	}

	g.adminMu.Lock()
	defer g.adminMu.Unlock()

	open, err := g.pending.List(approval.StatusPending)
	if err != nil {
		return 0, fmt.Errorf("gateway: list pending: %w", err)
	}
	expired := 0
	for _, p := range open {
		if now.Sub(p.CreatedAt) <= ttl {
			continue
		}
		if _, err := g.resolveLocked(ctx, p, model.Denied, approval.StatusExpired, SystemActor, "approval expired"); err != nil {
			return expired, err
		}
		expired++
	}
	return expired, nil
}

// ListPending returns held actions. Requires view_audit.
func (g *Gateway) ListPending(_ context.Context, actor identity.Actor, status approval.Status) ([]approval.Pending, error) {
	if !actor.Role.Valid() || !policy.HasPermission(actor.Role, model.PermViewAudit) {
		return nil, fmt.Errorf("%w: role %s lacks %s", ErrPermissionDenied, actor.Role, model.PermViewAudit)
	}
	return g.pending.List(status)
}

// ReadAudit returns ledger entries visible to actor.
func (g *Gateway) ReadAudit(ctx context.Context, actor identity.Actor, f audit.Filter) []audit.Entry {
	return g.ledger.Read(ctx, actor.Role, f)
}

// VerifyAudit runs an integrity check. Requires view_audit.
func (g *Gateway) VerifyAudit(ctx context.Context, actor identity.Actor) (audit.IntegrityReport, error) {
	if !actor.Role.Valid() || !policy.HasPermission(actor.Role, model.PermViewAudit) {
		return audit.IntegrityReport{}, fmt.Errorf("%w: role %s lacks %s", ErrPermissionDenied, actor.Role, model.PermViewAudit)
	}
	return g.ledger.VerifyIntegrity(ctx), nil
}

// SetThreshold changes the approval threshold. Attempts by actors without
// modify_risk_threshold are recorded as DENIED and return ErrPermissionDenied.
// Out-of-range values return a ValidationError and are not recorded.
func (g *Gateway) SetThreshold(ctx context.Context, actor identity.Actor, value float64) error {
	if g.halted.Load() {
		return ErrGatewayHalted
	}
	if !actor.Role.Valid() {
		return &model.ValidationError{Field: "role", Value: actor.Role, Reason: "unknown role"}
	}
	if err := approval.ValidateThreshold(value); err != nil {
		return err
	}

	g.adminMu.Lock()
	defer g.adminMu.Unlock()

	old := g.gate.Threshold()
	entry := audit.Entry{
		ActionID:   uuid.NewString(),
		ActorID:    actor.ID,
		Role:       actor.Role,
		Action:     model.ActionSetThreshold,
		Resource:   ThresholdResource,
		PolicyHash: g.state.Load().hash,
		Metadata: map[string]string{
			"from": policy.FormatScore(old),
			"to":   policy.FormatScore(value),
		},
	}

	if !policy.HasPermission(actor.Role, model.PermModifyRiskThreshold) {
		entry.Decision = model.Denied
		entry.Reason = fmt.Sprintf("role %s lacks %s", actor.Role, model.PermModifyRiskThreshold)
		recorded, err := g.record(ctx, entry)
		if err != nil {
			return err
		}
		g.logDecision("set_threshold", recorded)
		g.state.Load().alerts.Dispatch(alertFor(recorded, ""))
		return fmt.Errorf("%w: %s", ErrPermissionDenied, entry.Reason)
	}

	entry.Decision = model.Approved
	entry.Reason = fmt.Sprintf("threshold %s -> %s", policy.FormatScore(old), policy.FormatScore(value))
	recorded, err := g.record(ctx, entry)
	if err != nil {
		return err
	}
	if _, err := g.gate.Swap(value); err != nil {
		return err
	}
	g.logDecision("set_threshold", recorded)
	return nil
}

// ReloadPolicy swaps in a new policy. The change is recorded as a
// reload_policy entry by the system actor before it takes effect.
func (g *Gateway) ReloadPolicy(ctx context.Context, cfg *policy.Config, hash string) error {
	if g.halted.Load() {
		return ErrGatewayHalted
	}
	next, err := buildState(cfg, hash, g.logger)
	if err != nil {
		return err
	}

	g.adminMu.Lock()
	defer g.adminMu.Unlock()

	prev := g.state.Load()
	entry := audit.Entry{
		ActionID:   uuid.NewString(),
		ActorID:    SystemActor.ID,
		Role:       SystemActor.Role,
		Action:     model.ActionReloadPolicy,
		Resource:   hash,
		Decision:   model.Approved,
		Reason:     "policy reloaded",
		PolicyHash: hash,
		Metadata: map[string]string{
			"previous_hash": prev.hash,
			"threshold":     policy.FormatScore(cfg.Threshold),
		},
	}
	recorded, err := g.record(ctx, entry)
	if err != nil {
		return err
	}
	g.state.Store(next)
	if _, err := g.gate.Swap(cfg.Threshold); err != nil {
		return err
	}
	g.logDecision("reload_policy", recorded)
	return nil
}

// Resume clears the halt once a probe signature succeeds.
func (g *Gateway) Resume(_ context.Context) error {
	if !g.halted.Load() {
		return nil
	}
	if err := g.ledger.Probe(); err != nil {
		return err
	}
	g.halted.Store(false)
	g.logger.Info("gateway resumed")
	return nil
}

// record appends to the ledger and halts the gateway on signing failure.
func (g *Gateway) record(ctx context.Context, e audit.Entry) (audit.Entry, error) {
	recorded, err := g.ledger.Append(ctx, e)
	if err == nil {
		return recorded, nil
	}
	if errors.Is(err, signing.ErrSigningUnavailable) {
		if g.halted.CompareAndSwap(false, true) {
			g.logger.Error("signing unavailable, gateway halted", zap.Error(err))
			g.state.Load().alerts.Dispatch(alert.AlertEvent{
				Timestamp: g.now().UTC().Format(audit.TimestampFormat),
				Reason:    err.Error(),
				Type:      alert.TypeSigningUnavailable,
			})
		}
	}
	return audit.Entry{}, err
}

func (g *Gateway) logDecision(op string, e audit.Entry) {
	g.logger.Info("decision",
		zap.String("op", op),
		zap.Uint64("entry_id", e.ID),
		zap.String("action_id", e.ActionID),
		zap.String("actor_id", e.ActorID),
		zap.String("role", string(e.Role)),
		zap.String("action", string(e.Action)),
		zap.String("resource", e.Resource),
		zap.String("decision", string(e.Decision)),
		zap.Float64("risk_score", e.RiskScore),
		zap.String("reason", e.Reason),
	)
}

func alertFor(e audit.Entry, typ string) alert.AlertEvent {
	return alert.AlertEvent{
		Timestamp:  e.Timestamp,
		ActionID:   e.ActionID,
		ActorID:    e.ActorID,
		Role:       string(e.Role),
		Action:     string(e.Action),
		Resource:   e.Resource,
		Decision:   string(e.Decision),
		Reason:     e.Reason,
		RiskScore:  e.RiskScore,
		PolicyHash: e.PolicyHash,
		Type:       typ,
	}
}
