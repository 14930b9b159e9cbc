package toolgate

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	toolgatev1 "github.com/ppiankov/toolgate/api/toolgate/v1"
)

// Client talks to a toolgate server. The caller's identity comes from the
// API key or token it was dialed with.
type Client struct {
	conn *grpc.ClientConn
	rpc  toolgatev1.GatekeeperClient
}

// Dial connects to a toolgate server at target.
func Dial(target string, opts ...Option) (*Client, error) {
	var cfg clientConfig
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.creds == nil {
		cfg.creds = insecure.NewCredentials()
	}

	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(cfg.creds),
		grpc.WithUnaryInterceptor(credentialInterceptor(cfg.apiKey, cfg.bearer)),
	}, cfg.dialOpts...)

	conn, err := grpc.NewClient(target, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("toolgate: dial %s: %w", target, err)
	}
	return &Client{conn: conn, rpc: toolgatev1.NewGatekeeperClient(conn)}, nil
}

func credentialInterceptor(apiKey, bearer string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		if apiKey != "" {
			ctx = metadata.AppendToOutgoingContext(ctx, "x-api-key", apiKey)
		}
		if bearer != "" {
			ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+bearer)
		}
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Authorize records a decision for action on the server.
func (c *Client) Authorize(ctx context.Context, action Action) (Result, error) {
	d, err := c.rpc.Authorize(ctx, &toolgatev1.AuthorizeRequest{
		Action:    action.kind(),
		Resource:  action.Resource,
		Sensitive: action.Sensitive,
		Metadata:  action.Metadata,
	})
	if err != nil {
		return Result{}, err
	}
	return resultFromPB(d), nil
}

// Wrap guards fn with this Client.
func (c *Client) Wrap(fn ToolFunc) ToolFunc {
	return Wrap(c, fn)
}

// Resolve approves or denies a held action.
func (c *Client) Resolve(ctx context.Context, actionID string, approve bool, reason string) (Result, error) {
	d, err := c.rpc.Resolve(ctx, &toolgatev1.ResolveRequest{ActionID: actionID, Approve: approve, Reason: reason})
	if err != nil {
		return Result{}, err
	}
	return resultFromPB(d), nil
}

// Pending lists held actions with the given status; empty lists all.
func (c *Client) Pending(ctx context.Context, status string) ([]toolgatev1.PendingAction, error) {
	resp, err := c.rpc.ListPending(ctx, &toolgatev1.ListPendingRequest{Status: status})
	if err != nil {
		return nil, err
	}
	return resp.Pending, nil
}

// AuditQuery filters ReadAudit.
type AuditQuery struct {
	ActorID  string
	Resource string
	Decision string
	ActionID string
	From     time.Time
	To       time.Time
	Limit    int
}

// ReadAudit returns ledger entries visible to the caller.
func (c *Client) ReadAudit(ctx context.Context, q AuditQuery) ([]toolgatev1.AuditEntry, error) {
	req := &toolgatev1.ReadAuditRequest{
		ActorID:  q.ActorID,
		Resource: q.Resource,
		Decision: q.Decision,
		ActionID: q.ActionID,
		Limit:    q.Limit,
	}
	if !q.From.IsZero() {
		req.From = q.From.UTC().Format(time.RFC3339)
	}
	if !q.To.IsZero() {
		req.To = q.To.UTC().Format(time.RFC3339)
	}
	resp, err := c.rpc.ReadAudit(ctx, req)
	if err != nil {
		return nil, err
	}
	return resp.Entries, nil
}

// VerifyAudit asks the server to verify its ledger.
func (c *Client) VerifyAudit(ctx context.Context) (*toolgatev1.IntegrityReport, error) {
	return c.rpc.VerifyAudit(ctx)
}

// SetThreshold changes the approval threshold and returns the value in effect.
func (c *Client) SetThreshold(ctx context.Context, value float64) (float64, error) {
	resp, err := c.rpc.SetThreshold(ctx, &toolgatev1.SetThresholdRequest{Value: value})
	if err != nil {
		return 0, err
	}
	return resp.Threshold, nil
}

func resultFromPB(d *toolgatev1.Decision) Result {
	return Result{
		ActionID:  d.ActionID,
		Decision:  Decision(d.Decision),
		RiskScore: d.RiskScore,
		Threshold: d.Threshold,
		Reason:    d.Reason,
		EntryID:   d.EntryID,
	}
}
