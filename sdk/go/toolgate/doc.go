// Package toolgate guards Go agent tools with the toolgate gateway.
//
// A Guard runs the gateway in-process; a Client talks to a toolgate
// server over gRPC. Both implement Authorizer, and Wrap turns either
// into a gate in front of a tool function:
//
//	c, err := toolgate.Dial("127.0.0.1:7443", toolgate.WithAPIKey(os.Getenv("TOOLGATE_API_KEY")))
//	fetch := c.Wrap(fetchTool)
//	out, err := fetch(ctx, toolgate.Action{Resource: "http_request https://example.com"})
//
// A denied or held action returns a *BlockedError and the tool is not
// called. A held action's ActionID can be approved with `toolgate approve`.
package toolgate
