package toolgate

import (
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
)

// Option configures a Client at dial time.
type Option func(*clientConfig)

type clientConfig struct {
	apiKey   string
	bearer   string
	creds    credentials.TransportCredentials
	dialOpts []grpc.DialOption
}

// WithAPIKey authenticates every call with an API key.
func WithAPIKey(key string) Option {
	return func(c *clientConfig) { c.apiKey = key }
}

// WithBearerToken authenticates every call with a JWT.
func WithBearerToken(token string) Option {
	return func(c *clientConfig) { c.bearer = token }
}

// WithTransportCredentials sets TLS credentials. The default is plaintext.
func WithTransportCredentials(creds credentials.TransportCredentials) Option {
	return func(c *clientConfig) { c.creds = creds }
}

// WithDialOptions appends raw gRPC dial options.
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(c *clientConfig) { c.dialOpts = append(c.dialOpts, opts...) }
}
