package extension

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-zmq/transport"
)

type config struct {
	transport     transport.Context
	log           *zap.Logger
	metrics       prometheus.Registerer
	maxPollers    int
	handleLimit   int
	exclusivePoll bool
}

// Option configures Load.
type Option func(*config)

// WithTransport sets the transport context. The extension takes ownership
// and terminates it on Unload. Defaults to a zmq4-backed context.
func WithTransport(t transport.Context) Option {
	return func(c *config) { c.transport = t }
}

// WithLogger sets the logger shared by every component.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.log = l
		}
	}
}

// WithMaxPollers caps the number of concurrently running pollers.
func WithMaxPollers(n int) Option {
	return func(c *config) { c.maxPollers = n }
}

// WithExclusivePolling rejects a poll on a socket that already has one in
// flight instead of letting the pollers race for the next message.
func WithExclusivePolling(on bool) Option {
	return func(c *config) { c.exclusivePoll = on }
}

// WithHandleLimit caps the number of live handles across both types.
func WithHandleLimit(n int) Option {
	return func(c *config) { c.handleLimit = n }
}

// WithMetrics registers the extension's collectors with reg on Load and
// removes them on Unload.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(c *config) { c.metrics = reg }
}
