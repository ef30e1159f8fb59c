package resolve

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	"spool/internal/clock"
	"spool/internal/config"
	"spool/internal/ipcsession"
	"spool/internal/logging"
)

// Session is the connection handle the client talks through.
// *ipcsession.Session implements it. Every successful Access is paired
// with a Done once the exchange on the connection is over.
type Session interface {
	Access(ctx context.Context) (net.Conn, error)
	Done()
	Recover()
	Free()
}

// Client issues rewrite and resolve requests over one session. Requests
// are serialized; the client is safe for concurrent use.
type Client struct {
	mu        sync.Mutex
	session   Session
	clock     clock.Clock
	logger    *slog.Logger
	retry     RetryPolicy
	legacyKey bool

	rewriteCache rewriteSlot
	resolveCache resolveSlot
}

// Option customizes a Client.
type Option func(*Client)

// WithClock replaces the time source used for backoff.
func WithClock(c clock.Clock) Option {
	return func(cl *Client) { cl.clock = clock.Ensure(c) }
}

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) Option {
	return func(cl *Client) { cl.logger = logging.NewComponentLogger(logger, "resolve") }
}

// WithRetryPolicy replaces the retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(cl *Client) { cl.retry = p.normalized() }
}

// WithLegacyRewriteCacheKey keys the rewrite cache on the address alone.
// A rewrite through one ruleset is then returned for a later request with
// a different ruleset and the same address.
func WithLegacyRewriteCacheKey(enabled bool) Option {
	return func(cl *Client) { cl.legacyKey = enabled }
}

// New returns a client using session.
func New(session Session, opts ...Option) *Client {
	c := &Client{
		session: session,
		clock:   clock.Real{},
		logger:  logging.NewComponentLogger(nil, "resolve"),
		retry:   DefaultRetryPolicy(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewFromConfig builds a client and its session from the IPC settings.
func NewFromConfig(cfg *config.Config, logger *slog.Logger, opts ...Option) *Client {
	class, name := cfg.RewriteServiceName()
	session := ipcsession.New(class, name, cfg.IdleTimeout(), cfg.TTL(),
		ipcsession.WithDialer(ipcsession.UnixDialer{Dir: cfg.Paths.SocketDir, Timeout: 10 * time.Second}),
		ipcsession.WithLogger(logger))
	base := []Option{
		WithLogger(logger),
		WithRetryPolicy(RetryPolicy{
			MaxAttempts: cfg.IPC.RetryAttempts,
			BaseDelay:   time.Duration(cfg.IPC.RetryBaseDelayMS) * time.Millisecond,
			MaxDelay:    time.Duration(cfg.IPC.RetryMaxDelayMS) * time.Millisecond,
			Multiplier:  2,
		}),
		WithLegacyRewriteCacheKey(cfg.IPC.LegacyRewriteCacheKey),
	}
	return New(session, append(base, opts...)...)
}

// Close frees the session.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session.Free()
}
