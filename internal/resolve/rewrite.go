package resolve

import (
	"context"
	"fmt"
	"net"

	"github.com/VictoriaMetrics/metrics"

	"spool/internal/attr"
	"spool/internal/logging"
	"spool/internal/quote"
)

const (
	// RulesetCanonical and RulesetLocal are the rulesets the rewrite
	// service knows.
	RulesetCanonical = "canonical"
	RulesetLocal     = "local"

	requestRewrite = "rewrite"
	opRewrite      = "rewrite"
)

// Rewrite rewrites the external-form addr through ruleset.
func (c *Client) Rewrite(ctx context.Context, ruleset, addr string) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	metrics.GetOrCreateCounter(`spool_resolve_requests_total{op="rewrite"}`).Inc()
	key := rewriteKey{ruleset: ruleset, address: addr}
	if c.legacyKey {
		key.ruleset = ""
	}
	if result, ok := c.rewriteCache.get(key); ok {
		metrics.GetOrCreateCounter(`spool_resolve_cache_hits_total{op="rewrite"}`).Inc()
		return result, nil
	}

	request := []attr.Attr{
		attr.String(attr.NameRequest, requestRewrite),
		attr.String(attr.NameRule, ruleset),
		attr.String(attr.NameAddress, addr),
	}
	if err := attr.Check(request...); err != nil {
		return "", fmt.Errorf("rewrite %q: %w", addr, err)
	}

	var (
		serverFlags int
		result      string
	)
	err := c.withRetry(ctx, opRewrite, func(conn net.Conn) error {
		w := attr.NewWriter(conn)
		if err := w.Write(request...); err != nil {
			return fmt.Errorf("write rewrite request: %w", err)
		}
		if err := w.Flush(); err != nil {
			return fmt.Errorf("send rewrite request: %w", err)
		}
		if err := attr.NewReader(conn).Read(
			attr.IntField(attr.NameFlags, &serverFlags),
			attr.StringField(attr.NameAddress, &result),
		); err != nil {
			return fmt.Errorf("read rewrite reply: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	if serverFlags&ServerFlagFail != 0 {
		logging.WarnWithContext(c.logger, "rewrite service reported a table failure", "rewrite_table_fail",
			logging.String("ruleset", ruleset),
			logging.String("address", addr),
			logging.String(logging.FieldImpact, "result returned without caching"))
		return result, nil
	}
	c.rewriteCache.put(key, result)
	c.logger.Debug("address rewritten",
		logging.String("ruleset", ruleset),
		logging.String("address", addr),
		logging.String("result", result))
	return result, nil
}

// RewriteInternal is Rewrite for an internal-form address: the local
// part is quoted for the request and the result unquoted.
func (c *Client) RewriteInternal(ctx context.Context, ruleset, addr string) (string, error) {
	result, err := c.Rewrite(ctx, ruleset, quote.Local(addr))
	if err != nil {
		return "", err
	}
	return quote.Unquote(result), nil
}
