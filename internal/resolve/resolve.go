package resolve

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/VictoriaMetrics/metrics"

	"spool/internal/attr"
	"spool/internal/logging"
	"spool/internal/quote"
)

const (
	requestResolve = "resolve"
	opResolve      = "resolve"
)

// ErrIncompleteReply reports a well-formed resolve reply that lacks a
// transport or recipient. It is retried like any protocol failure.
var ErrIncompleteReply = errors.New("incomplete resolve reply")

// Reply is the routing decision for one recipient.
type Reply struct {
	Transport string
	Nexthop   string
	Recipient string
	Flags     Flags
}

// Resolve asks the rewrite service where mail from sender to the
// external-form addr should go.
func (c *Client) Resolve(ctx context.Context, sender, addr string) (Reply, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	metrics.GetOrCreateCounter(`spool_resolve_requests_total{op="resolve"}`).Inc()
	key := resolveKey{sender: sender, address: addr}
	if reply, ok := c.resolveCache.get(key); ok {
		metrics.GetOrCreateCounter(`spool_resolve_cache_hits_total{op="resolve"}`).Inc()
		return reply, nil
	}

	request := []attr.Attr{
		attr.String(attr.NameRequest, requestResolve),
		attr.String(attr.NameSender, sender),
		attr.String(attr.NameAddress, addr),
	}
	if err := attr.Check(request...); err != nil {
		return Reply{}, fmt.Errorf("resolve %q: %w", addr, err)
	}

	var (
		serverFlags int
		reply       Reply
	)
	err := c.withRetry(ctx, opResolve, func(conn net.Conn) error {
		w := attr.NewWriter(conn)
		if err := w.Write(request...); err != nil {
			return fmt.Errorf("write resolve request: %w", err)
		}
		if err := w.Flush(); err != nil {
			return fmt.Errorf("send resolve request: %w", err)
		}
		var flags int
		if err := attr.NewReader(conn).Read(
			attr.IntField(attr.NameFlags, &serverFlags),
			attr.StringField(attr.NameTransport, &reply.Transport),
			attr.StringField(attr.NameNexthop, &reply.Nexthop),
			attr.StringField(attr.NameRecipient, &reply.Recipient),
			attr.IntField(attr.NameFlags, &flags),
		); err != nil {
			return fmt.Errorf("read resolve reply: %w", err)
		}
		reply.Flags = Flags(flags)
		if reply.Transport == "" {
			return fmt.Errorf("null transport for <%s>: %w", addr, ErrIncompleteReply)
		}
		if reply.Recipient == "" && addr != "" {
			return fmt.Errorf("null recipient for <%s>: %w", addr, ErrIncompleteReply)
		}
		return nil
	})
	if err != nil {
		return Reply{}, err
	}

	if serverFlags&ServerFlagFail != 0 {
		reply.Flags |= FlagFail
	}
	if reply.Flags&FlagFail != 0 {
		c.resolveCache.clear()
		logging.WarnWithContext(c.logger, "resolve result depends on a failing table", "resolve_table_fail",
			logging.String("address", addr),
			logging.String(logging.FieldImpact, "delivery should be deferred"))
		return reply, nil
	}
	c.resolveCache.put(key, reply)
	c.logger.Debug("address resolved",
		logging.String("address", addr),
		logging.String("transport", reply.Transport),
		logging.String("nexthop", reply.Nexthop),
		logging.String("recipient", reply.Recipient),
		logging.String("flags", reply.Flags.String()))
	return reply, nil
}

// ResolveInternal is Resolve for internal-form addresses. The recipient
// of the reply is returned in internal form.
func (c *Client) ResolveInternal(ctx context.Context, sender, addr string) (Reply, error) {
	reply, err := c.Resolve(ctx, quote.Local(sender), quote.Local(addr))
	if err != nil {
		return Reply{}, err
	}
	reply.Recipient = quote.Unquote(reply.Recipient)
	return reply, nil
}
