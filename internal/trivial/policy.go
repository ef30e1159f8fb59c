package trivial

import (
	"log/slog"
	"strings"

	"spool/internal/config"
	"spool/internal/dict"
	"spool/internal/logging"
	"spool/internal/maps"
	"spool/internal/resolve"
)

const errorTransport = "error"

// Policy answers rewrite and resolve requests. Its map sets are not safe
// for concurrent use, so callers serialize access.
type Policy struct {
	cfg       config.Rewrite
	local     map[string]struct{}
	canonical *maps.MapSet
	relocated *maps.MapSet
	transport *maps.MapSet
	logger    *slog.Logger
}

// Result is the outcome of a resolve request.
type Result struct {
	Transport string
	Nexthop   string
	Recipient string
	Flags     resolve.Flags
}

// NewPolicy opens the configured lookup tables through reg.
func NewPolicy(cfg *config.Config, reg *dict.Registry, logger *slog.Logger) (*Policy, error) {
	p := &Policy{
		cfg:    cfg.Rewrite,
		local:  make(map[string]struct{}, len(cfg.Rewrite.MyDestination)),
		logger: logging.NewComponentLogger(logger, "trivial"),
	}
	for _, domain := range cfg.Rewrite.MyDestination {
		p.local[strings.ToLower(domain)] = struct{}{}
	}

	var err error
	if p.canonical, err = maps.New(reg, "canonical_maps", cfg.Maps.CanonicalMaps, dict.FlagLock, logger); err != nil {
		return nil, err
	}
	if p.relocated, err = maps.New(reg, "relocated_maps", cfg.Maps.RelocatedMaps, dict.FlagLock, logger); err != nil {
		p.Close()
		return nil, err
	}
	if p.transport, err = maps.New(reg, "transport_maps", cfg.Maps.TransportMaps, dict.FlagLock, logger); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

// Close releases the lookup tables.
func (p *Policy) Close() {
	p.canonical = p.canonical.Free()
	p.relocated = p.relocated.Free()
	p.transport = p.transport.Free()
}

// Rewrite applies ruleset to addr. Unknown rulesets leave the address
// unchanged. failed reports a table failure.
func (p *Policy) Rewrite(ruleset, addr string) (result string, failed bool) {
	switch ruleset {
	case resolve.RulesetCanonical, resolve.RulesetLocal:
	default:
		p.logger.Debug("unknown ruleset", logging.String("ruleset", ruleset))
		return addr, false
	}
	if addr == "" {
		return "", false
	}
	addr = p.qualify(addr)
	if ruleset == resolve.RulesetLocal {
		return addr, false
	}
	return p.canonicalize(addr)
}

// qualify appends @myorigin to a bare local part and normalizes the domain.
func (p *Policy) qualify(addr string) string {
	local, domain, ok := splitAt(addr)
	if !ok || domain == "" {
		return local + "@" + p.cfg.MyOrigin
	}
	return local + "@" + normalizeDomain(domain)
}

func (p *Policy) canonicalize(addr string) (string, bool) {
	local, domain, _ := splitAt(addr)
	value, found, err := p.lookup(p.canonical, addr, "@"+domain)
	if err != nil {
		return addr, true
	}
	if !found {
		return addr, false
	}
	if strings.HasPrefix(value, "@") {
		return local + value, false
	}
	return value, false
}

// Resolve routes addr. sender is accepted for protocol compatibility; the
// policy does not route on it.
func (p *Policy) Resolve(_ string, addr string) (Result, bool) {
	if addr == "" {
		return Result{
			Transport: p.cfg.LocalTransport,
			Nexthop:   p.cfg.MyOrigin,
			Flags:     resolve.FlagFinal | resolve.ClassLocal,
		}, false
	}

	var flags resolve.Flags
	if strings.HasPrefix(addr, "@") {
		flags |= resolve.FlagRouted
		if i := strings.IndexByte(addr, ':'); i >= 0 {
			addr = addr[i+1:]
		}
	}
	recipient := p.qualify(addr)
	_, domain, _ := splitAt(recipient)
	failed := false

	moved, found, err := p.lookup(p.relocated, recipient, "@"+domain)
	if err != nil {
		failed = true
	} else if found {
		return Result{
			Transport: errorTransport,
			Nexthop:   "5.1.6 user has moved to " + moved,
			Recipient: recipient,
			Flags:     flags | resolve.FlagFinal | resolve.FlagError | p.class(domain),
		}, false
	}

	result := Result{Recipient: recipient, Flags: flags | resolve.FlagFinal | p.class(domain)}
	if result.Flags&resolve.ClassLocal != 0 {
		result.Transport = p.cfg.LocalTransport
		result.Nexthop = domain
	} else {
		result.Transport = p.cfg.DefaultTransport
		result.Nexthop = domain
	}

	route, found, err := p.lookup(p.transport, recipient, domain)
	switch {
	case err != nil:
		failed = true
	case found:
		transport, nexthop, _ := strings.Cut(route, ":")
		if transport != "" {
			result.Transport = transport
		}
		if nexthop != "" {
			result.Nexthop = nexthop
		}
		if result.Flags&resolve.ClassLocal == 0 && result.Transport == p.cfg.RelayTransport && result.Transport != p.cfg.DefaultTransport {
			result.Flags = result.Flags&^resolve.ClassMask | resolve.ClassRelay
		}
	}
	return result, failed
}

func (p *Policy) class(domain string) resolve.Flags {
	if _, ok := p.local[domain]; ok {
		return resolve.ClassLocal
	}
	return resolve.ClassDefault
}

// lookup tries keys in order against set and stops at the first hit or
// error.
func (p *Policy) lookup(set *maps.MapSet, keys ...string) (string, bool, error) {
	for _, key := range keys {
		value, ok := set.Find(key, 0)
		if err := set.Err(); err != nil {
			logging.WarnWithContext(p.logger, "table lookup failed", "trivial_table_fail",
				logging.String(logging.FieldTable, set.Title()),
				logging.String("key", key),
				logging.Error(err),
				logging.String(logging.FieldImpact, "reply flagged as failed"))
			return "", false, err
		}
		if ok {
			return value, true, nil
		}
	}
	return "", false, nil
}

func splitAt(addr string) (local, domain string, ok bool) {
	i := strings.LastIndexByte(addr, '@')
	if i < 0 {
		return addr, "", false
	}
	return addr[:i], addr[i+1:], true
}

func normalizeDomain(domain string) string {
	return strings.ToLower(strings.TrimSuffix(domain, "."))
}
