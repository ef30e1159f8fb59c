package resolve_test

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"spool/internal/attr"
	"spool/internal/ipcsession"
	"spool/internal/logging"
	"spool/internal/resolve"
)

// fakeSession hands out one end of an in-memory pipe whose other end is
// served by handler. It counts Access and Recover calls.
type fakeSession struct {
	mu       sync.Mutex
	handler  func(pairs []attr.Pair, w *attr.Writer) error
	conn     net.Conn
	accesses int
	recovers int
	failDial int
	requests int
}

func (f *fakeSession) Access(context.Context) (net.Conn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accesses++
	if f.failDial != 0 {
		if f.failDial > 0 {
			f.failDial--
		}
		return nil, errors.New("connection refused")
	}
	if f.conn == nil {
		client, server := net.Pipe()
		f.conn = client
		go f.serve(server)
	}
	return f.conn, nil
}

func (f *fakeSession) serve(conn net.Conn) {
	defer conn.Close()
	r := attr.NewReader(conn)
	w := attr.NewWriter(conn)
	for {
		pairs, err := r.ReadAll()
		if err != nil {
			return
		}
		f.mu.Lock()
		f.requests++
		handler := f.handler
		f.mu.Unlock()
		if err := handler(pairs, w); err != nil {
			return
		}
		if err := w.Flush(); err != nil {
			return
		}
	}
}

func (f *fakeSession) Recover() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recovers++
	if f.conn != nil {
		_ = f.conn.Close()
		f.conn = nil
	}
}

func (f *fakeSession) Done() {}

func (f *fakeSession) Free() { f.Recover() }

func (f *fakeSession) counts() (accesses, recovers, requests int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.accesses, f.recovers, f.requests
}

func value(pairs []attr.Pair, name string) string {
	v, _ := attr.Lookup(pairs, name)
	return v
}

func resolveReply(w *attr.Writer, serverFlags int, transport, nexthop, recipient string, flags resolve.Flags) error {
	return w.Write(
		attr.Int(attr.NameFlags, serverFlags),
		attr.String(attr.NameTransport, transport),
		attr.String(attr.NameNexthop, nexthop),
		attr.String(attr.NameRecipient, recipient),
		attr.Int(attr.NameFlags, int(flags)),
	)
}

func smtpHandler(pairs []attr.Pair, w *attr.Writer) error {
	if value(pairs, attr.NameRequest) == "rewrite" {
		return w.Write(
			attr.Int(attr.NameFlags, 0),
			attr.String(attr.NameAddress, value(pairs, attr.NameRule)+":"+value(pairs, attr.NameAddress)))
	}
	addr := value(pairs, attr.NameAddress)
	return resolveReply(w, 0, "smtp", "example.com", addr, resolve.FlagFinal|resolve.ClassDefault)
}

func fastRetry(maxAttempts int) resolve.Option {
	return resolve.WithRetryPolicy(resolve.RetryPolicy{
		MaxAttempts: maxAttempts,
		BaseDelay:   time.Millisecond,
		MaxDelay:    2 * time.Millisecond,
		Multiplier:  2,
	})
}

func newClient(session resolve.Session, opts ...resolve.Option) *resolve.Client {
	base := []resolve.Option{resolve.WithLogger(logging.NewNop()), fastRetry(0)}
	return resolve.New(session, append(base, opts...)...)
}

func TestResolveCacheAvoidsSecondRequest(t *testing.T) {
	session := &fakeSession{handler: smtpHandler}
	client := newClient(session)
	defer client.Close()
	ctx := context.Background()

	first, err := client.Resolve(ctx, "sender@example.org", "joe@example.com")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	accesses, _, requests := session.counts()

	second, err := client.Resolve(ctx, "sender@example.org", "joe@example.com")
	if err != nil {
		t.Fatalf("second Resolve: %v", err)
	}
	if first != second {
		t.Fatalf("cached reply differs: %+v vs %+v", first, second)
	}
	accesses2, _, requests2 := session.counts()
	if accesses2 != accesses || requests2 != requests {
		t.Fatalf("second call touched the session: accesses %d->%d requests %d->%d", accesses, accesses2, requests, requests2)
	}
	if first.Transport != "smtp" || first.Recipient != "joe@example.com" || first.Flags.Class() != resolve.ClassDefault {
		t.Fatalf("unexpected reply %+v", first)
	}

	if _, err := client.Resolve(ctx, "sender@example.org", "ann@example.com"); err != nil {
		t.Fatalf("Resolve other: %v", err)
	}
	if _, _, requests3 := session.counts(); requests3 != requests2+1 {
		t.Fatalf("different address did not reach the service")
	}
}

func TestRewriteCacheKeyIncludesRuleset(t *testing.T) {
	session := &fakeSession{handler: smtpHandler}
	client := newClient(session)
	ctx := context.Background()

	canonical, err := client.Rewrite(ctx, "canonical", "joe")
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	local, err := client.Rewrite(ctx, "local", "joe")
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	if canonical != "canonical:joe" || local != "local:joe" {
		t.Fatalf("results %q %q", canonical, local)
	}
	again, _ := client.Rewrite(ctx, "local", "joe")
	if _, _, requests := session.counts(); requests != 2 || again != local {
		t.Fatalf("requests = %d, again = %q", requests, again)
	}
}

func TestLegacyRewriteCacheKeyIgnoresRuleset(t *testing.T) {
	session := &fakeSession{handler: smtpHandler}
	client := newClient(session, resolve.WithLegacyRewriteCacheKey(true))
	ctx := context.Background()

	first, _ := client.Rewrite(ctx, "canonical", "joe")
	second, err := client.Rewrite(ctx, "local", "joe")
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	if second != first {
		t.Fatalf("legacy key returned %q, want cached %q", second, first)
	}
	if _, _, requests := session.counts(); requests != 1 {
		t.Fatalf("requests = %d, want 1", requests)
	}
}

func TestResolveRetriesIncompleteReply(t *testing.T) {
	calls := 0
	session := &fakeSession{}
	session.handler = func(pairs []attr.Pair, w *attr.Writer) error {
		calls++
		if calls == 1 {
			return resolveReply(w, 0, "", "", "joe@example.com", 0)
		}
		return smtpHandler(pairs, w)
	}
	client := newClient(session)

	reply, err := client.Resolve(context.Background(), "", "joe@example.com")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if reply.Transport != "smtp" {
		t.Fatalf("reply %+v", reply)
	}
	if _, recovers, _ := session.counts(); recovers != 1 {
		t.Fatalf("recovers = %d, want 1", recovers)
	}
}

func TestResolveRetriesUntilServiceAppears(t *testing.T) {
	session := &fakeSession{handler: smtpHandler, failDial: 3}
	client := newClient(session)

	if _, err := client.Resolve(context.Background(), "", "joe@example.com"); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	accesses, recovers, _ := session.counts()
	if accesses != 4 || recovers != 3 {
		t.Fatalf("accesses %d recovers %d, want 4 and 3", accesses, recovers)
	}
}

func TestBoundedRetriesGiveUp(t *testing.T) {
	session := &fakeSession{handler: smtpHandler, failDial: -1}
	client := newClient(session, fastRetry(3))

	_, err := client.Rewrite(context.Background(), "canonical", "joe")
	if !errors.Is(err, resolve.ErrRetriesExhausted) {
		t.Fatalf("err = %v, want ErrRetriesExhausted", err)
	}
	if accesses, _, _ := session.counts(); accesses != 3 {
		t.Fatalf("accesses = %d, want 3", accesses)
	}
}

func TestUnboundedRetryStopsOnContext(t *testing.T) {
	session := &fakeSession{handler: smtpHandler, failDial: -1}
	client := newClient(session, resolve.WithRetryPolicy(resolve.RetryPolicy{BaseDelay: time.Hour}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := client.Resolve(ctx, "", "joe@example.com")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want DeadlineExceeded", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatal("cancellation took too long")
	}
}

func TestServerFailFlagIsNotCached(t *testing.T) {
	session := &fakeSession{}
	session.handler = func(pairs []attr.Pair, w *attr.Writer) error {
		return resolveReply(w, resolve.ServerFlagFail, "smtp", "example.com", value(pairs, attr.NameAddress), resolve.ClassDefault)
	}
	client := newClient(session)
	ctx := context.Background()

	reply, err := client.Resolve(ctx, "", "joe@example.com")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if reply.Flags&resolve.FlagFail == 0 {
		t.Fatalf("flags = %s, want fail", reply.Flags)
	}
	if _, err := client.Resolve(ctx, "", "joe@example.com"); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if _, _, requests := session.counts(); requests != 2 {
		t.Fatalf("requests = %d, want 2", requests)
	}
}

func TestInternalFormQuoting(t *testing.T) {
	var seen string
	session := &fakeSession{}
	session.handler = func(pairs []attr.Pair, w *attr.Writer) error {
		seen = value(pairs, attr.NameAddress)
		if value(pairs, attr.NameRequest) == "rewrite" {
			return w.Write(attr.Int(attr.NameFlags, 0), attr.String(attr.NameAddress, seen))
		}
		return resolveReply(w, 0, "local", "example.com", seen, resolve.ClassLocal)
	}
	client := newClient(session)
	ctx := context.Background()

	result, err := client.RewriteInternal(ctx, "canonical", "joe smith@example.com")
	if err != nil {
		t.Fatalf("RewriteInternal: %v", err)
	}
	if seen != `"joe smith"@example.com` {
		t.Fatalf("service saw %q", seen)
	}
	if result != "joe smith@example.com" {
		t.Fatalf("result %q", result)
	}

	reply, err := client.ResolveInternal(ctx, "", "ann lee@example.com")
	if err != nil {
		t.Fatalf("ResolveInternal: %v", err)
	}
	if reply.Recipient != "ann lee@example.com" {
		t.Fatalf("recipient %q", reply.Recipient)
	}
}

func TestUnencodableAddressFailsWithoutRetry(t *testing.T) {
	session := &fakeSession{handler: smtpHandler}
	client := newClient(session)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Rewrite(ctx, "canonical", "a\x00b@example.com"); !errors.Is(err, attr.ErrProtocol) {
		t.Fatalf("Rewrite(NUL) err = %v, want attr.ErrProtocol", err)
	}
	long := strings.Repeat("x", attr.MaxValueLen+1) + "@example.com"
	if _, err := client.Resolve(ctx, "", long); !errors.Is(err, attr.ErrProtocol) {
		t.Fatalf("Resolve(long) err = %v, want attr.ErrProtocol", err)
	}
	if _, err := client.Resolve(ctx, "s\x00@example.com", "joe@example.com"); !errors.Is(err, attr.ErrProtocol) {
		t.Fatalf("Resolve(NUL sender) err = %v, want attr.ErrProtocol", err)
	}
	if accesses, recovers, requests := session.counts(); accesses != 0 || recovers != 0 || requests != 0 {
		t.Fatalf("accesses %d recovers %d requests %d, want none", accesses, recovers, requests)
	}
}

// serveSlowly answers rewrite requests on <dir>/private/rewrite after
// delay.
func serveSlowly(t *testing.T, delay time.Duration) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "rw")
	if err != nil {
		t.Fatalf("mkdir temp: %v", err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	if err := os.MkdirAll(filepath.Join(dir, "private"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	ln, err := net.Listen("unix", filepath.Join(dir, "private", "rewrite"))
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	var wg sync.WaitGroup
	t.Cleanup(func() {
		_ = ln.Close()
		wg.Wait()
	})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			wg.Add(1)
			go func(c net.Conn) {
				defer wg.Done()
				defer c.Close()
				r := attr.NewReader(c)
				w := attr.NewWriter(c)
				for {
					pairs, err := r.ReadAll()
					if err != nil {
						return
					}
					time.Sleep(delay)
					if err := smtpHandler(pairs, w); err != nil {
						return
					}
					if err := w.Flush(); err != nil {
						return
					}
				}
			}(conn)
		}
	}()
	return dir
}

func TestSlowReplyOutlivesIdleTimeout(t *testing.T) {
	dir := serveSlowly(t, 150*time.Millisecond)
	session := ipcsession.New("private", "rewrite", 50*time.Millisecond, 10*time.Second,
		ipcsession.WithDialer(ipcsession.UnixDialer{Dir: dir, Timeout: time.Second}),
		ipcsession.WithLogger(logging.NewNop()))
	client := newClient(session, fastRetry(1))
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	result, err := client.Rewrite(ctx, "canonical", "joe")
	if err != nil {
		t.Fatalf("Rewrite: %v", err)
	}
	if result != "canonical:joe" {
		t.Fatalf("Rewrite = %q", result)
	}

	reply, err := client.Resolve(ctx, "", "ann@example.com")
	if err != nil {
		t.Fatalf("Resolve on the same session: %v", err)
	}
	if reply.Recipient != "ann@example.com" {
		t.Fatalf("Resolve = %+v", reply)
	}
}

func TestFlagsString(t *testing.T) {
	if s := (resolve.FlagFinal | resolve.ClassLocal).String(); s != "final|local" {
		t.Fatalf("String = %q", s)
	}
	if s := resolve.Flags(0).String(); s != "none" {
		t.Fatalf("String = %q", s)
	}
}
