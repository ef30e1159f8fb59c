package ipcsession

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/VictoriaMetrics/metrics"

	"spool/internal/clock"
	"spool/internal/logging"
)

// ErrFreed is returned by Access after Free.
var ErrFreed = errors.New("ipc session freed")

// State is the connection state of a Session.
type State int

const (
	Closed State = iota
	Open
)

func (s State) String() string {
	if s == Open {
		return "open"
	}
	return "closed"
}

const (
	reasonIdle    = "idle"
	reasonTTL     = "ttl"
	reasonPeer    = "peer"
	reasonRecover = "recover"
)

var connectsTotal = metrics.NewCounter("spool_ipc_connects_total")

func countDisconnect(reason string) {
	metrics.GetOrCreateCounter(`spool_ipc_disconnects_total{reason="` + reason + `"}`).Inc()
}

// Session is a client connection to one named local service. It is meant
// for a single owner but is safe against its own timers firing
// concurrently.
type Session struct {
	mu     sync.Mutex
	class  string
	name   string
	idle   time.Duration
	ttl    time.Duration
	dialer Dialer
	clock  clock.Clock
	logger *slog.Logger

	conn         net.Conn
	idleTimer    clock.Timer
	ttlTimer     clock.Timer
	idleDeadline time.Time
	ttlDeadline  time.Time
	// idleEpoch and ttlEpoch let stale timer callbacks recognise that
	// their timer was replaced.
	idleEpoch uint64
	ttlEpoch  uint64
	freed     bool

	// busy is set from Access until Done. A timer that fires meanwhile
	// records its reason in deferred instead of closing the connection.
	busy     bool
	deferred string
}

// Option customizes a Session.
type Option func(*Session)

// WithDialer replaces the connection dialer.
func WithDialer(d Dialer) Option {
	return func(s *Session) {
		if d != nil {
			s.dialer = d
		}
	}
}

// WithClock replaces the timer source.
func WithClock(c clock.Clock) Option {
	return func(s *Session) { s.clock = clock.Ensure(c) }
}

// WithLogger sets the session logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		s.logger = logging.NewComponentLogger(logger, "ipc")
	}
}

// New returns a closed session for class/name. No connection is made
// until Access. Without WithDialer the session dials unix sockets below
// the current directory.
func New(class, name string, idle, ttl time.Duration, opts ...Option) *Session {
	s := &Session{
		class:  class,
		name:   name,
		idle:   idle,
		ttl:    ttl,
		dialer: UnixDialer{Dir: "."},
		clock:  clock.Real{},
		logger: logging.NewComponentLogger(nil, "ipc"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(logging.String(logging.FieldService, s.Service()))
	return s
}

// Service returns "class/name".
func (s *Session) Service() string {
	return s.class + "/" + s.name
}

// State reports whether a connection is open.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		return Open
	}
	return Closed
}

// Deadlines returns when the idle and time-to-live timers fire. Both are
// zero while the session is closed.
func (s *Session) Deadlines() (idle, ttl time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.idleDeadline, s.ttlDeadline
}

// Access returns an open connection, connecting if needed. An open
// connection whose peer has gone away is replaced without re-arming the
// time-to-live timer; a healthy one only has its idle timer re-armed.
// The connection stays open until Done, even if a timer expires while
// the caller is using it.
func (s *Session) Access(ctx context.Context) (net.Conn, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.freed {
		return nil, ErrFreed
	}

	if s.conn == nil {
		conn, err := s.dialer.Dial(ctx, s.class, s.name)
		if err != nil {
			return nil, err
		}
		connectsTotal.Inc()
		s.conn = conn
		s.armTTL()
		s.armIdle()
		s.busy = true
		s.logger.Debug("service connected", logging.Duration("ttl", s.ttl))
		return s.conn, nil
	}

	if peerGone(s.conn) {
		s.logger.Debug("service disconnected", logging.String("reason", reasonPeer))
		countDisconnect(reasonPeer)
		_ = s.conn.Close()
		s.conn = nil
		s.stopIdle()
		ttlExpired := s.deferred == reasonTTL
		s.busy = false
		s.deferred = ""

		conn, err := s.dialer.Dial(ctx, s.class, s.name)
		if err != nil {
			s.stopTTL()
			return nil, err
		}
		connectsTotal.Inc()
		s.conn = conn
		if ttlExpired {
			s.armTTL()
		}
		s.armIdle()
		s.busy = true
		return s.conn, nil
	}

	s.armIdle()
	s.busy = true
	return s.conn, nil
}

// Done ends the exchange started by the last Access. A time-to-live
// expiry that happened meanwhile closes the connection now; otherwise the
// idle timer restarts from this point.
func (s *Session) Done() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.busy {
		return
	}
	s.busy = false
	deferred := s.deferred
	s.deferred = ""
	if s.conn == nil {
		return
	}
	if deferred == reasonTTL {
		s.disconnectLocked(reasonTTL)
		return
	}
	s.armIdle()
}

// Recover closes the connection so the next Access reconnects. It is a
// no-op on a closed session.
func (s *Session) Recover() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return
	}
	s.disconnectLocked(reasonRecover)
}

// Free recovers the session and makes later Access calls fail.
func (s *Session) Free() {
	s.Recover()
	s.mu.Lock()
	s.freed = true
	s.dialer = nil
	s.mu.Unlock()
}

func (s *Session) disconnectLocked(reason string) {
	s.stopIdle()
	s.stopTTL()
	s.busy = false
	s.deferred = ""
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
		countDisconnect(reason)
		s.logger.Debug("service disconnected", logging.String("reason", reason))
	}
}

func (s *Session) armIdle() {
	s.stopIdle()
	s.idleEpoch++
	epoch := s.idleEpoch
	s.idleDeadline = s.clock.Now().Add(s.idle)
	s.idleTimer = s.clock.AfterFunc(s.idle, func() { s.expire(reasonIdle, epoch) })
}

func (s *Session) armTTL() {
	s.stopTTL()
	s.ttlEpoch++
	epoch := s.ttlEpoch
	s.ttlDeadline = s.clock.Now().Add(s.ttl)
	s.ttlTimer = s.clock.AfterFunc(s.ttl, func() { s.expire(reasonTTL, epoch) })
}

func (s *Session) stopIdle() {
	if s.idleTimer != nil {
		s.idleTimer.Stop()
		s.idleTimer = nil
	}
	s.idleEpoch++
	s.idleDeadline = time.Time{}
}

func (s *Session) stopTTL() {
	if s.ttlTimer != nil {
		s.ttlTimer.Stop()
		s.ttlTimer = nil
	}
	s.ttlEpoch++
	s.ttlDeadline = time.Time{}
}

func (s *Session) expire(reason string, epoch uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current := s.idleEpoch
	if reason == reasonTTL {
		current = s.ttlEpoch
	}
	if epoch != current || s.conn == nil {
		return
	}
	if s.busy {
		if s.deferred != reasonTTL {
			s.deferred = reason
		}
		s.logger.Debug("timer expired during an exchange", logging.String("reason", reason))
		return
	}
	s.disconnectLocked(reason)
}

// String is used in log and error messages.
func (s *Session) String() string {
	return fmt.Sprintf("%s (%s)", s.Service(), s.State())
}
