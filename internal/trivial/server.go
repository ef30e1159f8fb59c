package trivial

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/VictoriaMetrics/metrics"
	"github.com/google/uuid"

	"spool/internal/attr"
	"spool/internal/logging"
	"spool/internal/resolve"
)

// Server answers rewrite and resolve requests on a unix socket.
type Server struct {
	path     string
	policy   *Policy
	policyMu sync.Mutex
	logger   *slog.Logger
	listener net.Listener

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	connMu sync.Mutex
	conns  map[net.Conn]struct{}
}

// NewServer listens on path, replacing a stale socket file.
func NewServer(ctx context.Context, path string, policy *Policy, logger *slog.Logger) (*Server, error) {
	if policy == nil {
		return nil, errors.New("rewrite server requires a policy")
	}
	logger = logging.NewComponentLogger(logger, "trivial")

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create socket directory: %w", err)
	}
	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}
	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:     path,
		policy:   policy,
		logger:   logger,
		listener: listener,
		ctx:      serverCtx,
		cancel:   cancel,
		conns:    make(map[net.Conn]struct{}),
	}, nil
}

// Path returns the socket path.
func (s *Server) Path() string {
	return s.path
}

// Serve starts accepting connections until Close or context cancellation.
func (s *Server) Serve() {
	s.logger.Debug("rewrite server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				if errors.Is(err, net.ErrClosed) {
					return
				}
				s.logger.Warn("accept failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "trivial_accept_failed"),
					logging.String(logging.FieldImpact, "clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "check socket permissions and restart the service if needed"))
				continue
			}
			if !s.track(conn) {
				_ = conn.Close()
				return
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				defer s.untrack(c)
				s.serveConn(c)
			}(conn)
		}
	}()
	go func() {
		<-s.ctx.Done()
		_ = s.listener.Close()
	}()
}

// Close stops the server, drops open connections and removes the socket.
func (s *Server) Close() {
	s.cancel()
	_ = s.listener.Close()
	s.connMu.Lock()
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.connMu.Unlock()
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		s.logger.Warn("failed to remove socket",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldEventType, "trivial_socket_cleanup_failed"),
			logging.String(logging.FieldImpact, "stale socket may block future starts"),
			logging.String(logging.FieldErrorHint, "remove the socket file manually"))
	}
}

func (s *Server) track(conn net.Conn) bool {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.ctx.Err() != nil {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.connMu.Lock()
	delete(s.conns, conn)
	s.connMu.Unlock()
	_ = conn.Close()
}

func (s *Server) serveConn(conn net.Conn) {
	logger := s.logger.With(logging.String(logging.FieldConnID, uuid.NewString()))
	logger.Debug("client connected")
	reader := attr.NewReader(conn)
	writer := attr.NewWriter(conn)
	for {
		pairs, err := reader.ReadAll()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				logger.Debug("client disconnected")
			} else {
				logger.Warn("read request failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "trivial_read_failed"),
					logging.String(logging.FieldImpact, "connection closed"))
			}
			return
		}
		if err := s.handle(writer, pairs); err != nil {
			logger.Warn("request failed",
				logging.Error(err),
				logging.String(logging.FieldEventType, "trivial_request_failed"),
				logging.String(logging.FieldImpact, "connection closed"))
			return
		}
		if err := writer.Flush(); err != nil {
			logger.Debug("write reply failed", logging.Error(err))
			return
		}
	}
}

func (s *Server) handle(w *attr.Writer, pairs []attr.Pair) error {
	request, _ := attr.Lookup(pairs, attr.NameRequest)
	metrics.GetOrCreateCounter(`spool_rewrite_server_requests_total{request="` + metricLabel(request) + `"}`).Inc()

	s.policyMu.Lock()
	defer s.policyMu.Unlock()

	switch request {
	case "rewrite":
		rule, _ := attr.Lookup(pairs, attr.NameRule)
		address, _ := attr.Lookup(pairs, attr.NameAddress)
		result, failed := s.policy.Rewrite(rule, address)
		return w.Write(
			attr.Int(attr.NameFlags, serverFlags(failed)),
			attr.String(attr.NameAddress, result),
		)
	case "resolve":
		sender, _ := attr.Lookup(pairs, attr.NameSender)
		address, _ := attr.Lookup(pairs, attr.NameAddress)
		result, failed := s.policy.Resolve(sender, address)
		return w.Write(
			attr.Int(attr.NameFlags, serverFlags(failed)),
			attr.String(attr.NameTransport, result.Transport),
			attr.String(attr.NameNexthop, result.Nexthop),
			attr.String(attr.NameRecipient, result.Recipient),
			attr.Int(attr.NameFlags, int(result.Flags)),
		)
	default:
		return unknownRequest(request)
	}
}

func serverFlags(failed bool) int {
	if failed {
		return resolve.ServerFlagFail
	}
	return 0
}

func metricLabel(request string) string {
	switch request {
	case "rewrite", "resolve":
		return request
	default:
		return "unknown"
	}
}

var errUnknownRequest = errors.New("unknown request")

func unknownRequest(name string) error {
	return fmt.Errorf("%w %q", errUnknownRequest, name)
}
