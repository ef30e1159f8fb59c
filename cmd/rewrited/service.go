package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"

	"github.com/VictoriaMetrics/metrics"
	"github.com/gofrs/flock"

	"spool/internal/config"
	"spool/internal/dict"
	"spool/internal/logging"
	"spool/internal/trivial"
)

// service owns everything a running rewrited holds: the instance lock,
// the lookup tables, the socket server and the optional metrics endpoint.
type service struct {
	logger   *slog.Logger
	lock     *flock.Flock
	registry *dict.Registry
	policy   *trivial.Policy
	server   *trivial.Server

	metricsSrv *http.Server
	metricsLn  net.Listener
}

func lockPath(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.SocketDir, "rewrited.lock")
}

func startService(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*service, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	lock := flock.New(lockPath(cfg))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, errors.New("another rewrited instance is already running")
	}

	svc := &service{logger: logger, lock: lock}
	svc.registry = dict.NewRegistry(logger)
	svc.policy, err = trivial.NewPolicy(cfg, svc.registry, logger)
	if err != nil {
		svc.Close()
		return nil, err
	}

	class, name := cfg.RewriteServiceName()
	svc.server, err = trivial.NewServer(ctx, filepath.Join(cfg.Paths.SocketDir, class, name), svc.policy, logger)
	if err != nil {
		svc.Close()
		return nil, fmt.Errorf("start rewrite server: %w", err)
	}
	svc.server.Serve()

	if bind := cfg.Logging.MetricsBind; bind != "" {
		if err := svc.startMetrics(bind); err != nil {
			svc.Close()
			return nil, err
		}
	}

	logger.Info("rewrited started",
		logging.String(logging.FieldService, cfg.IPC.RewriteService),
		logging.String("socket", svc.server.Path()),
		logging.String("lock", lockPath(cfg)))
	return svc, nil
}

func (s *service) startMetrics(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics listen: %w", err)
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, _ *http.Request) {
		metrics.WritePrometheus(w, true)
	})
	s.metricsSrv = &http.Server{Handler: mux}
	s.metricsLn = ln
	go func() {
		if err := s.metricsSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Warn("metrics server stopped", logging.Error(err))
		}
	}()
	s.logger.Info("metrics endpoint listening", logging.String("addr", ln.Addr().String()))
	return nil
}

// metricsAddr returns the bound metrics address, or "" when disabled.
func (s *service) metricsAddr() string {
	if s.metricsLn == nil {
		return ""
	}
	return s.metricsLn.Addr().String()
}

func (s *service) Close() {
	if s.metricsSrv != nil {
		_ = s.metricsSrv.Close()
		s.metricsSrv = nil
	}
	if s.server != nil {
		s.server.Close()
		s.server = nil
	}
	if s.policy != nil {
		s.policy.Close()
		s.policy = nil
	}
	if s.registry != nil {
		if err := s.registry.Close(); err != nil {
			s.logger.Warn("close lookup tables", logging.Error(err))
		}
		s.registry = nil
	}
	if s.lock != nil {
		if err := s.lock.Unlock(); err != nil {
			s.logger.Warn("failed to release rewrited lock", logging.Error(err))
		}
		s.lock = nil
	}
}
