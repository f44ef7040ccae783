package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/linhhnbkdn/brokerage/internal/infra"
	"github.com/linhhnbkdn/brokerage/internal/ledger"
	"github.com/linhhnbkdn/brokerage/internal/session"
)

const shutdownTimeout = 5 * time.Second

// Server exposes the websocket market data feed. Run blocks until the context
// is cancelled, then drains: in-flight sessions get a close frame and the
// listener stops accepting.
type Server struct {
	cfg      *infra.Config
	registry *session.Registry
	ledger   *ledger.Ledger
	disp     *Dispatcher
	logger   *slog.Logger

	upgrader websocket.Upgrader
	httpSrv  *http.Server
}

// New creates the websocket server.
func New(cfg *infra.Config, registry *session.Registry, l *ledger.Ledger,
	disp *Dispatcher, logger *slog.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		registry: registry,
		ledger:   l,
		disp:     disp,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The venue is a simulator; any origin may connect.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc(cfg.Server.WSPath, s.handleWS)
	mux.HandleFunc("/healthz", s.handleHealth)
	s.httpSrv = &http.Server{
		Addr:    cfg.Server.ListenAddr,
		Handler: mux,
	}
	return s
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("websocket server listening",
			"addr", s.cfg.Server.ListenAddr, "path", s.cfg.Server.WSPath)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("draining websocket sessions")
	s.disp.CloseAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.httpSrv.Shutdown(shutdownCtx)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	sessionID := s.registry.Register()
	if err := s.registry.Accept(sessionID); err != nil {
		s.logger.Error("failed to accept session", "session_id", sessionID, "error", err)
		conn.Close()
		return
	}

	limiter := infra.NewRateLimiter(s.cfg.Session.CommandBurst, s.cfg.Session.CommandRate)
	cs := newConnectionSession(sessionID, conn, s.registry, s.ledger, limiter, s.logger)

	s.disp.Attach(cs)
	defer s.disp.Detach(sessionID)

	s.logger.Info("session connected", "session_id", sessionID, "remote", r.RemoteAddr)
	cs.Run(r.Context())
	s.logger.Info("session ended", "session_id", sessionID)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
