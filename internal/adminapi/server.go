// Package adminapi is the optional operator-facing status surface —
// SPEC_FULL.md's "thin admin/status surface ... a hub status --watch-
// style live feed of ServerStatus/session counts". It is purely an
// operator feed, never a second protocol surface for agents — the
// agent-facing TSP/front-door wire framing stays out of scope.
//
// Grounded in the teacher's internal/gateway/server.go upgrader/mux
// pattern, trimmed from its full WebSocket-RPC+HTTP-CRUD surface down to
// two routes: /health and /ws (a periodic JSON snapshot push).
package adminapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/tsphub/internal/config"
	"github.com/nextlevelbuilder/tsphub/internal/hub"
)

// Server is the admin status surface. One per hub process, bound to
// config.GatewayConfig.
type Server struct {
	cfg  config.GatewayConfig
	hub  *hub.Hub
	pushInterval time.Duration

	upgrader   websocket.Upgrader
	httpServer *http.Server
}

// New builds a Server over an already-wired Hub.
func New(cfg config.GatewayConfig, h *hub.Hub) *Server {
	return &Server{
		cfg:          cfg,
		hub:          h,
		pushInterval: 2 * time.Second,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (s *Server) checkToken(r *http.Request) bool {
	if s.cfg.Token == "" {
		return true // no token configured: operator surface is unauthenticated (local/dev use)
	}
	return r.Header.Get("Authorization") == "Bearer "+s.cfg.Token
}

func (s *Server) buildMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ws", s.handleWebSocket)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, `{"status":"ok"}`)
}

// handleWebSocket upgrades and pushes a hub.Status snapshot every
// pushInterval until the client disconnects — the "--watch" live feed.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.checkToken(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("adminapi.upgrade_failed", "error", err)
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(s.pushInterval)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			payload, err := json.Marshal(s.hub.Status())
			if err != nil {
				slog.Warn("adminapi.marshal_failed", "error", err)
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		}
	}
}

// Start serves the admin surface until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpServer = &http.Server{Addr: addr, Handler: s.buildMux()}

	slog.Info("adminapi.starting", "addr", addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("adminapi server: %w", err)
	}
	return nil
}
