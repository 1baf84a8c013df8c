// Package wsserver exposes the dashboard's websocket endpoint: live event
// streaming per vehicle plus the mission commands (fetch, upload, approve).
package wsserver

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/Mithilesh5957/nidar/internal/model"
	"github.com/Mithilesh5957/nidar/internal/telemetry"
)

// MissionAPI is the slice of the mission service the dashboard drives.
type MissionAPI interface {
	RequestMission(vehicleID string) ([]model.MissionItem, error)
	UploadMission(vehicleID string, items []model.MissionItem) (uint, error)
	ApproveAndDeliver(detectionID uint, deliveryVehicleID string) (uint, error)
}

// Server is the websocket fanout server.
type Server struct {
	hub      *telemetry.Hub
	missions MissionAPI
	logger   *slog.Logger

	upgrader websocket.Upgrader
	httpSrv  *http.Server

	mu      sync.Mutex
	clients map[*client]struct{}
}

// NewServer builds the server for the given listen address.
func NewServer(addr string, hub *telemetry.Hub, missions MissionAPI, logger *slog.Logger) *Server {
	s := &Server{
		hub:      hub,
		missions: missions,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The dashboard is served from anywhere on the field network.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws/{vehicle}", s.handleWS)
	s.httpSrv = &http.Server{Addr: addr, Handler: mux}
	return s
}

// Start begins serving. Returns once the listener is running; serve errors
// other than graceful shutdown are logged.
func (s *Server) Start() {
	go func() {
		s.logger.Info("websocket server listening", "addr", s.httpSrv.Addr)
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("websocket server failed", "error", err)
		}
	}()
}

// Shutdown stops accepting connections and closes the existing ones.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	for c := range s.clients {
		c.close()
	}
	s.mu.Unlock()
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	vehicleID := r.PathValue("vehicle")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := newClient(s, conn, vehicleID)
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()

	s.logger.Info("dashboard client connected", "vehicle", vehicleID, "remote", conn.RemoteAddr())
	c.run()

	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
	s.logger.Info("dashboard client disconnected", "vehicle", vehicleID)
}
