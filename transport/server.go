// Package transport exposes the relay over websocket connections.
package transport

import (
	"chat-relay/contract"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Server upgrades HTTP requests and runs one read and one write loop per socket.
// Every socket gets a fresh connection id: a reconnect is a new connection.
type Server struct {
	log          *slog.Logger
	orchestrator contract.IOrchestrator
	upgrader     websocket.Upgrader
	httpServer   *http.Server
	bufferSize   int
	readLimit    int64
	newID        func() string
}

func NewServer(log *slog.Logger, orchestrator contract.IOrchestrator, addr string, bufferSize int, readLimit int64) *Server {
	s := &Server{
		log:          log,
		orchestrator: orchestrator,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		bufferSize: bufferSize,
		readLimit:  readLimit,
		newID:      uuid.NewString,
	}
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.handleWebsocket)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// ListenAndServe blocks until Shutdown is called.
func (s *Server) ListenAndServe() error {
	s.log.Info("Websocket server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting sockets. Hijacked websocket connections are not
// tracked by net/http and close with the process.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("Websocket upgrade failed", "error", err)
		return
	}

	connectionID := s.newID()
	sink := NewConnectionSink(s.bufferSize)
	s.orchestrator.Connect(connectionID, sink)
	s.log.Debug("Connection opened", "connection_id", connectionID, "remote", r.RemoteAddr)

	go s.writeLoop(connectionID, conn, sink)
	s.readLoop(connectionID, conn)

	sink.Close()
	s.orchestrator.Disconnect(connectionID)
	s.log.Debug("Connection closed", "connection_id", connectionID)
}

// readLoop returns when the socket fails or the client goes away.
// Frames that cannot be decoded are dropped without answer.
func (s *Server) readLoop(connectionID string, conn *websocket.Conn) {
	defer conn.Close()
	conn.SetReadLimit(s.readLimit)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug("Unexpected close", "connection_id", connectionID, "error", err)
			}
			return
		}
		cmd, err := Decode(connectionID, raw)
		if err != nil {
			s.log.Debug("Frame dropped", "connection_id", connectionID, "error", err)
			continue
		}
		s.orchestrator.Dispatch(cmd)
	}
}

func (s *Server) writeLoop(connectionID string, conn *websocket.Conn, sink *ConnectionSink) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case frame := <-sink.Frames():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				s.log.Debug("Write failed", "connection_id", connectionID, "error", err)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-sink.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}
