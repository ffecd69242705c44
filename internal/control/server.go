// Package control exposes the UI-facing message protocol over a local
// WebSocket endpoint. Popup and editor collaborators drive session
// lifecycle and read back sessions through it; capture itself never depends
// on this surface.
package control

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/stepcap/stepcap/internal/bus"
	"github.com/stepcap/stepcap/internal/coordinator"
	"github.com/stepcap/stepcap/internal/logging"
	"github.com/stepcap/stepcap/internal/protocol"
)

// Server serves the control protocol on a single WebSocket endpoint.
type Server struct {
	coord *coordinator.Coordinator
	tabs  coordinator.Tabs
	bus   *bus.Bus

	upgrader websocket.Upgrader
}

// NewServer builds the control server.
func NewServer(coord *coordinator.Coordinator, tabs coordinator.Tabs, b *bus.Bus) *Server {
	return &Server{
		coord: coord,
		tabs:  tabs,
		bus:   b,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: 10 * time.Second,
			// The endpoint binds to loopback; local UI surfaces have no
			// meaningful origin to check.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// ListenAndServe serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/control", s)

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logging.Info("control server listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// ServeHTTP upgrades the connection and pumps request/response pairs until
// the client goes away.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn("control: upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	for {
		var msg protocol.Message
		if err := conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logging.Debug("control: read: %v", err)
			}
			return
		}
		resp := s.Dispatch(r.Context(), msg)
		if err := conn.WriteJSON(resp); err != nil {
			logging.Debug("control: write: %v", err)
			return
		}
	}
}

// Dispatch routes one protocol message to the component that owns it.
func (s *Server) Dispatch(ctx context.Context, msg protocol.Message) protocol.Response {
	switch msg.Type {
	case protocol.MsgCreateSession:
		sess, err := s.coord.CreateSession(ctx, msg.Title, msg.URL)
		if err != nil {
			return protocol.Fail(err.Error())
		}
		return protocol.Response{OK: true, Session: sess}

	case protocol.MsgStartRecording:
		if err := s.coord.StartRecording(ctx, msg.SessionID); err != nil {
			return protocol.Fail(err.Error())
		}
		return protocol.Ack()

	case protocol.MsgStopRecording:
		if err := s.coord.StopRecording(ctx); err != nil {
			return protocol.Fail(err.Error())
		}
		return protocol.Ack()

	case protocol.MsgGetStatus:
		// Status lives on the page recorder; ask the foreground tab's.
		active, err := s.tabs.Active(ctx)
		if err != nil {
			return protocol.Fail(err.Error())
		}
		resp, err := s.bus.Send(active.ID, protocol.Message{Type: protocol.MsgGetStatus})
		if err != nil {
			// No recorder on the page yet means nothing is recording there.
			return protocol.Response{OK: true, Status: &protocol.Status{}}
		}
		return resp

	case protocol.MsgTakeScreenshot:
		resp, err := s.bus.Send(bus.CoordinatorID, msg)
		if err != nil {
			return protocol.Fail(err.Error())
		}
		return resp

	case protocol.MsgGetSessions:
		sessions, err := s.coord.Sessions(ctx)
		if err != nil {
			return protocol.Fail(err.Error())
		}
		return protocol.Response{OK: true, Sessions: sessions}

	case protocol.MsgDeleteSession:
		if err := s.coord.DeleteSession(ctx, msg.SessionID); err != nil {
			return protocol.Fail(err.Error())
		}
		return protocol.Ack()

	case protocol.MsgDeleteAllSessions:
		if err := s.coord.DeleteAllSessions(ctx); err != nil {
			return protocol.Fail(err.Error())
		}
		return protocol.Ack()

	default:
		return protocol.Fail("unsupported message type " + string(msg.Type))
	}
}
