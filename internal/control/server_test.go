package control

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/stepcap/stepcap/internal/bus"
	"github.com/stepcap/stepcap/internal/coordinator"
	"github.com/stepcap/stepcap/internal/protocol"
	"github.com/stepcap/stepcap/internal/store"
)

// staticTabs serves a fixed tab list.
type staticTabs struct {
	tabs []protocol.TabInfo
}

func (s *staticTabs) List(context.Context) ([]protocol.TabInfo, error) { return s.tabs, nil }
func (s *staticTabs) Active(context.Context) (protocol.TabInfo, error) {
	if len(s.tabs) == 0 {
		return protocol.TabInfo{}, context.Canceled
	}
	return s.tabs[0], nil
}
func (s *staticTabs) Exists(_ context.Context, id string) bool {
	for _, t := range s.tabs {
		if t.ID == id {
			return true
		}
	}
	return false
}
func (s *staticTabs) Activate(context.Context, string) error      { return nil }
func (s *staticTabs) Capture(context.Context, string) ([]byte, error) { return nil, nil }

func newTestServer() (*Server, *store.Store, *bus.Bus) {
	st := store.New(store.NewMemoryKV())
	b := bus.New()
	tabs := &staticTabs{tabs: []protocol.TabInfo{{ID: "tab-1"}}}
	coord := coordinator.New(st, tabs, b, coordinator.Config{MaxRetries: 3, QueueSize: 4})
	return NewServer(coord, tabs, b), st, b
}

func TestDispatchSessionLifecycle(t *testing.T) {
	s, _, _ := newTestServer()
	ctx := context.Background()

	resp := s.Dispatch(ctx, protocol.Message{Type: protocol.MsgCreateSession, Title: "demo", URL: "https://example.com"})
	if !resp.OK || resp.Session == nil {
		t.Fatalf("create response = %+v", resp)
	}
	id := resp.Session.ID

	resp = s.Dispatch(ctx, protocol.Message{Type: protocol.MsgStartRecording, SessionID: id})
	if !resp.OK {
		t.Fatalf("start response = %+v", resp)
	}

	resp = s.Dispatch(ctx, protocol.Message{Type: protocol.MsgGetSessions})
	if !resp.OK || len(resp.Sessions) != 1 || !resp.Sessions[0].IsRecording {
		t.Fatalf("sessions response = %+v", resp)
	}

	resp = s.Dispatch(ctx, protocol.Message{Type: protocol.MsgStopRecording})
	if !resp.OK {
		t.Fatalf("stop response = %+v", resp)
	}

	resp = s.Dispatch(ctx, protocol.Message{Type: protocol.MsgDeleteSession, SessionID: id})
	if !resp.OK {
		t.Fatalf("delete response = %+v", resp)
	}
	resp = s.Dispatch(ctx, protocol.Message{Type: protocol.MsgGetSessions})
	if !resp.OK || len(resp.Sessions) != 0 {
		t.Fatalf("sessions after delete = %+v", resp)
	}
}

func TestDispatchStatusFromActiveTab(t *testing.T) {
	s, _, b := newTestServer()
	b.Register("tab-1", func(msg protocol.Message) protocol.Response {
		return protocol.Response{OK: true, Status: &protocol.Status{IsRecording: true, SessionID: "s7"}}
	})

	resp := s.Dispatch(context.Background(), protocol.Message{Type: protocol.MsgGetStatus})
	if !resp.OK || resp.Status == nil || resp.Status.SessionID != "s7" {
		t.Errorf("status response = %+v", resp)
	}
}

func TestDispatchStatusWithoutRecorder(t *testing.T) {
	s, _, _ := newTestServer()

	resp := s.Dispatch(context.Background(), protocol.Message{Type: protocol.MsgGetStatus})
	if !resp.OK || resp.Status == nil || resp.Status.IsRecording {
		t.Errorf("status response = %+v, want idle status", resp)
	}
}

func TestDispatchTakeScreenshot(t *testing.T) {
	s, _, _ := newTestServer()

	resp := s.Dispatch(context.Background(), protocol.Message{
		Type:     protocol.MsgTakeScreenshot,
		ActionID: "session-1-1",
		TabID:    "tab-1",
	})
	if !resp.OK {
		t.Errorf("screenshot response = %+v", resp)
	}
}

func TestDispatchUnknownType(t *testing.T) {
	s, _, _ := newTestServer()
	resp := s.Dispatch(context.Background(), protocol.Message{Type: "NO_SUCH_TYPE"})
	if resp.OK {
		t.Errorf("unknown type accepted: %+v", resp)
	}
}

func TestWebSocketRoundTrip(t *testing.T) {
	s, _, _ := newTestServer()
	srv := httptest.NewServer(s)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(protocol.Message{Type: protocol.MsgCreateSession, Title: "ws"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	var resp protocol.Response
	if err := conn.ReadJSON(&resp); err != nil {
		t.Fatalf("read: %v", err)
	}
	if !resp.OK || resp.Session == nil || resp.Session.Title != "ws" {
		t.Errorf("response = %+v", resp)
	}
}
