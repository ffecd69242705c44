// Package coordinator owns session lifecycle and screenshot acquisition.
// It is the only component allowed to flip a session's recording flag or
// move the current-session pointer, and the only consumer of the screenshot
// queue.
package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/stepcap/stepcap/internal/bus"
	"github.com/stepcap/stepcap/internal/logging"
	"github.com/stepcap/stepcap/internal/protocol"
	"github.com/stepcap/stepcap/internal/store"
)

// Tabs is the tab-enumeration, activation and capture surface the
// coordinator drives. The browser package implements it over CDP.
type Tabs interface {
	// List returns all open tabs.
	List(ctx context.Context) ([]protocol.TabInfo, error)
	// Active returns the foreground tab.
	Active(ctx context.Context) (protocol.TabInfo, error)
	// Exists reports whether the tab is still open.
	Exists(ctx context.Context, tabID string) bool
	// Activate brings the tab to the foreground. Capture only works on
	// the visible tab.
	Activate(ctx context.Context, tabID string) error
	// Capture returns an image of the tab's visible surface.
	Capture(ctx context.Context, tabID string) ([]byte, error)
}

// Config tunes the coordinator's delays and retry budget.
type Config struct {
	// SettleDelay runs before each capture so the triggering UI change
	// becomes visually stable.
	SettleDelay time.Duration
	// FocusDelay runs after forcing a tab to the foreground.
	FocusDelay time.Duration
	// InitDelay runs before notifying a freshly loaded page, giving its
	// recorder time to come up.
	InitDelay time.Duration
	// MaxRetries bounds re-enqueues per screenshot request.
	MaxRetries int
	// QueueSize is the screenshot queue's channel capacity.
	QueueSize int
}

// DefaultConfig returns the production tuning.
func DefaultConfig() Config {
	return Config{
		SettleDelay: 300 * time.Millisecond,
		FocusDelay:  200 * time.Millisecond,
		InitDelay:   500 * time.Millisecond,
		MaxRetries:  3,
		QueueSize:   64,
	}
}

// Coordinator serializes session lifecycle transitions and screenshot
// captures.
type Coordinator struct {
	store *store.Store
	tabs  Tabs
	bus   *bus.Bus
	cfg   Config

	queue chan screenshotRequest

	idMu   sync.Mutex
	lastID int64

	now func() time.Time
}

// New wires a coordinator and registers it on the bus so page recorders can
// reach it. Run must be called to start draining the screenshot queue.
func New(st *store.Store, tabs Tabs, b *bus.Bus, cfg Config) *Coordinator {
	c := &Coordinator{
		store: st,
		tabs:  tabs,
		bus:   b,
		cfg:   cfg,
		queue: make(chan screenshotRequest, cfg.QueueSize),
		now:   time.Now,
	}
	b.Register(bus.CoordinatorID, c.handleBusMessage)
	return c
}

// SetTabs installs the tab surface. The browser layer is constructed after
// the coordinator, so wiring completes here; call before Run.
func (c *Coordinator) SetTabs(tabs Tabs) {
	c.tabs = tabs
}

// handleBusMessage receives page→coordinator traffic.
func (c *Coordinator) handleBusMessage(msg protocol.Message) protocol.Response {
	switch msg.Type {
	case protocol.MsgTakeScreenshot:
		c.enqueue(screenshotRequest{
			actionID: msg.ActionID,
			tabID:    msg.TabID,
			enqueued: c.now(),
		})
		return protocol.Ack()
	default:
		return protocol.Fail(fmt.Sprintf("unsupported message type %q", msg.Type))
	}
}

// CreateSession persists a new, not-yet-recording session. The id derives
// from the current time; the title defaults when empty.
func (c *Coordinator) CreateSession(ctx context.Context, title, url string) (*protocol.Session, error) {
	now := c.now()
	if title == "" {
		title = "Recording " + now.Format("2006-01-02 15:04:05")
	}
	sess := protocol.Session{
		ID:        c.newSessionID(now),
		Title:     title,
		URL:       url,
		StartTime: now.UnixMilli(),
	}
	if err := c.store.SaveSession(ctx, sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// newSessionID derives a session id from the given instant. Two sessions
// created inside the same millisecond still get distinct ids.
func (c *Coordinator) newSessionID(now time.Time) string {
	c.idMu.Lock()
	defer c.idMu.Unlock()
	ms := now.UnixMilli()
	if ms <= c.lastID {
		ms = c.lastID + 1
	}
	c.lastID = ms
	return fmt.Sprintf("session-%d", ms)
}

// StartRecording makes the given session the one actively recording. Start
// is exclusive: a previously recording session is stopped in the same
// document write. Every open page is then told to enter Recording, active
// page first; pages without a live recorder are expected to be unreachable.
func (c *Coordinator) StartRecording(ctx context.Context, sessionID string) error {
	doc, err := c.store.GetData(ctx)
	if err != nil {
		return err
	}

	var target *protocol.Session
	now := c.now().UnixMilli()
	for i := range doc.Sessions {
		s := &doc.Sessions[i]
		switch {
		case s.ID == sessionID:
			target = s
		case s.IsRecording:
			// At most one session records at a time.
			s.IsRecording = false
			if s.EndTime == 0 {
				s.EndTime = now
			}
		}
	}
	if target == nil {
		return fmt.Errorf("session %q not found", sessionID)
	}
	target.IsRecording = true
	target.StartTime = now
	target.EndTime = 0
	doc.CurrentSession = sessionID

	if err := c.store.SaveData(ctx, doc); err != nil {
		return err
	}

	c.notifyPages(ctx, protocol.Message{Type: protocol.MsgStartRecording, SessionID: sessionID})
	return nil
}

// StopRecording ends the active recording: flips the flag, stamps endTime,
// clears the pointer, and tells every page to go Idle. Screenshot requests
// already queued keep draining; stop does not cancel them.
func (c *Coordinator) StopRecording(ctx context.Context) error {
	doc, err := c.store.GetData(ctx)
	if err != nil {
		return err
	}
	if doc.CurrentSession == "" {
		return nil
	}
	now := c.now().UnixMilli()
	for i := range doc.Sessions {
		s := &doc.Sessions[i]
		if s.ID == doc.CurrentSession {
			s.IsRecording = false
			s.EndTime = now
			if s.EndTime < s.StartTime {
				s.EndTime = s.StartTime
			}
		}
	}
	doc.CurrentSession = ""

	if err := c.store.SaveData(ctx, doc); err != nil {
		return err
	}

	c.notifyPages(ctx, protocol.Message{Type: protocol.MsgStopRecording})
	return nil
}

// DeleteSession removes one session through the store.
func (c *Coordinator) DeleteSession(ctx context.Context, sessionID string) error {
	return c.store.DeleteSession(ctx, sessionID)
}

// DeleteAllSessions removes every session through the store.
func (c *Coordinator) DeleteAllSessions(ctx context.Context) error {
	return c.store.DeleteAllSessions(ctx)
}

// Sessions lists all stored sessions.
func (c *Coordinator) Sessions(ctx context.Context) ([]protocol.Session, error) {
	return c.store.GetSessions(ctx)
}

// OnTabLoaded is called when a page finishes loading. If a recording is
// active, the page's recorder is told to join it after a short init delay.
// Unreachable pages are normal here: the recorder may not exist yet.
func (c *Coordinator) OnTabLoaded(ctx context.Context, tabID string) {
	sess, err := c.store.GetCurrentSession(ctx)
	if err != nil {
		logging.Error("coordinator: tab-load session check: %v", err)
		return
	}
	if sess == nil || !sess.IsRecording {
		return
	}
	sessionID := sess.ID
	time.AfterFunc(c.cfg.InitDelay, func() {
		err := c.bus.Notify(tabID, protocol.Message{Type: protocol.MsgStartRecording, SessionID: sessionID})
		if err != nil {
			logging.Debug("coordinator: tab %s unreachable after load (no recorder yet)", tabID)
		}
	})
}

// notifyPages fans a message out to every open page, the active one first.
// Per-page failures are expected and never abort the fan-out.
func (c *Coordinator) notifyPages(ctx context.Context, msg protocol.Message) {
	tabs, err := c.tabs.List(ctx)
	if err != nil {
		logging.Error("coordinator: list tabs: %v", err)
		return
	}

	ordered := make([]protocol.TabInfo, 0, len(tabs))
	if active, err := c.tabs.Active(ctx); err == nil {
		for _, tab := range tabs {
			if tab.ID == active.ID {
				ordered = append(ordered, tab)
				break
			}
		}
	}
	for _, tab := range tabs {
		if len(ordered) > 0 && tab.ID == ordered[0].ID {
			continue
		}
		ordered = append(ordered, tab)
	}

	for _, tab := range ordered {
		if err := c.bus.Notify(tab.ID, msg); err != nil {
			logging.Debug("coordinator: page %s unreachable for %s", tab.ID, msg.Type)
		}
	}
}
