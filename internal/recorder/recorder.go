// Package recorder turns raw page events into persisted actions. One
// Recorder exists per open tab; each follows the shared current-session
// pointer independently, so after navigation or reload a page picks the
// active recording back up on its own.
package recorder

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html"

	"github.com/stepcap/stepcap/internal/bus"
	"github.com/stepcap/stepcap/internal/logging"
	"github.com/stepcap/stepcap/internal/protocol"
	"github.com/stepcap/stepcap/internal/redact"
	"github.com/stepcap/stepcap/internal/selector"
	"github.com/stepcap/stepcap/internal/store"
)

// UIMarkerAttr marks DOM subtrees belonging to stepcap's own UI surface.
// Clicks inside such subtrees are never recorded.
const UIMarkerAttr = "data-stepcap-ui"

// scrollWindow is the rolling throttle window for scroll actions: at most
// one recorded scroll per window per page.
const scrollWindow = time.Second

// State is the recorder's lifecycle state.
type State int

const (
	// Idle means no observers feed this recorder.
	Idle State = iota
	// Recording means events are converted into actions.
	Recording
)

// Recorder is the page-resident observer for one tab.
type Recorder struct {
	tabID string
	store *store.Store
	bus   *bus.Bus

	mu        sync.Mutex
	state     State
	sessionID string
	seq       int

	lastScrollY  int
	lastScrollAt time.Time

	// Set once the coordinator becomes unreachable; stops further
	// screenshot requests instead of erroring on every action.
	coordinatorGone bool

	now func() time.Time
}

// New creates a recorder for the given tab.
func New(tabID string, st *store.Store, b *bus.Bus) *Recorder {
	return &Recorder{
		tabID: tabID,
		store: st,
		bus:   b,
		now:   time.Now,
	}
}

// HandleMessage implements the coordinator→page half of the message
// protocol.
func (r *Recorder) HandleMessage(msg protocol.Message) protocol.Response {
	switch msg.Type {
	case protocol.MsgStartRecording:
		r.Start(msg.SessionID)
		return protocol.Ack()
	case protocol.MsgStopRecording:
		r.Stop()
		return protocol.Ack()
	case protocol.MsgGetStatus:
		status := r.Status()
		return protocol.Response{OK: true, Status: &status}
	default:
		return protocol.Fail(fmt.Sprintf("unsupported message type %q", msg.Type))
	}
}

// Start enters the Recording state for the given session, resetting the
// per-page action sequence counter. Starting while already recording
// rebinds to the new session.
func (r *Recorder) Start(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = Recording
	r.sessionID = sessionID
	r.seq = 0
	r.lastScrollAt = time.Time{}
	logging.Debug("recorder %s: recording session %s", r.tabID, sessionID)
}

// Stop returns the recorder to Idle and clears the session binding.
func (r *Recorder) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = Idle
	r.sessionID = ""
	logging.Debug("recorder %s: stopped", r.tabID)
}

// Status reports the current state.
func (r *Recorder) Status() protocol.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return protocol.Status{IsRecording: r.state == Recording, SessionID: r.sessionID}
}

// Resume checks the shared current-session pointer at page load and, if a
// recording is already active, enters the Recording state for it. This is
// how a recorder rejoins a session after navigation or reload.
func (r *Recorder) Resume(ctx context.Context) error {
	sess, err := r.store.GetCurrentSession(ctx)
	if err != nil {
		return err
	}
	if sess != nil && sess.IsRecording {
		r.Start(sess.ID)
	}
	return nil
}

// HandleEvent converts one raw page event into a persisted action. Failures
// are contained here: they are logged and never abort the event loop.
func (r *Recorder) HandleEvent(ctx context.Context, ev protocol.PageEvent) {
	if ev.Kind == "scroll" {
		if settings, err := r.store.GetSettings(ctx); err == nil && !settings.CaptureScrolling {
			return
		}
	}

	r.mu.Lock()
	if r.state != Recording {
		r.mu.Unlock()
		return
	}

	switch ev.Kind {
	case "scroll":
		// Rolling 1-second throttle; events inside the window are
		// silently dropped, not queued.
		if !r.lastScrollAt.IsZero() && r.now().Sub(r.lastScrollAt) < scrollWindow {
			r.mu.Unlock()
			return
		}
	case "click":
		if ev.OwnUI {
			r.mu.Unlock()
			return
		}
	}

	// Reserve id and timestamp synchronously so append order matches
	// observation order even though the store round-trips are async. The
	// tab id in the action id keeps ids unique when several tabs record
	// into the same session with their own counters.
	r.seq++
	action := protocol.Action{
		ID:        fmt.Sprintf("%s-%s-%d", r.sessionID, r.tabID, r.seq),
		Timestamp: r.now().UnixMilli(),
	}
	var lastScrollY int
	if ev.Kind == "scroll" {
		r.lastScrollAt = r.now()
		lastScrollY = r.lastScrollY
		r.lastScrollY = ev.ScrollY
	}
	r.mu.Unlock()

	ok := false
	switch ev.Kind {
	case "click":
		ok = r.buildClick(&action, ev)
	case "input":
		blur := true
		if settings, err := r.store.GetSettings(ctx); err == nil {
			blur = settings.BlurPasswords
		}
		ok = r.buildInput(&action, ev, blur)
	case "scroll":
		ok = r.buildScroll(&action, ev, lastScrollY)
	case "navigation":
		ok = r.buildNavigation(&action, ev)
	default:
		logging.Warn("recorder %s: unknown event kind %q", r.tabID, ev.Kind)
	}
	if !ok {
		return
	}

	if !r.appendAction(ctx, action) {
		return
	}
	r.requestScreenshot(ctx, action.ID)
}

// buildClick fills in a click action. Returns false when the target cannot
// be resolved in the snapshot.
func (r *Recorder) buildClick(action *protocol.Action, ev protocol.PageEvent) bool {
	el, ok := r.resolveTarget(ev)
	if !ok {
		return false
	}
	action.Kind = protocol.ActionClick
	action.Target = el
	action.Description = clickDescription(el)
	return true
}

// buildInput fills in an input action, running the value through the
// sensitive data filter. blur controls whether sensitive fields are masked
// wholesale; the pattern scrub on free text always runs.
func (r *Recorder) buildInput(action *protocol.Action, ev protocol.PageEvent, blur bool) bool {
	el, ok := r.resolveTarget(ev)
	if !ok {
		return false
	}
	el.Value = ev.Value

	masked := blur && redact.IsSensitive(el)
	if masked {
		el.Value = redact.Value(el)
	} else {
		el.Value = redact.Text(el.Value)
	}

	action.Kind = protocol.ActionInput
	action.Target = el
	action.Description = inputDescription(el, masked)
	return true
}

// buildScroll fills in a scroll action with the synthetic window target.
func (r *Recorder) buildScroll(action *protocol.Action, ev protocol.PageEvent, lastY int) bool {
	direction := "down"
	if ev.ScrollY < lastY {
		direction = "up"
	}
	offset := fmt.Sprintf("%dpx", ev.ScrollY)
	action.Kind = protocol.ActionScroll
	action.Target = protocol.ElementInfo{
		Tag:      "window",
		Selector: "window",
		Text:     offset,
		Value:    offset,
	}
	action.Description = fmt.Sprintf("Scroll %s to %s", direction, offset)
	return true
}

// buildNavigation fills in a navigation action carrying the destination URL.
func (r *Recorder) buildNavigation(action *protocol.Action, ev protocol.PageEvent) bool {
	action.Kind = protocol.ActionNavigation
	action.Target = protocol.ElementInfo{
		Tag:      "window",
		Selector: "window",
		Text:     ev.URL,
		Value:    ev.URL,
	}
	action.Description = fmt.Sprintf("Navigate to %s", ev.URL)
	return true
}

// resolveTarget parses the event's document snapshot and derives the
// element descriptor. A second own-UI check runs against the snapshot in
// case the observer script predates the marker.
func (r *Recorder) resolveTarget(ev protocol.PageEvent) (protocol.ElementInfo, bool) {
	doc, err := html.Parse(strings.NewReader(ev.DOM))
	if err != nil {
		logging.Debug("recorder %s: snapshot parse failed: %v", r.tabID, err)
		return protocol.ElementInfo{}, false
	}
	n := selector.ResolvePath(doc, ev.Path)
	if n == nil {
		logging.Debug("recorder %s: event path does not resolve", r.tabID)
		return protocol.ElementInfo{}, false
	}
	if ev.Kind == "click" && selector.HasAncestorAttr(n, UIMarkerAttr) {
		return protocol.ElementInfo{}, false
	}
	return selector.Describe(doc, n), true
}

// appendAction runs the read-current-session → push → save cycle. When no
// current session exists the action is silently dropped.
func (r *Recorder) appendAction(ctx context.Context, action protocol.Action) bool {
	sess, err := r.store.GetCurrentSession(ctx)
	if err != nil {
		logging.Error("recorder %s: load session: %v", r.tabID, err)
		return false
	}
	if sess == nil {
		logging.Debug("recorder %s: no current session, dropping action", r.tabID)
		return false
	}
	sess.Actions = append(sess.Actions, action)
	if err := r.store.SaveSession(ctx, *sess); err != nil {
		logging.Error("recorder %s: save session: %v", r.tabID, err)
		return false
	}
	return true
}

// requestScreenshot fires the capture request and forgets it. A missing
// coordinator marks this recorder as disconnected so it stops trying; a
// recorded action without a screenshot is a valid terminal state either way.
func (r *Recorder) requestScreenshot(ctx context.Context, actionID string) {
	settings, err := r.store.GetSettings(ctx)
	if err == nil && !settings.AutoScreenshot {
		return
	}

	r.mu.Lock()
	gone := r.coordinatorGone
	r.mu.Unlock()
	if gone {
		return
	}

	err = r.bus.Notify(bus.CoordinatorID, protocol.Message{
		Type:     protocol.MsgTakeScreenshot,
		ActionID: actionID,
		TabID:    r.tabID,
	})
	if err == bus.ErrNoReceiver {
		r.mu.Lock()
		r.coordinatorGone = true
		r.mu.Unlock()
		logging.Warn("recorder %s: coordinator unreachable, screenshot requests disabled", r.tabID)
	} else if err != nil {
		logging.Error("recorder %s: screenshot request: %v", r.tabID, err)
	}
}
