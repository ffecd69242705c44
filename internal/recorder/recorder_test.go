package recorder

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stepcap/stepcap/internal/bus"
	"github.com/stepcap/stepcap/internal/protocol"
	"github.com/stepcap/stepcap/internal/store"
)

const testDOM = `<html><body>` +
	`<button id="save">Save</button>` +
	`<input name="email" type="email" placeholder="Email">` +
	`<input name="city" type="text" placeholder="City">` +
	`<div data-stepcap-ui=""><button class="stop">Stop</button></div>` +
	`</body></html>`

// fakeClock hands out strictly increasing instants with a controllable step.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.UnixMilli(1_700_000_000_000)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	store    *store.Store
	bus      *bus.Bus
	rec      *Recorder
	clock    *fakeClock
	mu       sync.Mutex
	requests []protocol.Message
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store: store.New(store.NewMemoryKV()),
		bus:   bus.New(),
		clock: newFakeClock(),
	}
	f.bus.Register(bus.CoordinatorID, func(msg protocol.Message) protocol.Response {
		f.mu.Lock()
		f.requests = append(f.requests, msg)
		f.mu.Unlock()
		return protocol.Ack()
	})
	f.rec = New("tab-1", f.store, f.bus)
	f.rec.now = f.clock.Now
	return f
}

// startSession stores a recording session, points the shared pointer at it,
// and starts the recorder.
func (f *fixture) startSession(t *testing.T, id string) {
	t.Helper()
	ctx := context.Background()
	if err := f.store.SaveSession(ctx, protocol.Session{ID: id, IsRecording: true}); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}
	if err := f.store.SetCurrentSession(ctx, id); err != nil {
		t.Fatalf("SetCurrentSession: %v", err)
	}
	f.rec.Start(id)
}

func (f *fixture) actions(t *testing.T) []protocol.Action {
	t.Helper()
	sess, err := f.store.GetCurrentSession(context.Background())
	if err != nil {
		t.Fatalf("GetCurrentSession: %v", err)
	}
	if sess == nil {
		t.Fatal("no current session")
	}
	return sess.Actions
}

func clickEvent(path ...int) protocol.PageEvent {
	return protocol.PageEvent{Kind: "click", Path: path, DOM: testDOM}
}

func TestEventSequencePreservesOrder(t *testing.T) {
	f := newFixture(t)
	f.startSession(t, "s1")
	ctx := context.Background()

	events := []protocol.PageEvent{
		clickEvent(0),
		{Kind: "input", Path: []int{2}, Value: "Lisbon", DOM: testDOM},
		{Kind: "scroll", ScrollY: 400},
		{Kind: "navigation", URL: "https://example.com/next"},
	}
	for _, ev := range events {
		f.rec.HandleEvent(ctx, ev)
		f.clock.Advance(2 * time.Second)
	}

	actions := f.actions(t)
	if len(actions) != len(events) {
		t.Fatalf("got %d actions, want %d", len(actions), len(events))
	}
	wantKinds := []protocol.ActionKind{
		protocol.ActionClick, protocol.ActionInput, protocol.ActionScroll, protocol.ActionNavigation,
	}
	var lastTS int64
	for i, a := range actions {
		if a.Kind != wantKinds[i] {
			t.Errorf("action %d kind = %q, want %q", i, a.Kind, wantKinds[i])
		}
		if a.Timestamp < lastTS {
			t.Errorf("action %d timestamp %d decreased below %d", i, a.Timestamp, lastTS)
		}
		lastTS = a.Timestamp
		if want := fmt.Sprintf("s1-tab-1-%d", i+1); a.ID != want {
			t.Errorf("action %d id = %q, want %q", i, a.ID, want)
		}
	}
}

func TestClickDescriptionAndTarget(t *testing.T) {
	f := newFixture(t)
	f.startSession(t, "s1")

	f.rec.HandleEvent(context.Background(), clickEvent(0))

	actions := f.actions(t)
	if len(actions) != 1 {
		t.Fatalf("got %d actions, want 1", len(actions))
	}
	a := actions[0]
	if a.Description != "Click on button 'Save'" {
		t.Errorf("description = %q", a.Description)
	}
	if a.Target.Selector != "#save" {
		t.Errorf("selector = %q, want #save", a.Target.Selector)
	}
}

func TestClickInsideOwnUIIgnored(t *testing.T) {
	f := newFixture(t)
	f.startSession(t, "s1")
	ctx := context.Background()

	// Flagged by the observer script.
	f.rec.HandleEvent(ctx, protocol.PageEvent{Kind: "click", Path: []int{3, 0}, DOM: testDOM, OwnUI: true})
	// Flag missing but the target sits under the UI marker in the snapshot.
	f.rec.HandleEvent(ctx, protocol.PageEvent{Kind: "click", Path: []int{3, 0}, DOM: testDOM})

	if actions := f.actions(t); len(actions) != 0 {
		t.Errorf("own-UI clicks recorded: %+v", actions)
	}
}

func TestInputSensitiveValueMasked(t *testing.T) {
	f := newFixture(t)
	f.startSession(t, "s1")

	f.rec.HandleEvent(context.Background(), protocol.PageEvent{
		Kind: "input", Path: []int{1}, Value: "secret@person.com", DOM: testDOM,
	})

	actions := f.actions(t)
	if len(actions) != 1 {
		t.Fatalf("got %d actions, want 1", len(actions))
	}
	a := actions[0]
	if a.Target.Value == "secret@person.com" {
		t.Error("sensitive value stored in the clear")
	}
	if a.Description != "Enter sensitive data (masked) in 'Email'" {
		t.Errorf("description = %q", a.Description)
	}
}

func TestInputPlainValueRedactedText(t *testing.T) {
	f := newFixture(t)
	f.startSession(t, "s1")

	f.rec.HandleEvent(context.Background(), protocol.PageEvent{
		Kind: "input", Path: []int{2}, Value: "Lisbon", DOM: testDOM,
	})

	actions := f.actions(t)
	if len(actions) != 1 {
		t.Fatalf("got %d actions, want 1", len(actions))
	}
	a := actions[0]
	if a.Target.Value != "Lisbon" {
		t.Errorf("value = %q, want Lisbon", a.Target.Value)
	}
	if a.Description != "Enter 'Lisbon' in 'City'" {
		t.Errorf("description = %q", a.Description)
	}
}

func TestInputSensitiveFieldUnmaskedWhenBlurOff(t *testing.T) {
	f := newFixture(t)
	f.startSession(t, "s1")
	ctx := context.Background()

	settings := protocol.DefaultSettings()
	settings.BlurPasswords = false
	if err := f.store.SaveSettings(ctx, settings); err != nil {
		t.Fatalf("SaveSettings: %v", err)
	}

	f.rec.HandleEvent(ctx, protocol.PageEvent{
		Kind: "input", Path: []int{1}, Value: "secret@person.com", DOM: testDOM,
	})

	actions := f.actions(t)
	if len(actions) != 1 {
		t.Fatalf("got %d actions, want 1", len(actions))
	}
	a := actions[0]
	// The field is no longer masked wholesale, but the pattern scrub on
	// the value itself still runs.
	if a.Target.Value != "s***@person.com" {
		t.Errorf("value = %q, want %q", a.Target.Value, "s***@person.com")
	}
	if a.Description != "Enter 's***@person.com' in 'Email'" {
		t.Errorf("description = %q", a.Description)
	}
}

func TestTwoTabsSameSessionMintDistinctIDs(t *testing.T) {
	f := newFixture(t)
	f.startSession(t, "s1")
	ctx := context.Background()

	second := New("tab-2", f.store, f.bus)
	second.now = f.clock.Now
	second.Start("s1")

	f.rec.HandleEvent(ctx, clickEvent(0))
	second.HandleEvent(ctx, clickEvent(0))

	actions := f.actions(t)
	if len(actions) != 2 {
		t.Fatalf("got %d actions, want 2", len(actions))
	}
	if actions[0].ID == actions[1].ID {
		t.Errorf("both tabs minted action id %q", actions[0].ID)
	}
}

func TestScrollThrottle(t *testing.T) {
	f := newFixture(t)
	f.startSession(t, "s1")
	ctx := context.Background()

	f.rec.HandleEvent(ctx, protocol.PageEvent{Kind: "scroll", ScrollY: 100})
	f.clock.Advance(300 * time.Millisecond)
	f.rec.HandleEvent(ctx, protocol.PageEvent{Kind: "scroll", ScrollY: 200})

	if got := len(f.actions(t)); got != 1 {
		t.Fatalf("scrolls inside the window: got %d actions, want 1", got)
	}

	f.clock.Advance(time.Second)
	f.rec.HandleEvent(ctx, protocol.PageEvent{Kind: "scroll", ScrollY: 300})

	if got := len(f.actions(t)); got != 2 {
		t.Fatalf("scroll outside the window: got %d actions, want 2", got)
	}
}

func TestScrollDirectionAndTarget(t *testing.T) {
	f := newFixture(t)
	f.startSession(t, "s1")
	ctx := context.Background()

	f.rec.HandleEvent(ctx, protocol.PageEvent{Kind: "scroll", ScrollY: 500})
	f.clock.Advance(2 * time.Second)
	f.rec.HandleEvent(ctx, protocol.PageEvent{Kind: "scroll", ScrollY: 100})

	actions := f.actions(t)
	if len(actions) != 2 {
		t.Fatalf("got %d actions, want 2", len(actions))
	}
	if actions[0].Description != "Scroll down to 500px" {
		t.Errorf("first description = %q", actions[0].Description)
	}
	if actions[1].Description != "Scroll up to 100px" {
		t.Errorf("second description = %q", actions[1].Description)
	}
	if actions[0].Target.Tag != "window" || actions[0].Target.Value != "500px" {
		t.Errorf("synthetic target = %+v", actions[0].Target)
	}
}

func TestScrollDisabledBySettings(t *testing.T) {
	f := newFixture(t)
	f.startSession(t, "s1")
	ctx := context.Background()

	settings := protocol.DefaultSettings()
	settings.CaptureScrolling = false
	if err := f.store.SaveSettings(ctx, settings); err != nil {
		t.Fatalf("SaveSettings: %v", err)
	}

	f.rec.HandleEvent(ctx, protocol.PageEvent{Kind: "scroll", ScrollY: 100})
	if got := len(f.actions(t)); got != 0 {
		t.Errorf("scroll recorded with captureScrolling off: %d actions", got)
	}
}

func TestNoCurrentSessionDropsAction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := f.store.SaveSession(ctx, protocol.Session{ID: "s1", IsRecording: true}); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}
	// Recorder believes it is recording but the shared pointer is unset.
	f.rec.Start("s1")

	f.rec.HandleEvent(ctx, clickEvent(0))

	sess, err := f.store.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if len(sess.Actions) != 0 {
		t.Errorf("action appended with no current session: %+v", sess.Actions)
	}
}

func TestIdleRecorderIgnoresEvents(t *testing.T) {
	f := newFixture(t)
	f.startSession(t, "s1")
	f.rec.Stop()

	f.rec.HandleEvent(context.Background(), clickEvent(0))

	if got := len(f.actions(t)); got != 0 {
		t.Errorf("idle recorder appended %d actions", got)
	}
}

func TestScreenshotRequestedPerAction(t *testing.T) {
	f := newFixture(t)
	f.startSession(t, "s1")

	f.rec.HandleEvent(context.Background(), clickEvent(0))

	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) != 1 {
		t.Fatalf("got %d screenshot requests, want 1", len(f.requests))
	}
	req := f.requests[0]
	if req.Type != protocol.MsgTakeScreenshot || req.ActionID != "s1-tab-1-1" || req.TabID != "tab-1" {
		t.Errorf("request = %+v", req)
	}
}

func TestScreenshotSkippedWhenAutoScreenshotOff(t *testing.T) {
	f := newFixture(t)
	f.startSession(t, "s1")
	ctx := context.Background()

	settings := protocol.DefaultSettings()
	settings.AutoScreenshot = false
	if err := f.store.SaveSettings(ctx, settings); err != nil {
		t.Fatalf("SaveSettings: %v", err)
	}

	f.rec.HandleEvent(ctx, clickEvent(0))

	if got := len(f.actions(t)); got != 1 {
		t.Fatalf("action not recorded: %d", got)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) != 0 {
		t.Errorf("screenshot requested with autoScreenshot off: %+v", f.requests)
	}
}

func TestCoordinatorGoneStopsScreenshotRequests(t *testing.T) {
	f := newFixture(t)
	f.bus.Unregister(bus.CoordinatorID)
	f.startSession(t, "s1")
	ctx := context.Background()

	// First append discovers the dead coordinator; later appends must not
	// keep retrying, and actions still persist.
	f.rec.HandleEvent(ctx, clickEvent(0))
	f.clock.Advance(2 * time.Second)
	f.rec.HandleEvent(ctx, clickEvent(0))

	if got := len(f.actions(t)); got != 2 {
		t.Fatalf("got %d actions, want 2", got)
	}
	f.rec.mu.Lock()
	gone := f.rec.coordinatorGone
	f.rec.mu.Unlock()
	if !gone {
		t.Error("coordinatorGone not set after ErrNoReceiver")
	}
}

func TestResumePicksUpActiveRecording(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := f.store.SaveSession(ctx, protocol.Session{ID: "s9", IsRecording: true}); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}
	if err := f.store.SetCurrentSession(ctx, "s9"); err != nil {
		t.Fatalf("SetCurrentSession: %v", err)
	}

	if err := f.rec.Resume(ctx); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	status := f.rec.Status()
	if !status.IsRecording || status.SessionID != "s9" {
		t.Errorf("status after resume = %+v", status)
	}
}

func TestResumeStaysIdleWithoutActiveRecording(t *testing.T) {
	f := newFixture(t)
	if err := f.rec.Resume(context.Background()); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if status := f.rec.Status(); status.IsRecording {
		t.Errorf("recorder resumed with nothing recording: %+v", status)
	}
}

func TestHandleMessage(t *testing.T) {
	f := newFixture(t)

	resp := f.rec.HandleMessage(protocol.Message{Type: protocol.MsgStartRecording, SessionID: "s1"})
	if !resp.OK {
		t.Fatalf("start response = %+v", resp)
	}
	resp = f.rec.HandleMessage(protocol.Message{Type: protocol.MsgGetStatus})
	if !resp.OK || resp.Status == nil || !resp.Status.IsRecording || resp.Status.SessionID != "s1" {
		t.Errorf("status response = %+v", resp)
	}
	resp = f.rec.HandleMessage(protocol.Message{Type: protocol.MsgStopRecording})
	if !resp.OK {
		t.Fatalf("stop response = %+v", resp)
	}
	resp = f.rec.HandleMessage(protocol.Message{Type: protocol.MsgGetStatus})
	if resp.Status == nil || resp.Status.IsRecording {
		t.Errorf("status after stop = %+v", resp)
	}
	resp = f.rec.HandleMessage(protocol.Message{Type: protocol.MsgCreateSession})
	if resp.OK {
		t.Errorf("unsupported message type accepted: %+v", resp)
	}
}
