package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	cdpruntime "github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"

	"github.com/stepcap/stepcap/internal/bus"
	"github.com/stepcap/stepcap/internal/coordinator"
	"github.com/stepcap/stepcap/internal/logging"
	"github.com/stepcap/stepcap/internal/protocol"
	"github.com/stepcap/stepcap/internal/recorder"
	"github.com/stepcap/stepcap/internal/store"
)

// Deps are the collaborators the manager wires each tab into.
type Deps struct {
	Store *store.Store
	Bus   *bus.Bus
	Coord *coordinator.Coordinator
}

// Manager owns the Chrome process and one recorder per open tab.
type Manager struct {
	cfg         Config
	allocCtx    context.Context
	allocCancel context.CancelFunc
	ctx         context.Context
	cancel      context.CancelFunc
	deps        Deps

	mu       sync.Mutex
	tabs     map[string]*tab
	activeID string
}

// tab is one attached page target: its chromedp context, its recorder, and
// the serial event feed keeping action order equal to observation order.
type tab struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
	rec    *recorder.Recorder
	events chan protocol.PageEvent
}

// close tears the tab down by cancelling its context. The events channel is
// deliberately left open: the ListenTarget callback may still be delivering
// into it from another goroutine, and closing it under a live producer
// would panic. The consumer exits through the cancelled context instead.
func (t *tab) close() {
	t.cancel()
}

// consume drains the event feed serially into the recorder until the tab
// context is cancelled. Events still buffered at teardown are dropped.
func (t *tab) consume() {
	for {
		select {
		case <-t.ctx.Done():
			return
		case ev := <-t.events:
			t.rec.HandleEvent(context.Background(), ev)
		}
	}
}

// Watch keeps the tab set in sync with Chrome until ctx is cancelled:
// recorders are attached to new page targets and torn down for closed ones.
func (m *Manager) Watch(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sync(ctx)
		}
	}
}

// sync reconciles attached recorders with Chrome's current page targets.
func (m *Manager) sync(ctx context.Context) {
	infos, err := chromedp.Targets(m.ctx)
	if err != nil {
		logging.Error("browser: list targets: %v", err)
		return
	}

	open := map[string]bool{}
	for _, info := range infos {
		if info.Type != "page" {
			continue
		}
		id := string(info.TargetID)
		open[id] = true
		m.mu.Lock()
		_, known := m.tabs[id]
		m.mu.Unlock()
		if !known {
			if err := m.attachTab(ctx, info.TargetID); err != nil {
				logging.Error("browser: attach tab %s: %v", id, err)
			}
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, t := range m.tabs {
		if !open[id] {
			logging.Debug("browser: tab %s closed", id)
			t.close()
			m.deps.Bus.Unregister(id)
			delete(m.tabs, id)
		}
	}
}

// attachTab wires a recorder to one page target: binding + observer script
// installed, page events fed serially into the recorder, page loads
// reported to the coordinator.
func (m *Manager) attachTab(ctx context.Context, targetID target.ID) error {
	id := string(targetID)
	tabCtx, cancel := chromedp.NewContext(m.ctx, chromedp.WithTargetID(targetID))

	rec := recorder.New(id, m.deps.Store, m.deps.Bus)
	t := &tab{
		id:     id,
		ctx:    tabCtx,
		cancel: cancel,
		rec:    rec,
		events: make(chan protocol.PageEvent, 128),
	}

	// One consumer per tab: events append in observation order.
	go t.consume()

	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		switch e := ev.(type) {
		case *cdpruntime.EventBindingCalled:
			if e.Name != observerBinding {
				return
			}
			var pev protocol.PageEvent
			if err := json.Unmarshal([]byte(e.Payload), &pev); err != nil {
				logging.Warn("browser: bad observer payload from %s: %v", id, err)
				return
			}
			select {
			case t.events <- pev:
			default:
				logging.Warn("browser: event feed full for tab %s, dropping event", id)
			}
		case *page.EventLoadEventFired:
			go m.deps.Coord.OnTabLoaded(context.Background(), id)
		}
	})

	err := chromedp.Run(tabCtx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			if err := cdpruntime.AddBinding(observerBinding).Do(ctx); err != nil {
				return err
			}
			_, err := page.AddScriptToEvaluateOnNewDocument(observerScript).Do(ctx)
			return err
		}),
		// The page may already be loaded; install the observer now too.
		chromedp.Evaluate(observerScript, nil),
	)
	if err != nil {
		cancel()
		return err
	}

	m.deps.Bus.Register(id, rec.HandleMessage)
	m.mu.Lock()
	m.tabs[id] = t
	m.mu.Unlock()

	// Re-join an in-flight recording after navigation or reload.
	if err := rec.Resume(ctx); err != nil {
		logging.Warn("browser: resume check for tab %s: %v", id, err)
	}
	logging.Debug("browser: attached tab %s", id)
	return nil
}

// tabContext returns the chromedp context for an attached tab.
func (m *Manager) tabContext(tabID string) (context.Context, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tabs[tabID]
	if !ok {
		return nil, false
	}
	return t.ctx, true
}

// The coordinator.Tabs surface.

// List returns all open page targets.
func (m *Manager) List(context.Context) ([]protocol.TabInfo, error) {
	infos, err := chromedp.Targets(m.ctx)
	if err != nil {
		return nil, err
	}
	var tabs []protocol.TabInfo
	for _, info := range infos {
		if info.Type != "page" {
			continue
		}
		tabs = append(tabs, protocol.TabInfo{
			ID:    string(info.TargetID),
			URL:   info.URL,
			Title: info.Title,
		})
	}
	return tabs, nil
}

// Active returns the tab most recently brought to the foreground, falling
// back to the first open tab. CDP does not report window focus directly, so
// the manager tracks its own activations.
func (m *Manager) Active(ctx context.Context) (protocol.TabInfo, error) {
	tabs, err := m.List(ctx)
	if err != nil {
		return protocol.TabInfo{}, err
	}
	if len(tabs) == 0 {
		return protocol.TabInfo{}, fmt.Errorf("no open tabs")
	}
	m.mu.Lock()
	activeID := m.activeID
	m.mu.Unlock()
	for _, tab := range tabs {
		if tab.ID == activeID {
			return tab, nil
		}
	}
	return tabs[0], nil
}

// Exists reports whether the tab is still open.
func (m *Manager) Exists(ctx context.Context, tabID string) bool {
	tabs, err := m.List(ctx)
	if err != nil {
		return false
	}
	for _, tab := range tabs {
		if tab.ID == tabID {
			return true
		}
	}
	return false
}

// Activate brings the tab to the foreground.
func (m *Manager) Activate(_ context.Context, tabID string) error {
	tabCtx, ok := m.tabContext(tabID)
	if !ok {
		return fmt.Errorf("tab %s is not attached", tabID)
	}
	err := chromedp.Run(tabCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		return target.ActivateTarget(target.ID(tabID)).Do(ctx)
	}))
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.activeID = tabID
	m.mu.Unlock()
	return nil
}

// Capture screenshots the tab's current viewport.
func (m *Manager) Capture(_ context.Context, tabID string) ([]byte, error) {
	tabCtx, ok := m.tabContext(tabID)
	if !ok {
		return nil, fmt.Errorf("tab %s is not attached", tabID)
	}
	runCtx, cancel := context.WithTimeout(tabCtx, 5*time.Second)
	defer cancel()

	var buf []byte
	if err := chromedp.Run(runCtx, chromedp.FullScreenshot(&buf, 90)); err != nil {
		return nil, err
	}
	return buf, nil
}
