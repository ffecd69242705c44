package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/stepcap/stepcap/internal/logging"
)

// screenshotRequest is one ephemeral unit of capture work. Requests live
// only in the queue: they are discarded after success or retry exhaustion
// and never persisted.
type screenshotRequest struct {
	actionID   string
	tabID      string
	enqueued   time.Time
	retryCount int
}

// enqueue appends a request at the queue tail. A full queue drops the
// request; the action simply keeps no screenshot.
func (c *Coordinator) enqueue(req screenshotRequest) {
	select {
	case c.queue <- req:
	default:
		logging.Warn("coordinator: screenshot queue full, dropping request for action %s", req.actionID)
	}
}

// Run drains the screenshot queue until ctx is cancelled. Requests are
// processed strictly one at a time: capture needs the source tab frontmost,
// and concurrent captures would race on which tab that is.
func (c *Coordinator) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-c.queue:
			if err := c.process(ctx, req); err != nil {
				c.retry(req, err)
			}
		}
	}
}

// retry re-enqueues at the tail while the budget lasts, preserving rough
// chronological fairness among distinct actions. Exhausted requests are
// dropped permanently; the action stays valid without a screenshot.
func (c *Coordinator) retry(req screenshotRequest, cause error) {
	if req.retryCount >= c.cfg.MaxRetries {
		logging.Warn("coordinator: dropping screenshot for action %s after %d retries: %v",
			req.actionID, req.retryCount, cause)
		return
	}
	req.retryCount++
	logging.Debug("coordinator: retrying screenshot for action %s (%d/%d): %v",
		req.actionID, req.retryCount, c.cfg.MaxRetries, cause)
	c.enqueue(req)
}

// process runs one capture attempt end to end.
func (c *Coordinator) process(ctx context.Context, req screenshotRequest) error {
	// Let the triggering UI change settle before capturing.
	if err := sleep(ctx, c.cfg.SettleDelay); err != nil {
		return err
	}

	if !c.tabs.Exists(ctx, req.tabID) {
		return fmt.Errorf("tab %s is gone", req.tabID)
	}

	// Capture APIs only see the foreground tab.
	if err := c.tabs.Activate(ctx, req.tabID); err != nil {
		return fmt.Errorf("activate tab %s: %w", req.tabID, err)
	}
	if err := sleep(ctx, c.cfg.FocusDelay); err != nil {
		return err
	}

	img, err := c.tabs.Capture(ctx, req.tabID)
	if err != nil {
		return fmt.Errorf("capture tab %s: %w", req.tabID, err)
	}

	return c.attach(ctx, req.actionID, img)
}

// attach stores the captured image on its action. The current session is
// checked first; because queued requests keep draining after a stop, the
// search falls back to all sessions. A missing session or action is a
// permanent failure for this request only.
func (c *Coordinator) attach(ctx context.Context, actionID string, img []byte) error {
	doc, err := c.store.GetData(ctx)
	if err != nil {
		return err
	}

	order := make([]int, 0, len(doc.Sessions))
	for i := range doc.Sessions {
		if doc.Sessions[i].ID == doc.CurrentSession {
			order = append([]int{i}, order...)
		} else {
			order = append(order, i)
		}
	}
	for _, i := range order {
		sess := &doc.Sessions[i]
		for j := range sess.Actions {
			if sess.Actions[j].ID == actionID {
				sess.Actions[j].Screenshot = img
				return c.store.SaveData(ctx, doc)
			}
		}
	}
	return fmt.Errorf("action %s no longer exists", actionID)
}

// sleep waits for d or until ctx is cancelled.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
