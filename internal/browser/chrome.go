// Package browser drives the Chrome instance everything is recorded from.
// It owns the chromedp contexts, injects the page observer script into
// every tab, routes raw page events to per-tab recorders, and implements
// the tab surface the capture coordinator needs.
package browser

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/stepcap/stepcap/internal/logging"
)

// Config tunes the managed Chrome instance.
type Config struct {
	// ChromePath overrides Chrome auto-detection when non-empty.
	ChromePath string `yaml:"chrome_path,omitempty"`
	Headless   bool   `yaml:"headless"`
	// StartURL is opened in the first tab.
	StartURL string `yaml:"start_url,omitempty"`
	// PollInterval is how often the tab watcher rescans open targets.
	PollInterval time.Duration `yaml:"-"`
}

// findChrome attempts to find a Chrome executable in common locations.
func findChrome() (string, error) {
	var paths []string
	switch runtime.GOOS {
	case "darwin":
		paths = []string{
			"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
			"/Applications/Chromium.app/Contents/MacOS/Chromium",
			"/Applications/Brave Browser.app/Contents/MacOS/Brave Browser",
		}
	case "linux":
		paths = []string{
			"google-chrome",
			"google-chrome-stable",
			"chromium",
			"chromium-browser",
		}
	case "windows":
		paths = []string{
			`C:\Program Files\Google\Chrome\Application\chrome.exe`,
			`C:\Program Files (x86)\Google\Chrome\Application\chrome.exe`,
		}
	}

	for _, path := range paths {
		if runtime.GOOS == "darwin" {
			if _, err := os.Stat(path); err == nil {
				return path, nil
			}
		} else if _, err := exec.LookPath(path); err == nil {
			return path, nil
		}
	}
	if path, err := exec.LookPath("chrome"); err == nil {
		return path, nil
	}
	return "", fmt.Errorf("Chrome browser not found. Please install Chrome, Chromium, or Brave")
}

// NewManager launches Chrome and returns the manager for it. Recorders are
// attached to tabs only once Watch runs.
func NewManager(cfg Config, deps Deps) (*Manager, error) {
	chromePath := cfg.ChromePath
	if chromePath == "" {
		found, err := findChrome()
		if err != nil {
			return nil, err
		}
		chromePath = found
	}
	logging.Info("using Chrome from: %s", chromePath)

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.ExecPath(chromePath),
		chromedp.WindowSize(1440, 900),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)
	if !cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", false))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	ctx, cancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(format string, v ...interface{}) {
		logging.Debug("[chrome] "+format, v...)
	}))

	// Materialize the browser process and first tab.
	startURL := cfg.StartURL
	if startURL == "" {
		startURL = "about:blank"
	}
	if err := chromedp.Run(ctx, chromedp.Navigate(startURL)); err != nil {
		cancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start Chrome: %w", err)
	}

	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}

	m := &Manager{
		cfg:         cfg,
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		ctx:         ctx,
		cancel:      cancel,
		deps:        deps,
		tabs:        map[string]*tab{},
	}
	return m, nil
}

// Close tears down every tab context and the browser itself.
func (m *Manager) Close() {
	m.mu.Lock()
	for id, t := range m.tabs {
		t.close()
		delete(m.tabs, id)
	}
	m.mu.Unlock()
	m.cancel()
	m.allocCancel()
}
