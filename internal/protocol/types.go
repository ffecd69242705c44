package protocol

// ActionKind identifies the type of a recorded user interaction.
// The set is closed; no other kinds are produced.
type ActionKind string

const (
	ActionClick      ActionKind = "click"
	ActionInput      ActionKind = "input"
	ActionScroll     ActionKind = "scroll"
	ActionNavigation ActionKind = "navigation"
)

// ElementInfo describes the element an action targeted.
// Value may be redacted before the action is persisted.
type ElementInfo struct {
	Tag        string            `json:"tag"`
	Selector   string            `json:"selector"`
	Text       string            `json:"text,omitempty"`
	Value      string            `json:"value,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Action is one observed user interaction. Screenshot starts empty and is
// attached asynchronously by the capture coordinator; an action without a
// screenshot is a valid terminal state.
type Action struct {
	ID          string      `json:"id"`
	Kind        ActionKind  `json:"kind"`
	Timestamp   int64       `json:"timestamp"` // milliseconds since epoch
	Target      ElementInfo `json:"target"`
	Screenshot  []byte      `json:"screenshot,omitempty"`
	Description string      `json:"description"`
}

// Session is one recording run: metadata plus an ordered sequence of actions.
// Actions are stored in append order, which is also chronological order
// within a single page.
type Session struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	URL         string   `json:"url"`
	StartTime   int64    `json:"startTime"`
	EndTime     int64    `json:"endTime,omitempty"`
	Actions     []Action `json:"actions"`
	IsRecording bool     `json:"isRecording"`
}

// Settings holds the user-tunable recording preferences stored alongside
// the sessions.
type Settings struct {
	AutoScreenshot   bool `json:"autoScreenshot"`
	BlurPasswords    bool `json:"blurPasswords"`
	CaptureScrolling bool `json:"captureScrolling"`
}

// DefaultSettings returns the settings used when no stored document exists.
func DefaultSettings() Settings {
	return Settings{
		AutoScreenshot:   true,
		BlurPasswords:    true,
		CaptureScrolling: true,
	}
}

// Document is the single persisted record holding all recorder state.
// Every store mutation rewrites the whole document; the last writer wins.
type Document struct {
	Sessions       []Session `json:"sessions"`
	CurrentSession string    `json:"currentSession,omitempty"`
	Settings       Settings  `json:"settings"`
}

// TabInfo identifies one open browser tab.
type TabInfo struct {
	ID    string `json:"id"`
	URL   string `json:"url"`
	Title string `json:"title"`
}

// PageEvent is a raw DOM event forwarded from the in-page observer script.
// Path locates the target element as a chain of element-child indexes
// starting at document.body; DOM carries the document snapshot the path
// resolves against.
type PageEvent struct {
	Kind      string `json:"kind"`
	Timestamp int64  `json:"timestamp"`
	URL       string `json:"url,omitempty"`
	Path      []int  `json:"path,omitempty"`
	Value     string `json:"value,omitempty"`
	ScrollY   int    `json:"scrollY,omitempty"`
	OwnUI     bool   `json:"ownUI,omitempty"`
	DOM       string `json:"dom,omitempty"`
}
