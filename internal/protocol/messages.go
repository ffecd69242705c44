package protocol

// MessageType tags a protocol message. The same message shapes travel over
// the in-process bus (coordinator ⇄ page recorders) and the control
// WebSocket (UI collaborators ⇄ coordinator).
type MessageType string

const (
	MsgCreateSession     MessageType = "CREATE_SESSION"
	MsgStartRecording    MessageType = "START_RECORDING"
	MsgStopRecording     MessageType = "STOP_RECORDING"
	MsgGetStatus         MessageType = "GET_STATUS"
	MsgTakeScreenshot    MessageType = "TAKE_SCREENSHOT"
	MsgGetSessions       MessageType = "GET_SESSIONS"
	MsgDeleteSession     MessageType = "DELETE_SESSION"
	MsgDeleteAllSessions MessageType = "DELETE_ALL_SESSIONS"
)

// Message is a tagged request. Only the fields relevant to the given type
// are populated.
type Message struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"sessionId,omitempty"`
	ActionID  string      `json:"actionId,omitempty"`
	TabID     string      `json:"tabId,omitempty"`
	Title     string      `json:"title,omitempty"`
	URL       string      `json:"url,omitempty"`
}

// Status reports a page recorder's current state.
type Status struct {
	IsRecording bool   `json:"isRecording"`
	SessionID   string `json:"sessionId,omitempty"`
}

// Response answers a Message. OK is false only when the operation itself
// failed; expected conditions (no recorder on a page, nothing recording)
// are not errors.
type Response struct {
	OK       bool      `json:"ok"`
	Error    string    `json:"error,omitempty"`
	Session  *Session  `json:"session,omitempty"`
	Sessions []Session `json:"sessions,omitempty"`
	Status   *Status   `json:"status,omitempty"`
}

// Ack is the affirmative response with no payload.
func Ack() Response {
	return Response{OK: true}
}

// Fail wraps an error message into a negative response.
func Fail(msg string) Response {
	return Response{OK: false, Error: msg}
}
