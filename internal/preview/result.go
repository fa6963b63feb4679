package preview

import "encoding/json"

// Result is the outcome of one render cycle: Success or Failure.
type Result interface {
	Status() string
	isResult()
}

// Success carries compiled SQL and its highlighted HTML.
type Success struct {
	SQL  string
	HTML string
}

// Failure carries the first compile diagnostic and the last good HTML, if any.
type Failure struct {
	Message  string
	LastHTML *string
}

// Status values.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Status implements Result.
func (Success) Status() string { return StatusOK }
func (Success) isResult()      {}

// Status implements Result.
func (Failure) Status() string { return StatusError }
func (Failure) isResult()      {}

// MarshalJSON encodes {"status":"ok","sql":…,"html":…}.
func (s Success) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Status string `json:"status"`
		SQL    string `json:"sql"`
		HTML   string `json:"html"`
	}{StatusOK, s.SQL, s.HTML})
}

type failureError struct {
	Message string `json:"message"`
}

// MarshalJSON encodes {"status":"error","error":{"message":…},"lastHtml":…}.
func (f Failure) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Status   string       `json:"status"`
		Error    failureError `json:"error"`
		LastHTML *string      `json:"lastHtml,omitempty"`
	}{StatusError, failureError{f.Message}, f.LastHTML})
}

// Outbound commands.
const (
	CommandRefresh     = "refresh"
	CommandUpdate      = "update"
	CommandChangeTheme = "changeTheme"
)

// RefreshMessage tells the page which document it mirrors.
type RefreshMessage struct {
	Command     string `json:"command"`
	DocumentURL string `json:"documentUrl"`
}

// UpdateMessage delivers a render result.
type UpdateMessage struct {
	Command string `json:"command"`
	Result  Result `json:"result"`
}

// ChangeThemeMessage announces a re-render after a theme change.
type ChangeThemeMessage struct {
	Command string `json:"command"`
}

// NewRefreshMessage builds a refresh message for uri.
func NewRefreshMessage(uri string) RefreshMessage {
	return RefreshMessage{Command: CommandRefresh, DocumentURL: uri}
}

// NewUpdateMessage builds an update message for r.
func NewUpdateMessage(r Result) UpdateMessage {
	return UpdateMessage{Command: CommandUpdate, Result: r}
}

// NewChangeThemeMessage builds a theme-change message.
func NewChangeThemeMessage() ChangeThemeMessage {
	return ChangeThemeMessage{Command: CommandChangeTheme}
}
