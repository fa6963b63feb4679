package host

import "encoding/json"

// Message is a JSON-RPC 2.0 message.
type Message struct {
	JSONRPC string           `json:"jsonrpc"`
	ID      *json.RawMessage `json:"id,omitempty"`
	Method  string           `json:"method,omitempty"`
	Params  json.RawMessage  `json:"params,omitempty"`
	Result  json.RawMessage  `json:"result,omitempty"`
	Error   *ResponseError   `json:"error,omitempty"`
}

// ResponseError is a JSON-RPC error object.
type ResponseError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// JSON-RPC error codes.
const (
	CodeParseError     = -32700
	CodeInvalidParams  = -32602
	CodeMethodNotFound = -32601
	CodeInternalError  = -32603
	// CodeServerNotInitialized is returned for requests before initialize.
	CodeServerNotInitialized = -32002
)

// Methods understood or sent by the host bridge.
const (
	MethodInitialize             = "initialize"
	MethodInitialized            = "initialized"
	MethodShutdown               = "shutdown"
	MethodExit                   = "exit"
	MethodDidOpen                = "textDocument/didOpen"
	MethodDidChange              = "textDocument/didChange"
	MethodDidClose               = "textDocument/didClose"
	MethodDidChangeActiveEditor  = "sqlpreview/didChangeActiveEditor"
	MethodDidChangeConfiguration = "workspace/didChangeConfiguration"
	MethodShowPreview            = "sqlpreview/showPreview"
	MethodLastSQL                = "sqlpreview/lastSql"

	MethodSetContext   = "sqlpreview/setContext"
	MethodShowMessage  = "window/showMessage"
	MethodShowDocument = "window/showDocument"
)

// --- Lifecycle ---

// InitializeParams for the initialize request.
type InitializeParams struct {
	ProcessID             *int                   `json:"processId,omitempty"`
	RootURI               string                 `json:"rootUri"`
	InitializationOptions *InitializationOptions `json:"initializationOptions,omitempty"`
}

// InitializationOptions are the bridge-specific initialize options.
type InitializationOptions struct {
	ColorTheme string `json:"colorTheme,omitempty"`
}

// InitializeResult is the response to initialize.
type InitializeResult struct {
	Capabilities ServerCapabilities `json:"capabilities"`
	ServerInfo   *ServerInfo        `json:"serverInfo,omitempty"`
}

// ServerCapabilities describes what the bridge handles.
type ServerCapabilities struct {
	TextDocumentSync *TextDocumentSyncOptions `json:"textDocumentSync,omitempty"`
}

// ServerInfo names the bridge.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// TextDocumentSyncKind defines how documents are synced.
type TextDocumentSyncKind int

const (
	TextDocumentSyncKindNone TextDocumentSyncKind = 0
	TextDocumentSyncKindFull TextDocumentSyncKind = 1
)

// TextDocumentSyncOptions defines document sync behavior.
type TextDocumentSyncOptions struct {
	OpenClose bool                 `json:"openClose"`
	Change    TextDocumentSyncKind `json:"change"`
}

// --- Documents ---

// TextDocumentIdentifier identifies a text document.
type TextDocumentIdentifier struct {
	URI string `json:"uri"`
}

// VersionedTextDocumentIdentifier identifies a specific document version.
type VersionedTextDocumentIdentifier struct {
	TextDocumentIdentifier
	Version int `json:"version"`
}

// TextDocumentItem is a document transferred on open.
type TextDocumentItem struct {
	URI        string `json:"uri"`
	LanguageID string `json:"languageId"`
	Version    int    `json:"version"`
	Text       string `json:"text"`
}

// TextDocumentContentChangeEvent is a full-text change.
type TextDocumentContentChangeEvent struct {
	Text string `json:"text"`
}

// DidOpenTextDocumentParams for textDocument/didOpen.
type DidOpenTextDocumentParams struct {
	TextDocument TextDocumentItem `json:"textDocument"`
}

// DidChangeTextDocumentParams for textDocument/didChange.
type DidChangeTextDocumentParams struct {
	TextDocument   VersionedTextDocumentIdentifier  `json:"textDocument"`
	ContentChanges []TextDocumentContentChangeEvent `json:"contentChanges"`
}

// DidCloseTextDocumentParams for textDocument/didClose.
type DidCloseTextDocumentParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
}

// ActiveEditorParams for sqlpreview/didChangeActiveEditor. URI is empty when
// no text editor has focus.
type ActiveEditorParams struct {
	URI string `json:"uri"`
}

// DidChangeConfigurationParams for workspace/didChangeConfiguration.
type DidChangeConfigurationParams struct {
	Settings Settings `json:"settings"`
}

// Settings are the editor settings the bridge follows.
type Settings struct {
	ColorTheme string `json:"colorTheme"`
}

// --- Previews ---

// ShowPreviewParams for sqlpreview/showPreview.
type ShowPreviewParams struct {
	URI string `json:"uri"`
}

// ShowPreviewResult is the response to sqlpreview/showPreview.
type ShowPreviewResult struct {
	PanelID string `json:"panelId"`
	URL     string `json:"url,omitempty"`
}

// LastSQLResult is the response to sqlpreview/lastSql.
type LastSQLResult struct {
	SQL *string `json:"sql"`
}

// --- Outbound ---

// SetContextParams for sqlpreview/setContext.
type SetContextParams struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// ShowMessageParams for window/showMessage.
type ShowMessageParams struct {
	Type    MessageType `json:"type"`
	Message string      `json:"message"`
}

// MessageType indicates the type of a message.
type MessageType int

const (
	MessageTypeError   MessageType = 1
	MessageTypeWarning MessageType = 2
	MessageTypeInfo    MessageType = 3
	MessageTypeLog     MessageType = 4
)

// ShowDocumentParams for window/showDocument.
type ShowDocumentParams struct {
	URI       string `json:"uri"`
	External  bool   `json:"external"`
	TakeFocus bool   `json:"takeFocus,omitempty"`
}
