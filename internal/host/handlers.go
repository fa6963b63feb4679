package host

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/leapstack-labs/sqlpreview/internal/preview"
)

// ServerName is reported in the initialize response.
const ServerName = "sqlpreview"

// surfaceURL is implemented by surfaces served over HTTP.
type surfaceURL interface {
	URL() string
}

// workspaceScoped is implemented by state stores keyed per workspace.
type workspaceScoped interface {
	SetWorkspace(workspace string)
}

// handleMessage dispatches a message to the appropriate handler.
func (s *Server) handleMessage(ctx context.Context, msg *Message) error {
	if msg.Method == "" {
		if msg.ID != nil {
			s.handleResponse(msg)
		}
		return nil
	}
	s.logger.Debug("received", "method", msg.Method)

	if msg.ID != nil && !s.initialized.Load() && msg.Method != MethodInitialize {
		s.sendResponse(msg.ID, nil, &ResponseError{
			Code:    CodeServerNotInitialized,
			Message: "server not initialized",
		})
		return nil
	}

	switch msg.Method {
	case MethodInitialize:
		return s.handleInitialize(msg)
	case MethodInitialized:
		s.logger.Info("editor initialized")
		return nil
	case MethodShutdown:
		return s.handleShutdown(msg)
	case MethodExit:
		s.logger.Info("editor exit")
		s.exited.Store(true)
		return nil
	case MethodDidOpen:
		return s.handleDidOpen(msg)
	case MethodDidChange:
		return s.handleDidChange(msg)
	case MethodDidClose:
		return s.handleDidClose(msg)
	case MethodDidChangeActiveEditor:
		return s.handleDidChangeActiveEditor(msg)
	case MethodDidChangeConfiguration:
		return s.handleDidChangeConfiguration(msg)
	case MethodShowPreview:
		return s.handleShowPreview(ctx, msg)
	case MethodLastSQL:
		return s.handleLastSQL(ctx, msg)
	default:
		if msg.ID != nil {
			s.sendResponse(msg.ID, nil, &ResponseError{
				Code:    CodeMethodNotFound,
				Message: "Method not found: " + msg.Method,
			})
		}
		return nil
	}
}

func (s *Server) handleResponse(msg *Message) {
	if msg.Error != nil {
		s.logger.Warn("editor rejected request", "id", string(*msg.ID), "error", msg.Error.Message)
		return
	}
	s.logger.Debug("editor response", "id", string(*msg.ID))
}

// decode unmarshals request params, answering invalid params for requests.
func (s *Server) decode(msg *Message, v any) error {
	if len(msg.Params) == 0 {
		return nil
	}
	if err := json.Unmarshal(msg.Params, v); err != nil {
		if msg.ID != nil {
			s.sendResponse(msg.ID, nil, &ResponseError{Code: CodeInvalidParams, Message: err.Error()})
		}
		return fmt.Errorf("invalid %s params: %w", msg.Method, err)
	}
	return nil
}

// --- Lifecycle handlers ---

func (s *Server) handleInitialize(msg *Message) error {
	var params InitializeParams
	if err := s.decode(msg, &params); err != nil {
		return err
	}

	if params.RootURI != "" {
		if ws, ok := s.state.(workspaceScoped); ok {
			ws.SetWorkspace(preview.DocumentKey(params.RootURI))
		}
		s.logger.Info("workspace root", "uri", params.RootURI)
	}
	if opts := params.InitializationOptions; opts != nil {
		s.setColorTheme(opts.ColorTheme)
	}
	s.initialized.Store(true)

	s.sendResponse(msg.ID, InitializeResult{
		Capabilities: ServerCapabilities{
			TextDocumentSync: &TextDocumentSyncOptions{
				OpenClose: true,
				Change:    TextDocumentSyncKindFull,
			},
		},
		ServerInfo: &ServerInfo{Name: ServerName, Version: s.version},
	}, nil)
	return nil
}

func (s *Server) handleShutdown(msg *Message) error {
	if s.shutdown.Swap(true) {
		s.sendResponse(msg.ID, nil, nil)
		return nil
	}
	if s.onShutdown != nil {
		s.onShutdown()
	}
	s.sendResponse(msg.ID, nil, nil)
	s.logger.Info("host shutdown")
	return nil
}

// --- Document handlers ---

func (s *Server) handleDidOpen(msg *Message) error {
	var params DidOpenTextDocumentParams
	if err := s.decode(msg, &params); err != nil {
		return err
	}

	doc := params.TextDocument
	s.documents.Open(doc.URI, doc.Text, doc.Version)
	s.logger.Debug("opened", "uri", doc.URI)
	s.opened.Fire(doc.URI)
	return nil
}

func (s *Server) handleDidChange(msg *Message) error {
	var params DidChangeTextDocumentParams
	if err := s.decode(msg, &params); err != nil {
		return err
	}
	if len(params.ContentChanges) == 0 {
		return nil
	}

	// Full sync: the last change holds the whole text.
	uri := params.TextDocument.URI
	text := params.ContentChanges[len(params.ContentChanges)-1].Text
	if !s.documents.Update(uri, text, params.TextDocument.Version) {
		s.documents.Open(uri, text, params.TextDocument.Version)
	}
	s.changed.Fire(uri)
	return nil
}

func (s *Server) handleDidClose(msg *Message) error {
	var params DidCloseTextDocumentParams
	if err := s.decode(msg, &params); err != nil {
		return err
	}

	uri := params.TextDocument.URI
	s.documents.Close(uri)
	s.logger.Debug("closed", "uri", uri)
	// Unsaved edits are gone; previews fall back to the file on disk and
	// follow it from now on.
	if s.previewer != nil {
		if p, ok := s.previewer.Lookup(uri); ok {
			s.watchUnopened(p)
		}
	}
	s.changed.Fire(uri)
	return nil
}

func (s *Server) handleDidChangeActiveEditor(msg *Message) error {
	var params ActiveEditorParams
	if err := s.decode(msg, &params); err != nil {
		return err
	}
	if params.URI == "" {
		return nil
	}
	s.active.Fire(params.URI)
	return nil
}

func (s *Server) handleDidChangeConfiguration(msg *Message) error {
	var params DidChangeConfigurationParams
	if err := s.decode(msg, &params); err != nil {
		return err
	}
	if !s.setColorTheme(params.Settings.ColorTheme) {
		return nil
	}
	s.logger.Info("color theme changed", "theme", params.Settings.ColorTheme)
	s.theme.Fire(params.Settings.ColorTheme)
	return nil
}

// --- Preview handlers ---

func (s *Server) handleShowPreview(ctx context.Context, msg *Message) error {
	var params ShowPreviewParams
	if err := s.decode(msg, &params); err != nil {
		return err
	}
	if params.URI == "" {
		s.sendResponse(msg.ID, nil, &ResponseError{Code: CodeInvalidParams, Message: "uri is required"})
		return nil
	}
	if s.previewer == nil {
		s.sendResponse(msg.ID, nil, &ResponseError{Code: CodeInternalError, Message: "previews are not available"})
		return nil
	}

	p, err := s.previewer.Show(ctx, params.URI)
	if err != nil {
		s.sendResponse(msg.ID, nil, &ResponseError{Code: CodeInternalError, Message: err.Error()})
		return nil
	}
	s.watchUnopened(p)

	result := ShowPreviewResult{PanelID: p.ID()}
	if u, ok := p.Surface().(surfaceURL); ok {
		result.URL = u.URL()
	}
	s.sendResponse(msg.ID, result, nil)
	return nil
}

func (s *Server) handleLastSQL(ctx context.Context, msg *Message) error {
	if s.state == nil {
		s.sendResponse(msg.ID, LastSQLResult{}, nil)
		return nil
	}
	sql, err := s.state.Get(ctx, preview.StateKeyLastSQL)
	if err != nil {
		s.sendResponse(msg.ID, nil, &ResponseError{Code: CodeInternalError, Message: err.Error()})
		return fmt.Errorf("failed to read last SQL: %w", err)
	}
	s.sendResponse(msg.ID, LastSQLResult{SQL: sql}, nil)
	return nil
}
