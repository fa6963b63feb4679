package host

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"sync"

	"github.com/leapstack-labs/sqlpreview/internal/preview"
)

// Document is a text document open in the editor.
type Document struct {
	URI     string
	Content string
	Version int
}

// DocumentStore holds the open documents, keyed by preview.DocumentKey so
// spelling variants of one URI share an entry.
type DocumentStore struct {
	mu        sync.RWMutex
	documents map[string]*Document
}

// NewDocumentStore creates a new document store.
func NewDocumentStore() *DocumentStore {
	return &DocumentStore{
		documents: make(map[string]*Document),
	}
}

// Open adds or replaces a document.
func (s *DocumentStore) Open(uri, content string, version int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.documents[preview.DocumentKey(uri)] = &Document{
		URI:     uri,
		Content: content,
		Version: version,
	}
}

// Update replaces the content of an open document. Stale versions are
// ignored. It reports whether the document was open.
func (s *DocumentStore) Update(uri, content string, version int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.documents[preview.DocumentKey(uri)]
	if !ok {
		return false
	}
	if version != 0 && version < doc.Version {
		return true
	}
	doc.Content = content
	doc.Version = version
	return true
}

// Close removes a document.
func (s *DocumentStore) Close(uri string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.documents, preview.DocumentKey(uri))
}

// Get returns a copy of the open document for uri.
func (s *DocumentStore) Get(uri string) (Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.documents[preview.DocumentKey(uri)]
	if !ok {
		return Document{}, false
	}
	return *doc, true
}

// URIToPath converts a file:// URI to a filesystem path. Input without a
// scheme is returned as is.
func URIToPath(uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("invalid document URI %q: %w", uri, err)
	}
	switch {
	case u.Scheme == "" || len(u.Scheme) == 1:
		return uri, nil
	case !strings.EqualFold(u.Scheme, "file"):
		return "", fmt.Errorf("unsupported document scheme %q", u.Scheme)
	}

	p := u.Path
	// Windows drive paths arrive as /C:/dir/file.
	if len(p) >= 3 && p[0] == '/' && p[2] == ':' {
		p = p[1:]
	}
	return filepath.FromSlash(p), nil
}

// PathToURI converts a filesystem path to a file:// URI.
func PathToURI(path string) string {
	if strings.HasPrefix(path, "file://") {
		return path
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	p := filepath.ToSlash(path)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return (&url.URL{Scheme: "file", Path: p}).String()
}
