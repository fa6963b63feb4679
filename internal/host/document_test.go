package host

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentStore_OpenGetClose(t *testing.T) {
	store := NewDocumentStore()

	uri := "file:///work/query.prql"
	store.Open(uri, "from employees", 1)

	doc, ok := store.Get(uri)
	require.True(t, ok)
	assert.Equal(t, Document{URI: uri, Content: "from employees", Version: 1}, doc)

	// Spelling variants resolve to the same document.
	_, ok = store.Get("FILE:///work/./query.prql")
	assert.True(t, ok)

	store.Close("file:///work/sub/../query.prql")
	_, ok = store.Get(uri)
	assert.False(t, ok)
}

func TestDocumentStore_Update(t *testing.T) {
	store := NewDocumentStore()
	uri := "file:///work/query.prql"

	assert.False(t, store.Update(uri, "ignored", 1), "not open")

	store.Open(uri, "from a", 1)
	assert.True(t, store.Update(uri, "from b", 3))

	doc, _ := store.Get(uri)
	assert.Equal(t, "from b", doc.Content)
	assert.Equal(t, 3, doc.Version)

	// Out-of-order versions are dropped.
	assert.True(t, store.Update(uri, "from stale", 2))
	doc, _ = store.Get(uri)
	assert.Equal(t, "from b", doc.Content)
}

func TestURIToPath(t *testing.T) {
	tests := []struct {
		name    string
		uri     string
		want    string
		wantErr bool
	}{
		{name: "file", uri: "file:///work/query.prql", want: filepath.FromSlash("/work/query.prql")},
		{name: "escaped", uri: "file:///work/my%20query.prql", want: filepath.FromSlash("/work/my query.prql")},
		{name: "drive", uri: "file:///C:/work/q.prql", want: filepath.FromSlash("C:/work/q.prql")},
		{name: "plain path", uri: "/work/query.prql", want: "/work/query.prql"},
		{name: "untitled", uri: "untitled:Untitled-1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := URIToPath(tt.uri)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPathToURI(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "my query.prql")

	uri := PathToURI(path)
	assert.Contains(t, uri, "file:///")
	assert.Contains(t, uri, "my%20query.prql")

	back, err := URIToPath(uri)
	require.NoError(t, err)
	assert.Equal(t, path, back)

	assert.Equal(t, "file:///x", PathToURI("file:///x"))
}
