package preview

import "sync"

// Context keys published to the host.
const (
	ContextPreviewActive     = "sqlpreview.previewActive"
	ContextLastActivePreview = "sqlpreview.lastActivePreview"
)

// StateKeyLastSQL is the workspace state key holding the last compiled SQL.
const StateKeyLastSQL = "sqlpreview.lastSql"

// ContextSetter receives context flag updates.
type ContextSetter interface {
	SetContext(key string, value any)
}

// ContextFlags mirrors whether a preview is active and which document's
// preview was active last. Every change is pushed to the setter.
//
// The flags remember the panel instance that set them, so a disposed panel
// never clears flags owned by its replacement for the same document.
type ContextFlags struct {
	mu     sync.Mutex
	setter ContextSetter
	active bool
	last   string
	owner  string
}

// NewContextFlags creates flags that publish to setter.
func NewContextFlags(setter ContextSetter) *ContextFlags {
	return &ContextFlags{setter: setter}
}

// Activate marks the preview of key, shown by panel owner, as the active one.
func (f *ContextFlags) Activate(key, owner string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active = true
	f.last = key
	f.owner = owner
	f.publish()
}

// Deactivate clears the active flag if owner holds it. The last active
// identifier is kept.
func (f *ContextFlags) Deactivate(owner string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.owner != owner || !f.active {
		return
	}
	f.active = false
	f.publish()
}

// Clear drops both flags if owner was the last active preview.
func (f *ContextFlags) Clear(owner string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.last == "" || f.owner != owner {
		return
	}
	f.active = false
	f.last = ""
	f.owner = ""
	f.publish()
}

// Sync applies the view state of owner's panel for key.
func (f *ContextFlags) Sync(key, owner string, active bool) {
	if active {
		f.Activate(key, owner)
		return
	}
	f.Deactivate(owner)
}

// Active reports whether a preview is active.
func (f *ContextFlags) Active() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

// LastActive returns the identifier of the last active preview, or "".
func (f *ContextFlags) LastActive() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

// publish must be called with f.mu held.
func (f *ContextFlags) publish() {
	if f.setter == nil {
		return
	}
	f.setter.SetContext(ContextPreviewActive, f.active)
	if f.last == "" {
		f.setter.SetContext(ContextLastActivePreview, nil)
	} else {
		f.setter.SetContext(ContextLastActivePreview, f.last)
	}
}
