// Package preview keeps one live SQL preview panel per source document.
//
// A Manager owns the process-wide Registry and ContextFlags. Each Panel
// mirrors one document: host edits, editor switches and theme changes arm a
// debounced render cycle that compiles the current text, highlights the SQL
// and posts the result to the panel's rendered Surface. A failed compile keeps
// showing the last good HTML next to the new error.
package preview
