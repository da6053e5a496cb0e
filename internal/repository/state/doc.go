// Package state implements persistence for the seen set.
//
// The FileRepository stores it as JSON on disk with atomic replace semantics
// and exposes a Repository interface that the watcher service depends on.
package state
