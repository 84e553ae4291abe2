// Package vfs abstracts the file access the tools need: reading program
// files and watching them for changes. The OS implementation backs the CLI;
// the in-memory one backs tests.
package vfs

import (
	"io/fs"
	"path"
	"time"
)

// FileSystem is the read side used by the program loader and watchers.
type FileSystem interface {
	ReadFile(name string) ([]byte, error)
	Stat(name string) (fs.FileInfo, error)
}

// WatchOp indicates a change operation in the filesystem.
type WatchOp uint32

const (
	OpCreate WatchOp = 1 << iota
	OpWrite
	OpRemove
	OpRename
	OpChmod
)

// Event describes a filesystem change event.
type Event struct {
	Path string
	Op   WatchOp
	Time time.Time
}

// Watcher provides a platform-independent file watching API.
type Watcher interface {
	Events() <-chan Event
	Errors() <-chan error
	Add(name string) error
	Close() error
}

// Clean returns the shortest path name equivalent to p by purely lexical processing.
func Clean(p string) string { return path.Clean(p) }
