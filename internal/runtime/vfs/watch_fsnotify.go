package vfs

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FSNotifyWatcher watches files through OS notifications. It subscribes to
// each file's parent directory and filters events by path, so a file that is
// replaced by rename (as most editors save) stays watched.
type FSNotifyWatcher struct {
	w   *fsnotify.Watcher
	evC chan Event
	erC chan error

	mu    sync.Mutex
	files map[string]bool
	dirs  map[string]bool
}

// NewFSWatcher creates a new FSNotifyWatcher.
func NewFSWatcher() (*FSNotifyWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	fw := &FSNotifyWatcher{
		w:     w,
		evC:   make(chan Event, 128),
		erC:   make(chan error, 1),
		files: make(map[string]bool),
		dirs:  make(map[string]bool),
	}
	go fw.loop()
	return fw, nil
}

func (fw *FSNotifyWatcher) watched(name string) bool {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return fw.files[filepath.Clean(name)]
}

func (fw *FSNotifyWatcher) loop() {
	defer close(fw.evC)
	for {
		select {
		case ev, ok := <-fw.w.Events:
			if !ok {
				return
			}
			if !fw.watched(ev.Name) {
				continue
			}
			fw.evC <- Event{Path: filepath.Clean(ev.Name), Op: convertOp(ev.Op), Time: time.Now()}
		case err, ok := <-fw.w.Errors:
			if !ok {
				return
			}
			select {
			case fw.erC <- err:
			default:
			}
		}
	}
}

func convertOp(o fsnotify.Op) WatchOp {
	var op WatchOp
	if o.Has(fsnotify.Create) {
		op |= OpCreate
	}
	if o.Has(fsnotify.Write) {
		op |= OpWrite
	}
	if o.Has(fsnotify.Remove) {
		op |= OpRemove
	}
	if o.Has(fsnotify.Rename) {
		op |= OpRename
	}
	if o.Has(fsnotify.Chmod) {
		op |= OpChmod
	}
	return op
}

func (fw *FSNotifyWatcher) Events() <-chan Event { return fw.evC }
func (fw *FSNotifyWatcher) Errors() <-chan error { return fw.erC }
func (fw *FSNotifyWatcher) Close() error         { return fw.w.Close() }

// Add starts watching an existing file.
func (fw *FSNotifyWatcher) Add(name string) error {
	name = filepath.Clean(name)
	if _, err := os.Stat(name); err != nil {
		return err
	}
	dir := filepath.Dir(name)

	fw.mu.Lock()
	defer fw.mu.Unlock()
	if !fw.dirs[dir] {
		if err := fw.w.Add(dir); err != nil {
			return err
		}
		fw.dirs[dir] = true
	}
	fw.files[name] = true
	return nil
}

// Watch watches name for changes, preferring OS notifications and falling
// back to polling through fsys when they are unavailable.
func Watch(ctx context.Context, fsys FileSystem, name string, interval time.Duration) (Watcher, error) {
	if _, ok := fsys.(*OSFS); ok {
		if fw, err := NewFSWatcher(); err == nil {
			if err := fw.Add(name); err == nil {
				return fw, nil
			}
			_ = fw.Close()
		}
	}
	sw := NewSimpleWatcher(fsys, interval)
	if err := sw.Add(name); err != nil {
		return nil, err
	}
	sw.Start(ctx)
	return sw, nil
}
