package vfs

import (
	"context"
	"sync"
	"time"
)

// SimpleWatcher is a polling-based watcher portable across OSes and file
// system implementations. It reports a write whenever a watched file's
// modification time moves forward.
type SimpleWatcher struct {
	fs       FileSystem
	interval time.Duration
	evCh     chan Event
	erCh     chan error

	mu    sync.Mutex
	paths map[string]time.Time
	stop  context.CancelFunc
	done  chan struct{}
}

func NewSimpleWatcher(fs FileSystem, interval time.Duration) *SimpleWatcher {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	return &SimpleWatcher{
		fs:       fs,
		interval: interval,
		evCh:     make(chan Event, 64),
		erCh:     make(chan error, 1),
		paths:    make(map[string]time.Time),
	}
}

func (w *SimpleWatcher) Events() <-chan Event { return w.evCh }
func (w *SimpleWatcher) Errors() <-chan error { return w.erCh }

// Add starts watching name from its current modification time.
func (w *SimpleWatcher) Add(name string) error {
	info, err := w.fs.Stat(name)
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.paths[name] = info.ModTime()
	w.mu.Unlock()
	return nil
}

// Start begins polling until ctx is done or Close is called.
func (w *SimpleWatcher) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	w.stop = cancel
	w.done = make(chan struct{})
	go func() {
		defer close(w.done)
		defer close(w.evCh)
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.poll(ctx)
			}
		}
	}()
}

func (w *SimpleWatcher) poll(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for p, last := range w.paths {
		info, err := w.fs.Stat(p)
		if err != nil {
			select {
			case w.erCh <- err:
			default:
			}
			continue
		}
		if !info.ModTime().After(last) {
			continue
		}
		w.paths[p] = info.ModTime()
		select {
		case w.evCh <- Event{Path: p, Op: OpWrite, Time: time.Now()}:
		case <-ctx.Done():
			return
		}
	}
}

func (w *SimpleWatcher) Close() error {
	if w.stop != nil {
		w.stop()
		<-w.done
	}
	return nil
}
