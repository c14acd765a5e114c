// Package haltwatch implements cooperative session halting: the engine
// watches for a sentinel file (session_root/xtalopt.halt) and signals any
// listener as soon as it appears, so in-flight jobs can finish cleanly
// instead of being killed outright.
package haltwatch

import (
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/xtalopt/engine/internal/enginerr"
	"github.com/xtalopt/engine/internal/logging"
)

const sentinelName = "xtalopt.halt"

// WriteSentinel drops the halt sentinel file into root, requesting a
// cooperative session-wide halt. Any caller with a reason to stop the whole
// session — the HTTP halt endpoint, the CLI halt command, or the scheduler
// acting on a kill_session failure policy — goes through this one path so a
// Watcher only ever has one sentinel to watch for.
func WriteSentinel(root string) error {
	path := filepath.Join(root, sentinelName)
	if err := os.WriteFile(path, []byte("halt\n"), 0644); err != nil {
		return enginerr.Wrap(enginerr.TransportFailure, err, "write halt sentinel").WithOperation("WriteSentinel").WithComponent("haltwatch")
	}
	return nil
}

// Watcher watches a session root for the halt sentinel file and closes
// Halted when it appears.
type Watcher struct {
	Halted chan struct{}

	watcher *fsnotify.Watcher
	log     *logging.Logger
}

// New starts watching root for the halt sentinel. Callers must call Close
// when the session ends.
func New(root string, log *logging.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, enginerr.Wrap(enginerr.TransportFailure, err, "create fsnotify watcher").WithOperation("New").WithComponent("haltwatch")
	}
	if err := fw.Add(root); err != nil {
		fw.Close()
		return nil, enginerr.Wrap(enginerr.TransportFailure, err, "watch session root").WithOperation("New").WithComponent("haltwatch")
	}

	w := &Watcher{Halted: make(chan struct{}), watcher: fw, log: log}
	go w.run(root)
	return w, nil
}

func (w *Watcher) run(root string) {
	sentinel := filepath.Join(root, sentinelName)
	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Name == sentinel && (ev.Op&(fsnotify.Create|fsnotify.Write) != 0) {
				if w.log != nil {
					w.log.Info("halt sentinel detected, beginning cooperative shutdown")
				}
				close(w.Halted)
				return
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			if w.log != nil {
				w.log.WithError(err).Error("haltwatch: fsnotify error")
			}
		}
	}
}

// Close stops the underlying filesystem watch.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
