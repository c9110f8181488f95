// Package watch flags corpus changes on the local filesystem.
package watch

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher records whether any accepted file under a directory tree was
// created, written, removed or renamed. It does not queue individual events;
// consumers poll TakeChanged.
type Watcher struct {
	fsw     *fsnotify.Watcher
	accepts func(name string) bool
	log     *zap.Logger
	changed atomic.Bool
}

// New creates a Watcher. accepts filters file names; nil accepts all.
func New(accepts func(name string) bool, log *zap.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if accepts == nil {
		accepts = func(string) bool { return true }
	}
	return &Watcher{fsw: fsw, accepts: accepts, log: log}, nil
}

// Add watches root and every non-hidden directory below it.
func (w *Watcher) Add(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && isHidden(d.Name()) {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

// Run consumes events until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn("file watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if !isHidden(filepath.Base(event.Name)) {
				if err := w.Add(event.Name); err != nil {
					w.log.Warn("failed to watch new directory", zap.String("path", event.Name), zap.Error(err))
				}
				w.changed.Store(true)
			}
			return
		}
	}

	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}
	if !w.accepts(event.Name) {
		return
	}

	w.log.Debug("corpus changed", zap.String("path", event.Name), zap.String("op", event.Op.String()))
	w.changed.Store(true)
}

// TakeChanged reports whether a change was seen since the last call and
// resets the flag.
func (w *Watcher) TakeChanged() bool {
	return w.changed.Swap(false)
}

// MarkChanged forces the next TakeChanged to return true.
func (w *Watcher) MarkChanged() {
	w.changed.Store(true)
}

func (w *Watcher) Close() error {
	return w.fsw.Close()
}

func isHidden(name string) bool {
	return len(name) > 1 && name[0] == '.'
}
