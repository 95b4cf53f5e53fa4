// Package reload tells connected browsers to refresh when the page they
// were served changes on disk.
package reload

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Editors fire several events per save.
const settle = 100 * time.Millisecond

type Watcher struct {
	fw    *fsnotify.Watcher
	files map[string]struct{}
	log   *zap.Logger
}

// New watches the parent directory of every file so atomic saves
// (write temp, rename over) are still seen.
func New(files []string, log *zap.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	w := &Watcher{fw: fw, files: make(map[string]struct{}), log: log.Named("reload")}
	dirs := make(map[string]struct{})
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			fw.Close()
			return nil, fmt.Errorf("resolve %s: %w", f, err)
		}
		w.files[abs] = struct{}{}
		dirs[filepath.Dir(abs)] = struct{}{}
	}
	for dir := range dirs {
		if err := fw.Add(dir); err != nil {
			fw.Close()
			return nil, fmt.Errorf("watch %s: %w", dir, err)
		}
	}
	return w, nil
}

// Run calls notify once per burst of changes to a watched file until ctx is
// done. It closes the underlying watcher on return.
func (w *Watcher) Run(ctx context.Context, notify func(at time.Time)) error {
	defer w.fw.Close()

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.fw.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if _, watched := w.files[filepath.Clean(ev.Name)]; !watched {
				continue
			}
			w.log.Debug("file changed", zap.String("file", ev.Name), zap.String("op", ev.Op.String()))
			if pending == nil {
				pending = time.After(settle)
			}

		case at := <-pending:
			pending = nil
			w.log.Info("reloading clients")
			notify(at)

		case err, ok := <-w.fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watch error", zap.Error(err))
		}
	}
}
