package watch

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultSkipDirs are never watched.
var DefaultSkipDirs = []string{".git", "node_modules", "bower_components"}

// Watcher reports file changes under a project root as project-relative
// paths. Directories created after start are picked up.
type Watcher struct {
	root string
	skip map[string]struct{}
	fsw  *fsnotify.Watcher
	log  *zap.Logger
}

// NewWatcher watches root recursively. skip holds directory names (at any
// depth) or root-relative directories to leave out.
func NewWatcher(root string, skip []string, log *zap.Logger) (*Watcher, error) {
	if log == nil {
		log = zap.NewNop()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{root: filepath.Clean(root), skip: make(map[string]struct{}), fsw: fsw, log: log}
	for _, s := range skip {
		w.skip[filepath.ToSlash(filepath.Clean(s))] = struct{}{}
	}
	if err := w.addTree(w.root); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) skipped(dir string) bool {
	rel, err := filepath.Rel(w.root, dir)
	if err != nil || rel == "." {
		return false
	}
	if _, ok := w.skip[filepath.ToSlash(rel)]; ok {
		return true
	}
	_, ok := w.skip[filepath.Base(dir)]
	return ok
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if w.skipped(p) {
			return filepath.SkipDir
		}
		return w.fsw.Add(p)
	})
}

// Run delivers changes to notify until ctx is done, then closes the watcher.
func (w *Watcher) Run(ctx context.Context, notify func(rel string)) error {
	defer w.fsw.Close()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ev, notify)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watch error", zap.Error(err))
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event, notify func(string)) {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return
	}
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if w.skipped(ev.Name) {
				return
			}
			if err := w.addTree(ev.Name); err != nil {
				w.log.Warn("watch new directory", zap.String("path", ev.Name), zap.Error(err))
			}
			return
		}
	}
	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil {
		return
	}
	notify(filepath.ToSlash(rel))
}

// Serve runs w and c together until ctx is done.
func Serve(ctx context.Context, w *Watcher, c *Controller) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.Run(ctx) })
	g.Go(func() error {
		return w.Run(ctx, func(rel string) { c.Notify(rel) })
	})
	return g.Wait()
}
