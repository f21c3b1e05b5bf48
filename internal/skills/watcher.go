package skills

import (
	"github.com/fsnotify/fsnotify"

	"qoze/internal/logging"
)

// Watcher invalidates the loader's discovery cache when a skill
// directory changes. Running sessions are unaffected; only sessions
// created after the change see the new skill set.
type Watcher struct {
	fs     *fsnotify.Watcher
	loader *Loader
	done   chan struct{}
}

// NewWatcher watches the skill tiers for the given working directory.
// Tier directories that do not exist yet are skipped; create them and
// restart to pick them up.
func NewWatcher(loader *Loader, workDir string) (*Watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	watched := 0
	for _, pair := range loader.searchPaths(workDir) {
		if err := fs.Add(pair[0]); err == nil {
			watched++
		}
	}
	logging.Skills("watching %d skill directories", watched)

	w := &Watcher{fs: fs, loader: loader, done: make(chan struct{})}
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	for {
		select {
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				logging.SkillsDebug("skill change: %s %s", event.Op, event.Name)
				w.loader.Invalidate()
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			logging.Skills("watcher error: %v", err)
		case <-w.done:
			return
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fs.Close()
}
