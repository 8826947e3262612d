package rules

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultReloadDebounce = 500 * time.Millisecond

// Watcher hot-reloads the user rule file. It watches the parent directory
// because editors often replace the file by rename, which drops a watch
// placed on the file itself.
type Watcher struct {
	engine   *Engine
	fs       *fsnotify.Watcher
	file     string
	debounce time.Duration

	done chan struct{}
	wg   sync.WaitGroup

	mu         sync.Mutex
	lastReload time.Time
}

// NewWatcher creates a watcher for the engine's user rule file.
func NewWatcher(engine *Engine) (*Watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		engine:   engine,
		fs:       fs,
		debounce: defaultReloadDebounce,
		done:     make(chan struct{}),
	}, nil
}

// Start begins watching. Without a configured user file it does nothing.
func (w *Watcher) Start() error {
	file := w.engine.GetLoader().UserFile()
	if file == "" {
		log.Warn("No user rule file configured, watcher not started")
		return nil
	}
	abs, err := filepath.Abs(file)
	if err != nil {
		return err
	}
	w.file = abs

	if err := w.fs.Add(filepath.Dir(abs)); err != nil {
		log.Warn("Cannot watch %s (create the directory to enable hot reload): %v", filepath.Dir(abs), err)
		return nil
	}

	w.wg.Add(1)
	go w.loop()
	log.Info("Watching rule file: %s", abs)
	return nil
}

// Stop ends the watch loop and releases the fsnotify handle.
func (w *Watcher) Stop() error {
	close(w.done)
	w.wg.Wait()
	return w.fs.Close()
}

// loop owns the debounce timer; a burst of events yields one reload.
func (w *Watcher) loop() {
	defer w.wg.Done()

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if !w.relevant(ev) {
				continue
			}
			log.Debug("Rule file changed (%s)", ev.Op)
			timer.Reset(w.debounce)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			log.Warn("Watcher error: %v", err)

		case <-timer.C:
			w.reload()

		case <-w.done:
			return
		}
	}
}

func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if filepath.Clean(ev.Name) != w.file {
		return false
	}
	return ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0
}

func (w *Watcher) reload() {
	w.mu.Lock()
	w.lastReload = time.Now()
	w.mu.Unlock()

	log.Info("Hot reloading user rules from %s", w.file)
	if err := w.engine.ReloadUserRules(); err != nil {
		// The previous user rules stay active.
		log.Error("Rejected rule file: %v", err)
	}
}

// LastReload returns when the watcher last reloaded the rules.
func (w *Watcher) LastReload() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastReload
}
