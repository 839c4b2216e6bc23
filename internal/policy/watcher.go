package policy

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"mos/internal/logging"

	"github.com/fsnotify/fsnotify"
)

// Watcher hot-reloads a rules override file into the kernel. Rapid
// saves are debounced; a malformed file logs and keeps the previous
// rules.
type Watcher struct {
	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	kernel      *Kernel
	rulesPath   string
	debounceMap map[string]time.Time
	debounceDur time.Duration
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool
}

// NewWatcher creates a watcher for the given rules file.
func NewWatcher(rulesPath string, kernel *Kernel) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		watcher:     fsw,
		kernel:      kernel,
		rulesPath:   rulesPath,
		debounceMap: make(map[string]time.Time),
		debounceDur: 500 * time.Millisecond,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start loads the file if it exists and begins watching its directory.
// Non-blocking.
func (w *Watcher) Start() error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.loadRules(); err != nil {
		logging.PolicyDebug("initial rules load skipped: %v", err)
	}

	// Watch the directory so editors that replace the file still
	// trigger events.
	dir := filepath.Dir(w.rulesPath)
	if err := w.watcher.Add(dir); err != nil {
		logging.Get(logging.CategoryPolicy).Warn("watch %s failed: %v", dir, err)
	} else {
		logging.Policy("watching rules at %s", w.rulesPath)
	}

	go w.run()
	return nil
}

// Stop stops the watcher and waits for the loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
	w.watcher.Close()
}

func (w *Watcher) run() {
	defer close(w.doneCh)
	for {
		select {
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.rulesPath) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if w.debounced(event.Name) {
				continue
			}
			if err := w.loadRules(); err != nil {
				logging.PolicyError("rules reload failed, keeping previous rules: %v", err)
				continue
			}
			logging.Policy("rules reloaded from %s", w.rulesPath)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.PolicyError("watcher error: %v", err)
		}
	}
}

func (w *Watcher) debounced(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := time.Now()
	if last, ok := w.debounceMap[path]; ok && now.Sub(last) < w.debounceDur {
		return true
	}
	w.debounceMap[path] = now
	return false
}

// loadRules reads and validates the override file before swapping it
// in. Validation runs on a scratch kernel so a bad file cannot poison
// the live one.
func (w *Watcher) loadRules() error {
	data, err := os.ReadFile(w.rulesPath)
	if err != nil {
		return err
	}
	rules := string(data)
	if strings.TrimSpace(rules) == "" {
		rules = defaultRules
	}

	scratch := NewKernel()
	scratch.SetRules(rules)
	if err := scratch.Rebuild(); err != nil {
		return err
	}

	w.kernel.SetRules(rules)
	return nil
}
