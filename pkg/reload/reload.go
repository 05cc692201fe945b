// Package reload watches template roots and resets parsed templates when
// files change.
package reload

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/kart-io/tmplhub/pkg/logger"
)

// Resetter drops cached templates. Buffet and the globals loaders implement it.
type Resetter interface {
	Reset()
}

// ResetFunc adapts a function to Resetter.
type ResetFunc func()

// Reset implements Resetter.
func (f ResetFunc) Reset() { f() }

// EventType is the kind of change that triggered a reset.
type EventType string

const (
	EventCreated  EventType = "created"
	EventModified EventType = "modified"
	EventDeleted  EventType = "deleted"
)

// Event describes one file change.
type Event struct {
	Type      EventType
	FilePath  string
	Timestamp time.Time
}

// Config configures a HotReloader.
type Config struct {
	WatchPaths []string
	// FileExtensions limits events to these extensions. Empty watches all files.
	FileExtensions []string
	// Debounce collapses bursts of events into one reset.
	Debounce       time.Duration
	RecursiveWatch bool
	IgnorePatterns []string
	// OnReload runs after each reset with the events it covered.
	OnReload func([]Event)
}

// DefaultConfig returns the default configuration for paths.
func DefaultConfig(paths ...string) Config {
	return Config{
		WatchPaths:     paths,
		Debounce:       100 * time.Millisecond,
		RecursiveWatch: true,
		IgnorePatterns: []string{".git", ".tmp", ".swp", ".DS_Store", "~"},
	}
}

// HotReloader resets its targets whenever a watched template changes.
type HotReloader struct {
	targets []Resetter
	watcher *fsnotify.Watcher
	config  Config
	logger  logger.Logger

	mu      sync.Mutex
	pending []Event
	timer   *time.Timer
	resets  int

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New starts watching cfg.WatchPaths. Missing paths are skipped with a warning.
func New(cfg Config, log logger.Logger, targets ...Resetter) (*HotReloader, error) {
	if cfg.Debounce <= 0 {
		cfg.Debounce = 100 * time.Millisecond
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	hr := &HotReloader{
		targets: targets,
		watcher: watcher,
		config:  cfg,
		logger:  logger.OrDiscard(log),
		stopCh:  make(chan struct{}),
	}

	for _, path := range cfg.WatchPaths {
		if _, err := os.Stat(path); err != nil {
			hr.logger.Warn("Template root not watched", "path", path, "error", err)
			continue
		}
		if err := hr.addWatchPath(path); err != nil {
			_ = watcher.Close()
			return nil, fmt.Errorf("failed to watch path %s: %w", path, err)
		}
	}

	hr.wg.Add(1)
	go hr.processEvents()

	hr.logger.Info("Hot reloader initialized", "watch_paths", len(cfg.WatchPaths), "debounce", cfg.Debounce)
	return hr, nil
}

func (hr *HotReloader) addWatchPath(path string) error {
	if err := hr.watcher.Add(path); err != nil {
		return err
	}
	if !hr.config.RecursiveWatch {
		return nil
	}
	return filepath.WalkDir(path, func(walkPath string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() && walkPath != path {
			if hr.shouldIgnore(d.Name()) {
				return filepath.SkipDir
			}
			if addErr := hr.watcher.Add(walkPath); addErr != nil {
				hr.logger.Warn("Failed to add subdirectory to watcher", "path", walkPath, "error", addErr)
			}
		}
		return nil
	})
}

func (hr *HotReloader) shouldIgnore(name string) bool {
	for _, pattern := range hr.config.IgnorePatterns {
		if strings.Contains(name, pattern) {
			return true
		}
	}
	return false
}

func (hr *HotReloader) shouldHandle(path string) bool {
	if hr.shouldIgnore(filepath.Base(path)) {
		return false
	}
	if len(hr.config.FileExtensions) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, allowed := range hr.config.FileExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

func (hr *HotReloader) processEvents() {
	defer hr.wg.Done()

	for {
		select {
		case event, ok := <-hr.watcher.Events:
			if !ok {
				return
			}
			hr.handle(event)

		case err, ok := <-hr.watcher.Errors:
			if !ok {
				return
			}
			hr.logger.Error("File watcher error", "error", err)

		case <-hr.stopCh:
			return
		}
	}
}

func (hr *HotReloader) handle(event fsnotify.Event) {
	if event.Has(fsnotify.Create) && hr.config.RecursiveWatch {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() && !hr.shouldIgnore(info.Name()) {
			if err := hr.addWatchPath(event.Name); err != nil {
				hr.logger.Warn("Failed to watch new directory", "path", event.Name, "error", err)
			}
			return
		}
	}
	if !hr.shouldHandle(event.Name) {
		return
	}

	var typ EventType
	switch {
	case event.Has(fsnotify.Create):
		typ = EventCreated
	case event.Has(fsnotify.Write):
		typ = EventModified
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		typ = EventDeleted
	default:
		return
	}
	hr.logger.Debug("File system event", "path", event.Name, "type", typ)

	hr.mu.Lock()
	defer hr.mu.Unlock()
	hr.pending = append(hr.pending, Event{Type: typ, FilePath: event.Name, Timestamp: time.Now()})
	if hr.timer != nil {
		hr.timer.Stop()
	}
	hr.timer = time.AfterFunc(hr.config.Debounce, hr.flush)
}

func (hr *HotReloader) flush() {
	hr.mu.Lock()
	events := hr.pending
	hr.pending = nil
	hr.timer = nil
	if len(events) > 0 {
		hr.resets++
	}
	hr.mu.Unlock()

	if len(events) == 0 {
		return
	}
	for _, t := range hr.targets {
		t.Reset()
	}
	hr.logger.Info("Templates reloaded", "changes", len(events))
	if hr.config.OnReload != nil {
		hr.config.OnReload(events)
	}
}

// Resets returns how many resets have run.
func (hr *HotReloader) Resets() int {
	hr.mu.Lock()
	defer hr.mu.Unlock()
	return hr.resets
}

// Stop stops watching. Pending changes are dropped.
func (hr *HotReloader) Stop() error {
	var err error
	hr.stopOnce.Do(func() {
		close(hr.stopCh)
		hr.wg.Wait()

		hr.mu.Lock()
		if hr.timer != nil {
			hr.timer.Stop()
		}
		hr.pending = nil
		hr.mu.Unlock()

		err = hr.watcher.Close()
		if err != nil {
			hr.logger.Error("Failed to close file watcher", "error", err)
		}
		hr.logger.Info("Hot reloader stopped")
	})
	return err
}
