// Completion: 100% - polling watcher for watch mode
//go:build windows
// +build windows

package main

import (
	"os"
	"sync"
	"time"
)

const watchDebounce = 300 * time.Millisecond

// FileWatcher reports writes to a small fixed set of files. Windows
// gets a mtime poller, which is enough for two watched files.
type FileWatcher struct {
	mu       sync.Mutex
	watches  map[string]time.Time
	pending  map[string]*time.Timer
	onChange func(string)
	stop     chan struct{}
}

func NewFileWatcher(onChange func(string)) (*FileWatcher, error) {
	return &FileWatcher{
		watches:  make(map[string]time.Time),
		pending:  make(map[string]*time.Timer),
		onChange: onChange,
		stop:     make(chan struct{}),
	}, nil
}

func (fw *FileWatcher) AddFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	fw.mu.Lock()
	fw.watches[path] = info.ModTime()
	fw.mu.Unlock()
	return nil
}

// Watch blocks, delivering debounced change callbacks
func (fw *FileWatcher) Watch() {
	ticker := time.NewTicker(watchDebounce)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			fw.poll()
		case <-fw.stop:
			return
		}
	}
}

func (fw *FileWatcher) poll() {
	fw.mu.Lock()
	paths := make([]string, 0, len(fw.watches))
	for p := range fw.watches {
		paths = append(paths, p)
	}
	fw.mu.Unlock()

	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			continue
		}
		fw.mu.Lock()
		last := fw.watches[p]
		changed := info.ModTime().After(last)
		fw.watches[p] = info.ModTime()
		fw.mu.Unlock()
		if changed {
			fw.trigger(p)
		}
	}
}

func (fw *FileWatcher) trigger(path string) {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	if t, ok := fw.pending[path]; ok {
		t.Stop()
	}
	fw.pending[path] = time.AfterFunc(watchDebounce, func() {
		fw.onChange(path)
		fw.mu.Lock()
		delete(fw.pending, path)
		fw.mu.Unlock()
	})
}

func (fw *FileWatcher) Close() error {
	close(fw.stop)
	return nil
}
