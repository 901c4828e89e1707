// Completion: 100% - kqueue watcher for watch mode
//go:build darwin
// +build darwin

package main

import (
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

const watchDebounce = 300 * time.Millisecond

// FileWatcher reports writes to a small fixed set of files
type FileWatcher struct {
	kq       int
	mu       sync.Mutex
	watches  map[int]string
	pending  map[string]*time.Timer
	onChange func(string)
}

func NewFileWatcher(onChange func(string)) (*FileWatcher, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, fmt.Errorf("kqueue: %w", err)
	}
	return &FileWatcher{
		kq:       kq,
		watches:  make(map[int]string),
		pending:  make(map[string]*time.Timer),
		onChange: onChange,
	}, nil
}

func (fw *FileWatcher) AddFile(path string) error {
	fd, err := unix.Open(path, unix.O_RDONLY, 0)
	if err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}
	ev := unix.Kevent_t{
		Ident:  uint64(fd),
		Filter: unix.EVFILT_VNODE,
		Flags:  unix.EV_ADD | unix.EV_CLEAR,
		Fflags: unix.NOTE_WRITE | unix.NOTE_RENAME | unix.NOTE_DELETE,
	}
	if _, err := unix.Kevent(fw.kq, []unix.Kevent_t{ev}, nil, nil); err != nil {
		unix.Close(fd)
		return fmt.Errorf("kevent %s: %w", path, err)
	}
	fw.mu.Lock()
	fw.watches[fd] = path
	fw.mu.Unlock()
	return nil
}

// Watch blocks, delivering debounced change callbacks
func (fw *FileWatcher) Watch() {
	events := make([]unix.Kevent_t, 8)
	for {
		n, err := unix.Kevent(fw.kq, nil, events, nil)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			if err == unix.EBADF {
				return
			}
			if VerboseMode {
				fmt.Fprintf(os.Stderr, "kevent: %v\n", err)
			}
			time.Sleep(100 * time.Millisecond)
			continue
		}
		for i := 0; i < n; i++ {
			fd := int(events[i].Ident)
			fw.mu.Lock()
			path := fw.watches[fd]
			fw.mu.Unlock()
			if path == "" {
				continue
			}
			if events[i].Fflags&(unix.NOTE_RENAME|unix.NOTE_DELETE) != 0 {
				// Replaced by the editor. Rearm on the new inode.
				fw.mu.Lock()
				delete(fw.watches, fd)
				fw.mu.Unlock()
				unix.Close(fd)
				go fw.rearm(path)
				continue
			}
			fw.trigger(path)
		}
	}
}

func (fw *FileWatcher) rearm(path string) {
	for i := 0; i < 10; i++ {
		time.Sleep(watchDebounce)
		if err := fw.AddFile(path); err == nil {
			fw.trigger(path)
			return
		}
	}
	if VerboseMode {
		fmt.Fprintf(os.Stderr, "lost watch on %s\n", path)
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
	fw.mu.Lock()
	defer fw.mu.Unlock()
	for fd := range fw.watches {
		unix.Close(fd)
	}
	return unix.Close(fw.kq)
}
