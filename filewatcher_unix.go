// Completion: 100% - inotify watcher for watch mode
//go:build linux
// +build linux

package main

import (
	"fmt"
	"os"
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

const watchDebounce = 300 * time.Millisecond

// FileWatcher reports writes to a small fixed set of files. Editors
// that replace instead of rewrite are handled by re-adding the watch
// when the old inode goes away.
type FileWatcher struct {
	fd       int
	mu       sync.Mutex
	watches  map[int]string
	pending  map[string]*time.Timer
	onChange func(string)
}

func NewFileWatcher(onChange func(string)) (*FileWatcher, error) {
	fd, err := unix.InotifyInit1(unix.IN_NONBLOCK | unix.IN_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("inotify_init: %w", err)
	}
	return &FileWatcher{
		fd:       fd,
		watches:  make(map[int]string),
		pending:  make(map[string]*time.Timer),
		onChange: onChange,
	}, nil
}

func (fw *FileWatcher) AddFile(path string) error {
	wd, err := unix.InotifyAddWatch(fw.fd, path,
		unix.IN_MODIFY|unix.IN_CLOSE_WRITE|unix.IN_MOVE_SELF|unix.IN_DELETE_SELF)
	if err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}
	fw.mu.Lock()
	fw.watches[wd] = path
	fw.mu.Unlock()
	return nil
}

// Watch blocks, delivering debounced change callbacks. It only returns
// when the inotify descriptor is closed.
func (fw *FileWatcher) Watch() {
	buf := make([]byte, 16*(unix.SizeofInotifyEvent+unix.NAME_MAX+1))
	for {
		n, err := unix.Read(fw.fd, buf)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				time.Sleep(100 * time.Millisecond)
				continue
			}
			if err == unix.EBADF {
				return
			}
			if VerboseMode {
				fmt.Fprintf(os.Stderr, "inotify read: %v\n", err)
			}
			continue
		}
		for off := 0; off < n; {
			ev := (*unix.InotifyEvent)(unsafe.Pointer(&buf[off]))
			off += unix.SizeofInotifyEvent + int(ev.Len)

			fw.mu.Lock()
			path := fw.watches[int(ev.Wd)]
			fw.mu.Unlock()
			if path == "" {
				continue
			}
			if ev.Mask&(unix.IN_MOVE_SELF|unix.IN_DELETE_SELF) != 0 {
				// Replaced by the editor. Rearm on the new inode.
				fw.mu.Lock()
				delete(fw.watches, int(ev.Wd))
				fw.mu.Unlock()
				go fw.rearm(path)
				continue
			}
			if ev.Mask&(unix.IN_MODIFY|unix.IN_CLOSE_WRITE) != 0 {
				fw.trigger(path)
			}
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
	return unix.Close(fw.fd)
}
