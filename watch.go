// Completion: 100% - Watch mode: rebuild when the module or profile changes
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// runWatch rebuilds on every change to the IL module and, when the
// profile comes from a file, the machine profile. A failed build keeps
// the previous output and the loop alive.
func runWatch(opts *buildOptions) error {
	var mu sync.Mutex
	rebuild := func(reason string) {
		mu.Lock()
		defer mu.Unlock()
		start := time.Now()
		fmt.Fprintf(os.Stderr, "%s, rebuilding %s\n", reason, opts.input)
		if code := compileOnce(opts); code == 0 {
			fmt.Fprintf(os.Stderr, "done in %v\n", time.Since(start).Round(time.Millisecond))
		}
	}

	watcher, err := NewFileWatcher(func(path string) {
		rebuild(filepath.Base(path) + " changed")
	})
	if err != nil {
		return fmt.Errorf("file watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.AddFile(opts.input); err != nil {
		return err
	}
	if strings.HasSuffix(opts.machine, ".toml") {
		if err := watcher.AddFile(opts.machine); err != nil {
			return err
		}
	}

	rebuild("initial build")
	watcher.Watch()
	return nil
}
