package groupcache

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch starts an fsnotify watch on the directory containing the cache's
// group file and triggers a Refresh whenever that file is written or
// recreated (editors and package managers often replace /etc/group rather
// than write it in place). It returns the underlying watcher so the caller
// can Close it during shutdown; stop is also respected if done is closed
// first.
func (c *Cache) Watch(done <-chan struct{}) (*fsnotify.Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(c.groupFile)
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, err
	}

	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(c.groupFile) {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					if err := c.Refresh(); err != nil {
						c.log.Warnf("group cache: refresh after fs event failed: %v", err)
					}
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				c.log.Warnf("group cache: watcher error: %v", err)
			case <-done:
				return
			}
		}
	}()

	return w, nil
}
