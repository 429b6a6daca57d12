package filewatch

import (
	"os"
	"path/filepath"
	"time"
)

// sweepStaleAfter is how stable (by mtime) a file must be before the
// reconciliation sweep will process it even without having seen a
// matching fsnotify event sequence.
const sweepStaleAfter = settleDelay * 2

// sweep re-scans every watched from-glider directory for eligible files
// that are not currently tracked by a settle timer, covering the case
// where a Create or Write event was dropped by the OS and so no timer
// was ever started for that file. Cheap and a no-op when nothing is
// pending: it only acts on files whose mtime is already older than
// sweepStaleAfter.
func (p *Pipeline) sweep() {
	p.mutex.Lock()
	dirs := make([]string, 0, len(p.gliders))
	for _, dir := range p.gliders {
		dirs = append(dirs, dir)
	}
	p.mutex.Unlock()

	now := time.Now()
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			path := filepath.Join(dir, e.Name())
			if !eligible(path) {
				continue
			}
			if p.isPending(path) || p.isProcessed(path) {
				continue
			}
			info, err := e.Info()
			if err != nil {
				continue
			}
			if now.Sub(info.ModTime()) < sweepStaleAfter {
				continue
			}
			p.Log.Warn("reconciliation sweep found an untracked eligible file", "path", path)
			p.process(path)
		}
	}
}

func (p *Pipeline) isPending(path string) bool {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	_, ok := p.pending[path]
	return ok
}

func (p *Pipeline) isProcessed(path string) bool {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.processed[path]
}
