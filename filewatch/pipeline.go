// Package filewatch watches each glider's from-glider directory for
// newly arrived compressed telemetry files, waits for each to finish
// copying, decompresses it, and (for data/log files, not cache files)
// hands the result to the renamer. Dynamic glider subdirectories under
// root are picked up as they appear. Grounded on the settle-timer
// fallback this corpus's fsnotify dependency requires (no portable
// CLOSE_WRITE event), with a robfig/cron reconciliation sweep adopted
// from the teacher's rtcmlogger daily-rollover job.
package filewatch

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron"

	"github.com/goblimey/dockserver-relay/auditlog"
	"github.com/goblimey/dockserver-relay/renamer"
)

const (
	settleDelay       = 300 * time.Millisecond
	gliderSettleDelay = 500 * time.Millisecond
	sweepSchedule     = "@every 30s"
	unknownGlider     = "unknown"
)

// Decompressor expands a compressed glider telemetry file and returns the
// path of the decompressed result. There is no third-party codec for
// this vendor-specific format in the retrieval pack, so the pipeline
// depends only on this narrow interface; production wires a real
// external decompressor, tests supply a fake.
type Decompressor interface {
	Decompress(path string) (string, error)
}

// Pipeline watches Root's glider subdirectories and processes arriving
// telemetry files.
type Pipeline struct {
	Root         string
	Decompressor Decompressor
	Audit        *auditlog.Log
	Log          *slog.Logger

	watcher *fsnotify.Watcher
	cronJob *cron.Cron

	mutex     sync.Mutex
	pending   map[string]*time.Timer
	gliders   map[string]string // glider name -> from-glider absolute path
	processed map[string]bool   // source paths already handed to the decompressor
}

// New creates a Pipeline. Root is the glider filesystem root, e.g.
// "/var/local/dockserver/gliders".
func New(root string, decompressor Decompressor, audit *auditlog.Log, log *slog.Logger) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{
		Root:         root,
		Decompressor: decompressor,
		Audit:        audit,
		Log:          log,
		pending:      make(map[string]*time.Timer),
		gliders:      make(map[string]string),
		processed:    make(map[string]bool),
	}
}

// Run watches Root for new gliders and existing glider directories for
// arriving files until ctx is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	p.watcher = watcher
	defer watcher.Close()

	if err := watcher.Add(p.Root); err != nil {
		return err
	}

	p.scanExistingGliders()

	p.cronJob = cron.New()
	p.cronJob.AddFunc(sweepSchedule, p.sweep)
	p.cronJob.Start()
	defer p.cronJob.Stop()

	for {
		select {
		case <-ctx.Done():
			p.cancelAllTimers()
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			p.handleEvent(event)
		case err, ok := <-watcher.Errors:
			if !ok {
				continue
			}
			p.Log.Error("fsnotify error in file pipeline", "error", err)
		}
	}
}

func (p *Pipeline) scanExistingGliders() {
	entries, err := os.ReadDir(p.Root)
	if err != nil {
		p.Log.Error("scanning glider root", "error", err)
		return
	}
	for _, e := range entries {
		if !e.IsDir() || e.Name() == unknownGlider {
			continue
		}
		p.tryWatchGlider(e.Name())
	}
}

func (p *Pipeline) tryWatchGlider(glider string) {
	if glider == unknownGlider {
		return
	}
	fromGlider := filepath.Join(p.Root, glider, fromGliderDirName)
	info, err := os.Stat(fromGlider)
	if err != nil || !info.IsDir() {
		return
	}

	p.mutex.Lock()
	if _, already := p.gliders[glider]; already {
		p.mutex.Unlock()
		return
	}
	p.gliders[glider] = fromGlider
	p.mutex.Unlock()

	if err := p.watcher.Add(fromGlider); err != nil {
		p.Log.Error("watching from-glider directory", "glider", glider, "error", err)
		return
	}
	p.Log.Info("watching glider directory", "glider", glider, "path", fromGlider)

	for _, name := range p.listEligible(fromGlider) {
		p.track(filepath.Join(fromGlider, name))
	}
}

func (p *Pipeline) listEligible(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if eligible(filepath.Join(dir, e.Name())) {
			names = append(names, e.Name())
		}
	}
	return names
}

func (p *Pipeline) handleEvent(event fsnotify.Event) {
	if filepath.Dir(event.Name) == filepath.Clean(p.Root) {
		if event.Op&fsnotify.Create != 0 {
			glider := filepath.Base(event.Name)
			go func() {
				time.Sleep(gliderSettleDelay)
				p.tryWatchGlider(glider)
			}()
		}
		return
	}

	if !eligible(event.Name) {
		return
	}

	switch {
	case event.Op&(fsnotify.Create|fsnotify.Write) != 0:
		p.track(event.Name)
	case event.Op&fsnotify.Remove != 0:
		p.forget(event.Name)
	}
}

// track (re)starts a path's settle timer: each Create/Write event resets
// it to settleDelay out; when it fires without being reset again, the
// file is treated as fully copied and processed.
func (p *Pipeline) track(path string) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.processed[path] {
		return
	}
	if t, ok := p.pending[path]; ok {
		t.Stop()
	}
	p.pending[path] = time.AfterFunc(settleDelay, func() { p.settle(path) })
}

func (p *Pipeline) forget(path string) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if t, ok := p.pending[path]; ok {
		t.Stop()
		delete(p.pending, path)
	}
}

func (p *Pipeline) settle(path string) {
	p.mutex.Lock()
	delete(p.pending, path)
	p.mutex.Unlock()
	p.process(path)
}

func (p *Pipeline) cancelAllTimers() {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	for path, t := range p.pending {
		t.Stop()
		delete(p.pending, path)
	}
}

// process runs one settled file through decompression and, unless it's a
// cache file, the renamer, recording the outcome to the audit log.
func (p *Pipeline) process(path string) {
	glider := p.gliderForPath(path)

	p.mutex.Lock()
	if p.processed[path] {
		p.mutex.Unlock()
		return
	}
	p.processed[path] = true
	p.mutex.Unlock()

	if _, err := os.Stat(path); err != nil {
		// Removed or moved before settling; nothing to do.
		return
	}

	decompressed, err := p.Decompressor.Decompress(path)
	if err != nil {
		p.Log.Error("decompression failed", "path", path, "error", err)
		p.recordAudit(glider, path, "", auditlog.OutcomeError, err.Error())
		return
	}

	if isCacheFile(path) {
		p.Log.Info("cache file decompressed, skipping renamer", "path", path, "decompressed", decompressed)
		p.recordAudit(glider, path, decompressed, auditlog.OutcomeSkip, "cache file")
		return
	}

	renamed, err := renamer.Rename(decompressed)
	if err != nil {
		p.Log.Error("rename failed", "path", decompressed, "error", err)
		p.recordAudit(glider, path, decompressed, auditlog.OutcomeError, err.Error())
		return
	}

	p.Log.Info("file processed", "original", path, "renamed", renamed)
	p.recordAudit(glider, path, renamed, auditlog.OutcomeOK, "")
}

func (p *Pipeline) recordAudit(glider, original, renamed string, outcome auditlog.Outcome, detail string) {
	if p.Audit == nil {
		return
	}
	p.Audit.Record(glider, original, renamed, outcome, detail)
}

func (p *Pipeline) gliderForPath(path string) string {
	fromGlider := filepath.Dir(path)
	return filepath.Base(filepath.Dir(fromGlider))
}
