// Package devicewatcher watches a TTY parent directory (typically /dev)
// for the appearance of configured serial devices and spawns a Forwarder
// for each one as it shows up, including those already present at
// startup. Grounded on the teacher's apps/serial_usb_grabber, which
// scans for serial devices at a fixed parent path, generalized here to
// add fsnotify-driven hot-plug detection.
package devicewatcher

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/goblimey/dockserver-relay/forwarder"
	"github.com/goblimey/dockserver-relay/serialio"
)

const udevSettleDelay = 500 * time.Millisecond

// ForwarderFactory builds and runs the Forwarder for one device path,
// returning its terminal ExitCode. Exists so tests can substitute a fake
// without constructing a real serialio.Port.
type ForwarderFactory func(ctx context.Context, device string) forwarder.ExitCode

// Watcher tracks configured devices under one parent directory and keeps
// a Forwarder running for each one that's currently plugged in.
type Watcher struct {
	TopDirectory string
	Devices      []string
	NewForwarder ForwarderFactory
	Log          *slog.Logger

	mutex  sync.Mutex
	active map[string]context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Watcher. devices are full paths (e.g. "/dev/ttyUSB0");
// topDirectory is their common parent, the directory fsnotify watches.
func New(topDirectory string, devices []string, newForwarder ForwarderFactory, log *slog.Logger) *Watcher {
	if log == nil {
		log = slog.Default()
	}
	return &Watcher{
		TopDirectory: topDirectory,
		Devices:      devices,
		NewForwarder: newForwarder,
		Log:          log,
		active:       make(map[string]context.CancelFunc),
	}
}

// FatalCode is returned by Run when a Forwarder's outcome should end the
// whole process, carrying the code to exit with.
type FatalCode struct {
	Code forwarder.ExitCode
}

func (f FatalCode) Error() string {
	return "fatal forwarder outcome: " + f.Code.String()
}

// Run scans for already-present devices, spawns forwarders for them, then
// watches TopDirectory for CREATE/REMOVE of the configured device nodes
// until ctx is cancelled or a Forwarder exits fatally. A fatal exit is
// reported via the returned FatalCode error; a clean shutdown (ctx
// cancelled) returns nil.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(w.TopDirectory); err != nil {
		return err
	}

	fatal := make(chan forwarder.ExitCode, 1)
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	for _, d := range w.Devices {
		if serialio.Exists(d) {
			w.spawn(runCtx, d, fatal)
		}
	}

	for {
		select {
		case <-ctx.Done():
			w.wg.Wait()
			return nil

		case code := <-fatal:
			w.Log.Error("forwarder exited fatally, ending process", "code", code)
			cancel()
			w.wg.Wait()
			return FatalCode{Code: code}

		case event, ok := <-watcher.Events:
			if !ok {
				// The watch loop ending is itself fatal, per the
				// watchdog semantics this system preserves.
				cancel()
				w.wg.Wait()
				return FatalCode{Code: forwarder.ErrTCP}
			}
			w.handleEvent(runCtx, event, fatal)

		case err, ok := <-watcher.Errors:
			if !ok {
				continue
			}
			w.Log.Error("fsnotify error while watching device directory", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event, fatal chan forwarder.ExitCode) {
	device := w.matchDevice(event.Name)
	if device == "" {
		return
	}

	switch {
	case event.Op&fsnotify.Create != 0:
		go func() {
			time.Sleep(udevSettleDelay)
			if !serialio.Exists(device) {
				return
			}
			w.spawn(ctx, device, fatal)
		}()
	case event.Op&fsnotify.Remove != 0:
		w.mutex.Lock()
		if cancel, ok := w.active[device]; ok {
			cancel()
			delete(w.active, device)
		}
		w.mutex.Unlock()
	}
}

func (w *Watcher) matchDevice(path string) string {
	for _, d := range w.Devices {
		if filepath.Clean(d) == filepath.Clean(path) {
			return d
		}
	}
	return ""
}

func (w *Watcher) spawn(ctx context.Context, device string, fatal chan forwarder.ExitCode) {
	w.mutex.Lock()
	if _, already := w.active[device]; already {
		w.mutex.Unlock()
		return
	}
	devCtx, cancel := context.WithCancel(ctx)
	w.active[device] = cancel
	w.mutex.Unlock()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer func() {
			w.mutex.Lock()
			delete(w.active, device)
			w.mutex.Unlock()
		}()

		w.Log.Info("starting forwarder for device", "device", device)
		code := w.NewForwarder(devCtx, device)

		if code.Fatal() {
			select {
			case fatal <- code:
			default:
			}
			return
		}
		if code != forwarder.NoError {
			w.Log.Warn("forwarder dropped, device slot free for reuse", "device", device, "code", code)
		}
	}()
}
