// Package supervisor composes the dockserver-relay's long-running
// components — one Forwarder per configured serial device (via
// devicewatcher), the control endpoint, and the file-watch pipeline —
// and classifies whichever fails first into the process exit status.
// There's no teacher file that already does this top-level composition
// (go-ntrip's apps/*/main.go each run a single component directly), so
// this is built fresh in the teacher's idiom: plain functions over
// context.Context, log/slog for structured logging, no framework.
package supervisor

import (
	"context"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/goblimey/dockserver-relay/auditlog"
	"github.com/goblimey/dockserver-relay/clock"
	"github.com/goblimey/dockserver-relay/config"
	"github.com/goblimey/dockserver-relay/control"
	"github.com/goblimey/dockserver-relay/devicewatcher"
	"github.com/goblimey/dockserver-relay/dialogue"
	"github.com/goblimey/dockserver-relay/filewatch"
	"github.com/goblimey/dockserver-relay/forwarder"
)

// Run wires up and runs every configured component until one fails
// fatally or ctx is cancelled (typically by a SIGINT/SIGTERM handler
// installed by WithSignalHandling), returning the process exit status
// per the code table in §6 of the external interface. A nil decompressor
// is only valid when cfg.Files.Root is empty (no file pipeline to run);
// callers that configure a files root must supply a real Decompressor,
// such as filewatch.NewExternalDecompressor(cfg.Files.DecompressCmd).
func Run(ctx context.Context, cfg config.Config, decompressor filewatch.Decompressor, log *slog.Logger) int {
	if log == nil {
		log = slog.Default()
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	endpoint := control.New(log)

	newForwarder := func(devCtx context.Context, device string) forwarder.ExitCode {
		opt := serialOptionFor(cfg, device)

		state := dialogue.New(log, clock.NewSystemClock())
		defer state.Close()
		endpoint.Register(device, state)

		f := forwarder.New(device, cfg.TCP.Server, cfg.TCP.Port, opt, log)
		if opt == forwarder.OptionSimulateCD {
			f.CD = state
		}
		return f.Run(devCtx)
	}

	watcher := devicewatcher.New("/dev", cfg.Serial.Devices, newForwarder, log)

	fail := make(chan int, 4)

	go func() {
		if err := watcher.Run(runCtx); err != nil {
			if fc, ok := err.(devicewatcher.FatalCode); ok {
				fail <- fc.Code.ExitStatus()
				return
			}
			log.Error("device watcher failed", "error", err)
			fail <- 1
		}
	}()

	go func() {
		ln, err := net.Listen("tcp", controlAddr(cfg))
		if err != nil {
			log.Error("control endpoint failed to bind", "error", err)
			fail <- 2
			return
		}
		go func() {
			<-runCtx.Done()
			ln.Close()
		}()
		if err := endpoint.Serve(ln); err != nil {
			select {
			case <-runCtx.Done():
			default:
				log.Error("control endpoint stopped unexpectedly", "error", err)
			}
		}
	}()

	if cfg.Files.Root != "" {
		audit := auditlog.New(cfg.Files.AuditLogDir)
		pipeline := filewatch.New(cfg.Files.Root, decompressor, audit, log)
		go func() {
			if err := pipeline.Run(runCtx); err != nil {
				log.Error("file watch pipeline stopped unexpectedly", "error", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		return 0
	case status := <-fail:
		cancel()
		return status
	}
}

func serialOptionFor(cfg config.Config, device string) forwarder.SerialOption {
	switch cfg.Serial.Options[device] {
	case "direct":
		return forwarder.OptionDirect
	case "simulateCD":
		return forwarder.OptionSimulateCD
	default:
		return forwarder.OptionNone
	}
}

func controlAddr(cfg config.Config) string {
	port := cfg.Control.Port
	if port == 0 {
		port = config.DefaultControlPort
	}
	return net.JoinHostPort("", strconv.Itoa(port))
}

// WithSignalHandling returns a context that's cancelled when the process
// receives SIGINT or SIGTERM, along with a stop function to release the
// signal notification early.
func WithSignalHandling(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
