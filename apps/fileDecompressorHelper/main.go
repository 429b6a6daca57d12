// Command fileDecompressorHelper runs the directory-watched
// decompression+rename pipeline on its own, without the serial
// forwarders or control endpoint. Grounded on the flag-driven,
// slog-logging CLI style of the teacher's apps/serial_usb_grabber/main.go.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"github.com/goblimey/dockserver-relay/auditlog"
	"github.com/goblimey/dockserver-relay/config"
	"github.com/goblimey/dockserver-relay/filewatch"
	"github.com/goblimey/dockserver-relay/supervisor"
)

func main() {
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	var (
		directory  string
		configFile string
	)
	flag.StringVar(&directory, "directory", "", "glider files root to watch")
	flag.StringVar(&configFile, "configuration_file", "", "TOML configuration file")
	flag.Parse()

	cfg, err := config.Load(configFile)
	if err != nil {
		log.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if directory != "" {
		cfg.Files.Root = directory
	}
	if cfg.Files.Root == "" {
		log.Error("no files root configured; pass -directory or set [Files] root in the config file")
		os.Exit(1)
	}

	ctx, stop := supervisor.WithSignalHandling(context.Background())
	defer stop()

	decompressor := filewatch.NewExternalDecompressor(cfg.Files.DecompressCmd)
	audit := auditlog.New(cfg.Files.AuditLogDir)
	pipeline := filewatch.New(cfg.Files.Root, decompressor, audit, log)

	if err := pipeline.Run(ctx); err != nil {
		select {
		case <-ctx.Done():
		default:
			log.Error("file watch pipeline stopped unexpectedly", "error", err)
			os.Exit(1)
		}
	}
}
