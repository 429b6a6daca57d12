// Command serialTCPConnector runs the serial<->TCP forwarders, control
// endpoint, and file-watch pipeline for a dockserver sidecar. Grounded on
// the flag-driven, slog-logging CLI style of the teacher's
// apps/serial_usb_grabber/main.go.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"strings"

	"github.com/goblimey/dockserver-relay/config"
	"github.com/goblimey/dockserver-relay/filewatch"
	"github.com/goblimey/dockserver-relay/supervisor"
)

func main() {
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	var (
		devicesFlag       string
		server            string
		port              int
		configFile        string
		serialOptionsFlag string
	)
	flag.StringVar(&devicesFlag, "devices", "", "comma-separated serial device paths")
	flag.StringVar(&server, "server", "", "dockserver TCP host")
	flag.IntVar(&port, "port", 0, "dockserver TCP port")
	flag.StringVar(&configFile, "configuration_file", "", "TOML configuration file")
	flag.StringVar(&serialOptionsFlag, "serial-options", "", "comma-separated dev=opt pairs")
	flag.Parse()

	cfg, err := config.Load(configFile)
	if err != nil {
		log.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	applyCLIOverrides(&cfg, devicesFlag, server, port, serialOptionsFlag)

	ctx, stop := supervisor.WithSignalHandling(context.Background())
	defer stop()

	decompressor := filewatch.NewExternalDecompressor(cfg.Files.DecompressCmd)
	status := supervisor.Run(ctx, cfg, decompressor, log)
	os.Exit(status)
}

func applyCLIOverrides(cfg *config.Config, devices, server string, port int, serialOptions string) {
	if devices != "" {
		cfg.Serial.Devices = strings.Split(devices, ",")
	}
	if server != "" {
		cfg.TCP.Server = server
	}
	if port != 0 {
		cfg.TCP.Port = port
	}
	if serialOptions != "" {
		if cfg.Serial.Options == nil {
			cfg.Serial.Options = make(map[string]string)
		}
		for _, pair := range strings.Split(serialOptions, ",") {
			kv := strings.SplitN(pair, "=", 2)
			if len(kv) == 2 {
				cfg.Serial.Options[kv[0]] = kv[1]
			}
		}
	}
}
