package supervisor

import (
	"context"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/goblimey/dockserver-relay/config"
	"github.com/goblimey/dockserver-relay/forwarder"
)

func TestSerialOptionForMapsConfiguredOptions(t *testing.T) {
	cfg := config.Config{}
	cfg.Serial.Options = map[string]string{
		"/dev/ttyUSB0": "direct",
		"/dev/ttyUSB1": "simulateCD",
	}

	if got := serialOptionFor(cfg, "/dev/ttyUSB0"); got != forwarder.OptionDirect {
		t.Fatalf("got %v, want OptionDirect", got)
	}
	if got := serialOptionFor(cfg, "/dev/ttyUSB1"); got != forwarder.OptionSimulateCD {
		t.Fatalf("got %v, want OptionSimulateCD", got)
	}
	if got := serialOptionFor(cfg, "/dev/ttyUSB2"); got != forwarder.OptionNone {
		t.Fatalf("got %v, want OptionNone for an unconfigured device", got)
	}
}

func TestControlAddrUsesConfiguredPortOrDefault(t *testing.T) {
	cfg := config.Config{}
	cfg.Control.Port = 9999
	if got, want := controlAddr(cfg), ":9999"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}

	cfg.Control.Port = 0
	want := net.JoinHostPort("", "11000")
	if got := controlAddr(cfg); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

// freePort asks the OS for an unused TCP port by binding to :0, then
// releases it immediately for Run to rebind.
func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("finding a free port: %v", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func TestRunReturnsZeroOnGracefulCancellation(t *testing.T) {
	cfg := config.Config{}
	cfg.Control.Port = freePort(t)

	ctx, cancel := context.WithCancel(context.Background())
	log := slog.New(slog.NewTextHandler(testWriter{t}, nil))

	done := make(chan int, 1)
	go func() { done <- Run(ctx, cfg, nil, log) }()

	time.Sleep(50 * time.Millisecond) // let the control endpoint bind
	cancel()

	select {
	case status := <-done:
		if status != 0 {
			t.Fatalf("got exit status %d, want 0 on graceful shutdown", status)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}

// testWriter adapts *testing.T into an io.Writer for slog output.
type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}
