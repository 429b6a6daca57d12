// Package forwarder implements the serial<->TCP relay whose session
// lifetime is gated by the modem's carrier-detect line. It is the Go
// counterpart of the source's Serial2TCP, adapted from the structurally
// similar bidirectional byte-copy pattern in the teacher's TCP-TCP MITM
// proxy (apps/proxy/tcpprox.go: two goroutines, one per direction, racing
// to completion) with a third goroutine added for CD monitoring and a
// real serial endpoint standing in for one of the two TCP legs.
package forwarder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/goblimey/dockserver-relay/serialio"
)

// SerialOption selects how this Forwarder treats carrier detect.
type SerialOption int

const (
	// OptionNone reads CD from the real modem line.
	OptionNone SerialOption = iota
	// OptionDirect means there's no modem: CD is forced permanently true.
	OptionDirect
	// OptionSimulateCD means CD is synthesized by a CDSource (the
	// device's DialogueState) rather than read from the UART.
	OptionSimulateCD
)

// CDSource supplies a synthesized carrier-detect level, implemented by
// dialogue.State in simulateCD mode.
type CDSource interface {
	CD() bool
}

const (
	readBufferSize     = 256
	startupProbeHold   = 500 * time.Millisecond
	cdPollInterval     = 100 * time.Millisecond
	tcpRetryInterval   = 1 * time.Second
	cancelSoftDeadline = 1 * time.Second
	cancelHardDeadline = 15 * time.Second
)

// openSerial and dialTCP are indirections so tests can substitute fakes.
type openSerialFunc func(device string) (serialio.Port, error)
type dialTCPFunc func(ctx context.Context, addr string) (net.Conn, error)

// Forwarder relays bytes between one serial device and the dockserver's
// TCP listener, opening and closing the TCP session as the modem's
// carrier-detect line rises and falls.
type Forwarder struct {
	Device string
	Host   string
	Port   int
	Option SerialOption
	CD     CDSource // required when Option == OptionSimulateCD

	Log *slog.Logger

	openSerial openSerialFunc
	dialTCP    dialTCPFunc

	mutex      sync.Mutex
	serialPort serialio.Port
	tcpConn    net.Conn
	cdStatus   cdStatus
	results    chan ExitCode
}

type cdStatus int

const (
	cdUndefined cdStatus = iota
	cdYes
	cdNo
)

// New creates a Forwarder for one device.
func New(device, host string, port int, option SerialOption, log *slog.Logger) *Forwarder {
	if log == nil {
		log = slog.Default()
	}
	return &Forwarder{
		Device:     device,
		Host:       host,
		Port:       port,
		Option:     option,
		Log:        log.With("device", device),
		openSerial: serialio.Open,
		dialTCP:    dialTCPContext,
		cdStatus:   cdUndefined,
	}
}

func dialTCPContext(ctx context.Context, addr string) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, "tcp", addr)
}

func (f *Forwarder) addr() string {
	return fmt.Sprintf("%s:%d", f.Host, f.Port)
}

// Run opens the serial device (after proving the TCP server is reachable)
// and relays bytes until either endpoint fails, then returns the
// classified ExitCode. It blocks until termination or ctx is cancelled.
func (f *Forwarder) Run(ctx context.Context) ExitCode {
	if err := f.probeServer(ctx); err != nil {
		f.Log.Error("startup probe failed, server unreachable", "error", err)
		return ErrTCPInit
	}

	serial, err := f.openSerial(f.Device)
	if err != nil {
		f.Log.Error("failed to open serial device", "error", err)
		return ErrSerialInit
	}
	f.serialPort = serial
	defer f.serialPort.Close()

	f.Log.Info("starting forwarder session")

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if f.Option == OptionDirect {
		f.cdStatus = cdYes
		if err := f.openTCP(runCtx); err != nil {
			f.Log.Error("failed to open eager TCP session for direct serial option", "error", err)
			return ErrTCPInit
		}
	}

	f.results = make(chan ExitCode, 3)
	var wg sync.WaitGroup

	directions := []func(context.Context){f.serialToTCP, f.tcpToSerial}
	if f.Option != OptionDirect {
		directions = append(directions, f.cdMonitor)
	}

	for _, dir := range directions {
		wg.Add(1)
		d := dir
		go func() {
			defer wg.Done()
			d(runCtx)
		}()
	}

	// Wait for the first direction to signal completion via results. The
	// cdMonitor goroutine signals only when a CD rise fails to open the TCP
	// session; otherwise it runs until cancelled.
	combined := <-f.results
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(cancelSoftDeadline):
		// A direction blocked in a serial read cannot see ctx; closing the
		// port unblocks it.
		f.serialPort.Close()
		select {
		case <-done:
		case <-time.After(cancelHardDeadline - cancelSoftDeadline):
			f.Log.Warn("a forwarder direction refused to cancel within the hard deadline")
		}
	}

	// Drain any further completions that arrived concurrently, combining
	// per §4.1's bitwise-OR rule.
	for {
		select {
		case code := <-f.results:
			combined |= code
		default:
			f.closeTCP()
			f.Log.Info("forwarder session closed", "result", combined)
			return combined
		}
	}
}

func (f *Forwarder) probeServer(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	conn, err := f.dialTCP(probeCtx, f.addr())
	if err != nil {
		return err
	}
	time.Sleep(startupProbeHold)
	return conn.Close()
}

// serialToTCP reads from serial and, when the TCP side is open, writes to
// it. Grounded on tcpprox.go's handleClientMessages direction.
func (f *Forwarder) serialToTCP(ctx context.Context) {
	buf := make([]byte, readBufferSize)
	var result ExitCode
	for {
		select {
		case <-ctx.Done():
			f.closeTCP()
			f.signalResult(NoError)
			return
		default:
		}

		n, err := f.serialPort.Read(buf)
		if errors.Is(err, io.EOF) {
			result = NoError
			break
		}
		if err != nil {
			f.Log.Debug("serial read failed", "error", err)
			result = ErrSerial
			break
		}
		if n == 0 {
			result = NoError
			break
		}

		f.mutex.Lock()
		conn := f.tcpConn
		f.mutex.Unlock()
		if conn == nil {
			continue
		}
		if _, err := conn.Write(buf[:n]); err != nil {
			result = ErrTCP
			break
		}
	}
	f.closeTCP()
	f.signalResult(result)
}

// tcpToSerial reads from TCP (when open) and writes to serial. Grounded on
// tcpprox.go's handleServerMessages direction.
func (f *Forwarder) tcpToSerial(ctx context.Context) {
	buf := make([]byte, readBufferSize)
	var result ExitCode
	for {
		select {
		case <-ctx.Done():
			f.signalResult(NoError)
			return
		default:
		}

		f.mutex.Lock()
		conn := f.tcpConn
		f.mutex.Unlock()

		if conn == nil {
			if f.monitorConfirmedCDYes() {
				result = ErrTCP
				break
			}
			select {
			case <-ctx.Done():
				f.signalResult(NoError)
				return
			case <-time.After(tcpRetryInterval):
			}
			continue
		}

		conn.SetReadDeadline(time.Now().Add(tcpRetryInterval))
		n, err := conn.Read(buf)
		if err != nil {
			if isTimeout(err) {
				continue
			}
			result = ErrTCP
			break
		}
		if n == 0 {
			continue
		}

		if _, err := f.serialPort.Write(buf[:n]); err != nil {
			result = ErrSerial
			break
		}
	}
	f.signalResult(result)
}

// cdMonitor polls the modem's carrier-detect line and opens/closes the TCP
// session as it rises and falls. Runs for the lifetime of the Forwarder
// unless Option == OptionDirect, in which case it's never started.
func (f *Forwarder) cdMonitor(ctx context.Context) {
	ticker := time.NewTicker(cdPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		level := f.currentCD()
		f.mutex.Lock()
		prev := f.cdStatus
		open := f.tcpConn != nil
		f.mutex.Unlock()

		switch {
		case level && !open && prev != cdYes:
			f.setCD(cdYes)
			if err := f.openTCP(ctx); err != nil {
				f.Log.Error("CD rose but TCP open failed", "error", err)
				f.signalResult(ErrTCP)
				return
			}
		case level && !open:
			f.setCD(cdYes)
		case !level && open:
			f.setCD(cdNo)
			f.closeTCP()
		case !level:
			f.setCD(cdNo)
		default:
			f.setCD(cdYes)
		}
	}
}

func (f *Forwarder) currentCD() bool {
	switch f.Option {
	case OptionDirect:
		return true
	case OptionSimulateCD:
		if f.CD == nil {
			return false
		}
		return f.CD.CD()
	default:
		f.mutex.Lock()
		port := f.serialPort
		f.mutex.Unlock()
		if port == nil {
			return false
		}
		cd, err := port.CarrierDetect()
		if err != nil {
			return false
		}
		return cd
	}
}

// monitorConfirmedCDYes reports whether cdMonitor has itself observed
// carrier-detect rise, as opposed to what a raw currentCD() read would
// say. Used to decide whether a still-nil TCP connection is an error
// (cdMonitor saw CD and should have opened it) or just startup: CD can
// read true before cdMonitor's first poll (e.g. dialogue.State.CD()
// fails open while a connection has never been established), and that
// transient state must not be mistaken for a dropped backend.
func (f *Forwarder) monitorConfirmedCDYes() bool {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.cdStatus == cdYes
}

func (f *Forwarder) setCD(s cdStatus) {
	f.mutex.Lock()
	f.cdStatus = s
	f.mutex.Unlock()
}

func (f *Forwarder) openTCP(ctx context.Context) error {
	conn, err := f.dialTCP(ctx, f.addr())
	if err != nil {
		return err
	}
	f.mutex.Lock()
	f.tcpConn = conn
	f.mutex.Unlock()
	f.Log.Info("TCP session opened")
	return nil
}

func (f *Forwarder) closeTCP() {
	f.mutex.Lock()
	conn := f.tcpConn
	f.tcpConn = nil
	f.mutex.Unlock()
	if conn != nil {
		conn.Close()
		f.Log.Info("TCP session closed")
	}
}

// signalResult reports a direction's terminal ExitCode back to Run. The
// results channel is sized to the maximum number of directions, so this
// never blocks.
func (f *Forwarder) signalResult(code ExitCode) {
	f.results <- code
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
