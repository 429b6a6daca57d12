// Package dialogue implements the dockserver-relay dialogue parser: it
// reassembles lines from a glider's serial chatter, recognizes a small
// family of banners and status lines, and drives a connection/running
// state machine with an idle watchdog. It is the Go counterpart of the
// source's BufferHandler.
package dialogue

import (
	"log/slog"
	"sync"
	"time"

	"github.com/goblimey/dockserver-relay/clock"
)

// Connection is the tri-state carrier-detect-equivalent status tracked in
// memory under the "connection" key.
type Connection int

const (
	ConnectionUndefined Connection = iota
	ConnectionYes
	ConnectionNo
)

func (c Connection) String() string {
	switch c {
	case ConnectionYes:
		return "Device is connected."
	case ConnectionNo:
		return "Device is not connected."
	default:
		return "Connection status undefined"
	}
}

// Memory keys that survive Clear (identity/status, not transient parser
// output). VehicleName is a dedicated identity key mirroring whatever the
// VehicleNameParser last saw — the source's survivor list names
// "VehicleName" even though that parser actually stores its value under
// "VehicleNameParser"; mirroring it here satisfies the documented
// invariant (identity should survive a clear) without losing the
// per-parser key naming convention used everywhere else.
const (
	KeyConnection = "connection"
	KeyRunning    = "running"
	KeyVehicleID  = "VehicleName"
)

const (
	idleWakeup   = 1 * time.Second
	defaultIdle  = 300 * time.Second
	lineBufferSz = 5
)

// State is one device's dialogue processor: one per serial device that
// wants dialogue processing, matching the source's one-BufferHandler-per-
// device model.
type State struct {
	log *slog.Logger

	assembler *lineAssembler
	parsers   []parser
	lines     *LineBuffer
	timer     *Timer

	in   chan []byte
	cmds chan command
	done chan struct{}

	mutex      sync.RWMutex
	connection Connection
	running    bool
	memory     map[string]any
}

type command struct {
	action string
	reply  chan string
}

// Option configures a State at construction.
type Option func(*State)

// WithIdleTimeout overrides the default 300s idle timeout.
func WithIdleTimeout(d time.Duration) Option {
	return func(s *State) { s.timer = NewTimer(d, s.timer.clk) }
}

// New creates a State and starts its processing goroutine. Call Close to
// stop it.
func New(log *slog.Logger, clk clock.Clock, opts ...Option) *State {
	if log == nil {
		log = slog.Default()
	}
	s := &State{
		log:        log,
		assembler:  newLineAssembler(),
		parsers:    defaultParsers(),
		lines:      NewLineBuffer(lineBufferSz),
		in:         make(chan []byte, 64),
		cmds:       make(chan command),
		done:       make(chan struct{}),
		connection: ConnectionUndefined,
		running:    false,
		memory:     make(map[string]any),
	}
	s.timer = NewTimer(defaultIdle, clk)
	for _, opt := range opts {
		opt(s)
	}
	s.memory[KeyConnection] = ConnectionUndefined
	s.memory[KeyRunning] = false
	go s.process()
	return s
}

// Send enqueues bytes read from the serial device for dialogue processing.
func (s *State) Send(data []byte) {
	select {
	case s.in <- data:
	case <-s.done:
	}
}

// Callback services a control command ("connect", "disconnect", "status",
// or anything else) and returns the human-readable reply.
func (s *State) Callback(action string) string {
	reply := make(chan string, 1)
	select {
	case s.cmds <- command{action: action, reply: reply}:
	case <-s.done:
		return "Device closed."
	}
	select {
	case r := <-reply:
		return r
	case <-s.done:
		return "Device closed."
	}
}

// CD reports the synthesized carrier-detect level for Forwarder's
// simulateCD mode: true when connected, and true (fail-open, granting
// control) when the connection status has never been established.
func (s *State) CD() bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if s.connection == ConnectionUndefined {
		return true
	}
	return s.connection == ConnectionYes
}

// Memory returns a snapshot copy of the current memory map, for status
// reporting and tests.
func (s *State) Memory() map[string]any {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	out := make(map[string]any, len(s.memory))
	for k, v := range s.memory {
		out[k] = v
	}
	return out
}

// RecentLines returns the most recent raw dialogue lines, oldest first.
func (s *State) RecentLines() []string {
	return s.lines.Lines()
}

// Close stops the processing goroutine.
func (s *State) Close() {
	close(s.done)
}

func (s *State) process() {
	for {
		select {
		case <-s.done:
			return
		case cmd := <-s.cmds:
			cmd.reply <- s.handleCommand(cmd.action)
		case data, ok := <-s.in:
			if !ok {
				return
			}
			s.handleData(data)
		case <-time.After(idleWakeup):
			s.handleIdleTick()
		}
	}
}

func (s *State) handleCommand(action string) string {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	switch action {
	case "connect":
		s.connection = ConnectionYes
		s.memory[KeyConnection] = ConnectionYes
		s.timer.DisableUntilReset()
		return "Device connected."
	case "disconnect":
		s.connection = ConnectionNo
		s.memory[KeyConnection] = ConnectionNo
		s.timer.Reset()
		return "Device disconnected."
	case "status":
		return s.connection.String()
	default:
		return "Command " + action + " unprocessed."
	}
}

func (s *State) handleIdleTick() {
	if !s.timer.IsTimedOut() {
		return
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.connection = ConnectionNo
	s.memory[KeyConnection] = ConnectionNo
	s.clearVolatileLocked()
}

func (s *State) handleData(data []byte) {
	lines := s.assembler.feed(string(data))

	s.mutex.Lock()
	defer s.mutex.Unlock()

	for _, line := range lines {
		s.lines.Add(line)
		for _, p := range s.parsers {
			value, matched := p.parse(line)
			if !matched {
				continue
			}
			key := p.key()
			s.memory[key] = value
			switch key {
			case KeyVehicleName, KeyGliderLABDOS:
				s.timer.Reset()
				s.connection = ConnectionYes
				s.memory[KeyConnection] = ConnectionYes
			}
			if key == KeyVehicleName {
				s.memory[KeyVehicleID] = value
			}
			if key == KeyGliderLABDOS {
				s.running = false
				s.memory[KeyRunning] = false
			} else if key == KeyDisconnectEvnt {
				s.connection = ConnectionNo
				s.running = false
				s.memory[KeyConnection] = ConnectionNo
				s.memory[KeyRunning] = false
				s.clearVolatileLocked()
			}
		}
	}

	if s.running {
		s.timer.Reset()
	}

	s.log.Debug("dialogue memory updated", "memory", s.memory)
}

// clearVolatileLocked purges every memory key except connection,
// VehicleName and running. Caller must hold s.mutex.
func (s *State) clearVolatileLocked() {
	for k := range s.memory {
		if k == KeyConnection || k == KeyVehicleID || k == KeyRunning {
			continue
		}
		delete(s.memory, k)
	}
}
