// Package auditlog writes a daily-rotated record of every file the
// FileWatcher pipeline decompressed and renamed, one line per outcome.
// Grounded on the teacher's apps/proxy, which keeps a daily rotated raw
// capture of RTCM traffic via the same dailylogger.Writer.
package auditlog

import (
	"fmt"
	"time"

	"github.com/goblimey/go-tools/dailylogger"
)

// Outcome classifies one processed file.
type Outcome string

const (
	OutcomeOK    Outcome = "ok"
	OutcomeSkip  Outcome = "skip"
	OutcomeError Outcome = "error"
)

// Log appends one line per file-pipeline outcome to a daily-rotated file.
type Log struct {
	writer *dailylogger.Writer
	now    func() time.Time
}

// New creates a Log writing "<dir>/audit.<date>.log" files.
func New(dir string) *Log {
	return &Log{
		writer: dailylogger.New(dir, "audit.", ".log"),
		now:    time.Now,
	}
}

// Record appends one outcome line: timestamp, glider, original name, new
// name (empty if none), outcome, and an optional detail (e.g. an error).
func (l *Log) Record(glider, original, renamed string, outcome Outcome, detail string) {
	line := fmt.Sprintf("%s glider=%s original=%s renamed=%s outcome=%s detail=%q\n",
		l.now().UTC().Format(time.RFC3339), glider, original, renamed, outcome, detail)
	l.writer.Write([]byte(line))
}
