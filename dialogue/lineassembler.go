package dialogue

import "strings"

// lineAssembler splits an accumulating byte stream into complete lines on
// '\n', discarding the terminator. Bytes after the last '\n' are held back
// until a future call completes them.
type lineAssembler struct {
	held string
}

func newLineAssembler() *lineAssembler {
	return &lineAssembler{}
}

// feed appends s and returns every complete line newly available, in order.
func (a *lineAssembler) feed(s string) []string {
	a.held += s
	var lines []string
	for {
		idx := strings.IndexByte(a.held, '\n')
		if idx < 0 {
			break
		}
		lines = append(lines, a.held[:idx])
		a.held = a.held[idx+1:]
	}
	return lines
}
