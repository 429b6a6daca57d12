package filewatch

import (
	"fmt"
	"os/exec"
	"strings"
)

// ExternalDecompressor shells out to an external codec binary, mirroring
// the teacher's use of exec.Command to hand off work (mkdir/mv in
// rtcmlogger/log/writer.go) rather than reimplement it in Go. The binary
// is invoked as "<command> <path>" and is expected to write the
// decompressed file alongside the input and print its path on stdout.
type ExternalDecompressor struct {
	Command string
	Args    []string
}

// NewExternalDecompressor returns a Decompressor that runs command with
// any fixed args followed by the file path being decompressed.
func NewExternalDecompressor(command string, args ...string) *ExternalDecompressor {
	return &ExternalDecompressor{Command: command, Args: args}
}

func (d *ExternalDecompressor) Decompress(path string) (string, error) {
	args := append(append([]string{}, d.Args...), path)
	cmd := exec.Command(d.Command, args...)
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("decompressing %s: %w", path, err)
	}
	decompressed := strings.TrimSpace(string(out))
	if decompressed == "" {
		return "", fmt.Errorf("decompressing %s: codec produced no output path", path)
	}
	return decompressed, nil
}
