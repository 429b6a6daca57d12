// Package renamer reads the header of a decompressed glider telemetry
// file and renames it between its compact 8.3 name and its long
// descriptive name, whichever form isn't currently in play. There is no
// third-party library for this vendor-specific header grammar, so it's
// built directly on the standard library the way the teacher's own
// file_handler package reads framed text out of a stream.
package renamer

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	headerScanLines = 14
	keyShortName    = "the8x3_filename"
	keyLongName     = "full_filename"
)

// HeaderMismatchError is returned when the header lacks either name field,
// or when neither field's value appears in the file's current base name,
// so the rename target cannot be computed. Not retryable: the compressed source is left
// intact and the caller should just log and move on.
type HeaderMismatchError struct {
	Path string
}

func (e HeaderMismatchError) Error() string {
	return fmt.Sprintf("neither header name appears in path %s", e.Path)
}

// Rename reads path's header, determines its peer name (8.3 <-> long),
// substitutes it into the path, and renames the file on disk. It returns
// the new path. Calling Rename again on the result renames it back,
// since the substitution is symmetric.
func Rename(path string) (string, error) {
	short, long, err := readHeaderNames(path)
	if err != nil {
		return "", err
	}
	if short == "" || long == "" {
		return "", HeaderMismatchError{Path: path}
	}

	dir, base := filepath.Split(path)
	var newBase string
	switch {
	case strings.Contains(base, short):
		newBase = strings.Replace(base, short, long, 1)
	case strings.Contains(base, long):
		newBase = strings.Replace(base, long, short, 1)
	default:
		return "", HeaderMismatchError{Path: path}
	}

	newPath := filepath.Join(dir, newBase)
	if err := os.Rename(path, newPath); err != nil {
		return "", fmt.Errorf("renaming %s to %s: %w", path, newPath, err)
	}
	return newPath, nil
}

// readHeaderNames scans the first headerScanLines lines of path for the
// "the8x3_filename: " and "full_filename: " fields, tolerating lines that
// aren't valid UTF-8 by skipping them rather than failing outright (the
// rest of a glider header is binary-adjacent and not reliably text).
func readHeaderNames(path string) (short, long string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for i := 0; i < headerScanLines && scanner.Scan(); i++ {
		line := scanner.Text()
		if !isValidUTF8Line(line) {
			continue
		}
		if v, ok := fieldValue(line, keyShortName); ok {
			short = v
		}
		if v, ok := fieldValue(line, keyLongName); ok {
			long = v
		}
	}
	if err := scanner.Err(); err != nil {
		return "", "", fmt.Errorf("reading header of %s: %w", path, err)
	}
	return short, long, nil
}

func isValidUTF8Line(s string) bool {
	return strings.ToValidUTF8(s, "�") == s
}

func fieldValue(line, key string) (string, bool) {
	prefix := key + ":"
	if !strings.HasPrefix(strings.TrimSpace(line), prefix) {
		return "", false
	}
	value := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), prefix))
	if value == "" {
		return "", false
	}
	return value, true
}
