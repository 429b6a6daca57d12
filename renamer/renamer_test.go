package renamer

import (
	"os"
	"path/filepath"
	"testing"
)

func writeHeaderedFile(t *testing.T, path, shortName, longName string) {
	t.Helper()
	content := "some preamble line\n" +
		"the8x3_filename: " + shortName + "\n" +
		"full_filename: " + longName + "\n" +
		"trailing data that is not header\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
}

func TestRenameRoundTrip(t *testing.T) {
	dir := t.TempDir()
	original := filepath.Join(dir, "01600001.dbd")
	writeHeaderedFile(t, original, "01600001", "k_999-2023-107-0-1")

	renamed, err := Rename(original)
	if err != nil {
		t.Fatalf("Rename: %v", err)
	}
	want := filepath.Join(dir, "k_999-2023-107-0-1.dbd")
	if renamed != want {
		t.Fatalf("got %q, want %q", renamed, want)
	}
	if _, err := os.Stat(original); !os.IsNotExist(err) {
		t.Fatalf("original file %s should no longer exist", original)
	}

	backAgain, err := Rename(renamed)
	if err != nil {
		t.Fatalf("second Rename: %v", err)
	}
	if backAgain != original {
		t.Fatalf("got %q, want %q (involution)", backAgain, original)
	}
}

func TestRenameReturnsHeaderMismatchWhenNeitherNameAppearsInPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "totally_unrelated_name.dbd")
	writeHeaderedFile(t, path, "01600001", "k_999-2023-107-0-1")

	_, err := Rename(path)
	if _, ok := err.(HeaderMismatchError); !ok {
		t.Fatalf("got %v (%T), want HeaderMismatchError", err, err)
	}
	if _, statErr := os.Stat(path); statErr != nil {
		t.Fatalf("source file should be left intact on mismatch: %v", statErr)
	}
}

func TestRenameSkipsInvalidUTF8HeaderLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "01600001.dbd")

	var content []byte
	content = append(content, "preamble\n"...)
	content = append(content, []byte{0xff, 0xfe, 0x00, '\n'}...) // invalid UTF-8 line
	content = append(content, "the8x3_filename: 01600001\n"...)
	content = append(content, "full_filename: k_999-2023-107-0-1\n"...)
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	renamed, err := Rename(path)
	if err != nil {
		t.Fatalf("Rename: %v", err)
	}
	want := filepath.Join(dir, "k_999-2023-107-0-1.dbd")
	if renamed != want {
		t.Fatalf("got %q, want %q", renamed, want)
	}
}
