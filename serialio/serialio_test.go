package serialio

import (
	"os"
	"path/filepath"
	"testing"
)

func TestExistsReportsFilesystemPresence(t *testing.T) {
	dir := t.TempDir()
	present := filepath.Join(dir, "ttyUSB0")
	absent := filepath.Join(dir, "ttyUSB1")

	if err := os.WriteFile(present, nil, 0644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	if !Exists(present) {
		t.Fatal("Exists should report true for a present device node")
	}
	if Exists(absent) {
		t.Fatal("Exists should report false for an absent device node")
	}
}
