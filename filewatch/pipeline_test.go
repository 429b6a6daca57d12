package filewatch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// fakeDecompressor strips the compressed extension and appends a fixed
// decompressed extension, writing a header carrying both name forms so
// the renamer can act on the result.
type fakeDecompressor struct {
	longName  string
	extension string // decompressed extension, e.g. ".dbd" or ".cac"
}

func (d fakeDecompressor) Decompress(path string) (string, error) {
	base := filepath.Base(path)
	short := strings.TrimSuffix(base, filepath.Ext(base))
	out := filepath.Join(filepath.Dir(path), short+d.extension)
	content := "preamble\nthe8x3_filename: " + short + "\nfull_filename: " + d.longName + "\n"
	if err := os.WriteFile(out, []byte(content), 0644); err != nil {
		return "", err
	}
	return out, nil
}

func setupGliderDir(t *testing.T) (root, fromGlider string) {
	t.Helper()
	root = t.TempDir()
	fromGlider = filepath.Join(root, "sebastian", fromGliderDirName)
	if err := os.MkdirAll(fromGlider, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	return root, fromGlider
}

func TestPipelineProcessesDataFileFullPath(t *testing.T) {
	root, fromGlider := setupGliderDir(t)
	p := New(root, fakeDecompressor{longName: "k_999-2023-107-0-1", extension: ".dbd"}, nil, nil)

	path := filepath.Join(fromGlider, "01600001.dcd")
	if err := os.WriteFile(path, []byte("compressed bytes"), 0644); err != nil {
		t.Fatalf("writing source file: %v", err)
	}
	p.process(path)

	entries, err := os.ReadDir(fromGlider)
	if err != nil {
		t.Fatalf("reading dir: %v", err)
	}
	names := map[string]bool{}
	for _, e := range entries {
		names[e.Name()] = true
	}
	want := map[string]bool{"k_999-2023-107-0-1.dbd": true, "01600001.dcd": true}
	if len(names) != len(want) {
		t.Fatalf("got %v, want %v", names, want)
	}
	for n := range want {
		if !names[n] {
			t.Fatalf("missing %q in %v", n, names)
		}
	}
}

func TestPipelineSkipsRenamerForCacheFiles(t *testing.T) {
	root, fromGlider := setupGliderDir(t)
	p := New(root, fakeDecompressor{longName: "unused", extension: ".cac"}, nil, nil)

	path := filepath.Join(fromGlider, "daad1b20.ccc")
	if err := os.WriteFile(path, []byte("compressed bytes"), 0644); err != nil {
		t.Fatalf("writing source file: %v", err)
	}
	p.process(path)

	entries, err := os.ReadDir(fromGlider)
	if err != nil {
		t.Fatalf("reading dir: %v", err)
	}
	names := map[string]bool{}
	for _, e := range entries {
		names[e.Name()] = true
	}
	want := map[string]bool{"daad1b20.cac": true, "daad1b20.ccc": true}
	if len(names) != len(want) {
		t.Fatalf("got %v, want %v", names, want)
	}
}

func TestPipelineProcessesEachFileAtMostOnce(t *testing.T) {
	root, fromGlider := setupGliderDir(t)
	calls := 0
	counting := countingDecompressor{fakeDecompressor{longName: "k_999-2023-107-0-1", extension: ".dbd"}, &calls}
	p := New(root, counting, nil, nil)

	path := filepath.Join(fromGlider, "01600001.dcd")
	os.WriteFile(path, []byte("compressed"), 0644)

	p.process(path)
	p.process(path) // second call on the same (already processed) path is a no-op

	if calls != 1 {
		t.Fatalf("decompressor called %d times, want 1", calls)
	}
}

type countingDecompressor struct {
	inner fakeDecompressor
	calls *int
}

func (c countingDecompressor) Decompress(path string) (string, error) {
	*c.calls++
	return c.inner.Decompress(path)
}

func TestPipelineRunDiscoversGliderAndProcessesArrivingFile(t *testing.T) {
	root := t.TempDir()
	fromGlider := filepath.Join(root, "sebastian", fromGliderDirName)
	if err := os.MkdirAll(fromGlider, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	p := New(root, fakeDecompressor{longName: "k_999-2023-107-0-1", extension: ".dbd"}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	time.Sleep(100 * time.Millisecond)

	path := filepath.Join(fromGlider, "01600001.dcd")
	if err := os.WriteFile(path, []byte("compressed"), 0644); err != nil {
		t.Fatalf("writing file: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(filepath.Join(fromGlider, "k_999-2023-107-0-1.dbd")); err == nil {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("renamed file never appeared")
}
