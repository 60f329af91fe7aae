package stream

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func writeTempFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestSequencerStreamsFilesInOrder(t *testing.T) {
	dir := t.TempDir()
	files := []string{
		writeTempFile(t, dir, "a.mp3", "alpha"),
		writeTempFile(t, dir, "b.mp3", "bravo"),
		writeTempFile(t, dir, "c.mp3", "charlie"),
	}

	seq := NewSequencer(files, false, nil, zerolog.Nop())
	data, err := io.ReadAll(seq.Start())
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(data) != "alphabravocharlie" {
		t.Fatalf("unexpected stream content %q", data)
	}
}

func TestSequencerSkipsUnreadableFiles(t *testing.T) {
	dir := t.TempDir()
	var skipped []string
	files := []string{
		writeTempFile(t, dir, "a.mp3", "alpha"),
		filepath.Join(dir, "missing.mp3"),
		writeTempFile(t, dir, "c.mp3", "charlie"),
	}

	seq := NewSequencer(files, false, func(path string, err error) {
		skipped = append(skipped, path)
	}, zerolog.Nop())
	data, err := io.ReadAll(seq.Start())
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(data) != "alphacharlie" {
		t.Fatalf("unexpected stream content %q", data)
	}
	if len(skipped) != 1 || skipped[0] != files[1] {
		t.Fatalf("expected one skip for %s, got %v", files[1], skipped)
	}
}

func TestSequencerLoopWrapsAround(t *testing.T) {
	dir := t.TempDir()
	files := []string{
		writeTempFile(t, dir, "a.mp3", "ab"),
		writeTempFile(t, dir, "b.mp3", "cd"),
	}

	seq := NewSequencer(files, true, nil, zerolog.Nop())
	r := seq.Start()

	buf := make([]byte, 8)
	if _, err := io.ReadFull(r, buf); err != nil {
		t.Fatalf("ReadFull: %v", err)
	}
	if string(buf) != "abcdabcd" {
		t.Fatalf("expected looped content abcdabcd, got %q", buf)
	}

	seq.Stop()
	select {
	case <-seq.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("sequencer did not stop")
	}
}

func TestSequencerStopUnblocksStalledWriter(t *testing.T) {
	dir := t.TempDir()
	files := []string{writeTempFile(t, dir, "a.mp3", "alpha")}

	seq := NewSequencer(files, true, nil, zerolog.Nop())
	_ = seq.Start()

	// Nobody reads the pipe, so the writer is blocked inside the first copy.
	time.Sleep(20 * time.Millisecond)
	seq.Stop()

	select {
	case <-seq.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("stop did not unblock the writer")
	}
}

func TestSequencerStopIsIdempotent(t *testing.T) {
	seq := NewSequencer(nil, false, nil, zerolog.Nop())
	_ = seq.Start()
	seq.Stop()
	seq.Stop()
	select {
	case <-seq.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("sequencer did not finish")
	}
}
