package logbuffer

import (
	"testing"
	"time"
)

func TestRingEvictsOldestWhenFull(t *testing.T) {
	b := New(3)
	for _, msg := range []string{"one", "two", "three", "four"} {
		b.Add(Entry{Message: msg, Level: "info"})
	}

	all := b.All()
	if len(all) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(all))
	}
	if all[0].Message != "two" || all[2].Message != "four" {
		t.Fatalf("unexpected order: %q .. %q", all[0].Message, all[2].Message)
	}
}

func TestQueryFilters(t *testing.T) {
	b := New(10)
	now := time.Now()
	b.Add(Entry{Timestamp: now.Add(-time.Hour), Level: "info", Message: "session launching", Component: "engine"})
	b.Add(Entry{Timestamp: now, Level: "error", Message: "encoder exited", Component: "engine"})
	b.Add(Entry{Timestamp: now, Level: "info", Message: "media uploaded", Component: "media"})

	got := b.Query(QueryParams{Level: "error"})
	if len(got) != 1 || got[0].Message != "encoder exited" {
		t.Fatalf("level filter returned %+v", got)
	}

	got = b.Query(QueryParams{Component: "engine", Since: now.Add(-time.Minute)})
	if len(got) != 1 || got[0].Message != "encoder exited" {
		t.Fatalf("component+since filter returned %+v", got)
	}

	got = b.Query(QueryParams{Search: "UPLOADED"})
	if len(got) != 1 || got[0].Component != "media" {
		t.Fatalf("search filter returned %+v", got)
	}

	got = b.Query(QueryParams{Descending: true, Limit: 1})
	if len(got) != 1 || got[0].Message != "media uploaded" {
		t.Fatalf("descending limit returned %+v", got)
	}
}

func TestWriterParsesZerologLines(t *testing.T) {
	b := New(10)
	w := NewWriter(b, nil)

	line := []byte(`{"level":"warn","component":"quota","user_id":"u1","message":"daily quota exhausted"}`)
	if _, err := w.Write(line); err != nil {
		t.Fatalf("write: %v", err)
	}

	all := b.All()
	if len(all) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(all))
	}
	entry := all[0]
	if entry.Level != "warn" || entry.Component != "quota" || entry.Message != "daily quota exhausted" {
		t.Fatalf("unexpected entry %+v", entry)
	}
	if entry.Fields["user_id"] != "u1" {
		t.Fatalf("expected user_id field, got %+v", entry.Fields)
	}

	stats := b.Stats()
	if stats.Count != 1 || stats.LevelCount["warn"] != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}
