package stream

import (
	"testing"
	"time"
)

func newTestSession(id, owner string) *Session {
	return &Session{
		ID:           id,
		Owner:        owner,
		Mode:         ModeAudio,
		Destinations: []Target{{PublishURL: "rtmp://a/live/key", Name: "Main", Platform: "youtube"}},
		StartedAt:    time.Now(),
		state:        StateActive,
	}
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	s := newTestSession("stream_1_aa", "u1")
	r.Register(s)

	if got := r.Get("stream_1_aa"); got != s {
		t.Fatalf("expected registered session, got %v", got)
	}
	if got := r.Get("nope"); got != nil {
		t.Fatalf("expected nil for unknown id, got %v", got)
	}
	if r.Count() != 1 {
		t.Fatalf("expected count 1, got %d", r.Count())
	}
}

func TestRegistryListByOwnerReturnsOnlyOwned(t *testing.T) {
	r := NewRegistry()
	r.Register(newTestSession("s1", "u1"))
	r.Register(newTestSession("s2", "u1"))
	r.Register(newTestSession("s3", "u2"))

	owned := r.ListByOwner("u1")
	if len(owned) != 2 {
		t.Fatalf("expected 2 sessions for u1, got %d", len(owned))
	}
	for _, summary := range owned {
		if summary.Owner != "u1" {
			t.Fatalf("foreign session in owner listing: %+v", summary)
		}
	}
	if n := r.CountByOwner("u2"); n != 1 {
		t.Fatalf("expected 1 session for u2, got %d", n)
	}
	if got := r.ListByOwner("u3"); len(got) != 0 {
		t.Fatalf("expected empty list for unknown owner, got %v", got)
	}
}

func TestRegistryRemoveCleansOwnerIndex(t *testing.T) {
	r := NewRegistry()
	r.Register(newTestSession("s1", "u1"))
	r.Remove("s1")
	r.Remove("s1") // removing twice is a no-op

	if r.Get("s1") != nil {
		t.Fatal("expected session removed")
	}
	if n := r.CountByOwner("u1"); n != 0 {
		t.Fatalf("expected empty owner index, got %d", n)
	}
}
