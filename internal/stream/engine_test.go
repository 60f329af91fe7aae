package stream

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/litecasthq/litecast/internal/events"
	"github.com/litecasthq/litecast/internal/ffmpeg"
)

type fakePipeline struct {
	progress chan ffmpeg.Progress
	done     chan error
	startErr error
	killOnce sync.Once
}

func newFakePipeline() *fakePipeline {
	return &fakePipeline{
		progress: make(chan ffmpeg.Progress, 16),
		done:     make(chan error, 1),
	}
}

func (f *fakePipeline) Start(ctx context.Context) error  { return f.startErr }
func (f *fakePipeline) Progress() <-chan ffmpeg.Progress { return f.progress }
func (f *fakePipeline) Done() <-chan error               { return f.done }
func (f *fakePipeline) Diagnostics() []string            { return nil }

func (f *fakePipeline) Kill() error {
	f.killOnce.Do(func() { f.done <- errors.New("signal: killed") })
	return nil
}

type fakeFactory struct {
	mu        sync.Mutex
	pipelines []*fakePipeline
	specs     []PipelineSpec
}

func (f *fakeFactory) queue(p *fakePipeline) {
	f.mu.Lock()
	f.pipelines = append(f.pipelines, p)
	f.mu.Unlock()
}

func (f *fakeFactory) New(spec PipelineSpec) (Pipeline, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.specs = append(f.specs, spec)
	if len(f.pipelines) == 0 {
		return nil, errors.New("no pipeline queued")
	}
	p := f.pipelines[0]
	f.pipelines = f.pipelines[1:]
	return p, nil
}

type recordingBus struct {
	mu     sync.Mutex
	record []struct {
		kind    events.EventType
		payload events.Payload
	}
}

func (b *recordingBus) Publish(kind events.EventType, payload events.Payload) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record = append(b.record, struct {
		kind    events.EventType
		payload events.Payload
	}{kind, payload})
}

func (b *recordingBus) payloads(kind events.EventType) []events.Payload {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []events.Payload
	for _, e := range b.record {
		if e.kind == kind {
			out = append(out, e.payload)
		}
	}
	return out
}

func (b *recordingBus) waitFor(t *testing.T, kind events.EventType, want int) []events.Payload {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if got := b.payloads(kind); len(got) >= want {
			return got
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d %s events, have %d", want, kind, len(b.payloads(kind)))
	return nil
}

type recordingSink struct {
	mu        sync.Mutex
	deltas    []int64
	remaining int64
}

func (s *recordingSink) Record(ctx context.Context, owner string, seconds int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deltas = append(s.deltas, seconds)
	return s.remaining
}

func (s *recordingSink) recorded() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.deltas...)
}

func newTestEngine(t *testing.T, factory PipelineFactory, bus Publisher, timeout time.Duration) *Engine {
	t.Helper()
	return NewEngine(Options{
		Factory:       factory,
		Bus:           bus,
		Logger:        zerolog.Nop(),
		Encode:        EncodeParams{Width: 1280, Height: 720, FrameRate: 24, VideoBitrateKbps: 3000, AudioBitrateKbps: 128},
		StartTimeout:  timeout,
		SampleSeconds: 5,
		WorkDir:       t.TempDir(),
	})
}

func videoRequest(owner string) StartRequest {
	return StartRequest{
		Owner: owner,
		Mode:  ModeVideo,
		Files: []string{"/media/one.mp4", "/media/two.mp4"},
		Targets: []Target{
			{PublishURL: "rtmp://a/live/key1", Name: "Alpha", Platform: "youtube"},
			{PublishURL: "rtmp://b/live/key2", Name: "Beta", Platform: "twitch"},
		},
		Loop: true,
	}
}

func TestStartSessionRejectsEmptyDestinations(t *testing.T) {
	ff := &fakeFactory{}
	bus := &recordingBus{}
	engine := newTestEngine(t, ff, bus, time.Second)

	req := videoRequest("u1")
	req.Targets = nil

	if _, err := engine.StartSession(context.Background(), req); !errors.Is(err, ErrNoDestinations) {
		t.Fatalf("expected ErrNoDestinations, got %v", err)
	}
	if n := engine.ActiveCount("u1"); n != 0 {
		t.Fatalf("expected nothing registered, got %d", n)
	}
	if got := bus.payloads(events.EventStreamStart); len(got) != 0 {
		t.Fatalf("expected no start events, got %d", len(got))
	}
}

func TestStartSessionRejectsEmptyMedia(t *testing.T) {
	engine := newTestEngine(t, &fakeFactory{}, &recordingBus{}, time.Second)

	req := videoRequest("u1")
	req.Files = nil

	if _, err := engine.StartSession(context.Background(), req); !errors.Is(err, ErrNoMedia) {
		t.Fatalf("expected ErrNoMedia, got %v", err)
	}
}

func TestStartSessionConfirmsOnFirstProgress(t *testing.T) {
	ff := &fakeFactory{}
	bus := &recordingBus{}
	engine := newTestEngine(t, ff, bus, time.Second)

	pl := newFakePipeline()
	pl.progress <- ffmpeg.Progress{Time: 6 * time.Second, Bitrate: "3000kbits/s", Speed: 1.0}
	ff.queue(pl)

	summary, err := engine.StartSession(context.Background(), videoRequest("u1"))
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if summary.Owner != "u1" || len(summary.Destinations) != 2 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if summary.Destinations[0].Name != "Alpha" || summary.Destinations[1].Platform != "twitch" {
		t.Fatalf("unexpected destinations %+v", summary.Destinations)
	}

	starts := bus.waitFor(t, events.EventStreamStart, 1)
	if starts[0]["stream_id"] != summary.ID {
		t.Fatalf("start event for wrong session: %v", starts[0])
	}
	if n := engine.ActiveCount("u1"); n != 1 {
		t.Fatalf("expected 1 active session, got %d", n)
	}

	if err := engine.StopSession(summary.ID); err != nil {
		t.Fatalf("StopSession: %v", err)
	}
	bus.waitFor(t, events.EventStreamEnd, 1)
}

func TestStartSessionFailsFastOnImmediateExit(t *testing.T) {
	ff := &fakeFactory{}
	bus := &recordingBus{}
	engine := newTestEngine(t, ff, bus, time.Second)

	pl := newFakePipeline()
	pl.done <- errors.New("exit status 1")
	ff.queue(pl)

	if _, err := engine.StartSession(context.Background(), videoRequest("u1")); err == nil {
		t.Fatal("expected startup failure")
	}
	if n := engine.ActiveCount("u1"); n != 0 {
		t.Fatalf("expected nothing registered after failure, got %d", n)
	}
}

func TestStartSessionTimesOutWithoutConfirmation(t *testing.T) {
	ff := &fakeFactory{}
	engine := newTestEngine(t, ff, &recordingBus{}, 50*time.Millisecond)

	ff.queue(newFakePipeline())

	if _, err := engine.StartSession(context.Background(), videoRequest("u1")); !errors.Is(err, ErrStartTimeout) {
		t.Fatalf("expected ErrStartTimeout, got %v", err)
	}
	if n := engine.ActiveCount("u1"); n != 0 {
		t.Fatalf("expected nothing registered after timeout, got %d", n)
	}
}

func TestDoubleStopProducesSingleTeardown(t *testing.T) {
	ff := &fakeFactory{}
	bus := &recordingBus{}
	engine := newTestEngine(t, ff, bus, time.Second)

	pl := newFakePipeline()
	pl.progress <- ffmpeg.Progress{Time: 6 * time.Second}
	ff.queue(pl)

	summary, err := engine.StartSession(context.Background(), videoRequest("u1"))
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = engine.StopSession(summary.ID)
		}()
	}
	wg.Wait()

	ends := bus.waitFor(t, events.EventStreamEnd, 1)
	time.Sleep(50 * time.Millisecond)
	if got := bus.payloads(events.EventStreamEnd); len(got) != len(ends) || len(got) != 1 {
		t.Fatalf("expected exactly one end event, got %d", len(got))
	}
	if ends[0]["reason"] != "stopped" {
		t.Fatalf("expected reason stopped, got %v", ends[0]["reason"])
	}
	// The kill-induced exit is part of a deliberate stop, never an error.
	if got := bus.payloads(events.EventStreamError); len(got) != 0 {
		t.Fatalf("benign kill surfaced as error: %v", got)
	}
	if n := engine.ActiveCount("u1"); n != 0 {
		t.Fatalf("expected session removed, got %d active", n)
	}
}

func TestFatalExitPublishesErrorAndEnd(t *testing.T) {
	ff := &fakeFactory{}
	bus := &recordingBus{}
	engine := newTestEngine(t, ff, bus, time.Second)

	pl := newFakePipeline()
	pl.progress <- ffmpeg.Progress{Time: 6 * time.Second}
	ff.queue(pl)

	if _, err := engine.StartSession(context.Background(), videoRequest("u1")); err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	pl.done <- errors.New("broken pipe")

	errs := bus.waitFor(t, events.EventStreamError, 1)
	if errs[0]["recoverable"] != false {
		t.Fatalf("expected fatal error event, got %v", errs[0])
	}
	ends := bus.waitFor(t, events.EventStreamEnd, 1)
	if ends[0]["reason"] != "error" {
		t.Fatalf("expected reason error, got %v", ends[0]["reason"])
	}
}

func TestProgressSamplingRespectsGranularity(t *testing.T) {
	ff := &fakeFactory{}
	bus := &recordingBus{}
	engine := newTestEngine(t, ff, bus, time.Second)
	sink := &recordingSink{}
	engine.SetUsageSink(sink)

	pl := newFakePipeline()
	pl.progress <- ffmpeg.Progress{Time: 5 * time.Second}
	ff.queue(pl)

	if _, err := engine.StartSession(context.Background(), videoRequest("u1")); err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	pl.progress <- ffmpeg.Progress{Time: 7 * time.Second}  // below granularity, accumulates
	pl.progress <- ffmpeg.Progress{Time: 10 * time.Second} // crosses: delta 5
	pl.progress <- ffmpeg.Progress{Time: 16 * time.Second} // crosses: delta 6
	close(pl.progress)
	pl.done <- nil

	ends := bus.waitFor(t, events.EventStreamEnd, 1)
	if ends[0]["reason"] != "finished" {
		t.Fatalf("expected reason finished, got %v", ends[0]["reason"])
	}

	deltas := sink.recorded()
	want := []int64{5, 5, 6}
	if len(deltas) != len(want) {
		t.Fatalf("expected deltas %v, got %v", want, deltas)
	}
	for i := range want {
		if deltas[i] != want[i] {
			t.Fatalf("expected deltas %v, got %v", want, deltas)
		}
	}
}

func TestStatsEventsCarryRemainingQuota(t *testing.T) {
	ff := &fakeFactory{}
	bus := &recordingBus{}
	engine := newTestEngine(t, ff, bus, time.Second)
	sink := &recordingSink{remaining: 42}
	engine.SetUsageSink(sink)

	pl := newFakePipeline()
	pl.progress <- ffmpeg.Progress{Time: 6 * time.Second}
	ff.queue(pl)

	if _, err := engine.StartSession(context.Background(), videoRequest("u1")); err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	stats := bus.waitFor(t, events.EventStreamStats, 1)
	if stats[0]["remaining_seconds"] != int64(42) {
		t.Fatalf("expected remaining_seconds 42, got %v", stats[0]["remaining_seconds"])
	}

	close(pl.progress)
	pl.done <- nil
	bus.waitFor(t, events.EventStreamEnd, 1)
}

func TestStopOwnerStopsOnlyOwnerSessions(t *testing.T) {
	ff := &fakeFactory{}
	bus := &recordingBus{}
	engine := newTestEngine(t, ff, bus, time.Second)

	for i := 0; i < 3; i++ {
		pl := newFakePipeline()
		pl.progress <- ffmpeg.Progress{Time: 6 * time.Second}
		ff.queue(pl)
	}

	for _, owner := range []string{"u1", "u1", "u2"} {
		if _, err := engine.StartSession(context.Background(), videoRequest(owner)); err != nil {
			t.Fatalf("StartSession(%s): %v", owner, err)
		}
	}

	if stopped := engine.StopOwner("u1", "quota"); stopped != 2 {
		t.Fatalf("expected 2 stops, got %d", stopped)
	}

	ends := bus.waitFor(t, events.EventStreamEnd, 2)
	for _, end := range ends {
		if end["user_id"] != "u1" {
			t.Fatalf("stopped a foreign session: %v", end)
		}
		if end["reason"] != "quota" {
			t.Fatalf("expected reason quota, got %v", end["reason"])
		}
	}
	if n := engine.ActiveCount("u2"); n != 1 {
		t.Fatalf("expected u2 session untouched, got %d", n)
	}

	engine.StopAll()
	bus.waitFor(t, events.EventStreamEnd, 3)
}

func TestTeardownRemovesPlaylistArtifact(t *testing.T) {
	ff := &fakeFactory{}
	bus := &recordingBus{}
	engine := newTestEngine(t, ff, bus, time.Second)

	pl := newFakePipeline()
	pl.progress <- ffmpeg.Progress{Time: 6 * time.Second}
	ff.queue(pl)

	summary, err := engine.StartSession(context.Background(), videoRequest("u1"))
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	matches, err := filepath.Glob(filepath.Join(engine.workDir, summary.ID+"_playlist.txt"))
	if err != nil || len(matches) != 1 {
		t.Fatalf("expected playlist artifact, got %v (%v)", matches, err)
	}

	_ = engine.StopSession(summary.ID)
	bus.waitFor(t, events.EventStreamEnd, 1)

	matches, _ = filepath.Glob(filepath.Join(engine.workDir, summary.ID+"_playlist.txt"))
	if len(matches) != 0 {
		t.Fatalf("playlist artifact not removed: %v", matches)
	}
}
