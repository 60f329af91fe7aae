/*
Copyright (C) 2026 Litecast Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package stream

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/litecasthq/litecast/internal/events"
	"github.com/litecasthq/litecast/internal/ffmpeg"
)

// Publisher is the event bus surface the engine needs.
type Publisher interface {
	Publish(events.EventType, events.Payload)
}

// UsageSink receives encoded-time deltas for quota accounting. Record
// returns the seconds the account can still broadcast today, negative when
// the allowance is unmetered or unknown. Recording is best effort from the
// engine's point of view: enforcement acts back on the engine through
// StopOwner.
type UsageSink interface {
	Record(ctx context.Context, owner string, seconds int64) int64
}

// Options configures the engine.
type Options struct {
	Factory       PipelineFactory
	Bus           Publisher
	Logger        zerolog.Logger
	Encode        EncodeParams
	StartTimeout  time.Duration
	SampleSeconds int64
	WorkDir       string
}

// Engine owns the live-session lifecycle: building pipelines, confirming
// startup, supervising running encoders, and converging every termination
// path onto a single teardown.
type Engine struct {
	factory PipelineFactory
	bus     Publisher
	logger  zerolog.Logger

	encode        EncodeParams
	startTimeout  time.Duration
	sampleSeconds int64
	workDir       string

	registry *Registry

	mu    sync.RWMutex
	usage UsageSink

	wg sync.WaitGroup
}

// NewEngine creates an engine.
func NewEngine(opts Options) *Engine {
	if opts.StartTimeout <= 0 {
		opts.StartTimeout = 15 * time.Second
	}
	if opts.SampleSeconds <= 0 {
		opts.SampleSeconds = 5
	}
	if opts.WorkDir == "" {
		opts.WorkDir = os.TempDir()
	}
	return &Engine{
		factory:       opts.Factory,
		bus:           opts.Bus,
		logger:        opts.Logger.With().Str("component", "engine").Logger(),
		encode:        opts.Encode,
		startTimeout:  opts.StartTimeout,
		sampleSeconds: opts.SampleSeconds,
		workDir:       opts.WorkDir,
		registry:      NewRegistry(),
	}
}

// SetUsageSink wires quota accounting in after construction. The tracker
// needs the engine for owner teardown, so the dependency runs both ways.
func (e *Engine) SetUsageSink(sink UsageSink) {
	e.mu.Lock()
	e.usage = sink
	e.mu.Unlock()
}

func (e *Engine) usageSink() UsageSink {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.usage
}

// StartRequest describes one session to start.
type StartRequest struct {
	Owner       string
	Mode        Mode
	Files       []string
	AudioFormat string
	CoverPath   string
	Targets     []Target
	Loop        bool

	// Artifacts are caller-staged temp files (object-storage copies) the
	// session owns; teardown removes them.
	Artifacts []string
}

// StartSession builds and launches a broadcast session. It returns only after
// the encoder confirms startup with its first progress sample, or fails fast
// on immediate exit or start timeout.
func (e *Engine) StartSession(ctx context.Context, req StartRequest) (Summary, error) {
	if len(req.Files) == 0 {
		return Summary{}, ErrNoMedia
	}
	if len(req.Targets) == 0 {
		return Summary{}, ErrNoDestinations
	}

	session := &Session{
		ID:           newSessionID(),
		Owner:        req.Owner,
		Mode:         req.Mode,
		Destinations: append([]Target(nil), req.Targets...),
		StartedAt:    time.Now(),
		state:        StateStarting,
		artifacts:    append([]string(nil), req.Artifacts...),
	}

	urls := make([]string, 0, len(session.Destinations))
	for _, target := range session.Destinations {
		urls = append(urls, target.PublishURL)
	}
	spec := PipelineSpec{
		Mode:    req.Mode,
		Targets: urls,
		Encode:  e.encode,
	}

	switch req.Mode {
	case ModeAudio:
		session.sequencer = NewSequencer(req.Files, req.Loop, func(path string, err error) {
			e.bus.Publish(events.EventStreamError, events.Payload{
				"stream_id":   session.ID,
				"user_id":     session.Owner,
				"error":       err.Error(),
				"file":        path,
				"recoverable": true,
			})
		}, e.logger)
		spec.AudioSource = session.sequencer.Start()
		spec.AudioFormat = req.AudioFormat
		spec.CoverPath = req.CoverPath
	case ModeVideo:
		playlist, err := writeConcatPlaylist(e.workDir, session.ID, req.Files)
		if err != nil {
			return Summary{}, err
		}
		session.artifacts = append(session.artifacts, playlist)
		spec.PlaylistPath = playlist
		spec.Loop = req.Loop
	default:
		return Summary{}, fmt.Errorf("unknown mode %q", req.Mode)
	}

	pipeline, err := e.factory.New(spec)
	if err != nil {
		e.discard(session)
		return Summary{}, fmt.Errorf("build pipeline: %w", err)
	}
	session.pipeline = pipeline

	e.registry.Register(session)

	if err := pipeline.Start(ctx); err != nil {
		e.registry.Remove(session.ID)
		e.discard(session)
		return Summary{}, fmt.Errorf("start encoder: %w", err)
	}

	e.logger.Info().
		Str("stream_id", session.ID).
		Str("user_id", session.Owner).
		Str("mode", string(req.Mode)).
		Int("destinations", len(session.Destinations)).
		Msg("session launching")

	first, err := e.awaitStartup(pipeline)
	if err != nil {
		session.beginTeardown()
		session.setState(StateStopping)
		if session.sequencer != nil {
			session.sequencer.Stop()
		}
		pipeline.Kill()
		e.registry.Remove(session.ID)
		e.discard(session)
		session.setState(StateStopped)
		return Summary{}, err
	}

	session.setState(StateActive)
	e.bus.Publish(events.EventStreamStart, events.Payload{
		"stream_id":    session.ID,
		"user_id":      session.Owner,
		"mode":         string(session.Mode),
		"destinations": len(session.Destinations),
	})

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.supervise(session, first)
	}()

	return session.Summary(), nil
}

// awaitStartup blocks until the encoder proves it is running. The first
// progress sample is the confirmation signal; an exit before that is a
// startup failure.
func (e *Engine) awaitStartup(pipeline Pipeline) (*ffmpeg.Progress, error) {
	timer := time.NewTimer(e.startTimeout)
	defer timer.Stop()

	select {
	case p, ok := <-pipeline.Progress():
		if !ok {
			err := <-pipeline.Done()
			return nil, e.startupError(pipeline, err)
		}
		return &p, nil
	case err := <-pipeline.Done():
		return nil, e.startupError(pipeline, err)
	case <-timer.C:
		return nil, ErrStartTimeout
	}
}

func (e *Engine) startupError(pipeline Pipeline, exitErr error) error {
	detail := strings.Join(pipeline.Diagnostics(), "; ")
	if exitErr == nil {
		exitErr = fmt.Errorf("encoder exited before startup")
	}
	if detail != "" {
		return fmt.Errorf("encoder failed to start: %w (%s)", exitErr, detail)
	}
	return fmt.Errorf("encoder failed to start: %w", exitErr)
}

// supervise is the sole consumer of a session's progress and exit channels.
func (e *Engine) supervise(session *Session, first *ffmpeg.Progress) {
	if first != nil {
		e.sample(session, *first)
	}

	for {
		select {
		case p, ok := <-session.pipeline.Progress():
			if !ok {
				e.complete(session, <-session.pipeline.Done())
				return
			}
			e.sample(session, p)
		case err := <-session.pipeline.Done():
			e.complete(session, err)
			return
		}
	}
}

// sample reports encoded time against the last watermark. Deltas below the
// granularity floor accumulate until they cross it.
func (e *Engine) sample(session *Session, p ffmpeg.Progress) {
	current := int64(p.Time / time.Second)
	delta := current - session.lastSampledSeconds
	if delta < e.sampleSeconds {
		return
	}
	session.lastSampledSeconds = current

	remaining := int64(-1)
	if sink := e.usageSink(); sink != nil {
		remaining = sink.Record(context.Background(), session.Owner, delta)
	}
	e.bus.Publish(events.EventStreamStats, events.Payload{
		"stream_id":         session.ID,
		"user_id":           session.Owner,
		"seconds":           current,
		"delta":             delta,
		"bitrate":           p.Bitrate,
		"speed":             p.Speed,
		"remaining_seconds": remaining,
	})
}

// complete finishes a session after its encoder exits. Every termination
// path funnels here exactly once.
func (e *Engine) complete(session *Session, exitErr error) {
	// When beginTeardown succeeds here nobody initiated a stop: the encoder
	// ended on its own, cleanly or not.
	selfTerminated := session.beginTeardown()
	session.setState(StateStopping)

	if session.sequencer != nil {
		session.sequencer.Stop()
	}
	e.discard(session)
	e.registry.Remove(session.ID)
	session.setState(StateStopped)

	reason := session.stopReason()
	fatal := selfTerminated && exitErr != nil && !killExitError(exitErr)
	switch {
	case fatal:
		reason = "error"
		e.bus.Publish(events.EventStreamError, events.Payload{
			"stream_id":   session.ID,
			"user_id":     session.Owner,
			"error":       exitErr.Error(),
			"detail":      strings.Join(session.pipeline.Diagnostics(), "; "),
			"recoverable": false,
		})
	case reason == "":
		reason = "finished"
	}

	e.bus.Publish(events.EventStreamEnd, events.Payload{
		"stream_id":        session.ID,
		"user_id":          session.Owner,
		"reason":           reason,
		"duration_seconds": time.Since(session.StartedAt).Seconds(),
	})

	log := e.logger.Info()
	if fatal {
		log = e.logger.Error().Err(exitErr)
	}
	log.Str("stream_id", session.ID).Str("reason", reason).Msg("session ended")
}

// discard removes ephemeral artifacts such as playlist manifests.
func (e *Engine) discard(session *Session) {
	for _, path := range session.artifacts {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			e.logger.Warn().Err(err).Str("path", path).Msg("failed to remove artifact")
		}
	}
}

// initiateStop claims teardown and signals the pipeline. The supervision
// goroutine observes the exit and completes cleanup. Losing the claim means
// a stop is already underway.
func (e *Engine) initiateStop(session *Session, reason string) bool {
	if !session.beginTeardown() {
		return false
	}
	session.setStopReason(reason)
	session.setState(StateStopping)

	// Ordering matters: the stopping flag is set before the kill so the
	// resulting exit is classified as benign, never surfaced as a failure.
	if session.sequencer != nil {
		session.sequencer.Stop()
	}
	if err := session.pipeline.Kill(); err != nil {
		e.logger.Warn().Err(err).Str("stream_id", session.ID).Msg("kill failed")
	}
	return true
}

// StopSession stops one session by id.
func (e *Engine) StopSession(id string) error {
	session := e.registry.Get(id)
	if session == nil {
		return ErrSessionNotFound
	}
	e.initiateStop(session, "stopped")
	return nil
}

// StopOwner stops every session the owner has and returns how many stops it
// initiated.
func (e *Engine) StopOwner(owner, reason string) int {
	stopped := 0
	for _, session := range e.registry.sessionsByOwner(owner) {
		if e.initiateStop(session, reason) {
			stopped++
		}
	}
	return stopped
}

// StopAll stops every session.
func (e *Engine) StopAll() {
	for _, session := range e.registry.all() {
		e.initiateStop(session, "stopped")
	}
}

// ListActive returns summaries of the owner's sessions.
func (e *Engine) ListActive(owner string) []Summary {
	return e.registry.ListByOwner(owner)
}

// ActiveCount returns how many sessions the owner has live.
func (e *Engine) ActiveCount(owner string) int {
	return e.registry.CountByOwner(owner)
}

// Shutdown stops all sessions and waits for supervision to drain or ctx to
// expire.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.StopAll()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
