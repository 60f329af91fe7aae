/*
Copyright (C) 2026 Litecast Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package stream

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Mode selects the broadcast pipeline shape.
type Mode string

const (
	// ModeAudio sequences audio files through stdin and renders a cover frame.
	ModeAudio Mode = "audio"
	// ModeVideo plays a concat playlist, optionally looping, and passes
	// streams through unencoded.
	ModeVideo Mode = "video"
)

// State is a session lifecycle phase.
type State string

const (
	StateStarting State = "starting"
	StateActive   State = "active"
	StateStopping State = "stopping"
	StateStopped  State = "stopped"
)

// Target is one publish destination. PublishURL embeds the stream key and
// never leaves the engine; Name and Platform are safe to show callers.
type Target struct {
	PublishURL string `json:"-"`
	Name       string `json:"name"`
	Platform   string `json:"platform"`
}

// Session is one live broadcast: a media pipeline feeding a fixed set of
// destinations. The destination set is immutable after start.
type Session struct {
	ID           string
	Owner        string
	Mode         Mode
	Destinations []Target
	StartedAt    time.Time

	pipeline  Pipeline
	sequencer *Sequencer
	artifacts []string

	mu     sync.Mutex
	state  State
	reason string

	tearingDown atomic.Bool

	// lastSampledSeconds is the encoded-time watermark already reported to
	// the usage sink. Touched only by the supervision goroutine.
	lastSampledSeconds int64
}

// newSessionID produces ids of the form stream_<unixms>_<randhex>.
func newSessionID() string {
	buf := make([]byte, 4)
	_, _ = rand.Read(buf)
	return fmt.Sprintf("stream_%d_%s", time.Now().UnixMilli(), hex.EncodeToString(buf))
}

// State returns the current lifecycle phase.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Session) setStopReason(reason string) {
	s.mu.Lock()
	s.reason = reason
	s.mu.Unlock()
}

func (s *Session) stopReason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// beginTeardown claims the single teardown slot. Exactly one caller across
// all termination paths wins; the rest see false and back off.
func (s *Session) beginTeardown() bool {
	return s.tearingDown.CompareAndSwap(false, true)
}

// stopping reports whether teardown has been claimed. Used to classify the
// encoder's kill-induced exit as benign.
func (s *Session) stopping() bool {
	return s.tearingDown.Load()
}

// Summary is a point-in-time copy of session state safe to hand to callers.
type Summary struct {
	ID           string    `json:"id"`
	Owner        string    `json:"owner"`
	Mode         Mode      `json:"mode"`
	Destinations []Target  `json:"destinations"`
	State        State     `json:"state"`
	StartedAt    time.Time `json:"started_at"`
	Elapsed      float64   `json:"elapsed_seconds"`
}

// Summary snapshots the session.
func (s *Session) Summary() Summary {
	return Summary{
		ID:           s.ID,
		Owner:        s.Owner,
		Mode:         s.Mode,
		Destinations: append([]Target(nil), s.Destinations...),
		State:        s.State(),
		StartedAt:    s.StartedAt,
		Elapsed:      time.Since(s.StartedAt).Seconds(),
	}
}
