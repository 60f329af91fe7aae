/*
Copyright (C) 2026 Litecast Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package stream

import (
	"io"
	"os"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Sequencer turns an ordered list of media files into one continuous byte
// stream. The hand-off to the consumer is an io.Pipe, so the sequencer never
// reads ahead further than the encoder consumes. A file that cannot be opened
// or read is skipped and the next one plays; when loop is set the list wraps
// around indefinitely.
type Sequencer struct {
	files  []string
	loop   bool
	onSkip func(path string, err error)
	logger zerolog.Logger

	stopped atomic.Bool
	pr      *io.PipeReader
	pw      *io.PipeWriter
	done    chan struct{}
}

// NewSequencer creates a sequencer over files. onSkip is invoked for every
// file dropped due to a read error; it may be nil.
func NewSequencer(files []string, loop bool, onSkip func(path string, err error), logger zerolog.Logger) *Sequencer {
	pr, pw := io.Pipe()
	return &Sequencer{
		files:  files,
		loop:   loop,
		onSkip: onSkip,
		logger: logger.With().Str("component", "sequencer").Logger(),
		pr:     pr,
		pw:     pw,
		done:   make(chan struct{}),
	}
}

// Start begins streaming in the background and returns the read side of the
// hand-off pipe for the encoder.
func (s *Sequencer) Start() io.Reader {
	go s.run()
	return s.pr
}

// Stop terminates streaming. Closing the read side unblocks a writer stuck in
// a full pipe; the run loop then observes the stop flag and exits. Safe to
// call more than once.
func (s *Sequencer) Stop() {
	if !s.stopped.CompareAndSwap(false, true) {
		return
	}
	s.pr.CloseWithError(errSequencerStopped)
}

// Done is closed when the run loop has exited.
func (s *Sequencer) Done() <-chan struct{} {
	return s.done
}

func (s *Sequencer) run() {
	defer close(s.done)

	for {
		for _, path := range s.files {
			if s.stopped.Load() {
				s.pw.CloseWithError(errSequencerStopped)
				return
			}
			if err := s.streamFile(path); err != nil {
				if s.stopped.Load() {
					s.pw.CloseWithError(errSequencerStopped)
					return
				}
				s.logger.Warn().Err(err).Str("file", path).Msg("skipping unreadable file")
				if s.onSkip != nil {
					s.onSkip(path, err)
				}
			}
		}
		if !s.loop {
			// Clean close delivers EOF to the encoder.
			s.pw.Close()
			return
		}
	}
}

func (s *Sequencer) streamFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = io.Copy(s.pw, f)
	return err
}
