/*
Copyright (C) 2026 Litecast Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package stream

import "errors"

var (
	// ErrNoMedia is returned when a session is started without any media files.
	ErrNoMedia = errors.New("no media files provided")

	// ErrNoDestinations is returned when a session is started without any
	// publish destinations.
	ErrNoDestinations = errors.New("no destinations provided")

	// ErrSessionNotFound is returned when the requested session id is not
	// registered.
	ErrSessionNotFound = errors.New("session not found")

	// ErrStartTimeout is returned when the encoder produces neither a progress
	// sample nor an exit within the start confirmation window.
	ErrStartTimeout = errors.New("encoder did not confirm startup in time")

	// errSequencerStopped propagates through the hand-off pipe on stop.
	errSequencerStopped = errors.New("sequencer stopped")
)
