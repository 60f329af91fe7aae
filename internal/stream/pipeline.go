/*
Copyright (C) 2026 Litecast Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package stream

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/litecasthq/litecast/internal/ffmpeg"
)

// EncodeParams are the fixed output encoding settings for the audio path.
type EncodeParams struct {
	Width            int
	Height           int
	FrameRate        int
	VideoBitrateKbps int
	AudioBitrateKbps int
}

// PipelineSpec describes one broadcast pipeline to build.
type PipelineSpec struct {
	Mode    Mode
	Targets []string
	Encode  EncodeParams

	// Audio path
	AudioSource io.Reader
	AudioFormat string
	CoverPath   string

	// Video path
	PlaylistPath string
	Loop         bool
}

// Pipeline is a running (or startable) encoder process.
type Pipeline interface {
	// Start launches the encoder. Progress samples arrive on Progress until
	// the process exits, then Done yields the exit error.
	Start(ctx context.Context) error
	Progress() <-chan ffmpeg.Progress
	Done() <-chan error
	Kill() error
	// Diagnostics returns recent encoder output for error reporting.
	Diagnostics() []string
}

// PipelineFactory builds pipelines. Tests substitute a fake.
type PipelineFactory interface {
	New(spec PipelineSpec) (Pipeline, error)
}

// FFmpegFactory builds pipelines backed by an ffmpeg process.
type FFmpegFactory struct {
	Binary string
}

// New builds the pipeline for spec.
func (f *FFmpegFactory) New(spec PipelineSpec) (Pipeline, error) {
	builder := ffmpeg.NewCommandBuilder(f.Binary).Stats()

	switch spec.Mode {
	case ModeAudio:
		builder.PipedAudioInput(spec.AudioFormat)
		if spec.CoverPath != "" {
			builder.LoopedImageInput(spec.CoverPath)
		} else {
			// Solid-color fallback frame when the account has no cover image.
			builder.Input(
				fmt.Sprintf("color=c=0x202030:s=%dx%d:r=%d", spec.Encode.Width, spec.Encode.Height, spec.Encode.FrameRate),
				"-f", "lavfi")
		}
		builder.
			ScalePad(spec.Encode.Width, spec.Encode.Height).
			Map("1:v").
			Map("0:a").
			H264CBR(spec.Encode.VideoBitrateKbps, spec.Encode.FrameRate).
			AAC(spec.Encode.AudioBitrateKbps)
	case ModeVideo:
		builder.
			ConcatPlaylistInput(spec.PlaylistPath, spec.Loop).
			CopyCodecs()
	default:
		return nil, fmt.Errorf("unknown pipeline mode %q", spec.Mode)
	}

	builder.TeeOutput(spec.Targets)

	cmd := builder.Build()
	cmd.Stdin = spec.AudioSource

	return &ffmpegPipeline{
		cmd:      cmd,
		progress: make(chan ffmpeg.Progress, 16),
		done:     make(chan error, 1),
	}, nil
}

type ffmpegPipeline struct {
	cmd      *ffmpeg.Command
	progress chan ffmpeg.Progress
	done     chan error
}

func (p *ffmpegPipeline) Start(ctx context.Context) error {
	if err := p.cmd.Start(ctx, p.progress); err != nil {
		return err
	}
	go func() {
		p.done <- p.cmd.Wait()
	}()
	return nil
}

func (p *ffmpegPipeline) Progress() <-chan ffmpeg.Progress { return p.progress }
func (p *ffmpegPipeline) Done() <-chan error               { return p.done }
func (p *ffmpegPipeline) Kill() error                      { return p.cmd.Kill() }

func (p *ffmpegPipeline) Diagnostics() []string {
	tail := p.cmd.StderrTail()
	// The last few lines carry the actual failure reason.
	if len(tail) > 5 {
		tail = tail[len(tail)-5:]
	}
	return tail
}

// killExitError reports whether err is the exit produced by Kill.
func killExitError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "signal: killed")
}
