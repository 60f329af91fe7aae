/*
Copyright (C) 2026 Litecast Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package ffmpeg

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Command represents an ffmpeg invocation.
type Command struct {
	Binary string
	Args   []string
	Stdin  io.Reader

	cmd     *exec.Cmd
	started time.Time
	mu      sync.RWMutex

	stderrLines []string
	stderrMu    sync.RWMutex
}

// CommandBuilder builds ffmpeg argument lists with a fluent API.
type CommandBuilder struct {
	binary     string
	logLevel   string
	globalArgs []string
	inputs     []input
	filterArgs []string
	outputArgs []string
	output     string
}

type input struct {
	args   []string
	source string
}

// NewCommandBuilder creates a builder for the given ffmpeg binary.
func NewCommandBuilder(ffmpegPath string) *CommandBuilder {
	return &CommandBuilder{
		binary:   ffmpegPath,
		logLevel: "error",
	}
}

// LogLevel sets the ffmpeg log level.
func (b *CommandBuilder) LogLevel(level string) *CommandBuilder {
	b.logLevel = level
	return b
}

// Stats enables the periodic progress stats line on stderr.
func (b *CommandBuilder) Stats() *CommandBuilder {
	b.globalArgs = append(b.globalArgs, "-stats")
	return b
}

// Input adds an input source with its preceding input arguments.
func (b *CommandBuilder) Input(source string, args ...string) *CommandBuilder {
	b.inputs = append(b.inputs, input{args: args, source: source})
	return b
}

// PipedAudioInput adds a realtime audio input read from stdin.
func (b *CommandBuilder) PipedAudioInput(format string) *CommandBuilder {
	return b.Input("pipe:0", "-re", "-f", format)
}

// LoopedImageInput adds an endlessly looping still image input.
func (b *CommandBuilder) LoopedImageInput(path string) *CommandBuilder {
	return b.Input(path, "-loop", "1", "-framerate", "2")
}

// ConcatPlaylistInput adds a concat demuxer input. With loop the playlist
// repeats forever; without it ffmpeg exits at the end of the last entry.
func (b *CommandBuilder) ConcatPlaylistInput(path string, loop bool) *CommandBuilder {
	args := []string{"-re"}
	if loop {
		args = append(args, "-stream_loop", "-1")
	}
	args = append(args, "-f", "concat", "-safe", "0")
	return b.Input(path, args...)
}

// VideoFilter appends a video filter expression.
func (b *CommandBuilder) VideoFilter(filter string) *CommandBuilder {
	b.filterArgs = append(b.filterArgs, filter)
	return b
}

// ScalePad scales to the target frame preserving aspect and pads to fill.
func (b *CommandBuilder) ScalePad(width, height int) *CommandBuilder {
	return b.VideoFilter(fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2",
		width, height, width, height))
}

// H264CBR configures libx264 constant-bitrate output suitable for RTMP ingest.
func (b *CommandBuilder) H264CBR(bitrateKbps, frameRate int) *CommandBuilder {
	rate := strconv.Itoa(bitrateKbps) + "k"
	b.outputArgs = append(b.outputArgs,
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-tune", "zerolatency",
		"-pix_fmt", "yuv420p",
		"-r", strconv.Itoa(frameRate),
		"-g", strconv.Itoa(frameRate*2),
		"-b:v", rate,
		"-minrate", rate,
		"-maxrate", rate,
		"-bufsize", strconv.Itoa(bitrateKbps*2)+"k",
	)
	return b
}

// AAC configures AAC audio output.
func (b *CommandBuilder) AAC(bitrateKbps int) *CommandBuilder {
	b.outputArgs = append(b.outputArgs,
		"-c:a", "aac",
		"-b:a", strconv.Itoa(bitrateKbps)+"k",
		"-ar", "44100",
	)
	return b
}

// CopyCodecs passes streams through without re-encoding.
func (b *CommandBuilder) CopyCodecs() *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-c", "copy")
	return b
}

// Map selects a stream for the output.
func (b *CommandBuilder) Map(specifier string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-map", specifier)
	return b
}

// FLVOutput sets a single FLV output target.
func (b *CommandBuilder) FLVOutput(url string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-f", "flv")
	b.output = url
	return b
}

// TeeOutput fans the encoded streams out to every target through the tee
// muxer, so the media is encoded once regardless of destination count.
// A single target falls back to a plain FLV output.
func (b *CommandBuilder) TeeOutput(urls []string) *CommandBuilder {
	if len(urls) == 1 {
		return b.FLVOutput(urls[0])
	}
	sinks := make([]string, 0, len(urls))
	for _, u := range urls {
		sinks = append(sinks, "[f=flv:onfail=abort]"+u)
	}
	b.outputArgs = append(b.outputArgs, "-f", "tee")
	b.output = strings.Join(sinks, "|")
	return b
}

// Build assembles the final command.
func (b *CommandBuilder) Build() *Command {
	args := []string{"-hide_banner", "-loglevel", b.logLevel}
	args = append(args, b.globalArgs...)

	for _, in := range b.inputs {
		args = append(args, in.args...)
		args = append(args, "-i", in.source)
	}

	if len(b.filterArgs) > 0 {
		args = append(args, "-vf", strings.Join(b.filterArgs, ","))
	}

	args = append(args, b.outputArgs...)
	args = append(args, b.output)

	return &Command{
		Binary:      b.binary,
		Args:        args,
		stderrLines: make([]string, 0, 64),
	}
}

// String returns the command line for logging.
func (c *Command) String() string {
	return c.Binary + " " + strings.Join(c.Args, " ")
}

// Start launches the process and begins draining stderr into the progress
// channel and the in-memory ring buffer. The caller owns waiting via Wait.
func (c *Command) Start(ctx context.Context, progressCh chan<- Progress) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cmd = exec.CommandContext(ctx, c.Binary, c.Args...)
	if c.Stdin != nil {
		c.cmd.Stdin = c.Stdin
	}

	stderr, err := c.cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}

	if err := c.cmd.Start(); err != nil {
		return fmt.Errorf("starting ffmpeg: %w", err)
	}
	c.started = time.Now()

	go c.drainStderr(stderr, progressCh)
	return nil
}

// Wait blocks until the process exits.
func (c *Command) Wait() error {
	c.mu.RLock()
	cmd := c.cmd
	c.mu.RUnlock()

	if cmd == nil {
		return fmt.Errorf("command not started")
	}
	return cmd.Wait()
}

// Kill terminates the process immediately.
func (c *Command) Kill() error {
	c.mu.RLock()
	cmd := c.cmd
	c.mu.RUnlock()

	if cmd == nil || cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}

// Duration returns how long the process has been running.
func (c *Command) Duration() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.started.IsZero() {
		return 0
	}
	return time.Since(c.started)
}

// StderrTail returns the most recent stderr lines for diagnostics.
func (c *Command) StderrTail() []string {
	c.stderrMu.RLock()
	defer c.stderrMu.RUnlock()

	lines := make([]string, len(c.stderrLines))
	copy(lines, c.stderrLines)
	return lines
}

// drainStderr keeps a ring buffer of recent lines and emits parsed progress.
func (c *Command) drainStderr(r io.Reader, progressCh chan<- Progress) {
	const maxLines = 64

	scanner := bufio.NewScanner(r)
	var progress Progress

	for scanner.Scan() {
		line := scanner.Text()

		c.stderrMu.Lock()
		if len(c.stderrLines) >= maxLines {
			c.stderrLines = c.stderrLines[1:]
		}
		c.stderrLines = append(c.stderrLines, line)
		c.stderrMu.Unlock()

		if progressCh == nil || !parseProgressLine(line, &progress) {
			continue
		}

		select {
		case progressCh <- progress:
		default:
		}
	}

	if progressCh != nil {
		close(progressCh)
	}
}
