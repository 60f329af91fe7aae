/*
Copyright (C) 2026 Litecast Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package ffmpeg

import (
	"regexp"
	"strconv"
	"time"
)

// Progress represents one ffmpeg stats sample parsed from stderr.
type Progress struct {
	Frame   int64         `json:"frame"`
	FPS     float64       `json:"fps"`
	Bitrate string        `json:"bitrate"`
	Time    time.Duration `json:"time"`
	Speed   float64       `json:"speed"`
}

var (
	frameRe   = regexp.MustCompile(`frame=\s*(\d+)`)
	fpsRe     = regexp.MustCompile(`fps=\s*([\d.]+)`)
	bitrateRe = regexp.MustCompile(`bitrate=\s*([\d.]+\s*\w+/s)`)
	timeRe    = regexp.MustCompile(`time=(\d+):(\d+):(\d+)\.(\d+)`)
	speedRe   = regexp.MustCompile(`speed=\s*([\d.]+)x`)
)

// parseProgressLine updates progress from a stats line. It returns true when
// the line carried a time= field, which marks a complete sample.
func parseProgressLine(line string, progress *Progress) bool {
	if m := frameRe.FindStringSubmatch(line); len(m) > 1 {
		progress.Frame, _ = strconv.ParseInt(m[1], 10, 64)
	}
	if m := fpsRe.FindStringSubmatch(line); len(m) > 1 {
		progress.FPS, _ = strconv.ParseFloat(m[1], 64)
	}
	if m := bitrateRe.FindStringSubmatch(line); len(m) > 1 {
		progress.Bitrate = m[1]
	}
	if m := speedRe.FindStringSubmatch(line); len(m) > 1 {
		progress.Speed, _ = strconv.ParseFloat(m[1], 64)
	}

	m := timeRe.FindStringSubmatch(line)
	if len(m) <= 4 {
		return false
	}
	hours, _ := strconv.Atoi(m[1])
	mins, _ := strconv.Atoi(m[2])
	secs, _ := strconv.Atoi(m[3])
	centis, _ := strconv.Atoi(m[4])
	progress.Time = time.Duration(hours)*time.Hour +
		time.Duration(mins)*time.Minute +
		time.Duration(secs)*time.Second +
		time.Duration(centis)*10*time.Millisecond
	return true
}
