/*
Copyright (C) 2026 Litecast Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package stream

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// writeConcatPlaylist writes a concat demuxer manifest for files and returns
// its path. The manifest is an ephemeral artifact removed at teardown.
func writeConcatPlaylist(dir, sessionID string, files []string) (string, error) {
	var b strings.Builder
	for _, f := range files {
		// Single quotes inside a path terminate the quoted string, escape
		// the quote, then reopen: the concat demuxer quoting rule.
		escaped := strings.ReplaceAll(f, "'", `'\''`)
		fmt.Fprintf(&b, "file '%s'\n", escaped)
	}

	path := filepath.Join(dir, sessionID+"_playlist.txt")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", fmt.Errorf("write playlist: %w", err)
	}
	return path, nil
}
