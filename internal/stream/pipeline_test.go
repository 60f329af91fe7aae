package stream

import (
	"strings"
	"testing"
)

func TestFactoryVideoRespectsLoopFlag(t *testing.T) {
	factory := &FFmpegFactory{Binary: "ffmpeg"}

	for _, loop := range []bool{true, false} {
		p, err := factory.New(PipelineSpec{
			Mode:         ModeVideo,
			Targets:      []string{"rtmp://a/live/key"},
			PlaylistPath: "/tmp/playlist.txt",
			Loop:         loop,
		})
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		line := p.(*ffmpegPipeline).cmd.String()
		if got := strings.Contains(line, "-stream_loop -1"); got != loop {
			t.Fatalf("loop=%v built %q", loop, line)
		}
	}
}
