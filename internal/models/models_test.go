package models

import "testing"

func TestPlanAllowsType(t *testing.T) {
	plan := Plan{AllowedTypes: "audio, video"}

	if !plan.AllowsType(MediaAudio) {
		t.Fatal("expected audio to be allowed")
	}
	if !plan.AllowsType(MediaVideo) {
		t.Fatal("expected video to be allowed despite surrounding whitespace")
	}
	// Images ride along with any plan so covers can always be uploaded.
	if !plan.AllowsType(MediaImage) {
		t.Fatal("expected image to be allowed")
	}

	audioOnly := Plan{AllowedTypes: "audio"}
	if audioOnly.AllowsType(MediaVideo) {
		t.Fatal("expected video to be rejected on an audio-only plan")
	}
	if (Plan{}).AllowsType(MediaAudio) {
		t.Fatal("expected everything rejected on an empty allow list")
	}
}
