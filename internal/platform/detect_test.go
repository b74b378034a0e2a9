package platform

import (
	"runtime"
	"strings"
	"testing"
	"time"
)

func TestDetectToolchainFillsHeader(t *testing.T) {
	info := DetectToolchain()

	if info.OS != runtime.GOOS {
		t.Errorf("OS = %q, want %q", info.OS, runtime.GOOS)
	}
	if info.Arch != runtime.GOARCH {
		t.Errorf("Arch = %q, want %q", info.Arch, runtime.GOARCH)
	}
	if info.DetectedAt.IsZero() {
		t.Error("DetectedAt not set")
	}
}

func TestToolchainConsistency(t *testing.T) {
	info := DetectToolchain()

	// A named toolchain always carries its binary path, and vice versa.
	if (info.Capture == ToolchainNone) != (info.CapturePath == "") {
		t.Errorf("capture = %s but path = %q", info.Capture, info.CapturePath)
	}
	if (info.Playback == ToolchainNone) != (info.PlaybackPath == "") {
		t.Errorf("playback = %s but path = %q", info.Playback, info.PlaybackPath)
	}

	wantAudio := info.Capture != ToolchainNone && info.Playback != ToolchainNone
	if info.HasAudio() != wantAudio {
		t.Errorf("HasAudio() = %v with capture=%s playback=%s", info.HasAudio(), info.Capture, info.Playback)
	}
}

func TestDetectorCaches(t *testing.T) {
	d := NewDetector()

	first := d.Detect()
	second := d.Detect()
	if first != second {
		t.Error("second Detect did not hit the cache")
	}

	d.InvalidateCache()
	third := d.Detect()
	if third == first {
		t.Error("Detect after InvalidateCache returned the stale probe")
	}
}

func TestDetectorCacheExpiry(t *testing.T) {
	d := &Detector{cacheTTL: time.Nanosecond}

	first := d.Detect()
	time.Sleep(time.Millisecond)
	second := d.Detect()
	if first == second {
		t.Error("expired cache entry was reused")
	}
}

func TestInfoString(t *testing.T) {
	info := &Info{OS: "linux", Arch: "amd64", Capture: ToolchainALSA, Playback: ToolchainSox}
	s := info.String()
	for _, want := range []string{"linux", "alsa", "sox"} {
		if !strings.Contains(s, want) {
			t.Errorf("String() = %q, missing %q", s, want)
		}
	}
}

func TestGetDetectorSingleton(t *testing.T) {
	if GetDetector() != GetDetector() {
		t.Error("GetDetector returned two instances")
	}
}
