// Package platform detects the host audio toolchain: which capture
// and playback binaries are installed and how the session should
// invoke them for raw PCM.
package platform

import (
	"fmt"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Toolchain identifies a family of audio command-line tools.
type Toolchain string

const (
	ToolchainALSA Toolchain = "alsa" // arecord / aplay
	ToolchainSox  Toolchain = "sox"  // sox with the default device
	ToolchainNone Toolchain = "none" // nothing usable found
)

// Info describes the detected audio toolchain.
type Info struct {
	OS   string `json:"os"`
	Arch string `json:"arch"`

	Capture      Toolchain `json:"capture"`
	CapturePath  string    `json:"capture_path,omitempty"`
	Playback     Toolchain `json:"playback"`
	PlaybackPath string    `json:"playback_path,omitempty"`

	DetectedAt time.Time `json:"detected_at"`
}

// String returns a human-readable description of the toolchain.
func (i *Info) String() string {
	return fmt.Sprintf("%s/%s - capture: %s, playback: %s", i.OS, i.Arch, i.Capture, i.Playback)
}

// HasAudio reports whether both directions have a usable tool.
func (i *Info) HasAudio() bool {
	return i.Capture != ToolchainNone && i.Playback != ToolchainNone
}

// Detector provides cached toolchain detection. PATH rarely changes
// mid-session, so repeated device opens reuse one probe.
type Detector struct {
	mu       sync.RWMutex
	cached   *Info
	cacheTTL time.Duration
}

// NewDetector creates a detector with a default 10-minute cache.
func NewDetector() *Detector {
	return &Detector{cacheTTL: 10 * time.Minute}
}

var (
	globalDetector     *Detector
	globalDetectorOnce sync.Once
)

// GetDetector returns the global detector singleton.
func GetDetector() *Detector {
	globalDetectorOnce.Do(func() {
		globalDetector = NewDetector()
	})
	return globalDetector
}

// Detect returns the toolchain info, probing PATH on a cache miss.
func (d *Detector) Detect() *Info {
	d.mu.RLock()
	if d.cached != nil && time.Since(d.cached.DetectedAt) < d.cacheTTL {
		cached := d.cached
		d.mu.RUnlock()
		return cached
	}
	d.mu.RUnlock()

	info := DetectToolchain()

	d.mu.Lock()
	d.cached = info
	d.mu.Unlock()

	return info
}

// InvalidateCache clears the cached info so the next Detect re-probes.
func (d *Detector) InvalidateCache() {
	d.mu.Lock()
	d.cached = nil
	d.mu.Unlock()
	log.Debug().Msg("platform: toolchain cache invalidated")
}

// DetectToolchain probes PATH for the audio tools. ALSA is preferred
// where present; sox covers macOS and ALSA-less Linux setups.
func DetectToolchain() *Info {
	info := &Info{
		OS:         runtime.GOOS,
		Arch:       runtime.GOARCH,
		Capture:    ToolchainNone,
		Playback:   ToolchainNone,
		DetectedAt: time.Now(),
	}

	if path, err := exec.LookPath("arecord"); err == nil {
		info.Capture = ToolchainALSA
		info.CapturePath = path
	} else if path, err := exec.LookPath("sox"); err == nil {
		info.Capture = ToolchainSox
		info.CapturePath = path
	}

	if path, err := exec.LookPath("aplay"); err == nil {
		info.Playback = ToolchainALSA
		info.PlaybackPath = path
	} else if path, err := exec.LookPath("sox"); err == nil {
		info.Playback = ToolchainSox
		info.PlaybackPath = path
	}

	log.Debug().
		Str("capture", string(info.Capture)).
		Str("playback", string(info.Playback)).
		Msg("platform: audio toolchain detected")

	return info
}
