package audio

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/normanking/cortex-voice/internal/platform"
)

// execCapture runs a recording process (arecord or sox) and reads
// fixed-size chunks from its stdout.
type execCapture struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser

	closeOnce sync.Once
	closeErr  error
}

// NewCapture starts a capture process using the detected toolchain.
func NewCapture() (CaptureDevice, error) {
	info := platform.GetDetector().Detect()
	switch info.Capture {
	case platform.ToolchainALSA:
		return startCapture(info.CapturePath,
			"-q",
			"-f", "S16_LE",
			"-c", strconv.Itoa(Channels),
			"-r", strconv.Itoa(CaptureRate),
			"-t", "raw",
		)
	case platform.ToolchainSox:
		return startCapture(info.CapturePath,
			"-q", "-d",
			"-t", "raw",
			"-b", "16", "-e", "signed-integer",
			"-c", strconv.Itoa(Channels),
			"-r", strconv.Itoa(CaptureRate),
			"-",
		)
	}
	return nil, fmt.Errorf("audio: no capture tool found (need arecord or sox)")
}

func startCapture(path string, args ...string) (CaptureDevice, error) {
	cmd := exec.Command(path, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("audio: capture stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("audio: start capture %q: %w", path, err)
	}

	log.Debug().Str("tool", path).Int("rate", CaptureRate).Msg("audio: capture started")
	return &execCapture{cmd: cmd, stdout: stdout}, nil
}

// Read blocks for one full chunk. A short final read at process death
// is returned as-is before the error surfaces on the next call.
func (c *execCapture) Read(ctx context.Context) ([]byte, error) {
	type result struct {
		buf []byte
		err error
	}
	ch := make(chan result, 1)
	go func() {
		buf := make([]byte, ChunkBytes)
		n, err := io.ReadFull(c.stdout, buf)
		ch <- result{buf[:n], err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.err != nil && len(r.buf) == 0 {
			return nil, fmt.Errorf("audio: capture read: %w", r.err)
		}
		return r.buf, nil
	}
}

func (c *execCapture) Close() error {
	c.closeOnce.Do(func() {
		if c.cmd.Process != nil {
			c.cmd.Process.Kill()
		}
		c.closeErr = c.cmd.Wait()
		c.stdout.Close()
		log.Debug().Msg("audio: capture closed")
	})
	return c.closeErr
}

// execPlayback runs a playback process (aplay or sox) and writes PCM
// to its stdin.
type execPlayback struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser

	writeMu sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

// NewPlayback starts a playback process using the detected toolchain.
func NewPlayback() (PlaybackDevice, error) {
	info := platform.GetDetector().Detect()
	switch info.Playback {
	case platform.ToolchainALSA:
		return startPlayback(info.PlaybackPath,
			"-q",
			"-f", "S16_LE",
			"-c", strconv.Itoa(Channels),
			"-r", strconv.Itoa(PlaybackRate),
			"-t", "raw",
		)
	case platform.ToolchainSox:
		return startPlayback(info.PlaybackPath,
			"-q",
			"-t", "raw",
			"-b", "16", "-e", "signed-integer",
			"-c", strconv.Itoa(Channels),
			"-r", strconv.Itoa(PlaybackRate),
			"-", "-d",
		)
	}
	return nil, fmt.Errorf("audio: no playback tool found (need aplay or sox)")
}

func startPlayback(path string, args ...string) (PlaybackDevice, error) {
	cmd := exec.Command(path, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("audio: playback stdin pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("audio: start playback %q: %w", path, err)
	}

	log.Debug().Str("tool", path).Int("rate", PlaybackRate).Msg("audio: playback started")
	return &execPlayback{cmd: cmd, stdin: stdin}, nil
}

func (p *execPlayback) Write(ctx context.Context, pcm []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	if _, err := p.stdin.Write(pcm); err != nil {
		return fmt.Errorf("audio: playback write: %w", err)
	}
	return nil
}

func (p *execPlayback) Close() error {
	p.closeOnce.Do(func() {
		p.stdin.Close()
		if p.cmd.Process != nil {
			p.cmd.Process.Kill()
		}
		p.closeErr = p.cmd.Wait()
		log.Debug().Msg("audio: playback closed")
	})
	return p.closeErr
}
