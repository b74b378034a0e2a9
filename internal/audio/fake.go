package audio

import (
	"context"
	"errors"
	"sync"
)

// ErrDeviceClosed is returned by the fakes after Close.
var ErrDeviceClosed = errors.New("audio: device closed")

// FakeCapture is an in-memory CaptureDevice fed by tests.
type FakeCapture struct {
	chunks chan []byte
	done   chan struct{}
	once   sync.Once
}

// NewFakeCapture returns a capture fake with room for buffered chunks.
func NewFakeCapture() *FakeCapture {
	return &FakeCapture{
		chunks: make(chan []byte, 256),
		done:   make(chan struct{}),
	}
}

// Feed queues one chunk for a later Read.
func (f *FakeCapture) Feed(pcm []byte) {
	select {
	case f.chunks <- pcm:
	case <-f.done:
	}
}

func (f *FakeCapture) Read(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-f.done:
		return nil, ErrDeviceClosed
	case pcm := <-f.chunks:
		return pcm, nil
	}
}

func (f *FakeCapture) Close() error {
	f.once.Do(func() { close(f.done) })
	return nil
}

// FakePlayback is an in-memory PlaybackDevice recording what was
// written.
type FakePlayback struct {
	mu      sync.Mutex
	written [][]byte

	done chan struct{}
	once sync.Once
}

// NewFakePlayback returns a playback fake.
func NewFakePlayback() *FakePlayback {
	return &FakePlayback{done: make(chan struct{})}
}

func (f *FakePlayback) Write(ctx context.Context, pcm []byte) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-f.done:
		return ErrDeviceClosed
	default:
	}

	f.mu.Lock()
	buf := make([]byte, len(pcm))
	copy(buf, pcm)
	f.written = append(f.written, buf)
	f.mu.Unlock()
	return nil
}

// Written returns a copy of every chunk written so far.
func (f *FakePlayback) Written() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.written))
	copy(out, f.written)
	return out
}

func (f *FakePlayback) Close() error {
	f.once.Do(func() { close(f.done) })
	return nil
}
