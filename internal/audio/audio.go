// Package audio defines the PCM formats the session works in and the
// narrow device interfaces it captures and plays through. Real devices
// are external collaborators reached by shelling out to system PCM
// tools; tests use the in-memory fakes.
package audio

import "context"

// Stream formats. Capture and playback run at different rates: the
// peer takes 16 kHz microphone input and answers with 24 kHz speech.
const (
	// CaptureRate is the microphone sample rate in Hz.
	CaptureRate = 16000

	// PlaybackRate is the model speech sample rate in Hz.
	PlaybackRate = 24000

	// Channels is mono everywhere.
	Channels = 1

	// BytesPerSample is 16-bit little-endian PCM.
	BytesPerSample = 2

	// ChunkFrames is the number of frames read from the microphone per
	// chunk.
	ChunkFrames = 1024

	// ChunkBytes is the byte size of one capture chunk.
	ChunkBytes = ChunkFrames * Channels * BytesPerSample
)

// CaptureDevice produces raw PCM chunks from a microphone. Read blocks
// until a chunk is available, the context ends, or the device fails.
type CaptureDevice interface {
	Read(ctx context.Context) ([]byte, error)
	Close() error
}

// PlaybackDevice consumes raw PCM. Write blocks until the chunk is
// handed to the device or the context ends.
type PlaybackDevice interface {
	Write(ctx context.Context, pcm []byte) error
	Close() error
}
