package audio

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestChunkBytes(t *testing.T) {
	// 1024 mono frames of 16-bit PCM.
	if ChunkBytes != 2048 {
		t.Errorf("ChunkBytes = %d, want 2048", ChunkBytes)
	}
}

func TestFakeCaptureDeliversInOrder(t *testing.T) {
	f := NewFakeCapture()
	defer f.Close()

	f.Feed([]byte{1})
	f.Feed([]byte{2})

	ctx := context.Background()
	for i, want := range []byte{1, 2} {
		chunk, err := f.Read(ctx)
		if err != nil {
			t.Fatalf("Read %d failed: %v", i, err)
		}
		if len(chunk) != 1 || chunk[0] != want {
			t.Errorf("chunk %d = %v, want [%d]", i, chunk, want)
		}
	}
}

func TestFakeCaptureReadHonorsContext(t *testing.T) {
	f := NewFakeCapture()
	defer f.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := f.Read(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
}

func TestFakeCaptureReadAfterClose(t *testing.T) {
	f := NewFakeCapture()
	f.Close()

	_, err := f.Read(context.Background())
	if !errors.Is(err, ErrDeviceClosed) {
		t.Errorf("err = %v, want ErrDeviceClosed", err)
	}
}

func TestFakePlaybackRecordsCopies(t *testing.T) {
	f := NewFakePlayback()
	defer f.Close()

	buf := []byte{1, 2, 3}
	if err := f.Write(context.Background(), buf); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	buf[0] = 99 // caller may reuse the buffer

	got := f.Written()
	if len(got) != 1 || got[0][0] != 1 {
		t.Errorf("Written() = %v, want the original bytes", got)
	}
}

func TestFakePlaybackWriteAfterClose(t *testing.T) {
	f := NewFakePlayback()
	f.Close()

	err := f.Write(context.Background(), []byte{1})
	if !errors.Is(err, ErrDeviceClosed) {
		t.Errorf("err = %v, want ErrDeviceClosed", err)
	}
}
