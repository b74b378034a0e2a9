// Package transcript persists the session as an append-only plain
// text log, one line per notable bus event. The file is flushed per
// line so a crash loses at most the line being written.
package transcript

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/normanking/cortex-voice/internal/bus"
)

// Writer appends session events to one log file.
type Writer struct {
	mu   sync.Mutex
	f    *os.File
	path string

	subID bus.SubscriptionID
	b     *bus.Bus
}

// New creates logs/session-<timestamp>.log under dir, creating the
// directory as needed.
func New(dir string) (*Writer, error) {
	logDir := filepath.Join(dir, "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("transcript: create log dir: %w", err)
	}

	path := filepath.Join(logDir, fmt.Sprintf("session-%s.log", time.Now().Format("20060102-150405")))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("transcript: open %s: %w", path, err)
	}

	log.Debug().Str("path", path).Msg("transcript: session log opened")
	return &Writer{f: f, path: path}, nil
}

// Path returns the log file location.
func (w *Writer) Path() string { return w.path }

// Attach subscribes the writer to every bus event worth recording.
func (w *Writer) Attach(b *bus.Bus) {
	w.b = b
	w.subID = b.Subscribe(bus.EventType(""), w.record)
}

// record turns one event into a log line. Events with no operator
// value (playback ticks) are skipped.
func (w *Writer) record(e bus.Event) {
	var line string
	ts := e.Timestamp.Local().Format("15:04:05")

	switch e.Type {
	case bus.EventStateChange:
		line = fmt.Sprintf("%s [state] %s", ts, e.State)
	case bus.EventTranscript:
		line = fmt.Sprintf("%s [model] %s", ts, e.Text)
	case bus.EventUserText:
		line = fmt.Sprintf("%s [you] %s", ts, e.Text)
	case bus.EventToolCallStarted:
		line = fmt.Sprintf("%s [tool] %s started (%s)", ts, e.Capability, e.CallID)
	case bus.EventToolCallFinished:
		outcome := "ok"
		if !e.Success {
			outcome = "failed: " + e.Err
		}
		line = fmt.Sprintf("%s [tool] %s %s (%s)", ts, e.Capability, outcome, e.CallID)
	case bus.EventMuteChanged:
		if e.Muted {
			line = fmt.Sprintf("%s [mic] muted", ts)
		} else {
			line = fmt.Sprintf("%s [mic] live", ts)
		}
	case bus.EventBackendLost:
		line = fmt.Sprintf("%s [backend] %s lost", ts, e.Backend)
	case bus.EventInfo:
		line = fmt.Sprintf("%s [info] %s", ts, e.Text)
	case bus.EventError:
		line = fmt.Sprintf("%s [error] %s", ts, e.Err)
	default:
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return
	}
	if _, err := fmt.Fprintln(w.f, line); err != nil {
		log.Warn().Err(err).Msg("transcript: write failed")
		return
	}
	w.f.Sync()
}

// Close detaches from the bus and closes the file.
func (w *Writer) Close() error {
	if w.b != nil && w.subID != "" {
		w.b.Unsubscribe(w.subID)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return nil
	}
	err := w.f.Close()
	w.f = nil
	return err
}
