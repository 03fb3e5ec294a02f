package ingest

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"

	"github.com/conneroisu/treescope/internal/errors"
)

// Recorder appends events to a session log as JSON lines, assigning each a
// monotonically increasing sequence number. A recorded session replays
// through ReplayFile or the replay command.
type Recorder struct {
	mu     sync.Mutex
	enc    *json.Encoder
	closer io.Closer
	seq    uint64
}

// NewRecorder writes the session to w.
func NewRecorder(w io.Writer) *Recorder {
	return &Recorder{enc: json.NewEncoder(w)}
}

// CreateRecorder opens (or creates, appending) the session file at path.
func CreateRecorder(path string) (*Recorder, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, errors.NewIOError(errors.ErrCodeSessionWrite, "opening session log", err)
	}
	r := NewRecorder(f)
	r.closer = f
	return r, nil
}

// Record assigns the next sequence number and appends the event.
func (r *Recorder) Record(ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	ev.Seq = r.seq
	if err := r.enc.Encode(&ev); err != nil {
		return errors.NewIOError(errors.ErrCodeSessionWrite, "appending session log", err)
	}
	return nil
}

// Close closes an underlying file, if the Recorder owns one.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closer == nil {
		return nil
	}
	err := r.closer.Close()
	r.closer = nil
	return err
}

// ReplayFile applies a recorded session into the applier's tree, tolerant of
// malformed lines the same way live ingestion is.
func ReplayFile(ctx context.Context, path string, a *Applier) (applied, rejected int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, errors.NewIOError(errors.ErrCodeSessionRead, "opening session log", err)
	}
	defer f.Close()
	return a.ApplyStream(ctx, f)
}
