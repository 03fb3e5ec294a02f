package ingest

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/conneroisu/treescope/internal/errors"
	"github.com/conneroisu/treescope/internal/logging"
)

// DefaultFollowDebounce groups rapid write bursts before reading appended
// lines.
const DefaultFollowDebounce = 50 * time.Millisecond

// Follower tails a growing session log: whatever the file already contains
// is applied on start, then fsnotify write events trigger debounced reads of
// the newly appended lines. Truncation restarts the read offset from zero.
type Follower struct {
	path     string
	applier  *Applier
	log      logging.Logger
	debounce time.Duration

	offset  int64
	partial []byte
}

// NewFollower prepares a follower for the session log at path. logger may be
// nil; a non-positive debounce falls back to the default.
func NewFollower(path string, a *Applier, logger logging.Logger, debounce time.Duration) *Follower {
	if logger == nil {
		logger = logging.Nop()
	}
	if debounce <= 0 {
		debounce = DefaultFollowDebounce
	}
	return &Follower{
		path:     path,
		applier:  a,
		log:      logger.WithComponent("follow"),
		debounce: debounce,
	}
}

// Run tails the file until ctx is cancelled. The watch covers the file's
// directory so a log recreated in place keeps being followed.
func (f *Follower) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.NewIOError(errors.ErrCodeSessionWatch, "creating watcher", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(f.path)); err != nil {
		return errors.NewIOError(errors.ErrCodeSessionWatch, "watching session directory", err)
	}

	// Catch up on whatever already exists before waiting for events.
	f.catchUp(ctx)

	timer := time.NewTimer(f.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	armed := false

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case event := <-watcher.Events:
			if event.Name != f.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			// Arm once per burst; the read happens after a quiet period.
			if !armed {
				timer.Reset(f.debounce)
				armed = true
			}
		case err := <-watcher.Errors:
			f.log.Warn(ctx, err, "watcher error")
		case <-timer.C:
			armed = false
			f.catchUp(ctx)
		}
	}
}

// catchUp applies every complete line appended since the last read. A file
// smaller than the recorded offset was truncated: the offset restarts at
// zero and any buffered partial line is dropped.
func (f *Follower) catchUp(ctx context.Context) {
	info, err := os.Stat(f.path)
	if err != nil {
		return
	}
	if info.Size() < f.offset {
		f.log.Info(ctx, "session log truncated, restarting", "path", f.path)
		f.offset = 0
		f.partial = nil
	}
	if info.Size() == f.offset {
		return
	}

	file, err := os.Open(f.path)
	if err != nil {
		f.log.Warn(ctx, err, "opening session log")
		return
	}
	defer file.Close()

	if _, err := file.Seek(f.offset, io.SeekStart); err != nil {
		f.log.Warn(ctx, err, "seeking session log")
		return
	}
	data, err := io.ReadAll(file)
	if err != nil {
		f.log.Warn(ctx, err, "reading session log")
		return
	}
	f.offset += int64(len(data))

	// A write may end mid-line; hold the tail back until its newline lands.
	data = append(f.partial, data...)
	for {
		nl := bytes.IndexByte(data, '\n')
		if nl < 0 {
			break
		}
		f.applier.applyLine(ctx, string(data[:nl]))
		data = data[nl+1:]
	}
	f.partial = append([]byte(nil), data...)
}
