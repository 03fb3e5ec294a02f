package ingest

import (
	"bufio"
	"context"
	"io"

	"github.com/conneroisu/treescope/internal/errors"
	"github.com/conneroisu/treescope/internal/logging"
	"github.com/conneroisu/treescope/internal/metrics"
	"github.com/conneroisu/treescope/internal/tree"
)

// Applier applies mutation events to one tree. It is tolerant by design:
// removals and payloads for unknown ids silently no-op inside the tree,
// duplicate adds re-assert structure, and malformed events are counted and
// skipped. Nothing an event stream contains can fail the Applier.
type Applier struct {
	t   *tree.Tree
	log logging.Logger
	m   *metrics.Metrics
	rec *Recorder
}

// NewApplier wires an applier to its tree. logger and m may be nil.
func NewApplier(t *tree.Tree, logger logging.Logger, m *metrics.Metrics) *Applier {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Applier{
		t:   t,
		log: logger.WithComponent("ingest"),
		m:   m,
	}
}

// Tree returns the tree this applier mutates.
func (a *Applier) Tree() *tree.Tree { return a.t }

// WithRecorder appends every successfully applied event to rec, building a
// replayable session log as events stream in.
func (a *Applier) WithRecorder(rec *Recorder) *Applier {
	a.rec = rec
	return a
}

// Apply applies one event. The returned error is informational: the event
// was skipped, the tree is untouched and the stream may continue.
func (a *Applier) Apply(ev Event) error {
	if err := ev.Validate(); err != nil {
		a.reject()
		return err
	}

	switch ev.Op {
	case OpAdd:
		a.t.Add(ev.ID, ev.Parent)
		if len(ev.Payload) > 0 {
			a.t.SetPayload(ev.ID, ev.Payload)
		}
	case OpRemove:
		a.t.Delete(ev.ID)
	case OpPayload:
		a.t.SetPayload(ev.ID, ev.Payload)
	}

	if a.m != nil {
		a.m.EventsApplied.WithLabelValues(string(ev.Op)).Inc()
		a.m.NodesLive.Set(float64(a.t.Len()))
	}
	if a.rec != nil {
		if err := a.rec.Record(ev); err != nil {
			a.log.Warn(context.Background(), err, "recording event")
		}
	}
	return nil
}

// ApplyStream reads JSON lines from r and applies every decodable event,
// skipping blank lines, # comments and malformed records. It returns how
// many events were applied and how many skipped; err is non-nil only for a
// read failure or context cancellation, never for stream content.
func (a *Applier) ApplyStream(ctx context.Context, r io.Reader) (applied, rejected int, err error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return applied, rejected, err
		}
		switch n := a.applyLine(ctx, scanner.Text()); n {
		case 1:
			applied++
		case -1:
			rejected++
		}
	}
	if err := scanner.Err(); err != nil {
		return applied, rejected,
			errors.NewIOError(errors.ErrCodeSessionRead, "reading event stream", err)
	}
	return applied, rejected, nil
}

// applyLine applies one raw line: 1 applied, 0 skipped as empty, -1 rejected.
func (a *Applier) applyLine(ctx context.Context, line string) int {
	ev, err := decodeLine(line)
	if err != nil {
		a.reject()
		a.log.Warn(ctx, err, "skipping event line")
		return -1
	}
	if ev == nil {
		return 0
	}
	if err := a.Apply(*ev); err != nil {
		a.log.Warn(ctx, err, "skipping event", "id", ev.ID, "op", string(ev.Op))
		return -1
	}
	return 1
}

func (a *Applier) reject() {
	if a.m != nil {
		a.m.EventsRejected.Inc()
	}
}
