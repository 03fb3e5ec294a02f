// Package ingest turns externally produced hierarchy mutation events into
// tree operations. The wire format is JSON lines, one event per line; the
// source is assumed unreliable, so duplicate, late and malformed events are
// tolerated, counted and skipped rather than failed on.
package ingest

import (
	"bufio"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"strings"

	"github.com/conneroisu/treescope/internal/errors"
	"github.com/conneroisu/treescope/internal/tree"
)

// Op is the kind of one mutation event.
type Op string

const (
	// OpAdd attaches an id under a parent, materializing either side.
	OpAdd Op = "add"
	// OpRemove deletes an id and its whole subtree.
	OpRemove Op = "remove"
	// OpPayload replaces the opaque payload of an existing id.
	OpPayload Op = "payload"
)

// Event is the wire form of one hierarchy mutation. Payload stays raw JSON
// end to end; treescope never looks inside it.
type Event struct {
	Op      Op              `json:"op"`
	ID      tree.ID         `json:"id"`
	Parent  tree.ID         `json:"parent,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Seq     uint64          `json:"seq,omitempty"`
}

// Validate screens an event before application.
func (e *Event) Validate() error {
	switch e.Op {
	case OpAdd, OpRemove, OpPayload:
	default:
		return errors.NewIngestError(errors.ErrCodeUnknownOp,
			fmt.Sprintf("unknown op %q", e.Op), nil)
	}
	if e.ID < 0 {
		return errors.NewIngestError(errors.ErrCodeMalformedEvent,
			fmt.Sprintf("negative id %d", e.ID), nil)
	}
	if e.Op == OpAdd && e.Parent < 0 {
		return errors.NewIngestError(errors.ErrCodeMalformedEvent,
			fmt.Sprintf("negative parent %d", e.Parent), nil)
	}
	return nil
}

// decodeLine parses one JSON-lines record. Blank lines and # comments decode
// to (nil, nil).
func decodeLine(line string) (*Event, error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return nil, nil
	}
	var ev Event
	if err := json.Unmarshal([]byte(line), &ev); err != nil {
		return nil, errors.NewIngestError(errors.ErrCodeMalformedEvent,
			"decoding event", err)
	}
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	return &ev, nil
}

// Decode reads a complete JSON-lines stream, skipping blank lines and #
// comments. Malformed lines fail the decode with their line number; use an
// Applier for tolerant streaming.
func Decode(r io.Reader) ([]Event, error) {
	var out []Event
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		ev, err := decodeLine(scanner.Text())
		if err != nil {
			var te *errors.TreescopeError
			if stderrors.As(err, &te) {
				return nil, te.WithContext("line", lineNo)
			}
			return nil, err
		}
		if ev != nil {
			out = append(out, *ev)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.NewIOError(errors.ErrCodeSessionRead, "reading event stream", err)
	}
	return out, nil
}

// maxLineBytes bounds one event line; payloads beyond this are hostile.
const maxLineBytes = 1 << 20
