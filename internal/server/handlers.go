package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/conneroisu/treescope/internal/tree"
	"github.com/conneroisu/treescope/internal/version"
)

// documentOrder flattens the attached tree into API nodes, preorder. It
// reads through Tree.Snapshot: handlers run on arbitrary goroutines while
// the applier mutates the links, and the unlocked traversal accessors are
// reserved for the single writer.
func (s *InspectorServer) documentOrder() []nodeJSON {
	snaps := s.tree.Snapshot()
	nodes := make([]nodeJSON, 0, len(snaps))
	for _, sn := range snaps {
		nodes = append(nodes, nodeJSON{
			ID:       sn.ID,
			Parent:   sn.Parent,
			Children: sn.Children,
			Payload:  marshalPayload(sn.Payload),
		})
	}
	return nodes
}

func toNodeJSON(n *tree.Node) nodeJSON {
	out := nodeJSON{
		ID:       n.ID(),
		Children: n.Children(),
		Payload:  marshalPayload(n.Payload()),
	}
	if p := n.Parent(); p != nil {
		id := p.ID()
		out.Parent = &id
	}
	return out
}

func marshalPayload(payload any) json.RawMessage {
	if payload == nil {
		return nil
	}
	if raw, ok := payload.(json.RawMessage); ok {
		return raw
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	return data
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// handleHealth reports liveness plus a few cheap gauges.
func (s *InspectorServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"version":   version.GetVersion(),
		"nodes":     s.tree.Len(),
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// handleTree dumps the attached hierarchy in document order.
func (s *InspectorServer) handleTree(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"nodes": s.documentOrder(),
		"total": s.tree.Len(),
	})
}

// handleNode serves one node's detail. Absence is silent inside the core;
// out here it becomes a 404.
func (s *InspectorServer) handleNode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	rawID := strings.TrimPrefix(r.URL.Path, "/api/node/")
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid node id"})
		return
	}
	n, ok := s.tree.Get(tree.ID(id))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "node not found"})
		return
	}
	writeJSON(w, http.StatusOK, toNodeJSON(n))
}

// handleEvents ingests a batch of JSON-line events from the request body.
func (s *InspectorServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	applied, rejected, err := s.applier.ApplyStream(r.Context(), r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":    err.Error(),
			"applied":  applied,
			"rejected": rejected,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"applied":  applied,
		"rejected": rejected,
	})
}

// handleIndex serves the inspector page.
func (s *InspectorServer) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexPage().Render(r.Context(), w); err != nil {
		s.log.Error(r.Context(), err, "rendering index")
	}
}
