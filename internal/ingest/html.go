package ingest

import (
	"encoding/json"
	"io"

	"golang.org/x/net/html"

	"github.com/conneroisu/treescope/internal/errors"
	"github.com/conneroisu/treescope/internal/tree"
)

// ElementPayload is the payload the HTML importer attaches to each imported
// node. Beyond the importer, treescope treats it as opaque like any other
// payload.
type ElementPayload struct {
	Tag   string            `json:"tag"`
	Attrs map[string]string `json:"attrs,omitempty"`
}

// ImportHTML seeds a tree from an HTML document: every element node becomes
// a tree node in document order, attached under the given id. Ids are
// allocated past the current maximum so a seeded tree can keep ingesting
// events without collisions. Returns how many nodes were imported.
func ImportHTML(t *tree.Tree, r io.Reader, under tree.ID) (int, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return 0, errors.NewIngestError(errors.ErrCodeHTMLImport, "parsing document", err)
	}

	next := maxID(t) + 1
	count := 0
	var walk func(n *html.Node, parent tree.ID)
	walk = func(n *html.Node, parent tree.ID) {
		id := parent
		if n.Type == html.ElementNode {
			id = next
			next++
			t.Add(id, parent)
			t.SetPayload(id, elementPayload(n))
			count++
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, id)
		}
	}
	walk(doc, under)
	return count, nil
}

func elementPayload(n *html.Node) json.RawMessage {
	p := ElementPayload{Tag: n.Data}
	if len(n.Attr) > 0 {
		p.Attrs = make(map[string]string, len(n.Attr))
		for _, a := range n.Attr {
			p.Attrs[a.Key] = a.Val
		}
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return nil
	}
	return raw
}

func maxID(t *tree.Tree) tree.ID {
	max := tree.RootID
	for _, id := range t.IDs() {
		if id > max {
			max = id
		}
	}
	return max
}
