package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/treescope/internal/config"
	"github.com/conneroisu/treescope/internal/errors"
	"github.com/conneroisu/treescope/internal/ingest"
	"github.com/conneroisu/treescope/internal/tree"
)

var (
	dumpFormat   string
	dumpFromHTML string
)

var dumpCmd = &cobra.Command{
	Use:   "dump [session.jsonl]",
	Short: "Print the tree a session or document builds",
	Long: `Build a tree from a recorded session log (or an HTML document) and
print it in document order.

Examples:
  treescope dump session.jsonl             # table of the resulting tree
  treescope dump session.jsonl -o json     # machine-readable output
  treescope dump --from-html index.html    # dump an imported document
  treescope dump --from-html page.html -o yaml`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDump,
}

func init() {
	rootCmd.AddCommand(dumpCmd)

	dumpCmd.Flags().StringVarP(&dumpFormat, "format", "o", "table", "Output format (table, json, yaml)")
	dumpCmd.Flags().StringVar(&dumpFromHTML, "from-html", "", "Build the tree from an HTML document instead of a session log")
}

// dumpNode is the output shape of one node, shared by every format.
type dumpNode struct {
	ID       tree.ID   `json:"id"                 yaml:"id"`
	Parent   *tree.ID  `json:"parent,omitempty"   yaml:"parent,omitempty"`
	Depth    int       `json:"depth"              yaml:"depth"`
	Kind     string    `json:"kind,omitempty"     yaml:"kind,omitempty"`
	Children []tree.ID `json:"children,omitempty" yaml:"children,omitempty"`
	Payload  string    `json:"payload,omitempty"  yaml:"payload,omitempty"`
}

func runDump(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger := newLogger(cfg)

	t := tree.New(nil)
	defer t.Close()

	switch {
	case dumpFromHTML != "":
		f, err := os.Open(dumpFromHTML)
		if err != nil {
			return fmt.Errorf("opening document: %w", err)
		}
		defer f.Close()
		if _, err := ingest.ImportHTML(t, f, tree.RootID); err != nil {
			return fmt.Errorf("importing document: %w", err)
		}
	case len(args) == 1:
		applier := ingest.NewApplier(t, logger, nil)
		if _, _, err := ingest.ReplayFile(context.Background(), args[0], applier); err != nil {
			return fmt.Errorf("replaying session: %w", err)
		}
	default:
		return fmt.Errorf("nothing to dump: pass a session log or --from-html")
	}

	nodes := collectDumpNodes(t)

	switch strings.ToLower(dumpFormat) {
	case "json":
		return outputDumpJSON(nodes)
	case "yaml":
		return outputDumpYAML(nodes)
	case "table":
		return outputDumpTable(nodes)
	default:
		return errors.NewValidationError(errors.ErrCodeOutputFormat,
			fmt.Sprintf("unsupported format: %s (supported: table, json, yaml)", dumpFormat))
	}
}

// collectDumpNodes flattens the attached tree in document order.
func collectDumpNodes(t *tree.Tree) []dumpNode {
	var nodes []dumpNode
	t.Walk(func(n *tree.Node) bool {
		d := dumpNode{
			ID:       n.ID(),
			Children: n.Children(),
		}
		for p := n.Parent(); p != nil; p = p.Parent() {
			d.Depth++
		}
		if p := n.Parent(); p != nil {
			id := p.ID()
			d.Parent = &id
		}
		d.Kind, d.Payload = describePayload(n.Payload())
		nodes = append(nodes, d)
		return false
	}, tree.None, tree.None)
	return nodes
}

// describePayload turns an opaque payload into a display kind and a compact
// rendering. Imported HTML elements get their tag as the kind; anything else
// is labeled by shape.
func describePayload(payload any) (kind, rendered string) {
	if payload == nil {
		return "", ""
	}
	titler := cases.Title(language.English)

	raw, ok := payload.(json.RawMessage)
	if !ok {
		data, err := json.Marshal(payload)
		if err != nil {
			return "Opaque", fmt.Sprintf("%v", payload)
		}
		raw = data
	}

	var elem ingest.ElementPayload
	if err := json.Unmarshal(raw, &elem); err == nil && elem.Tag != "" {
		return titler.String(elem.Tag), compactJSON(raw)
	}

	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return "", ""
	}
	switch trimmed[0] {
	case '{':
		kind = "Object"
	case '[':
		kind = "Array"
	case '"':
		kind = "String"
	default:
		kind = "Value"
	}
	return titler.String(kind), compactJSON(raw)
}

func compactJSON(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	s := buf.String()
	if len(s) > 60 {
		s = s[:57] + "..."
	}
	return s
}

func outputDumpJSON(nodes []dumpNode) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(nodes)
}

func outputDumpYAML(nodes []dumpNode) error {
	encoder := yaml.NewEncoder(os.Stdout)
	defer encoder.Close()
	return encoder.Encode(nodes)
}

func outputDumpTable(nodes []dumpNode) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, "ID\tPARENT\tKIND\tCHILDREN\tPAYLOAD")

	for _, n := range nodes {
		parent := "-"
		if n.Parent != nil {
			parent = fmt.Sprintf("%d", *n.Parent)
		}
		indent := strings.Repeat("  ", n.Depth)
		fmt.Fprintf(w, "%s%d\t%s\t%s\t%d\t%s\n",
			indent, n.ID, parent, n.Kind, len(n.Children), n.Payload)
	}

	fmt.Fprintf(w, "\nTotal: %d nodes\n", len(nodes))
	return nil
}
