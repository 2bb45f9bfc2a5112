package yamldedup

import (
	"strings"
	"testing"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// --- helpers for tests ---

func mustParse(t *testing.T, s string) *yaml.Node {
	t.Helper()
	doc, err := Parse("test.yaml", []byte(s))
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	return doc.Node
}

func mustParseAll(t *testing.T, ss ...string) []*yaml.Node {
	t.Helper()
	out := make([]*yaml.Node, len(ss))
	for i, s := range ss {
		out[i] = mustParse(t, s)
	}
	return out
}

// toMap decodes a document into plain Go values for comparison.
func toMap(t *testing.T, n *yaml.Node) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, n.Decode(&m))
	if m == nil {
		m = map[string]any{}
	}
	return m
}

func mustMarshal(t *testing.T, n *yaml.Node) string {
	t.Helper()
	out, err := MarshalNode(n, 2)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	return string(out)
}

// topKeys returns the keys of the root mapping in order.
func topKeys(t *testing.T, n *yaml.Node) []string {
	t.Helper()
	m, err := rootMapping(n)
	require.NoError(t, err)
	var keys []string
	for i := 0; i+1 < len(m.Content); i += 2 {
		keys = append(keys, m.Content[i].Value)
	}
	return keys
}

// findNode walks a mapping node by a sequence of scalar keys and returns the final value node.
func findNode(n *yaml.Node, path ...string) *yaml.Node {
	if n != nil && n.Kind == yaml.DocumentNode && len(n.Content) > 0 {
		n = n.Content[0]
	}
	cur := n
	for _, k := range path {
		if cur == nil || cur.Kind != yaml.MappingNode {
			return nil
		}
		var found *yaml.Node
		for i := 0; i+1 < len(cur.Content); i += 2 {
			if cur.Content[i].Kind == yaml.ScalarNode && cur.Content[i].Value == k {
				found = cur.Content[i+1]
				break
			}
		}
		if found == nil {
			return nil
		}
		cur = found
	}
	return cur
}

func unifiedDiff(before, after string) string {
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(before),
		B:        difflib.SplitLines(after),
		FromFile: "before",
		ToFile:   "after",
		Context:  2,
	})
	if err != nil {
		return err.Error()
	}
	return diff
}

func diffStats(diff string) (adds, removes int) {
	for _, line := range strings.Split(diff, "\n") {
		if len(line) == 0 {
			continue
		}
		switch line[0] {
		case '+':
			if !strings.HasPrefix(line, "+++") {
				adds++
			}
		case '-':
			if !strings.HasPrefix(line, "---") {
				removes++
			}
		}
	}
	return
}

// printNode logs the structure of a node tree; handy when a test fails.
func printNode(t *testing.T, n *yaml.Node, indent int) {
	t.Helper()
	if n == nil {
		return
	}
	prefix := strings.Repeat("  ", indent)

	kindStr := ""
	switch n.Kind {
	case yaml.DocumentNode:
		kindStr = "Document"
	case yaml.MappingNode:
		kindStr = "Mapping"
	case yaml.SequenceNode:
		kindStr = "Sequence"
	case yaml.ScalarNode:
		kindStr = "Scalar"
	case yaml.AliasNode:
		kindStr = "Alias"
	}

	if n.Kind == yaml.ScalarNode {
		t.Logf("%s%s: %q (tag=%s, line=%d)", prefix, kindStr, n.Value, n.Tag, n.Line)
	} else {
		t.Logf("%s%s (tag=%s, len=%d, line=%d)", prefix, kindStr, n.Tag, len(n.Content), n.Line)
	}

	for _, child := range n.Content {
		printNode(t, child, indent+1)
	}
}
