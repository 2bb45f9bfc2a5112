package yamldedup

import (
	"bytes"

	"gopkg.in/yaml.v3"
)

// ----- Line-surgical render -----

// lineSpan is an inclusive, 1-based range of source lines.
type lineSpan struct {
	first, last int
}

// Render returns the bytes to store for residual, a tree derived from doc
// by removing key paths. When possible it deletes the removed pairs' lines
// from the original text so every retained byte, including comments,
// quoting and blank lines, is left as it was. Otherwise the residual is
// re-encoded with the document's indent.
func Render(doc *Document, residual *yaml.Node) ([]byte, error) {
	rm, err := rootMapping(residual)
	if err != nil {
		return nil, err
	}
	if len(rm.Content) > 0 {
		if out, ok := renderBySurgery(doc, rm); ok {
			return out, nil
		}
	}
	return MarshalNode(residual, doc.Indent)
}

func renderBySurgery(doc *Document, residual *yaml.Node) ([]byte, bool) {
	if len(doc.Raw) == 0 || doc.Node == nil || len(doc.Node.Content) == 0 {
		return nil, false
	}
	root := doc.Root()
	if root.Kind != yaml.MappingNode {
		return nil, false
	}
	lines := bytes.SplitAfter(doc.Raw, []byte("\n"))
	if n := len(lines); n > 0 && len(lines[n-1]) == 0 {
		lines = lines[:n-1]
	}

	var spans []lineSpan
	if !collectSpans(root, residual, lines, len(lines)+1, &spans) {
		return nil, false
	}
	if len(spans) == 0 {
		return doc.Raw, true
	}

	drop := make([]bool, len(lines)+1)
	for _, sp := range spans {
		for l := sp.first; l <= sp.last; l++ {
			drop[l] = true
		}
	}
	var buf bytes.Buffer
	buf.Grow(len(doc.Raw))
	for i, ln := range lines {
		if !drop[i+1] {
			buf.Write(ln)
		}
	}
	out := buf.Bytes()

	// The text must still describe exactly the residual.
	var check yaml.Node
	if err := yaml.Unmarshal(out, &check); err != nil {
		return nil, false
	}
	cm, err := rootMapping(&check)
	if err != nil || !Equal(cm, residual) {
		return nil, false
	}
	return out, true
}

// collectSpans records the line spans of the pairs of orig that res no
// longer holds. end is the first line past orig's last pair. It returns
// false when the removal cannot be expressed by deleting whole lines.
func collectSpans(orig, res *yaml.Node, lines [][]byte, end int, spans *[]lineSpan) bool {
	if Equal(orig, res) {
		return true
	}
	if orig.Style&yaml.FlowStyle != 0 {
		return false
	}
	for i := 0; i+1 < len(orig.Content); i += 2 {
		k, raw := orig.Content[i], orig.Content[i+1]
		next := end
		if i+2 < len(orig.Content) {
			next = orig.Content[i+2].Line
		}
		if next <= k.Line {
			return false
		}

		rv := lookup(res, k.Value)
		switch {
		case rv == nil:
			if hasAnchor(raw) {
				return false
			}
			*spans = append(*spans, pairSpan(lines, k, next))
		case Equal(raw, rv):
		case raw.Kind == yaml.MappingNode && resolve(rv).Kind == yaml.MappingNode:
			if raw.Line <= k.Line {
				// value starts on the key's line: flow or empty mapping
				return false
			}
			if !collectSpans(raw, resolve(rv), lines, next, spans) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// pairSpan covers the key line through the line before next, minus the
// trailing blank and comment lines that belong to what follows, plus the
// comment lines directly above the key at the key's indentation.
func pairSpan(lines [][]byte, k *yaml.Node, next int) lineSpan {
	sp := lineSpan{first: k.Line, last: next - 1}
	if sp.last > len(lines) {
		sp.last = len(lines)
	}
	for sp.last > sp.first && trailer(lines[sp.last-1], k.Column-1) {
		sp.last--
	}
	for sp.first > 1 {
		prev := lines[sp.first-2]
		t := bytes.TrimSpace(prev)
		if len(t) == 0 || t[0] != '#' || leadingSpaces(prev) != k.Column-1 {
			break
		}
		sp.first--
	}
	return sp
}

// trailer reports whether ln is blank or a comment no deeper than indent.
// Deeper '#' lines may be the content of a block scalar.
func trailer(ln []byte, indent int) bool {
	t := bytes.TrimSpace(ln)
	if len(t) == 0 {
		return true
	}
	return t[0] == '#' && leadingSpaces(ln) <= indent
}

func hasAnchor(n *yaml.Node) bool {
	if n == nil {
		return false
	}
	if n.Anchor != "" {
		return true
	}
	for _, c := range n.Content {
		if c.Kind != yaml.AliasNode && hasAnchor(c) {
			return true
		}
	}
	return false
}
