// Package yamldedup removes duplicated configuration from sets of YAML
// documents.
//
// ExtractCommon moves the key/value paths shared by every document into a
// separate common document. SubtractReference removes from each document
// the paths that a set of reference documents already define with the same
// value. Both operate on gopkg.in/yaml.v3 node trees, return fresh trees
// and never modify their inputs, so comments, key order and scalar styles
// (including literal blocks) of the retained content survive a round trip.
package yamldedup

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Option tunes ExtractCommon and SubtractReference.
type Option func(*options)

type options struct {
	pruneBlank bool
}

// WithPruneBlank additionally drops top-level keys of each residual whose
// value is null, an empty string or an empty mapping.
func WithPruneBlank() Option {
	return func(o *options) { o.pruneBlank = true }
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// ExtractCommon returns the sub-document whose paths hold an equal value in
// every one of docs, and for each input the residual left after removing
// those paths. Documents may be yaml.DocumentNode or yaml.MappingNode
// values; results are always document nodes.
//
// Sequences are compared as atomic values. A path whose value is a mapping
// in one document and something else in another is never common.
func ExtractCommon(docs []*yaml.Node, opts ...Option) (*yaml.Node, []*yaml.Node, error) {
	if len(docs) < 2 {
		return nil, nil, fmt.Errorf("yamldedup: %w: extraction needs at least 2 documents, got %d", ErrInvalidInput, len(docs))
	}
	roots, err := mappingRoots(docs)
	if err != nil {
		return nil, nil, err
	}

	acc := roots[0]
	for _, m := range roots[1:] {
		acc = intersect(acc, m)
	}
	common := wrapDocument(newCopier().copy(acc), nil)

	residuals := make([]*yaml.Node, len(roots))
	cm := common.Content[0]
	o := buildOptions(opts)
	for i, m := range roots {
		residuals[i] = residual(m, cm, docs[i], o)
	}
	return common, residuals, nil
}

// SubtractReference merges refs with MergeReferences and removes from each
// of docs every path the merged reference defines with an equal value.
// Paths whose value differs from the reference are kept. One residual is
// returned per input document, in order.
func SubtractReference(docs []*yaml.Node, refs []*yaml.Node, opts ...Option) ([]*yaml.Node, error) {
	if len(docs) == 0 {
		return nil, fmt.Errorf("yamldedup: %w: no documents to process", ErrInvalidInput)
	}
	if len(refs) == 0 {
		return nil, fmt.Errorf("yamldedup: %w: no reference documents", ErrInvalidInput)
	}
	roots, err := mappingRoots(docs)
	if err != nil {
		return nil, err
	}
	ref, err := MergeReferences(refs)
	if err != nil {
		return nil, err
	}
	rm := ref.Content[0]
	o := buildOptions(opts)
	residuals := make([]*yaml.Node, len(roots))
	for i, m := range roots {
		residuals[i] = residual(m, rm, docs[i], o)
	}
	return residuals, nil
}

// MergeReferences unions refs in order. Nested mappings merge
// recursively; anywhere else the later document wins.
func MergeReferences(refs []*yaml.Node) (*yaml.Node, error) {
	merged := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for i, r := range refs {
		m, err := rootMapping(r)
		if err != nil {
			return nil, fmt.Errorf("reference %d: %w", i, err)
		}
		if err := validate(m, nil); err != nil {
			return nil, fmt.Errorf("reference %d: %w", i, err)
		}
		merged = union(merged, m)
	}
	return wrapDocument(newCopier().copy(merged), nil), nil
}

func mappingRoots(docs []*yaml.Node) ([]*yaml.Node, error) {
	out := make([]*yaml.Node, len(docs))
	for i, d := range docs {
		m, err := rootMapping(d)
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", i, err)
		}
		if err := validate(m, nil); err != nil {
			return nil, fmt.Errorf("document %d: %w", i, err)
		}
		out[i] = m
	}
	return out, nil
}

// intersect keeps the pairs of acc, in acc's order, whose value d holds
// too. Shared subtrees of acc are reused, not copied.
func intersect(acc, d *yaml.Node) *yaml.Node {
	out := emptyLike(acc)
	for i := 0; i+1 < len(acc.Content); i += 2 {
		k, raw := acc.Content[i], acc.Content[i+1]
		other := lookup(d, k.Value)
		if other == nil {
			continue
		}
		v, ov := resolve(raw), resolve(other)
		switch {
		case v.Kind == yaml.MappingNode && ov.Kind == yaml.MappingNode:
			if sub := intersect(v, ov); len(sub.Content) > 0 {
				out.Content = append(out.Content, k, sub)
			}
		case v.Kind != yaml.MappingNode && ov.Kind != yaml.MappingNode && Equal(v, ov):
			out.Content = append(out.Content, k, raw)
		}
	}
	return out
}

// subtract drops from m the pairs ref holds with an equal value and
// reports whether anything was dropped. A nested mapping emptied by the
// removal is dropped with it. When nothing changes m itself is returned.
func subtract(m, ref *yaml.Node) (*yaml.Node, bool) {
	out := emptyLike(m)
	changed := false
	for i := 0; i+1 < len(m.Content); i += 2 {
		k, raw := m.Content[i], m.Content[i+1]
		rraw := lookup(ref, k.Value)
		if rraw == nil {
			out.Content = append(out.Content, k, raw)
			continue
		}
		v, rv := resolve(raw), resolve(rraw)
		switch {
		case v.Kind == yaml.MappingNode && rv.Kind == yaml.MappingNode:
			sub, subChanged := subtract(v, rv)
			switch {
			case !subChanged:
				out.Content = append(out.Content, k, raw)
			case len(sub.Content) == 0:
				changed = true
			default:
				changed = true
				out.Content = append(out.Content, k, sub)
			}
		case v.Kind != yaml.MappingNode && rv.Kind != yaml.MappingNode && Equal(v, rv):
			changed = true
		default:
			out.Content = append(out.Content, k, raw)
		}
	}
	if !changed {
		return m, false
	}
	return out, true
}

// union returns base overlaid with top.
func union(base, top *yaml.Node) *yaml.Node {
	out := emptyLike(base)
	out.Content = append(out.Content, base.Content...)
	for i := 0; i+1 < len(top.Content); i += 2 {
		k, raw := top.Content[i], top.Content[i+1]
		idx := -1
		for j := 0; j+1 < len(out.Content); j += 2 {
			if out.Content[j].Value == k.Value {
				idx = j
				break
			}
		}
		if idx < 0 {
			out.Content = append(out.Content, k, raw)
			continue
		}
		bv, tv := resolve(out.Content[idx+1]), resolve(raw)
		if bv.Kind == yaml.MappingNode && tv.Kind == yaml.MappingNode {
			out.Content[idx+1] = union(bv, tv)
		} else {
			out.Content[idx+1] = raw
		}
	}
	return out
}

func residual(m, ref *yaml.Node, orig *yaml.Node, o options) *yaml.Node {
	rest, _ := subtract(m, ref)
	if o.pruneBlank {
		rest = pruneBlank(rest)
	}
	return wrapDocument(newCopier().copy(rest), orig)
}

func pruneBlank(m *yaml.Node) *yaml.Node {
	out := emptyLike(m)
	for i := 0; i+1 < len(m.Content); i += 2 {
		if isBlank(resolve(m.Content[i+1])) {
			continue
		}
		out.Content = append(out.Content, m.Content[i], m.Content[i+1])
	}
	return out
}

func isBlank(v *yaml.Node) bool {
	switch v.Kind {
	case yaml.MappingNode:
		return len(v.Content) == 0
	case yaml.ScalarNode:
		tag := v.ShortTag()
		return tag == "!!null" || (tag == "!!str" && v.Value == "")
	}
	return false
}
