package yamldedup

import (
	"gopkg.in/yaml.v3"
)

// resolve follows alias nodes to their anchor target.
func resolve(n *yaml.Node) *yaml.Node {
	for n != nil && n.Kind == yaml.AliasNode {
		n = n.Alias
	}
	return n
}

// rootMapping returns the mapping at the root of n, which may be a
// document node or a mapping node. A document with no content counts
// as an empty mapping.
func rootMapping(n *yaml.Node) (*yaml.Node, error) {
	if n == nil {
		return nil, invalidDoc(nil, "nil document")
	}
	if n.Kind == yaml.DocumentNode {
		if len(n.Content) == 0 {
			return &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}, nil
		}
		n = n.Content[0]
	}
	n = resolve(n)
	if n == nil || n.Kind != yaml.MappingNode {
		return nil, invalidDoc(nil, "top-level YAML is not a mapping")
	}
	return n, nil
}

// lookup returns the value node stored under key in mapping m, or nil.
func lookup(m *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}

// validate checks that every mapping reachable from n has unique scalar keys.
func validate(n *yaml.Node, path Path) error {
	n = resolve(n)
	if n == nil {
		return nil
	}
	switch n.Kind {
	case yaml.MappingNode:
		seen := make(map[string]struct{}, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			k := n.Content[i]
			if k.Kind != yaml.ScalarNode {
				return invalidDoc(path, "mapping key at line %d is not a scalar", k.Line)
			}
			if _, dup := seen[k.Value]; dup {
				return invalidDoc(path, "mapping key %q already defined (line %d)", k.Value, k.Line)
			}
			seen[k.Value] = struct{}{}
			if err := validate(n.Content[i+1], append(path, k.Value)); err != nil {
				return err
			}
		}
	case yaml.SequenceNode:
		for idx, c := range n.Content {
			if err := validate(c, append(path, indexSeg(idx))); err != nil {
				return err
			}
		}
	}
	return nil
}

// Equal reports whether a and b hold the same value. Scalars must agree
// on resolved tag and literal value; style and comments are ignored.
// Sequences compare element by element. Mappings compare by key set,
// regardless of key order. Aliases compare through their targets.
func Equal(a, b *yaml.Node) bool {
	a, b = resolve(a), resolve(b)
	if a == nil || b == nil {
		return a == b
	}
	if a.Kind == yaml.DocumentNode && b.Kind == yaml.DocumentNode {
		if len(a.Content) == 0 || len(b.Content) == 0 {
			return len(a.Content) == len(b.Content)
		}
		return Equal(a.Content[0], b.Content[0])
	}
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case yaml.ScalarNode:
		if a.ShortTag() != b.ShortTag() {
			return false
		}
		// ~, null and an empty value are the same null.
		if a.ShortTag() == "!!null" {
			return true
		}
		return a.Value == b.Value
	case yaml.SequenceNode:
		if len(a.Content) != len(b.Content) {
			return false
		}
		for i := range a.Content {
			if !Equal(a.Content[i], b.Content[i]) {
				return false
			}
		}
		return true
	case yaml.MappingNode:
		if len(a.Content) != len(b.Content) {
			return false
		}
		for i := 0; i+1 < len(a.Content); i += 2 {
			bv := lookup(b, a.Content[i].Value)
			if bv == nil || !Equal(a.Content[i+1], bv) {
				return false
			}
		}
		return true
	}
	return false
}

// copier deep-copies trees. Aliases are re-pointed at the copy of their
// anchor when that anchor was already emitted earlier in the output;
// otherwise the alias is replaced by a plain copy of its target, since
// the anchor no longer exists in the output document.
type copier struct {
	emitted map[*yaml.Node]*yaml.Node
}

func newCopier() *copier {
	return &copier{emitted: map[*yaml.Node]*yaml.Node{}}
}

func (c *copier) copy(n *yaml.Node) *yaml.Node {
	if n == nil {
		return nil
	}
	if n.Kind == yaml.AliasNode {
		if target, ok := c.emitted[n.Alias]; ok {
			cp := *n
			cp.Alias = target
			return &cp
		}
		return c.expand(n)
	}
	cp := *n
	cp.Content = nil
	if n.Anchor != "" {
		c.emitted[n] = &cp
	}
	if len(n.Content) > 0 {
		cp.Content = make([]*yaml.Node, 0, len(n.Content))
		for _, ch := range n.Content {
			cp.Content = append(cp.Content, c.copy(ch))
		}
	}
	return &cp
}

// expand inlines the target of alias a, keeping the comments that were
// attached to the alias itself.
func (c *copier) expand(a *yaml.Node) *yaml.Node {
	target := resolve(a)
	if target == nil {
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}
	}
	cp := *target
	cp.Anchor = ""
	cp.HeadComment, cp.LineComment, cp.FootComment = a.HeadComment, a.LineComment, a.FootComment
	cp.Content = nil
	if len(target.Content) > 0 {
		cp.Content = make([]*yaml.Node, 0, len(target.Content))
		for _, ch := range target.Content {
			cp.Content = append(cp.Content, c.copy(ch))
		}
	}
	return &cp
}

// emptyLike returns an empty mapping carrying the presentation of m.
func emptyLike(m *yaml.Node) *yaml.Node {
	return &yaml.Node{
		Kind:        yaml.MappingNode,
		Tag:         m.Tag,
		Style:       m.Style,
		HeadComment: m.HeadComment,
		LineComment: m.LineComment,
		FootComment: m.FootComment,
		Line:        m.Line,
		Column:      m.Column,
	}
}

// wrapDocument builds a document node around mapping m, copying the
// document-level comments of orig when it is a document node.
func wrapDocument(m *yaml.Node, orig *yaml.Node) *yaml.Node {
	doc := &yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{m}}
	if orig != nil && orig.Kind == yaml.DocumentNode {
		doc.HeadComment, doc.LineComment, doc.FootComment = orig.HeadComment, orig.LineComment, orig.FootComment
	}
	return doc
}
