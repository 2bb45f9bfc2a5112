package yamldedup

import (
	"bytes"
	"fmt"

	gyaml "github.com/goccy/go-yaml"
	"github.com/goccy/go-yaml/parser"
	"gopkg.in/yaml.v3"
)

// Document is one parsed YAML file.
type Document struct {
	Name   string
	Node   *yaml.Node // yaml.DocumentNode rooted at a mapping
	Raw    []byte     // bytes the document was parsed from
	Indent int        // detected indent (2 or 4 spaces typically)
}

// Root returns the top-level mapping of the document.
func (d *Document) Root() *yaml.Node {
	return d.Node.Content[0]
}

// Parse reads YAML data into a Document, creating an empty mapping document
// if data holds no content. Syntax errors wrap ErrParse and include the
// offending source line; a non-mapping root or duplicate keys wrap
// ErrInvalidDocument.
func Parse(name string, data []byte) (*Document, error) {
	d := &Document{
		Name:   name,
		Node:   emptyDocument(),
		Raw:    data,
		Indent: 2,
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return d, nil
	}

	// goccy/go-yaml gives source-annotated syntax errors and exposes the
	// document stream, which yaml.v3 silently truncates to its first document.
	f, perr := parser.ParseBytes(data, 0)

	var tmp yaml.Node
	if err := yaml.Unmarshal(data, &tmp); err != nil {
		msg := err.Error()
		if perr != nil {
			msg = gyaml.FormatError(perr, false, true)
		}
		return nil, &DocumentError{Name: name, Err: fmt.Errorf("%w: %s", ErrParse, msg)}
	}
	if perr == nil && len(f.Docs) > 1 {
		return nil, &DocumentError{Name: name, Err: fmt.Errorf("%w: %d YAML documents in one file", ErrInvalidDocument, len(f.Docs))}
	}
	if tmp.Kind == yaml.DocumentNode && len(tmp.Content) > 0 {
		if _, err := rootMapping(&tmp); err != nil {
			return nil, WithName(err, name)
		}
		if err := validate(tmp.Content[0], nil); err != nil {
			return nil, WithName(err, name)
		}
		d.Node = &tmp
	}
	d.Indent = detectIndent(data)
	return d, nil
}

// Marshal encodes the whole document tree with the detected indent.
func (d *Document) Marshal() ([]byte, error) {
	return MarshalNode(d.Node, d.Indent)
}

// MarshalNode encodes n with yaml.v3. An indent below 1 means 2.
func MarshalNode(n *yaml.Node, indent int) ([]byte, error) {
	if indent < 1 {
		indent = 2
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(indent)
	if err := enc.Encode(n); err != nil {
		_ = enc.Close()
		return nil, fmt.Errorf("yamldedup: failed to encode YAML: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("yamldedup: failed to encode YAML: %w", err)
	}
	return buf.Bytes(), nil
}

func emptyDocument() *yaml.Node {
	return &yaml.Node{
		Kind:    yaml.DocumentNode,
		Content: []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}},
	}
}

// detectIndent returns the base indent of b: the GCD of all non-zero
// leading-space counts on content lines, 2 when there is no evidence.
func detectIndent(b []byte) int {
	lines := bytes.Split(b, []byte("\n"))

	indents := []int{}
	for _, ln := range lines {
		if isBlankOrComment(ln) {
			continue
		}
		n := leadingSpaces(ln)
		if n > 0 {
			indents = append(indents, n)
		}
	}

	if len(indents) == 0 {
		return 2
	}

	result := indents[0]
	for i := 1; i < len(indents); i++ {
		result = gcd(result, indents[i])
		if result == 1 {
			break
		}
	}

	if result > 1 && result <= 8 {
		return result
	}
	return 2
}

func isBlankOrComment(ln []byte) bool {
	t := bytes.TrimSpace(ln)
	return len(t) == 0 || t[0] == '#'
}

func gcd(a, b int) int {
	if a < 0 {
		a = -a
	}
	if b < 0 {
		b = -b
	}
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func leadingSpaces(line []byte) int {
	i := 0
	for i < len(line) && line[i] == ' ' {
		i++
	}
	return i
}
