package yamldedup

import (
	"encoding/json"
	"fmt"
	"strings"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"gopkg.in/yaml.v3"
)

// Path addresses a node by mapping keys from the document root.
// Sequence positions appear as "[i]" segments.
type Path []string

func (p Path) String() string {
	var b strings.Builder
	for i, seg := range p {
		switch {
		case strings.HasPrefix(seg, "[") && strings.HasSuffix(seg, "]"):
			b.WriteString(seg)
		case strings.ContainsAny(seg, ".[]") || seg == "":
			fmt.Fprintf(&b, "[%q]", seg)
		default:
			if i > 0 {
				b.WriteByte('.')
			}
			b.WriteString(seg)
		}
	}
	return b.String()
}

func (p Path) clone() Path {
	if p == nil {
		return nil
	}
	return append(Path(nil), p...)
}

// index segment for sequence items.
func indexSeg(i int) string { return fmt.Sprintf("[%d]", i) }

// RemovedPaths lists, in the key order of before, the paths present in
// before and absent from after. A removed mapping is reported once, not
// per leaf.
func RemovedPaths(before, after *yaml.Node) []Path {
	bm, err := rootMapping(before)
	if err != nil {
		return nil
	}
	am, err := rootMapping(after)
	if err != nil {
		return nil
	}
	var out []Path
	collectRemoved(bm, am, nil, &out)
	return out
}

func collectRemoved(before, after *yaml.Node, path Path, out *[]Path) {
	for i := 0; i+1 < len(before.Content); i += 2 {
		key := before.Content[i].Value
		next := append(path.clone(), key)
		av := lookup(after, key)
		if av == nil {
			*out = append(*out, next)
			continue
		}
		bv, av := resolve(before.Content[i+1]), resolve(av)
		if bv.Kind == yaml.MappingNode && av.Kind == yaml.MappingNode {
			collectRemoved(bv, av, next, out)
		}
	}
}

// MergePatch returns the RFC 7396 merge patch that turns before into after.
// Removed keys appear with a null value.
func MergePatch(before, after *yaml.Node) ([]byte, error) {
	from, err := toJSON(before)
	if err != nil {
		return nil, err
	}
	to, err := toJSON(after)
	if err != nil {
		return nil, err
	}
	patch, err := jsonpatch.CreateMergePatch(from, to)
	if err != nil {
		return nil, fmt.Errorf("yamldedup: failed to build merge patch: %w", err)
	}
	return patch, nil
}

func toJSON(n *yaml.Node) ([]byte, error) {
	m, err := rootMapping(n)
	if err != nil {
		return nil, err
	}
	var v map[string]any
	if err := m.Decode(&v); err != nil {
		return nil, fmt.Errorf("yamldedup: failed to decode document: %w", err)
	}
	if v == nil {
		v = map[string]any{}
	}
	b, err := json.Marshal(jsonSafe(v))
	if err != nil {
		return nil, fmt.Errorf("yamldedup: failed to encode document as JSON: %w", err)
	}
	return b, nil
}

// jsonSafe converts values json.Marshal rejects (maps with non-string
// keys inside sequences) into JSON-compatible shapes.
func jsonSafe(v any) any {
	switch vv := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(vv))
		for k, e := range vv {
			out[k] = jsonSafe(e)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(vv))
		for k, e := range vv {
			out[fmt.Sprint(k)] = jsonSafe(e)
		}
		return out
	case []any:
		out := make([]any, len(vv))
		for i, e := range vv {
			out[i] = jsonSafe(e)
		}
		return out
	default:
		return v
	}
}
