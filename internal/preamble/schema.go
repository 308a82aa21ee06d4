package preamble

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

type nodeKind uint8

const (
	scalarNode nodeKind = iota
	objectNode
	arrayNode
)

type field struct {
	key string
	val *node
}

// node is a JSON value whose object members keep document order.
type node struct {
	kind   nodeKind
	fields []field
	items  []*node
	value  any // string, json.Number, bool or nil
}

// parseNode decodes one JSON document.
func parseNode(raw []byte) (*node, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	n, err := readNode(dec)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err == nil {
		return nil, errors.New("trailing data after schema")
	}
	return n, nil
}

func readNode(dec *json.Decoder) (*node, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	delim, ok := tok.(json.Delim)
	if !ok {
		return &node{kind: scalarNode, value: tok}, nil
	}
	switch delim {
	case '{':
		n := &node{kind: objectNode}
		for dec.More() {
			kt, err := dec.Token()
			if err != nil {
				return nil, err
			}
			key, _ := kt.(string)
			val, err := readNode(dec)
			if err != nil {
				return nil, err
			}
			n.fields = append(n.fields, field{key: key, val: val})
		}
		_, err := dec.Token()
		return n, err
	case '[':
		n := &node{kind: arrayNode}
		for dec.More() {
			item, err := readNode(dec)
			if err != nil {
				return nil, err
			}
			n.items = append(n.items, item)
		}
		_, err := dec.Token()
		return n, err
	}
	return nil, fmt.Errorf("unexpected delimiter %q", delim)
}

// get returns the member named key of an object node.
func (n *node) get(key string) *node {
	if n == nil || n.kind != objectNode {
		return nil
	}
	for _, f := range n.fields {
		if f.key == key {
			return f.val
		}
	}
	return nil
}

// str returns the string value of a scalar node.
func (n *node) str() (string, bool) {
	if n == nil || n.kind != scalarNode {
		return "", false
	}
	s, ok := n.value.(string)
	return s, ok
}

// literal renders n as it appears in a comment: strings quoted, everything
// else as compact JSON.
func (n *node) literal() string {
	if n == nil {
		return "null"
	}
	switch n.kind {
	case scalarNode:
		switch v := n.value.(type) {
		case nil:
			return "null"
		case string:
			return `"` + v + `"`
		default:
			return fmt.Sprint(v)
		}
	case arrayNode:
		parts := make([]string, len(n.items))
		for i, it := range n.items {
			parts[i] = it.literal()
		}
		return "[" + strings.Join(parts, ",") + "]"
	default:
		parts := make([]string, len(n.fields))
		for i, f := range n.fields {
			parts[i] = `"` + f.key + `":` + f.val.literal()
		}
		return "{" + strings.Join(parts, ",") + "}"
	}
}

// defaultLiteral renders a default value. Defaults of enum strings are left
// unquoted.
func defaultLiteral(schema, def *node) string {
	if s, ok := def.str(); ok && schema.get("enum") != nil {
		return s
	}
	return def.literal()
}

// signature renders a tool's parameter list and return type.
func signature(params json.RawMessage) string {
	trimmed := bytes.TrimSpace(params)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return "() => any"
	}
	schema, err := parseNode(trimmed)
	if err != nil || schema.kind != objectNode {
		return "(_: any) => any"
	}

	var sb strings.Builder
	sb.WriteString("(_:")
	if desc, ok := schema.get("description").str(); ok && desc != "" {
		sb.WriteString(" // ")
		sb.WriteString(desc)
		sb.WriteString("\n{")
	} else {
		sb.WriteString(" {")
	}
	writeProperties(&sb, schema, "\n")
	sb.WriteString("\n}) => any")
	return sb.String()
}

// writeProperties renders the properties of an object schema, one per line.
// indent starts with the newline that opens each line.
func writeProperties(sb *strings.Builder, schema *node, indent string) {
	props := schema.get("properties")
	if props == nil || props.kind != objectNode {
		return
	}
	required := make(map[string]bool)
	if req := schema.get("required"); req != nil {
		for _, r := range req.items {
			if s, ok := r.str(); ok {
				required[s] = true
			}
		}
	}

	for _, p := range props.fields {
		val := p.val
		if title, ok := val.get("title").str(); ok && title != "" {
			sb.WriteString(indent + "// " + title)
			sb.WriteString(indent + "//")
		}
		desc, _ := val.get("description").str()
		if desc != "" {
			for line := range strings.SplitSeq(desc, "\n") {
				sb.WriteString(indent + "// " + line)
			}
		}
		if ex := val.get("examples"); ex != nil && len(ex.items) > 0 {
			sb.WriteString(indent + "// Examples:")
			for _, e := range ex.items {
				sb.WriteString(indent + "// - " + e.literal())
			}
		}

		name := p.key
		if !required[p.key] {
			name += "?"
		}

		if oneOf := val.get("oneOf"); oneOf != nil && len(oneOf.items) > 0 {
			if def := val.get("default"); def != nil {
				sb.WriteString(indent + "// default: " + defaultLiteral(val, def))
			}
			sb.WriteString(indent + name + ":")
			for i, variant := range oneOf.items {
				sb.WriteString(indent + " | " + tsType(variant, indent+"   "))
				var trailing []string
				if d, ok := variant.get("description").str(); ok && d != "" && (i != 0 || d != desc) {
					trailing = append(trailing, d)
				}
				if def := variant.get("default"); def != nil {
					trailing = append(trailing, "default: "+defaultLiteral(variant, def))
				}
				if len(trailing) > 0 {
					sb.WriteString(" // " + strings.Join(trailing, " "))
				}
			}
			sb.WriteString(indent + ",")
			continue
		}

		ts := tsType(val, indent)
		if nb := val.get("nullable"); nb != nil && nb.value == true && !strings.Contains(ts, "null") {
			ts += " | null"
		}
		sb.WriteString(indent + name + ": " + ts)
		if def := val.get("default"); def != nil {
			sb.WriteString(", // default: " + defaultLiteral(val, def))
		} else {
			sb.WriteString(",")
		}
	}
}

// tsType renders schema as a TypeScript type. Nested object members are
// indented one level past indent and the closing brace sits at indent.
func tsType(schema *node, indent string) string {
	if schema == nil || schema.kind != objectNode {
		return "any"
	}

	typ := schema.get("type")
	if t, ok := typ.str(); ok {
		switch t {
		case "object":
			var sb strings.Builder
			sb.WriteString("{")
			writeProperties(&sb, schema, indent+"    ")
			sb.WriteString(indent + "}")
			return sb.String()
		case "string":
			if enum := schema.get("enum"); enum != nil && len(enum.items) > 0 {
				vals := make([]string, len(enum.items))
				for i, v := range enum.items {
					s, ok := v.str()
					if !ok {
						s = v.literal()
					}
					vals[i] = `"` + s + `"`
				}
				return strings.Join(vals, " | ")
			}
			return "string"
		case "number", "integer":
			return "number"
		case "boolean":
			return "boolean"
		case "null":
			return "null"
		case "array":
			if items := schema.get("items"); items != nil {
				return tsType(items, indent) + "[]"
			}
			return "Array<any>"
		}
	}

	if typ != nil && typ.kind == arrayNode && len(typ.items) > 0 {
		vals := make([]string, 0, len(typ.items))
		for _, v := range typ.items {
			s, _ := v.str()
			if s == "integer" {
				s = "number"
			}
			vals = append(vals, s)
		}
		return strings.Join(vals, " | ")
	}

	if oneOf := schema.get("oneOf"); oneOf != nil && len(oneOf.items) > 0 {
		vals := make([]string, len(oneOf.items))
		for i, v := range oneOf.items {
			vals[i] = tsType(v, indent)
		}
		return strings.Join(vals, " | ")
	}

	return "any"
}
