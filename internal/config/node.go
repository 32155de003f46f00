package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"
)

// NodeKind tags the shape of one parsed document node.
type NodeKind int

const (
	KindNull NodeKind = iota
	KindString
	KindNumber
	KindBool
	KindArray
	KindObject
)

// Entry is one key/value pair of an object node, kept in document order so
// the validator can detect document-order shadowing (§4.3 SHADOWED_HOST /
// SHADOWED_PATH).
type Entry struct {
	Key   string
	Value *Node
}

// Node is a format-agnostic parse tree: both the JSON and the YAML front
// ends produce this same shape, so the normalizer and validator never care
// which wire format a document arrived in.
type Node struct {
	Kind    NodeKind
	Str     string
	Num     json.Number
	Bool    bool
	Items   []*Node
	Entries []Entry
}

// ParseDocument auto-detects JSON vs. YAML and returns a common Node tree.
// The external wire format is JSON (§6); YAML is accepted as a convenience
// superset for human-authored config files.
func ParseDocument(data []byte) (*Node, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		if n, err := parseJSON(data); err == nil {
			return n, nil
		}
	}
	n, err := parseYAML(data)
	if err != nil {
		return nil, fmt.Errorf("document does not parse as JSON or YAML: %w", err)
	}
	return n, nil
}

func parseJSON(data []byte) (*Node, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	n, err := decodeJSONValue(dec, tok)
	if err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("trailing data after JSON document")
	}
	return n, nil
}

func decodeJSONValue(dec *json.Decoder, tok json.Token) (*Node, error) {
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			obj := &Node{Kind: KindObject}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("expected string object key, got %v", keyTok)
				}
				valTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				val, err := decodeJSONValue(dec, valTok)
				if err != nil {
					return nil, err
				}
				obj.Entries = append(obj.Entries, Entry{Key: key, Value: val})
			}
			if _, err := dec.Token(); err != nil { // consume '}'
				return nil, err
			}
			return obj, nil
		case '[':
			arr := &Node{Kind: KindArray}
			for dec.More() {
				valTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				val, err := decodeJSONValue(dec, valTok)
				if err != nil {
					return nil, err
				}
				arr.Items = append(arr.Items, val)
			}
			if _, err := dec.Token(); err != nil { // consume ']'
				return nil, err
			}
			return arr, nil
		}
		return nil, fmt.Errorf("unexpected delimiter %v", t)
	case string:
		return &Node{Kind: KindString, Str: t}, nil
	case json.Number:
		return &Node{Kind: KindNumber, Num: t}, nil
	case bool:
		return &Node{Kind: KindBool, Bool: t}, nil
	case nil:
		return &Node{Kind: KindNull}, nil
	default:
		return nil, fmt.Errorf("unexpected JSON token %v", tok)
	}
}

func parseYAML(data []byte) (*Node, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return &Node{Kind: KindNull}, nil
	}
	return convertYAMLNode(doc.Content[0])
}

func convertYAMLNode(n *yaml.Node) (*Node, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return &Node{Kind: KindNull}, nil
		}
		return convertYAMLNode(n.Content[0])
	case yaml.MappingNode:
		obj := &Node{Kind: KindObject}
		for i := 0; i+1 < len(n.Content); i += 2 {
			val, err := convertYAMLNode(n.Content[i+1])
			if err != nil {
				return nil, err
			}
			obj.Entries = append(obj.Entries, Entry{Key: n.Content[i].Value, Value: val})
		}
		return obj, nil
	case yaml.SequenceNode:
		arr := &Node{Kind: KindArray}
		for _, c := range n.Content {
			v, err := convertYAMLNode(c)
			if err != nil {
				return nil, err
			}
			arr.Items = append(arr.Items, v)
		}
		return arr, nil
	case yaml.ScalarNode:
		switch n.Tag {
		case "!!null":
			return &Node{Kind: KindNull}, nil
		case "!!bool":
			b, _ := strconv.ParseBool(n.Value)
			return &Node{Kind: KindBool, Bool: b}, nil
		case "!!int", "!!float":
			return &Node{Kind: KindNumber, Num: json.Number(n.Value)}, nil
		default:
			return &Node{Kind: KindString, Str: n.Value}, nil
		}
	case yaml.AliasNode:
		return convertYAMLNode(n.Alias)
	default:
		return &Node{Kind: KindNull}, nil
	}
}

// Get returns the value for key in an object node, and whether it was found.
func (n *Node) Get(key string) (*Node, bool) {
	if n == nil || n.Kind != KindObject {
		return nil, false
	}
	for _, e := range n.Entries {
		if e.Key == key {
			return e.Value, true
		}
	}
	return nil, false
}

func (n *Node) IsObject() bool { return n != nil && n.Kind == KindObject }
func (n *Node) IsArray() bool  { return n != nil && n.Kind == KindArray }
func (n *Node) IsString() bool { return n != nil && n.Kind == KindString }

func (n *Node) AsString() (string, bool) {
	if n == nil || n.Kind != KindString {
		return "", false
	}
	return n.Str, true
}

func (n *Node) AsBool() (bool, bool) {
	if n == nil || n.Kind != KindBool {
		return false, false
	}
	return n.Bool, true
}

func (n *Node) AsInt() (int, bool) {
	if n == nil || n.Kind != KindNumber {
		return 0, false
	}
	i, err := n.Num.Int64()
	if err != nil {
		return 0, false
	}
	return int(i), true
}
