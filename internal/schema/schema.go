// Package schema converts MCP tool input schemas into the function
// declaration format the live voice peer understands. Backends describe
// their capabilities with JSON Schema; the peer accepts a restricted
// dialect, so the conversion must keep every field the peer supports
// (descriptions, enums, required sets, defaults, nesting) and drop the
// rest rather than guess at a substitute.
package schema

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"
)

// Kind identifies the type of a schema node. The set is closed: every
// switch over Kind handles all cases so a new kind is a visible gap
// instead of a silent no-op.
type Kind int

const (
	KindObject Kind = iota
	KindArray
	KindString
	KindNumber
	KindInteger
	KindBoolean
	KindEnum
)

// String returns the JSON Schema type token for the kind.
func (k Kind) String() string {
	switch k {
	case KindObject:
		return "object"
	case KindArray:
		return "array"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindInteger:
		return "integer"
	case KindBoolean:
		return "boolean"
	case KindEnum:
		return "enum"
	default:
		return "unknown"
	}
}

// Node is one node of a capability's parameter schema tree.
// Object nodes carry Properties and Required; array nodes carry Items;
// enum nodes carry the literal value set. Depth is unbounded.
type Node struct {
	Kind        Kind
	Description string
	Default     any
	Nullable    bool

	// Enum holds the literal values for KindEnum nodes.
	Enum []string

	// Properties and Required apply to KindObject nodes.
	Properties map[string]*Node
	Required   []string

	// Items applies to KindArray nodes.
	Items *Node
}

// Fields the peer's declaration dialect has no representation for.
// They are dropped during decoding, never coerced into something
// structurally valid but wrong.
var droppedFields = map[string]bool{
	"$schema":              true,
	"$ref":                 true,
	"$defs":                true,
	"additionalProperties": true,
	"title":                true,
}

// rawNode mirrors the subset of JSON Schema we read from backends.
type rawNode struct {
	Type        json.RawMessage     `json:"type"`
	Description string              `json:"description"`
	Default     any                 `json:"default"`
	Enum        []any               `json:"enum"`
	Properties  map[string]rawNode  `json:"properties"`
	Required    []string            `json:"required"`
	Items       *rawNode            `json:"items"`
	Nullable    bool                `json:"nullable"`
}

// Decode parses an MCP inputSchema document into a Node tree.
// A nil or empty document decodes to nil (a capability with no
// parameters). Unknown type tokens degrade to string and are logged as
// translation loss; the capability is still advertised.
func Decode(raw json.RawMessage) (*Node, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var rn rawNode
	if err := json.Unmarshal(raw, &rn); err != nil {
		return nil, fmt.Errorf("schema: decode input schema: %w", err)
	}

	return decodeNode(rn, "$"), nil
}

// decodeNode converts one raw node and recurses into properties/items.
// path identifies the node for translation-loss warnings.
func decodeNode(rn rawNode, path string) *Node {
	n := &Node{
		Description: rn.Description,
		Default:     rn.Default,
		Nullable:    rn.Nullable,
	}

	kind, nullable := decodeType(rn.Type, path)
	n.Kind = kind
	if nullable {
		n.Nullable = true
	}

	// An enum set overrides the declared scalar kind; the literal
	// values are what the peer needs to constrain the argument.
	if len(rn.Enum) > 0 {
		n.Kind = KindEnum
		n.Enum = make([]string, 0, len(rn.Enum))
		for _, v := range rn.Enum {
			n.Enum = append(n.Enum, fmt.Sprintf("%v", v))
		}
	}

	switch n.Kind {
	case KindObject:
		if len(rn.Properties) > 0 {
			n.Properties = make(map[string]*Node, len(rn.Properties))
			for name, prop := range rn.Properties {
				n.Properties[name] = decodeNode(prop, path+"."+name)
			}
		}
		n.Required = append([]string(nil), rn.Required...)
	case KindArray:
		if rn.Items != nil {
			n.Items = decodeNode(*rn.Items, path+"[]")
		}
	}

	return n
}

// decodeType resolves the JSON Schema "type" field, which may be a
// single token or a list like ["string","null"].
func decodeType(raw json.RawMessage, path string) (Kind, bool) {
	if len(raw) == 0 {
		// Schemas without a type are treated as objects; MCP tool
		// schemas are object-rooted in practice.
		return KindObject, false
	}

	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return kindForToken(single, path), false
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		nullable := false
		token := ""
		for _, t := range list {
			if t == "null" {
				nullable = true
				continue
			}
			if token == "" {
				token = t
			}
		}
		if token == "" {
			// ["null"] alone: nothing concrete to declare.
			logLoss(path, "type list contains only null")
			return KindString, true
		}
		return kindForToken(token, path), nullable
	}

	logLoss(path, fmt.Sprintf("unparseable type %s", string(raw)))
	return KindString, false
}

// kindForToken maps a JSON Schema type token to a Kind, degrading
// unknown tokens to string with a translation-loss warning.
func kindForToken(token, path string) Kind {
	switch token {
	case "object":
		return KindObject
	case "array":
		return KindArray
	case "string":
		return KindString
	case "number":
		return KindNumber
	case "integer":
		return KindInteger
	case "boolean":
		return KindBoolean
	default:
		logLoss(path, fmt.Sprintf("unsupported type token %q", token))
		return KindString
	}
}

// logLoss records a SchemaTranslationLoss warning. Loss is never an
// error: a degraded declaration is preferable to dropping the
// capability entirely.
func logLoss(path, detail string) {
	log.Warn().
		Str("node", path).
		Str("detail", detail).
		Msg("schema: translation loss")
}
