package schema

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
)

// buildNested constructs an object schema nested depth levels deep,
// each level carrying a description.
func buildNested(depth int) json.RawMessage {
	var sb strings.Builder
	for i := 0; i < depth; i++ {
		fmt.Fprintf(&sb, `{"type":"object","description":"level %d","properties":{"child":`, i)
	}
	sb.WriteString(`{"type":"string","description":"leaf"}`)
	for i := 0; i < depth; i++ {
		sb.WriteString(`}}`)
	}
	return json.RawMessage(sb.String())
}

func TestTranslatePreservesNestingDepth(t *testing.T) {
	const depth = 12

	n, err := Decode(buildNested(depth))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	v := Translate(n)

	// Walk down: output depth must equal input depth, with every
	// description intact along the way.
	cur := v
	for i := 0; i < depth; i++ {
		if cur.Type != "OBJECT" {
			t.Fatalf("level %d type = %q, want OBJECT", i, cur.Type)
		}
		want := fmt.Sprintf("level %d", i)
		if cur.Description != want {
			t.Fatalf("level %d description = %q, want %q", i, cur.Description, want)
		}
		next, ok := cur.Properties["child"]
		if !ok {
			t.Fatalf("level %d missing child property", i)
		}
		cur = next
	}
	if cur.Type != "STRING" || cur.Description != "leaf" {
		t.Errorf("leaf = %+v, want STRING/leaf", cur)
	}
}

func TestTranslatePreservesEnumAndRequired(t *testing.T) {
	raw := json.RawMessage(`{
		"type": "object",
		"properties": {
			"action": {"type": "string", "enum": ["start", "stop"], "description": "What to do"},
			"target": {"type": "string"}
		},
		"required": ["action", "target"]
	}`)

	n, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	v := Translate(n)

	if len(v.Required) != 2 {
		t.Errorf("required = %v, want two entries", v.Required)
	}
	action := v.Properties["action"]
	if action.Type != "STRING" {
		t.Errorf("enum node type = %q, want STRING", action.Type)
	}
	if len(action.Enum) != 2 || action.Enum[0] != "start" || action.Enum[1] != "stop" {
		t.Errorf("enum set = %v, want [start stop]", action.Enum)
	}
	if action.Description != "What to do" {
		t.Error("description lost on enum node")
	}
}

func TestTranslateArray(t *testing.T) {
	raw := json.RawMessage(`{
		"type": "object",
		"properties": {
			"stories": {
				"type": "array",
				"description": "Story list",
				"items": {"type": "object", "properties": {"id": {"type": "integer"}}}
			}
		}
	}`)

	n, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	v := Translate(n)

	stories := v.Properties["stories"]
	if stories.Type != "ARRAY" {
		t.Fatalf("type = %q, want ARRAY", stories.Type)
	}
	if stories.Items == nil || stories.Items.Type != "OBJECT" {
		t.Fatalf("items not translated recursively: %+v", stories.Items)
	}
	if stories.Items.Properties["id"].Type != "INTEGER" {
		t.Error("nested item property not translated")
	}
}

func TestTranslateScalarKinds(t *testing.T) {
	cases := []struct {
		kind Kind
		want string
	}{
		{KindString, "STRING"},
		{KindNumber, "NUMBER"},
		{KindInteger, "INTEGER"},
		{KindBoolean, "BOOLEAN"},
	}
	for _, tc := range cases {
		v := Translate(&Node{Kind: tc.kind})
		if v.Type != tc.want {
			t.Errorf("Translate(%v).Type = %q, want %q", tc.kind, v.Type, tc.want)
		}
	}
}

func TestTranslateNil(t *testing.T) {
	if Translate(nil) != nil {
		t.Error("Translate(nil) should be nil")
	}
}

func TestTranslateVisitsEachNodeOnce(t *testing.T) {
	raw := json.RawMessage(`{
		"type": "object",
		"properties": {
			"a": {"type": "string"},
			"b": {"type": "array", "items": {"type": "number"}},
			"c": {"type": "object", "properties": {"d": {"type": "boolean"}}}
		}
	}`)

	n, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	v := Translate(n)

	if got := countValues(v); got != countNodes(n) {
		t.Errorf("output has %d nodes, input has %d", got, countNodes(n))
	}
}

func countNodes(n *Node) int {
	if n == nil {
		return 0
	}
	total := 1
	for _, p := range n.Properties {
		total += countNodes(p)
	}
	total += countNodes(n.Items)
	return total
}

func countValues(v *Value) int {
	if v == nil {
		return 0
	}
	total := 1
	for _, p := range v.Properties {
		total += countValues(p)
	}
	total += countValues(v.Items)
	return total
}

func TestNewDeclaration(t *testing.T) {
	n, err := Decode(json.RawMessage(`{"type":"object","properties":{"x":{"type":"string"}}}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	decl := NewDeclaration("agent_launch", "Start agents", n)
	if decl.Name != "agent_launch" || decl.Description != "Start agents" {
		t.Errorf("declaration header wrong: %+v", decl)
	}
	if decl.Parameters == nil || decl.Parameters.Type != "OBJECT" {
		t.Errorf("parameters not attached: %+v", decl.Parameters)
	}

	// A capability with no parameters advertises none.
	empty := NewDeclaration("agent_stop", "Stop agents", nil)
	if empty.Parameters != nil {
		t.Errorf("nil schema should produce nil parameters, got %+v", empty.Parameters)
	}
}
