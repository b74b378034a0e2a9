package schema

import (
	"encoding/json"
	"testing"
)

func TestDecodeEmpty(t *testing.T) {
	n, err := Decode(nil)
	if err != nil {
		t.Fatalf("Decode(nil) returned error: %v", err)
	}
	if n != nil {
		t.Errorf("Decode(nil) = %+v, want nil", n)
	}

	n, err = Decode(json.RawMessage("null"))
	if err != nil {
		t.Fatalf("Decode(null) returned error: %v", err)
	}
	if n != nil {
		t.Errorf("Decode(null) = %+v, want nil", n)
	}
}

func TestDecodeFlatObject(t *testing.T) {
	raw := json.RawMessage(`{
		"type": "object",
		"properties": {
			"project_dir": {"type": "string", "description": "Project directory"},
			"verifiers": {"type": "integer", "description": "Verifier count", "default": 0}
		},
		"required": ["project_dir"]
	}`)

	n, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if n.Kind != KindObject {
		t.Fatalf("root kind = %v, want object", n.Kind)
	}
	if len(n.Properties) != 2 {
		t.Fatalf("expected 2 properties, got %d", len(n.Properties))
	}

	dir := n.Properties["project_dir"]
	if dir.Kind != KindString || dir.Description != "Project directory" {
		t.Errorf("project_dir decoded wrong: %+v", dir)
	}

	v := n.Properties["verifiers"]
	if v.Kind != KindInteger {
		t.Errorf("verifiers kind = %v, want integer", v.Kind)
	}
	if v.Default == nil {
		t.Error("verifiers default was dropped")
	}

	if len(n.Required) != 1 || n.Required[0] != "project_dir" {
		t.Errorf("required = %v, want [project_dir]", n.Required)
	}
}

func TestDecodeEnum(t *testing.T) {
	raw := json.RawMessage(`{
		"type": "object",
		"properties": {
			"mode": {"type": "string", "enum": ["camera", "screen", "none"]}
		}
	}`)

	n, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	mode := n.Properties["mode"]
	if mode.Kind != KindEnum {
		t.Fatalf("mode kind = %v, want enum", mode.Kind)
	}
	if len(mode.Enum) != 3 || mode.Enum[0] != "camera" {
		t.Errorf("enum values = %v, want [camera screen none]", mode.Enum)
	}
}

func TestDecodeNullableTypeList(t *testing.T) {
	raw := json.RawMessage(`{
		"type": "object",
		"properties": {
			"since_commit": {"type": ["string", "null"], "description": "Last seen commit"}
		}
	}`)

	n, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	sc := n.Properties["since_commit"]
	if sc.Kind != KindString {
		t.Errorf("kind = %v, want string", sc.Kind)
	}
	if !sc.Nullable {
		t.Error("nullable flag not set from type list")
	}
	if sc.Description != "Last seen commit" {
		t.Error("description lost on nullable node")
	}
}

func TestDecodeDropsUnsupportedFields(t *testing.T) {
	// $schema, additionalProperties, $defs and title must vanish
	// without disturbing the fields that survive.
	raw := json.RawMessage(`{
		"$schema": "http://json-schema.org/draft-07/schema#",
		"title": "LaunchArgs",
		"additionalProperties": false,
		"type": "object",
		"properties": {
			"name": {"type": "string", "title": "Name", "description": "kept"}
		}
	}`)

	n, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if n.Kind != KindObject {
		t.Fatalf("root kind = %v, want object", n.Kind)
	}
	if n.Properties["name"].Description != "kept" {
		t.Error("description lost while stripping unsupported fields")
	}
}

func TestDecodeUnknownTypeDegrades(t *testing.T) {
	raw := json.RawMessage(`{
		"type": "object",
		"properties": {
			"blob": {"type": "binary"}
		}
	}`)

	n, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode must not fail on unknown type tokens: %v", err)
	}
	if n.Properties["blob"].Kind != KindString {
		t.Errorf("unknown type degraded to %v, want string", n.Properties["blob"].Kind)
	}
}

func TestDecodeMissingTypeDefaultsToObject(t *testing.T) {
	raw := json.RawMessage(`{"properties": {"x": {"type": "string"}}}`)

	n, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if n.Kind != KindObject {
		t.Errorf("kind = %v, want object", n.Kind)
	}
}

func TestKindString(t *testing.T) {
	cases := map[Kind]string{
		KindObject:  "object",
		KindArray:   "array",
		KindString:  "string",
		KindNumber:  "number",
		KindInteger: "integer",
		KindBoolean: "boolean",
		KindEnum:    "enum",
		Kind(99):    "unknown",
	}
	for k, want := range cases {
		if k.String() != want {
			t.Errorf("Kind(%d).String() = %q, want %q", k, k.String(), want)
		}
	}
}
