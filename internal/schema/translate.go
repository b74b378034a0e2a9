package schema

// Value is a schema node in the peer's function-declaration dialect.
// Type tokens are upper-case per the live API convention.
type Value struct {
	Type        string            `json:"type,omitempty"`
	Description string            `json:"description,omitempty"`
	Default     any               `json:"default,omitempty"`
	Nullable    bool              `json:"nullable,omitempty"`
	Enum        []string          `json:"enum,omitempty"`
	Properties  map[string]*Value `json:"properties,omitempty"`
	Required    []string          `json:"required,omitempty"`
	Items       *Value            `json:"items,omitempty"`
}

// Declaration is a single function declaration advertised to the peer.
type Declaration struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Parameters  *Value `json:"parameters,omitempty"`
}

// Translate converts a Node tree into the peer's declaration dialect.
// It is pure and total: every node translates to exactly one Value,
// recursion depth equals input depth, and every descriptive field the
// dialect supports (description, enum set, required set, default,
// nullable) is carried over at every level.
func Translate(n *Node) *Value {
	if n == nil {
		return nil
	}

	v := &Value{
		Description: n.Description,
		Default:     n.Default,
		Nullable:    n.Nullable,
	}

	switch n.Kind {
	case KindObject:
		v.Type = "OBJECT"
		if len(n.Properties) > 0 {
			v.Properties = make(map[string]*Value, len(n.Properties))
			for name, prop := range n.Properties {
				v.Properties[name] = Translate(prop)
			}
		}
		v.Required = append([]string(nil), n.Required...)
	case KindArray:
		v.Type = "ARRAY"
		v.Items = Translate(n.Items)
	case KindString:
		v.Type = "STRING"
	case KindNumber:
		v.Type = "NUMBER"
	case KindInteger:
		v.Type = "INTEGER"
	case KindBoolean:
		v.Type = "BOOLEAN"
	case KindEnum:
		// The dialect expresses enums as constrained strings.
		v.Type = "STRING"
		v.Enum = append([]string(nil), n.Enum...)
	}

	return v
}

// NewDeclaration builds a declaration from a capability's name,
// description, and decoded parameter schema.
func NewDeclaration(name, description string, params *Node) Declaration {
	return Declaration{
		Name:        name,
		Description: description,
		Parameters:  Translate(params),
	}
}
