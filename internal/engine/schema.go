package engine

import (
	"github.com/invopop/jsonschema"

	"github.com/cyberpapiii/imessage-max-sub000/internal/mcp"
)

// reflectInputSchema derives a flat tool input schema from the argument
// struct type A. Reflection is inlined (no $ref/$defs) so the result maps
// directly onto the wire shape clients expect.
func reflectInputSchema[A any]() mcp.ToolInputSchema {
	reflector := jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	var zero A
	s := reflector.Reflect(&zero)

	out := mcp.ToolInputSchema{Type: "object"}
	if s.Properties != nil {
		out.Properties = make(map[string]mcp.SchemaProperty, s.Properties.Len())
		for pair := s.Properties.Oldest(); pair != nil; pair = pair.Next() {
			out.Properties[pair.Key] = toSchemaProperty(pair.Value)
		}
	}
	out.Required = s.Required
	return out
}

func toSchemaProperty(s *jsonschema.Schema) mcp.SchemaProperty {
	p := mcp.SchemaProperty{
		Type:        s.Type,
		Description: s.Description,
		Enum:        s.Enum,
	}
	if s.Items != nil {
		items := toSchemaProperty(s.Items)
		p.Items = &items
	}
	if s.Properties != nil && s.Properties.Len() > 0 {
		p.Properties = make(map[string]mcp.SchemaProperty, s.Properties.Len())
		for pair := s.Properties.Oldest(); pair != nil; pair = pair.Next() {
			p.Properties[pair.Key] = toSchemaProperty(pair.Value)
		}
	}
	return p
}
