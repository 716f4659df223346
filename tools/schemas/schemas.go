// Package schemas contains the descriptions and JSON argument schemas of the
// tools claw exposes to the model.
package schemas

// ToolSchema represents a tool's description and JSON schema.
type ToolSchema struct {
	Description string
	Schema      map[string]any
}

// All returns all tool schemas from all categories.
func All() map[string]ToolSchema {
	schemas := make(map[string]ToolSchema)

	for name, schema := range SystemSchemas() {
		schemas[name] = schema
	}
	for name, schema := range MemorySchemas() {
		schemas[name] = schema
	}

	return schemas
}
