package normalize

import "github.com/invopop/jsonschema"

// Built-in tool argument shapes. These exist so the canonical tool set has a
// typed Go representation to generate a JSON Schema from, instead of hand
// maintaining the schema literals in schema.go by hand forever — the two are
// expected to agree; GeneratedSchema is used by tests and by tool
// registration code that wants a schema.Reflector-produced document rather
// than the literal string.
type lsArgs struct {
	Path string `json:"path" jsonschema:"required"`
}

type globArgs struct {
	Pattern   string `json:"pattern" jsonschema:"required"`
	Path      string `json:"path" jsonschema:"required"`
	HeadLimit int    `json:"head_limit,omitempty"`
}

type grepArgs struct {
	Pattern    string `json:"pattern" jsonschema:"required"`
	Path       string `json:"path" jsonschema:"required"`
	OutputMode string `json:"output_mode,omitempty"`
	HeadLimit  int    `json:"head_limit,omitempty"`
}

type readArgs struct {
	FilePath string `json:"file_path" jsonschema:"required"`
	Offset   int    `json:"offset,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

type bashArgs struct {
	Command string `json:"command" jsonschema:"required"`
}

var schemaReflector = &jsonschema.Reflector{ExpandedStruct: true}

// GeneratedSchema returns the invopop/jsonschema-produced document for a
// canonical tool's argument struct. Returns nil for tools with no fixed
// built-in shape (Write/Edit/Task/...), whose schema is owned by the
// individual tool implementation instead.
func GeneratedSchema(tool string) *jsonschema.Schema {
	switch tool {
	case ToolLS:
		return schemaReflector.Reflect(&lsArgs{})
	case ToolGlob:
		return schemaReflector.Reflect(&globArgs{})
	case ToolGrep:
		return schemaReflector.Reflect(&grepArgs{})
	case ToolRead:
		return schemaReflector.Reflect(&readArgs{})
	case ToolBash:
		return schemaReflector.Reflect(&bashArgs{})
	default:
		return nil
	}
}
