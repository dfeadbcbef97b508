package normalize

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// builtinSchemas holds one compiled schema per canonical tool. Schemas are
// generated once from the built-in argument structs (see schemagen.go) and
// compiled lazily on first use.
var (
	schemaMu    sync.Mutex
	compiled    = map[string]*jsonschema.Schema{}
	schemaByTool = map[string]string{
		ToolLS:   `{"type":"object","properties":{"path":{"type":"string"}},"required":["path"]}`,
		ToolGlob: `{"type":"object","properties":{"pattern":{"type":"string"},"path":{"type":"string"},"head_limit":{"type":"integer"}},"required":["pattern","path"]}`,
		ToolGrep: `{"type":"object","properties":{"pattern":{"type":"string"},"path":{"type":"string"},"output_mode":{"type":"string"},"head_limit":{"type":"integer"}},"required":["pattern","path"]}`,
		ToolRead: `{"type":"object","properties":{"file_path":{"type":"string"},"offset":{"type":"integer"},"limit":{"type":"integer"}},"required":["file_path"]}`,
		ToolBash: `{"type":"object","properties":{"command":{"type":"string"}},"required":["command"]}`,
		ToolCwd:  `{"type":"object"}`,
	}
)

// ValidateArgs validates a normalized call's arguments against the tool's
// compiled schema. Tools with no declared schema (Write/Edit/Task/...) pass
// through unvalidated — their shape is owned by the tool implementation.
func ValidateArgs(call *NormalizedCall) error {
	raw, ok := schemaByTool[call.Name]
	if !ok {
		return nil
	}

	sch, err := compiledSchema(call.Name, raw)
	if err != nil {
		return fmt.Errorf("%s: compiling schema: %w", call.Name, err)
	}

	// jsonschema validates against decoded JSON values, not Go maps directly;
	// round-trip through JSON to get the same representation jsonschema expects.
	b, err := json.Marshal(call.Args)
	if err != nil {
		return fmt.Errorf("%s: encoding arguments: %w", call.Name, err)
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("%s: decoding arguments: %w", call.Name, err)
	}

	if err := sch.Validate(v); err != nil {
		return fmt.Errorf("%s: argument validation failed: %w", call.Name, err)
	}
	return nil
}

func compiledSchema(tool, raw string) (*jsonschema.Schema, error) {
	schemaMu.Lock()
	defer schemaMu.Unlock()

	if s, ok := compiled[tool]; ok {
		return s, nil
	}

	c := jsonschema.NewCompiler()
	resourceName := tool + ".json"
	if err := c.AddResource(resourceName, strings.NewReader(raw)); err != nil {
		return nil, err
	}
	s, err := c.Compile(resourceName)
	if err != nil {
		return nil, err
	}
	compiled[tool] = s
	return s, nil
}
