package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"crmagent/internal/gemini"

	"github.com/mark3labs/mcp-go/mcp"
)

// ToGeminiTool converts introspected MCP tools into a Gemini tool with one
// function declaration per CRM tool.
func ToGeminiTool(tools []mcp.Tool) (gemini.Tool, error) {
	declarations := make([]gemini.FunctionDeclaration, 0, len(tools))
	for _, tool := range tools {
		schema, err := convertInputSchema(tool.InputSchema)
		if err != nil {
			return gemini.Tool{}, fmt.Errorf("tool %s: %w", tool.Name, err)
		}
		declarations = append(declarations, gemini.FunctionDeclaration{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  schema,
		})
	}
	return gemini.Tool{FunctionDeclarations: declarations}, nil
}

// convertInputSchema round-trips the MCP input schema through JSON so any
// server-specific shape collapses to a generic map before conversion.
func convertInputSchema(schema mcp.ToolInputSchema) (*gemini.Schema, error) {
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("could not marshal input schema: %w", err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("could not parse input schema: %w", err)
	}
	return convertSchema(m), nil
}

// convertSchema maps a JSON-schema fragment to Gemini's schema dialect.
// Unsupported constructs degrade gracefully: anyOf picks the first option,
// unknown types fall back to STRING.
func convertSchema(schema map[string]interface{}) *gemini.Schema {
	if schema == nil {
		return nil
	}

	out := &gemini.Schema{}

	if desc, ok := schema["description"].(string); ok {
		out.Description = desc
	}

	// Gemini has no anyOf; take the first alternative.
	if anyOf, ok := schema["anyOf"].([]interface{}); ok && len(anyOf) > 0 {
		if first, ok := anyOf[0].(map[string]interface{}); ok {
			converted := convertSchema(first)
			converted.Description = out.Description
			return converted
		}
	}

	typ, _ := schema["type"].(string)
	switch typ {
	case "object", "array", "string", "number", "integer", "boolean":
		out.Type = strings.ToUpper(typ)
	case "":
		out.Type = "OBJECT"
	default:
		out.Type = "STRING"
	}

	if props, ok := schema["properties"].(map[string]interface{}); ok {
		out.Properties = make(map[string]*gemini.Schema, len(props))
		for name, value := range props {
			if prop, ok := value.(map[string]interface{}); ok {
				out.Properties[name] = convertSchema(prop)
			}
		}
	}

	if items, ok := schema["items"].(map[string]interface{}); ok {
		out.Items = convertSchema(items)
	}

	if required, ok := schema["required"].([]interface{}); ok {
		for _, value := range required {
			if name, ok := value.(string); ok {
				out.Required = append(out.Required, name)
			}
		}
	}

	if enum, ok := schema["enum"].([]interface{}); ok {
		for _, value := range enum {
			if name, ok := value.(string); ok {
				out.Enum = append(out.Enum, name)
			}
		}
	}

	return out
}
