package capability

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/weaverun/weave/types"
)

// TranslateSchema converts a server-advertised JSON schema into the action
// parameter form. Primitive types map field-by-field; an unrecognized type
// becomes accept-any rather than failing the tool. A field is optional
// unless the schema lists it as required.
func TranslateSchema(raw map[string]any) (*types.JSONSchema, error) {
	if len(raw) == 0 {
		return types.NewObjectSchema(), nil
	}
	return translateValue(raw)
}

func translateValue(raw map[string]any) (*types.JSONSchema, error) {
	typ, _ := raw["type"].(string)

	var schema *types.JSONSchema
	switch typ {
	case "object":
		translated, err := translateObject(raw)
		if err != nil {
			return nil, err
		}
		schema = translated
	case "array":
		items := types.NewAnySchema()
		if rawItems, ok := raw["items"]; ok {
			m, ok := rawItems.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("array items must be a schema object, got %T", rawItems)
			}
			translated, err := translateValue(m)
			if err != nil {
				return nil, err
			}
			items = translated
		}
		schema = types.NewArraySchema(items)
	case "string":
		schema = types.NewStringSchema()
	case "number":
		schema = types.NewNumberSchema()
	case "integer":
		schema = types.NewIntegerSchema()
	case "boolean":
		schema = types.NewBooleanSchema()
	default:
		// Unknown or missing type: accept anything rather than reject the tool.
		schema = types.NewAnySchema()
	}

	if desc, ok := raw["description"].(string); ok && desc != "" {
		schema.WithDescription(desc)
	}
	if enum, ok := raw["enum"].([]any); ok {
		schema.Enum = enum
	}
	if def, ok := raw["default"]; ok {
		schema.Default = def
	}
	return schema, nil
}

func translateObject(raw map[string]any) (*types.JSONSchema, error) {
	schema := types.NewObjectSchema()

	if rawProps, ok := raw["properties"]; ok {
		props, ok := rawProps.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("properties must be an object, got %T", rawProps)
		}
		for name, rawProp := range props {
			propMap, ok := rawProp.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("property %q must be a schema object, got %T", name, rawProp)
			}
			prop, err := translateValue(propMap)
			if err != nil {
				return nil, fmt.Errorf("property %q: %w", name, err)
			}
			schema.AddProperty(name, prop)
		}
	}

	if rawRequired, ok := raw["required"]; ok {
		list, ok := rawRequired.([]any)
		if !ok {
			return nil, fmt.Errorf("required must be an array, got %T", rawRequired)
		}
		for _, item := range list {
			name, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("required entries must be strings, got %T", item)
			}
			schema.AddRequired(name)
		}
	}
	return schema, nil
}

// TranslateCatalog converts advertised tools into invocable actions. A tool
// whose schema fails translation is skipped with a logged error; the rest of
// the catalog survives.
func TranslateCatalog(tools []ToolDescriptor, bind func(tool string) types.ActionFunc, logger *zap.Logger) []types.Action {
	if logger == nil {
		logger = zap.NewNop()
	}
	actions := make([]types.Action, 0, len(tools))
	for _, tool := range tools {
		params, err := TranslateSchema(tool.InputSchema)
		if err != nil {
			logger.Error("skipping tool with untranslatable schema",
				zap.String("tool", tool.Name),
				zap.Error(types.NewTranslationError(tool.Name, err)))
			continue
		}
		actions = append(actions, types.Action{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  params,
			Handler:     bind(tool.Name),
		})
	}
	return actions
}

// Actions builds callable actions for a catalog, each opening its own
// connection to the target when invoked.
func (c *Client) Actions(target Target, tools []ToolDescriptor) []types.Action {
	return TranslateCatalog(tools, func(tool string) types.ActionFunc {
		return func(ctx context.Context, args map[string]any) (any, error) {
			conn, err := c.Connect(ctx, target)
			if err != nil {
				return nil, err
			}
			defer conn.Close()

			result, err := conn.Invoke(ctx, tool, args)
			if err != nil {
				return nil, err
			}
			if result.IsError() {
				return nil, types.NewError(types.ErrInternalError, result.Error).
					WithDestination(target.Endpoint)
			}
			return result.Result, nil
		}
	}, c.logger)
}
