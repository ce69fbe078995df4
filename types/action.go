package types

import "context"

// ActionFunc executes an action with decoded arguments.
type ActionFunc func(ctx context.Context, args map[string]any) (any, error)

// Action is a callable handed to an agent's invocation layer: a translated
// capability tool, or a transfer/delegate edge to another agent. The
// invocation layer offers actions to the language model by name, description,
// and parameter schema, and calls Invoke when the model selects one.
type Action struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Parameters  *JSONSchema `json:"parameters,omitempty"`

	Handler ActionFunc `json:"-"`
}

// Invoke runs the action.
func (a *Action) Invoke(ctx context.Context, args map[string]any) (any, error) {
	if a.Handler == nil {
		return nil, NewError(ErrInternalError, "action "+a.Name+" has no handler")
	}
	return a.Handler(ctx, args)
}
