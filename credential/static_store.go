package credential

import "context"

// StaticStore treats the retrieval parameters themselves as the header
// map. Useful for configuration-supplied tokens that need template
// expansion but no external backend.
type StaticStore struct{}

// NewStaticStore creates a static store.
func NewStaticStore() *StaticStore {
	return &StaticStore{}
}

// Resolve returns a copy of the parameters as headers.
func (s *StaticStore) Resolve(_ context.Context, params map[string]string) (map[string]string, error) {
	headers := make(map[string]string, len(params))
	for k, v := range params {
		headers[k] = v
	}
	return headers, nil
}

var _ Store = (*StaticStore)(nil)
