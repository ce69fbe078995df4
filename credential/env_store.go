package credential

import (
	"context"
	"fmt"
	"os"
)

// EnvStore maps header names to environment variable names. Each retrieval
// parameter `Header-Name: ENV_VAR` resolves to `Header-Name: $ENV_VAR`. A
// referenced variable that is unset or empty fails the resolution, because
// silently sending a blank credential is worse than failing the call.
type EnvStore struct{}

// NewEnvStore creates an environment-variable backed store.
func NewEnvStore() *EnvStore {
	return &EnvStore{}
}

// Resolve reads each named environment variable into its header.
func (s *EnvStore) Resolve(_ context.Context, params map[string]string) (map[string]string, error) {
	headers := make(map[string]string, len(params))
	for header, envName := range params {
		value := os.Getenv(envName)
		if value == "" {
			return nil, fmt.Errorf("credential: environment variable %s for header %s is not set", envName, header)
		}
		headers[header] = value
	}
	return headers, nil
}

var _ Store = (*EnvStore)(nil)
