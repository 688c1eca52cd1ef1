package endpoint

import "context"

// SecretSource resolves signing secret material for an endpoint. The
// registry provides a static config-backed implementation; deployments
// with an external secret manager supply their own.
type SecretSource interface {
	Secret(ctx context.Context, endpointID string) ([]byte, error)
}

// Secret implements SecretSource from the loaded configuration
func (r *Registry) Secret(_ context.Context, endpointID string) ([]byte, error) {
	ep, err := r.Get(endpointID)
	if err != nil {
		return nil, err
	}
	return ep.Secret, nil
}
