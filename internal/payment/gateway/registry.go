package gateway

import (
	"strings"

	"github.com/lumeapp/agenda/internal/payment/domain"
)

// Registry resolves status clients by provider name. Lookups are
// case-insensitive; registration happens once at startup.
type Registry struct {
	clients map[string]domain.StatusClient
}

func NewRegistry(clients []domain.StatusClient) *Registry {
	byName := make(map[string]domain.StatusClient, len(clients))
	for _, client := range clients {
		if client == nil {
			continue
		}
		name := strings.ToLower(strings.TrimSpace(client.Provider()))
		if name == "" {
			continue
		}
		byName[name] = client
	}
	return &Registry{clients: byName}
}

func (r *Registry) ProviderExists(provider string) bool {
	_, ok := r.clients[strings.ToLower(strings.TrimSpace(provider))]
	return ok
}

func (r *Registry) Client(provider string) (domain.StatusClient, error) {
	client, ok := r.clients[strings.ToLower(strings.TrimSpace(provider))]
	if !ok {
		return nil, domain.ErrProviderNotFound
	}
	return client, nil
}
