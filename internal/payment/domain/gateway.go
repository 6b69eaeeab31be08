package domain

import "context"

// StatusClient queries a provider for the authoritative status of a charge.
// Implementations must be safe for concurrent use; transport failures are
// reported as ErrGatewayUnavailable so callers can retry on a later pass.
type StatusClient interface {
	Provider() string
	QueryStatus(ctx context.Context, gatewayRef string, ownerRef string) (GatewayStatus, error)
}
