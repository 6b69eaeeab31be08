package payment

import (
	"github.com/lumeapp/agenda/internal/config"
	"github.com/lumeapp/agenda/internal/payment/domain"
	"github.com/lumeapp/agenda/internal/payment/gateway"
	"github.com/lumeapp/agenda/internal/payment/gateway/pix"
	"github.com/lumeapp/agenda/internal/payment/gateway/stripe"
	"github.com/lumeapp/agenda/internal/payment/repository"
	"go.uber.org/fx"
)

func newRegistry(cfg config.Config) *gateway.Registry {
	clients := []domain.StatusClient{
		stripe.NewClient(cfg.Gateway.StripeAPIKey),
		pix.NewClient(cfg.Gateway.PixBaseURL, cfg.Gateway.PixAPIKey),
	}
	return gateway.NewRegistry(clients)
}

// Module wires payment persistence and the provider status clients.
var Module = fx.Module("payment",
	fx.Provide(
		repository.Provide,
		newRegistry,
	),
)
