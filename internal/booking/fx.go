package booking

import (
	"github.com/lumeapp/agenda/internal/booking/repository"
	"go.uber.org/fx"
)

// Module wires booking persistence for the reconciliation engine.
var Module = fx.Module("booking",
	fx.Provide(
		repository.Provide,
	),
)
