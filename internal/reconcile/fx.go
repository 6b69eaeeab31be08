package reconcile

import "go.uber.org/fx"

// Module wires the reconciliation coordinator.
var Module = fx.Module("reconcile",
	fx.Provide(NewService),
)
