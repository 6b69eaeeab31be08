package notifier

import "go.uber.org/fx"

// Module wires the in-process change hub.
var Module = fx.Module("notifier",
	fx.Provide(NewHub),
)
