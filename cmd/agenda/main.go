package main

import (
	"github.com/lumeapp/agenda/internal/booking"
	"github.com/lumeapp/agenda/internal/clock"
	"github.com/lumeapp/agenda/internal/config"
	"github.com/lumeapp/agenda/internal/logger"
	"github.com/lumeapp/agenda/internal/migration"
	"github.com/lumeapp/agenda/internal/notifier"
	"github.com/lumeapp/agenda/internal/payment"
	"github.com/lumeapp/agenda/internal/ratelimit"
	"github.com/lumeapp/agenda/internal/reconcile"
	"github.com/lumeapp/agenda/internal/server"
	"github.com/lumeapp/agenda/internal/trigger"
	"github.com/lumeapp/agenda/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		db.Module,
		clock.Module,
		migration.Module,

		booking.Module,
		payment.Module,
		notifier.Module,
		ratelimit.Module,
		reconcile.Module,
		trigger.Module,

		server.Module,
	)
	app.Run()
}
