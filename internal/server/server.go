package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	bookingdomain "github.com/lumeapp/agenda/internal/booking/domain"
	"github.com/lumeapp/agenda/internal/config"
	"github.com/lumeapp/agenda/internal/notifier"
	"github.com/lumeapp/agenda/internal/ratelimit"
	"github.com/lumeapp/agenda/internal/reconcile"
	"github.com/lumeapp/agenda/internal/trigger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(CorrelationMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine     *gin.Engine
	cfg        config.Config
	db         *gorm.DB
	log        *zap.Logger
	bookings   bookingdomain.Repository
	reconciler reconcile.Service
	poller     *trigger.Poller
	changes    *notifier.Hub
	limiter    *ratelimit.WebhookLimiter
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	DB         *gorm.DB
	Log        *zap.Logger
	Bookings   bookingdomain.Repository
	Reconciler reconcile.Service
	Poller     *trigger.Poller
	Changes    *notifier.Hub             `optional:"true"`
	Limiter    *ratelimit.WebhookLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:     p.Gin,
		cfg:        p.Cfg,
		db:         p.DB,
		log:        p.Log.Named("http.server"),
		bookings:   p.Bookings,
		reconciler: p.Reconciler,
		poller:     p.Poller,
		changes:    p.Changes,
		limiter:    p.Limiter,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	v1 := s.engine.Group("/v1")
	{
		v1.GET("/bookings/:id", s.GetBooking)
		v1.GET("/bookings/:id/watch", s.WatchBooking)
		v1.POST("/bookings/:id/reconcile", s.ReconcileBooking)

		v1.GET("/owners/:id/bookings", s.ListOwnerBookings)
		v1.GET("/owners/:id/watch", s.WatchOwner)

		v1.POST("/repair/bookings/:id/fix-rejected", s.FixRejected)
		v1.POST("/repair/packages/:token/fix", s.FixPackage)
		v1.POST("/repair/packages/:token/force-fix", s.ForceFixPackage)
	}

	s.engine.POST("/webhooks/:provider", s.HandleWebhook)
}
