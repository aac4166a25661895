package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/paycore/internal/config"
	"github.com/smallbiznis/paycore/internal/observability"
	obsmiddleware "github.com/smallbiznis/paycore/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/paycore/internal/observability/metrics"
	obstracing "github.com/smallbiznis/paycore/internal/observability/tracing"
	paymentdomain "github.com/smallbiznis/paycore/internal/payment/domain"
	"github.com/smallbiznis/paycore/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	ratelimit.Module,
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	if httpMetrics != nil {
		r.Use(httpMetrics.GinMiddleware())
	}
	r.Use(ErrorHandlingMiddleware())

	return r
}

func run(lc fx.Lifecycle, s *Server, log *zap.Logger) {
	srv := &http.Server{
		Addr:              s.cfg.HTTPAddr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return err
			}
			log.Info("http server listening", zap.String("addr", ln.Addr().String()))
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http server stopped", zap.Error(err))
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
	log        *zap.Logger
	paymentSvc paymentdomain.Service
	repo       paymentdomain.Repository
	guard      paymentdomain.Guard

	paymentLimiter *ratelimit.PaymentLimiter
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	Log        *zap.Logger
	PaymentSvc paymentdomain.Service
	Repo       paymentdomain.Repository
	Guard      paymentdomain.Guard
	Limiter    *ratelimit.PaymentLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:     p.Gin,
		cfg:        p.Cfg,
		log:        p.Log.Named("http.server"),
		paymentSvc: p.PaymentSvc,
		repo:       p.Repo,
		guard:      p.Guard,

		paymentLimiter: p.Limiter,
	}

	svc.registerHealthRoutes()
	svc.registerAPIRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api/v1")

	// -------- Payments --------
	api.POST("/payments", s.PaymentRateLimit(), s.ProcessPayment)
	api.GET("/payments/:id", s.GetPaymentByID)
	api.GET("/payments/order/:order_id", s.ListPaymentsByOrder)
	api.POST("/payments/:id/refund", s.RefundPayment)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
	s.engine.NoMethod(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
