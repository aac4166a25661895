package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const readinessTimeout = 2 * time.Second

func (s *Server) registerHealthRoutes() {
	s.engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.engine.GET("/ready", s.Ready)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// Ready reports whether the payment store and idempotency guard are reachable.
func (s *Server) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
	defer cancel()

	checks := gin.H{}
	ready := true

	if err := s.repo.Ping(ctx); err != nil {
		s.log.Warn("store not ready", zap.Error(err))
		checks["store"] = "unavailable"
		ready = false
	} else {
		checks["store"] = "ok"
	}

	if err := s.guard.Ping(ctx); err != nil {
		s.log.Warn("idempotency guard not ready", zap.Error(err))
		checks["idempotency"] = "unavailable"
		ready = false
	} else {
		checks["idempotency"] = "ok"
	}

	if !ready {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "checks": checks})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "checks": checks})
}
