package team

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/roboime/simlink/internal/observability"
	"github.com/rs/zerolog/log"
)

const statusShutdownGrace = 2 * time.Second

// StatusRouter returns the status HTTP handler, building it on first use.
func (s *Service) StatusRouter() *gin.Engine {
	s.routerOnce.Do(func() {
		observability.RegisterMetrics()
		r := gin.New()
		r.Use(gin.Recovery())
		r.Use(observability.RequestLogger(log.Logger))
		r.Use(observability.RequestMetricsMiddleware())
		r.Use(cors.New(cors.Config{
			AllowOrigins: normalizeOrigins(s.cfg.CorsOrigins),
			AllowMethods: []string{"GET"},
			AllowHeaders: []string{"Origin", "Content-Type"},
			MaxAge:       12 * time.Hour,
		}))
		_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})
		s.registerRoutes(r)
		s.router = r
	})
	return s.router
}

func (s *Service) registerRoutes(r gin.IRoutes) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"team":   s.cfg.Team.TeamName,
			"uptime": time.Since(s.started).String(),
			"agents": len(s.Agents()),
			"peers":  s.registry.Len(),
		})
	})

	r.GET("/agents", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"team":   s.cfg.Team.TeamName,
			"agents": s.Agents(),
		})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// serveStatus runs the status server until ctx ends.
func (s *Service) serveStatus(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           s.StatusRouter(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.statusAddr.Store(ln.Addr().String())
	log.Info().Str("addr", ln.Addr().String()).Msg("team.Service.serveStatus listening")

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), statusShutdownGrace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// StatusAddr is the bound status address, empty until the server listens.
func (s *Service) StatusAddr() string {
	v, _ := s.statusAddr.Load().(string)
	return v
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
