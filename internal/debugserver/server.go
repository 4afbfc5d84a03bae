// Package debugserver is the optional operational HTTP surface: health
// checks, Prometheus /metrics passthrough, and a live /ws/events stream of
// whatever is passed to Publish (cmd/edge-autoscaler publishes node state
// transitions). None of it is part of the reconciliation
// core — the engine runs identically with this disabled.
package debugserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/payperplay/hosting/pkg/logging"
)

// Config configures the debug server (the debug_server.* config section).
type Config struct {
	Address   string
	AuthToken string // HS256 signing secret; empty disables auth
}

// Server is the debug/metrics HTTP surface.
type Server struct {
	cfg    Config
	hub    *Hub
	http   *http.Server
	log    *logging.Logger
	uptime time.Time
}

func New(cfg Config, log *logging.Logger) *Server {
	s := &Server{cfg: cfg, hub: NewHub(log), log: log, uptime: time.Now()}

	if cfg.Address == "" {
		return s
	}
	if log == nil {
		log = logging.Default()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", s.health)
	authed := router.Group("/")
	authed.Use(bearerAuth(cfg.AuthToken))
	authed.GET("/metrics", gin.WrapH(promhttp.Handler()))
	authed.GET("/ws/events", s.hub.HandleWebsocket)

	s.http = &http.Server{Addr: cfg.Address, Handler: router}
	return s
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "uptime": time.Since(s.uptime).String()})
}

// Publish forwards a group/node event to every connected /ws/events client.
func (s *Server) Publish(e Event) { s.hub.Publish(e) }

// Start runs the hub loop and, if configured with an address, the HTTP
// listener. Both run until Stop, which ends the hub loop at once and gives
// the HTTP listener until its context is done to shut down.
func (s *Server) Start() {
	go s.hub.Run()
	if s.http == nil {
		return
	}
	go func() {
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger().Error("debugserver: listen failed", err, map[string]any{"address": s.cfg.Address})
		}
	}()
}

func (s *Server) Stop(ctx context.Context) {
	s.hub.Stop()
	if s.http != nil {
		s.http.Shutdown(ctx)
	}
}

func (s *Server) logger() *logging.Logger {
	if s.log != nil {
		return s.log
	}
	return logging.Default()
}
