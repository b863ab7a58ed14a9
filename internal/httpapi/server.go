// Package httpapi serves the node's auxiliary control-plane endpoints --
// health and metrics -- which are operability surface, not part of the
// gossip wire protocol itself.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	ginprometheus "github.com/zsais/go-gin-prometheus"
	"go.uber.org/zap"
)

// PeerCounter reports how many peers the node currently knows about, for
// the /healthz response.
type PeerCounter interface {
	Peers() []string
}

// NewRouter builds the gin engine exposing /healthz and /metrics.
func NewRouter(logger *zap.Logger, peers PeerCounter) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(ginzap.Ginzap(logger, time.RFC3339, true))
	router.Use(ginzap.RecoveryWithZap(logger, true))

	prom := ginprometheus.NewPrometheus("gossip")
	prom.Use(router)

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":     "ok",
			"peer_count": len(peers.Peers()),
		})
	})

	return router
}

// Server wraps an http.Server running the control-plane router.
type Server struct {
	httpServer *http.Server
}

// NewServer binds the control-plane server to 127.0.0.1:port.
func NewServer(port uint16, router *gin.Engine) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:    fmt.Sprintf("127.0.0.1:%d", port),
			Handler: router,
		},
	}
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
