// Package bootstrap constructs a node's initial state, launches the
// broadcast engine and listener task, and waits for shutdown.
package bootstrap

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/mcastellin/netgossip/internal/config"
	"github.com/mcastellin/netgossip/internal/httpapi"
	"github.com/mcastellin/netgossip/pkg/gossip"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// peerAliveDurationSec is the tolerance window, in seconds, beyond which
// an entry whose heartbeat has not been refreshed is considered dead.
const peerAliveDurationSec = 2

// Run binds the listening socket, starts the broadcast engine, listener
// task, and (if enabled) the control-plane HTTP server, then blocks until
// ctx is canceled.
func Run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	localAddr := fmt.Sprintf("127.0.0.1:%d", cfg.Port)

	ln, err := net.Listen("tcp", localAddr)
	if err != nil {
		return fmt.Errorf("failed to start listening on %q: %w", localAddr, err)
	}
	defer ln.Close()

	logger.Info("my address is", zap.String("addr", localAddr))

	store := gossip.NewStore(localAddr, cfg.Connect)

	// Registered on the default registerer so the gossip metrics surface on
	// the same /metrics endpoint the control-plane router serves.
	metrics := gossip.NewMetrics(prometheus.DefaultRegisterer)

	broadcaster := &gossip.Broadcaster{
		SelfID:        localAddr,
		Store:         store,
		Dial:          gossip.NetDialer,
		AliveDuration: peerAliveDurationSec,
		Period:        time.Duration(cfg.Period) * time.Second,
		Clock:         gossip.SystemClock{},
		Logger:        logger.Named("broadcast"),
		Metrics:       metrics,
	}

	listener := &gossip.Listener{
		Store:         store,
		AliveDuration: peerAliveDurationSec,
		Clock:         gossip.SystemClock{},
		Logger:        logger.Named("listener"),
		Metrics:       metrics,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		broadcaster.Run(gctx)
		return nil
	})

	g.Go(func() error {
		return listener.Serve(gctx, ln)
	})

	if cfg.MetricsPort != 0 {
		router := httpapi.NewRouter(logger.Named("http"), store)
		server := httpapi.NewServer(cfg.MetricsPort, router)
		g.Go(func() error {
			return server.Run(gctx)
		})
		logger.Info("control-plane server listening", zap.Uint16("port", cfg.MetricsPort))
	}

	<-ctx.Done()
	logger.Info("stopping gossip node, shutdown signal received")

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
