package gossip

import (
	"context"
	"net"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Listener accepts inbound gossip connections and merges each request
// into the shared Store, replying with the post-merge local state.
type Listener struct {
	Store         *Store
	AliveDuration uint64
	Clock         Clock
	Logger        *zap.Logger
	Metrics       *Metrics
}

// Serve runs the accept loop on ln until ctx is canceled or ln.Accept
// fails. Each accepted connection is handled by its own goroutine so
// multiple inbound connections can be served concurrently; the Store's
// internal lock keeps merges serialized.
func (l *Listener) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			if l.Logger != nil {
				l.Logger.Error("accept failed", zap.Error(err))
			}
			return err
		}

		connID := uuid.NewString()
		go l.handle(connID, conn)
	}
}

// handle services one connection until the peer closes it or an I/O or
// parse error ends the exchange.
func (l *Listener) handle(connID string, conn net.Conn) {
	defer conn.Close()

	for {
		foreign, err := ReadFrame(conn)
		if err != nil {
			if l.Logger != nil {
				l.Logger.Debug("connection ended", zap.String("conn", connID), zap.Error(err))
			}
			return
		}

		now := l.Clock.Now()
		local := l.Store.Snapshot()
		notices := Merge(&foreign, &local, l.AliveDuration, now)
		l.Metrics.mergeRecorded()
		l.Metrics.peersObserved(len(local.Peers))
		l.Store.Commit(local)

		if l.Logger != nil {
			for _, n := range notices {
				l.Logger.Info("received payload", zap.String("peer", n.PeerID), zap.String("payload", n.Payload))
			}
		}

		if err := WriteFrame(conn, local); err != nil {
			if l.Logger != nil {
				l.Logger.Error("failed to reply to peer", zap.String("conn", connID), zap.Error(err))
			}
			return
		}
	}
}
