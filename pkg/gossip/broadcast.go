package gossip

import (
	"context"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// beatInterval is the fixed scheduling tick driving the broadcast engine.
	beatInterval = 100 * time.Millisecond
	// heartbeatBeats is the number of beats between bare heartbeat rounds.
	heartbeatBeats = 10

	// connectTimeout bounds a single outbound connect attempt to at most
	// one beat period, so one slow peer cannot stall an entire round.
	connectTimeout = beatInterval
)

// Dialer opens a connection to a peer address. Production code dials TCP;
// tests substitute an in-memory pipe.
type Dialer func(ctx context.Context, addr string) (net.Conn, error)

// NetDialer dials real TCP connections.
func NetDialer(ctx context.Context, addr string) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, "tcp", addr)
}

// Broadcaster is the heartbeat/broadcast control loop: the periodic ticker
// that emits bare heartbeats, emits payload-bearing messages at the
// configured period once peers are known, exchanges state with every known
// peer, merges the replies, and evicts peers that failed to respond.
type Broadcaster struct {
	SelfID        string
	Store         *Store
	Dial          Dialer
	AliveDuration uint64
	Period        time.Duration
	Clock         Clock
	Logger        *zap.Logger
	Metrics       *Metrics

	// PayloadFunc produces the payload text attached to a payload round.
	// Defaults to a timestamp message when nil, mirroring the reference
	// node's "Time: <now>" broadcast content.
	PayloadFunc func(now uint64) string

	connected bool
}

// Run drives the beat loop until ctx is canceled.
func (b *Broadcaster) Run(ctx context.Context) {
	var ticks uint64
	beatMillis := uint64(beatInterval / time.Millisecond)
	periodMillis := uint64(b.Period/time.Millisecond)

	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(beatInterval):
		}

		payloadDue := b.connected && periodMillis > 0 && (ticks*beatMillis)%periodMillis == 0
		heartbeatDue := (ticks*beatMillis)%(beatMillis*heartbeatBeats) == 0

		if payloadDue {
			b.round(ctx, true)
		} else if heartbeatDue {
			b.round(ctx, false)
		}

		b.checkConnected()

		ticks++
	}
}

// checkConnected emits the one-time "connected to peers" notice on the
// first beat where the local state contains any non-self entry.
func (b *Broadcaster) checkConnected() {
	if b.connected {
		return
	}

	snapshot := b.Store.Snapshot()
	var peers []string
	for _, p := range snapshot.Peers {
		if p.Id != snapshot.Sender {
			peers = append(peers, p.Id)
		}
	}
	if len(peers) == 0 {
		return
	}

	b.connected = true
	if b.Logger != nil {
		b.Logger.Info("connected to peers", zap.Strings("peers", peers))
	}
}

// round performs one unit of broadcast work: snapshot, refresh self state,
// exchange with every known peer, merge replies, evict non-responders, and
// commit the result.
func (b *Broadcaster) round(ctx context.Context, withPayload bool) {
	snapshot := b.Store.Snapshot()

	if len(snapshot.Peers) <= 1 {
		return
	}

	now := b.Clock.Now()

	selfIdx := indexOf(snapshot.Peers, b.SelfID)
	if selfIdx < 0 {
		return
	}
	snapshot.Peers[selfIdx].Heartbeat = now

	kind := "heartbeat"
	if withPayload {
		kind = "payload"
		snapshot.Peers[selfIdx].Version++
		payload := b.payloadText(now)
		snapshot.Peers[selfIdx].Payload = &payload
		if b.Logger != nil {
			b.Logger.Info("sending payload", zap.String("payload", payload))
		}
	}
	b.Metrics.roundPerformed(kind)

	peerAddrs := make([]string, 0, len(snapshot.Peers)-1)
	for _, p := range snapshot.Peers {
		if p.Id != b.SelfID {
			peerAddrs = append(peerAddrs, p.Id)
		}
	}

	replies := b.exchange(ctx, peerAddrs, snapshot)

	// Step 6: apply every reply's merge first, leaving non-responders in
	// place for now. Step 7: only once all merges have landed, remove every
	// non-responder unconditionally -- a later reply must never be allowed
	// to re-insert a peer this round already decided is gone.
	var nonResponders []string
	for _, addr := range peerAddrs {
		reply, ok := replies[addr]
		if !ok || reply == nil {
			nonResponders = append(nonResponders, addr)
			continue
		}
		notices := Merge(reply, &snapshot, b.AliveDuration, now)
		b.Metrics.mergeRecorded()
		b.logNotices(notices)
	}

	evicted := 0
	for _, addr := range nonResponders {
		idx := indexOf(snapshot.Peers, addr)
		if idx >= 0 {
			snapshot.Peers = append(snapshot.Peers[:idx], snapshot.Peers[idx+1:]...)
			evicted++
		}
	}
	b.Metrics.peerEvicted(evicted)
	b.Metrics.peersObserved(len(snapshot.Peers))

	b.Store.Commit(snapshot)
}

// exchange sends snapshot to every address and collects at most one reply
// each, concurrently. A missing or unreadable reply maps to nil.
func (b *Broadcaster) exchange(ctx context.Context, addrs []string, snapshot NetworkState) map[string]*NetworkState {
	replies := make(map[string]*NetworkState, len(addrs))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, addr := range addrs {
		addr := addr
		wg.Add(1)
		go func() {
			defer wg.Done()
			reply := b.sendTo(ctx, addr, snapshot)
			mu.Lock()
			replies[addr] = reply
			mu.Unlock()
		}()
	}
	wg.Wait()
	return replies
}

// sendTo exchanges state with one peer: connect, write our snapshot, read
// its reply. Any failure along the way is logged and treated as no reply.
func (b *Broadcaster) sendTo(ctx context.Context, addr string, snapshot NetworkState) *NetworkState {
	dialCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	conn, err := b.Dial(dialCtx, addr)
	if err != nil {
		if b.Logger != nil {
			b.Logger.Warn("failed to connect to peer", zap.String("peer", addr), zap.Error(err))
		}
		return nil
	}
	defer conn.Close()

	readDeadline := b.Period
	if readDeadline <= 0 {
		readDeadline = beatInterval * heartbeatBeats
	}
	_ = conn.SetDeadline(time.Now().Add(readDeadline))

	if err := WriteFrame(conn, snapshot); err != nil {
		if b.Logger != nil {
			b.Logger.Error("failed to send state to peer", zap.String("peer", addr), zap.Error(err))
		}
		return nil
	}

	reply, err := ReadFrame(conn)
	if err != nil {
		if b.Logger != nil {
			b.Logger.Error("failed to read reply from peer", zap.String("peer", addr), zap.Error(err))
		}
		return nil
	}
	return &reply
}

func (b *Broadcaster) payloadText(now uint64) string {
	if b.PayloadFunc != nil {
		return b.PayloadFunc(now)
	}
	return "Time: " + time.Unix(int64(now), 0).UTC().Format(time.RFC3339)
}

func (b *Broadcaster) logNotices(notices []Notice) {
	if b.Logger == nil {
		return
	}
	for _, n := range notices {
		b.Logger.Info("received payload", zap.String("peer", n.PeerID), zap.String("payload", n.Payload))
	}
}
