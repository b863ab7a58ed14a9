// Package gossip implements a peer-to-peer gossip membership and
// payload-dissemination protocol: nodes exchange their view of the network
// by periodic pairwise merges, detecting dead peers by heartbeat aging.
package gossip

import (
	"sync"
	"time"
)

// PeerState is one known peer's membership entry.
//
// Version is owned by the peer identified by Id and only ever incremented
// by that peer when it attaches a new Payload. Heartbeat is the most
// recent liveness timestamp observed for this peer, in seconds since
// epoch. Payload is absent until the peer has broadcast one, or if this
// entry was synthesized from a third-party sighting (see Merge).
type PeerState struct {
	Id        string  `json:"id"`
	Version   uint64  `json:"version"`
	Heartbeat uint64  `json:"heartbeat"`
	Payload   *string `json:"payload"`
}

// NetworkState is one node's view of the cluster, or the message one node
// sends to another during a gossip exchange.
type NetworkState struct {
	Sender string      `json:"sender"`
	Peers  []PeerState `json:"peers"`
}

// Clock supplies the current time as seconds since epoch. Tests substitute
// a fixed or stepped implementation so the merge function and broadcast
// loop don't depend on wall-clock time.
type Clock interface {
	Now() uint64
}

// SystemClock is the Clock backed by the real wall clock.
type SystemClock struct{}

// Now returns the current Unix time in seconds.
func (SystemClock) Now() uint64 {
	return uint64(time.Now().Unix())
}

// NewStore creates a Store holding only a self entry at version 0,
// heartbeat 0, and optionally a seed peer entry with the same initial
// values.
func NewStore(selfID string, seedID string) *Store {
	peers := []PeerState{{Id: selfID, Version: 0, Heartbeat: 0}}
	if seedID != "" {
		peers = append(peers, PeerState{Id: seedID, Version: 0, Heartbeat: 0})
	}
	return &Store{
		state: NetworkState{Sender: selfID, Peers: peers},
	}
}

// Store guards the one piece of shared mutable state a node keeps: its
// local NetworkState. It is safe for concurrent use; callers snapshot
// under the lock, mutate the snapshot free of the lock, then commit it
// back under the lock, so the lock is never held across a suspension
// point (network I/O or the beat timer).
type Store struct {
	mu    sync.RWMutex
	state NetworkState
}

// Snapshot returns a deep copy of the current local state.
func (s *Store) Snapshot() NetworkState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneState(s.state)
}

// Commit replaces the local state with a deep copy of the given value.
func (s *Store) Commit(state NetworkState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = cloneState(state)
}

// Peers returns the ids of all non-self peers currently known.
func (s *Store) Peers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.state.Peers))
	for _, p := range s.state.Peers {
		if p.Id != s.state.Sender {
			out = append(out, p.Id)
		}
	}
	return out
}

func cloneState(in NetworkState) NetworkState {
	out := NetworkState{Sender: in.Sender, Peers: make([]PeerState, len(in.Peers))}
	for i, p := range in.Peers {
		out.Peers[i] = clonePeer(p)
	}
	return out
}

func clonePeer(p PeerState) PeerState {
	clone := p
	if p.Payload != nil {
		payload := *p.Payload
		clone.Payload = &payload
	}
	return clone
}
