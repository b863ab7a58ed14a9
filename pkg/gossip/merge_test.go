package gossip

import (
	"testing"
)

func ptr(s string) *string { return &s }

func peerByID(peers []PeerState, id string) (PeerState, bool) {
	for _, p := range peers {
		if p.Id == id {
			return p, true
		}
	}
	return PeerState{}, false
}

// TestMergeInitFromSender covers scenario 1: first contact with a sender
// that carries a payload.
func TestMergeInitFromSender(t *testing.T) {
	local := &NetworkState{
		Sender: "R",
		Peers:  []PeerState{{Id: "R", Version: 2, Heartbeat: 1}},
	}
	foreign := &NetworkState{
		Sender: "S",
		Peers:  []PeerState{{Id: "S", Version: 1, Heartbeat: 10, Payload: ptr("m")}},
	}

	Merge(foreign, local, 2, 12)

	if len(local.Peers) != 2 {
		t.Fatalf("expected 2 peers, got %d: %v", len(local.Peers), local.Peers)
	}
	s, ok := peerByID(local.Peers, "S")
	if !ok || s.Payload == nil || *s.Payload != "m" {
		t.Fatalf("expected S inserted with payload, got %v", s)
	}
	r, _ := peerByID(local.Peers, "R")
	if r.Heartbeat != 12 {
		t.Fatalf("expected R.heartbeat == 12, got %d", r.Heartbeat)
	}
}

// TestMergeAddFromThirdParty covers scenario 2: a reported third party is
// either inserted reset-to-zero (alive) or skipped (already stale).
func TestMergeAddFromThirdParty(t *testing.T) {
	local := &NetworkState{
		Sender: "R",
		Peers:  []PeerState{{Id: "R", Version: 1, Heartbeat: 1}},
	}
	foreign := &NetworkState{
		Sender: "S",
		Peers: []PeerState{
			{Id: "S", Version: 1, Heartbeat: 10},
			{Id: "peer3", Version: 4, Heartbeat: 10},
			{Id: "peer4", Version: 4, Heartbeat: 8},
		},
	}

	Merge(foreign, local, 2, 12)

	if len(local.Peers) != 3 {
		t.Fatalf("expected 3 peers, got %d: %v", len(local.Peers), local.Peers)
	}
	peer3, ok := peerByID(local.Peers, "peer3")
	if !ok {
		t.Fatal("expected peer3 to be inserted")
	}
	if peer3.Version != 0 || peer3.Payload != nil {
		t.Fatalf("expected peer3 reset to version 0 with no payload, got %v", peer3)
	}
	if _, ok := peerByID(local.Peers, "peer4"); ok {
		t.Fatal("peer4 should have been skipped, already stale")
	}
}

// TestMergeThirdPartyUpdateGatedByHeartbeat covers scenario 3.
func TestMergeThirdPartyUpdateGatedByHeartbeat(t *testing.T) {
	local := &NetworkState{
		Sender: "R",
		Peers: []PeerState{
			{Id: "R", Version: 1, Heartbeat: 1},
			{Id: "peer3", Version: 2, Heartbeat: 9, Payload: ptr("old")},
		},
	}
	foreign := &NetworkState{
		Sender: "S",
		Peers: []PeerState{
			{Id: "S", Version: 1, Heartbeat: 10},
			{Id: "peer3", Version: 3, Heartbeat: 10, Payload: ptr("new")},
		},
	}

	Merge(foreign, local, 2, 11)

	peer3, _ := peerByID(local.Peers, "peer3")
	if peer3.Version != 3 || peer3.Heartbeat != 10 || peer3.Payload == nil || *peer3.Payload != "new" {
		t.Fatalf("expected peer3 updated to (3,10,new), got %v", peer3)
	}
}

// TestMergeRejectsHigherVersionStaleHeartbeat covers scenario 4: a higher
// version alone, without a newer heartbeat, must not be adopted.
func TestMergeRejectsHigherVersionStaleHeartbeat(t *testing.T) {
	local := &NetworkState{
		Sender: "R",
		Peers: []PeerState{
			{Id: "R", Version: 1, Heartbeat: 1},
			{Id: "peer3", Version: 2, Heartbeat: 9},
		},
	}
	foreign := &NetworkState{
		Sender: "S",
		Peers: []PeerState{
			{Id: "S", Version: 1, Heartbeat: 9},
			{Id: "peer3", Version: 3, Heartbeat: 9},
		},
	}

	Merge(foreign, local, 2, 11)

	peer3, _ := peerByID(local.Peers, "peer3")
	if peer3.Version != 2 || peer3.Heartbeat != 9 {
		t.Fatalf("expected peer3 unchanged, got %v", peer3)
	}
}

// TestMergeEvictsUntouchedDeadEntry covers scenario 5.
func TestMergeEvictsUntouchedDeadEntry(t *testing.T) {
	local := &NetworkState{
		Sender: "R",
		Peers: []PeerState{
			{Id: "R", Version: 1, Heartbeat: 1},
			{Id: "peer6", Version: 5, Heartbeat: 8},
		},
	}
	foreign := &NetworkState{Sender: "S", Peers: []PeerState{{Id: "S", Version: 1, Heartbeat: 9}}}

	Merge(foreign, local, 2, 11)

	if _, ok := peerByID(local.Peers, "peer6"); ok {
		t.Fatal("expected peer6 to be evicted")
	}
}

// TestMergeRetainsUntouchedLiveEntry covers scenario 6.
func TestMergeRetainsUntouchedLiveEntry(t *testing.T) {
	local := &NetworkState{
		Sender: "R",
		Peers: []PeerState{
			{Id: "R", Version: 1, Heartbeat: 1},
			{Id: "peer5", Version: 5, Heartbeat: 10},
		},
	}
	foreign := &NetworkState{Sender: "S", Peers: []PeerState{{Id: "S", Version: 1, Heartbeat: 9}}}

	Merge(foreign, local, 2, 11)

	if _, ok := peerByID(local.Peers, "peer5"); !ok {
		t.Fatal("expected peer5 to be retained")
	}
}

// TestMergeSelfHeartbeatAlwaysRefreshed checks invariant 2 & the "self
// entry's heartbeat equals now" testable property, across arbitrary input.
func TestMergeSelfHeartbeatAlwaysRefreshed(t *testing.T) {
	local := &NetworkState{Sender: "R", Peers: []PeerState{{Id: "R", Version: 9, Heartbeat: 3}}}
	foreign := &NetworkState{Sender: "Q", Peers: nil}

	Merge(foreign, local, 2, 500)

	r, _ := peerByID(local.Peers, "R")
	if r.Heartbeat != 500 {
		t.Fatalf("expected self heartbeat == now, got %d", r.Heartbeat)
	}
}

// TestMergeIsIdempotent checks that applying the same merge twice, with
// the same inputs and now, changes nothing the second time.
func TestMergeIsIdempotent(t *testing.T) {
	local := &NetworkState{
		Sender: "R",
		Peers: []PeerState{
			{Id: "R", Version: 1, Heartbeat: 1},
			{Id: "peer3", Version: 2, Heartbeat: 9, Payload: ptr("old")},
		},
	}
	foreign := &NetworkState{
		Sender: "S",
		Peers: []PeerState{
			{Id: "S", Version: 1, Heartbeat: 10, Payload: ptr("hi")},
			{Id: "peer3", Version: 3, Heartbeat: 10, Payload: ptr("new")},
		},
	}

	Merge(foreign, local, 2, 11)
	first := cloneState(*local)

	Merge(foreign, local, 2, 11)

	if len(local.Peers) != len(first.Peers) {
		t.Fatalf("second merge changed peer count: %d vs %d", len(local.Peers), len(first.Peers))
	}
	for _, p := range first.Peers {
		got, ok := peerByID(local.Peers, p.Id)
		if !ok {
			t.Fatalf("peer %s missing after second merge", p.Id)
		}
		if got.Version != p.Version || got.Heartbeat != p.Heartbeat {
			t.Fatalf("peer %s changed on second merge: %v -> %v", p.Id, p, got)
		}
	}
}

// TestMergeUniqueIDs checks invariant 1 holds after a merge with
// duplicate-looking input.
func TestMergeUniqueIDs(t *testing.T) {
	local := &NetworkState{Sender: "R", Peers: []PeerState{{Id: "R", Version: 0, Heartbeat: 0}}}
	foreign := &NetworkState{
		Sender: "S",
		Peers: []PeerState{
			{Id: "S", Version: 1, Heartbeat: 5},
			{Id: "peer9", Version: 1, Heartbeat: 5},
		},
	}

	Merge(foreign, local, 10, 5)

	seen := map[string]bool{}
	for _, p := range local.Peers {
		if seen[p.Id] {
			t.Fatalf("duplicate id %s in local.Peers", p.Id)
		}
		seen[p.Id] = true
	}
}
