package gossip

// Notice is an informational "payload received" event, emitted once per
// peer whose payload was just adopted during a merge. Merge itself never
// logs (it is pure on foreign and does no I/O); callers format and log
// the notices it returns.
type Notice struct {
	PeerID  string
	Payload string
}

// Merge reconciles a foreign NetworkState into local, in place, per the
// following rules:
//
// Phase A walks every peer reported in foreign.Peers. For a peer that
// already has a local entry: if the foreign node is reporting itself, its
// heartbeat is force-refreshed (it just reached us directly) and its
// payload/version are adopted if the foreign version is newer. If the
// foreign node is reporting a third party, the new version is adopted
// only when it comes with a newer heartbeat too -- a higher version alone
// is not enough, since the reporter may hold a stale cached view of a
// peer that has since died. A matching version with a newer heartbeat
// still refreshes the heartbeat alone, evidencing liveness without
// counting as an update.
//
// For a peer with no local entry: first contact with a direct neighbour
// (the foreign sender) is inserted as-is. A third-party sighting is
// inserted only if still within the alive window, and with version reset
// to 0 and no payload -- we have no direct evidence of this peer yet and
// will learn its real version the next time we contact it ourselves.
//
// Phase B retains the self entry unconditionally (heartbeat refreshed to
// now) and every other entry that was touched in phase A or is still
// alive by timestamp; everything else is evicted.
//
// Merge is total: it never fails, and malformed input is not its concern.
func Merge(foreign *NetworkState, local *NetworkState, aliveDuration, now uint64) []Notice {
	updated := make(map[string]bool, len(foreign.Peers))
	var notices []Notice

	for _, f := range foreign.Peers {
		idx := indexOf(local.Peers, f.Id)
		if idx >= 0 {
			r := &local.Peers[idx]
			if f.Id == foreign.Sender {
				r.Heartbeat = now
				if f.Version > r.Version {
					r.Version = f.Version
					r.Payload = clonePayload(f.Payload)
					updated[f.Id] = true
					if r.Payload != nil {
						notices = append(notices, Notice{PeerID: r.Id, Payload: *r.Payload})
					}
				}
				continue
			}

			switch {
			case f.Version > r.Version && f.Heartbeat > r.Heartbeat:
				r.Version = f.Version
				r.Heartbeat = f.Heartbeat
				r.Payload = clonePayload(f.Payload)
				updated[f.Id] = true
				if r.Payload != nil {
					notices = append(notices, Notice{PeerID: r.Id, Payload: *r.Payload})
				}
			case f.Version == r.Version && f.Heartbeat > r.Heartbeat:
				r.Heartbeat = f.Heartbeat
			}
			continue
		}

		// No local entry for this peer id.
		if f.Id == foreign.Sender {
			local.Peers = append(local.Peers, clonePeer(f))
			updated[f.Id] = true
			if f.Payload != nil {
				notices = append(notices, Notice{PeerID: f.Id, Payload: *f.Payload})
			}
		} else if f.Heartbeat+aliveDuration >= now {
			local.Peers = append(local.Peers, PeerState{
				Id:        f.Id,
				Version:   0,
				Heartbeat: f.Heartbeat,
				Payload:   nil,
			})
			updated[f.Id] = true
		}
	}

	retained := local.Peers[:0]
	for _, p := range local.Peers {
		if p.Id == local.Sender {
			p.Heartbeat = now
			retained = append(retained, p)
			continue
		}
		if updated[p.Id] || p.Heartbeat+aliveDuration >= now {
			retained = append(retained, p)
		}
	}
	local.Peers = retained

	return notices
}

func indexOf(peers []PeerState, id string) int {
	for i, p := range peers {
		if p.Id == id {
			return i
		}
	}
	return -1
}

func clonePayload(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
