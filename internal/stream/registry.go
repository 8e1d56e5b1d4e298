package stream

import (
	"sort"
	"sync"
)

// subscription identifies one desired channel: a channel type plus a symbol.
type subscription struct {
	Channel string // bitfinex.ChannelTicker or bitfinex.ChannelBook
	Symbol  string
}

// registry tracks which channels the caller wants open (survives reconnects)
// and the server-assigned channel ids of the current connection (cleared on
// every disconnect, since ids are only valid per connection).
type registry struct {
	mu      sync.Mutex
	desired map[subscription]struct{}
	byChan  map[int]subscription
	bySub   map[subscription]int
}

func newRegistry() *registry {
	return &registry{
		desired: make(map[subscription]struct{}),
		byChan:  make(map[int]subscription),
		bySub:   make(map[subscription]int),
	}
}

// Want marks sub as desired. Returns false if it already was.
func (r *registry) Want(sub subscription) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.desired[sub]; ok {
		return false
	}
	r.desired[sub] = struct{}{}
	return true
}

// Forget drops sub from the desired set. Returns false if it was not there.
func (r *registry) Forget(sub subscription) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.desired[sub]; !ok {
		return false
	}
	delete(r.desired, sub)
	return true
}

// IsDesired reports whether sub is currently wanted.
func (r *registry) IsDesired(sub subscription) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.desired[sub]
	return ok
}

// Desired returns the wanted subscriptions in a stable order, for
// deterministic replay after reconnect.
func (r *registry) Desired() []subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]subscription, 0, len(r.desired))
	for sub := range r.desired {
		out = append(out, sub)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Channel != out[j].Channel {
			return out[i].Channel < out[j].Channel
		}
		return out[i].Symbol < out[j].Symbol
	})
	return out
}

// DesiredCount returns the number of wanted subscriptions.
func (r *registry) DesiredCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.desired)
}

// Confirm records the server-assigned channel id for sub after a subscribed
// acknowledgment.
func (r *registry) Confirm(chanID int, sub subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byChan[chanID] = sub
	r.bySub[sub] = chanID
}

// Release removes the channel id mapping after an unsubscribed
// acknowledgment, returning the subscription it belonged to.
func (r *registry) Release(chanID int) (subscription, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.byChan[chanID]
	if !ok {
		return subscription{}, false
	}
	delete(r.byChan, chanID)
	delete(r.bySub, sub)
	return sub, true
}

// Lookup resolves a channel id to its subscription.
func (r *registry) Lookup(chanID int) (subscription, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.byChan[chanID]
	return sub, ok
}

// ChannelFor returns the confirmed channel id for sub, if any.
func (r *registry) ChannelFor(sub subscription) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.bySub[sub]
	return id, ok
}

// Clear drops all channel id mappings. The desired set is untouched: it is
// what gets replayed on the next connection.
func (r *registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byChan = make(map[int]subscription)
	r.bySub = make(map[subscription]int)
}
