package session

import "sync"

// Store holds the current [Snapshot] and applies actions serially: one action
// is fully reduced and published before the next is admitted. Subscribers are
// notified synchronously on the applying goroutine.
type Store struct {
	mu          sync.Mutex
	state       Snapshot
	subscribers []func(Snapshot)
}

// NewStore creates a Store at the initial state.
func NewStore() *Store {
	return &Store{}
}

// Snapshot returns the current state.
func (st *Store) Snapshot() Snapshot {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.state
}

// Apply reduces a into the current state and returns the new snapshot.
func (st *Store) Apply(a Action) Snapshot {
	st.mu.Lock()
	st.state = Reduce(st.state, a)
	next := st.state
	subs := st.subscribers
	st.mu.Unlock()

	for _, sub := range subs {
		sub(next)
	}
	return next
}

// Subscribe registers fn to receive every snapshot produced by [Store.Apply].
// Intended for the UI collaborator; fn must not call back into the store.
func (st *Store) Subscribe(fn func(Snapshot)) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.subscribers = append(st.subscribers, fn)
}
