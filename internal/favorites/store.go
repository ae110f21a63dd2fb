package favorites

import (
	"context"
	"fmt"
	"log"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/guiaperfil/guia-api/internal/gateway"
	"github.com/guiaperfil/guia-api/internal/metrics"
	"github.com/guiaperfil/guia-api/internal/pubsub"
	"github.com/guiaperfil/guia-api/internal/session"
)

// State tracks the load lifecycle of the favorite set for one identity.
type State int

const (
	StateUninitialized State = iota
	StateLoading
	StateReady
)

// Snapshot is the immutable view delivered to subscribers on every change.
type Snapshot struct {
	IDs     map[string]struct{}
	Loading bool
}

// Has reports membership of an account id in the snapshot.
func (s Snapshot) Has(accountID string) bool {
	_, ok := s.IDs[accountID]
	return ok
}

// Store is the process-wide favorite set for the current session. Mutations
// are applied optimistically and broadcast before the gateway confirms; a
// gateway failure rolls the mutation back unless a newer toggle for the same
// account id has landed in the meantime.
type Store struct {
	gw       gateway.Gateway
	sessions session.Provider
	logger   *log.Logger
	metrics  *metrics.Metrics

	mu       sync.Mutex
	state    State
	userID   string
	ids      map[string]struct{}
	versions map[string]uint64
	resets   uint64

	flight      singleflight.Group
	changes     *pubsub.Broadcaster[Snapshot]
	unsubscribe func()
}

// New constructs the store and subscribes it to identity changes so the set is
// cleared on sign-out or user switch.
func New(gw gateway.Gateway, sessions session.Provider, logger *log.Logger, m *metrics.Metrics) *Store {
	if logger == nil {
		logger = log.Default()
	}
	s := &Store{
		gw:       gw,
		sessions: sessions,
		logger:   logger,
		metrics:  m,
		ids:      make(map[string]struct{}),
		versions: make(map[string]uint64),
		changes:  pubsub.New[Snapshot](logger),
	}
	s.unsubscribe = sessions.Subscribe(func(session.Change) {
		s.Reset()
	})
	return s
}

// Close detaches the store from the session provider.
func (s *Store) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
}

// Subscribe registers a listener and immediately delivers the live snapshot so
// late subscribers never start from stale state. The returned closure
// unregisters the listener.
func (s *Store) Subscribe(fn func(Snapshot)) func() {
	unsubscribe := s.changes.Subscribe(fn)
	fn(s.Snapshot())
	return unsubscribe
}

// Snapshot returns a copy of the current favorite set.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// State returns the load lifecycle state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsFavorite reports membership against the current snapshot. Before the set
// is loaded it reports false.
func (s *Store) IsFavorite(accountID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ids[accountID]
	return ok
}

// Reset clears the set and marks it uninitialized. Called on identity change.
// The reset generation invalidates any load still in flight for the previous
// identity.
func (s *Store) Reset() {
	s.mu.Lock()
	s.state = StateUninitialized
	s.userID = ""
	s.ids = make(map[string]struct{})
	s.versions = make(map[string]uint64)
	s.resets++
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.changes.Notify(snap)
}

// Load populates the set for the current identity. Concurrent calls for the
// same identity share a single gateway request. If the set is already loaded
// and force is false the call returns immediately. Anonymous sessions resolve
// to an empty, ready set.
func (s *Store) Load(ctx context.Context, force bool) error {
	userID, _ := s.sessions.Identity(ctx)

	s.mu.Lock()
	if s.state == StateReady && s.userID == userID && !force {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	_, err, _ := s.flight.Do(userID, func() (interface{}, error) {
		return nil, s.load(ctx, userID)
	})
	return err
}

func (s *Store) load(ctx context.Context, userID string) error {
	s.mu.Lock()
	s.state = StateLoading
	gen := s.resets
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.changes.Notify(snap)

	var ids []string
	if userID != "" {
		var err error
		ids, err = s.gw.ListFavorites(ctx, userID)
		if err != nil {
			// Reads degrade to an empty set rather than blocking the caller.
			s.logger.Printf("favorites: load for user %s failed: %v", userID, err)
			ids = nil
		}
	}

	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}

	s.mu.Lock()
	if s.resets != gen {
		// The identity changed while the fetch was in flight; the result
		// belongs to the previous session and must not be installed.
		s.mu.Unlock()
		return nil
	}
	s.userID = userID
	s.ids = set
	s.versions = make(map[string]uint64)
	s.state = StateReady
	snap = s.snapshotLocked()
	s.mu.Unlock()
	s.changes.Notify(snap)
	return nil
}

// Toggle flips membership of the account id for the signed-in user. The local
// set is mutated and broadcast before the gateway call; on failure the
// mutation is reverted and broadcast again, unless a newer toggle for the same
// id already advanced the state.
func (s *Store) Toggle(ctx context.Context, accountID string) error {
	s.mu.Lock()
	_, member := s.ids[accountID]
	s.mu.Unlock()
	if member {
		return s.Remove(ctx, accountID)
	}
	return s.Add(ctx, accountID)
}

// Add inserts the account id into the favorite set.
func (s *Store) Add(ctx context.Context, accountID string) error {
	return s.apply(ctx, accountID, true)
}

// Remove deletes the account id from the favorite set.
func (s *Store) Remove(ctx context.Context, accountID string) error {
	return s.apply(ctx, accountID, false)
}

func (s *Store) apply(ctx context.Context, accountID string, adding bool) error {
	userID, ok := s.sessions.Identity(ctx)
	if !ok {
		return session.ErrNotAuthenticated
	}

	s.mu.Lock()
	if s.userID != userID {
		// The set belongs to another identity; start from empty for this one.
		s.userID = userID
		s.ids = make(map[string]struct{})
		s.versions = make(map[string]uint64)
	}
	if adding {
		s.ids[accountID] = struct{}{}
	} else {
		delete(s.ids, accountID)
	}
	s.versions[accountID]++
	version := s.versions[accountID]
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.metrics.IncFavoriteToggles()
	s.changes.Notify(snap)

	var err error
	if adding {
		err = s.gw.InsertFavorite(ctx, userID, accountID)
	} else {
		err = s.gw.DeleteFavorite(ctx, userID, accountID)
	}
	if err == nil {
		return nil
	}

	s.logger.Printf("favorites: persist toggle of %s failed: %v", accountID, err)

	// Revert only if no newer toggle for this id has been applied since.
	s.mu.Lock()
	if s.userID == userID && s.versions[accountID] == version {
		if adding {
			delete(s.ids, accountID)
		} else {
			s.ids[accountID] = struct{}{}
		}
		s.versions[accountID]++
		snap = s.snapshotLocked()
		s.mu.Unlock()
		s.metrics.IncFavoriteRollbacks()
		s.changes.Notify(snap)
	} else {
		s.mu.Unlock()
	}
	return fmt.Errorf("favorites: persist toggle: %w", err)
}

func (s *Store) snapshotLocked() Snapshot {
	ids := make(map[string]struct{}, len(s.ids))
	for id := range s.ids {
		ids[id] = struct{}{}
	}
	return Snapshot{IDs: ids, Loading: s.state == StateLoading}
}
