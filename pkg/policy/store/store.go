package store

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// ReloadEvent describes the outcome of one reload attempt.
type ReloadEvent struct {
	// Previous is the snapshot active before the attempt.
	Previous *Snapshot

	// Current is the snapshot active after the attempt. It equals Previous
	// when the reload failed.
	Current *Snapshot

	// Err is the reload error, if any.
	Err error

	// Duration is how long the attempt took.
	Duration time.Duration
}

// Changed reports whether the reload installed a different document.
func (e ReloadEvent) Changed() bool {
	if e.Err != nil || e.Current == nil {
		return false
	}
	return e.Previous == nil || e.Previous.Fingerprint != e.Current.Fingerprint
}

// Option configures a Store.
type Option func(*Store)

// WithKnownChecks rejects documents that enable checks outside known.
func WithKnownChecks(known []string) Option {
	return func(s *Store) {
		s.knownChecks = make(map[string]bool, len(known))
		for _, id := range known {
			s.knownChecks[id] = true
		}
	}
}

// WithClock overrides the time source used for LoadedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// Store holds the active policy snapshot.
//
// Readers load the snapshot pointer without locking. Reloads are serialized
// among themselves and publish a fully built snapshot with a single store.
type Store struct {
	source      Source
	logger      *slog.Logger
	knownChecks map[string]bool
	now         func() time.Time

	current  atomic.Pointer[Snapshot]
	reloadMu sync.Mutex

	listenersMu sync.RWMutex
	listeners   []func(ReloadEvent)

	reloads  atomic.Int64
	failures atomic.Int64
}

// New creates a Store and performs the initial load. The initial load must
// succeed; there is no previous policy to fall back to.
func New(ctx context.Context, source Source, logger *slog.Logger, opts ...Option) (*Store, error) {
	if source == nil {
		return nil, fmt.Errorf("source cannot be nil")
	}
	if logger == nil {
		logger = slog.Default().With("component", "policy.store")
	}

	s := &Store{
		source: source,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	snap, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	s.current.Store(snap)

	s.logger.Info("policy loaded",
		"source", snap.Source,
		"policy", snap.Policy.Name,
		"version", snap.Policy.Version,
		"checks", snap.Policy.Checks,
		"fingerprint", snap.Fingerprint,
	)

	return s, nil
}

// Policy returns the active policy definition. It never blocks.
func (s *Store) Policy() *PolicyDefinition {
	return s.current.Load().Policy
}

// Snapshot returns the active snapshot including its metadata.
func (s *Store) Snapshot() *Snapshot {
	return s.current.Load()
}

// Source returns the backing source.
func (s *Store) Source() Source {
	return s.source
}

// Reload re-reads the source and atomically replaces the active snapshot.
// On failure the previous snapshot stays active and a *PolicyLoadError is
// returned.
func (s *Store) Reload(ctx context.Context) error {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	start := time.Now()
	prev := s.current.Load()

	snap, err := s.load(ctx)
	event := ReloadEvent{Previous: prev, Current: prev, Err: err}

	if err != nil {
		s.failures.Add(1)
		event.Duration = time.Since(start)
		s.logger.Error("policy reload failed, keeping previous policy",
			"source", s.source.Name(),
			"active_version", prev.Policy.Version,
			"active_fingerprint", prev.Fingerprint,
			"error", err,
		)
		s.notify(event)
		return err
	}

	s.current.Store(snap)
	s.reloads.Add(1)
	event.Current = snap
	event.Duration = time.Since(start)

	s.logger.Info("policy reloaded",
		"source", snap.Source,
		"policy", snap.Policy.Name,
		"version", snap.Policy.Version,
		"checks", snap.Policy.Checks,
		"changed", event.Changed(),
		"duration_ms", event.Duration.Milliseconds(),
	)

	s.notify(event)
	return nil
}

// OnReload registers a callback invoked after every reload attempt.
// Callbacks run synchronously on the reloading goroutine.
func (s *Store) OnReload(fn func(ReloadEvent)) {
	if fn == nil {
		return
	}
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Stats returns the number of successful and failed reloads.
func (s *Store) Stats() (reloads, failures int64) {
	return s.reloads.Load(), s.failures.Load()
}

func (s *Store) notify(event ReloadEvent) {
	s.listenersMu.RLock()
	listeners := append([]func(ReloadEvent){}, s.listeners...)
	s.listenersMu.RUnlock()

	for _, fn := range listeners {
		fn(event)
	}
}

// load builds a new snapshot without touching the active one.
func (s *Store) load(ctx context.Context) (*Snapshot, error) {
	name := s.source.Name()

	data, err := s.source.Load(ctx)
	if err != nil {
		return nil, &PolicyLoadError{Source: name, Message: "failed to read source", Cause: err}
	}

	p, err := Parse(data, name)
	if err != nil {
		return nil, &PolicyLoadError{Source: name, Message: "malformed document", Cause: err}
	}

	if err := Validate(p, s.knownChecks); err != nil {
		return nil, &PolicyLoadError{Source: name, Message: "invalid document", Cause: err}
	}

	return &Snapshot{
		Policy:      p,
		Fingerprint: Fingerprint(data),
		Source:      name,
		LoadedAt:    s.now(),
	}, nil
}

// Fingerprint returns the first 16 hex characters of the SHA-256 of data.
func Fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return fmt.Sprintf("%x", sum[:8])
}

// IsLoadError reports whether err is a policy load failure.
func IsLoadError(err error) bool {
	var loadErr *PolicyLoadError
	return errors.As(err, &loadErr)
}
