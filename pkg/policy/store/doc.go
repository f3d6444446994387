// Package store holds the active guardrail policy and replaces it atomically
// when the backing document changes.
//
// # Snapshots
//
// The active PolicyDefinition is kept behind an atomic pointer. Readers call
// Policy or Snapshot and always receive a complete, self-consistent document;
// a reload builds a brand-new definition and swaps the pointer, so no reader
// ever observes a mix of old and new fields and no reader waits on a writer.
//
//	s, err := store.New(ctx, store.NewFileSource("policy.yaml", logger), logger)
//	p := s.Policy()        // lock-free
//	err = s.Reload(ctx)    // previous snapshot stays active on error
//
// # Sources
//
// FileSource reads a local file, MemorySource holds bytes in memory and
// GitSource reads a file from a git branch, pulling before every load.
//
// # Document Format
//
//	policy:
//	  name: default-guardrails
//	  version: 1.2.0
//	  allowed_models: [gpt-4o]
//	  checks: [pii, tone]
//	  fail_action: block   # or redact
//
// Missing fields default to name "unknown", version "1.0.0", empty lists and
// fail_action "block".
//
// # Hot Reload
//
// Watch runs an fsnotify-based FileWatcher with debouncing for file sources.
// A Scheduler can additionally reload on a cron schedule for filesystems that
// do not deliver change notifications, and is the way to poll a GitSource.
package store
