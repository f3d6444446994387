package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"
)

const piiPolicy = `
policy:
  name: default-guardrails
  version: 1.2.0
  allowed_models: [gpt-4o, claude-3]
  checks: [pii, tone]
  fail_action: redact
`

func newMemoryStore(t *testing.T, doc string, opts ...Option) (*Store, *MemorySource) {
	t.Helper()
	src := NewMemorySource("test", []byte(doc))
	s, err := New(context.Background(), src, nil, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s, src
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		want    *PolicyDefinition
		wantErr bool
	}{
		{
			name: "full document",
			doc:  piiPolicy,
			want: &PolicyDefinition{
				Name:          "default-guardrails",
				Version:       "1.2.0",
				AllowedModels: []string{"gpt-4o", "claude-3"},
				Checks:        []string{"pii", "tone"},
				FailAction:    FailActionRedact,
			},
		},
		{
			name: "defaults applied",
			doc:  "policy:\n  checks: [pii]\n",
			want: &PolicyDefinition{
				Name:          DefaultPolicyName,
				Version:       DefaultPolicyVersion,
				AllowedModels: []string{},
				Checks:        []string{"pii"},
				FailAction:    FailActionBlock,
			},
		},
		{
			name: "missing policy key",
			doc:  "other: true\n",
			want: &PolicyDefinition{
				Name:          DefaultPolicyName,
				Version:       DefaultPolicyVersion,
				AllowedModels: []string{},
				Checks:        []string{},
				FailAction:    FailActionBlock,
			},
		},
		{
			name:    "empty document",
			doc:     "",
			wantErr: true,
		},
		{
			name:    "invalid yaml",
			doc:     "policy: [unterminated\n",
			wantErr: true,
		},
		{
			name:    "wrong type",
			doc:     "policy:\n  checks: pii\n",
			wantErr: true,
		},
		{
			name:    "scalar root",
			doc:     "just a string\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse([]byte(tt.doc), "test.yaml")
			if (err != nil) != tt.wantErr {
				t.Fatalf("Parse() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				var pe *ParseError
				if !errors.As(err, &pe) {
					t.Errorf("Parse() error type = %T, want *ParseError", err)
				}
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Parse() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	known := map[string]bool{"pii": true, "tone": true}

	tests := []struct {
		name    string
		policy  *PolicyDefinition
		known   map[string]bool
		wantErr bool
	}{
		{
			name:   "valid",
			policy: &PolicyDefinition{Checks: []string{"pii"}, FailAction: FailActionBlock},
			known:  known,
		},
		{
			name:    "bad fail action",
			policy:  &PolicyDefinition{FailAction: "explode"},
			wantErr: true,
		},
		{
			name:    "unknown check",
			policy:  &PolicyDefinition{Checks: []string{"telepathy"}, FailAction: FailActionBlock},
			known:   known,
			wantErr: true,
		},
		{
			name:   "unknown check without registry",
			policy: &PolicyDefinition{Checks: []string{"telepathy"}, FailAction: FailActionBlock},
		},
		{
			name:    "duplicate check",
			policy:  &PolicyDefinition{Checks: []string{"pii", "pii"}, FailAction: FailActionBlock},
			wantErr: true,
		},
		{
			name:    "empty check",
			policy:  &PolicyDefinition{Checks: []string{""}, FailAction: FailActionBlock},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.policy, tt.known)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestStore_ReloadReplacesSnapshot(t *testing.T) {
	s, src := newMemoryStore(t, piiPolicy)

	before := s.Snapshot()
	if !s.Policy().HasCheck("pii") {
		t.Fatal("initial policy should enable pii")
	}

	src.Set([]byte("policy:\n  name: relaxed\n  checks: []\n"))
	if err := s.Reload(context.Background()); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}

	after := s.Snapshot()
	if after == before {
		t.Fatal("Reload() did not replace snapshot")
	}
	if after.Policy.Name != "relaxed" || len(after.Policy.Checks) != 0 {
		t.Errorf("Policy() = %+v, want relaxed with no checks", after.Policy)
	}
	if after.Fingerprint == before.Fingerprint {
		t.Error("fingerprint should change with the document")
	}

	// The old snapshot is untouched.
	if before.Policy.Name != "default-guardrails" || !before.Policy.HasCheck("pii") {
		t.Errorf("previous snapshot was mutated: %+v", before.Policy)
	}
}

func TestStore_MalformedReloadKeepsPrevious(t *testing.T) {
	s, src := newMemoryStore(t, piiPolicy)
	before := s.Policy()

	docs := []string{
		"",
		"policy: [unterminated\n",
		"policy:\n  fail_action: explode\n",
	}

	for _, doc := range docs {
		src.Set([]byte(doc))
		err := s.Reload(context.Background())
		if err == nil {
			t.Fatalf("Reload(%q) succeeded, want error", doc)
		}
		if !IsLoadError(err) {
			t.Errorf("Reload(%q) error type = %T, want *PolicyLoadError", doc, err)
		}
		if got := s.Policy(); got != before {
			t.Errorf("Reload(%q) replaced policy with %+v", doc, got)
		}
	}

	reloads, failures := s.Stats()
	if reloads != 0 || failures != int64(len(docs)) {
		t.Errorf("Stats() = (%d, %d), want (0, %d)", reloads, failures, len(docs))
	}
}

func TestStore_NewFailsOnInvalidInitialDocument(t *testing.T) {
	src := NewMemorySource("bad", []byte("policy: [\n"))
	if _, err := New(context.Background(), src, nil); err == nil {
		t.Fatal("New() succeeded with malformed document")
	}
	if _, err := New(context.Background(), nil, nil); err == nil {
		t.Fatal("New() succeeded with nil source")
	}
}

func TestStore_KnownChecks(t *testing.T) {
	s, src := newMemoryStore(t, "policy:\n  checks: [pii]\n", WithKnownChecks([]string{"pii", "tone"}))

	src.Set([]byte("policy:\n  checks: [pii, telepathy]\n"))
	if err := s.Reload(context.Background()); err == nil {
		t.Fatal("Reload() accepted unknown check")
	}

	var ve *ValidationError
	src.Set([]byte("policy:\n  checks: [telepathy]\n"))
	err := s.Reload(context.Background())
	if !errors.As(err, &ve) {
		t.Fatalf("Reload() error = %v, want *ValidationError in chain", err)
	}
	if ve.FieldPath != "policy.checks[0]" {
		t.Errorf("FieldPath = %q, want policy.checks[0]", ve.FieldPath)
	}
}

func TestStore_OnReload(t *testing.T) {
	s, src := newMemoryStore(t, piiPolicy)

	var events []ReloadEvent
	s.OnReload(func(e ReloadEvent) { events = append(events, e) })

	// Same document: success but no change.
	if err := s.Reload(context.Background()); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	src.Set([]byte("policy:\n  checks: [tone]\n"))
	if err := s.Reload(context.Background()); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	src.Set([]byte("policy: ["))
	_ = s.Reload(context.Background())

	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	if events[0].Changed() {
		t.Error("identical document reported as changed")
	}
	if !events[1].Changed() {
		t.Error("new document not reported as changed")
	}
	if events[2].Err == nil || events[2].Current != events[2].Previous {
		t.Error("failed reload should keep Current == Previous and carry Err")
	}
}

// Readers running during reloads must always see one of the two complete
// documents, never fields from both.
func TestStore_ConcurrentReadsDuringReload(t *testing.T) {
	docA := "policy:\n  name: a\n  version: 1.0.0\n  checks: [pii]\n  fail_action: block\n"
	docB := "policy:\n  name: b\n  version: 2.0.0\n  checks: [tone, pii]\n  fail_action: redact\n"
	s, src := newMemoryStore(t, docA)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	torn := make(chan string, 1)

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ctx.Err() == nil {
				p := s.Policy()
				switch p.Name {
				case "a":
					if p.Version != "1.0.0" || p.FailAction != FailActionBlock || len(p.Checks) != 1 {
						select {
						case torn <- "a":
						default:
						}
					}
				case "b":
					if p.Version != "2.0.0" || p.FailAction != FailActionRedact || len(p.Checks) != 2 {
						select {
						case torn <- "b":
						default:
						}
					}
				}
			}
		}()
	}

	for i := 0; i < 200; i++ {
		if i%2 == 0 {
			src.Set([]byte(docB))
		} else {
			src.Set([]byte(docA))
		}
		if err := s.Reload(context.Background()); err != nil {
			t.Fatalf("Reload() error = %v", err)
		}
	}
	cancel()
	wg.Wait()

	select {
	case name := <-torn:
		t.Fatalf("observed torn snapshot for policy %q", name)
	default:
	}
}

func TestStore_WatchReloadsOnFileChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	if err := os.WriteFile(path, []byte(piiPolicy), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := New(context.Background(), NewFileSource(path, nil), nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	reloaded := make(chan struct{}, 1)
	s.OnReload(func(e ReloadEvent) {
		if e.Err == nil && e.Changed() {
			select {
			case reloaded <- struct{}{}:
			default:
			}
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Watch(ctx, 20*time.Millisecond) }()

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte("policy:\n  name: edited\n  checks: []\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-reloaded:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload after file change")
	}

	if got := s.Policy().Name; got != "edited" {
		t.Errorf("Policy().Name = %q, want edited", got)
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Watch() error = %v", err)
	}
}

func TestStore_WatchRequiresFileSource(t *testing.T) {
	s, _ := newMemoryStore(t, piiPolicy)
	if err := s.Watch(context.Background(), 0); err == nil {
		t.Fatal("Watch() on memory source should fail")
	}
}

func TestDebouncer_CoalescesBursts(t *testing.T) {
	d := NewDebouncer(30 * time.Millisecond)
	defer d.Stop()

	var mu sync.Mutex
	calls := 0
	for i := 0; i < 10; i++ {
		d.Trigger(func() {
			mu.Lock()
			calls++
			mu.Unlock()
		})
	}

	time.Sleep(150 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Errorf("callback ran %d times, want 1", calls)
	}
}

func TestScheduler(t *testing.T) {
	s, src := newMemoryStore(t, piiPolicy)

	if _, err := NewScheduler(s, "not a schedule", nil); err == nil {
		t.Fatal("NewScheduler() accepted invalid schedule")
	}

	sched, err := NewScheduler(s, "@every 1s", nil)
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := sched.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !sched.IsRunning() || sched.NextRun() == nil {
		t.Fatal("scheduler should be running with a next run time")
	}

	src.Set([]byte("policy:\n  name: scheduled\n"))

	deadline := time.Now().Add(5 * time.Second)
	for s.Policy().Name != "scheduled" {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for scheduled reload")
		}
		time.Sleep(50 * time.Millisecond)
	}

	sched.Stop()
	if sched.IsRunning() {
		t.Error("scheduler still running after Stop")
	}
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint([]byte("x"))
	if len(a) != 16 {
		t.Errorf("len(Fingerprint) = %d, want 16", len(a))
	}
	if a != Fingerprint([]byte("x")) || a == Fingerprint([]byte("y")) {
		t.Error("Fingerprint should be deterministic and content-sensitive")
	}
}

func TestPolicyDefinition_AllowsModel(t *testing.T) {
	open := &PolicyDefinition{}
	if !open.AllowsModel("anything") {
		t.Error("empty allowed_models should not restrict")
	}
	p := &PolicyDefinition{AllowedModels: []string{"gpt-4o"}}
	if !p.AllowsModel("gpt-4o") || p.AllowsModel("other") {
		t.Error("AllowsModel() did not honour allowed_models")
	}
}
