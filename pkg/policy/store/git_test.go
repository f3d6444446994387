package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// commitPolicy writes doc to policy.yaml in the repository at dir and
// commits it.
func commitPolicy(t *testing.T, repo *gogit.Repository, dir, doc, msg string) {
	t.Helper()

	if err := os.WriteFile(filepath.Join(dir, "policy.yaml"), []byte(doc), 0o644); err != nil {
		t.Fatalf("failed to write policy: %v", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		t.Fatalf("failed to get worktree: %v", err)
	}
	if _, err := wt.Add("policy.yaml"); err != nil {
		t.Fatalf("failed to add file: %v", err)
	}
	_, err = wt.Commit(msg, &gogit.CommitOptions{
		Author: &object.Signature{
			Name:  "Test User",
			Email: "test@example.com",
			When:  time.Now(),
		},
	})
	if err != nil {
		t.Fatalf("failed to commit: %v", err)
	}
}

func createPolicyRepo(t *testing.T, doc string) (*gogit.Repository, string) {
	t.Helper()
	dir := t.TempDir()
	repo, err := gogit.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("failed to init repo: %v", err)
	}
	commitPolicy(t, repo, dir, doc, "initial policy")
	return repo, dir
}

func testGitConfig(t *testing.T, repoDir string) GitConfig {
	return GitConfig{
		Repository: repoDir,
		Branch:     "master",
		Path:       "policy.yaml",
		LocalPath:  filepath.Join(t.TempDir(), "clone"),
		Timeout:    10 * time.Second,
	}
}

func TestNewGitSource(t *testing.T) {
	tests := []struct {
		name    string
		cfg     GitConfig
		wantErr string
	}{
		{name: "valid", cfg: GitConfig{Repository: "r", Branch: "main", Path: "p.yaml"}},
		{name: "no repository", cfg: GitConfig{Branch: "main", Path: "p.yaml"}, wantErr: "repository"},
		{name: "no branch", cfg: GitConfig{Repository: "r", Path: "p.yaml"}, wantErr: "branch"},
		{name: "no path", cfg: GitConfig{Repository: "r", Branch: "main"}, wantErr: "path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := NewGitSource(tt.cfg, nil)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("NewGitSource() error = %v, want mention of %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewGitSource() error = %v", err)
			}
			if src.Name() != "r@main:p.yaml" {
				t.Errorf("Name() = %q", src.Name())
			}
		})
	}
}

func TestGitSource_LoadFollowsCommits(t *testing.T) {
	repo, dir := createPolicyRepo(t, piiPolicy)

	src, err := NewGitSource(testGitConfig(t, dir), nil)
	if err != nil {
		t.Fatalf("NewGitSource() error = %v", err)
	}
	s, err := New(context.Background(), src, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if got := s.Snapshot().Policy.Version; got != "1.2.0" {
		t.Fatalf("initial version = %q, want 1.2.0", got)
	}
	first := src.Commit()
	if first == "" {
		t.Fatal("Commit() empty after load")
	}

	commitPolicy(t, repo, dir, strings.Replace(piiPolicy, "1.2.0", "1.3.0", 1), "bump version")
	if err := s.Reload(context.Background()); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if got := s.Snapshot().Policy.Version; got != "1.3.0" {
		t.Errorf("version after reload = %q, want 1.3.0", got)
	}
	if src.Commit() == first {
		t.Error("Commit() unchanged after new commit was pulled")
	}
}

func TestGitSource_ReusesExistingClone(t *testing.T) {
	_, dir := createPolicyRepo(t, piiPolicy)
	cfg := testGitConfig(t, dir)

	first, _ := NewGitSource(cfg, nil)
	if _, err := first.Load(context.Background()); err != nil {
		t.Fatalf("first Load() error = %v", err)
	}

	second, _ := NewGitSource(cfg, nil)
	data, err := second.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() from existing clone error = %v", err)
	}
	if !strings.Contains(string(data), "default-guardrails") {
		t.Errorf("Load() = %q", data)
	}
	if first.Commit() != second.Commit() {
		t.Errorf("Commit() = %s, want %s", second.Commit(), first.Commit())
	}
}

func TestGitSource_Errors(t *testing.T) {
	_, dir := createPolicyRepo(t, piiPolicy)

	tests := []struct {
		name   string
		mutate func(*GitConfig)
	}{
		{name: "missing file", mutate: func(c *GitConfig) { c.Path = "other.yaml" }},
		{name: "missing branch", mutate: func(c *GitConfig) { c.Branch = "release" }},
		{name: "missing repository", mutate: func(c *GitConfig) { c.Repository = filepath.Join(t.TempDir(), "nope") }},
		{name: "empty token", mutate: func(c *GitConfig) { c.AuthType = GitAuthToken }},
		{name: "unknown auth", mutate: func(c *GitConfig) { c.AuthType = "kerberos" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testGitConfig(t, dir)
			tt.mutate(&cfg)
			src, err := NewGitSource(cfg, nil)
			if err != nil {
				t.Fatalf("NewGitSource() error = %v", err)
			}
			if _, err := src.Load(context.Background()); err == nil {
				t.Error("Load() error = nil, want error")
			}
		})
	}
}

func TestGitAuth(t *testing.T) {
	keyDir := t.TempDir()
	openKey := filepath.Join(keyDir, "id_open")
	if err := os.WriteFile(openKey, []byte("key"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		cfg     GitConfig
		wantNil bool
		wantErr string
	}{
		{name: "none", cfg: GitConfig{AuthType: GitAuthNone}, wantNil: true},
		{name: "default", cfg: GitConfig{}, wantNil: true},
		{name: "token", cfg: GitConfig{AuthType: GitAuthToken, Token: "ghp_x"}},
		{name: "ssh missing key", cfg: GitConfig{AuthType: GitAuthSSH, SSHKeyPath: filepath.Join(keyDir, "none")}, wantErr: "SSH key"},
		{name: "ssh open permissions", cfg: GitConfig{AuthType: GitAuthSSH, SSHKeyPath: openKey}, wantErr: "too open"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auth, err := gitAuth(tt.cfg)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("gitAuth() error = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("gitAuth() error = %v", err)
			}
			if (auth == nil) != tt.wantNil {
				t.Errorf("gitAuth() = %v, wantNil %v", auth, tt.wantNil)
			}
		})
	}
}
