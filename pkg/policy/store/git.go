package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/plumbing/transport/ssh"
)

// Git auth types.
const (
	GitAuthNone  = "none"
	GitAuthToken = "token"
	GitAuthSSH   = "ssh"
)

// GitConfig locates a policy document inside a git repository.
type GitConfig struct {
	// Repository is the clone URL or a local repository path.
	Repository string

	// Branch is the branch to track.
	Branch string

	// Path is the policy file, relative to the repository root.
	Path string

	// LocalPath is where the working copy is kept. An existing clone there
	// is reused.
	LocalPath string

	// AuthType is one of GitAuthNone, GitAuthToken or GitAuthSSH.
	AuthType         string
	Token            string
	SSHKeyPath       string
	SSHKeyPassphrase string

	// Timeout bounds a single clone or pull.
	Timeout time.Duration
}

// GitSource reads the policy document from a git working copy. Every Load
// pulls the tracked branch first, so a scheduled reload picks up new
// commits.
type GitSource struct {
	cfg    GitConfig
	repo   *gogit.Repository
	head   string
	mu     sync.Mutex
	logger *slog.Logger
}

// NewGitSource creates a git-backed policy source. Nothing is fetched
// until the first Load.
func NewGitSource(cfg GitConfig, logger *slog.Logger) (*GitSource, error) {
	if cfg.Repository == "" {
		return nil, fmt.Errorf("repository cannot be empty")
	}
	if cfg.Branch == "" {
		return nil, fmt.Errorf("branch cannot be empty")
	}
	if cfg.Path == "" {
		return nil, fmt.Errorf("policy path cannot be empty")
	}
	if cfg.LocalPath == "" {
		cfg.LocalPath = filepath.Join(os.TempDir(), "overwatch-policies")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GitSource{cfg: cfg, logger: logger}, nil
}

// Load syncs the working copy and reads the policy file.
func (s *GitSource) Load(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.sync(ctx); err != nil {
		return nil, err
	}

	path := filepath.Join(s.cfg.LocalPath, filepath.FromSlash(s.cfg.Path))
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s at %s: %w", s.cfg.Path, shortSHA(s.head), err)
	}
	return data, nil
}

// Name identifies the repository, branch and file.
func (s *GitSource) Name() string {
	return fmt.Sprintf("%s@%s:%s", s.cfg.Repository, s.cfg.Branch, s.cfg.Path)
}

// Commit returns the commit SHA of the last successful Load.
func (s *GitSource) Commit() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.head
}

func (s *GitSource) sync(ctx context.Context) error {
	auth, err := gitAuth(s.cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	if s.repo == nil {
		if err := s.open(ctx, auth); err != nil {
			return err
		}
	} else if err := s.pull(ctx, auth); err != nil {
		return err
	}

	ref, err := s.repo.Head()
	if err != nil {
		return fmt.Errorf("failed to get HEAD: %w", err)
	}
	head := ref.Hash().String()
	if head != s.head {
		s.logger.Info("policy repository updated",
			"repository", s.cfg.Repository,
			"branch", s.cfg.Branch,
			"from", shortSHA(s.head),
			"to", shortSHA(head),
		)
		s.head = head
	}
	return nil
}

// open reuses an existing clone at LocalPath or clones a fresh one.
func (s *GitSource) open(ctx context.Context, auth transport.AuthMethod) error {
	if _, err := os.Stat(filepath.Join(s.cfg.LocalPath, ".git")); err == nil {
		repo, err := gogit.PlainOpen(s.cfg.LocalPath)
		if err != nil {
			return fmt.Errorf("failed to open existing clone: %w", err)
		}
		s.repo = repo
		return s.pull(ctx, auth)
	}

	if err := os.MkdirAll(s.cfg.LocalPath, 0o755); err != nil {
		return fmt.Errorf("failed to create clone directory: %w", err)
	}
	repo, err := gogit.PlainCloneContext(ctx, s.cfg.LocalPath, false, &gogit.CloneOptions{
		URL:           s.cfg.Repository,
		ReferenceName: plumbing.NewBranchReferenceName(s.cfg.Branch),
		SingleBranch:  true,
		Auth:          auth,
	})
	if err != nil {
		return fmt.Errorf("failed to clone %s: %w", s.cfg.Repository, err)
	}
	s.repo = repo
	return nil
}

func (s *GitSource) pull(ctx context.Context, auth transport.AuthMethod) error {
	wt, err := s.repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}
	err = wt.PullContext(ctx, &gogit.PullOptions{
		RemoteName:    "origin",
		ReferenceName: plumbing.NewBranchReferenceName(s.cfg.Branch),
		SingleBranch:  true,
		Auth:          auth,
	})
	if err != nil && !errors.Is(err, gogit.NoErrAlreadyUpToDate) {
		return fmt.Errorf("failed to pull %s: %w", s.cfg.Repository, err)
	}
	return nil
}

func gitAuth(cfg GitConfig) (transport.AuthMethod, error) {
	switch cfg.AuthType {
	case GitAuthNone, "":
		return nil, nil

	case GitAuthToken:
		if cfg.Token == "" {
			return nil, fmt.Errorf("token auth requires non-empty token")
		}
		return &http.BasicAuth{Username: "git", Password: cfg.Token}, nil

	case GitAuthSSH:
		info, err := os.Stat(cfg.SSHKeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to access SSH key file: %w", err)
		}
		if mode := info.Mode().Perm(); mode&0o077 != 0 {
			return nil, fmt.Errorf("SSH key file permissions too open (%o), should be 0600", mode)
		}
		auth, err := ssh.NewPublicKeysFromFile("git", cfg.SSHKeyPath, cfg.SSHKeyPassphrase)
		if err != nil {
			return nil, fmt.Errorf("failed to load SSH key: %w", err)
		}
		return auth, nil

	default:
		return nil, fmt.Errorf("unknown auth type: %s", cfg.AuthType)
	}
}

func shortSHA(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	if sha == "" {
		return "none"
	}
	return sha
}
