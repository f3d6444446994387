package health

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"mercator-hq/overwatch/pkg/evidence/storage"
	"mercator-hq/overwatch/pkg/policy/store"
)

// PolicySource reports whether the policy source would load cleanly right
// now, so a broken file is noticed before the next reload rejects it.
// A nil known list skips the check identifier restriction.
func PolicySource(src store.Source, known []string) CheckFunc {
	var knownSet map[string]bool
	if known != nil {
		knownSet = make(map[string]bool, len(known))
		for _, id := range known {
			knownSet[id] = true
		}
	}

	return func(ctx context.Context) error {
		data, err := src.Load(ctx)
		if err != nil {
			return err
		}
		p, err := store.Parse(data, src.Name())
		if err != nil {
			return err
		}
		return store.Validate(p, knownSet)
	}
}

// AuditLog verifies the hash chain of the audit log at path. A log that
// does not exist yet is healthy when it can be created, that is when its
// closest existing ancestor directory is writable.
func AuditLog(path string) CheckFunc {
	return func(ctx context.Context) error {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			return writableDir(existingAncestor(filepath.Dir(path)))
		}
		res := storage.Verify(path)
		if !res.Valid {
			if res.ErrorLine > 0 {
				return fmt.Errorf("line %d: %s", res.ErrorLine, res.Error)
			}
			return errors.New(res.Error)
		}
		return nil
	}
}

// WritableDir reports whether files can be created in the directory that
// will hold path.
func WritableDir(path string) CheckFunc {
	return func(ctx context.Context) error {
		return writableDir(filepath.Dir(path))
	}
}

func writableDir(dir string) error {
	f, err := os.CreateTemp(dir, ".overwatch-health-*")
	if err != nil {
		return fmt.Errorf("directory %s not writable: %w", dir, err)
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}

func existingAncestor(dir string) string {
	for {
		if _, err := os.Stat(dir); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return dir
		}
		dir = parent
	}
}
