package workdir

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Scope is a sweep's hold on its base directory. Paths handed out by a Scope
// are absolute so nothing downstream depends on the process working
// directory. Release undoes the directory creation done by Open and Prepare.
type Scope struct {
	root    string
	persist bool
	created []string
}

// Open resolves dir to an absolute path and creates it if missing. With
// persist false, Release removes every directory the scope created that is
// empty by then.
func Open(dir string, persist bool) (*Scope, error) {
	if dir == "" {
		dir = "."
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", dir, err)
	}
	s := &Scope{root: abs, persist: persist}
	if err := s.mkdirs(abs); err != nil {
		return nil, err
	}
	return s, nil
}

// Root returns the absolute directory the scope was opened on.
func (s *Scope) Root() string {
	return s.root
}

// Path resolves name against the scope root. Absolute names are returned cleaned.
func (s *Scope) Path(name string) string {
	if filepath.IsAbs(name) {
		return filepath.Clean(name)
	}
	return filepath.Join(s.root, name)
}

// Prepare resolves a sample base name and creates its parent directories so
// that per-sample directories can be created beside each other.
func (s *Scope) Prepare(base string) (string, error) {
	p := s.Path(base)
	if err := s.mkdirs(filepath.Dir(p)); err != nil {
		return "", err
	}
	return p, nil
}

// Release removes the directories created by the scope, deepest first, when
// persistence is off. Directories that still hold files are left alone.
func (s *Scope) Release() {
	if s.persist {
		return
	}
	for i := len(s.created) - 1; i >= 0; i-- {
		_ = os.Remove(s.created[i])
	}
	s.created = nil
}

// mkdirs creates dir and records which of its ancestors did not exist before.
func (s *Scope) mkdirs(dir string) error {
	var missing []string
	for d := dir; ; {
		_, err := os.Stat(d)
		if err == nil {
			break
		}
		if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("stat %s: %w", d, err)
		}
		missing = append(missing, d)
		parent := filepath.Dir(d)
		if parent == d {
			break
		}
		d = parent
	}
	if len(missing) == 0 {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	// missing runs deepest first; created is kept shallowest first.
	for i := len(missing) - 1; i >= 0; i-- {
		s.created = append(s.created, missing[i])
	}
	return nil
}
