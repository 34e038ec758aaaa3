// Package workdir creates, reuses and removes the per-sample working
// directories a sweep runs its model in.
package workdir

import (
	"errors"
	"fmt"
	"os"
)

// Separator joins a base name and a sample index into a directory name.
const Separator = "."

// ErrExists is returned when a directory already exists and reuse is not allowed.
var ErrExists = errors.New("working directory already exists")

// Outcome reports what Ensure did.
type Outcome int

const (
	Created Outcome = iota
	Reused
	Conflict
)

func (o Outcome) String() string {
	switch o {
	case Created:
		return "created"
	case Reused:
		return "reused"
	case Conflict:
		return "conflict"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Name derives the directory for one sample: base + "." + index.
func Name(base, index string) string {
	return base + Separator + index
}

// Ensure makes path available as a working directory. A missing directory is
// created along with its parents. An existing one is reused when reuse is
// true and reported as a Conflict wrapping ErrExists otherwise.
func Ensure(path string, reuse bool) (Outcome, error) {
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if err := os.MkdirAll(path, 0o755); err != nil {
			return Conflict, fmt.Errorf("create %s: %w", path, err)
		}
		return Created, nil
	case err != nil:
		return Conflict, fmt.Errorf("stat %s: %w", path, err)
	}

	if !info.IsDir() {
		return Conflict, fmt.Errorf("%s: %w (not a directory)", path, ErrExists)
	}
	if !reuse {
		return Conflict, fmt.Errorf("%s: %w", path, ErrExists)
	}
	return Reused, nil
}

// Remove deletes a working directory tree. A missing directory is not an error.
func Remove(path string) error {
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}
