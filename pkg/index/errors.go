package index

import (
	"errors"
	"fmt"
)

// ErrNotBuilt means the index was never built or loaded in this session.
var ErrNotBuilt = errors.New("index has not been built or loaded")

// ErrNotFound means no persisted index exists at the given path.
var ErrNotFound = errors.New("no index file found")

// CorruptError means a persisted index file exists but cannot be parsed.
type CorruptError struct {
	Path string
	Err  error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("corrupt index file %s: %v", e.Path, e.Err)
}

func (e *CorruptError) Unwrap() error {
	return e.Err
}

// PersistError means the index could not be written to disk.
type PersistError struct {
	Path string
	Err  error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persist index to %s: %v", e.Path, e.Err)
}

func (e *PersistError) Unwrap() error {
	return e.Err
}
