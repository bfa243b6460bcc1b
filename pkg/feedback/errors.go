package feedback

import (
	"errors"
	"fmt"
	"io/fs"
)

// ErrCorruptHeader is returned when the first line of the backing file is not the expected header
var ErrCorruptHeader = errors.New("unexpected header line")

// PersistenceError reports a failure to create, open, read or write the backing file.
// Path is kept out of Error() so callers can surface the message without leaking it.
type PersistenceError struct {
	Op   string
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	var pathErr *fs.PathError
	if errors.As(e.Err, &pathErr) {
		return fmt.Sprintf("feedback %s: %s: %v", e.Op, pathErr.Op, pathErr.Err)
	}
	return fmt.Sprintf("feedback %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func persistErr(op, path string, err error) error {
	return &PersistenceError{Op: op, Path: path, Err: err}
}
