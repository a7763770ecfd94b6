package store

import (
	"errors"
	"fmt"
)

// Classified store errors. Dialects wrap driver errors with one of these so
// callers can branch with errors.Is while keeping the driver message.
var (
	// ErrPermission indicates the active identity may not touch an object.
	ErrPermission = errors.New("permission denied")

	// ErrBusy indicates a lock wait expired or a deadlock was broken.
	ErrBusy = errors.New("lock wait expired")

	// ErrNotInstalled indicates engine-owned objects are missing.
	ErrNotInstalled = errors.New("engine objects missing")

	// ErrSessionDone indicates a session was used after Commit or Rollback.
	ErrSessionDone = errors.New("session already finished")
)

// IsPermission reports whether err is classified as ErrPermission.
func IsPermission(err error) bool { return errors.Is(err, ErrPermission) }

// IsBusy reports whether err is classified as ErrBusy.
func IsBusy(err error) bool { return errors.Is(err, ErrBusy) }

// IsNotInstalled reports whether err is classified as ErrNotInstalled.
func IsNotInstalled(err error) bool { return errors.Is(err, ErrNotInstalled) }

func markError(kind, err error) error {
	return fmt.Errorf("%w: %w", kind, err)
}

func (s *Store) classify(err error) error {
	if err == nil {
		return nil
	}
	return s.dialect.classify(err)
}
