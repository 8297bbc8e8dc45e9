// Package syncerrors defines the typed error kinds a pull/push revision
// engine can surface, per the error handling design: stale-write detection,
// remote-store unavailability, and the three-phase side-batch push failure
// modes (stage, integrate, rollback).
package syncerrors

import (
	"github.com/cockroachdb/errors"
)

// Sentinel markers. Callers should compare with errors.Is, never by string.
var (
	// ErrOutOfSync marks a push whose observed next revision disagreed with
	// the caller's lastPulledAt watermark — a stale-write signal.
	ErrOutOfSync = errors.New("melonsync: out of sync")

	// ErrStoreUnavailable marks a remote-store transaction/batch rejection
	// unrelated to stale-write detection.
	ErrStoreUnavailable = errors.New("melonsync: store unavailable")

	// ErrStageFailed marks a side-batch stage-phase commit failure. Staged
	// data may be left orphaned; no rollback is attempted for this kind.
	ErrStageFailed = errors.New("melonsync: side-batch stage failed")

	// ErrIntegrateFailed marks a side-batch integrate-transaction failure.
	// Callers reaching this kind have already had rollback attempted.
	ErrIntegrateFailed = errors.New("melonsync: side-batch integrate failed")

	// ErrRollbackFailed marks a failure of the rollback phase itself,
	// following an integrate failure. The returned error is a composite
	// naming both the integrate and rollback failures.
	ErrRollbackFailed = errors.New("melonsync: side-batch rollback failed")
)

// OutOfSync wraps ErrOutOfSync with the observed and expected revisions.
func OutOfSync(observed, expected int64) error {
	return errors.Wrapf(ErrOutOfSync, "revision %d != lastPulledAt %d", observed, expected)
}

// StoreUnavailable wraps ErrStoreUnavailable with the underlying cause.
func StoreUnavailable(cause error) error {
	return errors.Mark(errors.Wrap(cause, "remote store rejected operation"), ErrStoreUnavailable)
}

// StageFailed wraps ErrStageFailed with the underlying cause.
func StageFailed(cause error) error {
	return errors.Mark(errors.Wrap(cause, "side-batch stage commit failed"), ErrStageFailed)
}

// IntegrateFailed wraps ErrIntegrateFailed with the underlying cause.
func IntegrateFailed(cause error) error {
	return errors.Mark(errors.Wrap(cause, "side-batch integrate transaction failed"), ErrIntegrateFailed)
}

// RollbackFailed composes the original integrate error and the rollback
// error into a single error marked with both ErrIntegrateFailed and
// ErrRollbackFailed, so callers can detect either with errors.Is.
func RollbackFailed(integrateErr, rollbackErr error) error {
	combined := errors.CombineErrors(integrateErr, rollbackErr)
	return errors.Mark(errors.Mark(combined, ErrIntegrateFailed), ErrRollbackFailed)
}

// Is reports whether err is, or wraps, the given sentinel kind.
func Is(err, kind error) bool {
	return errors.Is(err, kind)
}
