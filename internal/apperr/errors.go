package apperr

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("conflict")
	ErrAlreadyExists  = errors.New("already exists")
	ErrNotManaged     = errors.New("not managed")
	ErrSyncInProgress = errors.New("sync already in progress")
	ErrNoLegacyStore  = errors.New("no legacy store configured")
)
