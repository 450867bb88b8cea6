package drive

import "errors"

// Sentinel errors returned by drive operations. Callers branch on these
// with errors.Is; the messages are user-facing.
var (
	// ErrNotFound indicates the path names no entry in the drive.
	ErrNotFound = errors.New("drive: path not found")

	// ErrIsDirectory indicates a file operation was attempted on a directory.
	ErrIsDirectory = errors.New("drive: path is a directory")

	// ErrNotDirectory indicates a directory operation was attempted on a file.
	ErrNotDirectory = errors.New("drive: path is not a directory")

	// ErrNotReady indicates an operation was issued before Ready returned.
	// This is a programming error in the caller, not a recoverable condition.
	ErrNotReady = errors.New("drive: drive not ready")

	// ErrReadOnly indicates a mutation was attempted without the secret key.
	ErrReadOnly = errors.New("drive: drive opened read-only")

	// ErrClosed indicates the drive was already closed.
	ErrClosed = errors.New("drive: drive closed")
)
