package relay

import "errors"

// ErrNotFound matches both ErrPeerNotFound and ErrTargetNotFound.
var ErrNotFound = errors.New("not found")

var (
	ErrPeerNotFound   error = notFoundError("peer not found")
	ErrTargetNotFound error = notFoundError("target not found")
)

var (
	// ErrInvalidID is returned when an unknown id presented for recovery does
	// not have the expected shape.
	ErrInvalidID = errors.New("invalid id")

	// ErrChannelClosed is returned from Attach when the channel stopped
	// accepting messages while the pending queue was replayed.
	ErrChannelClosed = errors.New("channel closed")

	ErrManagerClosed = errors.New("manager closed")
)

type notFoundError string

func (e notFoundError) Error() string { return string(e) }

func (e notFoundError) Is(target error) bool { return target == ErrNotFound }
