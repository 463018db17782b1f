package domain

import "errors"

var (
	ErrSendingReplyFailed = errors.New("failed to send reply")

	// ErrInvalidState is returned when a request operation is attempted outside the state it is valid in.
	ErrInvalidState = errors.New("wrong step")
	// ErrShapeMismatch is returned when the content and style images do not resolve to the same tensor shape.
	ErrShapeMismatch = errors.New("image shapes do not match")
	// ErrResource covers model loading and image decoding or encoding failures.
	ErrResource = errors.New("resource unavailable")
	// ErrCapacity is returned when no more transfer jobs can be queued.
	ErrCapacity = errors.New("too many transfers running")
	// ErrTransferTimeout is returned when a transfer job exceeds its deadline.
	ErrTransferTimeout = errors.New("transfer timed out")
)
