package domain

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

type Status string

const (
	StatusNew             Status = "NEW"
	StatusContentAssigned Status = "CONTENT_ASSIGNED"
	StatusStyleAssigned   Status = "STYLE_ASSIGNED"
	StatusInTransfer      Status = "IN_TRANSFER"
	StatusDone            Status = "DONE"
	StatusFailed          Status = "FAILED"
)

// Assignable reports whether a request in this status still accepts an image.
func (s Status) Assignable() bool {
	return s == StatusNew || s == StatusContentAssigned
}

func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusFailed
}

// PathAllocator returns a fresh, collision-free path for a generated image.
type PathAllocator func() (string, error)

// Request is one content/style pairing. All fields change only through its state transitions.
type Request struct {
	mu        sync.Mutex
	status    Status
	content   string
	style     string
	generated string
	failure   error
	createdAt time.Time
	updatedAt time.Time
}

// RequestSnapshot is a point-in-time copy of a Request.
type RequestSnapshot struct {
	Status        Status
	ContentPath   string
	StylePath     string
	GeneratedPath string
	Failure       string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func NewRequest() *Request {
	now := time.Now()
	return &Request{
		status:    StatusNew,
		createdAt: now,
		updatedAt: now,
	}
}

func (r *Request) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// AssignImage stores the first image as content and the second as style.
func (r *Request) AssignImage(path string) (Status, error) {
	if path == "" {
		return r.Status(), errors.New("empty image path")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.status {
	case StatusNew:
		r.content = path
		r.transition(StatusContentAssigned)
	case StatusContentAssigned:
		r.style = path
		r.transition(StatusStyleAssigned)
	default:
		return r.status, invalid("assign image", r.status)
	}

	return r.status, nil
}

// BeginTransfer allocates the output path and moves the request into IN_TRANSFER.
func (r *Request) BeginTransfer(allocate PathAllocator) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status != StatusStyleAssigned {
		return "", invalid("begin transfer", r.status)
	}

	path, err := allocate()
	if err != nil {
		return "", fmt.Errorf("allocate output path: %w", err)
	}
	if path == "" {
		return "", errors.New("allocate output path: empty path")
	}

	r.generated = path
	r.transition(StatusInTransfer)

	return path, nil
}

// CompleteTransfer finalizes the request. The path must be the one allocated by BeginTransfer.
func (r *Request) CompleteTransfer(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status != StatusInTransfer {
		return invalid("complete transfer", r.status)
	}
	if path != r.generated {
		return fmt.Errorf("complete transfer: result %q differs from allocated path %q", path, r.generated)
	}

	r.transition(StatusDone)
	return nil
}

// Fail moves an in-flight request to FAILED and keeps the reason.
func (r *Request) Fail(reason error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status != StatusInTransfer {
		return invalid("fail transfer", r.status)
	}
	if reason == nil {
		reason = errors.New("unknown failure")
	}

	r.failure = reason
	r.transition(StatusFailed)
	return nil
}

// Result returns the generated image path of a finished request.
func (r *Request) Result() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.status {
	case StatusDone:
		return r.generated, nil
	case StatusFailed:
		return "", fmt.Errorf("%w: transfer failed: %w", ErrInvalidState, r.failure)
	default:
		return "", invalid("get result", r.status)
	}
}

func (r *Request) Snapshot() RequestSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := RequestSnapshot{
		Status:        r.status,
		ContentPath:   r.content,
		StylePath:     r.style,
		GeneratedPath: r.generated,
		CreatedAt:     r.createdAt,
		UpdatedAt:     r.updatedAt,
	}
	if r.failure != nil {
		s.Failure = r.failure.Error()
	}
	return s
}

func (r *Request) transition(to Status) {
	r.status = to
	r.updatedAt = time.Now()
}

func invalid(op string, status Status) error {
	return fmt.Errorf("%w: cannot %s while %s", ErrInvalidState, op, status)
}
