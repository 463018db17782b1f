package service

import (
	"slices"
	"sync"

	"nstbot/internal/core/domain"
)

type userRequests struct {
	mu      sync.Mutex
	history []*domain.Request
}

// active returns the last request if it still accepts images, otherwise appends a fresh one. Callers hold u.mu.
func (u *userRequests) active() *domain.Request {
	if n := len(u.history); n > 0 && u.history[n-1].Status().Assignable() {
		return u.history[n-1]
	}

	req := domain.NewRequest()
	u.history = append(u.history, req)
	return req
}

// Registry keeps an append-only request history per user. Each user has their own lock, so users never
// contend with each other.
type Registry struct {
	mu    sync.Mutex
	users map[int64]*userRequests
}

func NewRegistry() *Registry {
	return &Registry{users: make(map[int64]*userRequests)}
}

func (r *Registry) slot(userID int64, create bool) *userRequests {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[userID]
	if !ok && create {
		u = &userRequests{}
		r.users[userID] = u
	}
	return u
}

// GetOrCreateActive returns the user's request that still accepts images, creating one if needed.
func (r *Registry) GetOrCreateActive(userID int64) *domain.Request {
	u := r.slot(userID, true)

	u.mu.Lock()
	defer u.mu.Unlock()

	return u.active()
}

// Update runs fn against the user's active request while holding the user's lock.
func (r *Registry) Update(userID int64, fn func(req *domain.Request) error) error {
	u := r.slot(userID, true)

	u.mu.Lock()
	defer u.mu.Unlock()

	return fn(u.active())
}

// Latest returns the most recent request of the user without creating one.
func (r *Registry) Latest(userID int64) (*domain.Request, bool) {
	u := r.slot(userID, false)
	if u == nil {
		return nil, false
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	if len(u.history) == 0 {
		return nil, false
	}
	return u.history[len(u.history)-1], true
}

// History returns a copy of the user's requests, oldest first.
func (r *Registry) History(userID int64) []*domain.Request {
	u := r.slot(userID, false)
	if u == nil {
		return nil
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	return slices.Clone(u.history)
}

type UserSnapshot struct {
	UserID   int64
	Requests []domain.RequestSnapshot
}

// Snapshot copies every user's history, ordered by user ID.
func (r *Registry) Snapshot() []UserSnapshot {
	r.mu.Lock()
	ids := make([]int64, 0, len(r.users))
	for id := range r.users {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	slices.Sort(ids)

	out := make([]UserSnapshot, 0, len(ids))
	for _, id := range ids {
		snap := UserSnapshot{UserID: id}
		for _, req := range r.History(id) {
			snap.Requests = append(snap.Requests, req.Snapshot())
		}
		out = append(out, snap)
	}

	return out
}
