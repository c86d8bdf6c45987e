// Package memory is an in-process credential.Repository for tests and demos.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/MrEthical07/phoneauth/credential"
)

// Repository keeps users in mutex-guarded maps.
type Repository struct {
	mu         sync.RWMutex
	byID       map[string]credential.User
	byIdentity map[credential.Identity]string
}

func New() *Repository {
	return &Repository{
		byID:       make(map[string]credential.User),
		byIdentity: make(map[credential.Identity]string),
	}
}

func (r *Repository) FindByIdentity(ctx context.Context, id credential.Identity) (credential.User, error) {
	if err := ctx.Err(); err != nil {
		return credential.User{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	uid, ok := r.byIdentity[id]
	if !ok {
		return credential.User{}, credential.ErrNotFound
	}
	return r.byID[uid], nil
}

func (r *Repository) FindByID(ctx context.Context, id string) (credential.User, error) {
	if err := ctx.Err(); err != nil {
		return credential.User{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.byID[id]
	if !ok {
		return credential.User{}, credential.ErrNotFound
	}
	return u, nil
}

func (r *Repository) Insert(ctx context.Context, u credential.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := credential.NewUser(u); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byIdentity[u.Identity]; exists {
		return credential.ErrConflict
	}
	if _, exists := r.byID[u.ID]; exists {
		return credential.ErrConflict
	}
	r.byID[u.ID] = u
	r.byIdentity[u.Identity] = u.ID
	return nil
}

func (r *Repository) Update(ctx context.Context, u credential.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.byID[u.ID]
	if !ok {
		return credential.ErrNotFound
	}
	u.Identity = cur.Identity
	u.CreatedAt = cur.CreatedAt
	r.byID[u.ID] = u
	return nil
}

func (r *Repository) ClaimProvisional(ctx context.Context, u credential.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.byID[u.ID]
	if !ok {
		return credential.ErrNotFound
	}
	if !cur.Provisional() {
		return credential.ErrConflict
	}
	u.Identity = cur.Identity
	u.CreatedAt = cur.CreatedAt
	r.byID[u.ID] = u
	return nil
}

func (r *Repository) TouchLastActive(ctx context.Context, id string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return credential.ErrNotFound
	}
	u.LastActive = at
	r.byID[id] = u
	return nil
}

// Len returns the number of stored users.
func (r *Repository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
