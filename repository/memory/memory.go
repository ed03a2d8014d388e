// Package memory implements the repository interfaces in process memory.
// It backs the service when no MongoDB URI is configured, and the tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/linlinbupt123-crypto/energy_share_service/entity"
	wrapErrors "github.com/linlinbupt123-crypto/energy_share_service/errors"
)

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

type WalletRepo struct {
	mu     sync.RWMutex
	byUser map[string]*entity.Wallet
}

func NewWalletRepo() *WalletRepo {
	return &WalletRepo{byUser: make(map[string]*entity.Wallet)}
}

func cloneWallet(w *entity.Wallet) *entity.Wallet {
	c := *w
	env := w.Envelope
	env.Salt = append([]byte(nil), env.Salt...)
	env.IV = append([]byte(nil), env.IV...)
	env.AuthTag = append([]byte(nil), env.AuthTag...)
	env.Ciphertext = append([]byte(nil), env.Ciphertext...)
	c.Envelope = env
	c.DeletedAt = copyTime(w.DeletedAt)
	return &c
}

func (r *WalletRepo) Create(_ context.Context, w *entity.Wallet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byUser[w.UserID]; ok {
		return wrapErrors.Newf(wrapErrors.CodeWalletExists, "WalletRepo.Create", "user %s already has a wallet", w.UserID)
	}
	r.byUser[w.UserID] = cloneWallet(w)
	return nil
}

func (r *WalletRepo) GetByUserID(_ context.Context, userID string) (*entity.Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.byUser[userID]
	if !ok || w.DeletedAt != nil {
		return nil, nil
	}
	return cloneWallet(w), nil
}

type IntentRepo struct {
	mu   sync.RWMutex
	byID map[string]*entity.PurchaseIntent
}

func NewIntentRepo() *IntentRepo {
	return &IntentRepo{byID: make(map[string]*entity.PurchaseIntent)}
}

func cloneIntent(it *entity.PurchaseIntent) *entity.PurchaseIntent {
	c := *it
	if it.Metadata != nil {
		c.Metadata = make(map[string]string, len(it.Metadata))
		for k, v := range it.Metadata {
			c.Metadata[k] = v
		}
	}
	c.LedgerTime = copyTime(it.LedgerTime)
	c.SubmittedAt = copyTime(it.SubmittedAt)
	c.SettledAt = copyTime(it.SettledAt)
	c.DeletedAt = copyTime(it.DeletedAt)
	return &c
}

func (r *IntentRepo) Create(_ context.Context, intent *entity.PurchaseIntent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[intent.ID]; ok {
		return wrapErrors.Newf(wrapErrors.CodeValidation, "IntentRepo.Create", "duplicate intent id %s", intent.ID)
	}
	r.byID[intent.ID] = cloneIntent(intent)
	return nil
}

func (r *IntentRepo) get(id string) *entity.PurchaseIntent {
	it, ok := r.byID[id]
	if !ok || it.DeletedAt != nil {
		return nil
	}
	return it
}

func (r *IntentRepo) GetByID(_ context.Context, id string) (*entity.PurchaseIntent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if it := r.get(id); it != nil {
		return cloneIntent(it), nil
	}
	return nil, nil
}

func (r *IntentRepo) GetForUser(_ context.Context, userID, id string) (*entity.PurchaseIntent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if it := r.get(id); it != nil && it.UserID == userID {
		return cloneIntent(it), nil
	}
	return nil, nil
}

func (r *IntentRepo) Transition(_ context.Context, id string, u entity.IntentUpdate) (*entity.PurchaseIntent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	it := r.get(id)
	if it == nil {
		return nil, wrapErrors.Newf(wrapErrors.CodeNotFound, "IntentRepo.Transition", "intent %s not found", id)
	}
	if !it.Status.CanTransitionTo(u.Status) {
		return nil, wrapErrors.Newf(wrapErrors.CodeIllegalTransition, "IntentRepo.Transition", "%s -> %s", it.Status, u.Status)
	}
	u.Apply(it)
	return cloneIntent(it), nil
}

func (r *IntentRepo) ListByStatus(_ context.Context, status entity.IntentStatus) ([]*entity.PurchaseIntent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*entity.PurchaseIntent
	for _, it := range r.byID {
		if it.DeletedAt == nil && it.Status == status {
			out = append(out, cloneIntent(it))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *IntentRepo) ListByUser(_ context.Context, userID string, limit, skip int64) ([]*entity.PurchaseIntent, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var all []*entity.PurchaseIntent
	for _, it := range r.byID {
		if it.DeletedAt == nil && it.UserID == userID {
			all = append(all, it)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	total := int64(len(all))
	if skip >= total {
		return nil, total, nil
	}
	end := total
	if limit > 0 && skip+limit < total {
		end = skip + limit
	}
	out := make([]*entity.PurchaseIntent, 0, end-skip)
	for _, it := range all[skip:end] {
		out = append(out, cloneIntent(it))
	}
	return out, total, nil
}

func (r *IntentRepo) RecordSubmission(_ context.Context, id, hash string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	it := r.get(id)
	if it == nil {
		return wrapErrors.Newf(wrapErrors.CodeNotFound, "IntentRepo.RecordSubmission", "intent %s not found", id)
	}
	if it.Status != entity.StatusPending {
		return wrapErrors.Newf(wrapErrors.CodeIllegalTransition, "IntentRepo.RecordSubmission", "intent %s is %s", id, it.Status)
	}
	it.SubmissionHash = hash
	it.SubmittedAt = &at
	it.UpdatedAt = at
	return nil
}

func (r *IntentRepo) SoftDelete(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	it := r.get(id)
	if it == nil {
		return wrapErrors.Newf(wrapErrors.CodeNotFound, "IntentRepo.SoftDelete", "intent %s not found", id)
	}
	it.DeletedAt = &at
	return nil
}

// Len counts stored intents, soft-deleted ones included.
func (r *IntentRepo) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
