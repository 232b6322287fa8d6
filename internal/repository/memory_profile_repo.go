package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/VmalRaj-Dev/limetto/internal/model"
)

// MemoryProfileRepo is a process-local ProfileRepository. It applies the same
// conditional-update rules as the Postgres store and backs local development
// and tests.
type MemoryProfileRepo struct {
	mu       sync.Mutex
	profiles map[string]*model.Profile
	now      func() time.Time
}

var _ ProfileRepository = (*MemoryProfileRepo)(nil)

// NewMemoryProfileRepo creates an empty in-memory store.
func NewMemoryProfileRepo() *MemoryProfileRepo {
	return &MemoryProfileRepo{
		profiles: make(map[string]*model.Profile),
		now:      time.Now,
	}
}

// Put stores a copy of p, replacing any existing profile with the same id.
func (r *MemoryProfileRepo) Put(p model.Profile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := cloneProfile(&p)
	r.profiles[p.ID] = cp
}

func (r *MemoryProfileRepo) CreateProfile(_ context.Context, p *model.Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.profiles[p.ID]; ok {
		return fmt.Errorf("creating profile %s: already exists", p.ID)
	}
	if p.SubscriptionStatus == "" {
		p.SubscriptionStatus = model.StatusNone
	}
	now := r.now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	r.profiles[p.ID] = cloneProfile(p)
	return nil
}

func (r *MemoryProfileRepo) GetProfileByID(_ context.Context, id string) (*model.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[id]
	if !ok {
		return nil, nil
	}
	return cloneProfile(p), nil
}

func (r *MemoryProfileRepo) GetProfileByCustomerID(_ context.Context, customerID string) (*model.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.profiles {
		if p.DodoCustomerID != nil && *p.DodoCustomerID == customerID {
			return cloneProfile(p), nil
		}
	}
	return nil, nil
}

func (r *MemoryProfileRepo) SetCustomerID(_ context.Context, userID, customerID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[userID]
	if !ok {
		return "", ErrNotFound
	}
	if p.DodoCustomerID == nil {
		p.DodoCustomerID = strPtr(customerID)
		p.UpdatedAt = r.now().UTC()
	}
	return *p.DodoCustomerID, nil
}

func (r *MemoryProfileRepo) ApplySubscription(_ context.Context, upd *model.SubscriptionUpdate) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[upd.UserID]
	if !ok {
		return false, nil
	}
	if eqStr(p.DodoSubscriptionID, upd.SubscriptionID) && p.SubscriptionStatus == upd.Status {
		if upd.AppliedSince == nil || (p.SubscribedAt != nil && !p.SubscribedAt.Before(*upd.AppliedSince)) {
			return false, nil
		}
	}
	p.SubscriptionStatus = upd.Status
	p.IsTrialing = upd.IsTrialing
	p.TrialEndsAt = timePtr(upd.TrialEndsAt)
	p.HasEverTrialed = p.HasEverTrialed || upd.MarkTrialed
	if upd.CategoryID != nil {
		p.ChosenCategoryID = strPtr(*upd.CategoryID)
	}
	p.DodoSubscriptionID = strPtr(upd.SubscriptionID)
	if upd.CustomerID != nil {
		p.DodoCustomerID = strPtr(*upd.CustomerID)
	}
	subscribedAt := upd.SubscribedAt
	p.SubscribedAt = &subscribedAt
	if upd.NextBillingAt != nil {
		p.NextBillingAt = timePtr(upd.NextBillingAt)
	}
	p.UpdatedAt = r.now().UTC()
	return true, nil
}

func (r *MemoryProfileRepo) UpdateSubscriptionStatus(_ context.Context, userID, subscriptionID string, status model.SubscriptionStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[userID]
	if !ok {
		return false, nil
	}
	if p.DodoSubscriptionID != nil && *p.DodoSubscriptionID != subscriptionID {
		return false, nil
	}
	if eqStr(p.DodoSubscriptionID, subscriptionID) && p.SubscriptionStatus == status {
		return false, nil
	}
	p.SubscriptionStatus = status
	if status != model.StatusTrialing {
		p.IsTrialing = false
	}
	p.UpdatedAt = r.now().UTC()
	return true, nil
}

func (r *MemoryProfileRepo) RecordPaymentSucceeded(_ context.Context, rec *model.PaymentRecord) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[rec.UserID]
	if !ok {
		return false, nil
	}
	if p.PaymentStatus != nil && *p.PaymentStatus == model.PaymentSucceeded &&
		p.LastPaymentAt != nil && p.LastPaymentAt.Equal(rec.PaidAt) &&
		eqStr(p.DodoLastPaymentID, rec.PaymentID) {
		return false, nil
	}
	paidAt := rec.PaidAt
	succeeded := model.PaymentSucceeded
	p.LastPaymentAt = &paidAt
	p.PaymentStatus = &succeeded
	if rec.CustomerID != nil {
		p.DodoCustomerID = strPtr(*rec.CustomerID)
	}
	p.DodoLastPaymentID = strPtr(rec.PaymentID)
	p.UpdatedAt = r.now().UTC()
	return true, nil
}

func (r *MemoryProfileRepo) RecordPaymentFailed(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[userID]
	if !ok {
		return ErrNotFound
	}
	failed := model.PaymentFailed
	p.PaymentStatus = &failed
	p.UpdatedAt = r.now().UTC()
	return nil
}

func (r *MemoryProfileRepo) ExpireTrials(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, p := range r.profiles {
		if p.SubscriptionStatus == model.StatusTrialing && p.TrialEndsAt != nil && p.TrialEndsAt.Before(now) {
			p.SubscriptionStatus = model.StatusTrialEnded
			p.IsTrialing = false
			p.UpdatedAt = r.now().UTC()
			n++
		}
	}
	return n, nil
}

func (r *MemoryProfileRepo) ListBillingDueBetween(_ context.Context, from, to time.Time) ([]model.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Profile
	for _, p := range r.profiles {
		if !p.SubscriptionStatus.Billable() || p.NextBillingAt == nil {
			continue
		}
		if !p.NextBillingAt.Before(from) && p.NextBillingAt.Before(to) {
			out = append(out, *cloneProfile(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextBillingAt.Before(*out[j].NextBillingAt) })
	return out, nil
}

func cloneProfile(p *model.Profile) *model.Profile {
	cp := *p
	cp.TrialEndsAt = timePtr(p.TrialEndsAt)
	cp.SubscribedAt = timePtr(p.SubscribedAt)
	cp.NextBillingAt = timePtr(p.NextBillingAt)
	cp.LastPaymentAt = timePtr(p.LastPaymentAt)
	if p.PaymentStatus != nil {
		ps := *p.PaymentStatus
		cp.PaymentStatus = &ps
	}
	if p.DodoCustomerID != nil {
		cp.DodoCustomerID = strPtr(*p.DodoCustomerID)
	}
	if p.DodoSubscriptionID != nil {
		cp.DodoSubscriptionID = strPtr(*p.DodoSubscriptionID)
	}
	if p.DodoLastPaymentID != nil {
		cp.DodoLastPaymentID = strPtr(*p.DodoLastPaymentID)
	}
	if p.ChosenCategoryID != nil {
		cp.ChosenCategoryID = strPtr(*p.ChosenCategoryID)
	}
	return &cp
}

func strPtr(s string) *string { return &s }

func timePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func eqStr(p *string, s string) bool {
	return p != nil && *p == s
}
