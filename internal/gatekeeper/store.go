package gatekeeper

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/ppiankov/promptspeak/internal/model"
)

var (
	// ErrHoldNotFound is returned when no hold has the requested id.
	ErrHoldNotFound = errors.New("hold not found")
	// ErrHoldResolved is returned when resolving a hold that is no longer pending.
	ErrHoldResolved = errors.New("hold already resolved")
	// ErrInvalidResolution is returned for a resolution other than approved or denied.
	ErrInvalidResolution = errors.New("hold resolution must be approved or denied")
)

// DefaultApprovalTTL is how long an approval stays consumable when the
// resolver names no duration.
const DefaultApprovalTTL = 5 * time.Minute

// HoldStore persists hold requests and their resolution.
type HoldStore interface {
	// Create stores a new pending hold.
	Create(ctx context.Context, hold model.HoldRequest) error
	// Get returns the hold with the given id.
	Get(ctx context.Context, id string) (model.HoldRequest, error)
	// Resolve moves a pending hold to approved or denied. For approvals a
	// positive ttl bounds how long the approval may be consumed.
	Resolve(ctx context.Context, id string, status model.HoldStatus, ttl time.Duration, now time.Time) (model.HoldRequest, error)
	// ConsumeApproved marks the oldest live approval for agentID+tool as
	// consumed and returns it.
	ConsumeApproved(ctx context.Context, agentID, tool string, now time.Time) (model.HoldRequest, bool, error)
	// List returns holds with the given status, oldest first. An empty
	// status returns every hold.
	List(ctx context.Context, status model.HoldStatus) ([]model.HoldRequest, error)
	// Expire marks pending holds past ExpiresAt and approvals past
	// ApprovalExpiresAt as expired. It returns the number changed.
	Expire(ctx context.Context, now time.Time) (int, error)
	// Close releases resources held by the store.
	Close() error
}

// MemoryHoldStore keeps holds in process memory. Holds are copied on the
// way in and out, so callers never share argument maps with the store.
type MemoryHoldStore struct {
	mu    sync.Mutex
	holds map[string]*model.HoldRequest
}

// NewMemoryHoldStore creates an empty in-memory store.
func NewMemoryHoldStore() *MemoryHoldStore {
	return &MemoryHoldStore{holds: make(map[string]*model.HoldRequest)}
}

func (s *MemoryHoldStore) Create(_ context.Context, hold model.HoldRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := hold.Clone()
	s.holds[hold.HoldID] = &h
	return nil
}

func (s *MemoryHoldStore) Get(_ context.Context, id string) (model.HoldRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.holds[id]
	if !ok {
		return model.HoldRequest{}, ErrHoldNotFound
	}
	return h.Clone(), nil
}

func (s *MemoryHoldStore) Resolve(_ context.Context, id string, status model.HoldStatus, ttl time.Duration, now time.Time) (model.HoldRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.holds[id]
	if !ok {
		return model.HoldRequest{}, ErrHoldNotFound
	}
	if err := resolveHold(h, status, ttl, now); err != nil {
		return h.Clone(), err
	}
	return h.Clone(), nil
}

func (s *MemoryHoldStore) ConsumeApproved(_ context.Context, agentID, tool string, now time.Time) (model.HoldRequest, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best *model.HoldRequest
	for _, h := range s.holds {
		if !consumable(h, agentID, tool, now) {
			continue
		}
		if best == nil || h.CreatedAt.Before(best.CreatedAt) {
			best = h
		}
	}
	if best == nil {
		return model.HoldRequest{}, false, nil
	}
	best.Status = model.HoldConsumed
	t := now
	best.ResolvedAt = &t
	return best.Clone(), true, nil
}

func (s *MemoryHoldStore) List(_ context.Context, status model.HoldStatus) ([]model.HoldRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.HoldRequest
	for _, h := range s.holds {
		if status == "" || h.Status == status {
			out = append(out, h.Clone())
		}
	}
	sortHolds(out)
	return out, nil
}

func (s *MemoryHoldStore) Expire(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, h := range s.holds {
		if expireHold(h, now) {
			n++
		}
	}
	return n, nil
}

func (s *MemoryHoldStore) Close() error { return nil }

// resolveHold applies an approve or deny decision to a pending hold.
func resolveHold(h *model.HoldRequest, status model.HoldStatus, ttl time.Duration, now time.Time) error {
	if status != model.HoldApproved && status != model.HoldDenied {
		return ErrInvalidResolution
	}
	if h.Status != model.HoldPending {
		return ErrHoldResolved
	}
	h.Status = status
	t := now
	h.ResolvedAt = &t
	if status == model.HoldApproved && ttl > 0 {
		exp := now.Add(ttl)
		h.ApprovalExpiresAt = &exp
	}
	return nil
}

func consumable(h *model.HoldRequest, agentID, tool string, now time.Time) bool {
	if h.Status != model.HoldApproved || h.AgentID != agentID || h.Tool != tool {
		return false
	}
	return h.ApprovalExpiresAt == nil || now.Before(*h.ApprovalExpiresAt)
}

// expireHold reports whether h changed to expired.
func expireHold(h *model.HoldRequest, now time.Time) bool {
	switch h.Status {
	case model.HoldPending:
		if !h.ExpiresAt.IsZero() && now.After(h.ExpiresAt) {
			h.Status = model.HoldExpired
			return true
		}
	case model.HoldApproved:
		if h.ApprovalExpiresAt != nil && now.After(*h.ApprovalExpiresAt) {
			h.Status = model.HoldExpired
			return true
		}
	}
	return false
}

func sortHolds(holds []model.HoldRequest) {
	sort.Slice(holds, func(i, j int) bool {
		if holds[i].CreatedAt.Equal(holds[j].CreatedAt) {
			return holds[i].HoldID < holds[j].HoldID
		}
		return holds[i].CreatedAt.Before(holds[j].CreatedAt)
	})
}
