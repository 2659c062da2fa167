package gatekeeper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/ppiankov/promptspeak/internal/model"
)

// validHoldID matches alphanumeric, dash, underscore, and dot characters only.
var validHoldID = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

// validateHoldID rejects ids that could cause path traversal.
func validateHoldID(id string) error {
	if id == "" {
		return fmt.Errorf("hold id must not be empty")
	}
	if strings.Contains(id, "..") {
		return fmt.Errorf("hold id must not contain '..'")
	}
	if !validHoldID.MatchString(id) {
		return fmt.Errorf("hold id contains invalid characters")
	}
	return nil
}

// FileHoldStore keeps one JSON file per hold in a directory, so holds can
// be inspected and resolved by other processes sharing the directory.
type FileHoldStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileHoldStore creates a store backed by dir.
func NewFileHoldStore(dir string) (*FileHoldStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("gatekeeper: create hold directory: %w", err)
	}
	return &FileHoldStore{dir: dir}, nil
}

// DefaultHoldDir returns the default hold directory.
func DefaultHoldDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "promptspeak-holds")
	}
	return filepath.Join(home, ".promptspeak", "holds")
}

func (s *FileHoldStore) Create(_ context.Context, hold model.HoldRequest) error {
	if err := validateHoldID(hold.HoldID); err != nil {
		return fmt.Errorf("gatekeeper: invalid hold: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeAtomic(hold)
}

func (s *FileHoldStore) Get(_ context.Context, id string) (model.HoldRequest, error) {
	if err := validateHoldID(id); err != nil {
		return model.HoldRequest{}, ErrHoldNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	h, err := s.read(id)
	if err != nil {
		return model.HoldRequest{}, err
	}
	return *h, nil
}

func (s *FileHoldStore) Resolve(_ context.Context, id string, status model.HoldStatus, ttl time.Duration, now time.Time) (model.HoldRequest, error) {
	if err := validateHoldID(id); err != nil {
		return model.HoldRequest{}, ErrHoldNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	h, err := s.read(id)
	if err != nil {
		return model.HoldRequest{}, err
	}
	if err := resolveHold(h, status, ttl, now); err != nil {
		return *h, err
	}
	return *h, s.writeAtomic(*h)
}

func (s *FileHoldStore) ConsumeApproved(_ context.Context, agentID, tool string, now time.Time) (model.HoldRequest, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	holds, err := s.readAll()
	if err != nil {
		return model.HoldRequest{}, false, err
	}
	sortHolds(holds)
	for i := range holds {
		h := &holds[i]
		if !consumable(h, agentID, tool, now) {
			continue
		}
		h.Status = model.HoldConsumed
		t := now
		h.ResolvedAt = &t
		if err := s.writeAtomic(*h); err != nil {
			return model.HoldRequest{}, false, err
		}
		return *h, true, nil
	}
	return model.HoldRequest{}, false, nil
}

func (s *FileHoldStore) List(_ context.Context, status model.HoldStatus) ([]model.HoldRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	holds, err := s.readAll()
	if err != nil {
		return nil, err
	}
	var out []model.HoldRequest
	for _, h := range holds {
		if status == "" || h.Status == status {
			out = append(out, h)
		}
	}
	sortHolds(out)
	return out, nil
}

func (s *FileHoldStore) Expire(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	holds, err := s.readAll()
	if err != nil {
		return 0, err
	}
	var errs []error
	n := 0
	for i := range holds {
		if !expireHold(&holds[i], now) {
			continue
		}
		if err := s.writeAtomic(holds[i]); err != nil {
			errs = append(errs, err)
			continue
		}
		n++
	}
	return n, errors.Join(errs...)
}

func (s *FileHoldStore) Close() error { return nil }

func (s *FileHoldStore) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

func (s *FileHoldStore) read(id string) (*model.HoldRequest, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrHoldNotFound
		}
		return nil, fmt.Errorf("gatekeeper: read hold %q: %w", id, err)
	}
	var h model.HoldRequest
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("gatekeeper: parse hold %q: %w", id, err)
	}
	return &h, nil
}

func (s *FileHoldStore) readAll() ([]model.HoldRequest, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("gatekeeper: list holds: %w", err)
	}
	var holds []model.HoldRequest
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		h, err := s.read(strings.TrimSuffix(e.Name(), ".json"))
		if err != nil {
			continue
		}
		holds = append(holds, *h)
	}
	return holds, nil
}

func (s *FileHoldStore) writeAtomic(h model.HoldRequest) error {
	data, err := json.MarshalIndent(h, "", "  ")
	if err != nil {
		return fmt.Errorf("gatekeeper: encode hold: %w", err)
	}
	path := s.path(h.HoldID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("gatekeeper: write hold: %w", err)
	}
	return os.Rename(tmp, path)
}
