// Package testutil provides in-memory fakes shared by package tests.
package testutil

import (
	"context"
	"sync"
	"time"

	wizard "github.com/wizardlabs/wizard/internal"
	"github.com/wizardlabs/wizard/internal/storage"
)

// Store is an in-memory storage.Store.
type Store struct {
	mu          sync.Mutex
	devices     map[string]*wizard.Device
	usage       []wizard.UsageRecord
	tasks       map[string]*wizard.TaskItem
	credentials map[string][]byte
}

// NewStore returns an empty in-memory store.
func NewStore() *Store {
	return &Store{
		devices:     make(map[string]*wizard.Device),
		tasks:       make(map[string]*wizard.TaskItem),
		credentials: make(map[string][]byte),
	}
}

func (s *Store) CreateDevice(_ context.Context, d *wizard.Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.devices[d.ID]; ok {
		return wizard.ErrConflict
	}
	cp := *d
	s.devices[d.ID] = &cp
	return nil
}

func (s *Store) GetDevice(_ context.Context, id string) (*wizard.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices[id]
	if !ok {
		return nil, wizard.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (s *Store) GetDeviceByTokenHash(_ context.Context, hash string) (*wizard.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.devices {
		if d.TokenHash == hash {
			cp := *d
			return &cp, nil
		}
	}
	return nil, wizard.ErrNotFound
}

func (s *Store) ListDevices(context.Context) ([]*wizard.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*wizard.Device, 0, len(s.devices))
	for _, d := range s.devices {
		cp := *d
		out = append(out, &cp)
	}
	return out, nil
}

func (s *Store) UpdateDevice(_ context.Context, d *wizard.Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.devices[d.ID]; !ok {
		return wizard.ErrNotFound
	}
	cp := *d
	s.devices[d.ID] = &cp
	return nil
}

func (s *Store) DeleteDevice(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.devices[id]; !ok {
		return wizard.ErrNotFound
	}
	delete(s.devices, id)
	return nil
}

func (s *Store) TouchDeviceSeen(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices[id]
	if !ok {
		return wizard.ErrNotFound
	}
	now := time.Now()
	d.Status = wizard.StatusOnline
	d.LastSeenAt = &now
	return nil
}

func (s *Store) InsertUsage(_ context.Context, records []wizard.UsageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage = append(s.usage, records...)
	return nil
}

func (s *Store) SumCostSince(_ context.Context, since time.Time) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total float64
	for _, r := range s.usage {
		if !r.CreatedAt.Before(since) {
			total += r.CostUSD
		}
	}
	return total, nil
}

func (s *Store) DeviceUsage(_ context.Context, deviceID string, since time.Time) (storage.UsageTotals, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var t storage.UsageTotals
	for _, r := range s.usage {
		if r.DeviceID == deviceID && !r.CreatedAt.Before(since) {
			t.Requests++
			t.TotalTokens += r.TotalTokens
			t.CostUSD += r.CostUSD
		}
	}
	return t, nil
}

func (s *Store) PruneUsage(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.usage[:0]
	var pruned int64
	for _, r := range s.usage {
		if r.CreatedAt.Before(before) {
			pruned++
			continue
		}
		kept = append(kept, r)
	}
	s.usage = kept
	return pruned, nil
}

// Usage returns a copy of all recorded usage.
func (s *Store) Usage() []wizard.UsageRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]wizard.UsageRecord, len(s.usage))
	copy(out, s.usage)
	return out
}

func (s *Store) UpsertTask(_ context.Context, t *wizard.TaskItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ext := t.ExternalID(); ext != "" {
		provider, _ := t.Metadata["external_provider"].(string)
		for id, existing := range s.tasks {
			if existing.ExternalID() == ext {
				if p, _ := existing.Metadata["external_provider"].(string); p == provider {
					cp := *t
					cp.ID = id
					s.tasks[id] = &cp
					t.ID = id
					return nil
				}
			}
		}
	}
	cp := *t
	s.tasks[t.ID] = &cp
	return nil
}

func (s *Store) GetTask(_ context.Context, id string) (*wizard.TaskItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, wizard.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *Store) ListTasks(_ context.Context, provider string, limit int) ([]*wizard.TaskItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*wizard.TaskItem, 0, len(s.tasks))
	for _, t := range s.tasks {
		if provider != "" {
			if p, _ := t.Metadata["external_provider"].(string); p != provider {
				continue
			}
		}
		cp := *t
		out = append(out, &cp)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *Store) SaveCredential(_ context.Context, provider string, blob []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(blob))
	copy(cp, blob)
	s.credentials[provider] = cp
	return nil
}

func (s *Store) GetCredential(_ context.Context, provider string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	blob, ok := s.credentials[provider]
	if !ok {
		return nil, wizard.ErrNotFound
	}
	cp := make([]byte, len(blob))
	copy(cp, blob)
	return cp, nil
}

func (s *Store) DeleteCredential(_ context.Context, provider string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.credentials[provider]; !ok {
		return wizard.ErrNotFound
	}
	delete(s.credentials, provider)
	return nil
}

func (s *Store) Ping(context.Context) error { return nil }
func (s *Store) Close() error               { return nil }
