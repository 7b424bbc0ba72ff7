package reconcile

import (
	"context"
	"sort"
	"sync"
)

// MemCaseStore is an in-memory CaseStore for tests.
type MemCaseStore struct {
	mu    sync.Mutex
	cases map[string]*VarianceCase
}

// NewMemCaseStore creates an empty in-memory case store.
func NewMemCaseStore() *MemCaseStore {
	return &MemCaseStore{cases: make(map[string]*VarianceCase)}
}

func (m *MemCaseStore) CreateCase(_ context.Context, c *VarianceCase) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.cases[c.ID] = &cp
	return nil
}

func (m *MemCaseStore) GetCase(_ context.Context, id string) (*VarianceCase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cases[id]
	if !ok {
		return nil, ErrCaseNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *MemCaseStore) UpdateCase(_ context.Context, c *VarianceCase) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.cases[c.ID]; !ok {
		return ErrCaseNotFound
	}
	cp := *c
	m.cases[c.ID] = &cp
	return nil
}

func (m *MemCaseStore) ListCases(_ context.Context, companyID string, status CaseStatus, limit, offset int) ([]*VarianceCase, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*VarianceCase
	for _, c := range m.cases {
		if companyID != "" && c.CompanyID != companyID {
			continue
		}
		if status != "" && c.Status != status {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	total := int64(len(out))
	if offset >= len(out) {
		return nil, total, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, total, nil
}
