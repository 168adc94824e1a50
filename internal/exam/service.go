package exam

import (
	"context"
	"sort"
	"sync"
)

type extKey struct {
	lmsSetupID int64
	externalID string
}

type memoryStore struct {
	mu    sync.RWMutex
	exams map[string]Exam
	byExt map[extKey]string
}

func NewInMemoryStore() Store {
	return &memoryStore{
		exams: map[string]Exam{},
		byExt: map[extKey]string{},
	}
}

func (m *memoryStore) Import(ctx context.Context, e Exam) (Exam, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := extKey{e.LmsSetupID, e.ExternalID}
	if id, ok := m.byExt[k]; ok {
		return m.exams[id], false, nil
	}
	m.exams[e.ID] = e
	m.byExt[k] = e.ID
	return e, true, nil
}

func (m *memoryStore) Get(ctx context.Context, id string) (Exam, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.exams[id]
	if !ok {
		return Exam{}, ErrNotFound
	}
	return e, nil
}

func (m *memoryStore) GetByExternalID(ctx context.Context, lmsSetupID int64, externalID string) (Exam, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byExt[extKey{lmsSetupID, externalID}]
	if !ok {
		return Exam{}, ErrNotFound
	}
	return m.exams[id], nil
}

func (m *memoryStore) List(ctx context.Context, opts ListOpts) ([]Exam, error) {
	m.mu.RLock()
	out := make([]Exam, 0, len(m.exams))
	for _, e := range m.exams {
		if opts.InstitutionID != 0 && e.InstitutionID != opts.InstitutionID {
			continue
		}
		if opts.LmsSetupID != 0 && e.LmsSetupID != opts.LmsSetupID {
			continue
		}
		out = append(out, e)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt > out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return []Exam{}, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(out) {
		out = out[:opts.Limit]
	}
	return out, nil
}
