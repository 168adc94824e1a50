package lmssetup

import (
	"context"
	"sort"
	"sync"

	"github.com/mind-engage/mindengage-seb/internal/credentials"
	"github.com/mind-engage/mindengage-seb/internal/lms"
)

type MemStore struct {
	creds *credentials.Store

	mu     sync.RWMutex
	nextID int64
	setups map[int64]lms.Setup
}

func NewMemStore(creds *credentials.Store) *MemStore {
	return &MemStore{creds: creds, nextID: 1, setups: map[int64]lms.Setup{}}
}

func (m *MemStore) Get(ctx context.Context, id int64) (lms.Setup, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.setups[id]
	if !ok {
		return lms.Setup{}, notFound(id)
	}
	return s, nil
}

func (m *MemStore) List(ctx context.Context, f Filter) ([]lms.Setup, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]lms.Setup, 0, len(m.setups))
	for _, s := range m.setups {
		if f.InstitutionID != 0 && s.InstitutionID != f.InstitutionID {
			continue
		}
		if f.Active != nil && s.Active != *f.Active {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemStore) nameTaken(institution int64, name string, except int64) bool {
	for _, s := range m.setups {
		if s.ID != except && s.InstitutionID == institution && s.Name == name {
			return true
		}
	}
	return false
}

func (m *MemStore) Create(ctx context.Context, in Input) (lms.Setup, error) {
	in = normalize(in)
	if err := validate(in); err != nil {
		return lms.Setup{}, err
	}
	enc, err := seal(m.creds, in, credentials.Encrypted{})
	if err != nil {
		return lms.Setup{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.nameTaken(in.InstitutionID, in.Name, 0) {
		return lms.Setup{}, ErrDuplicateName
	}
	s := lms.Setup{
		ID:            m.nextID,
		InstitutionID: in.InstitutionID,
		Name:          in.Name,
		Type:          in.Type,
		URL:           in.URL,
		Credentials:   enc,
		Active:        in.Active,
		Version:       1,
	}
	m.nextID++
	m.setups[s.ID] = s
	return s, nil
}

func (m *MemStore) Save(ctx context.Context, id int64, in Input) (lms.Setup, error) {
	in = normalize(in)
	if err := validate(in); err != nil {
		return lms.Setup{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	prev, ok := m.setups[id]
	if !ok {
		return lms.Setup{}, notFound(id)
	}
	if m.nameTaken(prev.InstitutionID, in.Name, id) {
		return lms.Setup{}, ErrDuplicateName
	}
	enc, err := seal(m.creds, in, prev.Credentials)
	if err != nil {
		return lms.Setup{}, err
	}
	s := prev
	s.Name, s.Type, s.URL, s.Credentials, s.Active = in.Name, in.Type, in.URL, enc, in.Active
	s.Version++
	m.setups[id] = s
	return s, nil
}

func (m *MemStore) SetActive(ctx context.Context, id int64, active bool) (lms.Setup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.setups[id]
	if !ok {
		return lms.Setup{}, notFound(id)
	}
	if s.Active != active {
		s.Active = active
		s.Version++
		m.setups[id] = s
	}
	return s, nil
}

func (m *MemStore) UpdateAccessToken(ctx context.Context, id int64, token []byte) error {
	sealed, err := sealToken(m.creds, token)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.setups[id]
	if !ok {
		return notFound(id)
	}
	s.Credentials.AccessToken = sealed
	m.setups[id] = s
	return nil
}
