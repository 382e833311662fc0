package auth

import (
	"context"
	"strings"
	"sync"
	"time"

	"walletauth.org/internal/ids"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-process Store for tests and single-node demos.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]*User
	usage map[string]Usage
	audit []*AuditEntry
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users: make(map[string]*User),
		usage: make(map[string]Usage),
		now:   time.Now,
	}
}

func (s *MemoryStore) Users(context.Context) UserStore  { return memUsers{s} }
func (s *MemoryStore) Usage(context.Context) UsageStore { return memUsage{s} }
func (s *MemoryStore) Audit(context.Context) AuditStore { return memAudit{s} }

// Entries returns a copy of the audit log.
func (s *MemoryStore) Entries() []AuditEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]AuditEntry, 0, len(s.audit))
	for _, e := range s.audit {
		out = append(out, *e)
	}
	return out
}

type memUsers struct{ s *MemoryStore }

func (m memUsers) Create(_ context.Context, u *User) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if u.ID == "" {
		u.ID = ids.New()
	}
	for _, existing := range m.s.users {
		if existing.ID == u.ID {
			return ErrAlreadyExists
		}
		if u.Email != "" && existing.Email == u.Email {
			return ErrAlreadyExists
		}
		if u.WalletAddress != "" && strings.EqualFold(existing.WalletAddress, u.WalletAddress) {
			return ErrAlreadyExists
		}
	}
	now := m.s.now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now
	cp := *u
	m.s.users[u.ID] = &cp
	return nil
}

func (m memUsers) Find(_ context.Context, id string) (*User, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	u, ok := m.s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m memUsers) FindByEmail(_ context.Context, email string) (*User, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	for _, u := range m.s.users {
		if email != "" && u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m memUsers) FindByWallet(_ context.Context, addresses ...string) (*User, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	for _, addr := range addresses {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		for _, u := range m.s.users {
			if strings.EqualFold(u.WalletAddress, addr) {
				cp := *u
				return &cp, nil
			}
		}
	}
	return nil, ErrNotFound
}

type memUsage struct{ s *MemoryStore }

func usageKey(wallet, unit string) string { return wallet + "|" + unit }

func (m memUsage) Get(_ context.Context, walletAddress, unit string) (Usage, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	if u, ok := m.s.usage[usageKey(walletAddress, unit)]; ok {
		return u, nil
	}
	return Usage{WalletAddress: walletAddress, Unit: unit}, nil
}

func (m memUsage) Record(_ context.Context, walletAddress, unit string, at time.Time) (Usage, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	key := usageKey(walletAddress, unit)
	u := m.s.usage[key]
	u.WalletAddress, u.Unit = walletAddress, unit
	u.Count++
	u.LastUsedAt = at.UTC()
	m.s.usage[key] = u
	return u, nil
}

type memAudit struct{ s *MemoryStore }

func (m memAudit) Append(_ context.Context, entry *AuditEntry) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if entry.ID == "" {
		entry.ID = ids.New()
	}
	cp := *entry
	m.s.audit = append(m.s.audit, &cp)
	return nil
}
