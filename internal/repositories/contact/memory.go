package contact

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/priyanshu8007b/bitespeed/pkg/models"
	"github.com/priyanshu8007b/bitespeed/pkg/sentinel"
)

type memoryTxKey struct{}

// MemoryRepository is an in-process contact store used by tests and DB_DRIVER=memory.
// Units of work are fully serialized; a failed unit restores the pre-transaction snapshot.
type MemoryRepository struct {
	mu       sync.Mutex
	contacts map[int64]*models.Contact
	nextID   int64
	now      func() time.Time
}

type MemoryOption func(*MemoryRepository)

// WithClock overrides the clock used for created/updated timestamps.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *MemoryRepository) {
		m.now = now
	}
}

// NewMemoryRepository creates an empty in-memory contact store.
func NewMemoryRepository(opts ...MemoryOption) *MemoryRepository {
	m := &MemoryRepository{
		contacts: make(map[int64]*models.Contact),
		nextID:   1,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// WithinTx runs fn under the store lock and restores the previous state if fn fails.
func (m *MemoryRepository) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if inMemoryTx(ctx) {
		return fn(ctx)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot, nextID := m.snapshot(), m.nextID
	if err := fn(context.WithValue(ctx, memoryTxKey{}, true)); err != nil {
		m.contacts, m.nextID = snapshot, nextID
		return err
	}
	return nil
}

// LockKeys is a no-op; WithinTx already serializes every unit of work.
func (m *MemoryRepository) LockKeys(ctx context.Context, keys []string) error {
	return nil
}

// FindByEmailOrPhone returns live contacts sharing either value, oldest first.
func (m *MemoryRepository) FindByEmailOrPhone(ctx context.Context, email, phone string) ([]*models.Contact, error) {
	defer m.guard(ctx)()

	if email == "" && phone == "" {
		return nil, nil
	}
	return m.filter(func(c *models.Contact) bool {
		return (email != "" && c.EmailValue() == email) || (phone != "" && c.PhoneValue() == phone)
	}, func(a, b *models.Contact) bool { return a.OlderThan(b) }), nil
}

// FindByID returns a live contact or sentinel.ErrNotFound.
func (m *MemoryRepository) FindByID(ctx context.Context, id int64) (*models.Contact, error) {
	defer m.guard(ctx)()

	c, ok := m.contacts[id]
	if !ok || c.IsDeleted() {
		return nil, errors.Wrapf(sentinel.ErrNotFound, "contact %d", id)
	}
	return clone(c), nil
}

func (m *MemoryRepository) LockByID(ctx context.Context, id int64) (*models.Contact, error) {
	return m.FindByID(ctx, id)
}

func (m *MemoryRepository) FindPrimaryAndSecondariesOf(ctx context.Context, primaryID int64) ([]*models.Contact, error) {
	defer m.guard(ctx)()

	return m.filter(func(c *models.Contact) bool {
		return c.ID == primaryID || (c.LinkedID != nil && *c.LinkedID == primaryID)
	}, func(a, b *models.Contact) bool {
		if a.IsPrimary() != b.IsPrimary() {
			return a.IsPrimary()
		}
		return a.OlderThan(b)
	}), nil
}

func (m *MemoryRepository) Insert(ctx context.Context, contact *models.Contact) (*models.Contact, error) {
	defer m.guard(ctx)()

	now := m.now()
	if contact.CreatedAt.IsZero() {
		contact.CreatedAt = now
	}
	contact.UpdatedAt = now
	contact.ID = m.nextID
	m.nextID++

	if contact.LinkPrecedence == models.LinkPrecedencePrimary {
		for _, existing := range m.contacts {
			if existing.IsPrimary() && !existing.IsDeleted() &&
				existing.EmailValue() == contact.EmailValue() && existing.PhoneValue() == contact.PhoneValue() {
				return nil, errors.Wrap(sentinel.ErrConflict, "duplicate live primary")
			}
		}
	}

	m.contacts[contact.ID] = clone(contact)
	return contact, nil
}

func (m *MemoryRepository) UpdateLinkage(ctx context.Context, id int64, linkedID *int64, precedence models.LinkPrecedence) error {
	defer m.guard(ctx)()

	c, ok := m.contacts[id]
	if !ok || c.IsDeleted() {
		return errors.Wrapf(sentinel.ErrNotFound, "contact %d", id)
	}
	if linkedID != nil {
		parent := *linkedID
		c.LinkedID = &parent
	} else {
		c.LinkedID = nil
	}
	c.LinkPrecedence = precedence
	c.UpdatedAt = m.now()
	return nil
}

func (m *MemoryRepository) RepointSecondaries(ctx context.Context, oldPrimaryID, newPrimaryID int64) error {
	defer m.guard(ctx)()

	now := m.now()
	for _, c := range m.contacts {
		if c.IsDeleted() || c.ID == newPrimaryID || c.LinkedID == nil || *c.LinkedID != oldPrimaryID {
			continue
		}
		parent := newPrimaryID
		c.LinkedID = &parent
		c.UpdatedAt = now
	}
	return nil
}

// SoftDelete sets deleted_at on a live contact.
func (m *MemoryRepository) SoftDelete(ctx context.Context, id int64) error {
	defer m.guard(ctx)()

	c, ok := m.contacts[id]
	if !ok || c.IsDeleted() {
		return errors.Wrapf(sentinel.ErrNotFound, "contact %d", id)
	}
	now := m.now()
	c.DeletedAt = &now
	c.UpdatedAt = now
	return nil
}

func (m *MemoryRepository) Ping(ctx context.Context) error {
	return nil
}

// Len counts stored rows, deleted ones included.
func (m *MemoryRepository) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.contacts)
}

// guard locks the store for calls made outside WithinTx; inside a unit the lock is already held.
func (m *MemoryRepository) guard(ctx context.Context) func() {
	if inMemoryTx(ctx) {
		return func() {}
	}
	m.mu.Lock()
	return m.mu.Unlock
}

func (m *MemoryRepository) filter(keep func(*models.Contact) bool, less func(a, b *models.Contact) bool) []*models.Contact {
	var out []*models.Contact
	for _, c := range m.contacts {
		if !c.IsDeleted() && keep(c) {
			out = append(out, clone(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

func (m *MemoryRepository) snapshot() map[int64]*models.Contact {
	out := make(map[int64]*models.Contact, len(m.contacts))
	for id, c := range m.contacts {
		out[id] = clone(c)
	}
	return out
}

func inMemoryTx(ctx context.Context) bool {
	v, _ := ctx.Value(memoryTxKey{}).(bool)
	return v
}

func clone(c *models.Contact) *models.Contact {
	cp := *c
	if c.Email != nil {
		email := *c.Email
		cp.Email = &email
	}
	if c.PhoneNumber != nil {
		phone := *c.PhoneNumber
		cp.PhoneNumber = &phone
	}
	if c.LinkedID != nil {
		linked := *c.LinkedID
		cp.LinkedID = &linked
	}
	if c.DeletedAt != nil {
		deleted := *c.DeletedAt
		cp.DeletedAt = &deleted
	}
	return &cp
}
