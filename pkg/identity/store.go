package identity

import (
	"context"

	"github.com/priyanshu8007b/bitespeed/pkg/models"
)

// Transactor runs fn inside one transaction carried by the ctx passed to fn.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// ContactReader is what the resolver needs. Deleted contacts are never returned.
type ContactReader interface {
	FindByEmailOrPhone(ctx context.Context, email, phone string) ([]*models.Contact, error)
	FindByID(ctx context.Context, id int64) (*models.Contact, error)
	LockByID(ctx context.Context, id int64) (*models.Contact, error)
	FindPrimaryAndSecondariesOf(ctx context.Context, primaryID int64) ([]*models.Contact, error)
}

// ContactWriter is what the executor needs.
type ContactWriter interface {
	Insert(ctx context.Context, contact *models.Contact) (*models.Contact, error)
	UpdateLinkage(ctx context.Context, id int64, linkedID *int64, precedence models.LinkPrecedence) error
	RepointSecondaries(ctx context.Context, oldPrimaryID, newPrimaryID int64) error
	SoftDelete(ctx context.Context, id int64) error
}

// ContactStore is implemented by the postgres and in-memory repositories.
type ContactStore interface {
	Transactor
	ContactReader
	ContactWriter
	LockKeys(ctx context.Context, keys []string) error
}

// Locker serializes units of work on the same keys across instances.
type Locker interface {
	Acquire(ctx context.Context, keys []string) (release func(context.Context), err error)
}

// EventEmitter publishes committed changes.
type EventEmitter interface {
	EmitIdentified(ctx context.Context, result *models.IdentifyResult) error
	EmitDeleted(ctx context.Context, deleted *models.Contact, survivors []*models.Contact) error
}

// ClusterProjector mirrors clusters into a graph store.
type ClusterProjector interface {
	ProjectCluster(ctx context.Context, members []*models.Contact) error
	RemoveContact(ctx context.Context, id int64) error
}
