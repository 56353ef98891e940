package contact

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"
	"github.com/pkg/errors"

	"github.com/priyanshu8007b/bitespeed/pkg/database"
	"github.com/priyanshu8007b/bitespeed/pkg/models"
	"github.com/priyanshu8007b/bitespeed/pkg/sentinel"
	"github.com/priyanshu8007b/bitespeed/pkg/tracing"
)

const table = "contacts"

var columns = []string{"id", "email", "phone_number", "linked_id", "link_precedence", "created_at", "updated_at", "deleted_at"}

// Repository persists contacts in postgres. Every method runs on the transaction carried
// by ctx when there is one, so reads and writes of a unit of work share a snapshot.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new Postgres contact repository.
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// WithinTx runs fn in one READ COMMITTED transaction and commits when fn returns nil.
// When ctx already carries a transaction, fn joins it and the outer caller commits.
func (r *Repository) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	ctxTx, tx, err := r.db.GetTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return errors.Wrap(sentinel.ErrUnavailable, err.Error())
	}
	defer tx.Rollback(ctxTx)

	if err := fn(ctxTx); err != nil {
		return err
	}

	if err := tx.Commit(ctxTx); err != nil {
		return r.wrap(err, "failed to commit contact transaction")
	}
	return nil
}

// LockKeys takes transaction scoped advisory locks on the keys in sorted order.
// Concurrent units touching the same email or phone serialize here instead of racing.
func (r *Repository) LockKeys(ctx context.Context, keys []string) error {
	ctx, span := tracing.StartSpan(ctx, "contact.Repository.LockKeys")
	defer span.End()

	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)

	conn := database.Conn(ctx, r.db)
	for _, key := range sorted {
		if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", key); err != nil {
			r.logger.WithContext(ctx).WithError(err).WithField("key", key).Error("Failed to take advisory lock")
			return r.wrap(err, "failed to lock contact key")
		}
	}
	return nil
}

// FindByEmailOrPhone returns live contacts whose email or phone equals the given non-empty values.
func (r *Repository) FindByEmailOrPhone(ctx context.Context, email, phone string) ([]*models.Contact, error) {
	ctx, span := tracing.StartSpan(ctx, "contact.Repository.FindByEmailOrPhone")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)

	var matches []string
	if email != "" {
		matches = append(matches, sb.Equal("email", email))
	}
	if phone != "" {
		matches = append(matches, sb.Equal("phone_number", phone))
	}
	if len(matches) == 0 {
		return nil, nil
	}

	sb.Where(sb.Or(matches...), sb.IsNull("deleted_at"))
	sb.OrderBy("created_at", "id").Asc()

	query, args := sb.Build()
	var contacts []*models.Contact
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &contacts, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to find contacts by email or phone")
		return nil, r.wrap(err, "failed to find contacts by email or phone")
	}
	return contacts, nil
}

// FindByID returns a live contact or sentinel.ErrNotFound.
func (r *Repository) FindByID(ctx context.Context, id int64) (*models.Contact, error) {
	ctx, span := tracing.StartSpan(ctx, "contact.Repository.FindByID")
	defer span.End()

	return r.getByID(ctx, id, false)
}

// LockByID is FindByID with a row lock held until the surrounding transaction ends.
func (r *Repository) LockByID(ctx context.Context, id int64) (*models.Contact, error) {
	ctx, span := tracing.StartSpan(ctx, "contact.Repository.LockByID")
	defer span.End()

	return r.getByID(ctx, id, true)
}

func (r *Repository) getByID(ctx context.Context, id int64, forUpdate bool) (*models.Contact, error) {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(sb.Equal("id", id), sb.IsNull("deleted_at"))
	if forUpdate {
		sb.ForUpdate()
	}

	query, args := sb.Build()
	var contact models.Contact
	if err := database.Conn(ctx, r.db).GetContext(ctx, &contact, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrapf(sentinel.ErrNotFound, "contact %d", id)
		}
		r.logger.WithContext(ctx).WithError(err).WithField("id", id).Error("Failed to get contact")
		return nil, r.wrap(err, "failed to get contact")
	}
	return &contact, nil
}

// FindPrimaryAndSecondariesOf returns the live membership of a cluster: the primary first,
// then its secondaries oldest first.
func (r *Repository) FindPrimaryAndSecondariesOf(ctx context.Context, primaryID int64) ([]*models.Contact, error) {
	ctx, span := tracing.StartSpan(ctx, "contact.Repository.FindPrimaryAndSecondariesOf")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(
		sb.Or(sb.Equal("id", primaryID), sb.Equal("linked_id", primaryID)),
		sb.IsNull("deleted_at"),
	)
	sb.OrderBy("CASE WHEN link_precedence = 'primary' THEN 0 ELSE 1 END", "created_at", "id").Asc()

	query, args := sb.Build()
	var contacts []*models.Contact
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &contacts, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("primary_id", primaryID).Error("Failed to load cluster")
		return nil, r.wrap(err, "failed to load cluster")
	}
	return contacts, nil
}

// Insert stores a new contact and fills in its id and timestamps.
func (r *Repository) Insert(ctx context.Context, contact *models.Contact) (*models.Contact, error) {
	ctx, span := tracing.StartSpan(ctx, "contact.Repository.Insert")
	defer span.End()

	now := time.Now().UTC().Truncate(time.Microsecond)
	if contact.CreatedAt.IsZero() {
		contact.CreatedAt = now
	}
	contact.UpdatedAt = now

	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto(table)
	ib.Cols("email", "phone_number", "linked_id", "link_precedence", "created_at", "updated_at")
	ib.Values(contact.Email, contact.PhoneNumber, contact.LinkedID, contact.LinkPrecedence, contact.CreatedAt, contact.UpdatedAt)
	ib.Returning("id")

	query, args := ib.Build()
	if err := database.Conn(ctx, r.db).QueryRowxContext(ctx, query, args...).Scan(&contact.ID); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to insert contact")
		return nil, r.wrap(err, "failed to insert contact")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"id":              contact.ID,
		"link_precedence": contact.LinkPrecedence,
	}).Debug("Inserted contact")
	return contact, nil
}

// UpdateLinkage sets a contact's precedence and parent.
func (r *Repository) UpdateLinkage(ctx context.Context, id int64, linkedID *int64, precedence models.LinkPrecedence) error {
	ctx, span := tracing.StartSpan(ctx, "contact.Repository.UpdateLinkage")
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update(table)
	ub.Set(
		ub.Assign("linked_id", linkedID),
		ub.Assign("link_precedence", precedence),
		ub.Assign("updated_at", time.Now().UTC()),
	)
	ub.Where(ub.Equal("id", id), ub.IsNull("deleted_at"))

	return r.execOne(ctx, ub, id, "failed to update contact linkage")
}

// RepointSecondaries moves every live secondary of oldPrimaryID under newPrimaryID.
func (r *Repository) RepointSecondaries(ctx context.Context, oldPrimaryID, newPrimaryID int64) error {
	ctx, span := tracing.StartSpan(ctx, "contact.Repository.RepointSecondaries")
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update(table)
	ub.Set(
		ub.Assign("linked_id", newPrimaryID),
		ub.Assign("updated_at", time.Now().UTC()),
	)
	ub.Where(
		ub.Equal("linked_id", oldPrimaryID),
		ub.NotEqual("id", newPrimaryID),
		ub.IsNull("deleted_at"),
	)

	query, args := ub.Build()
	result, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to repoint secondaries")
		return r.wrap(err, "failed to repoint secondaries")
	}

	moved, _ := result.RowsAffected()
	r.logger.WithContext(ctx).WithFields(map[string]any{
		"from":  oldPrimaryID,
		"to":    newPrimaryID,
		"moved": moved,
	}).Debug("Repointed secondaries")
	return nil
}

// SoftDelete marks a live contact deleted.
func (r *Repository) SoftDelete(ctx context.Context, id int64) error {
	ctx, span := tracing.StartSpan(ctx, "contact.Repository.SoftDelete")
	defer span.End()

	now := time.Now().UTC()
	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update(table)
	ub.Set(ub.Assign("deleted_at", now), ub.Assign("updated_at", now))
	ub.Where(ub.Equal("id", id), ub.IsNull("deleted_at"))

	return r.execOne(ctx, ub, id, "failed to soft delete contact")
}

// Ping reports whether postgres is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *Repository) execOne(ctx context.Context, ub *sqlbuilder.UpdateBuilder, id int64, msg string) error {
	query, args := ub.Build()
	result, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("id", id).Error(msg)
		return r.wrap(err, msg)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return errors.Wrapf(sentinel.ErrNotFound, "contact %d", id)
	}
	return nil
}

// wrap tags races lost to a concurrent writer as sentinel.ErrConflict so the caller can retry.
func (r *Repository) wrap(err error, msg string) error {
	if database.IsConflict(err) {
		return errors.Wrapf(sentinel.ErrConflict, "%s: %v", msg, err)
	}
	return errors.Wrap(err, msg)
}
