package identity

import (
	"context"

	"github.com/Gobusters/ectologger"

	"github.com/priyanshu8007b/bitespeed/pkg/models"
	"github.com/priyanshu8007b/bitespeed/pkg/tracing"
)

// Executor writes a MergePlan. It runs inside the caller's transaction and stops at the
// first failure so the caller can roll the whole unit back.
type Executor struct {
	store  ContactWriter
	logger ectologger.Logger
}

// NewExecutor creates an executor writing to store.
func NewExecutor(store ContactWriter, logger ectologger.Logger) *Executor {
	return &Executor{
		store:  store,
		logger: logger,
	}
}

// Apply demotes the younger primaries under the ultimate one, flattens their secondaries
// and inserts the new secondary when the plan asks for it.
func (e *Executor) Apply(ctx context.Context, plan *MergePlan) (*models.Contact, error) {
	ctx, span := tracing.StartSpan(ctx, "identity.Executor.Apply")
	defer span.End()

	ultimate := plan.UltimatePrimaryID
	for _, demoted := range plan.ClustersToDemote {
		if demoted == ultimate {
			continue
		}
		if err := e.store.UpdateLinkage(ctx, demoted, &ultimate, models.LinkPrecedenceSecondary); err != nil {
			return nil, err
		}
		if err := e.store.RepointSecondaries(ctx, demoted, ultimate); err != nil {
			return nil, err
		}
		e.logger.WithContext(ctx).WithFields(map[string]any{
			"demoted": demoted,
			"primary": ultimate,
		}).Info("Demoted primary contact")
	}

	if !plan.NeedsNewSecondary || plan.NewSecondary == nil {
		return nil, nil
	}

	secondary, err := e.store.Insert(ctx, plan.NewSecondary)
	if err != nil {
		return nil, err
	}
	e.logger.WithContext(ctx).WithFields(map[string]any{
		"id":      secondary.ID,
		"primary": ultimate,
	}).Info("Linked new secondary contact")
	return secondary, nil
}

// CreatePrimary stores the candidate as the first contact of a new cluster.
func (e *Executor) CreatePrimary(ctx context.Context, candidate Candidate) (*models.Contact, error) {
	ctx, span := tracing.StartSpan(ctx, "identity.Executor.CreatePrimary")
	defer span.End()

	primary, err := e.store.Insert(ctx, &models.Contact{
		Email:          models.StringPtr(candidate.Email),
		PhoneNumber:    models.StringPtr(candidate.Phone),
		LinkPrecedence: models.LinkPrecedencePrimary,
	})
	if err != nil {
		return nil, err
	}

	e.logger.WithContext(ctx).WithField("id", primary.ID).Info("Created primary contact")
	return primary, nil
}
