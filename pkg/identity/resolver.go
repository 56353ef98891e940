package identity

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/Gobusters/ectolinq"
	"github.com/Gobusters/ectologger"

	"github.com/priyanshu8007b/bitespeed/pkg/models"
	"github.com/priyanshu8007b/bitespeed/pkg/sentinel"
	"github.com/priyanshu8007b/bitespeed/pkg/tracing"
)

// MergePlan is the resolver's decision for one candidate. It is applied by Executor.
type MergePlan struct {
	// NoMatch means no live contact shares the email or phone; a new primary must be created.
	NoMatch bool

	UltimatePrimaryID int64
	// ClustersToDemote are the other matched primaries, oldest first.
	ClustersToDemote []int64

	NeedsNewSecondary bool
	// NewSecondary carries only the values the merged cluster does not already know.
	NewSecondary *models.Contact
}

// Outcome names what applying the plan does.
func (p *MergePlan) Outcome() models.IdentifyOutcome {
	switch {
	case p.NoMatch:
		return models.OutcomeCreated
	case len(p.ClustersToDemote) > 0:
		return models.OutcomeMerged
	case p.NeedsNewSecondary:
		return models.OutcomeLinked
	default:
		return models.OutcomeUnchanged
	}
}

type Resolver struct {
	store  ContactReader
	logger ectologger.Logger
}

// NewResolver creates a resolver reading from store.
func NewResolver(store ContactReader, logger ectologger.Logger) *Resolver {
	return &Resolver{
		store:  store,
		logger: logger,
	}
}

// Resolve reads the clusters the candidate touches and plans the merge. It must run inside
// the caller's transaction: candidate primaries stay row locked until it ends.
func (r *Resolver) Resolve(ctx context.Context, candidate Candidate) (*MergePlan, error) {
	ctx, span := tracing.StartSpan(ctx, "identity.Resolver.Resolve")
	defer span.End()

	seeds, err := r.store.FindByEmailOrPhone(ctx, candidate.Email, candidate.Phone)
	if err != nil {
		return nil, err
	}
	if len(seeds) == 0 {
		return &MergePlan{NoMatch: true}, nil
	}

	primaries, err := r.lockPrimaries(ctx, seeds)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(primaries, func(i, j int) bool { return primaries[i].OlderThan(primaries[j]) })

	ultimate := primaries[0]
	plan := &MergePlan{
		UltimatePrimaryID: ultimate.ID,
		ClustersToDemote:  ectolinq.Map(primaries[1:], func(p *models.Contact) int64 { return p.ID }),
	}

	var emails, phones []string
	for _, primary := range primaries {
		members, err := r.store.FindPrimaryAndSecondariesOf(ctx, primary.ID)
		if err != nil {
			return nil, err
		}
		for _, member := range members {
			if v := member.EmailValue(); v != "" {
				emails = append(emails, v)
			}
			if v := member.PhoneValue(); v != "" {
				phones = append(phones, v)
			}
		}
	}

	isNewEmail := candidate.Email != "" && !ectolinq.Contains(emails, candidate.Email)
	isNewPhone := candidate.Phone != "" && !ectolinq.Contains(phones, candidate.Phone)
	if isNewEmail || isNewPhone {
		plan.NeedsNewSecondary = true
		plan.NewSecondary = &models.Contact{
			LinkedID:       &plan.UltimatePrimaryID,
			LinkPrecedence: models.LinkPrecedenceSecondary,
		}
		if isNewEmail {
			plan.NewSecondary.Email = models.StringPtr(candidate.Email)
		}
		if isNewPhone {
			plan.NewSecondary.PhoneNumber = models.StringPtr(candidate.Phone)
		}
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"seeds":              len(seeds),
		"ultimate_primary":   plan.UltimatePrimaryID,
		"clusters_to_demote": plan.ClustersToDemote,
		"new_secondary":      plan.NeedsNewSecondary,
	}).Debug("Resolved identity candidate")

	return plan, nil
}

// lockPrimaries row locks the distinct primaries of the seeds in id order. A primary that
// vanished or was demoted since the seeds were read lost a race to another writer.
func (r *Resolver) lockPrimaries(ctx context.Context, seeds []*models.Contact) ([]*models.Contact, error) {
	var ids []int64
	for _, seed := range seeds {
		if id := seed.PrimaryID(); !ectolinq.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	primaries := make([]*models.Contact, 0, len(ids))
	for _, id := range ids {
		primary, err := r.store.LockByID(ctx, id)
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, fmt.Errorf("%w: primary %d is gone", ErrConflict, id)
		}
		if err != nil {
			return nil, err
		}
		if !primary.IsPrimary() {
			return nil, fmt.Errorf("%w: contact %d is no longer primary", ErrConflict, id)
		}
		primaries = append(primaries, primary)
	}
	return primaries, nil
}
