package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/priyanshu8007b/bitespeed/pkg/metrics"
	"github.com/priyanshu8007b/bitespeed/pkg/models"
	"github.com/priyanshu8007b/bitespeed/pkg/normalizers"
	"github.com/priyanshu8007b/bitespeed/pkg/sentinel"
	"github.com/priyanshu8007b/bitespeed/pkg/tracing"
)

const defaultMaxConflictRetries = 1

// Service owns the transaction boundary of every identity operation.
type Service struct {
	store      ContactStore
	resolver   *Resolver
	executor   *Executor
	logger     ectologger.Logger
	emailNorm  normalizers.Chain
	phoneNorm  normalizers.Chain
	maxRetries int
	locker     Locker
	emitter    EventEmitter
	projector  ClusterProjector
}

type Option func(*Service)

// WithNormalizers sets the chains applied to submitted emails and phones.
func WithNormalizers(email, phone normalizers.Chain) Option {
	return func(s *Service) {
		s.emailNorm = email
		s.phoneNorm = phone
	}
}

// WithMaxConflictRetries sets how many times a unit that lost a race is re-run.
func WithMaxConflictRetries(n int) Option {
	return func(s *Service) {
		s.maxRetries = n
	}
}

// WithLocker serializes identify calls on the same email or phone across instances.
func WithLocker(locker Locker) Option {
	return func(s *Service) {
		s.locker = locker
	}
}

// WithEventEmitter publishes committed identity changes.
func WithEventEmitter(emitter EventEmitter) Option {
	return func(s *Service) {
		s.emitter = emitter
	}
}

// WithClusterProjector mirrors committed clusters into a graph store.
func WithClusterProjector(projector ClusterProjector) Option {
	return func(s *Service) {
		s.projector = projector
	}
}

// NewService creates an identity service over store. Submitted values are matched
// exactly unless WithNormalizers is given.
func NewService(store ContactStore, logger ectologger.Logger, opts ...Option) *Service {
	s := &Service{
		store:      store,
		resolver:   NewResolver(store, logger),
		executor:   NewExecutor(store, logger),
		logger:     logger,
		maxRetries: defaultMaxConflictRetries,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Identify reconciles one (email, phone) submission with the stored contacts and returns
// the consolidated view of the resulting cluster.
func (s *Service) Identify(ctx context.Context, candidate Candidate) (*models.IdentifyResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "identity.Service.Identify")
	defer span.End()

	start := time.Now()
	candidate = candidate.normalize(s.emailNorm, s.phoneNorm)
	if candidate.IsEmpty() {
		metrics.RecordIdentify("invalid", time.Since(start))
		return nil, ErrValidation
	}

	if s.locker != nil {
		release, err := s.locker.Acquire(ctx, candidate.LockKeys())
		if err != nil {
			s.logger.WithContext(ctx).WithError(err).Error("Failed to acquire identity lock")
			metrics.RecordIdentify("error", time.Since(start))
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		// a caller that went away must not leave the keys held until the TTL runs out
		defer release(context.WithoutCancel(ctx))
	}

	var result *models.IdentifyResult
	err := s.withRetry(ctx, "identify", func(ctx context.Context) error {
		var err error
		result, err = s.identifyOnce(ctx, candidate)
		return err
	})
	if err != nil {
		metrics.RecordIdentify(errorLabel(err), time.Since(start))
		return nil, err
	}

	metrics.RecordDemotions(len(result.DemotedIDs))
	s.publishIdentified(ctx, result)
	metrics.RecordIdentify(string(result.Outcome), time.Since(start))

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"outcome":    result.Outcome,
		"primary_id": result.Response.Contact.PrimaryContactID,
		"demoted":    result.DemotedIDs,
	}).Info("Identified contact")

	return result.Response, nil
}

func (s *Service) identifyOnce(ctx context.Context, candidate Candidate) (*models.IdentifyResult, error) {
	var result *models.IdentifyResult
	err := s.store.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.store.LockKeys(ctx, candidate.LockKeys()); err != nil {
			return err
		}

		plan, err := s.resolver.Resolve(ctx, candidate)
		if err != nil {
			return err
		}

		if plan.NoMatch {
			primary, err := s.executor.CreatePrimary(ctx, candidate)
			if err != nil {
				return err
			}
			members := []*models.Contact{primary}
			response, err := BuildResponse(members)
			if err != nil {
				return err
			}
			result = &models.IdentifyResult{Response: response, Outcome: models.OutcomeCreated, Members: members}
			return nil
		}

		if _, err := s.executor.Apply(ctx, plan); err != nil {
			return err
		}

		members, err := s.store.FindPrimaryAndSecondariesOf(ctx, plan.UltimatePrimaryID)
		if err != nil {
			return err
		}
		response, err := BuildResponse(members)
		if err != nil {
			return err
		}

		result = &models.IdentifyResult{
			Response:   response,
			Outcome:    plan.Outcome(),
			DemotedIDs: plan.ClustersToDemote,
			Members:    members,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// GetCluster returns the consolidated view of the cluster holding contactID.
func (s *Service) GetCluster(ctx context.Context, contactID int64) (*models.IdentifyResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "identity.Service.GetCluster")
	defer span.End()

	var response *models.IdentifyResponse
	err := s.store.WithinTx(ctx, func(ctx context.Context) error {
		contact, err := s.store.FindByID(ctx, contactID)
		if err != nil {
			return err
		}

		members, err := s.store.FindPrimaryAndSecondariesOf(ctx, contact.PrimaryID())
		if err != nil {
			return err
		}

		response, err = BuildResponse(members)
		return err
	})
	if err != nil {
		return nil, s.fail(ctx, "get cluster", classify(err))
	}
	return response, nil
}

// DeleteContact soft deletes a contact. A secondary, or a primary with no live
// secondaries, only gets deleted_at set. A primary that still anchors secondaries is
// refused with ErrHasSecondaries; its secondaries have to be deleted first.
func (s *Service) DeleteContact(ctx context.Context, contactID int64) error {
	ctx, span := tracing.StartSpan(ctx, "identity.Service.DeleteContact")
	defer span.End()

	var (
		deleted   *models.Contact
		survivors []*models.Contact
	)
	err := s.withRetry(ctx, "delete", func(ctx context.Context) error {
		return s.store.WithinTx(ctx, func(ctx context.Context) error {
			contact, err := s.store.FindByID(ctx, contactID)
			if err != nil {
				return err
			}

			primaryID := contact.PrimaryID()
			primary, err := s.store.LockByID(ctx, primaryID)
			if errors.Is(err, sentinel.ErrNotFound) {
				return fmt.Errorf("%w: primary %d is gone", ErrConflict, primaryID)
			}
			if err != nil {
				return err
			}
			if !primary.IsPrimary() {
				return fmt.Errorf("%w: contact %d is no longer primary", ErrConflict, primaryID)
			}

			members, err := s.store.FindPrimaryAndSecondariesOf(ctx, primaryID)
			if err != nil {
				return err
			}
			if contact.IsPrimary() && len(members) > 1 {
				return fmt.Errorf("%w: contact %d has %d", ErrHasSecondaries, contact.ID, len(members)-1)
			}

			if err := s.store.SoftDelete(ctx, contact.ID); err != nil {
				return err
			}
			deleted = contact

			survivors = nil
			if contact.IsPrimary() {
				return nil
			}
			survivors, err = s.store.FindPrimaryAndSecondariesOf(ctx, primaryID)
			return err
		})
	})
	if err != nil {
		return err
	}

	metrics.RecordDeletion(string(deleted.LinkPrecedence))
	s.logger.WithContext(ctx).WithFields(map[string]any{
		"id":              contactID,
		"link_precedence": deleted.LinkPrecedence,
		"survivors":       len(survivors),
	}).Info("Deleted contact")

	s.publishDeleted(ctx, deleted, survivors)
	return nil
}

// withRetry runs fn and re-runs it while it loses races, up to maxRetries extra times.
func (s *Service) withRetry(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !isConflict(err) {
			return s.fail(ctx, operation, classify(err))
		}

		metrics.RecordConflict(operation)
		if attempt >= s.maxRetries {
			return s.fail(ctx, operation, classify(err))
		}
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"operation": operation,
			"attempt":   attempt + 1,
		}).Warn("Concurrent update detected, retrying")
	}
}

func (s *Service) fail(ctx context.Context, operation string, err error) error {
	log := s.logger.WithContext(ctx).WithError(err).WithField("operation", operation)
	switch {
	case errors.Is(err, ErrIntegrityViolation):
		log.Error("Contact cluster failed integrity check")
	case errors.Is(err, ErrConflict):
		log.Warn("Concurrent update persisted after retry")
	case errors.Is(err, sentinel.ErrNotFound), errors.Is(err, ErrValidation):
		log.Debug("Identity request rejected")
	default:
		log.Error("Identity operation failed")
	}
	return err
}

func (s *Service) publishIdentified(ctx context.Context, result *models.IdentifyResult) {
	if result.Outcome == models.OutcomeUnchanged {
		return
	}
	if s.emitter != nil {
		if err := s.emitter.EmitIdentified(ctx, result); err != nil {
			metrics.RecordFanoutFailure("kafka")
			s.logger.WithContext(ctx).WithError(err).Warn("Failed to publish identity event")
		}
	}
	if s.projector != nil {
		if err := s.projector.ProjectCluster(ctx, result.Members); err != nil {
			metrics.RecordFanoutFailure("graph")
			s.logger.WithContext(ctx).WithError(err).Warn("Failed to project cluster to graph")
		}
	}
}

func (s *Service) publishDeleted(ctx context.Context, deleted *models.Contact, survivors []*models.Contact) {
	if s.emitter != nil {
		if err := s.emitter.EmitDeleted(ctx, deleted, survivors); err != nil {
			metrics.RecordFanoutFailure("kafka")
			s.logger.WithContext(ctx).WithError(err).Warn("Failed to publish deletion event")
		}
	}
	if s.projector != nil {
		if err := s.projector.RemoveContact(ctx, deleted.ID); err != nil {
			metrics.RecordFanoutFailure("graph")
			s.logger.WithContext(ctx).WithError(err).Warn("Failed to remove contact from graph")
			return
		}
		if len(survivors) > 0 {
			if err := s.projector.ProjectCluster(ctx, survivors); err != nil {
				metrics.RecordFanoutFailure("graph")
				s.logger.WithContext(ctx).WithError(err).Warn("Failed to project cluster to graph")
			}
		}
	}
}

func errorLabel(err error) string {
	switch {
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrIntegrityViolation):
		return "integrity_violation"
	default:
		return "error"
	}
}
