// Package events turns committed identity changes into Kafka messages.
package events

import (
	"context"
	"strconv"
	"time"

	"github.com/priyanshu8007b/bitespeed/pkg/identity"
	"github.com/priyanshu8007b/bitespeed/pkg/models"
	"github.com/priyanshu8007b/bitespeed/pkg/tracing"
)

const (
	TypeContactCreated = "contact.created"
	TypeContactLinked  = "contact.linked"
	TypeContactMerged  = "contact.merged"
	TypeContactDeleted = "contact.deleted"
)

// Publisher is implemented by *kafka.Producer.
type Publisher interface {
	Publish(ctx context.Context, key, eventType string, event any) error
}

// ClusterEvent describes a cluster after a committed change.
type ClusterEvent struct {
	EventType  string                      `json:"event_type"`
	Contact    *models.ConsolidatedContact `json:"contact,omitempty"`
	DemotedIDs []int64                     `json:"demoted_ids,omitempty"`
	DeletedID  int64                       `json:"deleted_id,omitempty"`
	Timestamp  time.Time                   `json:"timestamp"`
}

// Emitter implements identity.EventEmitter.
type Emitter struct {
	publisher Publisher
	now       func() time.Time
}

// NewEmitter creates an emitter that publishes through publisher.
func NewEmitter(publisher Publisher) *Emitter {
	return &Emitter{
		publisher: publisher,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// EmitIdentified publishes a created, linked or merged event keyed by the primary id.
func (e *Emitter) EmitIdentified(ctx context.Context, result *models.IdentifyResult) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitIdentified")
	defer span.End()

	eventType := TypeContactLinked
	switch result.Outcome {
	case models.OutcomeCreated:
		eventType = TypeContactCreated
	case models.OutcomeMerged:
		eventType = TypeContactMerged
	}

	contact := result.Response.Contact
	event := &ClusterEvent{
		EventType:  eventType,
		Contact:    &contact,
		DemotedIDs: result.DemotedIDs,
		Timestamp:  e.now(),
	}
	return e.publisher.Publish(ctx, key(contact.PrimaryContactID), eventType, event)
}

// EmitDeleted publishes the deletion keyed by the cluster's primary, so it orders after
// every earlier event of that cluster. survivors is the remaining cluster, empty when
// the deleted contact was the last member.
func (e *Emitter) EmitDeleted(ctx context.Context, deleted *models.Contact, survivors []*models.Contact) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitDeleted")
	defer span.End()

	event := &ClusterEvent{
		EventType: TypeContactDeleted,
		DeletedID: deleted.ID,
		Timestamp: e.now(),
	}

	if len(survivors) > 0 {
		response, err := identity.BuildResponse(survivors)
		if err != nil {
			return err
		}
		event.Contact = &response.Contact
	}

	return e.publisher.Publish(ctx, key(deleted.PrimaryID()), TypeContactDeleted, event)
}

func key(id int64) string {
	return strconv.FormatInt(id, 10)
}
