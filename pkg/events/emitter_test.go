package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/priyanshu8007b/bitespeed/pkg/models"
)

type published struct {
	key       string
	eventType string
	event     *ClusterEvent
}

type fakePublisher struct {
	sent []published
}

func (f *fakePublisher) Publish(ctx context.Context, key, eventType string, event any) error {
	f.sent = append(f.sent, published{key: key, eventType: eventType, event: event.(*ClusterEvent)})
	return nil
}

var fixed = time.Date(2023, 4, 1, 0, 0, 0, 0, time.UTC)

func newTestEmitter() (*Emitter, *fakePublisher) {
	publisher := &fakePublisher{}
	emitter := NewEmitter(publisher)
	emitter.now = func() time.Time { return fixed }
	return emitter, publisher
}

func TestEmitter_EmitIdentified(t *testing.T) {
	tests := []struct {
		outcome models.IdentifyOutcome
		want    string
	}{
		{models.OutcomeCreated, TypeContactCreated},
		{models.OutcomeLinked, TypeContactLinked},
		{models.OutcomeMerged, TypeContactMerged},
	}

	for _, tt := range tests {
		t.Run(string(tt.outcome), func(t *testing.T) {
			emitter, publisher := newTestEmitter()
			result := &models.IdentifyResult{
				Response: &models.IdentifyResponse{Contact: models.ConsolidatedContact{
					PrimaryContactID:    7,
					Emails:              []string{"a@x.com"},
					PhoneNumbers:        []string{},
					SecondaryContactIDs: []int64{},
				}},
				Outcome:    tt.outcome,
				DemotedIDs: []int64{9},
			}

			require.NoError(t, emitter.EmitIdentified(context.Background(), result))
			require.Len(t, publisher.sent, 1)

			sent := publisher.sent[0]
			assert.Equal(t, "7", sent.key)
			assert.Equal(t, tt.want, sent.eventType)
			assert.Equal(t, tt.want, sent.event.EventType)
			assert.Equal(t, int64(7), sent.event.Contact.PrimaryContactID)
			assert.Equal(t, []int64{9}, sent.event.DemotedIDs)
			assert.Equal(t, fixed, sent.event.Timestamp)
		})
	}
}

func TestEmitter_EmitDeletedSecondary(t *testing.T) {
	emitter, publisher := newTestEmitter()
	parent := int64(1)
	email := "a@x.com"
	deleted := &models.Contact{ID: 4, LinkedID: &parent, LinkPrecedence: models.LinkPrecedenceSecondary}
	survivors := []*models.Contact{{ID: 1, Email: &email, LinkPrecedence: models.LinkPrecedencePrimary}}

	require.NoError(t, emitter.EmitDeleted(context.Background(), deleted, survivors))
	require.Len(t, publisher.sent, 1)

	sent := publisher.sent[0]
	assert.Equal(t, "1", sent.key)
	assert.Equal(t, TypeContactDeleted, sent.eventType)
	assert.Equal(t, int64(4), sent.event.DeletedID)
	assert.Equal(t, int64(1), sent.event.Contact.PrimaryContactID)
	assert.Equal(t, []int64{}, sent.event.Contact.SecondaryContactIDs)
}

func TestEmitter_EmitDeletedLastMember(t *testing.T) {
	emitter, publisher := newTestEmitter()
	deleted := &models.Contact{ID: 5, LinkPrecedence: models.LinkPrecedencePrimary}

	require.NoError(t, emitter.EmitDeleted(context.Background(), deleted, nil))
	assert.Equal(t, "5", publisher.sent[0].key)
	assert.Nil(t, publisher.sent[0].event.Contact)
}
