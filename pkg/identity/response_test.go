package identity

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/priyanshu8007b/bitespeed/pkg/models"
)

func member(id int64, email, phone string, linkedID int64) *models.Contact {
	c := &models.Contact{
		ID:             id,
		Email:          models.StringPtr(email),
		PhoneNumber:    models.StringPtr(phone),
		LinkPrecedence: models.LinkPrecedencePrimary,
	}
	if linkedID != 0 {
		c.LinkedID = &linkedID
		c.LinkPrecedence = models.LinkPrecedenceSecondary
	}
	return c
}

func TestBuildResponse_PrimaryValuesFirstAndDeduplicated(t *testing.T) {
	members := []*models.Contact{
		member(23, "mcfly@hill.valley", "", 1),
		member(1, "lorraine@hill.valley", "123456", 0),
		member(27, "lorraine@hill.valley", "717171", 1),
		member(30, "", "123456", 1),
	}

	resp, err := BuildResponse(members)
	require.NoError(t, err)

	assert.Equal(t, int64(1), resp.Contact.PrimaryContactID)
	assert.Equal(t, []string{"lorraine@hill.valley", "mcfly@hill.valley"}, resp.Contact.Emails)
	assert.Equal(t, []string{"123456", "717171"}, resp.Contact.PhoneNumbers)
	assert.Equal(t, []int64{23, 27, 30}, resp.Contact.SecondaryContactIDs)
}

func TestBuildResponse_SinglePrimaryHasEmptyLists(t *testing.T) {
	resp, err := BuildResponse([]*models.Contact{member(1, "a@x.com", "", 0)})
	require.NoError(t, err)

	body, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{"contact":{"primaryContactId":1,"emails":["a@x.com"],"phoneNumbers":[],"secondaryContactIds":[]}}`, string(body))
}

func TestBuildResponse_IntegrityViolations(t *testing.T) {
	tests := []struct {
		name    string
		members []*models.Contact
	}{
		{"no members", nil},
		{"no primary", []*models.Contact{member(2, "a@x.com", "", 1)}},
		{"two primaries", []*models.Contact{member(1, "a@x.com", "", 0), member(2, "b@x.com", "", 0)}},
		{"chained secondary", []*models.Contact{member(1, "a@x.com", "", 0), member(3, "c@x.com", "", 2)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildResponse(tt.members)
			assert.True(t, errors.Is(err, ErrIntegrityViolation))
		})
	}
}
