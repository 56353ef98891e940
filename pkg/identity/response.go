package identity

import (
	"fmt"

	"github.com/Gobusters/ectolinq"

	"github.com/priyanshu8007b/bitespeed/pkg/models"
)

// BuildResponse projects a cluster's live membership, in membership order, onto the public view.
// The primary's own email and phone come first; every list is deduplicated.
func BuildResponse(members []*models.Contact) (*models.IdentifyResponse, error) {
	primaries := ectolinq.Filter(members, func(c *models.Contact) bool { return c.IsPrimary() })
	if len(primaries) != 1 {
		return nil, fmt.Errorf("%w: cluster has %d primaries", ErrIntegrityViolation, len(primaries))
	}
	primary := primaries[0]
	secondaries := ectolinq.Filter(members, func(c *models.Contact) bool { return !c.IsPrimary() })

	ordered := append([]*models.Contact{primary}, secondaries...)

	contact := models.ConsolidatedContact{
		PrimaryContactID:    primary.ID,
		Emails:              distinct(ordered, (*models.Contact).EmailValue),
		PhoneNumbers:        distinct(ordered, (*models.Contact).PhoneValue),
		SecondaryContactIDs: make([]int64, 0, len(secondaries)),
	}
	for _, secondary := range secondaries {
		if secondary.LinkedID == nil || *secondary.LinkedID != primary.ID {
			return nil, fmt.Errorf("%w: contact %d is not linked to primary %d", ErrIntegrityViolation, secondary.ID, primary.ID)
		}
		contact.SecondaryContactIDs = append(contact.SecondaryContactIDs, secondary.ID)
	}

	return &models.IdentifyResponse{Contact: contact}, nil
}

func distinct(members []*models.Contact, value func(*models.Contact) string) []string {
	out := []string{}
	for _, member := range members {
		if v := value(member); v != "" && !ectolinq.Contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}
