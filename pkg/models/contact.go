package models

import (
	"time"
)

// LinkPrecedence marks a contact as the canonical record of its cluster or a member of another's.
type LinkPrecedence string

const (
	LinkPrecedencePrimary   LinkPrecedence = "primary"
	LinkPrecedenceSecondary LinkPrecedence = "secondary"
)

// Contact is one stored (email, phone) observation.
type Contact struct {
	ID             int64          `json:"id" db:"id"`
	Email          *string        `json:"email,omitempty" db:"email"`
	PhoneNumber    *string        `json:"phoneNumber,omitempty" db:"phone_number"`
	LinkedID       *int64         `json:"linkedId,omitempty" db:"linked_id"`
	LinkPrecedence LinkPrecedence `json:"linkPrecedence" db:"link_precedence"`
	CreatedAt      time.Time      `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time      `json:"updatedAt" db:"updated_at"`
	DeletedAt      *time.Time     `json:"deletedAt,omitempty" db:"deleted_at"`
}

// IsPrimary reports whether the contact anchors its cluster.
func (c *Contact) IsPrimary() bool {
	return c.LinkPrecedence == LinkPrecedencePrimary
}

// IsDeleted reports whether the contact has been soft deleted.
func (c *Contact) IsDeleted() bool {
	return c.DeletedAt != nil
}

// PrimaryID is the id of the cluster's primary: the contact itself or the one it links to.
func (c *Contact) PrimaryID() int64 {
	if c.IsPrimary() || c.LinkedID == nil {
		return c.ID
	}
	return *c.LinkedID
}

// OlderThan orders contacts by creation time, breaking ties by ascending id.
func (c *Contact) OlderThan(other *Contact) bool {
	if !c.CreatedAt.Equal(other.CreatedAt) {
		return c.CreatedAt.Before(other.CreatedAt)
	}
	return c.ID < other.ID
}

// EmailValue returns the email or "" when absent.
func (c *Contact) EmailValue() string {
	if c.Email == nil {
		return ""
	}
	return *c.Email
}

// PhoneValue returns the phone number or "" when absent.
func (c *Contact) PhoneValue() string {
	if c.PhoneNumber == nil {
		return ""
	}
	return *c.PhoneNumber
}

// StringPtr returns nil for "" so empty values are stored as NULL.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
