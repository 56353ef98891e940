package models

// IdentifyResponse is the body returned by POST /identify and the contact lookup routes.
type IdentifyResponse struct {
	Contact ConsolidatedContact `json:"contact"`
}

// ConsolidatedContact is the public view of a cluster.
type ConsolidatedContact struct {
	PrimaryContactID    int64    `json:"primaryContactId"`
	Emails              []string `json:"emails"`
	PhoneNumbers        []string `json:"phoneNumbers"`
	SecondaryContactIDs []int64  `json:"secondaryContactIds"`
}

// IdentifyOutcome describes what a reconciliation did to the stored graph.
type IdentifyOutcome string

const (
	OutcomeCreated   IdentifyOutcome = "created"   // no match, a new primary was inserted
	OutcomeLinked    IdentifyOutcome = "linked"    // a secondary was added to one existing cluster
	OutcomeMerged    IdentifyOutcome = "merged"    // two or more clusters collapsed into one
	OutcomeUnchanged IdentifyOutcome = "unchanged" // everything submitted was already known
)

// IdentifyResult is what the service returns to the HTTP boundary and fans out after commit.
type IdentifyResult struct {
	Response   *IdentifyResponse
	Outcome    IdentifyOutcome
	DemotedIDs []int64
	Members    []*Contact
}
