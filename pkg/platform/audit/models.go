// Package audit defines the registry's tamper-evident event log entries.
//
// Every committed registry mutation appends exactly one Event to the ledger in
// the same transaction as the state change. Events are numbered by Seq and
// hash-chained: each ChainHash covers the event body and the previous
// ChainHash, so altering or dropping any entry breaks every later link.
package audit

import (
	"time"
)

// EventCategory classifies audit events for routing downstream.
type EventCategory string

const (
	// CategoryGovernance covers Authority decisions over who may act.
	CategoryGovernance EventCategory = "governance"
	// CategoryCertification covers case lifecycle and certificate issuance.
	CategoryCertification EventCategory = "certification"
	// CategoryRegistration covers self-service profile changes.
	CategoryRegistration EventCategory = "registration"
)

// Operation names a registry mutation.
type Operation string

const (
	OpAuthorityEstablished Operation = "authority_established"

	OpBodyAdmitted        Operation = "body_admitted"
	OpBodyWhitelisted     Operation = "body_whitelisted"
	OpBodyVerified        Operation = "body_verified"
	OpBodyRejected        Operation = "body_rejected"
	OpBodyRemoved         Operation = "body_removed"
	OpBodyMetadataUpdated Operation = "body_metadata_updated"

	OpParticipantRegistered      Operation = "participant_registered"
	OpParticipantMetadataUpdated Operation = "participant_metadata_updated"
	OpParticipantDeactivated     Operation = "participant_deactivated"

	OpCaseSubmitted       Operation = "case_submitted"
	OpCasePassed          Operation = "case_passed"
	OpCaseFailed          Operation = "case_failed"
	OpCaseCancelled       Operation = "case_cancelled"
	OpCertificateAttached Operation = "certificate_attached"
)

var operationCategories = map[Operation]EventCategory{
	OpAuthorityEstablished:   CategoryGovernance,
	OpBodyAdmitted:           CategoryGovernance,
	OpBodyWhitelisted:        CategoryGovernance,
	OpBodyVerified:           CategoryGovernance,
	OpBodyRejected:           CategoryGovernance,
	OpBodyRemoved:            CategoryGovernance,
	OpParticipantDeactivated: CategoryGovernance,

	OpBodyMetadataUpdated:        CategoryRegistration,
	OpParticipantRegistered:      CategoryRegistration,
	OpParticipantMetadataUpdated: CategoryRegistration,

	OpCaseSubmitted:       CategoryCertification,
	OpCasePassed:          CategoryCertification,
	OpCaseFailed:          CategoryCertification,
	OpCaseCancelled:       CategoryCertification,
	OpCertificateAttached: CategoryCertification,
}

// Category returns the category for the operation. Unknown operations are
// treated as registration events.
func (o Operation) Category() EventCategory {
	if c, ok := operationCategories[o]; ok {
		return c
	}
	return CategoryRegistration
}

// IsKnown reports whether o is one of the registry operations.
func (o Operation) IsKnown() bool {
	_, ok := operationCategories[o]
	return ok
}

// Event is one entry in the ordered audit log.
type Event struct {
	Seq            uint64    `json:"seq"`
	Actor          string    `json:"actor"`
	Operation      Operation `json:"operation"`
	AffectedID     string    `json:"affected_id"`
	Timestamp      time.Time `json:"timestamp"`
	PayloadSummary string    `json:"payload_summary,omitempty"`
	RequestID      string    `json:"request_id,omitempty"`
	PrevHash       string    `json:"prev_hash"`
	ChainHash      string    `json:"chain_hash"`
}

// Head identifies the latest event in a log. The zero Head is an empty log.
type Head struct {
	Seq  uint64
	Hash string
}

// Filter selects events from the log. Zero values mean "no constraint".
type Filter struct {
	AfterSeq   uint64
	Limit      int
	Operations []Operation
	AffectedID string
}

// Matches reports whether e passes the non-positional parts of the filter.
func (f Filter) Matches(e Event) bool {
	if e.Seq <= f.AfterSeq {
		return false
	}
	if f.AffectedID != "" && e.AffectedID != f.AffectedID {
		return false
	}
	if len(f.Operations) == 0 {
		return true
	}
	for _, op := range f.Operations {
		if op == e.Operation {
			return true
		}
	}
	return false
}
