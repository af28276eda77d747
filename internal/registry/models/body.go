package models

import (
	"strings"
	"time"
	"unicode/utf8"

	"certify/pkg/domain"
	dErrors "certify/pkg/domain-errors"
)

// MaxReasonLength bounds rejection and failure reasons.
const MaxReasonLength = 512

// BodyStatus is the admission state of a certification body.
type BodyStatus string

const (
	BodyStatusPending  BodyStatus = "pending"
	BodyStatusVerified BodyStatus = "verified"
	BodyStatusRejected BodyStatus = "rejected"
)

func (s BodyStatus) IsValid() bool {
	switch s {
	case BodyStatusPending, BodyStatusVerified, BodyStatusRejected:
		return true
	}
	return false
}

func (s BodyStatus) String() string { return string(s) }

// CanTransitionTo reports whether the state machine allows moving to next.
// Only pending bodies move, and both decisions are terminal.
func (s BodyStatus) CanTransitionTo(next BodyStatus) bool {
	return s == BodyStatusPending && (next == BodyStatusVerified || next == BodyStatusRejected)
}

// ParseBodyStatus accepts the lowercase status names.
func ParseBodyStatus(raw string) (BodyStatus, error) {
	s := BodyStatus(strings.ToLower(strings.TrimSpace(raw)))
	if !s.IsValid() {
		return "", dErrors.New(dErrors.CodeValidation, "invalid body status: "+raw)
	}
	return s, nil
}

// AdmissionPath records how a body entered the registry.
type AdmissionPath string

const (
	AdmittedByAuthority AdmissionPath = "authority"
	AdmittedSelfService AdmissionPath = "self_service"
)

// Body is a certification body.
//
// Invariants:
//   - Address is never the zero address and never the Authority
//   - MetadataPointer is never empty
//   - Status only moves pending → verified or pending → rejected
//   - LicensePointer is set exactly when Status is verified
//   - RejectionReason is set exactly when Status is rejected
type Body struct {
	Address         domain.Address   `json:"address"`
	MetadataPointer domain.ContentID `json:"metadata_pointer"`
	Status          BodyStatus       `json:"status"`
	LicensePointer  domain.ContentID `json:"license_pointer,omitempty"`
	RejectionReason string           `json:"rejection_reason,omitempty"`
	AdmittedVia     AdmissionPath    `json:"admitted_via"`
	AdmittedAt      time.Time        `json:"admitted_at"`
	DecidedAt       *time.Time       `json:"decided_at,omitempty"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// NewBody constructs a pending body.
func NewBody(address domain.Address, metadata domain.ContentID, via AdmissionPath, now time.Time) (*Body, error) {
	if address.IsZero() {
		return nil, dErrors.New(dErrors.CodeValidation, "body address must not be zero")
	}
	if metadata.IsEmpty() {
		return nil, dErrors.New(dErrors.CodeValidation, "metadata pointer must not be empty")
	}
	return &Body{
		Address:         address,
		MetadataPointer: metadata,
		Status:          BodyStatusPending,
		AdmittedVia:     via,
		AdmittedAt:      now,
		UpdatedAt:       now,
	}, nil
}

func (b *Body) IsVerified() bool { return b.Status == BodyStatusVerified }

func (b *Body) CanVerify(license domain.ContentID) error {
	if license.IsEmpty() {
		return dErrors.New(dErrors.CodeValidation, "license pointer must not be empty")
	}
	if !b.Status.CanTransitionTo(BodyStatusVerified) {
		return dErrors.New(dErrors.CodeConflict, "body is not pending")
	}
	return nil
}

// ApplyVerification marks the body verified. Call CanVerify first.
func (b *Body) ApplyVerification(license domain.ContentID, now time.Time) {
	b.Status = BodyStatusVerified
	b.LicensePointer = license
	b.DecidedAt = &now
	b.UpdatedAt = now
}

func (b *Body) CanReject(reason string) error {
	if err := ValidateReason(reason, "rejection reason"); err != nil {
		return err
	}
	if !b.Status.CanTransitionTo(BodyStatusRejected) {
		return dErrors.New(dErrors.CodeConflict, "body is not pending")
	}
	return nil
}

// ApplyRejection marks the body rejected. Call CanReject first.
func (b *Body) ApplyRejection(reason string, now time.Time) {
	b.Status = BodyStatusRejected
	b.RejectionReason = strings.TrimSpace(reason)
	b.DecidedAt = &now
	b.UpdatedAt = now
}

// ApplyMetadataUpdate replaces the metadata pointer in any status.
func (b *Body) ApplyMetadataUpdate(pointer domain.ContentID, now time.Time) {
	b.MetadataPointer = pointer
	b.UpdatedAt = now
}

// RemovedBody is the tombstone left by an Authority removal. A removed
// address can never be admitted or registered again.
type RemovedBody struct {
	Address   domain.Address `json:"address"`
	RemovedBy domain.Address `json:"removed_by"`
	RemovedAt time.Time      `json:"removed_at"`
}

// WhitelistEntry allows an address to apply as a body on its own.
type WhitelistEntry struct {
	Address domain.Address `json:"address"`
	AddedBy domain.Address `json:"added_by"`
	AddedAt time.Time      `json:"added_at"`
}

// ValidateReason checks a free-text reason after trimming. The limit counts
// characters, not bytes.
func ValidateReason(reason, field string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return dErrors.New(dErrors.CodeValidation, field+" must not be empty")
	}
	if utf8.RuneCountInString(reason) > MaxReasonLength {
		return dErrors.Newf(dErrors.CodeValidation, "%s must be %d characters or less", field, MaxReasonLength)
	}
	return nil
}
