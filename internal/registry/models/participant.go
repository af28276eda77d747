package models

import (
	"time"

	"certify/pkg/domain"
	dErrors "certify/pkg/domain-errors"
)

// Participant is an individual who submits certification cases.
//
// Invariants:
//   - Registered is set at construction and never reverts
//   - ActiveCaseID is non-nil for at most one case at a time
//   - Deactivation clears Active but keeps case history
type Participant struct {
	Address         domain.Address   `json:"address"`
	MetadataPointer domain.ContentID `json:"metadata_pointer"`
	Registered      bool             `json:"registered"`
	Active          bool             `json:"active"`
	RegisteredAt    time.Time        `json:"registered_at"`
	ActiveCaseID    *domain.CaseID   `json:"active_case_id,omitempty"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

func NewParticipant(address domain.Address, metadata domain.ContentID, now time.Time) (*Participant, error) {
	if address.IsZero() {
		return nil, dErrors.New(dErrors.CodeValidation, "participant address must not be zero")
	}
	if metadata.IsEmpty() {
		return nil, dErrors.New(dErrors.CodeValidation, "metadata pointer must not be empty")
	}
	return &Participant{
		Address:         address,
		MetadataPointer: metadata,
		Registered:      true,
		Active:          true,
		RegisteredAt:    now,
		UpdatedAt:       now,
	}, nil
}

func (p *Participant) HasActiveCase() bool { return p.ActiveCaseID != nil }

// CanSubmitCase checks that the participant may open a new case.
func (p *Participant) CanSubmitCase() error {
	if !p.Active {
		return dErrors.New(dErrors.CodeForbidden, "participant is not active")
	}
	if p.HasActiveCase() {
		return dErrors.New(dErrors.CodeConflict, "active case exists")
	}
	return nil
}

// ApplyCaseOpened records the new active case. Call CanSubmitCase first.
func (p *Participant) ApplyCaseOpened(id domain.CaseID, now time.Time) {
	p.ActiveCaseID = &id
	p.UpdatedAt = now
}

// ApplyCaseClosed clears the active case pointer.
func (p *Participant) ApplyCaseClosed(now time.Time) {
	p.ActiveCaseID = nil
	p.UpdatedAt = now
}

func (p *Participant) CanDeactivate() error {
	if !p.Active {
		return dErrors.New(dErrors.CodeConflict, "participant is already inactive")
	}
	return nil
}

func (p *Participant) ApplyDeactivation(now time.Time) {
	p.Active = false
	p.UpdatedAt = now
}

func (p *Participant) ApplyMetadataUpdate(pointer domain.ContentID, now time.Time) {
	p.MetadataPointer = pointer
	p.UpdatedAt = now
}

// ParticipantHistory lists a participant's case ids in submission order.
type ParticipantHistory struct {
	Address domain.Address  `json:"address"`
	CaseIDs []domain.CaseID `json:"case_ids"`
}

// ParticipantStatus is the summary returned by status queries.
type ParticipantStatus struct {
	Address       domain.Address `json:"address"`
	Registered    bool           `json:"registered"`
	Active        bool           `json:"active"`
	HasActiveCase bool           `json:"has_active_case"`
	ActiveCaseID  *domain.CaseID `json:"active_case_id,omitempty"`
	TotalCases    int            `json:"total_cases"`
}
