package models

import (
	"strings"
	"time"

	"certify/pkg/domain"
	dErrors "certify/pkg/domain-errors"
)

// CancelReason is the failure reason recorded when a participant withdraws.
const CancelReason = "cancelled by participant"

// MaxScore is the upper bound for each assessment component.
const MaxScore = 100

// Scores holds the three assessment components.
type Scores struct {
	Written   int `json:"written"`
	Practical int `json:"practical"`
	Interview int `json:"interview"`
}

func (s Scores) Validate() error {
	for _, v := range []struct {
		name  string
		value int
	}{{"written", s.Written}, {"practical", s.Practical}, {"interview", s.Interview}} {
		if v.value < 0 || v.value > MaxScore {
			return dErrors.Newf(dErrors.CodeValidation, "%s score must be between 0 and %d", v.name, MaxScore)
		}
	}
	return nil
}

// CaseStatus is derived from the stored flags; it is not persisted.
type CaseStatus string

const (
	CaseStatusSubmitted CaseStatus = "submitted"
	CaseStatusPassed    CaseStatus = "passed"
	CaseStatusFailed    CaseStatus = "failed"
	CaseStatusCancelled CaseStatus = "cancelled"
)

// Case is one attempt by a participant at a scheme.
//
// Invariants:
//   - ID is unique and never reused
//   - Active cases have no outcome fields set
//   - Once inactive the case is immutable except for attaching a certificate
//     pointer to a passed case that has none
type Case struct {
	ID                    domain.CaseID    `json:"id"`
	Participant           domain.Address   `json:"participant"`
	Scheme                domain.Scheme    `json:"scheme"`
	SubmittedAt           time.Time        `json:"submitted_at"`
	CompletedAt           *time.Time       `json:"completed_at,omitempty"`
	GradedBy              *domain.Address  `json:"graded_by,omitempty"`
	Scores                *Scores          `json:"scores,omitempty"`
	Passed                *bool            `json:"passed,omitempty"`
	Active                bool             `json:"active"`
	CertificatePointer    domain.ContentID `json:"certificate_pointer,omitempty"`
	FailureReason         string           `json:"failure_reason,omitempty"`
	CertificateAttachedAt *time.Time       `json:"certificate_attached_at,omitempty"`
}

func NewCase(id domain.CaseID, participant domain.Address, scheme domain.Scheme, now time.Time) (*Case, error) {
	if id.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "case id must not be nil")
	}
	if !scheme.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "unknown scheme")
	}
	return &Case{
		ID:          id,
		Participant: participant,
		Scheme:      scheme,
		SubmittedAt: now,
		Active:      true,
	}, nil
}

func (c *Case) Status() CaseStatus {
	switch {
	case c.Active:
		return CaseStatusSubmitted
	case c.Passed != nil && *c.Passed:
		return CaseStatusPassed
	case c.FailureReason == CancelReason && c.GradedBy == nil:
		return CaseStatusCancelled
	default:
		return CaseStatusFailed
	}
}

func (c *Case) IsPassed() bool { return c.Status() == CaseStatusPassed }

func (c *Case) canComplete() error {
	if !c.Active {
		return dErrors.New(dErrors.CodeConflict, "case not active")
	}
	return nil
}

func (c *Case) CanPass(scores Scores) error {
	if err := scores.Validate(); err != nil {
		return err
	}
	return c.canComplete()
}

// ApplyPass records a passing grade. An empty pointer leaves the certificate
// to be attached later.
func (c *Case) ApplyPass(grader domain.Address, scores Scores, pointer domain.ContentID, now time.Time) {
	passed := true
	c.Scores = &scores
	c.Passed = &passed
	c.GradedBy = &grader
	c.CompletedAt = &now
	c.Active = false
	if !pointer.IsEmpty() {
		c.CertificatePointer = pointer
		c.CertificateAttachedAt = &now
	}
}

// CanFail checks the reason and, when given, the scores of a failing grade.
func (c *Case) CanFail(reason string, scores *Scores) error {
	if err := ValidateReason(reason, "failure reason"); err != nil {
		return err
	}
	if scores != nil {
		if err := scores.Validate(); err != nil {
			return err
		}
	}
	return c.canComplete()
}

// ApplyFail records a failing grade. Scores are optional.
func (c *Case) ApplyFail(grader domain.Address, reason string, scores *Scores, now time.Time) {
	passed := false
	c.Passed = &passed
	c.GradedBy = &grader
	c.FailureReason = strings.TrimSpace(reason)
	if scores != nil {
		recorded := *scores
		c.Scores = &recorded
	}
	c.CompletedAt = &now
	c.Active = false
}

func (c *Case) CanCancel() error {
	return c.canComplete()
}

func (c *Case) ApplyCancel(now time.Time) {
	passed := false
	c.Passed = &passed
	c.FailureReason = CancelReason
	c.CompletedAt = &now
	c.Active = false
}

// CanAttachCertificate enforces that only the grading body attaches a pointer,
// once, to a passed case.
func (c *Case) CanAttachCertificate(caller domain.Address, pointer domain.ContentID) error {
	if pointer.IsEmpty() {
		return dErrors.New(dErrors.CodeValidation, "certificate pointer must not be empty")
	}
	if !c.IsPassed() {
		return dErrors.New(dErrors.CodeConflict, "case has not passed")
	}
	if c.GradedBy == nil || *c.GradedBy != caller {
		return dErrors.New(dErrors.CodeForbidden, "only the grading body may attach a certificate")
	}
	if !c.CertificatePointer.IsEmpty() {
		return dErrors.New(dErrors.CodeConflict, "certificate already attached")
	}
	return nil
}

func (c *Case) ApplyCertificate(pointer domain.ContentID, now time.Time) {
	c.CertificatePointer = pointer
	c.CertificateAttachedAt = &now
}

// CertificateIndex binds a certificate pointer to the case it certifies.
type CertificateIndex struct {
	Pointer domain.ContentID `json:"pointer"`
	CaseID  domain.CaseID    `json:"case_id"`
}

// CaseVerification is the public view used by outside verifiers.
type CaseVerification struct {
	Exists             bool             `json:"exists"`
	CaseID             domain.CaseID    `json:"case_id"`
	Passed             bool             `json:"passed"`
	Active             bool             `json:"active"`
	Status             CaseStatus       `json:"status,omitempty"`
	Participant        *domain.Address  `json:"participant,omitempty"`
	Scheme             domain.Scheme    `json:"scheme,omitempty"`
	SchemeName         string           `json:"scheme_name,omitempty"`
	CertificatePointer domain.ContentID `json:"certificate_pointer,omitempty"`
	GradedBy           *domain.Address  `json:"graded_by,omitempty"`
	Scores             *Scores          `json:"scores,omitempty"`
	CompletedAt        *time.Time       `json:"completed_at,omitempty"`
}

// CaseFilter narrows case listings.
type CaseFilter struct {
	Participant *domain.Address
	ActiveOnly  bool
}

// SchemeInfo describes one catalog entry.
type SchemeInfo struct {
	Code  domain.Scheme `json:"code"`
	Name  string        `json:"name"`
	Index int           `json:"index"`
}

// SchemeCatalog lists the fixed schemes in canonical order.
func SchemeCatalog() []SchemeInfo {
	out := make([]SchemeInfo, len(domain.Schemes))
	for i, s := range domain.Schemes {
		out[i] = SchemeInfo{Code: s, Name: s.Name(), Index: i}
	}
	return out
}
