package service

import (
	"context"
	"errors"
	"fmt"

	"certify/internal/registry/models"
	"certify/internal/registry/store"
	"certify/pkg/domain"
	dErrors "certify/pkg/domain-errors"
	"certify/pkg/platform/audit"
	"certify/pkg/platform/sentinel"
	"certify/pkg/requestcontext"
)

// SubmitCase opens a case for the caller against scheme.
func (s *Service) SubmitCase(ctx context.Context, caller domain.Address, scheme domain.Scheme) (*models.Case, error) {
	if !scheme.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "unknown scheme")
	}
	var result *models.Case
	err := s.submit(ctx, "submit_case", caller, func(ctx context.Context, tx *txn) error {
		p, err := requireParticipant(ctx, tx.Reader, caller)
		if err != nil {
			return err
		}
		if err := p.CanSubmitCase(); err != nil {
			return err
		}

		id := s.newCaseID(ctx)
		found, err := store.Exists(func() error { _, err := tx.Case(ctx, id); return err }())
		if err != nil {
			return err
		}
		if found {
			return dErrors.New(dErrors.CodeConflict, "case id already in use")
		}

		now := requestcontext.Now(ctx)
		c, err := models.NewCase(id, caller, scheme, now)
		if err != nil {
			return err
		}
		if err := tx.PutCase(ctx, c); err != nil {
			return err
		}
		p.ApplyCaseOpened(id, now)
		if err := tx.PutParticipant(ctx, p); err != nil {
			return err
		}
		h, err := tx.History(ctx, caller)
		if err != nil {
			return err
		}
		h.CaseIDs = append(h.CaseIDs, id)
		if err := tx.PutHistory(ctx, h); err != nil {
			return err
		}
		result = c
		summary := fmt.Sprintf("participant=%s scheme=%s", caller, scheme)
		return tx.emit(ctx, audit.OpCaseSubmitted, id.String(), summary)
	})
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.IncrementCaseSubmitted(scheme.String())
	}
	return result, nil
}

// GradeInput is a passing grade. CertificatePointer is optional.
type GradeInput struct {
	Scores             models.Scores
	CertificatePointer domain.ContentID
}

// GradePass records a pass by a verified body.
func (s *Service) GradePass(ctx context.Context, caller domain.Address, id domain.CaseID, in GradeInput) (*models.Case, error) {
	if err := in.Scores.Validate(); err != nil {
		return nil, err
	}
	var result *models.Case
	err := s.submit(ctx, "grade_pass", caller, func(ctx context.Context, tx *txn) error {
		if _, err := requireVerifiedBody(ctx, tx.Reader, caller); err != nil {
			return err
		}
		c, err := tx.Case(ctx, id)
		if err != nil {
			return notFound(err, "case not found")
		}
		if err := c.CanPass(in.Scores); err != nil {
			return err
		}
		if !in.CertificatePointer.IsEmpty() {
			if err := ensureCertificateUnbound(ctx, tx.Reader, in.CertificatePointer); err != nil {
				return err
			}
		}

		now := requestcontext.Now(ctx)
		c.ApplyPass(caller, in.Scores, in.CertificatePointer, now)
		if err := s.closeCase(ctx, tx, c); err != nil {
			return err
		}
		if !in.CertificatePointer.IsEmpty() {
			if err := tx.PutCertificate(ctx, &models.CertificateIndex{Pointer: in.CertificatePointer, CaseID: c.ID}); err != nil {
				return err
			}
		}
		result = c
		summary := fmt.Sprintf("scores=%d/%d/%d", in.Scores.Written, in.Scores.Practical, in.Scores.Interview)
		if !in.CertificatePointer.IsEmpty() {
			summary += " certificate=" + in.CertificatePointer.String()
		}
		return tx.emit(ctx, audit.OpCasePassed, c.ID.String(), summary)
	})
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.IncrementCaseCompleted(string(models.CaseStatusPassed))
	}
	return result, nil
}

// FailInput is a failing grade. Scores are optional; the reason is not.
type FailInput struct {
	Reason string
	Scores *models.Scores
}

// GradeFail records a failure by a verified body.
func (s *Service) GradeFail(ctx context.Context, caller domain.Address, id domain.CaseID, in FailInput) (*models.Case, error) {
	if err := models.ValidateReason(in.Reason, "failure reason"); err != nil {
		return nil, err
	}
	if in.Scores != nil {
		if err := in.Scores.Validate(); err != nil {
			return nil, err
		}
	}
	var result *models.Case
	err := s.submit(ctx, "grade_fail", caller, func(ctx context.Context, tx *txn) error {
		if _, err := requireVerifiedBody(ctx, tx.Reader, caller); err != nil {
			return err
		}
		c, err := tx.Case(ctx, id)
		if err != nil {
			return notFound(err, "case not found")
		}
		if err := c.CanFail(in.Reason, in.Scores); err != nil {
			return err
		}
		c.ApplyFail(caller, in.Reason, in.Scores, requestcontext.Now(ctx))
		if err := s.closeCase(ctx, tx, c); err != nil {
			return err
		}
		result = c
		summary := "reason=" + c.FailureReason
		if c.Scores != nil {
			summary += fmt.Sprintf(" scores=%d/%d/%d", c.Scores.Written, c.Scores.Practical, c.Scores.Interview)
		}
		return tx.emit(ctx, audit.OpCaseFailed, c.ID.String(), summary)
	})
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.IncrementCaseCompleted(string(models.CaseStatusFailed))
	}
	return result, nil
}

// CancelCase withdraws the caller's active case.
func (s *Service) CancelCase(ctx context.Context, caller domain.Address) (*models.Case, error) {
	var result *models.Case
	err := s.submit(ctx, "cancel_case", caller, func(ctx context.Context, tx *txn) error {
		p, err := requireParticipant(ctx, tx.Reader, caller)
		if err != nil {
			return err
		}
		if !p.HasActiveCase() {
			return dErrors.New(dErrors.CodeConflict, "no active case")
		}
		c, err := tx.Case(ctx, *p.ActiveCaseID)
		if err != nil {
			return err
		}
		if err := c.CanCancel(); err != nil {
			return err
		}
		c.ApplyCancel(requestcontext.Now(ctx))
		if err := s.closeCase(ctx, tx, c); err != nil {
			return err
		}
		result = c
		return tx.emit(ctx, audit.OpCaseCancelled, c.ID.String(), "")
	})
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.IncrementCaseCompleted(string(models.CaseStatusCancelled))
	}
	return result, nil
}

// closeCase persists a terminal case and releases the participant's slot.
func (s *Service) closeCase(ctx context.Context, tx *txn, c *models.Case) error {
	if err := tx.PutCase(ctx, c); err != nil {
		return err
	}
	p, err := tx.Participant(ctx, c.Participant)
	if err != nil {
		return err
	}
	if p.ActiveCaseID == nil || *p.ActiveCaseID != c.ID {
		return dErrors.New(dErrors.CodeInvariantViolation, "participant does not reference the active case")
	}
	p.ApplyCaseClosed(*c.CompletedAt)
	return tx.PutParticipant(ctx, p)
}

func ensureCertificateUnbound(ctx context.Context, r *store.Reader, pointer domain.ContentID) error {
	found, err := store.Exists(func() error { _, err := r.Certificate(ctx, pointer); return err }())
	if err != nil {
		return err
	}
	if found {
		return dErrors.New(dErrors.CodeConflict, "certificate pointer is already bound to a case")
	}
	return nil
}

// AttachCertificate binds a pointer to a passed case. Only the grading body,
// still verified, may do so, and only once.
func (s *Service) AttachCertificate(ctx context.Context, caller domain.Address, id domain.CaseID, pointer domain.ContentID) (*models.Case, error) {
	if pointer.IsEmpty() {
		return nil, dErrors.New(dErrors.CodeValidation, "certificate pointer must not be empty")
	}
	var result *models.Case
	err := s.submit(ctx, "attach_certificate", caller, func(ctx context.Context, tx *txn) error {
		if _, err := requireVerifiedBody(ctx, tx.Reader, caller); err != nil {
			return err
		}
		c, err := tx.Case(ctx, id)
		if err != nil {
			return notFound(err, "case not found")
		}
		if err := c.CanAttachCertificate(caller, pointer); err != nil {
			return err
		}
		if err := ensureCertificateUnbound(ctx, tx.Reader, pointer); err != nil {
			return err
		}
		c.ApplyCertificate(pointer, requestcontext.Now(ctx))
		if err := tx.PutCase(ctx, c); err != nil {
			return err
		}
		if err := tx.PutCertificate(ctx, &models.CertificateIndex{Pointer: pointer, CaseID: c.ID}); err != nil {
			return err
		}
		result = c
		return tx.emit(ctx, audit.OpCertificateAttached, c.ID.String(), "certificate="+pointer.String())
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// VerifyByCertificate reports whether pointer certifies a passed case. The
// index is only a hint; the case itself must agree.
func (s *Service) VerifyByCertificate(ctx context.Context, pointer domain.ContentID) (bool, domain.CaseID, error) {
	var (
		found bool
		id    domain.CaseID
	)
	if pointer.IsEmpty() {
		return false, id, nil
	}
	err := s.view(ctx, "verify_certificate", func(ctx context.Context, r *store.Reader) error {
		idx, err := r.Certificate(ctx, pointer)
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		c, err := r.Case(ctx, idx.CaseID)
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if c.IsPassed() && c.CertificatePointer == pointer {
			found, id = true, c.ID
		}
		return nil
	})
	if err != nil {
		return false, domain.CaseID{}, err
	}
	if s.metrics != nil {
		s.metrics.IncrementCertificateLookup(found)
	}
	return found, id, nil
}

// VerifyCase returns the public verification view. Unknown ids report
// Exists=false.
func (s *Service) VerifyCase(ctx context.Context, id domain.CaseID) (*models.CaseVerification, error) {
	result := &models.CaseVerification{CaseID: id}
	err := s.view(ctx, "verify_case", func(ctx context.Context, r *store.Reader) error {
		c, err := r.Case(ctx, id)
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		participant := c.Participant
		result.Exists = true
		result.Passed = c.IsPassed()
		result.Active = c.Active
		result.Status = c.Status()
		result.Participant = &participant
		result.Scheme = c.Scheme
		result.SchemeName = c.Scheme.Name()
		result.CertificatePointer = c.CertificatePointer
		result.GradedBy = c.GradedBy
		result.Scores = c.Scores
		result.CompletedAt = c.CompletedAt
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) GetCase(ctx context.Context, id domain.CaseID) (*models.Case, error) {
	var result *models.Case
	err := s.view(ctx, "get_case", func(ctx context.Context, r *store.Reader) error {
		var err error
		result, err = r.Case(ctx, id)
		return notFound(err, "case not found")
	})
	return result, err
}

// ListCases returns cases in submission order.
func (s *Service) ListCases(ctx context.Context, filter models.CaseFilter) ([]*models.Case, error) {
	var result []*models.Case
	err := s.view(ctx, "list_cases", func(ctx context.Context, r *store.Reader) error {
		var err error
		result, err = listCases(ctx, r, filter)
		return err
	})
	return result, err
}

func (s *Service) CountCases(ctx context.Context, filter models.CaseFilter) (int, error) {
	var n int
	err := s.view(ctx, "count_cases", func(ctx context.Context, r *store.Reader) error {
		cases, err := listCases(ctx, r, filter)
		n = len(cases)
		return err
	})
	return n, err
}

func listCases(ctx context.Context, r *store.Reader, filter models.CaseFilter) ([]*models.Case, error) {
	var ids []domain.CaseID
	if filter.Participant != nil {
		h, err := r.History(ctx, *filter.Participant)
		if err != nil {
			return nil, err
		}
		ids = h.CaseIDs
	} else {
		events, err := r.Events(ctx, audit.Filter{Operations: []audit.Operation{audit.OpCaseSubmitted}})
		if err != nil {
			return nil, err
		}
		ids = make([]domain.CaseID, 0, len(events))
		for _, e := range events {
			id, err := domain.ParseCaseID(e.AffectedID)
			if err != nil {
				return nil, dErrors.Wrap(err, dErrors.CodeInternal, "malformed case id in audit log")
			}
			ids = append(ids, id)
		}
	}

	out := make([]*models.Case, 0, len(ids))
	for _, id := range ids {
		c, err := r.Case(ctx, id)
		if err != nil {
			return nil, err
		}
		if filter.ActiveOnly && !c.Active {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// Schemes returns the fixed scheme catalog.
func (s *Service) Schemes() []models.SchemeInfo {
	return models.SchemeCatalog()
}
