package handler

import (
	"strings"

	"certify/internal/registry/models"
	"certify/internal/registry/service"
	"certify/pkg/domain"
	dErrors "certify/pkg/domain-errors"
)

// maxBatchSize bounds POST /bodies/batch.
const maxBatchSize = 100

func parsePointer(raw, field string) (domain.ContentID, error) {
	id, err := domain.ParseContentID(raw)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeValidation, field+": "+messageOf(err))
	}
	return id, nil
}

func parseAddress(raw, field string) (domain.Address, error) {
	a, err := domain.ParseAddress(raw)
	if err != nil {
		return domain.Address{}, dErrors.Wrap(err, dErrors.CodeValidation, field+": "+messageOf(err))
	}
	return a, nil
}

func messageOf(err error) string {
	if de, ok := dErrors.As(err); ok {
		return de.Message
	}
	return err.Error()
}

// AdmitBodyRequest is the body of POST /bodies and one item of
// POST /bodies/batch.
type AdmitBodyRequest struct {
	Address         string `json:"address"`
	MetadataPointer string `json:"metadata_pointer"`

	admission models.BodyAdmission
}

func (r *AdmitBodyRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	addr, err := parseAddress(r.Address, "address")
	if err != nil {
		return err
	}
	pointer, err := parsePointer(r.MetadataPointer, "metadata_pointer")
	if err != nil {
		return err
	}
	r.admission = models.BodyAdmission{Address: addr, MetadataPointer: pointer}
	return nil
}

type AdmitBodiesRequest struct {
	Bodies []AdmitBodyRequest `json:"bodies"`
}

func (r *AdmitBodiesRequest) Validate() error {
	if r == nil || len(r.Bodies) == 0 {
		return dErrors.New(dErrors.CodeValidation, "bodies must not be empty")
	}
	if len(r.Bodies) > maxBatchSize {
		return dErrors.Newf(dErrors.CodeValidation, "at most %d bodies per batch", maxBatchSize)
	}
	for i := range r.Bodies {
		if err := r.Bodies[i].Validate(); err != nil {
			return dErrors.Newf(dErrors.CodeValidation, "bodies[%d]: %s", i, messageOf(err))
		}
	}
	return nil
}

func (r *AdmitBodiesRequest) admissions() []models.BodyAdmission {
	out := make([]models.BodyAdmission, len(r.Bodies))
	for i, b := range r.Bodies {
		out[i] = b.admission
	}
	return out
}

// AddressRequest names a target account, as in POST /bodies/whitelist.
type AddressRequest struct {
	Address string `json:"address"`

	address domain.Address
}

func (r *AddressRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	addr, err := parseAddress(r.Address, "address")
	if err != nil {
		return err
	}
	r.address = addr
	return nil
}

// MetadataRequest carries a metadata pointer for applications,
// registrations and metadata updates.
type MetadataRequest struct {
	MetadataPointer string `json:"metadata_pointer"`

	pointer domain.ContentID
}

func (r *MetadataRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	p, err := parsePointer(r.MetadataPointer, "metadata_pointer")
	if err != nil {
		return err
	}
	r.pointer = p
	return nil
}

type VerifyBodyRequest struct {
	LicensePointer string `json:"license_pointer"`

	pointer domain.ContentID
}

func (r *VerifyBodyRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	p, err := parsePointer(r.LicensePointer, "license_pointer")
	if err != nil {
		return err
	}
	r.pointer = p
	return nil
}

// ReasonRequest is the body of a rejection.
type ReasonRequest struct {
	Reason string `json:"reason"`
}

func (r *ReasonRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Reason = strings.TrimSpace(r.Reason)
	return models.ValidateReason(r.Reason, "reason")
}

// GradeFailRequest carries the reason and, optionally, the scores the body
// recorded before failing the case.
type GradeFailRequest struct {
	Reason string         `json:"reason"`
	Scores *models.Scores `json:"scores,omitempty"`

	input service.FailInput
}

func (r *GradeFailRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Reason = strings.TrimSpace(r.Reason)
	if err := models.ValidateReason(r.Reason, "reason"); err != nil {
		return err
	}
	if r.Scores != nil {
		if err := r.Scores.Validate(); err != nil {
			return err
		}
	}
	r.input = service.FailInput{Reason: r.Reason, Scores: r.Scores}
	return nil
}

type SubmitCaseRequest struct {
	// Scheme is a scheme code or its numeric index.
	Scheme string `json:"scheme"`

	scheme domain.Scheme
}

func (r *SubmitCaseRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	s, err := domain.ParseScheme(r.Scheme)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeValidation, "scheme: "+messageOf(err))
	}
	r.scheme = s
	return nil
}

type GradePassRequest struct {
	Written            int    `json:"written"`
	Practical          int    `json:"practical"`
	Interview          int    `json:"interview"`
	CertificatePointer string `json:"certificate_pointer,omitempty"`

	input service.GradeInput
}

func (r *GradePassRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	scores := models.Scores{Written: r.Written, Practical: r.Practical, Interview: r.Interview}
	if err := scores.Validate(); err != nil {
		return err
	}
	r.input = service.GradeInput{Scores: scores}
	if strings.TrimSpace(r.CertificatePointer) != "" {
		p, err := parsePointer(r.CertificatePointer, "certificate_pointer")
		if err != nil {
			return err
		}
		r.input.CertificatePointer = p
	}
	return nil
}

type AttachCertificateRequest struct {
	CertificatePointer string `json:"certificate_pointer"`

	pointer domain.ContentID
}

func (r *AttachCertificateRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	p, err := parsePointer(r.CertificatePointer, "certificate_pointer")
	if err != nil {
		return err
	}
	r.pointer = p
	return nil
}
