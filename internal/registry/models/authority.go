package models

import (
	"strings"
	"time"

	"certify/pkg/domain"
	dErrors "certify/pkg/domain-errors"
)

// Authority is the single root identity. It is written once at bootstrap.
type Authority struct {
	Address       domain.Address `json:"address"`
	EstablishedAt time.Time      `json:"established_at"`
}

// AdmissionMode selects which paths may create bodies.
type AdmissionMode string

const (
	AdmissionAuthority   AdmissionMode = "authority"
	AdmissionSelfService AdmissionMode = "self_service"
	AdmissionBoth        AdmissionMode = "both"
)

func ParseAdmissionMode(raw string) (AdmissionMode, error) {
	switch m := AdmissionMode(strings.ToLower(strings.TrimSpace(raw))); m {
	case "":
		return AdmissionBoth, nil
	case AdmissionAuthority, AdmissionSelfService, AdmissionBoth:
		return m, nil
	}
	return "", dErrors.New(dErrors.CodeValidation, "invalid admission mode: "+raw)
}

func (m AdmissionMode) AllowsAuthority() bool {
	return m == AdmissionAuthority || m == AdmissionBoth || m == ""
}

func (m AdmissionMode) AllowsSelfService() bool {
	return m == AdmissionSelfService || m == AdmissionBoth || m == ""
}

// BodyAdmission is one entry of an admission request.
type BodyAdmission struct {
	Address         domain.Address
	MetadataPointer domain.ContentID
}
