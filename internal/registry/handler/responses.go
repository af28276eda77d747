package handler

import (
	"certify/internal/registry/models"
	"certify/pkg/domain"
)

// CaseResponse adds the derived status to a stored case.
type CaseResponse struct {
	*models.Case
	Status models.CaseStatus `json:"status"`
}

func toCase(c *models.Case) CaseResponse {
	return CaseResponse{Case: c, Status: c.Status()}
}

func toCases(cs []*models.Case) []CaseResponse {
	out := make([]CaseResponse, len(cs))
	for i, c := range cs {
		out[i] = toCase(c)
	}
	return out
}

type CertificateVerificationResponse struct {
	Pointer domain.ContentID `json:"pointer"`
	Found   bool             `json:"found"`
	CaseID  *domain.CaseID   `json:"case_id,omitempty"`
}

type HistoryResponse struct {
	Address domain.Address  `json:"address"`
	CaseIDs []domain.CaseID `json:"case_ids"`
}

type CountedResponse[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
}

func counted[T any](items []T) CountedResponse[T] {
	if items == nil {
		items = []T{}
	}
	return CountedResponse[T]{Items: items, Total: len(items)}
}
