package service

import (
	"context"
	"errors"

	"certify/internal/registry/models"
	"certify/internal/registry/store"
	"certify/pkg/domain"
	"certify/pkg/platform/sentinel"
)

// ResolveRole derives the role of address from one committed snapshot.
func (s *Service) ResolveRole(ctx context.Context, address domain.Address) (models.RoleInfo, error) {
	var info models.RoleInfo
	err := s.view(ctx, "resolve_role", func(ctx context.Context, r *store.Reader) error {
		var facts models.RoleFacts
		var err error
		if facts.Authority, err = optional(r.Authority(ctx)); err != nil {
			return err
		}
		if facts.Participant, err = optional(r.Participant(ctx, address)); err != nil {
			return err
		}
		if facts.Body, err = optional(r.Body(ctx, address)); err != nil {
			return err
		}
		info = models.ResolveRole(address, facts)
		return nil
	})
	return info, err
}

// optional maps a missing record to nil without error.
func optional[T any](v *T, err error) (*T, error) {
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, nil
	}
	return v, err
}
