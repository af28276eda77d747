package service

import (
	"context"
	"errors"

	"certify/internal/registry/models"
	"certify/internal/registry/store"
	"certify/pkg/domain"
	dErrors "certify/pkg/domain-errors"
	"certify/pkg/platform/audit"
	"certify/pkg/platform/sentinel"
	"certify/pkg/requestcontext"
)

// RegisterParticipant registers the caller. The authority and any current or
// removed body are refused so that roles stay mutually exclusive.
func (s *Service) RegisterParticipant(ctx context.Context, caller domain.Address, metadata domain.ContentID) (*models.Participant, error) {
	if metadata.IsEmpty() {
		return nil, dErrors.New(dErrors.CodeValidation, "metadata pointer must not be empty")
	}
	var result *models.Participant
	err := s.submit(ctx, "register_participant", caller, func(ctx context.Context, tx *txn) error {
		a, err := tx.Authority(ctx)
		switch {
		case err == nil && a.Address == caller:
			return dErrors.New(dErrors.CodeForbidden, "the authority cannot register as a participant")
		case err != nil && !errors.Is(err, sentinel.ErrNotFound):
			return err
		}
		for _, load := range []func() error{
			func() error { _, err := tx.Body(ctx, caller); return err },
			func() error { _, err := tx.RemovedBody(ctx, caller); return err },
		} {
			found, err := store.Exists(load())
			if err != nil {
				return err
			}
			if found {
				return dErrors.New(dErrors.CodeForbidden, "certification bodies cannot register as participants")
			}
		}
		found, err := store.Exists(func() error { _, err := tx.Participant(ctx, caller); return err }())
		if err != nil {
			return err
		}
		if found {
			return dErrors.New(dErrors.CodeConflict, "already registered")
		}

		p, err := models.NewParticipant(caller, metadata, requestcontext.Now(ctx))
		if err != nil {
			return err
		}
		if err := tx.PutParticipant(ctx, p); err != nil {
			return err
		}
		result = p
		return tx.emit(ctx, audit.OpParticipantRegistered, caller.String(), "metadata="+metadata.String())
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// UpdateParticipantMetadata replaces the caller's metadata pointer.
func (s *Service) UpdateParticipantMetadata(ctx context.Context, caller domain.Address, pointer domain.ContentID) (*models.Participant, error) {
	if pointer.IsEmpty() {
		return nil, dErrors.New(dErrors.CodeValidation, "metadata pointer must not be empty")
	}
	var result *models.Participant
	err := s.submit(ctx, "update_participant_metadata", caller, func(ctx context.Context, tx *txn) error {
		p, err := requireParticipant(ctx, tx.Reader, caller)
		if err != nil {
			return err
		}
		p.ApplyMetadataUpdate(pointer, requestcontext.Now(ctx))
		if err := tx.PutParticipant(ctx, p); err != nil {
			return err
		}
		result = p
		return tx.emit(ctx, audit.OpParticipantMetadataUpdated, caller.String(), "metadata="+pointer.String())
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func requireParticipant(ctx context.Context, r *store.Reader, caller domain.Address) (*models.Participant, error) {
	p, err := r.Participant(ctx, caller)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeForbidden, "caller is not a registered participant")
	}
	return p, err
}

func (s *Service) GetParticipant(ctx context.Context, address domain.Address) (*models.Participant, error) {
	var result *models.Participant
	err := s.view(ctx, "get_participant", func(ctx context.Context, r *store.Reader) error {
		var err error
		result, err = r.Participant(ctx, address)
		return notFound(err, "participant not found")
	})
	return result, err
}

// ParticipantStatus summarises an address. Unknown addresses report
// registered=false rather than an error.
func (s *Service) ParticipantStatus(ctx context.Context, address domain.Address) (*models.ParticipantStatus, error) {
	result := &models.ParticipantStatus{Address: address}
	err := s.view(ctx, "participant_status", func(ctx context.Context, r *store.Reader) error {
		p, err := r.Participant(ctx, address)
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		h, err := r.History(ctx, address)
		if err != nil {
			return err
		}
		result.Registered = p.Registered
		result.Active = p.Active
		result.HasActiveCase = p.HasActiveCase()
		result.ActiveCaseID = p.ActiveCaseID
		result.TotalCases = len(h.CaseIDs)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ParticipantHistory returns case ids in submission order.
func (s *Service) ParticipantHistory(ctx context.Context, address domain.Address) ([]domain.CaseID, error) {
	var result []domain.CaseID
	err := s.view(ctx, "participant_history", func(ctx context.Context, r *store.Reader) error {
		h, err := r.History(ctx, address)
		if err != nil {
			return err
		}
		result = h.CaseIDs
		return nil
	})
	return result, err
}

// ListParticipants rebuilds the list from registration events.
func (s *Service) ListParticipants(ctx context.Context) ([]*models.Participant, error) {
	var result []*models.Participant
	err := s.view(ctx, "list_participants", func(ctx context.Context, r *store.Reader) error {
		addrs, err := affectedAddresses(ctx, r, audit.OpParticipantRegistered)
		if err != nil {
			return err
		}
		result = make([]*models.Participant, 0, len(addrs))
		for _, a := range addrs {
			p, err := r.Participant(ctx, a)
			if err != nil {
				return err
			}
			result = append(result, p)
		}
		return nil
	})
	return result, err
}

func (s *Service) CountParticipants(ctx context.Context) (int, error) {
	var n int
	err := s.view(ctx, "count_participants", func(ctx context.Context, r *store.Reader) error {
		addrs, err := affectedAddresses(ctx, r, audit.OpParticipantRegistered)
		n = len(addrs)
		return err
	})
	return n, err
}
