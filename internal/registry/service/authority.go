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

// Bootstrap establishes the authority. Repeating it with the same address is
// a no-op; a different address is rejected because the authority is
// immutable.
func (s *Service) Bootstrap(ctx context.Context, address domain.Address) (*models.Authority, error) {
	if address.IsZero() {
		return nil, dErrors.New(dErrors.CodeValidation, "authority address must not be zero")
	}
	var result *models.Authority
	err := s.submit(ctx, "bootstrap", address, func(ctx context.Context, tx *txn) error {
		existing, err := tx.Authority(ctx)
		if err == nil {
			if existing.Address != address {
				return dErrors.New(dErrors.CodeConflict, "authority is already established")
			}
			result = existing
			return nil
		}
		if !errors.Is(err, sentinel.ErrNotFound) {
			return err
		}
		if found, err := store.Exists(participantOrBody(ctx, tx.Reader, address)); err != nil || found {
			if err != nil {
				return err
			}
			return dErrors.New(dErrors.CodeConflict, "address already holds another role")
		}

		a := &models.Authority{Address: address, EstablishedAt: requestcontext.Now(ctx)}
		if err := tx.PutAuthority(ctx, a); err != nil {
			return err
		}
		result = a
		return tx.emit(ctx, audit.OpAuthorityEstablished, address.String(), "")
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// participantOrBody returns nil when address is a participant or body and
// sentinel.ErrNotFound when it is neither.
func participantOrBody(ctx context.Context, r *store.Reader, address domain.Address) error {
	if _, err := r.Participant(ctx, address); !errors.Is(err, sentinel.ErrNotFound) {
		return err
	}
	_, err := r.Body(ctx, address)
	return err
}

// Authority returns the established authority.
func (s *Service) Authority(ctx context.Context) (*models.Authority, error) {
	var a *models.Authority
	err := s.view(ctx, "get_authority", func(ctx context.Context, r *store.Reader) error {
		var err error
		a, err = r.Authority(ctx)
		return notFound(err, "authority has not been established")
	})
	return a, err
}

// checkAdmissible rejects addresses that may never become a body.
func checkAdmissible(ctx context.Context, r *store.Reader, authority *models.Authority, address domain.Address) error {
	if address.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "body address must not be zero")
	}
	if address == authority.Address {
		return dErrors.New(dErrors.CodeValidation, "the authority cannot be a certification body")
	}
	checks := []struct {
		load func() error
		msg  string
	}{
		{func() error { _, err := r.Body(ctx, address); return err }, "certification body already registered"},
		{func() error { _, err := r.RemovedBody(ctx, address); return err }, "address was removed and cannot be admitted again"},
		{func() error { _, err := r.Participant(ctx, address); return err }, "address is registered as a participant"},
	}
	for _, c := range checks {
		found, err := store.Exists(c.load())
		if err != nil {
			return err
		}
		if found {
			return dErrors.New(dErrors.CodeConflict, c.msg)
		}
	}
	return nil
}

func whitelistLookup(ctx context.Context, r *store.Reader, address domain.Address) error {
	_, err := r.Whitelisted(ctx, address)
	return err
}

func (s *Service) admit(ctx context.Context, tx *txn, authority *models.Authority, req models.BodyAdmission, via models.AdmissionPath) (*models.Body, error) {
	if err := checkAdmissible(ctx, tx.Reader, authority, req.Address); err != nil {
		return nil, err
	}
	b, err := models.NewBody(req.Address, req.MetadataPointer, via, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	// Admission consumes any whitelist entry, whichever path admitted the body.
	whitelisted, err := store.Exists(whitelistLookup(ctx, tx.Reader, req.Address))
	if err != nil {
		return nil, err
	}
	if whitelisted {
		if err := tx.DeleteWhitelist(ctx, req.Address); err != nil {
			return nil, err
		}
	}
	if err := tx.PutBody(ctx, b); err != nil {
		return nil, err
	}
	summary := fmt.Sprintf("metadata=%s via=%s", b.MetadataPointer, via)
	if err := tx.emit(ctx, audit.OpBodyAdmitted, b.Address.String(), summary); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *Service) requireAuthorityAdmission() error {
	if !s.mode.AllowsAuthority() {
		return dErrors.New(dErrors.CodeForbidden, "authority admission is disabled")
	}
	return nil
}

func (s *Service) requireSelfService() error {
	if !s.mode.AllowsSelfService() {
		return dErrors.New(dErrors.CodeForbidden, "self-service admission is disabled")
	}
	return nil
}

// AdmitBody creates a pending body on behalf of the authority.
func (s *Service) AdmitBody(ctx context.Context, caller domain.Address, req models.BodyAdmission) (*models.Body, error) {
	if err := s.requireAuthorityAdmission(); err != nil {
		return nil, err
	}
	if req.MetadataPointer.IsEmpty() {
		return nil, dErrors.New(dErrors.CodeValidation, "metadata pointer must not be empty")
	}
	var result *models.Body
	err := s.submit(ctx, "admit_body", caller, func(ctx context.Context, tx *txn) error {
		authority, err := requireAuthority(ctx, tx.Reader, caller)
		if err != nil {
			return err
		}
		result, err = s.admit(ctx, tx, authority, req, models.AdmittedByAuthority)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// AdmitBodies admits a batch in one transaction. Any failure admits none.
func (s *Service) AdmitBodies(ctx context.Context, caller domain.Address, reqs []models.BodyAdmission) ([]*models.Body, error) {
	if err := s.requireAuthorityAdmission(); err != nil {
		return nil, err
	}
	if len(reqs) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "at least one body is required")
	}
	seen := make(map[domain.Address]struct{}, len(reqs))
	for i, req := range reqs {
		if req.MetadataPointer.IsEmpty() {
			return nil, dErrors.Newf(dErrors.CodeValidation, "bodies[%d]: metadata pointer must not be empty", i)
		}
		if _, dup := seen[req.Address]; dup {
			return nil, dErrors.Newf(dErrors.CodeValidation, "bodies[%d]: duplicate address %s", i, req.Address)
		}
		seen[req.Address] = struct{}{}
	}

	var result []*models.Body
	err := s.submit(ctx, "admit_bodies", caller, func(ctx context.Context, tx *txn) error {
		authority, err := requireAuthority(ctx, tx.Reader, caller)
		if err != nil {
			return err
		}
		result = result[:0]
		for _, req := range reqs {
			b, err := s.admit(ctx, tx, authority, req, models.AdmittedByAuthority)
			if err != nil {
				return err
			}
			result = append(result, b)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// WhitelistBody allows address to apply as a body itself.
func (s *Service) WhitelistBody(ctx context.Context, caller, address domain.Address) (*models.WhitelistEntry, error) {
	if err := s.requireSelfService(); err != nil {
		return nil, err
	}
	var result *models.WhitelistEntry
	err := s.submit(ctx, "whitelist_body", caller, func(ctx context.Context, tx *txn) error {
		authority, err := requireAuthority(ctx, tx.Reader, caller)
		if err != nil {
			return err
		}
		if err := checkAdmissible(ctx, tx.Reader, authority, address); err != nil {
			return err
		}
		found, err := store.Exists(func() error { _, err := tx.Whitelisted(ctx, address); return err }())
		if err != nil {
			return err
		}
		if found {
			return dErrors.New(dErrors.CodeConflict, "address is already whitelisted")
		}
		entry := &models.WhitelistEntry{Address: address, AddedBy: caller, AddedAt: requestcontext.Now(ctx)}
		if err := tx.PutWhitelist(ctx, entry); err != nil {
			return err
		}
		result = entry
		return tx.emit(ctx, audit.OpBodyWhitelisted, address.String(), "")
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RemoveBody deletes a body and tombstones its address.
func (s *Service) RemoveBody(ctx context.Context, caller, address domain.Address) error {
	return s.submit(ctx, "remove_body", caller, func(ctx context.Context, tx *txn) error {
		if _, err := requireAuthority(ctx, tx.Reader, caller); err != nil {
			return err
		}
		if _, err := tx.Body(ctx, address); err != nil {
			return notFound(err, "certification body not found")
		}
		if err := tx.DeleteBody(ctx, address); err != nil {
			return err
		}
		tomb := &models.RemovedBody{Address: address, RemovedBy: caller, RemovedAt: requestcontext.Now(ctx)}
		if err := tx.PutRemovedBody(ctx, tomb); err != nil {
			return err
		}
		return tx.emit(ctx, audit.OpBodyRemoved, address.String(), "")
	})
}

// DeactivateParticipant clears a participant's active flag. Case history and
// any open case are left as they are.
func (s *Service) DeactivateParticipant(ctx context.Context, caller, address domain.Address) (*models.Participant, error) {
	var result *models.Participant
	err := s.submit(ctx, "deactivate_participant", caller, func(ctx context.Context, tx *txn) error {
		if _, err := requireAuthority(ctx, tx.Reader, caller); err != nil {
			return err
		}
		p, err := tx.Participant(ctx, address)
		if err != nil {
			return notFound(err, "participant not found")
		}
		if err := p.CanDeactivate(); err != nil {
			return err
		}
		p.ApplyDeactivation(requestcontext.Now(ctx))
		if err := tx.PutParticipant(ctx, p); err != nil {
			return err
		}
		result = p
		return tx.emit(ctx, audit.OpParticipantDeactivated, address.String(), "")
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
