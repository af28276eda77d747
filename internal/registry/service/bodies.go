package service

import (
	"context"
	"errors"
	"time"

	"certify/internal/registry/models"
	"certify/internal/registry/store"
	"certify/pkg/domain"
	dErrors "certify/pkg/domain-errors"
	"certify/pkg/platform/audit"
	"certify/pkg/platform/sentinel"
	"certify/pkg/requestcontext"
)

// ApplyAsBody lets a whitelisted caller create its own pending body. The
// whitelist entry is consumed.
func (s *Service) ApplyAsBody(ctx context.Context, caller domain.Address, metadata domain.ContentID) (*models.Body, error) {
	if err := s.requireSelfService(); err != nil {
		return nil, err
	}
	if metadata.IsEmpty() {
		return nil, dErrors.New(dErrors.CodeValidation, "metadata pointer must not be empty")
	}
	var result *models.Body
	err := s.submit(ctx, "apply_as_body", caller, func(ctx context.Context, tx *txn) error {
		authority, err := loadAuthority(ctx, tx.Reader)
		if err != nil {
			return err
		}
		if err := checkAdmissible(ctx, tx.Reader, authority, caller); err != nil {
			return err
		}
		if _, err := tx.Whitelisted(ctx, caller); err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeForbidden, "address is not whitelisted")
			}
			return err
		}
		req := models.BodyAdmission{Address: caller, MetadataPointer: metadata}
		result, err = s.admit(ctx, tx, authority, req, models.AdmittedSelfService)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// VerifyBody moves a pending body to verified with its license pointer.
func (s *Service) VerifyBody(ctx context.Context, caller, address domain.Address, license domain.ContentID) (*models.Body, error) {
	var result *models.Body
	err := s.submit(ctx, "verify_body", caller, func(ctx context.Context, tx *txn) error {
		if _, err := requireAuthority(ctx, tx.Reader, caller); err != nil {
			return err
		}
		b, err := tx.Body(ctx, address)
		if err != nil {
			return notFound(err, "certification body not found")
		}
		if err := b.CanVerify(license); err != nil {
			return err
		}
		b.ApplyVerification(license, requestcontext.Now(ctx))
		if err := tx.PutBody(ctx, b); err != nil {
			return err
		}
		result = b
		return tx.emit(ctx, audit.OpBodyVerified, address.String(), "license="+license.String())
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RejectBody moves a pending body to rejected. Rejection is terminal.
func (s *Service) RejectBody(ctx context.Context, caller, address domain.Address, reason string) (*models.Body, error) {
	var result *models.Body
	err := s.submit(ctx, "reject_body", caller, func(ctx context.Context, tx *txn) error {
		if _, err := requireAuthority(ctx, tx.Reader, caller); err != nil {
			return err
		}
		b, err := tx.Body(ctx, address)
		if err != nil {
			return notFound(err, "certification body not found")
		}
		if err := b.CanReject(reason); err != nil {
			return err
		}
		b.ApplyRejection(reason, requestcontext.Now(ctx))
		if err := tx.PutBody(ctx, b); err != nil {
			return err
		}
		result = b
		return tx.emit(ctx, audit.OpBodyRejected, address.String(), "reason="+b.RejectionReason)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// UpdateBodyMetadata replaces the caller's own metadata pointer.
func (s *Service) UpdateBodyMetadata(ctx context.Context, caller domain.Address, pointer domain.ContentID) (*models.Body, error) {
	if pointer.IsEmpty() {
		return nil, dErrors.New(dErrors.CodeValidation, "metadata pointer must not be empty")
	}
	var result *models.Body
	err := s.submit(ctx, "update_body_metadata", caller, func(ctx context.Context, tx *txn) error {
		b, err := tx.Body(ctx, caller)
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeForbidden, "caller is not a certification body")
		}
		if err != nil {
			return err
		}
		b.ApplyMetadataUpdate(pointer, requestcontext.Now(ctx))
		if err := tx.PutBody(ctx, b); err != nil {
			return err
		}
		result = b
		return tx.emit(ctx, audit.OpBodyMetadataUpdated, caller.String(), "metadata="+pointer.String())
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) GetBody(ctx context.Context, address domain.Address) (*models.Body, error) {
	var result *models.Body
	err := s.view(ctx, "get_body", func(ctx context.Context, r *store.Reader) error {
		var err error
		result, err = r.Body(ctx, address)
		return notFound(err, "certification body not found")
	})
	return result, err
}

// ListBodies rebuilds the body list from admission events in admission
// order, skipping removed bodies. A nil status lists all.
func (s *Service) ListBodies(ctx context.Context, status *models.BodyStatus) ([]*models.Body, error) {
	var result []*models.Body
	err := s.view(ctx, "list_bodies", func(ctx context.Context, r *store.Reader) error {
		addrs, err := affectedAddresses(ctx, r, audit.OpBodyAdmitted)
		if err != nil {
			return err
		}
		result = make([]*models.Body, 0, len(addrs))
		for _, a := range addrs {
			b, err := r.Body(ctx, a)
			if errors.Is(err, sentinel.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if status != nil && b.Status != *status {
				continue
			}
			result = append(result, b)
		}
		return nil
	})
	return result, err
}

// AwaitBodyStatus polls until the body reaches want or ctx ends. There is no
// push notification in the registry, so waiting is always a read loop.
func (s *Service) AwaitBodyStatus(ctx context.Context, address domain.Address, want models.BodyStatus, interval time.Duration) (*models.Body, error) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		b, err := s.GetBody(ctx, address)
		switch {
		case err == nil && b.Status == want:
			return b, nil
		case err != nil && !dErrors.HasCode(err, dErrors.CodeNotFound):
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, dErrors.Wrap(ctx.Err(), dErrors.CodeTimeout, "body did not reach status "+want.String())
		case <-ticker.C:
		}
	}
}

// affectedAddresses returns the distinct affected addresses of op events in
// first-seen order.
func affectedAddresses(ctx context.Context, r *store.Reader, op audit.Operation) ([]domain.Address, error) {
	events, err := r.Events(ctx, audit.Filter{Operations: []audit.Operation{op}})
	if err != nil {
		return nil, err
	}
	seen := make(map[domain.Address]struct{}, len(events))
	out := make([]domain.Address, 0, len(events))
	for _, e := range events {
		a, err := domain.ParseAddress(e.AffectedID)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "malformed address in audit log")
		}
		if _, dup := seen[a]; dup {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	return out, nil
}
