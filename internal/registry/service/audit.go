package service

import (
	"context"
	"errors"

	"certify/internal/registry/store"
	"certify/pkg/platform/audit"
)

const (
	defaultAuditLimit = 100
	maxAuditLimit     = 1000
)

// AuditLog pages through the event log.
func (s *Service) AuditLog(ctx context.Context, filter audit.Filter) ([]audit.Event, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultAuditLimit
	}
	if filter.Limit > maxAuditLimit {
		filter.Limit = maxAuditLimit
	}
	var result []audit.Event
	err := s.view(ctx, "audit_log", func(ctx context.Context, r *store.Reader) error {
		var err error
		result, err = r.Events(ctx, filter)
		return err
	})
	if result == nil {
		result = []audit.Event{}
	}
	return result, err
}

// ChainReport is the outcome of re-hashing the whole event log.
type ChainReport struct {
	Valid     bool   `json:"valid"`
	Events    int    `json:"events"`
	HeadSeq   uint64 `json:"head_seq"`
	HeadHash  string `json:"head_hash,omitempty"`
	BrokenSeq uint64 `json:"broken_seq,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// VerifyAuditChain recomputes every link and reports the first break.
func (s *Service) VerifyAuditChain(ctx context.Context) (*ChainReport, error) {
	report := &ChainReport{}
	err := s.view(ctx, "verify_audit_chain", func(ctx context.Context, r *store.Reader) error {
		events, err := r.Events(ctx, audit.Filter{})
		if err != nil {
			return err
		}
		head, err := r.Head(ctx)
		if err != nil {
			return err
		}
		report.Events = len(events)
		report.HeadSeq = head.Seq
		report.HeadHash = head.Hash

		verr := audit.VerifyChain(events)
		var chainErr *audit.ChainError
		switch {
		case verr == nil:
			report.Valid = true
		case errors.As(verr, &chainErr):
			report.BrokenSeq = chainErr.Seq
			report.Reason = chainErr.Reason
		default:
			return verr
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}
