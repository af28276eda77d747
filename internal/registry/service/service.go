// Package service implements the certification registry: authority
// governance, body admission, participant registration and the case
// workflow. Every mutation is one ledger transaction that changes records and
// appends exactly one audit event per affected record, so either all of it
// commits or none of it does. Authorization is decided here; callers pass the
// authenticated address explicitly.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"certify/internal/ledger"
	"certify/internal/registry/metrics"
	"certify/internal/registry/models"
	"certify/internal/registry/store"
	"certify/pkg/domain"
	dErrors "certify/pkg/domain-errors"
	"certify/pkg/platform/audit"
	"certify/pkg/platform/sentinel"
	"certify/pkg/requestcontext"
)

// CaseIDGenerator returns the id for a new case. Servers use random ids;
// chaincode derives them from the transaction id.
type CaseIDGenerator func(ctx context.Context) domain.CaseID

type Service struct {
	ledger    ledger.Ledger
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	newCaseID CaseIDGenerator
	mode      models.AdmissionMode
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

func WithCaseIDGenerator(gen CaseIDGenerator) Option {
	return func(s *Service) {
		s.newCaseID = gen
	}
}

func WithAdmissionMode(mode models.AdmissionMode) Option {
	return func(s *Service) {
		s.mode = mode
	}
}

func New(l ledger.Ledger, opts ...Option) *Service {
	s := &Service{
		ledger: l,
		tracer: otel.Tracer("certify/registry"),
		newCaseID: func(context.Context) domain.CaseID {
			return domain.NewCaseID()
		},
		mode: models.AdmissionBoth,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// txn is the write scope handed to operations. Events emitted through it are
// logged after the transaction commits.
type txn struct {
	*store.Writer
	caller domain.Address
	events []audit.Event
}

func (t *txn) emit(ctx context.Context, op audit.Operation, affected, summary string) error {
	e, err := t.Append(ctx, audit.Event{
		Actor:          t.caller.String(),
		Operation:      op,
		AffectedID:     affected,
		Timestamp:      requestcontext.Now(ctx),
		PayloadSummary: summary,
		RequestID:      requestcontext.RequestID(ctx),
	})
	if err != nil {
		return err
	}
	t.events = append(t.events, e)
	return nil
}

func (s *Service) submit(ctx context.Context, op string, caller domain.Address, fn func(ctx context.Context, tx *txn) error) error {
	ctx, span := s.tracer.Start(ctx, "registry."+op, trace.WithAttributes(
		attribute.String("registry.operation", op),
		attribute.String("registry.caller", caller.String()),
	))
	defer span.End()
	start := time.Now()

	var committed []audit.Event
	err := s.ledger.Submit(ctx, func(ctx context.Context, lt ledger.Txn) error {
		tx := &txn{Writer: store.NewWriter(lt), caller: caller}
		if err := fn(ctx, tx); err != nil {
			return err
		}
		committed = tx.events
		return nil
	})
	err = translate(err, op)
	s.observe(ctx, span, op, start, err)
	if err != nil {
		return err
	}
	for _, e := range committed {
		s.logAudit(ctx, string(e.Operation),
			"seq", e.Seq,
			"actor", e.Actor,
			"affected_id", e.AffectedID,
		)
	}
	return nil
}

func (s *Service) view(ctx context.Context, op string, fn func(ctx context.Context, r *store.Reader) error) error {
	ctx, span := s.tracer.Start(ctx, "registry."+op, trace.WithAttributes(
		attribute.String("registry.operation", op),
	))
	defer span.End()
	start := time.Now()

	err := s.ledger.View(ctx, func(ctx context.Context, r ledger.Reader) error {
		return fn(ctx, store.NewReader(r))
	})
	err = translate(err, op)
	s.observe(ctx, span, op, start, err)
	return err
}

func (s *Service) observe(ctx context.Context, span trace.Span, op string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		code := dErrors.CodeOf(err)
		outcome = string(code)
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		if code == dErrors.CodeInternal && s.logger != nil {
			s.logger.ErrorContext(ctx, "registry operation failed",
				"operation", op,
				"error", err,
				"request_id", requestcontext.RequestID(ctx),
			)
		}
	}
	if s.metrics != nil {
		s.metrics.ObserveOperation(op, outcome, start)
	}
}

// translate turns infrastructure failures into coded errors. Coded errors
// raised by operations pass through unchanged.
func translate(err error, op string) error {
	if err == nil {
		return nil
	}
	if _, ok := dErrors.As(err); ok {
		return err
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction did not complete in time")
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, "record not found")
	case errors.Is(err, sentinel.ErrConflict), errors.Is(err, sentinel.ErrAlreadyUsed):
		return dErrors.Wrap(err, dErrors.CodeConflict, "record was modified concurrently")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to "+op)
	}
}

func notFound(err error, msg string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, msg)
	}
	return err
}

func (s *Service) logAudit(ctx context.Context, event string, attributes ...any) {
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	args := append(attributes, "event", event, "log_type", "audit")
	if s.logger != nil {
		s.logger.InfoContext(ctx, event, args...)
	}
}

// requireAuthority loads the authority and checks the caller is it.
func requireAuthority(ctx context.Context, r *store.Reader, caller domain.Address) (*models.Authority, error) {
	a, err := loadAuthority(ctx, r)
	if err != nil {
		return nil, err
	}
	if a.Address != caller {
		return nil, dErrors.New(dErrors.CodeForbidden, "caller is not the authority")
	}
	return a, nil
}

func loadAuthority(ctx context.Context, r *store.Reader) (*models.Authority, error) {
	a, err := r.Authority(ctx)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeConflict, "authority has not been established")
	}
	return a, err
}

// requireVerifiedBody checks the caller is a body the authority verified.
func requireVerifiedBody(ctx context.Context, r *store.Reader, caller domain.Address) (*models.Body, error) {
	b, err := r.Body(ctx, caller)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeForbidden, "caller is not a certification body")
	}
	if err != nil {
		return nil, err
	}
	if !b.IsVerified() {
		return nil, dErrors.New(dErrors.CodeForbidden, "certification body is not verified")
	}
	return b, nil
}
