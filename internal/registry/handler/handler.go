// Package handler exposes the registry over JSON HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"certify/internal/registry/models"
	"certify/internal/registry/service"
	"certify/pkg/domain"
	dErrors "certify/pkg/domain-errors"
	"certify/pkg/platform/audit"
	"certify/pkg/platform/httputil"
	platformstrings "certify/pkg/platform/strings"
	"certify/pkg/requestcontext"
)

// Service defines the registry operations the handler calls.
type Service interface {
	Authority(ctx context.Context) (*models.Authority, error)

	AdmitBody(ctx context.Context, caller domain.Address, req models.BodyAdmission) (*models.Body, error)
	AdmitBodies(ctx context.Context, caller domain.Address, reqs []models.BodyAdmission) ([]*models.Body, error)
	WhitelistBody(ctx context.Context, caller, address domain.Address) (*models.WhitelistEntry, error)
	ApplyAsBody(ctx context.Context, caller domain.Address, metadata domain.ContentID) (*models.Body, error)
	VerifyBody(ctx context.Context, caller, address domain.Address, license domain.ContentID) (*models.Body, error)
	RejectBody(ctx context.Context, caller, address domain.Address, reason string) (*models.Body, error)
	RemoveBody(ctx context.Context, caller, address domain.Address) error
	UpdateBodyMetadata(ctx context.Context, caller domain.Address, pointer domain.ContentID) (*models.Body, error)
	GetBody(ctx context.Context, address domain.Address) (*models.Body, error)
	ListBodies(ctx context.Context, status *models.BodyStatus) ([]*models.Body, error)

	RegisterParticipant(ctx context.Context, caller domain.Address, metadata domain.ContentID) (*models.Participant, error)
	UpdateParticipantMetadata(ctx context.Context, caller domain.Address, pointer domain.ContentID) (*models.Participant, error)
	DeactivateParticipant(ctx context.Context, caller, address domain.Address) (*models.Participant, error)
	GetParticipant(ctx context.Context, address domain.Address) (*models.Participant, error)
	ParticipantStatus(ctx context.Context, address domain.Address) (*models.ParticipantStatus, error)
	ParticipantHistory(ctx context.Context, address domain.Address) ([]domain.CaseID, error)
	ListParticipants(ctx context.Context) ([]*models.Participant, error)

	SubmitCase(ctx context.Context, caller domain.Address, scheme domain.Scheme) (*models.Case, error)
	CancelCase(ctx context.Context, caller domain.Address) (*models.Case, error)
	GradePass(ctx context.Context, caller domain.Address, id domain.CaseID, in service.GradeInput) (*models.Case, error)
	GradeFail(ctx context.Context, caller domain.Address, id domain.CaseID, in service.FailInput) (*models.Case, error)
	AttachCertificate(ctx context.Context, caller domain.Address, id domain.CaseID, pointer domain.ContentID) (*models.Case, error)
	GetCase(ctx context.Context, id domain.CaseID) (*models.Case, error)
	ListCases(ctx context.Context, filter models.CaseFilter) ([]*models.Case, error)
	VerifyByCertificate(ctx context.Context, pointer domain.ContentID) (bool, domain.CaseID, error)
	VerifyCase(ctx context.Context, id domain.CaseID) (*models.CaseVerification, error)
	Schemes() []models.SchemeInfo

	ResolveRole(ctx context.Context, address domain.Address) (models.RoleInfo, error)

	AuditLog(ctx context.Context, filter audit.Filter) ([]audit.Event, error)
	VerifyAuditChain(ctx context.Context) (*service.ChainReport, error)
}

// Handler wires registry endpoints to the registry service.
type Handler struct {
	service     Service
	logger      *slog.Logger
	requireAuth func(http.Handler) http.Handler
}

// New constructs a registry handler. requireAuth guards mutations and the
// /me routes and must place the caller in the request context.
func New(service Service, logger *slog.Logger, requireAuth func(http.Handler) http.Handler) *Handler {
	return &Handler{
		service:     service,
		logger:      logger,
		requireAuth: requireAuth,
	}
}

// Register mounts registry endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/authority", h.handleGetAuthority)
	r.Get("/bodies", h.handleListBodies)
	r.Get("/bodies/{address}", h.handleGetBody)
	r.Get("/participants", h.handleListParticipants)
	r.Get("/participants/{address}", h.handleGetParticipant)
	r.Get("/participants/{address}/status", h.handleParticipantStatus)
	r.Get("/participants/{address}/cases", h.handleParticipantHistory)
	r.Get("/cases", h.handleListCases)
	r.Get("/cases/{id}", h.handleGetCase)
	r.Get("/verify/certificates/{pointer}", h.handleVerifyCertificate)
	r.Get("/verify/cases/{id}", h.handleVerifyCase)
	r.Get("/roles/{address}", h.handleResolveRole)
	r.Get("/schemes", h.handleSchemes)
	r.Get("/audit/events", h.handleAuditEvents)
	r.Get("/audit/verify", h.handleVerifyAudit)

	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)
		r.Get("/me/role", h.handleMyRole)

		r.Post("/bodies", h.handleAdmitBody)
		r.Post("/bodies/batch", h.handleAdmitBodies)
		r.Post("/bodies/whitelist", h.handleWhitelistBody)
		r.Post("/bodies/apply", h.handleApplyAsBody)
		r.Put("/bodies/me/metadata", h.handleUpdateBodyMetadata)
		r.Post("/bodies/{address}/verify", h.handleVerifyBody)
		r.Post("/bodies/{address}/reject", h.handleRejectBody)
		r.Delete("/bodies/{address}", h.handleRemoveBody)

		r.Post("/participants", h.handleRegisterParticipant)
		r.Put("/participants/me/metadata", h.handleUpdateParticipantMetadata)
		r.Post("/participants/{address}/deactivate", h.handleDeactivateParticipant)

		r.Post("/cases", h.handleSubmitCase)
		r.Post("/cases/cancel", h.handleCancelCase)
		r.Post("/cases/{id}/pass", h.handleGradePass)
		r.Post("/cases/{id}/fail", h.handleGradeFail)
		r.Post("/cases/{id}/certificate", h.handleAttachCertificate)
	})
}

// caller returns the authenticated address or writes a 401.
func (h *Handler) caller(w http.ResponseWriter, r *http.Request) (domain.Address, bool) {
	c, ok := requestcontext.Caller(r.Context())
	if !ok {
		h.logger.ErrorContext(r.Context(), "caller missing from context despite auth middleware",
			"request_id", requestcontext.RequestID(r.Context()),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return domain.Address{}, false
	}
	return c, true
}

func (h *Handler) pathAddress(w http.ResponseWriter, r *http.Request) (domain.Address, bool) {
	a, err := parseAddress(chi.URLParam(r, "address"), "address")
	if err != nil {
		httputil.WriteError(w, err)
		return domain.Address{}, false
	}
	return a, true
}

func (h *Handler) pathCaseID(w http.ResponseWriter, r *http.Request) (domain.CaseID, bool) {
	id, err := domain.ParseCaseID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeValidation, messageOf(err)))
		return domain.CaseID{}, false
	}
	return id, true
}

// fail logs and writes a service error. Client errors are logged at warn.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	ctx := r.Context()
	level := slog.LevelWarn
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		level = slog.LevelError
	}
	h.logger.Log(ctx, level, op+" failed",
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	)
	httputil.WriteError(w, err)
}

func (h *Handler) handleGetAuthority(w http.ResponseWriter, r *http.Request) {
	a, err := h.service.Authority(r.Context())
	if err != nil {
		h.fail(w, r, "get authority", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, a)
}

func (h *Handler) handleResolveRole(w http.ResponseWriter, r *http.Request) {
	addr, ok := h.pathAddress(w, r)
	if !ok {
		return
	}
	h.writeRole(w, r, addr)
}

func (h *Handler) handleMyRole(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	h.writeRole(w, r, caller)
}

func (h *Handler) writeRole(w http.ResponseWriter, r *http.Request, addr domain.Address) {
	info, err := h.service.ResolveRole(r.Context(), addr)
	if err != nil {
		h.fail(w, r, "resolve role", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, info)
}

func (h *Handler) handleSchemes(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.service.Schemes())
}

func (h *Handler) handleAuditEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter audit.Filter
	if raw := q.Get("after_seq"); raw != "" {
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "after_seq must be a non-negative integer"))
			return
		}
		filter.AfterSeq = n
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "limit must be a non-negative integer"))
			return
		}
		filter.Limit = n
	}
	for _, name := range platformstrings.SplitList(q["operation"], ",") {
		op := audit.Operation(name)
		if !op.IsKnown() {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "unknown operation: "+name))
			return
		}
		filter.Operations = append(filter.Operations, op)
	}
	filter.AffectedID = q.Get("affected_id")

	events, err := h.service.AuditLog(r.Context(), filter)
	if err != nil {
		h.fail(w, r, "audit log", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, events)
}

func (h *Handler) handleVerifyAudit(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.VerifyAuditChain(r.Context())
	if err != nil {
		h.fail(w, r, "verify audit chain", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, report)
}
