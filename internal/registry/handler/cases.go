package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"certify/internal/registry/models"
	dErrors "certify/pkg/domain-errors"
	"certify/pkg/platform/httputil"
	"certify/pkg/requestcontext"
)

func (h *Handler) handleSubmitCase(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[SubmitCaseRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	c, err := h.service.SubmitCase(ctx, caller, req.scheme)
	if err != nil {
		h.fail(w, r, "submit case", err)
		return
	}
	h.logger.InfoContext(ctx, "case submitted",
		"request_id", requestcontext.RequestID(ctx),
		"case_id", c.ID,
		"scheme", c.Scheme,
	)
	httputil.WriteJSON(w, http.StatusCreated, toCase(c))
}

func (h *Handler) handleCancelCase(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	c, err := h.service.CancelCase(r.Context(), caller)
	if err != nil {
		h.fail(w, r, "cancel case", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toCase(c))
}

func (h *Handler) handleGradePass(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	id, ok := h.pathCaseID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[GradePassRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	c, err := h.service.GradePass(ctx, caller, id, req.input)
	if err != nil {
		h.fail(w, r, "grade pass", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toCase(c))
}

func (h *Handler) handleGradeFail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	id, ok := h.pathCaseID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[GradeFailRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	c, err := h.service.GradeFail(ctx, caller, id, req.input)
	if err != nil {
		h.fail(w, r, "grade fail", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toCase(c))
}

func (h *Handler) handleAttachCertificate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	id, ok := h.pathCaseID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[AttachCertificateRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	c, err := h.service.AttachCertificate(ctx, caller, id, req.pointer)
	if err != nil {
		h.fail(w, r, "attach certificate", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toCase(c))
}

func (h *Handler) handleGetCase(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathCaseID(w, r)
	if !ok {
		return
	}
	c, err := h.service.GetCase(r.Context(), id)
	if err != nil {
		h.fail(w, r, "get case", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toCase(c))
}

// handleListCases accepts ?participant=<address>&active=true.
func (h *Handler) handleListCases(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter models.CaseFilter
	if raw := q.Get("participant"); raw != "" {
		addr, err := parseAddress(raw, "participant")
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		filter.Participant = &addr
	}
	if raw := q.Get("active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "active must be a boolean"))
			return
		}
		filter.ActiveOnly = active
	}
	cases, err := h.service.ListCases(r.Context(), filter)
	if err != nil {
		h.fail(w, r, "list cases", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, counted(toCases(cases)))
}

func (h *Handler) handleVerifyCertificate(w http.ResponseWriter, r *http.Request) {
	pointer, err := parsePointer(chi.URLParam(r, "pointer"), "pointer")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	found, id, err := h.service.VerifyByCertificate(r.Context(), pointer)
	if err != nil {
		h.fail(w, r, "verify certificate", err)
		return
	}
	resp := CertificateVerificationResponse{Pointer: pointer, Found: found}
	if found {
		resp.CaseID = &id
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleVerifyCase(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathCaseID(w, r)
	if !ok {
		return
	}
	v, err := h.service.VerifyCase(r.Context(), id)
	if err != nil {
		h.fail(w, r, "verify case", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, v)
}

