package handler

import (
	"net/http"

	"certify/internal/registry/models"
	"certify/pkg/platform/httputil"
	"certify/pkg/requestcontext"
)

func (h *Handler) handleAdmitBody(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[AdmitBodyRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	b, err := h.service.AdmitBody(ctx, caller, req.admission)
	if err != nil {
		h.fail(w, r, "admit body", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, b)
}

func (h *Handler) handleAdmitBodies(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[AdmitBodiesRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	bodies, err := h.service.AdmitBodies(ctx, caller, req.admissions())
	if err != nil {
		h.fail(w, r, "admit bodies", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, counted(bodies))
}

func (h *Handler) handleWhitelistBody(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[AddressRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	entry, err := h.service.WhitelistBody(ctx, caller, req.address)
	if err != nil {
		h.fail(w, r, "whitelist body", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, entry)
}

func (h *Handler) handleApplyAsBody(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[MetadataRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	b, err := h.service.ApplyAsBody(ctx, caller, req.pointer)
	if err != nil {
		h.fail(w, r, "apply as body", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, b)
}

func (h *Handler) handleVerifyBody(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	addr, ok := h.pathAddress(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[VerifyBodyRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	b, err := h.service.VerifyBody(ctx, caller, addr, req.pointer)
	if err != nil {
		h.fail(w, r, "verify body", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, b)
}

func (h *Handler) handleRejectBody(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	addr, ok := h.pathAddress(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[ReasonRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	b, err := h.service.RejectBody(ctx, caller, addr, req.Reason)
	if err != nil {
		h.fail(w, r, "reject body", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, b)
}

func (h *Handler) handleRemoveBody(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	addr, ok := h.pathAddress(w, r)
	if !ok {
		return
	}
	if err := h.service.RemoveBody(r.Context(), caller, addr); err != nil {
		h.fail(w, r, "remove body", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleUpdateBodyMetadata(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[MetadataRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	b, err := h.service.UpdateBodyMetadata(ctx, caller, req.pointer)
	if err != nil {
		h.fail(w, r, "update body metadata", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, b)
}

func (h *Handler) handleGetBody(w http.ResponseWriter, r *http.Request) {
	addr, ok := h.pathAddress(w, r)
	if !ok {
		return
	}
	b, err := h.service.GetBody(r.Context(), addr)
	if err != nil {
		h.fail(w, r, "get body", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, b)
}

func (h *Handler) handleListBodies(w http.ResponseWriter, r *http.Request) {
	var status *models.BodyStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		s, err := models.ParseBodyStatus(raw)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		status = &s
	}
	bodies, err := h.service.ListBodies(r.Context(), status)
	if err != nil {
		h.fail(w, r, "list bodies", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, counted(bodies))
}
