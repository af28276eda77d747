package handler

import (
	"net/http"

	"certify/pkg/platform/httputil"
	"certify/pkg/requestcontext"
)

func (h *Handler) handleRegisterParticipant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[MetadataRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	p, err := h.service.RegisterParticipant(ctx, caller, req.pointer)
	if err != nil {
		h.fail(w, r, "register participant", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, p)
}

func (h *Handler) handleUpdateParticipantMetadata(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[MetadataRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	p, err := h.service.UpdateParticipantMetadata(ctx, caller, req.pointer)
	if err != nil {
		h.fail(w, r, "update participant metadata", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) handleDeactivateParticipant(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	addr, ok := h.pathAddress(w, r)
	if !ok {
		return
	}
	p, err := h.service.DeactivateParticipant(r.Context(), caller, addr)
	if err != nil {
		h.fail(w, r, "deactivate participant", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) handleGetParticipant(w http.ResponseWriter, r *http.Request) {
	addr, ok := h.pathAddress(w, r)
	if !ok {
		return
	}
	p, err := h.service.GetParticipant(r.Context(), addr)
	if err != nil {
		h.fail(w, r, "get participant", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) handleParticipantStatus(w http.ResponseWriter, r *http.Request) {
	addr, ok := h.pathAddress(w, r)
	if !ok {
		return
	}
	st, err := h.service.ParticipantStatus(r.Context(), addr)
	if err != nil {
		h.fail(w, r, "participant status", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, st)
}

func (h *Handler) handleParticipantHistory(w http.ResponseWriter, r *http.Request) {
	addr, ok := h.pathAddress(w, r)
	if !ok {
		return
	}
	ids, err := h.service.ParticipantHistory(r.Context(), addr)
	if err != nil {
		h.fail(w, r, "participant history", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, HistoryResponse{Address: addr, CaseIDs: ids})
}

func (h *Handler) handleListParticipants(w http.ResponseWriter, r *http.Request) {
	ps, err := h.service.ListParticipants(r.Context())
	if err != nil {
		h.fail(w, r, "list participants", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, counted(ps))
}
