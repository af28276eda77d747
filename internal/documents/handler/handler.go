// Package handler exposes encrypted document storage over HTTP.
package handler

import (
	"context"
	"encoding/base64"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"certify/pkg/domain"
	dErrors "certify/pkg/domain-errors"
	"certify/pkg/platform/httputil"
	"certify/pkg/requestcontext"
)

type Service interface {
	Store(ctx context.Context, plaintext []byte) (domain.ContentID, error)
	Load(ctx context.Context, id domain.ContentID) ([]byte, error)
}

type Handler struct {
	service     Service
	logger      *slog.Logger
	requireAuth func(http.Handler) http.Handler
}

func New(service Service, logger *slog.Logger, requireAuth func(http.Handler) http.Handler) *Handler {
	return &Handler{service: service, logger: logger, requireAuth: requireAuth}
}

// Register mounts the document routes. Both require a caller since stored
// documents are returned decrypted.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)
		r.Post("/documents", h.handleStore)
		r.Get("/documents/{id}", h.handleLoad)
	})
}

// StoreRequest carries a base64 encoded document.
type StoreRequest struct {
	Content string `json:"content"`

	decoded []byte
}

func (r *StoreRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if r.Content == "" {
		return dErrors.New(dErrors.CodeValidation, "content is required")
	}
	b, err := base64.StdEncoding.DecodeString(r.Content)
	if err != nil {
		return dErrors.New(dErrors.CodeValidation, "content must be base64")
	}
	r.decoded = b
	return nil
}

type StoreResponse struct {
	ContentID domain.ContentID `json:"content_id"`
}

type DocumentResponse struct {
	ContentID domain.ContentID `json:"content_id"`
	Content   string           `json:"content"`
}

func (h *Handler) handleStore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	req, ok := httputil.DecodeAndPrepare[StoreRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	id, err := h.service.Store(ctx, req.decoded)
	if err != nil {
		h.fail(w, r, "store document", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, StoreResponse{ContentID: id})
}

func (h *Handler) handleLoad(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseContentID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeValidation, "invalid content id"))
		return
	}
	doc, err := h.service.Load(r.Context(), id)
	if err != nil {
		h.fail(w, r, "load document", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, DocumentResponse{
		ContentID: id,
		Content:   base64.StdEncoding.EncodeToString(doc),
	})
}

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
