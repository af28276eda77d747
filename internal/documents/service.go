// Package documents stores encrypted metadata, license and certificate
// documents and hands back the content id the registry records.
package documents

import (
	"context"
	"crypto/rand"
	"errors"
	"io"
	"log/slog"

	"certify/pkg/domain"
	dErrors "certify/pkg/domain-errors"
	"certify/pkg/platform/sentinel"
	"certify/pkg/requestcontext"
)

// MaxDocumentSize bounds a single stored plaintext.
const MaxDocumentSize = 512 << 10

const nonceSize = 16

// Codec encrypts with a 32-byte key and a 16-byte nonce.
type Codec interface {
	Encrypt(plaintext, key, nonce []byte) ([]byte, error)
	Decrypt(ciphertext, key, nonce []byte) ([]byte, error)
}

// ContentStore is a content-addressed blob store.
type ContentStore interface {
	Put(ctx context.Context, blob []byte) (domain.ContentID, error)
	Get(ctx context.Context, id domain.ContentID) ([]byte, error)
}

type Service struct {
	codec  Codec
	store  ContentStore
	key    []byte
	random io.Reader
	logger *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithRandom replaces the nonce source. Tests use it for fixed output.
func WithRandom(r io.Reader) Option {
	return func(s *Service) { s.random = r }
}

func New(codec Codec, store ContentStore, key []byte, opts ...Option) (*Service, error) {
	if len(key) != 32 {
		return nil, dErrors.New(dErrors.CodeValidation, "document key must be 32 bytes")
	}
	s := &Service{
		codec:  codec,
		store:  store,
		key:    append([]byte(nil), key...),
		random: rand.Reader,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Store encrypts plaintext under a fresh nonce and stores nonce‖ciphertext.
func (s *Service) Store(ctx context.Context, plaintext []byte) (domain.ContentID, error) {
	if len(plaintext) == 0 {
		return "", dErrors.New(dErrors.CodeValidation, "document must not be empty")
	}
	if len(plaintext) > MaxDocumentSize {
		return "", dErrors.New(dErrors.CodeValidation, "document is too large")
	}
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(s.random, nonce); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate nonce")
	}
	ciphertext, err := s.codec.Encrypt(plaintext, s.key, nonce)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to encrypt document")
	}
	id, err := s.store.Put(ctx, append(nonce, ciphertext...))
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to store document")
	}
	s.logger.InfoContext(ctx, "document stored",
		"request_id", requestcontext.RequestID(ctx),
		"content_id", id,
		"bytes", len(plaintext),
	)
	return id, nil
}

// Load fetches and decrypts a document.
func (s *Service) Load(ctx context.Context, id domain.ContentID) ([]byte, error) {
	blob, err := s.store.Get(ctx, id)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "document not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load document")
	}
	if len(blob) <= nonceSize {
		return nil, dErrors.New(dErrors.CodeDecodeFailed, "stored document is truncated")
	}
	plaintext, err := s.codec.Decrypt(blob[nonceSize:], s.key, blob[:nonceSize])
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeDecodeFailed) {
			return nil, err
		}
		return nil, dErrors.Wrap(err, dErrors.CodeDecodeFailed, "failed to decrypt document")
	}
	return plaintext, nil
}
