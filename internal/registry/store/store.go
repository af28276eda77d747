// Package store maps registry records onto ledger tables. A Reader decodes
// records from a snapshot and remembers their versions; a Writer uses those
// versions so every write is a compare-and-set against what the transaction
// read.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"certify/internal/ledger"
	"certify/internal/registry/models"
	"certify/pkg/domain"
	"certify/pkg/platform/audit"
	"certify/pkg/platform/sentinel"
)

const (
	TableAuthority    = "authority"
	TableBodies       = "bodies"
	TableRemoved      = "removed_bodies"
	TableWhitelist    = "whitelist"
	TableParticipants = "participants"
	TableCases        = "cases"
	TableHistories    = "histories"
	TableCertificates = "certificates"

	authorityID = "singleton"
)

// ErrNotFound is returned for missing records.
var ErrNotFound = sentinel.ErrNotFound

type Reader struct {
	r        ledger.Reader
	versions map[ledger.Key]uint64
}

func NewReader(r ledger.Reader) *Reader {
	return &Reader{r: r, versions: make(map[ledger.Key]uint64)}
}

func (s *Reader) get(ctx context.Context, key ledger.Key, dst any) error {
	rec, err := s.r.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(rec.Value, dst); err != nil {
		return fmt.Errorf("decode %s: %w", key, errors.Join(sentinel.ErrInvalidState, err))
	}
	s.versions[key] = rec.Version
	return nil
}

func addressKey(table string, a domain.Address) ledger.Key {
	return ledger.Key{Table: table, ID: a.String()}
}

func (s *Reader) Authority(ctx context.Context) (*models.Authority, error) {
	var a models.Authority
	if err := s.get(ctx, ledger.Key{Table: TableAuthority, ID: authorityID}, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Reader) Body(ctx context.Context, address domain.Address) (*models.Body, error) {
	var b models.Body
	if err := s.get(ctx, addressKey(TableBodies, address), &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *Reader) RemovedBody(ctx context.Context, address domain.Address) (*models.RemovedBody, error) {
	var b models.RemovedBody
	if err := s.get(ctx, addressKey(TableRemoved, address), &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *Reader) Whitelisted(ctx context.Context, address domain.Address) (*models.WhitelistEntry, error) {
	var w models.WhitelistEntry
	if err := s.get(ctx, addressKey(TableWhitelist, address), &w); err != nil {
		return nil, err
	}
	return &w, nil
}

func (s *Reader) Participant(ctx context.Context, address domain.Address) (*models.Participant, error) {
	var p models.Participant
	if err := s.get(ctx, addressKey(TableParticipants, address), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Reader) Case(ctx context.Context, id domain.CaseID) (*models.Case, error) {
	var c models.Case
	if err := s.get(ctx, ledger.Key{Table: TableCases, ID: id.String()}, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// History returns an empty history for addresses that never submitted.
func (s *Reader) History(ctx context.Context, address domain.Address) (*models.ParticipantHistory, error) {
	var h models.ParticipantHistory
	err := s.get(ctx, addressKey(TableHistories, address), &h)
	if errors.Is(err, sentinel.ErrNotFound) {
		return &models.ParticipantHistory{Address: address, CaseIDs: []domain.CaseID{}}, nil
	}
	if err != nil {
		return nil, err
	}
	return &h, nil
}

func (s *Reader) Certificate(ctx context.Context, pointer domain.ContentID) (*models.CertificateIndex, error) {
	var idx models.CertificateIndex
	if err := s.get(ctx, ledger.Key{Table: TableCertificates, ID: pointer.String()}, &idx); err != nil {
		return nil, err
	}
	return &idx, nil
}

// Exists reports whether err means "found", treating ErrNotFound as false.
func Exists(err error) (bool, error) {
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, sentinel.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

func (s *Reader) Events(ctx context.Context, filter audit.Filter) ([]audit.Event, error) {
	return s.r.Events(ctx, filter)
}

func (s *Reader) Head(ctx context.Context) (audit.Head, error) {
	return s.r.Head(ctx)
}

type Writer struct {
	*Reader
	tx ledger.Txn
}

func NewWriter(tx ledger.Txn) *Writer {
	return &Writer{Reader: NewReader(tx), tx: tx}
}

// put writes v at the version last read for key, or creates it.
func (w *Writer) put(ctx context.Context, key ledger.Key, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	next, err := w.tx.Put(ctx, ledger.Record{Key: key, Value: raw, Version: w.versions[key]})
	if err != nil {
		return err
	}
	w.versions[key] = next
	return nil
}

func (w *Writer) delete(ctx context.Context, key ledger.Key) error {
	version, ok := w.versions[key]
	if !ok {
		rec, err := w.tx.Get(ctx, key)
		if err != nil {
			return err
		}
		version = rec.Version
	}
	if err := w.tx.Delete(ctx, key, version); err != nil {
		return err
	}
	delete(w.versions, key)
	return nil
}

func (w *Writer) PutAuthority(ctx context.Context, a *models.Authority) error {
	return w.put(ctx, ledger.Key{Table: TableAuthority, ID: authorityID}, a)
}

func (w *Writer) PutBody(ctx context.Context, b *models.Body) error {
	return w.put(ctx, addressKey(TableBodies, b.Address), b)
}

func (w *Writer) DeleteBody(ctx context.Context, address domain.Address) error {
	return w.delete(ctx, addressKey(TableBodies, address))
}

func (w *Writer) PutRemovedBody(ctx context.Context, b *models.RemovedBody) error {
	return w.put(ctx, addressKey(TableRemoved, b.Address), b)
}

func (w *Writer) PutWhitelist(ctx context.Context, e *models.WhitelistEntry) error {
	return w.put(ctx, addressKey(TableWhitelist, e.Address), e)
}

func (w *Writer) DeleteWhitelist(ctx context.Context, address domain.Address) error {
	return w.delete(ctx, addressKey(TableWhitelist, address))
}

func (w *Writer) PutParticipant(ctx context.Context, p *models.Participant) error {
	return w.put(ctx, addressKey(TableParticipants, p.Address), p)
}

func (w *Writer) PutCase(ctx context.Context, c *models.Case) error {
	return w.put(ctx, ledger.Key{Table: TableCases, ID: c.ID.String()}, c)
}

func (w *Writer) PutHistory(ctx context.Context, h *models.ParticipantHistory) error {
	return w.put(ctx, addressKey(TableHistories, h.Address), h)
}

func (w *Writer) PutCertificate(ctx context.Context, idx *models.CertificateIndex) error {
	return w.put(ctx, ledger.Key{Table: TableCertificates, ID: idx.Pointer.String()}, idx)
}

// Append adds an audit event to the transaction.
func (w *Writer) Append(ctx context.Context, e audit.Event) (audit.Event, error) {
	return w.tx.Append(ctx, e)
}
