package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// envelope fixes the field order and time encoding that the chain hash covers.
type envelope struct {
	Seq            uint64    `json:"seq"`
	Actor          string    `json:"actor"`
	Operation      Operation `json:"operation"`
	AffectedID     string    `json:"affected_id"`
	TimestampNanos int64     `json:"ts"`
	PayloadSummary string    `json:"payload"`
	RequestID      string    `json:"request_id"`
	PrevHash       string    `json:"prev"`
}

// ChainHash computes the SHA-256 link for e given the previous event's hash.
// e.ChainHash and e.PrevHash are ignored.
func ChainHash(e Event, prevHash string) (string, error) {
	raw, err := json.Marshal(envelope{
		Seq:            e.Seq,
		Actor:          e.Actor,
		Operation:      e.Operation,
		AffectedID:     e.AffectedID,
		TimestampNanos: e.Timestamp.UnixNano(),
		PayloadSummary: e.PayloadSummary,
		RequestID:      e.RequestID,
		PrevHash:       prevHash,
	})
	if err != nil {
		return "", fmt.Errorf("encode audit envelope: %w", err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// Link assigns e the next position after head and fills both hashes.
func Link(e Event, head Head) (Event, error) {
	e.Seq = head.Seq + 1
	e.Timestamp = e.Timestamp.UTC()
	e.PrevHash = head.Hash
	h, err := ChainHash(e, head.Hash)
	if err != nil {
		return Event{}, err
	}
	e.ChainHash = h
	return e, nil
}

// ChainError reports the first event whose link does not verify.
type ChainError struct {
	Seq    uint64
	Reason string
}

func (e *ChainError) Error() string {
	return fmt.Sprintf("audit chain broken at seq %d: %s", e.Seq, e.Reason)
}

// VerifyChain checks a contiguous run of events starting at seq 1.
func VerifyChain(events []Event) error {
	var prev Head
	for _, e := range events {
		if e.Seq != prev.Seq+1 {
			return &ChainError{Seq: e.Seq, Reason: fmt.Sprintf("expected seq %d", prev.Seq+1)}
		}
		if e.PrevHash != prev.Hash {
			return &ChainError{Seq: e.Seq, Reason: "previous hash mismatch"}
		}
		want, err := ChainHash(e, prev.Hash)
		if err != nil {
			return err
		}
		if want != e.ChainHash {
			return &ChainError{Seq: e.Seq, Reason: "chain hash mismatch"}
		}
		prev = Head{Seq: e.Seq, Hash: e.ChainHash}
	}
	return nil
}
