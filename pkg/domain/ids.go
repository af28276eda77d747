package domain

import (
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/sha3"

	dErrors "certify/pkg/domain-errors"
)

// AddressLength is the byte length of an account address.
const AddressLength = 20

// Address identifies an account on the ledger. The zero value is the zero
// address, which never names a real actor.
type Address [AddressLength]byte

// ParseAddress accepts "0x" followed by 40 hex digits. All-lowercase and
// all-uppercase input is accepted as is; mixed-case input must carry a valid
// EIP-55 checksum.
func ParseAddress(s string) (Address, error) {
	var a Address
	s = strings.TrimSpace(s)
	body, ok := strings.CutPrefix(s, "0x")
	if !ok {
		body, ok = strings.CutPrefix(s, "0X")
	}
	if !ok || len(body) != 2*AddressLength {
		return a, dErrors.New(dErrors.CodeInvalidInput, "address must be 0x followed by 40 hex characters")
	}
	raw, err := hex.DecodeString(body)
	if err != nil {
		return a, dErrors.New(dErrors.CodeInvalidInput, "address must be hex encoded")
	}
	copy(a[:], raw)
	if a.IsZero() {
		return a, dErrors.New(dErrors.CodeInvalidInput, "zero address is not allowed")
	}
	if isMixedCase(body) && a.Checksum()[2:] != body {
		return a, dErrors.New(dErrors.CodeInvalidInput, "address checksum mismatch")
	}
	return a, nil
}

// MustParseAddress panics on invalid input. Intended for tests and constants.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Address) IsZero() bool {
	return a == Address{}
}

// String returns the canonical lowercase form.
func (a Address) String() string {
	return "0x" + hex.EncodeToString(a[:])
}

// Checksum returns the EIP-55 mixed-case form.
func (a Address) Checksum() string {
	lower := hex.EncodeToString(a[:])
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(lower))
	digest := h.Sum(nil)

	out := []byte(lower)
	for i, c := range out {
		if c < 'a' || c > 'f' {
			continue
		}
		nibble := digest[i/2]
		if i%2 == 0 {
			nibble >>= 4
		}
		if nibble&0x0f >= 8 {
			out[i] = c - 'a' + 'A'
		}
	}
	return "0x" + string(out)
}

func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Address) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*a = Address{}
		return nil
	}
	parsed, err := ParseAddress(string(b))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

func isMixedCase(s string) bool {
	return strings.ToLower(s) != s && strings.ToUpper(s) != s
}

// CaseID identifies a certification case.
type CaseID uuid.UUID

// NewCaseID returns a random case identifier.
func NewCaseID() CaseID {
	return CaseID(uuid.New())
}

// DeriveCaseID returns a deterministic identifier for a seed, such as a
// ledger transaction id, so that every replica computes the same value.
func DeriveCaseID(seed string) CaseID {
	return CaseID(uuid.NewSHA1(caseNamespace, []byte(seed)))
}

var caseNamespace = uuid.MustParse("6f1c2a34-6a0e-4f53-9a55-0b7f5e4f2c11")

// ParseCaseID validates a case identifier at a trust boundary.
func ParseCaseID(s string) (CaseID, error) {
	if s == "" {
		return CaseID{}, dErrors.New(dErrors.CodeInvalidInput, "case id is required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return CaseID{}, dErrors.New(dErrors.CodeInvalidInput, "case id must be a valid UUID")
	}
	if u == uuid.Nil {
		return CaseID{}, dErrors.New(dErrors.CodeInvalidInput, "case id must not be nil")
	}
	return CaseID(u), nil
}

func (c CaseID) String() string { return uuid.UUID(c).String() }

func (c CaseID) IsNil() bool { return uuid.UUID(c) == uuid.Nil }

func (c CaseID) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *CaseID) UnmarshalText(b []byte) error {
	u, err := uuid.ParseBytes(b)
	if err != nil {
		return dErrors.New(dErrors.CodeInvalidInput, "case id must be a valid UUID")
	}
	*c = CaseID(u)
	return nil
}

const maxContentIDLength = 256

// ContentID is an opaque content-addressed reference (for example an IPFS CID
// or a hex digest) pointing at an encrypted document.
type ContentID string

// ParseContentID validates a content reference.
func ParseContentID(s string) (ContentID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "content id is required")
	}
	if len(s) > maxContentIDLength {
		return "", dErrors.New(dErrors.CodeInvalidInput, "content id is too long")
	}
	for _, r := range s {
		if !isContentIDRune(r) {
			return "", dErrors.New(dErrors.CodeInvalidInput, "content id contains invalid characters")
		}
	}
	return ContentID(s), nil
}

func (c ContentID) String() string { return string(c) }

func (c ContentID) IsEmpty() bool { return c == "" }

func isContentIDRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '.', r == '_', r == ':', r == '-':
		return true
	}
	return false
}
