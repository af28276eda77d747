package models

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certify/pkg/domain"
	dErrors "certify/pkg/domain-errors"
)

var (
	now       = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	authority = domain.MustParseAddress("0x1000000000000000000000000000000000000001")
	bodyAddr  = domain.MustParseAddress("0x2000000000000000000000000000000000000002")
	person    = domain.MustParseAddress("0x3000000000000000000000000000000000000003")
)

func TestBodyStatusTransitions(t *testing.T) {
	assert.True(t, BodyStatusPending.CanTransitionTo(BodyStatusVerified))
	assert.True(t, BodyStatusPending.CanTransitionTo(BodyStatusRejected))
	assert.False(t, BodyStatusRejected.CanTransitionTo(BodyStatusPending))
	assert.False(t, BodyStatusVerified.CanTransitionTo(BodyStatusRejected))
	assert.False(t, BodyStatusRejected.CanTransitionTo(BodyStatusVerified))
}

func TestBodyLifecycle(t *testing.T) {
	t.Run("verify then no further decisions", func(t *testing.T) {
		b, err := NewBody(bodyAddr, "meta", AdmittedByAuthority, now)
		require.NoError(t, err)
		require.NoError(t, b.CanVerify("license"))
		b.ApplyVerification("license", now)
		assert.True(t, b.IsVerified())
		assert.Equal(t, domain.ContentID("license"), b.LicensePointer)

		assert.True(t, dErrors.HasCode(b.CanVerify("again"), dErrors.CodeConflict))
		assert.True(t, dErrors.HasCode(b.CanReject("late"), dErrors.CodeConflict))
	})

	t.Run("reject requires a reason", func(t *testing.T) {
		b, err := NewBody(bodyAddr, "meta", AdmittedByAuthority, now)
		require.NoError(t, err)
		assert.True(t, dErrors.HasCode(b.CanReject("  "), dErrors.CodeValidation))
		assert.True(t, dErrors.HasCode(b.CanReject(strings.Repeat("x", MaxReasonLength+1)), dErrors.CodeValidation))
		require.NoError(t, b.CanReject("incomplete documents"))
		b.ApplyRejection("incomplete documents", now)
		assert.Equal(t, BodyStatusRejected, b.Status)
		assert.Equal(t, "incomplete documents", b.RejectionReason)
	})

	t.Run("constructor rejects empty pointer", func(t *testing.T) {
		_, err := NewBody(bodyAddr, "", AdmittedByAuthority, now)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func TestScoresValidate(t *testing.T) {
	assert.NoError(t, Scores{0, 100, 50}.Validate())
	assert.Error(t, Scores{-1, 50, 50}.Validate())
	assert.Error(t, Scores{50, 101, 50}.Validate())
}

func TestCaseTransitions(t *testing.T) {
	newCase := func(t *testing.T) *Case {
		c, err := NewCase(domain.NewCaseID(), person, domain.SchemeWastewater, now)
		require.NoError(t, err)
		return c
	}

	t.Run("pass with later certificate", func(t *testing.T) {
		c := newCase(t)
		require.NoError(t, c.CanPass(Scores{80, 85, 90}))
		c.ApplyPass(bodyAddr, Scores{80, 85, 90}, "", now)
		assert.Equal(t, CaseStatusPassed, c.Status())
		assert.True(t, c.CertificatePointer.IsEmpty())

		other := domain.MustParseAddress("0x4000000000000000000000000000000000000004")
		assert.True(t, dErrors.HasCode(c.CanAttachCertificate(other, "cert"), dErrors.CodeForbidden))
		require.NoError(t, c.CanAttachCertificate(bodyAddr, "cert"))
		c.ApplyCertificate("cert", now)
		assert.True(t, dErrors.HasCode(c.CanAttachCertificate(bodyAddr, "cert2"), dErrors.CodeConflict))
		assert.True(t, dErrors.HasCode(c.CanPass(Scores{}), dErrors.CodeConflict))
	})

	t.Run("fail and cancel are terminal", func(t *testing.T) {
		c := newCase(t)
		require.NoError(t, c.CanFail("not competent", nil))
		c.ApplyFail(bodyAddr, " not competent\t", nil, now)
		assert.Equal(t, CaseStatusFailed, c.Status())
		assert.Equal(t, "not competent", c.FailureReason)
		assert.Nil(t, c.Scores)
		assert.True(t, dErrors.HasCode(c.CanCancel(), dErrors.CodeConflict))
		assert.True(t, dErrors.HasCode(c.CanAttachCertificate(bodyAddr, "cert"), dErrors.CodeConflict))

		c = newCase(t)
		require.NoError(t, c.CanCancel())
		c.ApplyCancel(now)
		assert.Equal(t, CaseStatusCancelled, c.Status())
		assert.Equal(t, CancelReason, c.FailureReason)
	})

	t.Run("invalid scores are rejected before state checks", func(t *testing.T) {
		c := newCase(t)
		assert.True(t, dErrors.HasCode(c.CanPass(Scores{Written: 120}), dErrors.CodeValidation))
		assert.True(t, dErrors.HasCode(c.CanFail("weak", &Scores{Interview: -1}), dErrors.CodeValidation))
		assert.True(t, c.Active)
	})

	t.Run("failing grade may carry scores", func(t *testing.T) {
		c := newCase(t)
		scores := Scores{Written: 30, Practical: 45, Interview: 50}
		require.NoError(t, c.CanFail("weak practical", &scores))
		c.ApplyFail(bodyAddr, "weak practical", &scores, now)
		scores.Written = 99
		require.NotNil(t, c.Scores)
		assert.Equal(t, 30, c.Scores.Written)
		assert.False(t, c.IsPassed())
	})
}

func TestValidateReasonCountsCharacters(t *testing.T) {
	assert.NoError(t, ValidateReason(strings.Repeat("é", MaxReasonLength), "reason"))
	assert.NoError(t, ValidateReason("  "+strings.Repeat("a", MaxReasonLength)+"  ", "reason"))
	assert.True(t, dErrors.HasCode(ValidateReason(strings.Repeat("é", MaxReasonLength+1), "reason"), dErrors.CodeValidation))
	assert.True(t, dErrors.HasCode(ValidateReason(" \n ", "reason"), dErrors.CodeValidation))
}

func TestParticipantCaseGate(t *testing.T) {
	p, err := NewParticipant(person, "meta1", now)
	require.NoError(t, err)
	require.NoError(t, p.CanSubmitCase())

	id := domain.NewCaseID()
	p.ApplyCaseOpened(id, now)
	assert.True(t, dErrors.HasCode(p.CanSubmitCase(), dErrors.CodeConflict))
	p.ApplyCaseClosed(now)
	require.NoError(t, p.CanSubmitCase())

	require.NoError(t, p.CanDeactivate())
	p.ApplyDeactivation(now)
	assert.True(t, p.Registered)
	assert.True(t, dErrors.HasCode(p.CanSubmitCase(), dErrors.CodeForbidden))
	assert.True(t, dErrors.HasCode(p.CanDeactivate(), dErrors.CodeConflict))
}

func TestResolveRolePrecedence(t *testing.T) {
	auth := &Authority{Address: authority}
	pending, _ := NewBody(bodyAddr, "meta", AdmittedByAuthority, now)
	verified, _ := NewBody(bodyAddr, "meta", AdmittedByAuthority, now)
	verified.ApplyVerification("lic", now)
	participant, _ := NewParticipant(person, "meta", now)

	cases := []struct {
		name    string
		address domain.Address
		facts   RoleFacts
		want    Role
	}{
		{"authority wins over everything", authority, RoleFacts{Authority: auth, Participant: participant, Body: verified}, RoleAuthority},
		{"participant before body", person, RoleFacts{Authority: auth, Participant: participant, Body: verified}, RoleParticipant},
		{"verified body", bodyAddr, RoleFacts{Authority: auth, Body: verified}, RoleBody},
		{"pending body is candidate", bodyAddr, RoleFacts{Authority: auth, Body: pending}, RoleCandidate},
		{"unknown address", person, RoleFacts{Authority: auth}, RoleNone},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			first := ResolveRole(tc.address, tc.facts)
			assert.Equal(t, tc.want, first.Role)
			assert.Equal(t, first, ResolveRole(tc.address, tc.facts))
		})
	}
}

func TestParseAdmissionMode(t *testing.T) {
	m, err := ParseAdmissionMode("")
	require.NoError(t, err)
	assert.Equal(t, AdmissionBoth, m)
	m, err = ParseAdmissionMode("Self_Service")
	require.NoError(t, err)
	assert.False(t, m.AllowsAuthority())
	assert.True(t, m.AllowsSelfService())
	_, err = ParseAdmissionMode("nope")
	assert.Error(t, err)
}
