package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"

	"certify/internal/ledger"
	"certify/internal/ledger/memory"
	"certify/internal/registry/metrics"
	"certify/internal/registry/models"
	"certify/internal/registry/store"
	"certify/pkg/domain"
	dErrors "certify/pkg/domain-errors"
	"certify/pkg/platform/audit"
	"certify/pkg/requestcontext"
)

var (
	authorityAddr = domain.MustParseAddress("0xa000000000000000000000000000000000000001")
	bodyAddr      = domain.MustParseAddress("0xb000000000000000000000000000000000000001")
	body2Addr     = domain.MustParseAddress("0xb000000000000000000000000000000000000002")
	participantP  = domain.MustParseAddress("0xc000000000000000000000000000000000000001")
	participantQ  = domain.MustParseAddress("0xc000000000000000000000000000000000000002")
	strangerAddr  = domain.MustParseAddress("0xd000000000000000000000000000000000000001")
)

type ServiceSuite struct {
	suite.Suite
	svc *Service
	ctx context.Context
	now time.Time
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.now = time.Date(2026, 4, 1, 8, 30, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
	s.svc = New(memory.New(), WithMetrics(metrics.NewWith(prometheus.NewRegistry())))
	_, err := s.svc.Bootstrap(s.ctx, authorityAddr)
	s.Require().NoError(err)
}

func (s *ServiceSuite) requireCode(err error, code dErrors.Code) {
	s.T().Helper()
	s.Require().Error(err)
	s.Equal(code, dErrors.CodeOf(err), "error: %v", err)
}

func (s *ServiceSuite) verifiedBody(addr domain.Address) {
	_, err := s.svc.AdmitBody(s.ctx, authorityAddr, models.BodyAdmission{Address: addr, MetadataPointer: "meta-body"})
	s.Require().NoError(err)
	_, err = s.svc.VerifyBody(s.ctx, authorityAddr, addr, "license-1")
	s.Require().NoError(err)
}

func (s *ServiceSuite) registered(addr domain.Address) {
	_, err := s.svc.RegisterParticipant(s.ctx, addr, "meta1")
	s.Require().NoError(err)
}

func (s *ServiceSuite) TestBootstrap() {
	s.Run("same address is idempotent", func() {
		a, err := s.svc.Bootstrap(s.ctx, authorityAddr)
		s.Require().NoError(err)
		s.Equal(authorityAddr, a.Address)
	})
	s.Run("authority is immutable", func() {
		_, err := s.svc.Bootstrap(s.ctx, strangerAddr)
		s.requireCode(err, dErrors.CodeConflict)
	})
	s.Run("operations before bootstrap are refused", func() {
		fresh := New(memory.New())
		_, err := fresh.AdmitBody(s.ctx, authorityAddr, models.BodyAdmission{Address: bodyAddr, MetadataPointer: "m"})
		s.requireCode(err, dErrors.CodeConflict)
	})
}

// Scenario A
func (s *ServiceSuite) TestSubmitWhileActiveCaseExists() {
	s.registered(participantP)

	c1, err := s.svc.SubmitCase(s.ctx, participantP, domain.SchemeAirPollutionInstallation)
	s.Require().NoError(err)
	s.True(c1.Active)

	p, err := s.svc.GetParticipant(s.ctx, participantP)
	s.Require().NoError(err)
	s.Require().NotNil(p.ActiveCaseID)
	s.Equal(c1.ID, *p.ActiveCaseID)

	_, err = s.svc.SubmitCase(s.ctx, participantP, domain.SchemeAirPollution)
	s.requireCode(err, dErrors.CodeConflict)

	history, err := s.svc.ParticipantHistory(s.ctx, participantP)
	s.Require().NoError(err)
	s.Equal([]domain.CaseID{c1.ID}, history)
}

// Scenario B
func (s *ServiceSuite) TestGradePassAndVerifyCertificate() {
	s.verifiedBody(bodyAddr)
	s.registered(participantP)
	c1, err := s.svc.SubmitCase(s.ctx, participantP, domain.SchemeWastewater)
	s.Require().NoError(err)

	graded, err := s.svc.GradePass(s.ctx, bodyAddr, c1.ID, GradeInput{
		Scores:             models.Scores{Written: 80, Practical: 85, Interview: 90},
		CertificatePointer: "cert1",
	})
	s.Require().NoError(err)
	s.Require().NotNil(graded.Passed)
	s.True(*graded.Passed)
	s.False(graded.Active)
	s.Equal(bodyAddr, *graded.GradedBy)
	s.Equal(s.now, *graded.CompletedAt)

	p, err := s.svc.GetParticipant(s.ctx, participantP)
	s.Require().NoError(err)
	s.Nil(p.ActiveCaseID)

	found, id, err := s.svc.VerifyByCertificate(s.ctx, "cert1")
	s.Require().NoError(err)
	s.True(found)
	s.Equal(c1.ID, id)

	view, err := s.svc.VerifyCase(s.ctx, c1.ID)
	s.Require().NoError(err)
	s.True(view.Exists)
	s.True(view.Passed)
	s.Equal(domain.SchemeWastewater.Name(), view.SchemeName)
}

// Scenario C
func (s *ServiceSuite) TestRejectionIsTerminal() {
	_, err := s.svc.AdmitBody(s.ctx, authorityAddr, models.BodyAdmission{Address: body2Addr, MetadataPointer: "meta-b2"})
	s.Require().NoError(err)

	b, err := s.svc.RejectBody(s.ctx, authorityAddr, body2Addr, "incomplete documents")
	s.Require().NoError(err)
	s.Equal(models.BodyStatusRejected, b.Status)
	s.Equal("incomplete documents", b.RejectionReason)

	_, err = s.svc.VerifyBody(s.ctx, authorityAddr, body2Addr, "license")
	s.requireCode(err, dErrors.CodeConflict)
	_, err = s.svc.RejectBody(s.ctx, authorityAddr, body2Addr, "again")
	s.requireCode(err, dErrors.CodeConflict)
}

// Scenario D
func (s *ServiceSuite) TestResolveRoleFollowsRegistration() {
	info, err := s.svc.ResolveRole(s.ctx, participantP)
	s.Require().NoError(err)
	s.Equal(models.RoleNone, info.Role)

	s.registered(participantP)
	info, err = s.svc.ResolveRole(s.ctx, participantP)
	s.Require().NoError(err)
	s.Equal(models.RoleParticipant, info.Role)

	again, err := s.svc.ResolveRole(s.ctx, participantP)
	s.Require().NoError(err)
	s.Equal(info, again)

	info, err = s.svc.ResolveRole(s.ctx, authorityAddr)
	s.Require().NoError(err)
	s.Equal(models.RoleAuthority, info.Role)

	_, err = s.svc.AdmitBody(s.ctx, authorityAddr, models.BodyAdmission{Address: bodyAddr, MetadataPointer: "m"})
	s.Require().NoError(err)
	info, err = s.svc.ResolveRole(s.ctx, bodyAddr)
	s.Require().NoError(err)
	s.Equal(models.RoleCandidate, info.Role)
	s.Equal(models.BodyStatusPending, info.BodyStatus)
}

func (s *ServiceSuite) TestAuthorizationGates() {
	s.registered(participantP)

	_, err := s.svc.AdmitBody(s.ctx, strangerAddr, models.BodyAdmission{Address: bodyAddr, MetadataPointer: "m"})
	s.requireCode(err, dErrors.CodeForbidden)

	_, err = s.svc.AdmitBody(s.ctx, authorityAddr, models.BodyAdmission{Address: authorityAddr, MetadataPointer: "m"})
	s.requireCode(err, dErrors.CodeValidation)

	_, err = s.svc.AdmitBody(s.ctx, authorityAddr, models.BodyAdmission{Address: participantP, MetadataPointer: "m"})
	s.requireCode(err, dErrors.CodeConflict)

	_, err = s.svc.RegisterParticipant(s.ctx, authorityAddr, "m")
	s.requireCode(err, dErrors.CodeForbidden)

	_, err = s.svc.RegisterParticipant(s.ctx, participantP, "m")
	s.requireCode(err, dErrors.CodeConflict)

	_, err = s.svc.RegisterParticipant(s.ctx, participantQ, "")
	s.requireCode(err, dErrors.CodeValidation)

	_, err = s.svc.DeactivateParticipant(s.ctx, strangerAddr, participantP)
	s.requireCode(err, dErrors.CodeForbidden)

	_, err = s.svc.SubmitCase(s.ctx, strangerAddr, domain.SchemeWastewater)
	s.requireCode(err, dErrors.CodeForbidden)
}

func (s *ServiceSuite) TestPendingBodyCannotGrade() {
	_, err := s.svc.AdmitBody(s.ctx, authorityAddr, models.BodyAdmission{Address: bodyAddr, MetadataPointer: "m"})
	s.Require().NoError(err)
	s.registered(participantP)
	c, err := s.svc.SubmitCase(s.ctx, participantP, domain.SchemeWastewater)
	s.Require().NoError(err)

	_, err = s.svc.GradeFail(s.ctx, bodyAddr, c.ID, FailInput{Reason: "no"})
	s.requireCode(err, dErrors.CodeForbidden)
	_, err = s.svc.GradePass(s.ctx, participantP, c.ID, GradeInput{Scores: models.Scores{Written: 1}})
	s.requireCode(err, dErrors.CodeForbidden)
}

func (s *ServiceSuite) TestBodyCannotRegisterAsParticipant() {
	s.verifiedBody(bodyAddr)
	_, err := s.svc.RegisterParticipant(s.ctx, bodyAddr, "m")
	s.requireCode(err, dErrors.CodeForbidden)

	s.Require().NoError(s.svc.RemoveBody(s.ctx, authorityAddr, bodyAddr))
	_, err = s.svc.RegisterParticipant(s.ctx, bodyAddr, "m")
	s.requireCode(err, dErrors.CodeForbidden)
}

func (s *ServiceSuite) TestRemovedBodyIsTombstoned() {
	s.verifiedBody(bodyAddr)
	s.Require().NoError(s.svc.RemoveBody(s.ctx, authorityAddr, bodyAddr))

	_, err := s.svc.GetBody(s.ctx, bodyAddr)
	s.requireCode(err, dErrors.CodeNotFound)

	_, err = s.svc.AdmitBody(s.ctx, authorityAddr, models.BodyAdmission{Address: bodyAddr, MetadataPointer: "m"})
	s.requireCode(err, dErrors.CodeConflict)

	err = s.svc.RemoveBody(s.ctx, authorityAddr, bodyAddr)
	s.requireCode(err, dErrors.CodeNotFound)

	bodies, err := s.svc.ListBodies(s.ctx, nil)
	s.Require().NoError(err)
	s.Empty(bodies)
}

func (s *ServiceSuite) TestGradeFailAndCancel() {
	s.verifiedBody(bodyAddr)
	s.registered(participantP)

	c1, err := s.svc.SubmitCase(s.ctx, participantP, domain.SchemeWastewater)
	s.Require().NoError(err)
	failed, err := s.svc.GradeFail(s.ctx, bodyAddr, c1.ID, FailInput{Reason: "not competent"})
	s.Require().NoError(err)
	s.Equal(models.CaseStatusFailed, failed.Status())

	_, err = s.svc.GradeFail(s.ctx, bodyAddr, c1.ID, FailInput{Reason: "again"})
	s.requireCode(err, dErrors.CodeConflict)

	_, err = s.svc.CancelCase(s.ctx, participantP)
	s.requireCode(err, dErrors.CodeConflict)

	c2, err := s.svc.SubmitCase(s.ctx, participantP, domain.SchemeWaterPollution)
	s.Require().NoError(err)
	s.NotEqual(c1.ID, c2.ID)

	cancelled, err := s.svc.CancelCase(s.ctx, participantP)
	s.Require().NoError(err)
	s.Equal(models.CancelReason, cancelled.FailureReason)
	s.Equal(models.CaseStatusCancelled, cancelled.Status())

	_, err = s.svc.GradePass(s.ctx, bodyAddr, c2.ID, GradeInput{Scores: models.Scores{Written: 90}})
	s.requireCode(err, dErrors.CodeConflict)

	status, err := s.svc.ParticipantStatus(s.ctx, participantP)
	s.Require().NoError(err)
	s.False(status.HasActiveCase)
	s.Equal(2, status.TotalCases)
}

func (s *ServiceSuite) TestGradeFailRecordsScoresAndTrimmedReason() {
	s.verifiedBody(bodyAddr)
	s.registered(participantP)

	s.Run("scores are validated before anything is written", func() {
		c, err := s.svc.SubmitCase(s.ctx, participantP, domain.SchemeWastewater)
		s.Require().NoError(err)
		_, err = s.svc.GradeFail(s.ctx, bodyAddr, c.ID, FailInput{
			Reason: "not competent",
			Scores: &models.Scores{Written: 40, Practical: 101, Interview: 10},
		})
		s.requireCode(err, dErrors.CodeValidation)

		detail, err := s.svc.GetCase(s.ctx, c.ID)
		s.Require().NoError(err)
		s.True(detail.Active)
		_, err = s.svc.CancelCase(s.ctx, participantP)
		s.Require().NoError(err)
	})

	s.Run("scores and a trimmed reason are stored on the failed case", func() {
		c, err := s.svc.SubmitCase(s.ctx, participantP, domain.SchemeWastewater)
		s.Require().NoError(err)
		failed, err := s.svc.GradeFail(s.ctx, bodyAddr, c.ID, FailInput{
			Reason: "  not competent \n",
			Scores: &models.Scores{Written: 40, Practical: 55, Interview: 30},
		})
		s.Require().NoError(err)
		s.Equal("not competent", failed.FailureReason)

		detail, err := s.svc.GetCase(s.ctx, c.ID)
		s.Require().NoError(err)
		s.Equal("not competent", detail.FailureReason)
		s.Require().NotNil(detail.Scores)
		s.Equal(models.Scores{Written: 40, Practical: 55, Interview: 30}, *detail.Scores)

		view, err := s.svc.VerifyCase(s.ctx, c.ID)
		s.Require().NoError(err)
		s.False(view.Passed)
		s.Equal(models.CaseStatusFailed, view.Status)
		s.Require().NotNil(view.Scores)
		s.Equal(55, view.Scores.Practical)
	})

	s.Run("reason length counts characters", func() {
		c, err := s.svc.SubmitCase(s.ctx, participantP, domain.SchemeWastewater)
		s.Require().NoError(err)

		_, err = s.svc.GradeFail(s.ctx, bodyAddr, c.ID, FailInput{Reason: strings.Repeat("é", models.MaxReasonLength+1)})
		s.requireCode(err, dErrors.CodeValidation)

		failed, err := s.svc.GradeFail(s.ctx, bodyAddr, c.ID, FailInput{Reason: strings.Repeat("é", 300)})
		s.Require().NoError(err)
		s.Nil(failed.Scores)
		s.Equal(300, utf8.RuneCountInString(failed.FailureReason))
	})
}

func (s *ServiceSuite) TestCertificatePathExclusivity() {
	s.verifiedBody(bodyAddr)
	s.verifiedBody(body2Addr)
	s.registered(participantP)
	s.registered(participantQ)

	failedCase, err := s.svc.SubmitCase(s.ctx, participantQ, domain.SchemeWastewater)
	s.Require().NoError(err)
	_, err = s.svc.GradeFail(s.ctx, bodyAddr, failedCase.ID, FailInput{Reason: "no"})
	s.Require().NoError(err)
	_, err = s.svc.AttachCertificate(s.ctx, bodyAddr, failedCase.ID, "cert-x")
	s.requireCode(err, dErrors.CodeConflict)

	c, err := s.svc.SubmitCase(s.ctx, participantP, domain.SchemeWastewater)
	s.Require().NoError(err)
	_, err = s.svc.GradePass(s.ctx, bodyAddr, c.ID, GradeInput{Scores: models.Scores{Written: 70, Practical: 70, Interview: 70}})
	s.Require().NoError(err)

	found, _, err := s.svc.VerifyByCertificate(s.ctx, "cert-late")
	s.Require().NoError(err)
	s.False(found)

	_, err = s.svc.AttachCertificate(s.ctx, body2Addr, c.ID, "cert-late")
	s.requireCode(err, dErrors.CodeForbidden)

	attached, err := s.svc.AttachCertificate(s.ctx, bodyAddr, c.ID, "cert-late")
	s.Require().NoError(err)
	s.Equal(domain.ContentID("cert-late"), attached.CertificatePointer)

	_, err = s.svc.AttachCertificate(s.ctx, bodyAddr, c.ID, "cert-other")
	s.requireCode(err, dErrors.CodeConflict)

	found, id, err := s.svc.VerifyByCertificate(s.ctx, "cert-late")
	s.Require().NoError(err)
	s.True(found)
	s.Equal(c.ID, id)

	found, _, err = s.svc.VerifyByCertificate(s.ctx, "unrelated")
	s.Require().NoError(err)
	s.False(found)
}

func (s *ServiceSuite) TestCertificatePointerBindsOnce() {
	s.verifiedBody(bodyAddr)
	s.registered(participantP)
	s.registered(participantQ)

	c1, err := s.svc.SubmitCase(s.ctx, participantP, domain.SchemeWastewater)
	s.Require().NoError(err)
	_, err = s.svc.GradePass(s.ctx, bodyAddr, c1.ID, GradeInput{Scores: models.Scores{Written: 80}, CertificatePointer: "shared"})
	s.Require().NoError(err)

	c2, err := s.svc.SubmitCase(s.ctx, participantQ, domain.SchemeWastewater)
	s.Require().NoError(err)
	_, err = s.svc.GradePass(s.ctx, bodyAddr, c2.ID, GradeInput{Scores: models.Scores{Written: 80}, CertificatePointer: "shared"})
	s.requireCode(err, dErrors.CodeConflict)

	// the failed attempt left the case untouched
	still, err := s.svc.GetCase(s.ctx, c2.ID)
	s.Require().NoError(err)
	s.True(still.Active)
}

func (s *ServiceSuite) TestScoresOutOfRange() {
	s.verifiedBody(bodyAddr)
	s.registered(participantP)
	c, err := s.svc.SubmitCase(s.ctx, participantP, domain.SchemeWastewater)
	s.Require().NoError(err)
	_, err = s.svc.GradePass(s.ctx, bodyAddr, c.ID, GradeInput{Scores: models.Scores{Written: 101}})
	s.requireCode(err, dErrors.CodeValidation)
}

func (s *ServiceSuite) TestAdmitBodiesIsAllOrNothing() {
	s.registered(participantP)

	_, err := s.svc.AdmitBodies(s.ctx, authorityAddr, []models.BodyAdmission{
		{Address: bodyAddr, MetadataPointer: "m1"},
		{Address: participantP, MetadataPointer: "m2"},
	})
	s.requireCode(err, dErrors.CodeConflict)

	_, err = s.svc.GetBody(s.ctx, bodyAddr)
	s.requireCode(err, dErrors.CodeNotFound)

	_, err = s.svc.AdmitBodies(s.ctx, authorityAddr, []models.BodyAdmission{
		{Address: bodyAddr, MetadataPointer: "m1"},
		{Address: bodyAddr, MetadataPointer: "m2"},
	})
	s.requireCode(err, dErrors.CodeValidation)

	bodies, err := s.svc.AdmitBodies(s.ctx, authorityAddr, []models.BodyAdmission{
		{Address: bodyAddr, MetadataPointer: "m1"},
		{Address: body2Addr, MetadataPointer: "m2"},
	})
	s.Require().NoError(err)
	s.Len(bodies, 2)

	pending := models.BodyStatusPending
	listed, err := s.svc.ListBodies(s.ctx, &pending)
	s.Require().NoError(err)
	s.Require().Len(listed, 2)
	s.Equal(bodyAddr, listed[0].Address)
	s.Equal(body2Addr, listed[1].Address)
}

func (s *ServiceSuite) TestSelfServiceAdmission() {
	_, err := s.svc.ApplyAsBody(s.ctx, bodyAddr, "meta")
	s.requireCode(err, dErrors.CodeForbidden)

	_, err = s.svc.WhitelistBody(s.ctx, authorityAddr, bodyAddr)
	s.Require().NoError(err)
	_, err = s.svc.WhitelistBody(s.ctx, authorityAddr, bodyAddr)
	s.requireCode(err, dErrors.CodeConflict)

	info, err := s.svc.ResolveRole(s.ctx, bodyAddr)
	s.Require().NoError(err)
	s.Equal(models.RoleNone, info.Role)

	b, err := s.svc.ApplyAsBody(s.ctx, bodyAddr, "meta")
	s.Require().NoError(err)
	s.Equal(models.BodyStatusPending, b.Status)
	s.Equal(models.AdmittedSelfService, b.AdmittedVia)

	_, err = s.svc.ApplyAsBody(s.ctx, bodyAddr, "meta")
	s.requireCode(err, dErrors.CodeConflict)
}

func (s *ServiceSuite) TestAdmissionConsumesWhitelistEntry() {
	l := memory.New()
	svc := New(l)
	_, err := svc.Bootstrap(s.ctx, authorityAddr)
	s.Require().NoError(err)

	whitelisted := func(addr domain.Address) bool {
		var found bool
		err := l.View(s.ctx, func(ctx context.Context, r ledger.Reader) error {
			_, err := store.NewReader(r).Whitelisted(ctx, addr)
			found, err = store.Exists(err)
			return err
		})
		s.Require().NoError(err)
		return found
	}

	for _, addr := range []domain.Address{bodyAddr, body2Addr} {
		_, err = svc.WhitelistBody(s.ctx, authorityAddr, addr)
		s.Require().NoError(err)
		s.Require().True(whitelisted(addr))
	}

	_, err = svc.ApplyAsBody(s.ctx, bodyAddr, "meta")
	s.Require().NoError(err)
	s.False(whitelisted(bodyAddr), "self-service application")

	b, err := svc.AdmitBody(s.ctx, authorityAddr, models.BodyAdmission{Address: body2Addr, MetadataPointer: "meta"})
	s.Require().NoError(err)
	s.Equal(models.AdmittedByAuthority, b.AdmittedVia)
	s.False(whitelisted(body2Addr), "direct admission")
}

func (s *ServiceSuite) TestAdmissionModes() {
	authOnly := New(memory.New(), WithAdmissionMode(models.AdmissionAuthority))
	_, err := authOnly.Bootstrap(s.ctx, authorityAddr)
	s.Require().NoError(err)
	_, err = authOnly.WhitelistBody(s.ctx, authorityAddr, bodyAddr)
	s.requireCode(err, dErrors.CodeForbidden)

	selfOnly := New(memory.New(), WithAdmissionMode(models.AdmissionSelfService))
	_, err = selfOnly.Bootstrap(s.ctx, authorityAddr)
	s.Require().NoError(err)
	_, err = selfOnly.AdmitBody(s.ctx, authorityAddr, models.BodyAdmission{Address: bodyAddr, MetadataPointer: "m"})
	s.requireCode(err, dErrors.CodeForbidden)
}

func (s *ServiceSuite) TestDeactivatedParticipantCannotSubmit() {
	s.registered(participantP)
	p, err := s.svc.DeactivateParticipant(s.ctx, authorityAddr, participantP)
	s.Require().NoError(err)
	s.False(p.Active)
	s.True(p.Registered)

	_, err = s.svc.SubmitCase(s.ctx, participantP, domain.SchemeWastewater)
	s.requireCode(err, dErrors.CodeForbidden)

	_, err = s.svc.DeactivateParticipant(s.ctx, authorityAddr, participantP)
	s.requireCode(err, dErrors.CodeConflict)
	_, err = s.svc.DeactivateParticipant(s.ctx, authorityAddr, participantQ)
	s.requireCode(err, dErrors.CodeNotFound)
}

func (s *ServiceSuite) TestMetadataUpdates() {
	s.verifiedBody(bodyAddr)
	b, err := s.svc.UpdateBodyMetadata(s.ctx, bodyAddr, "meta-new")
	s.Require().NoError(err)
	s.Equal(models.BodyStatusVerified, b.Status)
	s.Equal(domain.ContentID("meta-new"), b.MetadataPointer)

	_, err = s.svc.UpdateBodyMetadata(s.ctx, strangerAddr, "x")
	s.requireCode(err, dErrors.CodeForbidden)

	_, err = s.svc.UpdateParticipantMetadata(s.ctx, participantP, "x")
	s.requireCode(err, dErrors.CodeForbidden)
	s.registered(participantP)
	p, err := s.svc.UpdateParticipantMetadata(s.ctx, participantP, "meta2")
	s.Require().NoError(err)
	s.Equal(domain.ContentID("meta2"), p.MetadataPointer)
}

func (s *ServiceSuite) TestListsAndCounts() {
	s.registered(participantP)
	s.registered(participantQ)
	_, err := s.svc.SubmitCase(s.ctx, participantP, domain.SchemeWastewater)
	s.Require().NoError(err)
	_, err = s.svc.SubmitCase(s.ctx, participantQ, domain.SchemeAirPollution)
	s.Require().NoError(err)
	_, err = s.svc.CancelCase(s.ctx, participantQ)
	s.Require().NoError(err)

	participants, err := s.svc.ListParticipants(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(participants, 2)
	s.Equal(participantP, participants[0].Address)

	n, err := s.svc.CountParticipants(s.ctx)
	s.Require().NoError(err)
	s.Equal(2, n)

	all, err := s.svc.CountCases(s.ctx, models.CaseFilter{})
	s.Require().NoError(err)
	s.Equal(2, all)

	active, err := s.svc.ListCases(s.ctx, models.CaseFilter{ActiveOnly: true})
	s.Require().NoError(err)
	s.Require().Len(active, 1)
	s.Equal(participantP, active[0].Participant)

	q := participantQ
	mine, err := s.svc.ListCases(s.ctx, models.CaseFilter{Participant: &q})
	s.Require().NoError(err)
	s.Require().Len(mine, 1)
	s.Equal(models.CaseStatusCancelled, mine[0].Status())

	s.Len(s.svc.Schemes(), 4)
}

func (s *ServiceSuite) TestAuditLogIsChained() {
	s.verifiedBody(bodyAddr)
	s.registered(participantP)
	_, err := s.svc.SubmitCase(s.ctx, participantP, domain.SchemeWastewater)
	s.Require().NoError(err)

	events, err := s.svc.AuditLog(s.ctx, audit.Filter{})
	s.Require().NoError(err)
	ops := make([]audit.Operation, len(events))
	for i, e := range events {
		ops[i] = e.Operation
	}
	s.Equal([]audit.Operation{
		audit.OpAuthorityEstablished,
		audit.OpBodyAdmitted,
		audit.OpBodyVerified,
		audit.OpParticipantRegistered,
		audit.OpCaseSubmitted,
	}, ops)
	s.Equal(authorityAddr.String(), events[1].Actor)
	s.Equal(s.now, events[1].Timestamp)

	report, err := s.svc.VerifyAuditChain(s.ctx)
	s.Require().NoError(err)
	s.True(report.Valid)
	s.Equal(5, report.Events)
	s.Equal(uint64(5), report.HeadSeq)

	page, err := s.svc.AuditLog(s.ctx, audit.Filter{AfterSeq: 3, Limit: 1})
	s.Require().NoError(err)
	s.Require().Len(page, 1)
	s.Equal(uint64(4), page[0].Seq)
}

func (s *ServiceSuite) TestFailedOperationLeavesNoEvent() {
	_, err := s.svc.AdmitBody(s.ctx, strangerAddr, models.BodyAdmission{Address: bodyAddr, MetadataPointer: "m"})
	s.Require().Error(err)
	report, err := s.svc.VerifyAuditChain(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, report.Events)
}

func (s *ServiceSuite) TestConcurrentSubmitsKeepOneActiveCase() {
	s.registered(participantP)

	const attempts = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.svc.SubmitCase(s.ctx, participantP, domain.SchemeWastewater); err == nil {
				mu.Lock()
				success++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	s.Equal(1, success)

	active, err := s.svc.ListCases(s.ctx, models.CaseFilter{ActiveOnly: true})
	s.Require().NoError(err)
	s.Len(active, 1)
}

func (s *ServiceSuite) TestCaseIDsAreDistinct() {
	s.verifiedBody(bodyAddr)
	s.registered(participantP)
	seen := map[domain.CaseID]bool{}
	for range 10 {
		c, err := s.svc.SubmitCase(s.ctx, participantP, domain.SchemeWastewater)
		s.Require().NoError(err)
		s.False(seen[c.ID])
		seen[c.ID] = true
		_, err = s.svc.CancelCase(s.ctx, participantP)
		s.Require().NoError(err)
	}
}

func (s *ServiceSuite) TestInjectedCaseIDCollisionIsRejected() {
	fixed := domain.DeriveCaseID("tx-1")
	svc := New(memory.New(), WithCaseIDGenerator(func(context.Context) domain.CaseID { return fixed }))
	_, err := svc.Bootstrap(s.ctx, authorityAddr)
	s.Require().NoError(err)
	_, err = svc.RegisterParticipant(s.ctx, participantP, "m")
	s.Require().NoError(err)
	_, err = svc.RegisterParticipant(s.ctx, participantQ, "m")
	s.Require().NoError(err)

	c, err := svc.SubmitCase(s.ctx, participantP, domain.SchemeWastewater)
	s.Require().NoError(err)
	s.Equal(fixed, c.ID)

	_, err = svc.SubmitCase(s.ctx, participantQ, domain.SchemeWastewater)
	s.requireCode(err, dErrors.CodeConflict)
}

func (s *ServiceSuite) TestAwaitBodyStatus() {
	_, err := s.svc.AdmitBody(s.ctx, authorityAddr, models.BodyAdmission{Address: bodyAddr, MetadataPointer: "m"})
	s.Require().NoError(err)

	go func() {
		time.Sleep(20 * time.Millisecond)
		_, _ = s.svc.VerifyBody(s.ctx, authorityAddr, bodyAddr, "lic")
	}()

	ctx, cancel := context.WithTimeout(s.ctx, 2*time.Second)
	defer cancel()
	b, err := s.svc.AwaitBodyStatus(ctx, bodyAddr, models.BodyStatusVerified, 5*time.Millisecond)
	s.Require().NoError(err)
	s.True(b.IsVerified())

	short, cancelShort := context.WithTimeout(s.ctx, 20*time.Millisecond)
	defer cancelShort()
	_, err = s.svc.AwaitBodyStatus(short, body2Addr, models.BodyStatusVerified, 5*time.Millisecond)
	s.requireCode(err, dErrors.CodeTimeout)
}

func (s *ServiceSuite) TestTimeoutBeforeSubmit() {
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()
	_, err := s.svc.RegisterParticipant(ctx, participantP, "m")
	s.requireCode(err, dErrors.CodeTimeout)

	status, err := s.svc.ParticipantStatus(s.ctx, participantP)
	s.Require().NoError(err)
	s.False(status.Registered)
}
