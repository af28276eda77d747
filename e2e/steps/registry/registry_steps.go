package registry

import (
	"context"
	"fmt"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	Do(actor, method, path string, body any) error
	GetLastStatusCode() int
	GetLastResponseBody() []byte
	GetResponseField(field string) (any, error)
	Address(actor string) string
	Pointer(name string) string
	Save(name, value string)
	Saved(name string) (string, error)
}

// RegisterSteps registers registry workflow step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &registrySteps{tc: tc}

	// Setup
	ctx.Step(`^"([^"]*)" is a verified certification body$`, steps.verifiedBody)
	ctx.Step(`^"([^"]*)" is a pending certification body$`, steps.pendingBody)

	// Participants
	ctx.Step(`^"([^"]*)" registers as a participant with metadata "([^"]*)"$`, steps.registerParticipant)
	ctx.Step(`^"([^"]*)" submits a case for scheme "([^"]*)"$`, steps.submitCase)
	ctx.Step(`^I save the case id as "([^"]*)"$`, steps.saveCaseID)
	ctx.Step(`^the participant status of "([^"]*)" has active case "([^"]*)"$`, steps.activeCaseIs)
	ctx.Step(`^the participant status of "([^"]*)" has no active case$`, steps.noActiveCase)

	// Grading
	ctx.Step(`^"([^"]*)" grades case "([^"]*)" as passed with scores (\d+), (\d+), (\d+) and certificate "([^"]*)"$`, steps.gradePass)
	ctx.Step(`^case "([^"]*)" is verifiable by certificate "([^"]*)"$`, steps.verifiableByCertificate)

	// Bodies
	ctx.Step(`^"([^"]*)" rejects "([^"]*)" with reason "([^"]*)"$`, steps.rejectBody)
	ctx.Step(`^"([^"]*)" verifies "([^"]*)" with license "([^"]*)"$`, steps.verifyBody)
	ctx.Step(`^I look up body "([^"]*)"$`, steps.getBody)

	// Roles
	ctx.Step(`^I resolve the role of "([^"]*)"$`, steps.resolveRole)
}

type registrySteps struct {
	tc TestContext
}

func (s *registrySteps) expect(status int) error {
	if got := s.tc.GetLastStatusCode(); got != status {
		return fmt.Errorf("expected status %d, got %d: %s", status, got, s.tc.GetLastResponseBody())
	}
	return nil
}

func (s *registrySteps) admit(actor string) error {
	err := s.tc.Do("the authority", "POST", "/bodies", map[string]string{
		"address":          s.tc.Address(actor),
		"metadata_pointer": s.tc.Pointer("meta-" + actor),
	})
	if err != nil {
		return err
	}
	return s.expect(201)
}

func (s *registrySteps) pendingBody(_ context.Context, actor string) error {
	return s.admit(actor)
}

func (s *registrySteps) verifiedBody(ctx context.Context, actor string) error {
	if err := s.admit(actor); err != nil {
		return err
	}
	if err := s.verifyBody(ctx, "the authority", actor, "license"); err != nil {
		return err
	}
	return s.expect(200)
}

func (s *registrySteps) registerParticipant(_ context.Context, actor, metadata string) error {
	return s.tc.Do(actor, "POST", "/participants", map[string]string{
		"metadata_pointer": s.tc.Pointer(metadata),
	})
}

func (s *registrySteps) submitCase(_ context.Context, actor, scheme string) error {
	return s.tc.Do(actor, "POST", "/cases", map[string]string{"scheme": scheme})
}

func (s *registrySteps) saveCaseID(_ context.Context, name string) error {
	id, err := s.tc.GetResponseField("id")
	if err != nil {
		return err
	}
	s.tc.Save(name, fmt.Sprint(id))
	return nil
}

func (s *registrySteps) status(actor string) error {
	if err := s.tc.Do("", "GET", "/participants/"+s.tc.Address(actor)+"/status", nil); err != nil {
		return err
	}
	return s.expect(200)
}

func (s *registrySteps) activeCaseIs(_ context.Context, actor, name string) error {
	want, err := s.tc.Saved(name)
	if err != nil {
		return err
	}
	if err := s.status(actor); err != nil {
		return err
	}
	got, err := s.tc.GetResponseField("active_case_id")
	if err != nil {
		return err
	}
	if fmt.Sprint(got) != want {
		return fmt.Errorf("expected active case %s, got %v", want, got)
	}
	return nil
}

func (s *registrySteps) noActiveCase(_ context.Context, actor string) error {
	if err := s.status(actor); err != nil {
		return err
	}
	if got, err := s.tc.GetResponseField("active_case_id"); err == nil && got != nil {
		return fmt.Errorf("expected no active case, got %v", got)
	}
	return nil
}

func (s *registrySteps) gradePass(_ context.Context, actor, name string, written, practical, interview int, certificate string) error {
	id, err := s.tc.Saved(name)
	if err != nil {
		return err
	}
	return s.tc.Do(actor, "POST", "/cases/"+id+"/pass", map[string]any{
		"written":             written,
		"practical":           practical,
		"interview":           interview,
		"certificate_pointer": s.tc.Pointer(certificate),
	})
}

func (s *registrySteps) verifiableByCertificate(_ context.Context, name, certificate string) error {
	id, err := s.tc.Saved(name)
	if err != nil {
		return err
	}
	if err := s.tc.Do("", "GET", "/verify/certificates/"+s.tc.Pointer(certificate), nil); err != nil {
		return err
	}
	if err := s.expect(200); err != nil {
		return err
	}
	found, err := s.tc.GetResponseField("found")
	if err != nil {
		return err
	}
	got, err := s.tc.GetResponseField("case_id")
	if err != nil {
		return err
	}
	if found != true || fmt.Sprint(got) != id {
		return fmt.Errorf("expected certificate to resolve to %s, got found=%v case=%v", id, found, got)
	}
	return nil
}

func (s *registrySteps) rejectBody(_ context.Context, actor, target, reason string) error {
	return s.tc.Do(actor, "POST", "/bodies/"+s.tc.Address(target)+"/reject", map[string]string{"reason": reason})
}

func (s *registrySteps) verifyBody(_ context.Context, actor, target, license string) error {
	return s.tc.Do(actor, "POST", "/bodies/"+s.tc.Address(target)+"/verify", map[string]string{
		"license_pointer": s.tc.Pointer(license),
	})
}

func (s *registrySteps) getBody(_ context.Context, target string) error {
	return s.tc.Do("", "GET", "/bodies/"+s.tc.Address(target), nil)
}

func (s *registrySteps) resolveRole(_ context.Context, actor string) error {
	return s.tc.Do("", "GET", "/roles/"+s.tc.Address(actor), nil)
}
