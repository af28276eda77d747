package chaincode

import (
	"encoding/json"
	"strings"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"

	"certify/internal/registry/models"
	"certify/internal/registry/service"
	"certify/pkg/domain"
	dErrors "certify/pkg/domain-errors"
	"certify/pkg/platform/audit"
)

func caseID(raw string) (domain.CaseID, error) {
	id, err := domain.ParseCaseID(raw)
	if err != nil {
		return domain.CaseID{}, dErrors.Wrap(err, dErrors.CodeValidation, "caseId is not a valid case id")
	}
	return id, nil
}

// SubmitCase accepts a scheme code or its catalog index.
func (c *Contract) SubmitCase(tctx contractapi.TransactionContextInterface, scheme string) (string, error) {
	return c.write(tctx, func(inv *invocation, who domain.Address) (any, error) {
		s, err := domain.ParseScheme(scheme)
		if err != nil {
			return nil, err
		}
		return inv.svc.SubmitCase(inv.ctx, who, s)
	})
}

func (c *Contract) CancelCase(tctx contractapi.TransactionContextInterface) (string, error) {
	return c.write(tctx, func(inv *invocation, who domain.Address) (any, error) {
		return inv.svc.CancelCase(inv.ctx, who)
	})
}

// GradePass records scores. certificatePointer may be empty and attached later.
func (c *Contract) GradePass(tctx contractapi.TransactionContextInterface, id string, written, practical, interview int, certificatePointer string) (string, error) {
	return c.write(tctx, func(inv *invocation, who domain.Address) (any, error) {
		cid, err := caseID(id)
		if err != nil {
			return nil, err
		}
		in := service.GradeInput{Scores: models.Scores{Written: written, Practical: practical, Interview: interview}}
		if certificatePointer != "" {
			if in.CertificatePointer, err = pointer(certificatePointer, "certificatePointer"); err != nil {
				return nil, err
			}
		}
		return inv.svc.GradePass(inv.ctx, who, cid, in)
	})
}

// GradeFail records a failure. scores is either empty or a JSON object with
// written, practical and interview.
func (c *Contract) GradeFail(tctx contractapi.TransactionContextInterface, id, reason, scores string) (string, error) {
	return c.write(tctx, func(inv *invocation, who domain.Address) (any, error) {
		cid, err := caseID(id)
		if err != nil {
			return nil, err
		}
		in := service.FailInput{Reason: reason}
		if strings.TrimSpace(scores) != "" {
			var parsed models.Scores
			if err := json.Unmarshal([]byte(scores), &parsed); err != nil {
				return nil, dErrors.Wrap(err, dErrors.CodeValidation, "scores must be a JSON object")
			}
			in.Scores = &parsed
		}
		return inv.svc.GradeFail(inv.ctx, who, cid, in)
	})
}

func (c *Contract) AttachCertificate(tctx contractapi.TransactionContextInterface, id, certificatePointer string) (string, error) {
	return c.write(tctx, func(inv *invocation, who domain.Address) (any, error) {
		cid, err := caseID(id)
		if err != nil {
			return nil, err
		}
		p, err := pointer(certificatePointer, "certificatePointer")
		if err != nil {
			return nil, err
		}
		return inv.svc.AttachCertificate(inv.ctx, who, cid, p)
	})
}

func (c *Contract) GetCaseDetail(tctx contractapi.TransactionContextInterface, id string) (string, error) {
	return c.read(tctx, func(inv *invocation) (any, error) {
		cid, err := caseID(id)
		if err != nil {
			return nil, err
		}
		return inv.svc.GetCase(inv.ctx, cid)
	})
}

func (c *Contract) VerifyCase(tctx contractapi.TransactionContextInterface, id string) (string, error) {
	return c.read(tctx, func(inv *invocation) (any, error) {
		cid, err := caseID(id)
		if err != nil {
			return nil, err
		}
		return inv.svc.VerifyCase(inv.ctx, cid)
	})
}

type certificateVerification struct {
	Found  bool           `json:"found"`
	CaseID *domain.CaseID `json:"case_id,omitempty"`
}

func (c *Contract) VerifyCertificate(tctx contractapi.TransactionContextInterface, certificatePointer string) (string, error) {
	return c.read(tctx, func(inv *invocation) (any, error) {
		p, err := pointer(certificatePointer, "certificatePointer")
		if err != nil {
			return nil, err
		}
		found, id, err := inv.svc.VerifyByCertificate(inv.ctx, p)
		if err != nil {
			return nil, err
		}
		out := certificateVerification{Found: found}
		if found {
			out.CaseID = &id
		}
		return out, nil
	})
}

// ListCases filters by participant when account is non-empty.
func (c *Contract) ListCases(tctx contractapi.TransactionContextInterface, account string, activeOnly bool) (string, error) {
	return c.read(tctx, func(inv *invocation) (any, error) {
		filter := models.CaseFilter{ActiveOnly: activeOnly}
		if account != "" {
			a, err := address(account, "account")
			if err != nil {
				return nil, err
			}
			filter.Participant = &a
		}
		return inv.svc.ListCases(inv.ctx, filter)
	})
}

func (c *Contract) AuditLog(tctx contractapi.TransactionContextInterface, afterSeq uint64, limit int) (string, error) {
	return c.read(tctx, func(inv *invocation) (any, error) {
		return inv.svc.AuditLog(inv.ctx, audit.Filter{AfterSeq: afterSeq, Limit: limit})
	})
}

func (c *Contract) VerifyAuditChain(tctx contractapi.TransactionContextInterface) (string, error) {
	return c.read(tctx, func(inv *invocation) (any, error) {
		return inv.svc.VerifyAuditChain(inv.ctx)
	})
}
