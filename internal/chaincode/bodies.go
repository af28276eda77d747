package chaincode

import (
	"encoding/json"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"

	"certify/internal/registry/models"
	"certify/pkg/domain"
	dErrors "certify/pkg/domain-errors"
)

func (c *Contract) AdmitBody(tctx contractapi.TransactionContextInterface, account, metadataPointer string) (string, error) {
	return c.write(tctx, func(inv *invocation, who domain.Address) (any, error) {
		a, err := address(account, "account")
		if err != nil {
			return nil, err
		}
		p, err := pointer(metadataPointer, "metadataPointer")
		if err != nil {
			return nil, err
		}
		return inv.svc.AdmitBody(inv.ctx, who, models.BodyAdmission{Address: a, MetadataPointer: p})
	})
}

type admission struct {
	Address         string `json:"address"`
	MetadataPointer string `json:"metadata_pointer"`
}

// AdmitBodies takes a JSON array of {address, metadata_pointer}.
func (c *Contract) AdmitBodies(tctx contractapi.TransactionContextInterface, batch string) (string, error) {
	return c.write(tctx, func(inv *invocation, who domain.Address) (any, error) {
		var items []admission
		if err := json.Unmarshal([]byte(batch), &items); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "batch must be a JSON array")
		}
		reqs := make([]models.BodyAdmission, len(items))
		for i, it := range items {
			a, err := address(it.Address, "address")
			if err != nil {
				return nil, err
			}
			p, err := pointer(it.MetadataPointer, "metadata_pointer")
			if err != nil {
				return nil, err
			}
			reqs[i] = models.BodyAdmission{Address: a, MetadataPointer: p}
		}
		return inv.svc.AdmitBodies(inv.ctx, who, reqs)
	})
}

func (c *Contract) WhitelistBody(tctx contractapi.TransactionContextInterface, account string) (string, error) {
	return c.write(tctx, func(inv *invocation, who domain.Address) (any, error) {
		a, err := address(account, "account")
		if err != nil {
			return nil, err
		}
		return inv.svc.WhitelistBody(inv.ctx, who, a)
	})
}

func (c *Contract) ApplyAsBody(tctx contractapi.TransactionContextInterface, metadataPointer string) (string, error) {
	return c.write(tctx, func(inv *invocation, who domain.Address) (any, error) {
		p, err := pointer(metadataPointer, "metadataPointer")
		if err != nil {
			return nil, err
		}
		return inv.svc.ApplyAsBody(inv.ctx, who, p)
	})
}

func (c *Contract) VerifyBody(tctx contractapi.TransactionContextInterface, account, licensePointer string) (string, error) {
	return c.write(tctx, func(inv *invocation, who domain.Address) (any, error) {
		a, err := address(account, "account")
		if err != nil {
			return nil, err
		}
		p, err := pointer(licensePointer, "licensePointer")
		if err != nil {
			return nil, err
		}
		return inv.svc.VerifyBody(inv.ctx, who, a, p)
	})
}

func (c *Contract) RejectBody(tctx contractapi.TransactionContextInterface, account, reason string) (string, error) {
	return c.write(tctx, func(inv *invocation, who domain.Address) (any, error) {
		a, err := address(account, "account")
		if err != nil {
			return nil, err
		}
		return inv.svc.RejectBody(inv.ctx, who, a, reason)
	})
}

func (c *Contract) RemoveBody(tctx contractapi.TransactionContextInterface, account string) (string, error) {
	return c.write(tctx, func(inv *invocation, who domain.Address) (any, error) {
		a, err := address(account, "account")
		if err != nil {
			return nil, err
		}
		return nil, inv.svc.RemoveBody(inv.ctx, who, a)
	})
}

func (c *Contract) UpdateBodyMetadata(tctx contractapi.TransactionContextInterface, metadataPointer string) (string, error) {
	return c.write(tctx, func(inv *invocation, who domain.Address) (any, error) {
		p, err := pointer(metadataPointer, "metadataPointer")
		if err != nil {
			return nil, err
		}
		return inv.svc.UpdateBodyMetadata(inv.ctx, who, p)
	})
}

func (c *Contract) GetBody(tctx contractapi.TransactionContextInterface, account string) (string, error) {
	return c.read(tctx, func(inv *invocation) (any, error) {
		a, err := address(account, "account")
		if err != nil {
			return nil, err
		}
		return inv.svc.GetBody(inv.ctx, a)
	})
}

// ListBodies filters by status when status is non-empty.
func (c *Contract) ListBodies(tctx contractapi.TransactionContextInterface, status string) (string, error) {
	return c.read(tctx, func(inv *invocation) (any, error) {
		var filter *models.BodyStatus
		if status != "" {
			st, err := models.ParseBodyStatus(status)
			if err != nil {
				return nil, err
			}
			filter = &st
		}
		return inv.svc.ListBodies(inv.ctx, filter)
	})
}
