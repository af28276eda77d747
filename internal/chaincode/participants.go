package chaincode

import (
	"github.com/hyperledger/fabric-contract-api-go/contractapi"

	"certify/pkg/domain"
)

func (c *Contract) RegisterParticipant(tctx contractapi.TransactionContextInterface, metadataPointer string) (string, error) {
	return c.write(tctx, func(inv *invocation, who domain.Address) (any, error) {
		p, err := pointer(metadataPointer, "metadataPointer")
		if err != nil {
			return nil, err
		}
		return inv.svc.RegisterParticipant(inv.ctx, who, p)
	})
}

func (c *Contract) UpdateParticipantMetadata(tctx contractapi.TransactionContextInterface, metadataPointer string) (string, error) {
	return c.write(tctx, func(inv *invocation, who domain.Address) (any, error) {
		p, err := pointer(metadataPointer, "metadataPointer")
		if err != nil {
			return nil, err
		}
		return inv.svc.UpdateParticipantMetadata(inv.ctx, who, p)
	})
}

func (c *Contract) DeactivateParticipant(tctx contractapi.TransactionContextInterface, account string) (string, error) {
	return c.write(tctx, func(inv *invocation, who domain.Address) (any, error) {
		a, err := address(account, "account")
		if err != nil {
			return nil, err
		}
		return inv.svc.DeactivateParticipant(inv.ctx, who, a)
	})
}

func (c *Contract) GetParticipant(tctx contractapi.TransactionContextInterface, account string) (string, error) {
	return c.read(tctx, func(inv *invocation) (any, error) {
		a, err := address(account, "account")
		if err != nil {
			return nil, err
		}
		return inv.svc.GetParticipant(inv.ctx, a)
	})
}

func (c *Contract) GetParticipantStatus(tctx contractapi.TransactionContextInterface, account string) (string, error) {
	return c.read(tctx, func(inv *invocation) (any, error) {
		a, err := address(account, "account")
		if err != nil {
			return nil, err
		}
		return inv.svc.ParticipantStatus(inv.ctx, a)
	})
}

func (c *Contract) GetParticipantHistory(tctx contractapi.TransactionContextInterface, account string) (string, error) {
	return c.read(tctx, func(inv *invocation) (any, error) {
		a, err := address(account, "account")
		if err != nil {
			return nil, err
		}
		ids, err := inv.svc.ParticipantHistory(inv.ctx, a)
		if err != nil {
			return nil, err
		}
		if ids == nil {
			ids = []domain.CaseID{}
		}
		return ids, nil
	})
}

func (c *Contract) ListParticipants(tctx contractapi.TransactionContextInterface) (string, error) {
	return c.read(tctx, func(inv *invocation) (any, error) {
		return inv.svc.ListParticipants(inv.ctx)
	})
}
