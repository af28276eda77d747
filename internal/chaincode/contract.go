// Package chaincode hosts the registry service as a Fabric contract. Each
// invocation binds a fresh service to the invocation's stub, so all state
// lives in world state and every call is one ledger transaction.
package chaincode

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"

	"certify/internal/ledger/fabric"
	"certify/internal/registry/models"
	"certify/internal/registry/service"
	"certify/pkg/domain"
	dErrors "certify/pkg/domain-errors"
	"certify/pkg/requestcontext"
)

// AddressAttribute is the enrollment attribute holding the caller's account.
const AddressAttribute = "address"

// Contract is the certify chaincode. Results are JSON strings.
type Contract struct {
	contractapi.Contract

	Mode   models.AdmissionMode
	Logger *slog.Logger
}

func NewContract(mode models.AdmissionMode, logger *slog.Logger) *Contract {
	c := &Contract{Mode: mode, Logger: logger}
	c.Name = "certify"
	return c
}

type invocation struct {
	ctx context.Context
	svc *service.Service
}

// bind builds the per-invocation service. Time comes from the transaction
// timestamp and case ids from the transaction id, so every endorser computes
// the same result.
func (c *Contract) bind(tctx contractapi.TransactionContextInterface) (*invocation, error) {
	stub := tctx.GetStub()
	ts, err := stub.GetTxTimestamp()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "read transaction timestamp")
	}
	txID := stub.GetTxID()

	ctx := requestcontext.WithTime(context.Background(), ts.AsTime())
	ctx = requestcontext.WithRequestID(ctx, txID)

	mode := c.Mode
	if mode == "" {
		mode = models.AdmissionBoth
	}
	svc := service.New(fabric.New(stub, fabric.WithChaincodeEvents()),
		service.WithLogger(c.Logger),
		service.WithAdmissionMode(mode),
		service.WithCaseIDGenerator(func(context.Context) domain.CaseID {
			return domain.DeriveCaseID(txID)
		}),
	)
	return &invocation{ctx: ctx, svc: svc}, nil
}

// caller reads the account address from the client certificate.
func caller(tctx contractapi.TransactionContextInterface) (domain.Address, error) {
	raw, found, err := tctx.GetClientIdentity().GetAttributeValue(AddressAttribute)
	if err != nil {
		return domain.Address{}, dErrors.Wrap(err, dErrors.CodeUnauthorized, "read caller identity")
	}
	if !found || raw == "" {
		return domain.Address{}, dErrors.New(dErrors.CodeUnauthorized, "client identity has no address attribute")
	}
	a, err := domain.ParseAddress(raw)
	if err != nil {
		return domain.Address{}, dErrors.Wrap(err, dErrors.CodeUnauthorized, "client address attribute is invalid")
	}
	return a, nil
}

func (c *Contract) write(tctx contractapi.TransactionContextInterface, fn func(inv *invocation, who domain.Address) (any, error)) (string, error) {
	who, err := caller(tctx)
	if err != nil {
		return "", err
	}
	inv, err := c.bind(tctx)
	if err != nil {
		return "", err
	}
	inv.ctx = requestcontext.WithCaller(inv.ctx, who)
	out, err := fn(inv, who)
	if err != nil {
		return "", err
	}
	return encode(out)
}

func (c *Contract) read(tctx contractapi.TransactionContextInterface, fn func(inv *invocation) (any, error)) (string, error) {
	inv, err := c.bind(tctx)
	if err != nil {
		return "", err
	}
	out, err := fn(inv)
	if err != nil {
		return "", err
	}
	return encode(out)
}

func encode(v any) (string, error) {
	if v == nil {
		return "", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "encode result")
	}
	return string(b), nil
}

func address(raw, field string) (domain.Address, error) {
	a, err := domain.ParseAddress(raw)
	if err != nil {
		return domain.Address{}, dErrors.Wrap(err, dErrors.CodeValidation, field+" is not a valid address")
	}
	return a, nil
}

func pointer(raw, field string) (domain.ContentID, error) {
	p, err := domain.ParseContentID(raw)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeValidation, field+" is not a valid content id")
	}
	return p, nil
}

// InitLedger establishes the caller as the Authority.
func (c *Contract) InitLedger(tctx contractapi.TransactionContextInterface) (string, error) {
	return c.write(tctx, func(inv *invocation, who domain.Address) (any, error) {
		return inv.svc.Bootstrap(inv.ctx, who)
	})
}

func (c *Contract) GetAuthority(tctx contractapi.TransactionContextInterface) (string, error) {
	return c.read(tctx, func(inv *invocation) (any, error) {
		return inv.svc.Authority(inv.ctx)
	})
}

func (c *Contract) ResolveRole(tctx contractapi.TransactionContextInterface, account string) (string, error) {
	return c.read(tctx, func(inv *invocation) (any, error) {
		a, err := address(account, "account")
		if err != nil {
			return nil, err
		}
		return inv.svc.ResolveRole(inv.ctx, a)
	})
}

func (c *Contract) Schemes(tctx contractapi.TransactionContextInterface) (string, error) {
	return c.read(tctx, func(inv *invocation) (any, error) {
		return inv.svc.Schemes(), nil
	})
}
