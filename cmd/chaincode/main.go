package main

import (
	"os"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"

	"certify/internal/chaincode"
	"certify/internal/platform/logger"
	"certify/internal/registry/models"
)

func main() {
	log := logger.New(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))

	mode, err := models.ParseAdmissionMode(os.Getenv("ADMISSION_MODE"))
	if err != nil {
		log.Error("invalid ADMISSION_MODE", "error", err)
		os.Exit(1)
	}

	cc, err := contractapi.NewChaincode(chaincode.NewContract(mode, log))
	if err != nil {
		log.Error("create certify chaincode", "error", err)
		os.Exit(1)
	}
	if err := cc.Start(); err != nil {
		log.Error("start certify chaincode", "error", err)
		os.Exit(1)
	}
}
