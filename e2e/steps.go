package e2e

import (
	"github.com/cucumber/godog"

	"certify/e2e/steps/common"
	"certify/e2e/steps/registry"
)

// RegisterSteps registers all step definitions from modular packages
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	// Register common steps (actors, generic requests, assertions)
	common.RegisterSteps(ctx, tc)

	// Register registry workflow steps
	registry.RegisterSteps(ctx, tc)
}
