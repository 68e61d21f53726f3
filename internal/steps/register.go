package steps

import (
	"context"

	"github.com/cucumber/godog"
)

// InitializeScenario registers every step on sc and resets scenario-scoped
// state before each scenario. Pass it as godog.TestSuite.ScenarioInitializer.
func (s *State) InitializeScenario(sc *godog.ScenarioContext) {
	sc.Before(func(ctx context.Context, scn *godog.Scenario) (context.Context, error) {
		s.Reset()
		s.logger.Debug("scenario", "name", scn.Name, "uri", scn.Uri)
		return ctx, nil
	})

	sc.Step(`^the following WasmModules are available$`, s.defineModules)

	sc.Step(`^sending the wasm "([^"]*)" to create a new WasmModule$`, s.createModule)
	sc.Step(`^sending the wasm "([^"]*)" to update the ID "([^"]*)"$`, s.updateModule)
	sc.Step(`^sending the ID "([^"]*)" to delete$`, s.deleteModule)
	sc.Step(`^sending the ID "([^"]*)" to read$`, s.readModule)
	sc.Step(`^sending the ID "([^"]*)" to run with args "(.*)"$`, s.runModule)
	sc.Step(`^sending the ID "([^"]*)" to run with args$`, s.runModuleDoc)

	sc.Step(`^a WebAssembly module called "([^"]*)" with function "([^"]*)", with "([^"]*)", with this args$`, s.defineInline)
	sc.Step(`^I create the module$`, s.createInline)
	sc.Step(`^update module "([^"]*)"$`, s.updateInline)
	sc.Step(`^I remove module "([^"]*)"$`, s.removeModule)
	sc.Step(`^run module "([^"]*)" with args$`, s.runInline)

	sc.Step(`^the response status code (?:is|should be) "([^"]*)"$`, s.statusIs)
	sc.Step(`^the response body matches the default UUID$`, s.bodyIsUUID)
	sc.Step(`^the ID is saved in "([^"]*)"$`, s.saveID)
	sc.Step(`^(?:the response result is|should response with) "([^"]*)"$`, s.resultIs)
	sc.Step(`^the response module matches the wasm "([^"]*)"$`, s.moduleMatches)
	sc.Step(`^the response field "([^"]*)" is "(.*)"$`, s.fieldIs)

	sc.Step(`^Wess must log the "([^"]*)" operation with the ID "([^"]*)"$`, s.operationLogged)
	sc.Step(`^log must matches the pattern "(.*)"$`, s.logMatches)
}
