package steps

import (
	"testing"

	"github.com/cucumber/godog"
)

func TestFeatures(t *testing.T) {
	s, _ := newState(t)

	suite := godog.TestSuite{
		Name:                "wess-steps",
		ScenarioInitializer: s.InitializeScenario,
		Options: &godog.Options{
			Format:      "pretty",
			Paths:       []string{"testdata"},
			Strict:      true,
			Concurrency: 1,
			TestingT:    t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
