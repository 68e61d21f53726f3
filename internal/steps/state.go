// Package steps implements the Gherkin step library: module requests against
// the service, response assertions and audit-log checks. Every step is a
// method on State, which carries the run's shared context.
package steps

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/wess-dev/wess-e2e/internal/auditlog"
	"github.com/wess-dev/wess-e2e/internal/client"
	"github.com/wess-dev/wess-e2e/internal/fixture"
)

var (
	// ErrUnknownAlias is returned when a step references an alias no earlier
	// step captured.
	ErrUnknownAlias = errors.New("unknown alias")
	// ErrMissingID is returned when a response carries no message.id.
	ErrMissingID = errors.New("response has no message.id")
	// ErrNotArray is returned when invocation args are not a JSON array.
	ErrNotArray = errors.New("args must be a JSON array")
	// ErrNoResponse is returned by assertions that run before any request.
	ErrNoResponse = errors.New("no request has been sent")
	// ErrNoModule is returned by legacy request steps when no inline module
	// was defined in the scenario.
	ErrNoModule = errors.New("no inline module defined")
)

// Aliases maps scenario names to service-assigned module IDs.
type Aliases map[string]string

// Resolve returns the ID saved under alias.
func (a Aliases) Resolve(alias string) (string, error) {
	id, ok := a[alias]
	if !ok {
		return "", fmt.Errorf("%w %q", ErrUnknownAlias, alias)
	}
	return id, nil
}

// Save binds alias to id, replacing any earlier binding.
func (a Aliases) Save(alias, id string) {
	a[alias] = id
}

// State is the context shared by every step of a run. Aliases live for the
// whole run; fixtures and the inline module are dropped between scenarios.
type State struct {
	Client       *client.Client
	Fixtures     *fixture.Registry
	Oracle       *auditlog.Oracle
	Aliases      Aliases
	LastResponse *client.Response

	logger  *slog.Logger
	pending *client.LegacyModule
}

// NewState wires the step library to a service client, a fixture registry and
// an audit-log oracle.
func NewState(c *client.Client, fixtures *fixture.Registry, oracle *auditlog.Oracle, logger *slog.Logger) *State {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &State{
		Client:   c,
		Fixtures: fixtures,
		Oracle:   oracle,
		Aliases:  make(Aliases),
		logger:   logger,
	}
}

// Reset drops scenario-scoped state.
func (s *State) Reset() {
	s.Fixtures.Reset()
	s.pending = nil
	s.LastResponse = nil
}

func (s *State) response() (*client.Response, error) {
	if s.LastResponse == nil {
		return nil, ErrNoResponse
	}
	return s.LastResponse, nil
}

// ref resolves an alias, falling back to the literal value. The inline-module
// steps accept raw IDs as well as aliases.
func (s *State) ref(v string) string {
	if id, ok := s.Aliases[v]; ok {
		return id
	}
	return v
}
