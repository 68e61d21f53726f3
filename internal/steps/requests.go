package steps

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cucumber/godog"

	"github.com/wess-dev/wess-e2e/internal/client"
	"github.com/wess-dev/wess-e2e/internal/fixture"
)

func moduleRequest(w fixture.Wasm) client.ModuleRequest {
	return client.ModuleRequest{
		Wasm: client.Bytes(w.Bytes),
		Metadata: client.Metadata{
			FunctionName: w.FunctionName,
			ReturnType:   w.ReturnType,
			Args:         w.Args,
		},
	}
}

// record stores resp as the last response. A failed request leaves none.
func (s *State) record(resp *client.Response, err error) error {
	if err != nil {
		s.LastResponse = nil
		return err
	}
	s.logger.Debug("response", "status", resp.StatusCode, "body", string(resp.Body))
	s.LastResponse = resp
	return nil
}

func (s *State) createModule(ctx context.Context, name string) error {
	w, err := s.Fixtures.Get(name)
	if err != nil {
		return err
	}
	return s.record(s.Client.Create(ctx, moduleRequest(w)))
}

func (s *State) updateModule(ctx context.Context, name, alias string) error {
	w, err := s.Fixtures.Get(name)
	if err != nil {
		return err
	}
	id, err := s.Aliases.Resolve(alias)
	if err != nil {
		return err
	}
	return s.record(s.Client.Update(ctx, id, moduleRequest(w)))
}

func (s *State) deleteModule(ctx context.Context, alias string) error {
	id, err := s.Aliases.Resolve(alias)
	if err != nil {
		return err
	}
	return s.record(s.Client.Delete(ctx, id))
}

func (s *State) readModule(ctx context.Context, alias string) error {
	id, err := s.Aliases.Resolve(alias)
	if err != nil {
		return err
	}
	return s.record(s.Client.Read(ctx, id))
}

func (s *State) runModule(ctx context.Context, alias, args string) error {
	id, err := s.Aliases.Resolve(alias)
	if err != nil {
		return err
	}
	raw, err := argsArray(args)
	if err != nil {
		return err
	}
	return s.record(s.Client.Invoke(ctx, id, raw))
}

func (s *State) runModuleDoc(ctx context.Context, alias string, doc *godog.DocString) error {
	return s.runModule(ctx, alias, doc.Content)
}

// argsArray checks that text is a JSON array and returns it untouched.
func argsArray(text string) (json.RawMessage, error) {
	text = strings.TrimSpace(text)
	var arr []json.RawMessage
	if err := json.Unmarshal([]byte(text), &arr); err != nil || arr == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotArray, text)
	}
	return json.RawMessage(text), nil
}

// defineInline holds a module defined by name plus an args doc string until a
// legacy request step sends it.
func (s *State) defineInline(name, function, returnType string, doc *godog.DocString) error {
	b, err := s.Fixtures.Bytes(name)
	if err != nil {
		return err
	}
	args := strings.TrimSpace(doc.Content)
	if !json.Valid([]byte(args)) {
		return fmt.Errorf("module %q: args are not valid JSON: %s", name, args)
	}
	s.pending = &client.LegacyModule{
		Wasm:       client.Bytes(b),
		Func:       function,
		ReturnType: returnType,
		Args:       json.RawMessage(args),
	}
	return nil
}

func (s *State) inline() (*client.LegacyModule, error) {
	if s.pending == nil {
		return nil, ErrNoModule
	}
	return s.pending, nil
}

func (s *State) createInline(ctx context.Context) error {
	m, err := s.inline()
	if err != nil {
		return err
	}
	return s.record(s.Client.Create(ctx, m))
}

func (s *State) updateInline(ctx context.Context, ref string) error {
	m, err := s.inline()
	if err != nil {
		return err
	}
	return s.record(s.Client.Update(ctx, s.ref(ref), m))
}

func (s *State) removeModule(ctx context.Context, ref string) error {
	return s.record(s.Client.Delete(ctx, s.ref(ref)))
}

func (s *State) runInline(ctx context.Context, ref string, doc *godog.DocString) error {
	raw, err := argsArray(doc.Content)
	if err != nil {
		return err
	}
	return s.record(s.Client.Invoke(ctx, s.ref(ref), raw))
}
