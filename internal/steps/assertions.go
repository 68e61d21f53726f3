package steps

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/cucumber/godog"
	"github.com/google/uuid"

	"github.com/wess-dev/wess-e2e/internal/client"
	"github.com/wess-dev/wess-e2e/internal/fixture"
)

func (s *State) defineModules(table *godog.Table) error {
	if table == nil || len(table.Rows) == 0 {
		return fmt.Errorf("%w: module table is empty", fixture.ErrMissingColumn)
	}
	cells := make([][]string, len(table.Rows))
	for i, row := range table.Rows {
		cells[i] = make([]string, len(row.Cells))
		for j, c := range row.Cells {
			cells[i][j] = c.Value
		}
	}
	rows, err := fixture.RowsFromTable(cells[0], cells[1:])
	if err != nil {
		return err
	}
	return s.Fixtures.Define(rows)
}

func (s *State) statusIs(status string) error {
	want, err := strconv.Atoi(strings.TrimSpace(status))
	if err != nil {
		return fmt.Errorf("invalid status code %q", status)
	}
	resp, err := s.response()
	if err != nil {
		return err
	}
	if resp.StatusCode != want {
		return fmt.Errorf("expected status %d, got %d: %s", want, resp.StatusCode, bytes.TrimSpace(resp.Body))
	}
	return nil
}

func (s *State) createdID() (string, error) {
	resp, err := s.response()
	if err != nil {
		return "", err
	}
	created, err := client.Decode[client.Created](resp)
	if err != nil {
		return "", err
	}
	if created.ID == nil {
		return "", fmt.Errorf("%w: %s", ErrMissingID, bytes.TrimSpace(resp.Body))
	}
	return *created.ID, nil
}

func (s *State) bodyIsUUID() error {
	id, err := s.createdID()
	if err != nil {
		return err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("id %q does not match the UUID pattern: %w", id, err)
	}
	if parsed.Version() != 4 {
		return fmt.Errorf("id %q is a version %d UUID, expected version 4", id, parsed.Version())
	}
	return nil
}

func (s *State) saveID(alias string) error {
	id, err := s.createdID()
	if err != nil {
		return err
	}
	s.Aliases.Save(alias, id)
	s.logger.Debug("saved id", "alias", alias, "id", id)
	return nil
}

func (s *State) resultIs(expected string) error {
	want, err := strconv.ParseInt(strings.TrimSpace(expected), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid expected result %q", expected)
	}
	resp, err := s.response()
	if err != nil {
		return err
	}
	result, err := client.Decode[client.RunResult](resp)
	if err != nil {
		return err
	}
	if len(result.Success) == 0 {
		return fmt.Errorf("response has no message.Success: %s", bytes.TrimSpace(resp.Body))
	}
	got, err := toInt(result.Success)
	if err != nil {
		return fmt.Errorf("message.Success: %w", err)
	}
	if got != want {
		return fmt.Errorf("expected result %d, got %d", want, got)
	}
	return nil
}

func (s *State) moduleMatches(name string) error {
	w, err := s.Fixtures.Get(name)
	if err != nil {
		return err
	}
	resp, err := s.response()
	if err != nil {
		return err
	}
	read, err := client.Decode[client.ReadResult](resp)
	if err != nil {
		return err
	}
	if read.Success == nil {
		return fmt.Errorf("response has no message.Success: %s", bytes.TrimSpace(resp.Body))
	}
	if !bytes.Equal(read.Success.Wasm, w.Bytes) {
		return fmt.Errorf("stored wasm differs from %q: expected %d bytes, got %d", name, len(w.Bytes), len(read.Success.Wasm))
	}
	if fn := read.Success.Function(); fn != w.FunctionName {
		return fmt.Errorf("expected function %q, got %q", w.FunctionName, fn)
	}
	return nil
}

func (s *State) fieldIs(path, expected string) error {
	resp, err := s.response()
	if err != nil {
		return err
	}
	v, err := extract(resp.Body, path)
	if err != nil {
		return err
	}
	if !matchesText(v, expected) {
		return fmt.Errorf("JSONPath %q: expected %s, got %v (%T)", path, expected, v, v)
	}
	return nil
}
