// Package wessconf rewrites the storage and bind settings of the Wess service
// configuration file (wess.toml) around a test run.
package wessconf

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/spf13/afero"
)

// ErrMissingTable is returned when wess.toml lacks the [database] or [server] table.
var ErrMissingTable = errors.New("missing table")

// Settings are the three fields the harness owns in wess.toml.
type Settings struct {
	Stage   string `yaml:"stage"`   // database.db
	Address string `yaml:"address"` // server.address
	Port    int    `yaml:"port"`    // server.port
}

// TestSettings point the service at the dev storage and the loopback listener.
var TestSettings = Settings{Stage: "dev", Address: "127.0.0.1", Port: 7770}

// ProdSettings are written back once the run is over.
var ProdSettings = Settings{Stage: "prod", Address: "0.0.0.0", Port: 80}

func (s Settings) String() string {
	return fmt.Sprintf("db=%s address=%s port=%d", s.Stage, s.Address, s.Port)
}

// Set overwrites database.db, server.address and server.port in the file at
// path. Every other key is preserved. Applying the same settings twice yields
// a byte-identical file.
func Set(fs afero.Fs, path string, s Settings) error {
	info, err := fs.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}

	doc, err := decode(fs, path)
	if err != nil {
		return err
	}

	database, err := table(doc, "database")
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	server, err := table(doc, "server")
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	database["db"] = s.Stage
	server["address"] = s.Address
	server["port"] = int64(s.Port)

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(doc); err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	if err := afero.WriteFile(fs, path, buf.Bytes(), info.Mode().Perm()); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// Load reads the three harness-owned fields back from the file at path.
func Load(fs afero.Fs, path string) (Settings, error) {
	doc, err := decode(fs, path)
	if err != nil {
		return Settings{}, err
	}

	database, err := table(doc, "database")
	if err != nil {
		return Settings{}, fmt.Errorf("%s: %w", path, err)
	}
	server, err := table(doc, "server")
	if err != nil {
		return Settings{}, fmt.Errorf("%s: %w", path, err)
	}

	var s Settings
	var ok bool
	if s.Stage, ok = database["db"].(string); !ok {
		return Settings{}, fmt.Errorf("%s: database.db is %T, want string", path, database["db"])
	}
	if s.Address, ok = server["address"].(string); !ok {
		return Settings{}, fmt.Errorf("%s: server.address is %T, want string", path, server["address"])
	}
	port, ok := server["port"].(int64)
	if !ok {
		return Settings{}, fmt.Errorf("%s: server.port is %T, want integer", path, server["port"])
	}
	s.Port = int(port)
	return s, nil
}

func decode(fs afero.Fs, path string) (map[string]any, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	doc := make(map[string]any)
	if _, err := toml.Decode(string(data), &doc); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return doc, nil
}

func table(doc map[string]any, name string) (map[string]any, error) {
	t, ok := doc[name].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w [%s]", ErrMissingTable, name)
	}
	return t, nil
}
