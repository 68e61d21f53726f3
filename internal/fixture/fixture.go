// Package fixture builds WASM module fixtures from scenario tables and the
// byte files stored next to the features.
package fixture

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/afero"
)

// DefaultPathTemplate is where module byte files live; the "here" segment is
// replaced by the module name.
const (
	DefaultPathTemplate = "./wasm/here/BYTES_RESULT.txt"
	DefaultPlaceholder  = "here"
)

var (
	// ErrUnknownFixture is returned when a step names a module that no table defined.
	ErrUnknownFixture = errors.New("unknown wasm module")
	// ErrMissingColumn is returned when a table lacks one of the required columns.
	ErrMissingColumn = errors.New("missing column")
)

// Columns a module table must carry, in the order they are documented.
var Columns = []string{"module", "functions", "returns", "args"}

// Wasm is a module fixture: raw bytes plus the metadata used to invoke it.
type Wasm struct {
	Bytes        []byte
	FunctionName string
	ReturnType   []string
	Args         []string
}

// Row is one line of a module table.
type Row struct {
	Name      string
	Functions string
	Returns   string
	Args      string
}

// ByteError reports a token in a byte file that is not an integer in [0,255].
type ByteError struct {
	Index int
	Token string
	Err   error
}

func (e *ByteError) Error() string {
	return fmt.Sprintf("byte %d: invalid value %q: %v", e.Index, e.Token, e.Err)
}

func (e *ByteError) Unwrap() error { return e.Err }

// Registry holds the module fixtures of the running scenario.
type Registry struct {
	fs          afero.Fs
	template    string
	placeholder string
	modules     map[string]Wasm
}

// NewRegistry returns an empty registry reading byte files through fs. Empty
// template or placeholder fall back to the defaults.
func NewRegistry(fs afero.Fs, template, placeholder string) *Registry {
	if template == "" {
		template = DefaultPathTemplate
	}
	if placeholder == "" {
		placeholder = DefaultPlaceholder
	}
	return &Registry{
		fs:          fs,
		template:    template,
		placeholder: placeholder,
		modules:     make(map[string]Wasm),
	}
}

// Define loads every row and stores the resulting fixtures, replacing any
// earlier fixture of the same name. Nothing is stored unless all rows load.
func (r *Registry) Define(rows []Row) error {
	loaded := make(map[string]Wasm, len(rows))
	for _, row := range rows {
		w, err := r.load(row)
		if err != nil {
			return fmt.Errorf("module %q: %w", row.Name, err)
		}
		loaded[row.Name] = w
	}
	for name, w := range loaded {
		r.modules[name] = w
	}
	return nil
}

// Bytes reads and parses the byte file of the named module.
func (r *Registry) Bytes(name string) ([]byte, error) {
	path := r.Path(name)
	data, err := afero.ReadFile(r.fs, path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	b, err := ParseBytes(string(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return b, nil
}

func (r *Registry) load(row Row) (Wasm, error) {
	if row.Name == "" {
		return Wasm{}, errors.New("module name is empty")
	}
	b, err := r.Bytes(row.Name)
	if err != nil {
		return Wasm{}, err
	}

	functions := Tokenize(row.Functions)
	if len(functions) == 0 {
		return Wasm{}, fmt.Errorf("no function name in %q", row.Functions)
	}

	return Wasm{
		Bytes:        b,
		FunctionName: functions[0],
		ReturnType:   Tokenize(row.Returns),
		Args:         Tokenize(row.Args),
	}, nil
}

// Get returns the named fixture.
func (r *Registry) Get(name string) (Wasm, error) {
	w, ok := r.modules[name]
	if !ok {
		return Wasm{}, fmt.Errorf("%w %q", ErrUnknownFixture, name)
	}
	return w, nil
}

// Names returns the defined fixture names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.modules))
	for name := range r.modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Reset drops every fixture.
func (r *Registry) Reset() {
	r.modules = make(map[string]Wasm)
}

// Path resolves the byte file of a module by replacing each placeholder
// segment of the template with name.
func (r *Registry) Path(name string) string {
	parts := strings.Split(filepath.ToSlash(r.template), "/")
	for i, part := range parts {
		if part == r.placeholder {
			parts[i] = name
		}
	}
	return filepath.FromSlash(strings.Join(parts, "/"))
}

// ParseBytes parses comma-separated decimal byte values.
func ParseBytes(text string) ([]byte, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("byte file is empty")
	}
	tokens := strings.Split(text, ",")
	out := make([]byte, len(tokens))
	for i, tok := range tokens {
		tok = strings.TrimSpace(tok)
		n, err := strconv.ParseUint(tok, 10, 8)
		if err != nil {
			var numErr *strconv.NumError
			if errors.As(err, &numErr) {
				err = numErr.Err
			}
			return nil, &ByteError{Index: i, Token: tok, Err: err}
		}
		out[i] = byte(n)
	}
	return out, nil
}

var wordRe = regexp.MustCompile(`\w+`)

// Tokenize splits a table cell into its alphanumeric runs, so "[i32, i32]"
// yields ["i32", "i32"].
func Tokenize(s string) []string {
	tokens := wordRe.FindAllString(s, -1)
	if tokens == nil {
		return []string{}
	}
	return tokens
}

// RowsFromTable maps a header row and data rows onto Rows. Extra columns are
// ignored; a missing required column is an error.
func RowsFromTable(header []string, rows [][]string) ([]Row, error) {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(h)] = i
	}
	for _, col := range Columns {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("%w %q", ErrMissingColumn, col)
		}
	}

	out := make([]Row, 0, len(rows))
	for n, cells := range rows {
		cell := func(col string) (string, error) {
			i := idx[col]
			if i >= len(cells) {
				return "", fmt.Errorf("row %d: %w %q", n+1, ErrMissingColumn, col)
			}
			return strings.TrimSpace(cells[i]), nil
		}
		var row Row
		var err error
		if row.Name, err = cell("module"); err != nil {
			return nil, err
		}
		if row.Functions, err = cell("functions"); err != nil {
			return nil, err
		}
		if row.Returns, err = cell("returns"); err != nil {
			return nil, err
		}
		if row.Args, err = cell("args"); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, nil
}
