package fixture

import (
	"errors"
	"os"
	"strconv"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const addBytes = "0,97,115,109,1,0,0,0,1,7,1,96,2,127,127,1,127,3,2,1,0,7,7,1,3,97,100,100,0,0,10,9,1,7,0,32,0,32,1,106,11\n"

func newFs(t *testing.T, files map[string]string) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	for path, body := range files {
		require.NoError(t, afero.WriteFile(fs, path, []byte(body), 0o644))
	}
	return fs
}

func TestParseBytes(t *testing.T) {
	got, err := ParseBytes("0, 97,115 ,109\n")
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 97, 115, 109}, got)
}

func TestParseBytesErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		index int
		token string
		err   error
	}{
		{"out of range", "0,256", 1, "256", strconv.ErrRange},
		{"negative", "1,-1", 1, "-1", strconv.ErrSyntax},
		{"not a number", "0,97,abc", 2, "abc", strconv.ErrSyntax},
		{"empty token", "0,,1", 1, "", strconv.ErrSyntax},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseBytes(tt.input)
			var be *ByteError
			require.ErrorAs(t, err, &be)
			assert.Equal(t, tt.index, be.Index)
			assert.Equal(t, tt.token, be.Token)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestParseBytesEmpty(t *testing.T) {
	_, err := ParseBytes("  \n")
	assert.Error(t, err)
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"add"}, Tokenize("add"))
	assert.Equal(t, []string{"i32", "i32"}, Tokenize(`["i32", "i32"]`))
	assert.Equal(t, []string{"i64", "f32"}, Tokenize("i64,f32"))
	assert.Equal(t, []string{}, Tokenize("[]"))
}

func TestPath(t *testing.T) {
	r := NewRegistry(afero.NewMemMapFs(), "", "")
	assert.Equal(t, "./wasm/add/BYTES_RESULT.txt", r.Path("add"))

	// only whole segments are replaced
	r = NewRegistry(afero.NewMemMapFs(), "/srv/where/here/here.txt", "here")
	assert.Equal(t, "/srv/where/sum/here.txt", r.Path("sum"))
}

func TestDefine(t *testing.T) {
	fs := newFs(t, map[string]string{"wasm/add/BYTES_RESULT.txt": addBytes})
	r := NewRegistry(fs, "", "")

	err := r.Define([]Row{{Name: "add", Functions: "[add]", Returns: "[i32]", Args: "[i32, i32]"}})
	require.NoError(t, err)

	w, err := r.Get("add")
	require.NoError(t, err)
	assert.Equal(t, "add", w.FunctionName)
	assert.Equal(t, []string{"i32"}, w.ReturnType)
	assert.Equal(t, []string{"i32", "i32"}, w.Args)
	assert.Len(t, w.Bytes, 41)
	assert.Equal(t, []byte{0, 97, 115, 109}, w.Bytes[:4])
	assert.Equal(t, []string{"add"}, r.Names())
}

func TestDefineOverwrites(t *testing.T) {
	fs := newFs(t, map[string]string{"wasm/add/BYTES_RESULT.txt": addBytes})
	r := NewRegistry(fs, "", "")

	require.NoError(t, r.Define([]Row{{Name: "add", Functions: "add", Returns: "i32", Args: "i32 i32"}}))
	require.NoError(t, r.Define([]Row{{Name: "add", Functions: "sum", Returns: "i64", Args: "i64"}}))

	w, err := r.Get("add")
	require.NoError(t, err)
	assert.Equal(t, "sum", w.FunctionName)
	assert.Equal(t, []string{"i64"}, w.Args)
}

func TestDefineIsAllOrNothing(t *testing.T) {
	fs := newFs(t, map[string]string{
		"wasm/add/BYTES_RESULT.txt": addBytes,
		"wasm/bad/BYTES_RESULT.txt": "0,97,999",
	})
	r := NewRegistry(fs, "", "")

	err := r.Define([]Row{
		{Name: "add", Functions: "add", Returns: "i32", Args: "i32 i32"},
		{Name: "bad", Functions: "f", Returns: "i32", Args: ""},
	})
	var be *ByteError
	require.ErrorAs(t, err, &be)
	assert.Contains(t, err.Error(), `module "bad"`)
	assert.Empty(t, r.Names(), "no fixture may be stored when the table fails")
}

func TestDefineMissingFile(t *testing.T) {
	r := NewRegistry(afero.NewMemMapFs(), "", "")
	err := r.Define([]Row{{Name: "ghost", Functions: "f"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist), "got %v", err)
}

func TestDefineNeedsFunction(t *testing.T) {
	fs := newFs(t, map[string]string{"wasm/add/BYTES_RESULT.txt": addBytes})
	r := NewRegistry(fs, "", "")
	err := r.Define([]Row{{Name: "add", Functions: "[]"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no function name")
}

func TestGetUnknown(t *testing.T) {
	r := NewRegistry(afero.NewMemMapFs(), "", "")
	_, err := r.Get("nope")
	assert.ErrorIs(t, err, ErrUnknownFixture)
}

func TestReset(t *testing.T) {
	fs := newFs(t, map[string]string{"wasm/add/BYTES_RESULT.txt": addBytes})
	r := NewRegistry(fs, "", "")
	require.NoError(t, r.Define([]Row{{Name: "add", Functions: "add"}}))
	r.Reset()
	assert.Empty(t, r.Names())
}

func TestRowsFromTable(t *testing.T) {
	rows, err := RowsFromTable(
		[]string{"module", "functions", "returns", "args", "notes"},
		[][]string{{"add", "[add]", "[i32]", "[i32, i32]", "sum of two"}},
	)
	require.NoError(t, err)
	assert.Equal(t, []Row{{Name: "add", Functions: "[add]", Returns: "[i32]", Args: "[i32, i32]"}}, rows)
}

func TestRowsFromTableMissingColumn(t *testing.T) {
	_, err := RowsFromTable([]string{"module", "functions", "args"}, nil)
	require.ErrorIs(t, err, ErrMissingColumn)
	assert.Contains(t, err.Error(), `"returns"`)
}

func TestRowsFromTableShortRow(t *testing.T) {
	_, err := RowsFromTable(Columns, [][]string{{"add", "add"}})
	require.ErrorIs(t, err, ErrMissingColumn)
}
