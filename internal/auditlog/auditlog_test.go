package auditlog

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	idA = "6f1c0a7e-2d4b-4c1e-9a53-0b7d2f1e8c44"
	idB = "0d9e5b3a-71c2-4f6a-8e19-5a2c4b7d9e01"
)

var sample = "2026-01-02T10:00:00Z INFO tx CREATE " + idA + "\n" +
	"2026-01-02T10:00:01Z INFO tx UPDATE " + idA + "\n" +
	"2026-01-02T10:00:02Z INFO tx DELETE " + idA + "\n"

func newOracle(t *testing.T, content string) (*Oracle, *bytes.Buffer) {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "wess.log", []byte(content), 0o644))
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	return NewOracle(FileReader{Fs: fs, Path: "wess.log"}, logger), &logs
}

func TestFileReaderLines(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "a.log", []byte("one\r\ntwo\n"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "empty.log", nil, 0o644))

	lines, err := FileReader{Fs: fs, Path: "a.log"}.Lines()
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two"}, lines)

	lines, err = FileReader{Fs: fs, Path: "empty.log"}.Lines()
	require.NoError(t, err)
	assert.Empty(t, lines)

	_, err = FileReader{Fs: fs, Path: "missing.log"}.Lines()
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestExpectOperation(t *testing.T) {
	o, _ := newOracle(t, sample)

	for _, op := range []string{"CREATE", "UPDATE", "DELETE"} {
		assert.NoError(t, o.ExpectOperation(op, idA), op)
	}

	err := o.ExpectOperation("CREATE", idB)
	assert.ErrorIs(t, err, ErrOperationNotLogged)
	assert.Contains(t, err.Error(), "CREATE "+idB)

	err = o.ExpectOperation("RUN", idA)
	assert.ErrorIs(t, err, ErrOperationNotLogged)
}

func TestExpectOperationWordBoundary(t *testing.T) {
	o, _ := newOracle(t, "INFO tx CREATE abc123\nINFO tx DELETE abc, done\n")

	assert.ErrorIs(t, o.ExpectOperation("CREATE", "abc"), ErrOperationNotLogged)
	assert.NoError(t, o.ExpectOperation("CREATE", "abc123"))
	assert.NoError(t, o.ExpectOperation("DELETE", "abc"))
}

func TestExpectOperationReadsFreshContent(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "wess.log", []byte(""), 0o644))
	o := NewOracle(FileReader{Fs: fs, Path: "wess.log"}, nil)

	assert.ErrorIs(t, o.ExpectOperation("CREATE", idA), ErrOperationNotLogged)
	require.NoError(t, afero.WriteFile(fs, "wess.log", []byte(sample), 0o644))
	assert.NoError(t, o.ExpectOperation("CREATE", idA))
}

func TestExpectAllMatch(t *testing.T) {
	o, logs := newOracle(t, sample)

	require.NoError(t, o.ExpectAllMatch(`INFO tx (CREATE|UPDATE|DELETE) [0-9a-f-]{36}$`))
	assert.Empty(t, logs.String())
}

func TestExpectAllMatchReportsMalformedLine(t *testing.T) {
	o, logs := newOracle(t, sample+"garbage entry\n")

	err := o.ExpectAllMatch(`INFO tx \w+ `)
	require.Error(t, err)

	var perr *PatternError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, []string{"garbage entry"}, perr.Lines)
	assert.Equal(t, `INFO tx \w+ `, perr.Pattern)
	assert.Contains(t, logs.String(), "garbage entry")
	assert.Contains(t, logs.String(), "level=WARN")
}

func TestExpectAllMatchReportsBlankLines(t *testing.T) {
	lines := strings.Split(strings.TrimSuffix(sample, "\n"), "\n")
	o, logs := newOracle(t, lines[0]+"\n\n"+lines[1]+"\n   \n"+lines[2]+"\n")

	err := o.ExpectAllMatch(`^\S+ INFO tx \w+ \S+$`)
	var perr *PatternError
	require.True(t, errors.As(err, &perr), "err = %v", err)
	assert.Equal(t, []string{"", "   "}, perr.Lines)
	assert.Contains(t, logs.String(), "line=2")
	assert.Contains(t, logs.String(), "line=4")
}

func TestExpectAllMatchBadPattern(t *testing.T) {
	o, _ := newOracle(t, sample)

	err := o.ExpectAllMatch(`(`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "compiling log pattern")
}

func TestReaderErrorPropagates(t *testing.T) {
	o := NewOracle(FileReader{Fs: afero.NewMemMapFs(), Path: "nope"}, nil)

	assert.ErrorIs(t, o.ExpectOperation("CREATE", idA), os.ErrNotExist)
	assert.ErrorIs(t, o.ExpectAllMatch(`.*`), os.ErrNotExist)
}
