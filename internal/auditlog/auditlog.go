// Package auditlog checks the service's audit log against the operations a
// scenario performed.
package auditlog

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"

	"github.com/spf13/afero"
)

// ErrOperationNotLogged is returned when no log line records an operation.
var ErrOperationNotLogged = errors.New("operation not logged")

// Reader returns the current lines of a log.
type Reader interface {
	Lines() ([]string, error)
}

// FileReader reads the whole file on every call, so lines written since the
// last call are always visible.
type FileReader struct {
	Fs   afero.Fs
	Path string
}

func (r FileReader) Lines() ([]string, error) {
	data, err := afero.ReadFile(r.Fs, r.Path)
	if err != nil {
		return nil, fmt.Errorf("reading audit log: %w", err)
	}
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	text = strings.TrimSuffix(text, "\n")
	if text == "" {
		return []string{}, nil
	}
	return strings.Split(text, "\n"), nil
}

// PatternError lists the lines that did not match a pattern.
type PatternError struct {
	Pattern string
	Lines   []string
}

func (e *PatternError) Error() string {
	return fmt.Sprintf("%d log line(s) do not match %q: %s",
		len(e.Lines), e.Pattern, strings.Join(e.Lines, " | "))
}

// Oracle answers questions about the audit log.
type Oracle struct {
	Reader Reader
	Logger *slog.Logger
}

// NewOracle returns an Oracle over r. A nil logger discards output.
func NewOracle(r Reader, logger *slog.Logger) *Oracle {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Oracle{Reader: r, Logger: logger}
}

// ExpectOperation succeeds when some line contains "<op> <id>" and id is not
// immediately followed by another word character.
func (o *Oracle) ExpectOperation(op, id string) error {
	lines, err := o.Reader.Lines()
	if err != nil {
		return err
	}
	re, err := regexp.Compile(regexp.QuoteMeta(op+" "+id) + `(\W|$)`)
	if err != nil {
		return err
	}
	for _, line := range lines {
		if re.MatchString(line) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s %s (%d lines searched)", ErrOperationNotLogged, op, id, len(lines))
}

// ExpectAllMatch succeeds when every line matches pattern, blank lines
// included. Each offending line is logged before the error is returned.
func (o *Oracle) ExpectAllMatch(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("compiling log pattern: %w", err)
	}
	lines, err := o.Reader.Lines()
	if err != nil {
		return err
	}

	var bad []string
	for i, line := range lines {
		if !re.MatchString(line) {
			o.Logger.Warn("log line does not match", "line", i+1, "pattern", pattern, "text", line)
			bad = append(bad, line)
		}
	}
	if len(bad) > 0 {
		return &PatternError{Pattern: pattern, Lines: bad}
	}
	return nil
}
