package extract

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrWriterNotOpen is returned when a row is written before the header.
	ErrWriterNotOpen = errors.New("line writer: not open")
	// ErrWriterClosed is returned for any use after Close.
	ErrWriterClosed = errors.New("line writer: closed")
	// ErrRowWidth is returned for a row that does not match the header width.
	ErrRowWidth = errors.New("line writer: row width mismatch")
)

type writerState int

const (
	stateUnopened writerState = iota
	stateOpen
	stateClosed
)

func (s writerState) String() string {
	switch s {
	case stateUnopened:
		return "unopened"
	case stateOpen:
		return "open"
	default:
		return "closed"
	}
}

// LineWriter appends comma-joined lines to a single artifact. The header is
// written by Open; every later line must have the same number of fields.
// Fields are written as-is: callers guarantee they contain no separators.
type LineWriter struct {
	dst   io.WriteCloser
	bw    *bufio.Writer
	state writerState
	width int
	rows  int

	flushEachRow bool
}

// NewLineWriter wraps dst. Nothing is written until Open.
func NewLineWriter(dst io.WriteCloser) *LineWriter {
	return &LineWriter{dst: dst, bw: bufio.NewWriter(dst)}
}

// FlushEachRow makes every Open and WriteRow reach dst before returning.
func (w *LineWriter) FlushEachRow() { w.flushEachRow = true }

// CreateFile creates (or truncates) path, making parent directories.
func CreateFile(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create output directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create output file: %w", err)
	}
	return f, nil
}

// Open writes the header line and moves the writer to the open state.
func (w *LineWriter) Open(header []string) error {
	switch w.state {
	case stateOpen:
		return errors.New("line writer: already open")
	case stateClosed:
		return ErrWriterClosed
	}
	if err := w.line(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if w.flushEachRow {
		if err := w.bw.Flush(); err != nil {
			return fmt.Errorf("flush header: %w", err)
		}
	}
	w.width = len(header)
	w.state = stateOpen
	return nil
}

// WriteRow appends one data line.
func (w *LineWriter) WriteRow(fields []string) error {
	switch w.state {
	case stateUnopened:
		return ErrWriterNotOpen
	case stateClosed:
		return ErrWriterClosed
	}
	if len(fields) != w.width {
		return fmt.Errorf("%w: got %d fields, want %d", ErrRowWidth, len(fields), w.width)
	}
	if err := w.line(fields); err != nil {
		return fmt.Errorf("write row: %w", err)
	}
	if w.flushEachRow {
		if err := w.bw.Flush(); err != nil {
			return fmt.Errorf("flush row: %w", err)
		}
	}
	w.rows++
	return nil
}

// Rows is the number of data lines written so far.
func (w *LineWriter) Rows() int { return w.rows }

// Close flushes and closes the artifact. Only the first call has an effect.
func (w *LineWriter) Close() error {
	if w.state == stateClosed {
		return nil
	}
	w.state = stateClosed
	flushErr := w.bw.Flush()
	closeErr := w.dst.Close()
	if flushErr != nil {
		return fmt.Errorf("flush output: %w", flushErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close output: %w", closeErr)
	}
	return nil
}

func (w *LineWriter) line(fields []string) error {
	if _, err := w.bw.WriteString(strings.Join(fields, ",")); err != nil {
		return err
	}
	return w.bw.WriteByte('\n')
}
