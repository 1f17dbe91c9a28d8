// Package source reads events from newline-delimited JSON.
//
// One event per line:
//
//	{"run":1,"lumi":4,"event":1201,"collections":{"electrons":{"valid":true,"objects":[...]}}}
//
// An omitted "valid" means the collection is valid. Blank lines are
// skipped. A line that is not a valid event aborts the read with its line
// number.
package source

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/gyaneshwarpardhi/electrondump/internal/event"
)

const maxLineBytes = 16 << 20

// Handler receives each decoded event in file order.
type Handler func(ctx context.Context, ev *event.Event) error

// ReadJSONL decodes events from r and passes them to fn until EOF, an
// error, or ctx is cancelled. It returns the number of events delivered.
func ReadJSONL(ctx context.Context, r io.Reader, fn Handler) (int, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), maxLineBytes)

	n, lineNo := 0, 0
	for sc.Scan() {
		lineNo++
		if err := ctx.Err(); err != nil {
			return n, err
		}
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var ev event.Event
		if err := json.Unmarshal(line, &ev); err != nil {
			return n, fmt.Errorf("line %d: decode event: %w", lineNo, err)
		}
		if err := fn(ctx, &ev); err != nil {
			return n, fmt.Errorf("line %d: %w", lineNo, err)
		}
		n++
	}
	if err := sc.Err(); err != nil {
		return n, fmt.Errorf("line %d: read: %w", lineNo+1, err)
	}
	return n, nil
}

// Open returns a reader for path, or stdin for "-", along with its size in
// bytes (-1 when unknown).
func Open(path string) (io.ReadCloser, int64, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), -1, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open input: %w", err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("stat input: %w", err)
	}
	return f, st.Size(), nil
}
