package events

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// Writer exports entries as JSON lines.
type Writer struct {
	buf     *bufio.Writer
	enc     *json.Encoder
	closers []io.Closer
}

// NewWriter writes JSON lines to w. Closing the Writer flushes but does not
// close w.
func NewWriter(w io.Writer) *Writer {
	buf := bufio.NewWriter(w)
	return &Writer{buf: buf, enc: json.NewEncoder(buf)}
}

// CreateFile creates (or truncates) path and returns a Writer for it. Paths
// ending in ".gz" are gzip compressed.
func CreateFile(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("events: create %s: %w", path, err)
	}
	if !strings.HasSuffix(path, ".gz") {
		w := NewWriter(f)
		w.closers = []io.Closer{f}
		return w, nil
	}
	zw := gzip.NewWriter(f)
	w := NewWriter(zw)
	w.closers = []io.Closer{zw, f}
	return w, nil
}

// Write encodes one entry.
func (w *Writer) Write(e Entry) error {
	if err := w.enc.Encode(e); err != nil {
		return fmt.Errorf("events: encode entry: %w", err)
	}
	return nil
}

// Close flushes buffered output and closes any files opened by CreateFile.
func (w *Writer) Close() error {
	err := w.buf.Flush()
	for _, c := range w.closers {
		if cerr := c.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
