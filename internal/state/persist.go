package state

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/renameio/v2"
	"github.com/klauspost/compress/gzip"
)

var (
	// ErrIO is returned when the state file cannot be opened, created, read
	// or written.
	ErrIO = errors.New("state: i/o failure")
	// ErrSerialization is returned when the document cannot be encoded or is
	// malformed.
	ErrSerialization = errors.New("state: serialization failure")
)

func compressed(path string) bool {
	return strings.HasSuffix(path, ".gz")
}

// Marshal encodes the state as indented JSON.
func (s *State) Marshal() ([]byte, error) {
	doc := *s
	if doc.PreflightFlags == nil {
		doc.PreflightFlags = []Flag{}
	}
	if doc.Persons == nil {
		doc.Persons = []Person{}
	}
	data, err := json.MarshalIndent(&doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	return append(data, '\n'), nil
}

// Unmarshal validates and decodes a JSON state document.
func Unmarshal(data []byte) (*State, error) {
	if err := validateDocument(data); err != nil {
		return nil, err
	}
	s := &State{}
	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// WriteToPath replaces the file at path with the encoded state. The file is
// written to a temporary sibling and renamed into place, so a failed write
// never leaves a truncated state behind. Paths ending in ".gz" are gzip
// compressed.
func (s *State) WriteToPath(path string) error {
	data, err := s.Marshal()
	if err != nil {
		return err
	}

	pending, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o600))
	if err != nil {
		return fmt.Errorf("%w: create %s: %v", ErrIO, path, err)
	}
	defer func() { _ = pending.Cleanup() }()

	var w io.Writer = pending
	var zw *gzip.Writer
	if compressed(path) {
		zw = gzip.NewWriter(pending)
		w = zw
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("%w: write %s: %v", ErrIO, path, err)
	}
	if zw != nil {
		if err := zw.Close(); err != nil {
			return fmt.Errorf("%w: compress %s: %v", ErrIO, path, err)
		}
	}

	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("%w: replace %s: %v", ErrIO, path, err)
	}
	return nil
}

// ReadFromPath loads the state written by WriteToPath.
func ReadFromPath(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrIO, path, err)
	}

	if compressed(path) {
		zr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%w: decompress %s: %v", ErrSerialization, path, err)
		}
		data, err = io.ReadAll(zr)
		if err != nil {
			return nil, fmt.Errorf("%w: decompress %s: %v", ErrSerialization, path, err)
		}
	}

	return Unmarshal(data)
}
