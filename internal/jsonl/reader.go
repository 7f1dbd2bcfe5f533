// Package jsonl is a reference record source: it decodes one JSON object
// per line into a document.Document, standing in for an EVTX decoder as an
// external record source. Uses a bufio.Scanner line pump with transparent
// gzip detection, decoding into document.Document rather than a bare map.
package jsonl

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/WithSecureLabs/chainsaw/pkg/document"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Source reads one JSON object per line from an underlying io.ReadCloser,
// implementing hunter.Source.
type Source struct {
	rc      io.ReadCloser
	scanner *bufio.Scanner
}

// Open opens path for reading, transparently decompressing it if it has a
// ".gz" suffix, and wraps it as a Source.
func Open(path string) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("jsonl: %s: %w", path, err)
		}
		return New(&gzipFile{gz: gz, file: f}), nil
	}
	return New(f), nil
}

// gzipFile closes both the gzip stream and the underlying file handle.
type gzipFile struct {
	gz   *gzip.Reader
	file *os.File
}

func (g *gzipFile) Read(p []byte) (int, error) { return g.gz.Read(p) }

func (g *gzipFile) Close() error {
	err := g.gz.Close()
	if cerr := g.file.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// New wraps an already-open reader as a Source.
func New(rc io.ReadCloser) *Source {
	return &Source{rc: rc, scanner: bufio.NewScanner(rc)}
}

// Next decodes the next non-blank line into a Document. It returns io.EOF
// once the underlying reader is exhausted.
func (s *Source) Next() (*document.Document, error) {
	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if line == "" {
			continue
		}
		var raw map[string]interface{}
		if err := json.Unmarshal([]byte(line), &raw); err != nil {
			return nil, fmt.Errorf("jsonl: decode: %w", err)
		}
		return document.FromMap(raw), nil
	}
	if err := s.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

// Close releases the underlying reader.
func (s *Source) Close() error { return s.rc.Close() }
