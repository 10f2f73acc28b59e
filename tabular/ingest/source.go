// Package ingest feeds line-oriented files into a FactStore.
package ingest

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// LineSource is a finite stream of text lines
type LineSource interface {
	// EOF reports whether no line is left
	EOF() bool
	// ReadLine returns the next line without its terminator
	ReadLine() (string, error)
}

// ReaderSource reads lines from an io.Reader
type ReaderSource struct {
	r   *bufio.Reader
	err error
}

// NewReaderSource wraps r
func NewReaderSource(r io.Reader) *ReaderSource {
	return &ReaderSource{r: bufio.NewReaderSize(r, 64*1024)}
}

// EOF reports true only at a clean end of input. A read failure is kept for
// the next ReadLine so it cannot pass for the end of the stream.
func (s *ReaderSource) EOF() bool {
	if s.err != nil {
		return false
	}
	_, err := s.r.Peek(1)
	switch {
	case err == nil:
		return false
	case err == io.EOF:
		return true
	}
	s.err = err
	return false
}

func (s *ReaderSource) ReadLine() (string, error) {
	if s.err != nil {
		return "", s.err
	}
	line, err := s.r.ReadString('\n')
	if err != nil {
		if err != io.EOF {
			s.err = err
			return "", err
		}
		if line == "" {
			return "", io.EOF
		}
	}
	line = strings.TrimSuffix(line, "\n")
	return strings.TrimSuffix(line, "\r"), nil
}

// FileSource is a ReaderSource over a file that must be closed
type FileSource struct {
	*ReaderSource
	file *os.File
	gz   *gzip.Reader
}

// Open opens path for line reading. Gzip content is detected by its magic
// bytes and decompressed transparently.
func Open(path string) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	br := bufio.NewReader(f)
	magic, _ := br.Peek(2)
	if len(magic) == 2 && magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := gzip.NewReader(br)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to read gzip header of %s: %w", path, err)
		}
		return &FileSource{ReaderSource: NewReaderSource(gz), file: f, gz: gz}, nil
	}
	return &FileSource{ReaderSource: NewReaderSource(br), file: f}, nil
}

// Close releases the file
func (s *FileSource) Close() error {
	if s.gz != nil {
		s.gz.Close()
	}
	return s.file.Close()
}
