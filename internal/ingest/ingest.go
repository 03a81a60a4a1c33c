// Package ingest turns files named with the --file command into text that can
// be sent as a user message.
package ingest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrorKind classifies ingestion failures.
type ErrorKind int

const (
	NotFound ErrorKind = iota + 1
	UnsupportedExtension
	ReadFailure
)

func (k ErrorKind) String() string {
	switch k {
	case NotFound:
		return "not found"
	case UnsupportedExtension:
		return "unsupported extension"
	case ReadFailure:
		return "read failure"
	default:
		return "unknown"
	}
}

// Error reports why a file could not be ingested.
type Error struct {
	Kind ErrorKind
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Path, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var ie *Error
	return errors.As(err, &ie) && ie.Kind == kind
}

// Reader renders one file as text.
type Reader func(path string) (string, error)

// Ingester dispatches on the file extension.
type Ingester struct {
	readers map[string]Reader
}

var textExtensions = []string{
	"md", "txt", "csv", "py", "js", "json", "sql", "yml", "yaml", "env",
	"h", "cpp", "cc", "java", "cs", "html", "php", "rs", "go", "Dockerfile",
}

// New returns an Ingester with the built-in readers registered.
func New() *Ingester {
	in := &Ingester{readers: make(map[string]Reader)}
	for _, ext := range textExtensions {
		in.Register(ext, ReadText)
	}
	in.Register("xlsx", ReadXLSX)
	in.Register("xls", ReadXLS)
	in.Register("pdf", ReadPDF)
	in.Register("npy", ReadNPY)
	return in
}

// Register binds ext (without the dot) to r, replacing any previous reader.
func (in *Ingester) Register(ext string, r Reader) {
	in.readers[ext] = r
}

// Extensions lists the registered extensions.
func (in *Ingester) Extensions() []string {
	exts := make([]string, 0, len(in.readers))
	for ext := range in.readers {
		exts = append(exts, ext)
	}
	return exts
}

// Ingest reads path with the reader registered for its extension. Every
// failure is an *Error.
func (in *Ingester) Ingest(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", &Error{Kind: NotFound, Path: path}
		}
		return "", &Error{Kind: ReadFailure, Path: path, Err: err}
	}
	if info.IsDir() {
		return "", &Error{Kind: ReadFailure, Path: path, Err: errors.New("is a directory")}
	}

	r, ok := in.readers[extension(path)]
	if !ok {
		return "", &Error{Kind: UnsupportedExtension, Path: path}
	}
	text, err := r(path)
	if err != nil {
		return "", &Error{Kind: ReadFailure, Path: path, Err: err}
	}
	return text, nil
}

// extension returns the extension without the dot, or the base name for
// files without one (Dockerfile). Dotfiles such as .env resolve to "env".
func extension(path string) string {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	if ext == "" {
		return base
	}
	return strings.TrimPrefix(ext, ".")
}

func header(path string) string {
	return "FileName:" + path
}

// ReadText returns the file's raw content prefixed with its name.
func ReadText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return header(path) + string(data), nil
}
