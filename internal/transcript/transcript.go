// Package transcript writes a finished session to a plain text file, one
// line per turn:
//
//	^{role}_______{content}$
package transcript

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/parley-cli/parley/internal/provider"
)

// DefaultDir is where transcripts go when no directory is configured.
const DefaultDir = "output"

const (
	maxNameRunes      = 64
	invalidNameChars  = `<>:"/\|?*`
	fieldSeparator    = "_______"
	fallbackTimestamp = "20060102-150405"
)

// SanitizeFilename replaces characters that are invalid in file names with
// '_' and truncates the result to 64 runes.
func SanitizeFilename(name string) string {
	name = strings.Map(func(r rune) rune {
		if strings.ContainsRune(invalidNameChars, r) || r < 0x20 {
			return '_'
		}
		return r
	}, name)
	if runes := []rune(name); len(runes) > maxNameRunes {
		name = string(runes[:maxNameRunes])
	}
	return name
}

// Exporter writes transcripts into Dir.
type Exporter struct {
	Dir       string
	Overwrite bool // truncate an existing transcript instead of appending

	now func() time.Time
}

// Export writes turns to {Dir}/{sanitized name}.txt and returns the path.
// The file is created if missing; existing transcripts are appended to
// unless Overwrite is set.
func (e *Exporter) Export(name string, turns []provider.Message) (string, error) {
	dir := e.Dir
	if dir == "" {
		dir = DefaultDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create transcript dir: %w", err)
	}

	base := SanitizeFilename(name)
	if strings.TrimSpace(base) == "" {
		base = "session-" + e.clock().Format(fallbackTimestamp)
	}
	path := filepath.Join(dir, base+".txt")

	flags := os.O_CREATE | os.O_WRONLY
	if e.Overwrite {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_APPEND
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return "", fmt.Errorf("open transcript: %w", err)
	}

	if err := write(f, turns); err != nil {
		f.Close()
		return "", fmt.Errorf("write transcript: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close transcript: %w", err)
	}
	return path, nil
}

func write(f *os.File, turns []provider.Message) error {
	w := bufio.NewWriter(f)
	for _, t := range turns {
		if _, err := fmt.Fprintf(w, "^%s%s%s$\n", t.Role, fieldSeparator, t.Content); err != nil {
			return err
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return f.Sync()
}

func (e *Exporter) clock() time.Time {
	if e.now != nil {
		return e.now()
	}
	return time.Now()
}
