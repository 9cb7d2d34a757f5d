package ambient

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"ariadne/internal/logging"

	"go.uber.org/zap"
)

// Store reads and writes the working-state section of one context
// document. All mutation goes through a write-to-temp-then-rename so a
// concurrent reader never observes a half-written file.
type Store struct {
	path   string
	logger *zap.Logger
}

// NewStore creates a store for the context document at path.
func NewStore(path string, logger *zap.Logger) *Store {
	return &Store{path: path, logger: logging.OrNop(logger)}
}

// Path returns the context document location.
func (st *Store) Path() string {
	return st.path
}

// Read returns the current working state. It never fails to the
// caller: a missing or malformed document yields the zero State and a
// log line.
func (st *Store) Read() State {
	data, err := os.ReadFile(st.path)
	if err != nil {
		if !os.IsNotExist(err) {
			st.logger.Warn("context document unreadable, using empty state",
				zap.String("path", st.path), zap.Error(err))
		}
		return State{}
	}

	lines := splitLines(string(data))
	start, end := findSection(lines)
	if start < 0 {
		st.logger.Debug("context document has no working-state section yet",
			zap.String("path", st.path))
		return State{}
	}
	return ParseBlock(lines[start:end])
}

// WriteFull atomically replaces the working-state section with the
// complete new state. Other sections of the document are preserved
// byte-for-byte; the document is truncated to MaxDocumentLines without
// ever cutting the working-state block itself.
func (st *Store) WriteFull(s State) error {
	block := s.Render()

	var lines []string
	data, err := os.ReadFile(st.path)
	switch {
	case err == nil:
		lines = splitLines(string(data))
	case os.IsNotExist(err):
		lines = nil
	default:
		return fmt.Errorf("failed to read context document: %w", err)
	}

	start, end := findSection(lines)
	var doc []string
	if start < 0 {
		doc = appendSection(lines, block)
		start = len(doc) - len(block)
	} else {
		doc = make([]string, 0, len(lines)-(end-start)+len(block))
		doc = append(doc, lines[:start]...)
		doc = append(doc, block...)
		doc = append(doc, lines[end:]...)
	}

	doc = truncateDocument(doc, start, start+len(block))

	return st.writeAtomic(strings.Join(doc, "\n") + "\n")
}

// WritePartial overwrites only the supplied fields, leaving every other
// field untouched, then performs the same atomic full replace.
func (st *Store) WritePartial(p Patch) error {
	current := st.Read()
	return st.WriteFull(p.Apply(current))
}

// writeAtomic writes content to a temp file in the same directory and
// renames it over the target.
func (st *Store) writeAtomic(content string) error {
	dir := filepath.Dir(st.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".context-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpName, st.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace context document: %w", err)
	}
	return nil
}

// findSection locates the owned section, returning the half-open line
// range [start, end), or (-1, -1) when absent. The section runs from
// its header to the next heading or end of document.
func findSection(lines []string) (int, int) {
	start := -1
	for i, line := range lines {
		if strings.TrimSpace(line) == SectionHeader {
			start = i
			break
		}
	}
	if start < 0 {
		return -1, -1
	}
	for i := start + 1; i < len(lines); i++ {
		if strings.HasPrefix(strings.TrimSpace(lines[i]), "#") {
			return start, i
		}
	}
	return start, len(lines)
}

// appendSection adds the block to the end of the document with a blank
// separator line when the document already has content.
func appendSection(lines, block []string) []string {
	doc := make([]string, 0, len(lines)+len(block)+1)
	doc = append(doc, lines...)
	for len(doc) > 0 && strings.TrimSpace(doc[len(doc)-1]) == "" {
		doc = doc[:len(doc)-1]
	}
	if len(doc) > 0 {
		doc = append(doc, "")
	}
	return append(doc, block...)
}

// truncateDocument enforces MaxDocumentLines. Lines are dropped from
// the tail of the document; the working-state block [blockStart,
// blockEnd) is never cut, so when the block sits at the tail the lines
// immediately preceding it go instead.
func truncateDocument(doc []string, blockStart, blockEnd int) []string {
	excess := len(doc) - MaxDocumentLines
	if excess <= 0 {
		return doc
	}

	// Drop from the tail after the block first.
	tail := len(doc) - blockEnd
	if tail > 0 {
		drop := min(tail, excess)
		doc = doc[:len(doc)-drop]
		excess -= drop
	}
	if excess <= 0 {
		return doc
	}

	// Still over budget: drop lines just before the block.
	cut := blockStart - excess
	if cut < 0 {
		cut = 0
	}
	out := make([]string, 0, MaxDocumentLines)
	out = append(out, doc[:cut]...)
	out = append(out, doc[blockStart:]...)
	return out
}

func splitLines(content string) []string {
	content = strings.TrimSuffix(content, "\n")
	if content == "" {
		return nil
	}
	return strings.Split(content, "\n")
}
