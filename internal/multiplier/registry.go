// Package multiplier implements the Multiplier Registry (spec §4.2): an
// immutable, in-memory mapping loaded once at startup from a two-column
// file, from a multiplier-note identifier to its (factor, threshold) pair.
package multiplier

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/nostrdice/nostrdice/internal/domain"
	"github.com/shopspring/decimal"
)

// Registry is immutable once constructed (spec §4.2: "Immutable after
// init"). Safe for concurrent reads from every component without locking.
type Registry struct {
	byNoteID map[string]domain.Multiplier
}

// Lookup returns the (factor, threshold) pair for a multiplier note id, or
// false if the note is not registered — spec §4.4 step 1 uses this to
// reject zaps against unknown notes.
func (r *Registry) Lookup(noteID string) (domain.Multiplier, bool) {
	m, ok := r.byNoteID[noteID]
	return m, ok
}

// LoadFile parses the multiplier file format from spec §6: one entry per
// line, "x<factor-with-dot-as-underscore>:<note-id>", blank lines ignored.
func LoadFile(path string) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("multiplier: open %s: %w", path, err)
	}
	defer f.Close()
	return Load(f)
}

// Load parses the multiplier file format from an arbitrary reader, so
// tests and embedded defaults don't need a real file on disk.
func Load(r io.Reader) (*Registry, error) {
	reg := &Registry{byNoteID: make(map[string]domain.Multiplier)}

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		name, noteID, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("multiplier: line %d: missing ':' separator", lineNo)
		}
		name = strings.TrimPrefix(name, "x")
		token := strings.ReplaceAll(name, "_", ".")

		factor, err := decimal.NewFromString(token)
		if err != nil {
			return nil, fmt.Errorf("multiplier: line %d: invalid factor %q: %w", lineNo, name, err)
		}
		if factor.LessThanOrEqual(decimal.NewFromInt(1)) {
			return nil, fmt.Errorf("multiplier: line %d: factor %s must be > 1", lineNo, factor)
		}

		threshold, ok := thresholdForToken(token)
		if !ok {
			return nil, fmt.Errorf("multiplier: line %d: no win-threshold registered for factor %s", lineNo, token)
		}

		reg.byNoteID[noteID] = domain.Multiplier{
			NoteID:    noteID,
			Factor:    factor,
			Threshold: threshold,
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return reg, nil
}
