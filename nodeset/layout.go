package nodeset

import (
	"bufio"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
)

// A LayoutEntry records where a population sits in the global id space.
type LayoutEntry struct {
	Population string
	Offset     uint64
	MaxRawID   uint64
}

// Layout returns the current layout, sorted by population name.
func (r *Registry) Layout() []LayoutEntry {
	entries := make([]LayoutEntry, 0, len(r.populations))
	for _, p := range r.populations {
		entries = append(entries, LayoutEntry{
			Population: p.name,
			Offset:     p.offset,
			MaxRawID:   p.maxRawID,
		})
	}

	return entries
}

// RestoreLayout recreates populations at the recorded offsets and freezes the
// registry, so that a restored run hands out the same final ids as the run
// that saved the layout. The registry must be empty.
func (r *Registry) RestoreLayout(entries []LayoutEntry) error {
	if len(r.populations) > 0 {
		return fmt.Errorf("nodeset: cannot restore a layout into a registry " +
			"with populations")
	}

	sorted := slices.Clone(entries)
	slices.SortFunc(sorted, func(a, b LayoutEntry) int {
		return strings.Compare(a.Population, b.Population)
	})

	for i, e := range sorted {
		if e.Population == "" {
			return fmt.Errorf("nodeset: layout entry %d has no population", i)
		}

		if i > 0 {
			prev := sorted[i-1]
			if prev.Population == e.Population {
				return fmt.Errorf("nodeset: population %q appears twice in layout",
					e.Population)
			}

			if e.Offset < prev.Offset+prev.MaxRawID {
				return fmt.Errorf("nodeset: population %q at offset %d overlaps %q",
					e.Population, e.Offset, prev.Population)
			}
		}
	}

	for _, e := range sorted {
		pop := &Population{
			name:     e.Population,
			registry: r,
			maxRawID: e.MaxRawID,
			offset:   e.Offset,
		}
		r.populations = append(r.populations, pop)
	}

	r.frozen = true

	r.logger.Info("population layout restored", "populations", len(sorted))

	return nil
}

// WriteLayout writes one "population::offset::maxRawID" line per entry.
func WriteLayout(w io.Writer, entries []LayoutEntry) error {
	bw := bufio.NewWriter(w)

	for _, e := range entries {
		_, err := fmt.Fprintf(bw, "%s::%d::%d\n", e.Population, e.Offset, e.MaxRawID)
		if err != nil {
			return fmt.Errorf("nodeset: writing layout: %w", err)
		}
	}

	return bw.Flush()
}

// ReadLayout parses the format written by WriteLayout. Blank lines are
// skipped. The max raw id column is optional.
func ReadLayout(rd io.Reader) ([]LayoutEntry, error) {
	var entries []LayoutEntry

	scanner := bufio.NewScanner(rd)
	lineNo := 0

	for scanner.Scan() {
		lineNo++

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		e, err := parseLayoutLine(line)
		if err != nil {
			return nil, fmt.Errorf("nodeset: layout line %d: %w", lineNo, err)
		}

		entries = append(entries, e)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("nodeset: reading layout: %w", err)
	}

	return entries, nil
}

func parseLayoutLine(line string) (LayoutEntry, error) {
	fields := strings.Split(line, "::")
	if len(fields) < 2 || len(fields) > 3 {
		return LayoutEntry{}, fmt.Errorf("malformed entry %q", line)
	}

	offset, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return LayoutEntry{}, fmt.Errorf("invalid offset in %q: %w", line, err)
	}

	e := LayoutEntry{Population: fields[0], Offset: offset}

	if len(fields) == 3 {
		e.MaxRawID, err = strconv.ParseUint(fields[2], 10, 64)
		if err != nil {
			return LayoutEntry{}, fmt.Errorf("invalid max raw id in %q: %w", line, err)
		}
	}

	return e, nil
}
