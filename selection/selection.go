// Package selection provides ordered sets of disjoint id ranges.
//
// A Selection is the storage behind every node set. Ids are raw population
// ids, 1-based, and ranges are half-open.
package selection

import (
	"cmp"
	"fmt"
	"iter"
	"slices"
	"strconv"
	"strings"
)

// Range is the half-open interval [Start, Stop).
type Range struct {
	Start uint64
	Stop  uint64
}

// Len returns the number of ids covered by the range.
func (r Range) Len() uint64 {
	return r.Stop - r.Start
}

// A Selection is an ordered set of disjoint, non-adjacent ranges. The zero
// value is an empty selection.
type Selection struct {
	ranges []Range
}

// FromIDs builds a selection from individual ids. Order and duplicates do not
// matter.
func FromIDs(ids ...uint64) Selection {
	if len(ids) == 0 {
		return Selection{}
	}

	sorted := slices.Clone(ids)
	slices.Sort(sorted)

	ranges := make([]Range, 0, 1)
	start, stop := sorted[0], sorted[0]+1

	for _, id := range sorted[1:] {
		switch {
		case id < stop:
		case id == stop:
			stop++
		default:
			ranges = append(ranges, Range{Start: start, Stop: stop})
			start, stop = id, id+1
		}
	}

	ranges = append(ranges, Range{Start: start, Stop: stop})

	return Selection{ranges: ranges}
}

// FromRanges builds a selection from arbitrary ranges. Empty ranges are
// dropped, overlapping and adjacent ranges are merged.
func FromRanges(rs ...Range) Selection {
	valid := make([]Range, 0, len(rs))
	for _, r := range rs {
		if r.Stop > r.Start {
			valid = append(valid, r)
		}
	}

	return Selection{ranges: mergeSorted(sortRanges(valid))}
}

func sortRanges(rs []Range) []Range {
	slices.SortFunc(rs, func(a, b Range) int {
		return cmp.Compare(a.Start, b.Start)
	})

	return rs
}

func mergeSorted(sorted []Range) []Range {
	out := make([]Range, 0, len(sorted))

	for _, r := range sorted {
		n := len(out)
		if n > 0 && r.Start <= out[n-1].Stop {
			out[n-1].Stop = max(out[n-1].Stop, r.Stop)
			continue
		}

		out = append(out, r)
	}

	return out
}

// Ranges returns a copy of the ranges in ascending order.
func (s Selection) Ranges() []Range {
	return slices.Clone(s.ranges)
}

// IsEmpty tells if the selection holds no id.
func (s Selection) IsEmpty() bool {
	return len(s.ranges) == 0
}

// FlatSize returns the number of ids in the selection.
func (s Selection) FlatSize() uint64 {
	var n uint64
	for _, r := range s.ranges {
		n += r.Len()
	}

	return n
}

// Max returns the highest id, or 0 for an empty selection.
func (s Selection) Max() uint64 {
	if len(s.ranges) == 0 {
		return 0
	}

	return s.ranges[len(s.ranges)-1].Stop - 1
}

// Contains tells if id belongs to the selection.
func (s Selection) Contains(id uint64) bool {
	i, found := slices.BinarySearchFunc(s.ranges, id,
		func(r Range, id uint64) int {
			return cmp.Compare(r.Start, id)
		})
	if found {
		return true
	}

	return i > 0 && id < s.ranges[i-1].Stop
}

// Union returns the ids present in either selection.
func (s Selection) Union(o Selection) Selection {
	if o.IsEmpty() {
		return s
	}

	if s.IsEmpty() {
		return o
	}

	all := make([]Range, 0, len(s.ranges)+len(o.ranges))
	all = append(all, s.ranges...)
	all = append(all, o.ranges...)

	return Selection{ranges: mergeSorted(sortRanges(all))}
}

// Intersect returns the ids present in both selections.
func (s Selection) Intersect(o Selection) Selection {
	out := make([]Range, 0)

	i, j := 0, 0
	for i < len(s.ranges) && j < len(o.ranges) {
		a, b := s.ranges[i], o.ranges[j]

		start := max(a.Start, b.Start)
		stop := min(a.Stop, b.Stop)
		if start < stop {
			out = append(out, Range{Start: start, Stop: stop})
		}

		if a.Stop < b.Stop {
			i++
		} else {
			j++
		}
	}

	return Selection{ranges: out}
}

// Shift returns a selection with every id increased by delta.
func (s Selection) Shift(delta uint64) Selection {
	if delta == 0 {
		return s
	}

	out := make([]Range, len(s.ranges))
	for i, r := range s.ranges {
		out[i] = Range{Start: r.Start + delta, Stop: r.Stop + delta}
	}

	return Selection{ranges: out}
}

// Flatten lists every id in ascending order.
func (s Selection) Flatten() []uint64 {
	ids := make([]uint64, 0, s.FlatSize())
	for id := range s.All() {
		ids = append(ids, id)
	}

	return ids
}

// All iterates the ids in ascending order. The sequence can be restarted.
func (s Selection) All() iter.Seq[uint64] {
	return func(yield func(uint64) bool) {
		for _, r := range s.ranges {
			for id := r.Start; id < r.Stop; id++ {
				if !yield(id) {
					return
				}
			}
		}
	}
}

// Equal tells if both selections hold the same ids.
func (s Selection) Equal(o Selection) bool {
	return slices.Equal(s.ranges, o.ranges)
}

// String renders the selection using inclusive bounds, e.g. "1-3,7".
func (s Selection) String() string {
	parts := make([]string, 0, len(s.ranges))
	for _, r := range s.ranges {
		if r.Len() == 1 {
			parts = append(parts, strconv.FormatUint(r.Start, 10))
			continue
		}

		parts = append(parts, fmt.Sprintf("%d-%d", r.Start, r.Stop-1))
	}

	return strings.Join(parts, ",")
}

// Parse reads the format produced by String. Bounds are inclusive and tokens
// are separated by commas or whitespace.
func Parse(text string) (Selection, error) {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})

	ranges := make([]Range, 0, len(fields))
	for _, f := range fields {
		r, err := parseToken(f)
		if err != nil {
			return Selection{}, err
		}

		ranges = append(ranges, r)
	}

	return FromRanges(ranges...), nil
}

func parseToken(token string) (Range, error) {
	lo, hi, isRange := strings.Cut(token, "-")

	start, err := strconv.ParseUint(lo, 10, 64)
	if err != nil {
		return Range{}, fmt.Errorf("selection: invalid id %q: %w", token, err)
	}

	stop := start
	if isRange {
		stop, err = strconv.ParseUint(hi, 10, 64)
		if err != nil {
			return Range{}, fmt.Errorf("selection: invalid range %q: %w", token, err)
		}
	}

	if start == 0 || stop < start {
		return Range{}, fmt.Errorf("selection: invalid range %q", token)
	}

	return Range{Start: start, Stop: stop + 1}, nil
}
