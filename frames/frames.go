// Package frames parses and validates the frame specifications used by the
// submitter and the render job template. A spec is a comma separated list of
// single frames and inclusive ranges, e.g. "5", "1-10", "1,3,5-12".
package frames

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

var specRe = regexp.MustCompile(`^\s*-?\d+(\s*-\s*-?\d+)?(\s*,\s*-?\d+(\s*-\s*-?\d+)?)*\s*$`)

// Range is one element of a frame spec: a single frame when Start == End.
type Range struct {
	Start int
	End   int
}

// Spec is a parsed frame specification.
type Spec []Range

// Parse parses a frame spec string. Ranges with the first number greater than
// or equal to the second are rejected, matching the submitter's validation.
func Parse(s string) (Spec, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil, errors.New("empty frame specification")
	}
	if !specRe.MatchString(trimmed) {
		return nil, errors.Errorf("malformed frame specification %q", s)
	}

	var spec Spec
	for _, group := range strings.Split(trimmed, ",") {
		group = strings.TrimSpace(group)
		if n, err := strconv.Atoi(group); err == nil {
			spec = append(spec, Range{Start: n, End: n})
			continue
		}
		// A dash splits the range. The first element may be empty when the
		// start frame is negative.
		start, end, err := splitRange(group)
		if err != nil {
			return nil, err
		}
		if end <= start {
			return nil, errors.Errorf(
				"invalid frame range %q: the first number must be smaller than the second", group)
		}
		spec = append(spec, Range{Start: start, End: end})
	}
	return spec, nil
}

func splitRange(group string) (int, int, error) {
	// Find the separating dash, skipping a leading sign.
	for i := 1; i < len(group); i++ {
		if group[i] != '-' {
			continue
		}
		start, err1 := strconv.Atoi(strings.TrimSpace(group[:i]))
		end, err2 := strconv.Atoi(strings.TrimSpace(group[i+1:]))
		if err1 == nil && err2 == nil {
			return start, end, nil
		}
	}
	return 0, 0, errors.Errorf("malformed frame range %q", group)
}

// Expand returns every frame in the spec in declaration order, including
// duplicates.
func (s Spec) Expand() []int {
	var frames []int
	for _, r := range s {
		for f := r.Start; f <= r.End; f++ {
			frames = append(frames, f)
		}
	}
	return frames
}

// Duplicates returns the frames that occur more than once, in the order they
// repeat. An empty result means the spec is duplicate free.
func (s Spec) Duplicates() []int {
	seen := map[int]bool{}
	var dups []int
	for _, f := range s.Expand() {
		if seen[f] {
			dups = append(dups, f)
		}
		seen[f] = true
	}
	return dups
}

// String renders the spec back to the compact comma separated form.
func (s Spec) String() string {
	parts := make([]string, 0, len(s))
	for _, r := range s {
		if r.Start == r.End {
			parts = append(parts, strconv.Itoa(r.Start))
		} else {
			parts = append(parts, fmt.Sprintf("%d-%d", r.Start, r.End))
		}
	}
	return strings.Join(parts, ",")
}

// Validate checks a raw frame spec string the way the submitter does before
// building a bundle: it must parse and contain no duplicate frames.
func Validate(s string) error {
	spec, err := Parse(s)
	if err != nil {
		return err
	}
	if dups := spec.Duplicates(); len(dups) > 0 {
		strs := make([]string, len(dups))
		for i, d := range dups {
			strs[i] = strconv.Itoa(d)
		}
		return errors.Errorf("duplicate frames in specification: %s", strings.Join(strs, ", "))
	}
	return nil
}

// PadName substitutes the run of '#' characters in name with the zero padded
// frame number. Names without padding markers get the number appended. A frame
// number wider than the padding is used as is.
func PadName(name string, frame int) string {
	count := strings.Count(name, "#")
	if count == 0 {
		return name + strconv.Itoa(frame)
	}
	padded := fmt.Sprintf("%0*d", count, frame)
	return strings.Replace(name, strings.Repeat("#", count), padded, 1)
}
