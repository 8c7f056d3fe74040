package frames

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func Test_ParseStringRoundTrip(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("Parsed specs survive String/Parse round trips", prop.ForAll(
		func(start, length int) bool {
			s := fmt.Sprintf("%d-%d", start, start+length)
			spec, err := Parse(s)
			if err != nil {
				return false
			}
			again, err := Parse(spec.String())
			if err != nil {
				return false
			}
			return spec.String() == again.String()
		},
		gen.IntRange(-1000, 1000),
		gen.IntRange(1, 500),
	))

	properties.Property("Expand yields End-Start+1 frames for a single range", prop.ForAll(
		func(start, length int) bool {
			spec := Spec{{Start: start, End: start + length}}
			return len(spec.Expand()) == length+1
		},
		gen.IntRange(-1000, 1000),
		gen.IntRange(0, 500),
	))

	properties.TestingRun(t)
}

func Test_DuplicateDetection(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("A single range never has duplicates", prop.ForAll(
		func(start, length int) bool {
			spec := Spec{{Start: start, End: start + length}}
			return len(spec.Duplicates()) == 0
		},
		gen.IntRange(-1000, 1000),
		gen.IntRange(0, 500),
	))

	properties.Property("Repeating a frame is always caught", prop.ForAll(
		func(frame int) bool {
			return Validate(fmt.Sprintf("%d,%d", frame, frame)) != nil
		},
		gen.IntRange(-1000, 1000),
	))

	properties.TestingRun(t)
}

func Test_PadNameWidth(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("Padded names are at least as wide as the marker run", prop.ForAll(
		func(frame, width int) bool {
			name := "shot_"
			for i := 0; i < width; i++ {
				name += "#"
			}
			padded := PadName(name, frame)
			return len(padded) >= len("shot_")+width
		},
		gen.IntRange(0, 99999),
		gen.IntRange(1, 8),
	))

	properties.TestingRun(t)
}
