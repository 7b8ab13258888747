// Package symbol defines the narrative symbols printed on WFRP3e dice faces
// and the tally produced when a pool's faces are aggregated.
package symbol

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Tag is one narrative symbol a die face can show.
type Tag string

const (
	Success        Tag = "success"
	Failure        Tag = "failure"
	Boon           Tag = "boon"
	Bane           Tag = "bane"
	Delay          Tag = "delay"
	Exertion       Tag = "exertion"
	Critical       Tag = "critical"
	ExpertiseExtra Tag = "expertise_extra"
	ChaosStar      Tag = "chaos_star"
	SigmarStar     Tag = "sigmar_star"
)

var allTags = []Tag{
	Success,
	Failure,
	Boon,
	Bane,
	Delay,
	Exertion,
	Critical,
	ExpertiseExtra,
	ChaosStar,
	SigmarStar,
}

// aliases accepts the spellings used by older ruleset exports.
var aliases = map[string]Tag{
	"expertise":   Critical,
	"exp-extra":   ExpertiseExtra,
	"exp_extra":   ExpertiseExtra,
	"chaos-star":  ChaosStar,
	"chaosstar":   ChaosStar,
	"sigmar-star": SigmarStar,
	"sigmarstar":  SigmarStar,
	"righteous":   ExpertiseExtra,
}

// ErrUnknownTag indicates a symbol name outside the closed tag set.
var ErrUnknownTag = errors.New("unknown symbol tag")

// AllTags returns the closed set of tags in display order.
func AllTags() []Tag {
	out := make([]Tag, len(allTags))
	copy(out, allTags)
	return out
}

// Valid reports whether t belongs to the closed tag set.
func (t Tag) Valid() bool {
	for _, tag := range allTags {
		if tag == t {
			return true
		}
	}
	return false
}

// ParseTag resolves a configured symbol name.
func ParseTag(value string) (Tag, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if tag := Tag(normalized); tag.Valid() {
		return tag, nil
	}
	if tag, ok := aliases[normalized]; ok {
		return tag, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTag, value)
}

// Faces maps a die face index (1-based) to the symbols printed on it.
type Faces map[int][]Tag

// ErrMissingFace indicates a face index with no configured symbols entry.
var ErrMissingFace = errors.New("face has no symbol entry")

// Validate checks that every face in 1..faceCount has an entry and that
// every symbol is a known tag.
func (f Faces) Validate(faceCount int) error {
	if faceCount <= 0 {
		return fmt.Errorf("face count must be positive, got %d", faceCount)
	}
	for face := 1; face <= faceCount; face++ {
		tags, ok := f[face]
		if !ok {
			return fmt.Errorf("%w: face %d", ErrMissingFace, face)
		}
		for _, tag := range tags {
			if !tag.Valid() {
				return fmt.Errorf("face %d: %w: %q", face, ErrUnknownTag, tag)
			}
		}
	}
	for face := range f {
		if face < 1 || face > faceCount {
			return fmt.Errorf("face %d outside 1..%d", face, faceCount)
		}
	}
	return nil
}

// Lookup returns a copy of the symbols on face.
func (f Faces) Lookup(face int) ([]Tag, error) {
	tags, ok := f[face]
	if !ok {
		return nil, fmt.Errorf("%w: face %d", ErrMissingFace, face)
	}
	out := make([]Tag, len(tags))
	copy(out, tags)
	return out, nil
}

// Tally aggregates symbol counts for one evaluated pool.
//
// Counts are raw and never negative; cancellation only appears in the
// derived net fields.
type Tally struct {
	Counts map[Tag]int `json:"counts"`
}

// NewTally builds a tally from the provided symbols.
func NewTally(tags ...Tag) Tally {
	t := Tally{Counts: map[Tag]int{}}
	t.Add(tags...)
	return t
}

// Add counts each tag once.
func (t *Tally) Add(tags ...Tag) {
	if t.Counts == nil {
		t.Counts = map[Tag]int{}
	}
	for _, tag := range tags {
		t.Counts[tag]++
	}
}

// Merge adds every count from other.
func (t *Tally) Merge(other Tally) {
	if t.Counts == nil {
		t.Counts = map[Tag]int{}
	}
	for tag, count := range other.Counts {
		t.Counts[tag] += count
	}
}

// Count returns the raw count for tag.
func (t Tally) Count(tag Tag) int {
	return t.Counts[tag]
}

// NetSuccesses returns successes minus failures. Negative means net failure.
func (t Tally) NetSuccesses() int {
	return t.Counts[Success] - t.Counts[Failure]
}

// NetBoons returns boons minus banes. Negative means net banes.
func (t Tally) NetBoons() int {
	return t.Counts[Boon] - t.Counts[Bane]
}

// Outcome names the success axis of the result.
func (t Tally) Outcome() string {
	if t.NetSuccesses() > 0 {
		return "success"
	}
	return "failure"
}

// Effective returns the count used when matching effect ranks: success,
// failure, boon and bane report what survives cancellation, every other tag
// reports its raw count.
func (t Tally) Effective(tag Tag) int {
	switch tag {
	case Success:
		return max(t.NetSuccesses(), 0)
	case Failure:
		return max(-t.NetSuccesses(), 0)
	case Boon:
		return max(t.NetBoons(), 0)
	case Bane:
		return max(-t.NetBoons(), 0)
	default:
		return t.Counts[tag]
	}
}

// Satisfies reports whether the tally unlocks a slot needing rank occurrences of tag.
func (t Tally) Satisfies(tag Tag, rank int) bool {
	if rank < 1 {
		return false
	}
	return t.Effective(tag) >= rank
}

// Clone returns a deep copy.
func (t Tally) Clone() Tally {
	out := Tally{Counts: make(map[Tag]int, len(t.Counts))}
	for tag, count := range t.Counts {
		out.Counts[tag] = count
	}
	return out
}

// String renders non-zero counts in tag order, e.g. "success:2 boon:1".
func (t Tally) String() string {
	parts := make([]string, 0, len(t.Counts))
	for _, tag := range allTags {
		if count := t.Counts[tag]; count > 0 {
			parts = append(parts, fmt.Sprintf("%s:%d", tag, count))
		}
	}
	var extra []string
	for tag, count := range t.Counts {
		if !tag.Valid() && count > 0 {
			extra = append(extra, fmt.Sprintf("%s:%d", tag, count))
		}
	}
	sort.Strings(extra)
	parts = append(parts, extra...)
	return strings.Join(parts, " ")
}
