package symbol

import (
	"errors"
	"math/rand"
	"testing"
)

func TestParseTagAcceptsAliases(t *testing.T) {
	tcs := map[string]Tag{
		"success":     Success,
		" Boon ":      Boon,
		"expertise":   Critical,
		"exp-extra":   ExpertiseExtra,
		"chaos-star":  ChaosStar,
		"sigmar-star": SigmarStar,
	}
	for input, want := range tcs {
		got, err := ParseTag(input)
		if err != nil {
			t.Fatalf("ParseTag(%q) returned error: %v", input, err)
		}
		if got != want {
			t.Fatalf("ParseTag(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestParseTagRejectsUnknown(t *testing.T) {
	_, err := ParseTag("righteous-fury")
	if !errors.Is(err, ErrUnknownTag) {
		t.Fatalf("ParseTag error = %v, want %v", err, ErrUnknownTag)
	}
}

func TestFacesValidateRequiresEveryFace(t *testing.T) {
	faces := Faces{1: {Success}, 2: nil, 4: {Boon}}
	err := faces.Validate(4)
	if !errors.Is(err, ErrMissingFace) {
		t.Fatalf("Validate error = %v, want %v", err, ErrMissingFace)
	}

	faces[3] = []Tag{}
	if err := faces.Validate(4); err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
}

func TestFacesValidateRejectsOutOfRangeFace(t *testing.T) {
	faces := Faces{1: nil, 2: nil, 3: nil}
	if err := faces.Validate(2); err == nil {
		t.Fatal("expected error for face outside range")
	}
}

func TestFacesLookupCopiesSymbols(t *testing.T) {
	faces := Faces{1: {Success, Delay}}
	got, err := faces.Lookup(1)
	if err != nil {
		t.Fatalf("Lookup returned error: %v", err)
	}
	got[0] = Failure
	if faces[1][0] != Success {
		t.Fatalf("Lookup aliased table storage: %v", faces[1])
	}
}

// TestTallyCancellationAxes checks only success/failure and boon/bane cancel.
func TestTallyCancellationAxes(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	tags := AllTags()
	for i := 0; i < 500; i++ {
		n := rng.Intn(30)
		raw := make([]Tag, 0, n)
		want := map[Tag]int{}
		for j := 0; j < n; j++ {
			tag := tags[rng.Intn(len(tags))]
			raw = append(raw, tag)
			want[tag]++
		}
		tally := NewTally(raw...)
		if got := tally.NetSuccesses(); got != want[Success]-want[Failure] {
			t.Fatalf("NetSuccesses = %d, want %d", got, want[Success]-want[Failure])
		}
		if got := tally.NetBoons(); got != want[Boon]-want[Bane] {
			t.Fatalf("NetBoons = %d, want %d", got, want[Boon]-want[Bane])
		}
		for _, tag := range []Tag{Delay, Exertion, Critical, ExpertiseExtra, ChaosStar, SigmarStar} {
			if got := tally.Count(tag); got != want[tag] {
				t.Fatalf("Count(%s) = %d, want %d", tag, got, want[tag])
			}
			if got := tally.Effective(tag); got != want[tag] {
				t.Fatalf("Effective(%s) = %d, want %d", tag, got, want[tag])
			}
		}
	}
}

func TestTallyNetFieldsMayBeNegative(t *testing.T) {
	tally := NewTally(Failure, Failure, Success, Bane)
	if got := tally.NetSuccesses(); got != -1 {
		t.Fatalf("NetSuccesses = %d, want -1", got)
	}
	if got := tally.NetBoons(); got != -1 {
		t.Fatalf("NetBoons = %d, want -1", got)
	}
	if got := tally.Outcome(); got != "failure" {
		t.Fatalf("Outcome = %q, want failure", got)
	}
	if got := tally.Effective(Failure); got != 1 {
		t.Fatalf("Effective(failure) = %d, want 1", got)
	}
}

func TestTallySatisfiesUsesNetSuccesses(t *testing.T) {
	three := NewTally(Success, Success, Success, Failure)
	if !three.Satisfies(Success, 2) {
		t.Fatal("expected net 2 successes to satisfy rank 2")
	}
	one := NewTally(Success, Success, Failure)
	if one.Satisfies(Success, 2) {
		t.Fatal("expected net 1 success to miss rank 2")
	}
	if one.Satisfies(Success, 0) {
		t.Fatal("expected rank 0 to never be satisfied")
	}
}

func TestTallyMergeAndString(t *testing.T) {
	tally := NewTally(Success)
	tally.Merge(NewTally(Boon, Success, ChaosStar))
	if got := tally.String(); got != "success:2 boon:1 chaos_star:1" {
		t.Fatalf("String = %q", got)
	}
	clone := tally.Clone()
	clone.Add(Bane)
	if tally.Count(Bane) != 0 {
		t.Fatal("Clone shares storage with original")
	}
}
