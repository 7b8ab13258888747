package dice

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/louisbranch/wfrp3e/internal/ruleset/symbol"
)

// ErrMissingDice indicates a pool with no dice.
var ErrMissingDice = errors.New("at least one die must be provided")

// ErrInvalidPoolSpec indicates negative counts or an impossible stance.
var ErrInvalidPoolSpec = errors.New("invalid dice pool specification")

// ErrInvalidFormula indicates a pool formula that cannot be parsed.
var ErrInvalidFormula = errors.New("invalid dice pool formula")

// Mode controls who can see a roll's chat message.
type Mode string

const (
	ModePublic Mode = "public"
	ModeGM     Mode = "gm"
	ModeBlind  Mode = "blind"
	ModeSelf   Mode = "self"
)

// ParseMode resolves a roll visibility mode, defaulting to public.
func ParseMode(value string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(value))) {
	case "", ModePublic:
		return ModePublic, nil
	case ModeGM:
		return ModeGM, nil
	case ModeBlind:
		return ModeBlind, nil
	case ModeSelf:
		return ModeSelf, nil
	default:
		return "", fmt.Errorf("unknown roll mode %q", value)
	}
}

// RollContext carries the request metadata attached to a pool.
type RollContext struct {
	ActorID string
	Formula string
	Mode    Mode
}

// Counts is a pool composition by die type.
type Counts map[DieType]int

// Total returns the number of dice.
func (c Counts) Total() int {
	total := 0
	for _, n := range c {
		total += n
	}
	return total
}

// Formula renders counts in die type order, e.g. "3dch+1dco+1dex".
func (c Counts) Formula() string {
	parts := make([]string, 0, len(c))
	for _, t := range dieTypeOrder {
		if n := c[t]; n > 0 {
			parts = append(parts, fmt.Sprintf("%dd%s", n, t.Code()))
		}
	}
	return strings.Join(parts, "+")
}

// ParseFormula reads a formula produced by Counts.Formula.
func ParseFormula(formula string) (Counts, error) {
	trimmed := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(formula)), " ", "")
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty formula", ErrInvalidFormula)
	}
	counts := Counts{}
	for _, term := range strings.Split(trimmed, "+") {
		idx := strings.Index(term, "d")
		if idx <= 0 {
			return nil, fmt.Errorf("%w: term %q", ErrInvalidFormula, term)
		}
		n, err := strconv.Atoi(term[:idx])
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("%w: count in %q", ErrInvalidFormula, term)
		}
		t, err := ParseDieType(term[idx+1:])
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidFormula, err)
		}
		counts[t] += n
	}
	return counts, nil
}

// Spec describes a check the way a character sheet does: a characteristic
// rating, stance dice that replace characteristic dice, and modifier dice.
type Spec struct {
	Characteristic int
	Conservative   int
	Reckless       int
	Expertise      int
	Fortune        int
	Challenge      int
	Misfortune     int
}

// Counts converts the spec into a pool composition.
func (s Spec) Counts() (Counts, error) {
	values := []int{s.Characteristic, s.Conservative, s.Reckless, s.Expertise, s.Fortune, s.Challenge, s.Misfortune}
	for _, v := range values {
		if v < 0 {
			return nil, fmt.Errorf("%w: negative dice count", ErrInvalidPoolSpec)
		}
	}
	if s.Conservative > 0 && s.Reckless > 0 {
		return nil, fmt.Errorf("%w: a check is either conservative or reckless", ErrInvalidPoolSpec)
	}
	stance := s.Conservative + s.Reckless
	if stance > s.Characteristic {
		return nil, fmt.Errorf("%w: %d stance dice exceed characteristic %d", ErrInvalidPoolSpec, stance, s.Characteristic)
	}
	counts := Counts{
		Characteristic: s.Characteristic - stance,
		Conservative:   s.Conservative,
		Reckless:       s.Reckless,
		Expertise:      s.Expertise,
		Fortune:        s.Fortune,
		Challenge:      s.Challenge,
		Misfortune:     s.Misfortune,
	}
	for t, n := range counts {
		if n == 0 {
			delete(counts, t)
		}
	}
	return counts, nil
}

// Pool is an ordered, fixed set of dice assembled for one check.
type Pool struct {
	dice    []Die
	Context RollContext
}

// BuildPool assembles a pool from the configured definitions.
func BuildPool(set Set, counts Counts, ctx RollContext) (Pool, error) {
	if counts.Total() == 0 {
		return Pool{}, ErrMissingDice
	}
	dice := make([]Die, 0, counts.Total())
	for _, t := range dieTypeOrder {
		n := counts[t]
		if n < 0 {
			return Pool{}, fmt.Errorf("%w: negative %s count", ErrInvalidPoolSpec, t)
		}
		if n == 0 {
			continue
		}
		def, ok := set[t]
		if !ok {
			return Pool{}, fmt.Errorf("%w: %s", ErrUnknownDieType, t)
		}
		for i := 0; i < n; i++ {
			dice = append(dice, NewDie(def))
		}
	}
	for t, n := range counts {
		if _, known := dieTypeNames[t]; !known && n != 0 {
			return Pool{}, fmt.Errorf("%w: %d", ErrUnknownDieType, int(t))
		}
	}
	if ctx.Formula == "" {
		ctx.Formula = counts.Formula()
	}
	if ctx.Mode == "" {
		ctx.Mode = ModePublic
	}
	return Pool{dice: dice, Context: ctx}, nil
}

// Dice returns a copy of the pool's dice.
func (p Pool) Dice() []Die {
	out := make([]Die, len(p.dice))
	copy(out, p.dice)
	return out
}

// Size returns the number of dice.
func (p Pool) Size() int {
	return len(p.dice)
}

// Result is the outcome of evaluating a pool.
type Result struct {
	Faces []FaceResult
	Tally symbol.Tally
}

// Evaluate rolls every die once and tallies every symbol drawn.
//
// Dice are rolled in pool order; order only affects Faces, never Tally.
func Evaluate(pool Pool, src Source) (Result, error) {
	if len(pool.dice) == 0 {
		return Result{}, ErrMissingDice
	}
	result := Result{
		Faces: make([]FaceResult, 0, len(pool.dice)),
		Tally: symbol.NewTally(),
	}
	for _, die := range pool.dice {
		face, err := die.Roll(src)
		if err != nil {
			return Result{}, err
		}
		result.Faces = append(result.Faces, face)
		result.Tally.Add(face.Symbols...)
	}
	return result, nil
}
