// Package dice implements the WFRP3e symbolic dice: die definitions, single
// die rolls with explosion, pool assembly and pool evaluation.
//
// Dice never carry state across rolls. A pool is assembled once per check,
// rolled once, and discarded after its symbols are tallied.
package dice

import (
	"errors"
	"fmt"
	"strings"

	"github.com/louisbranch/wfrp3e/internal/ruleset/symbol"
)

// MaxExplosions bounds reroll-and-accumulate chains. It is a sanity ceiling
// against corrupted tables and adversarial sources, not a gameplay rule.
const MaxExplosions = 1000

// ErrExplosionRunaway indicates an exploding die exceeded MaxExplosions.
var ErrExplosionRunaway = errors.New("die explosion exceeded sanity ceiling")

// ErrInvalidDefinition indicates a die definition fails validation.
var ErrInvalidDefinition = errors.New("invalid die definition")

// ErrUnknownDieType indicates a die type without a configured definition.
var ErrUnknownDieType = errors.New("unknown die type")

// DieType identifies one of the closed set of symbolic dice.
type DieType int

const (
	DieUnspecified DieType = iota
	Characteristic
	Conservative
	Reckless
	Expertise
	Fortune
	Challenge
	Misfortune
)

var dieTypeOrder = []DieType{
	Characteristic,
	Conservative,
	Reckless,
	Expertise,
	Fortune,
	Challenge,
	Misfortune,
}

var dieTypeNames = map[DieType]string{
	Characteristic: "characteristic",
	Conservative:   "conservative",
	Reckless:       "reckless",
	Expertise:      "expertise",
	Fortune:        "fortune",
	Challenge:      "challenge",
	Misfortune:     "misfortune",
}

// dieTypeCodes are the short codes used in pool formulas ("2dch+1dco").
var dieTypeCodes = map[DieType]string{
	Characteristic: "ch",
	Conservative:   "co",
	Reckless:       "re",
	Expertise:      "ex",
	Fortune:        "fo",
	Challenge:      "cl",
	Misfortune:     "mi",
}

// DieTypes returns every die type in pool display order.
func DieTypes() []DieType {
	out := make([]DieType, len(dieTypeOrder))
	copy(out, dieTypeOrder)
	return out
}

func (t DieType) String() string {
	if name, ok := dieTypeNames[t]; ok {
		return name
	}
	return "unspecified"
}

// Code returns the formula code for the die type.
func (t DieType) Code() string {
	return dieTypeCodes[t]
}

// ParseDieType resolves a die type by name or formula code.
func ParseDieType(value string) (DieType, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, t := range dieTypeOrder {
		if dieTypeNames[t] == normalized || dieTypeCodes[t] == normalized {
			return t, nil
		}
	}
	return DieUnspecified, fmt.Errorf("%w: %q", ErrUnknownDieType, value)
}

// MarshalText encodes the die type by name.
func (t DieType) MarshalText() ([]byte, error) {
	if _, ok := dieTypeNames[t]; !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownDieType, int(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText decodes a die type name or code.
func (t *DieType) UnmarshalText(text []byte) error {
	parsed, err := ParseDieType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Definition describes one die type: its faces, symbols and explosion rule.
type Definition struct {
	Type      DieType
	FaceCount int
	Faces     symbol.Faces
	// ExplodeFace is the face that triggers reroll-and-accumulate; zero disables it.
	ExplodeFace int
}

// Validate checks the symbol table covers every face and the explosion face is in range.
func (d Definition) Validate() error {
	if _, ok := dieTypeNames[d.Type]; !ok {
		return fmt.Errorf("%w: %w: %d", ErrInvalidDefinition, ErrUnknownDieType, int(d.Type))
	}
	if err := d.Faces.Validate(d.FaceCount); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidDefinition, d.Type, err)
	}
	if d.ExplodeFace < 0 || d.ExplodeFace > d.FaceCount {
		return fmt.Errorf("%w: %s: explode face %d outside 1..%d", ErrInvalidDefinition, d.Type, d.ExplodeFace, d.FaceCount)
	}
	if d.ExplodeFace != 0 && d.FaceCount == 1 {
		return fmt.Errorf("%w: %s: every face explodes", ErrInvalidDefinition, d.Type)
	}
	return nil
}

// Set holds the definitions available to one ruleset instance.
type Set map[DieType]Definition

// Validate validates every definition and its key.
func (s Set) Validate() error {
	for key, def := range s {
		if key != def.Type {
			return fmt.Errorf("%w: key %s holds %s", ErrInvalidDefinition, key, def.Type)
		}
		if err := def.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Die is one die instance assembled into a pool.
type Die struct {
	def Definition
}

// NewDie builds a die for the given definition.
func NewDie(def Definition) Die {
	return Die{def: def}
}

// Type returns the die type.
func (d Die) Type() DieType {
	return d.def.Type
}

// FaceCount returns the number of faces.
func (d Die) FaceCount() int {
	return d.def.FaceCount
}

// FaceResult captures one die's contribution to a pool.
type FaceResult struct {
	Type DieType `json:"type"`
	// Face is the first face drawn.
	Face int `json:"face"`
	// Rolls lists every face drawn, including explosion rerolls.
	Rolls   []int        `json:"rolls"`
	Symbols []symbol.Tag `json:"symbols"`
}

// Exploded reports whether the die rerolled.
func (r FaceResult) Exploded() bool {
	return len(r.Rolls) > 1
}

// Roll draws a face uniformly from src and returns its symbols. Exploding
// dice keep drawing while the explode face recurs, accumulating symbols of
// every draw.
func (d Die) Roll(src Source) (FaceResult, error) {
	if src == nil {
		return FaceResult{}, errors.New("random source is required")
	}
	if d.def.FaceCount <= 0 {
		return FaceResult{}, fmt.Errorf("%w: %s has no faces", ErrInvalidDefinition, d.def.Type)
	}

	face := rollFace(src, d.def.FaceCount)
	symbols, err := d.def.Faces.Lookup(face)
	if err != nil {
		return FaceResult{}, fmt.Errorf("%s: %w", d.def.Type, err)
	}
	result := FaceResult{
		Type:    d.def.Type,
		Face:    face,
		Rolls:   []int{face},
		Symbols: symbols,
	}

	for current := face; d.def.ExplodeFace != 0 && current == d.def.ExplodeFace; {
		if len(result.Rolls) > MaxExplosions {
			return FaceResult{}, fmt.Errorf("%s: %w", d.def.Type, ErrExplosionRunaway)
		}
		current = rollFace(src, d.def.FaceCount)
		extra, err := d.def.Faces.Lookup(current)
		if err != nil {
			return FaceResult{}, fmt.Errorf("%s: %w", d.def.Type, err)
		}
		result.Rolls = append(result.Rolls, current)
		result.Symbols = append(result.Symbols, extra...)
	}
	return result, nil
}

// rollFace draws a face in 1..sides.
func rollFace(src Source, sides int) int {
	return src.Intn(sides) + 1
}
