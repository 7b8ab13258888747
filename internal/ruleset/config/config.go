// Package config holds the ruleset tables consumed by the dice engine, the
// effect resolver and the initiative roller.
//
// A Ruleset is an explicit value: callers pass it into constructors, and no
// evaluation code reads ambient configuration.
package config

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/louisbranch/wfrp3e/internal/ruleset/dice"
	"github.com/louisbranch/wfrp3e/internal/ruleset/symbol"
)

//go:embed ruleset.json
var defaultRuleset []byte

// ErrUnknownEncounterType indicates an encounter type with no initiative configuration.
var ErrUnknownEncounterType = errors.New("unknown encounter type")

// EncounterType configures initiative for one kind of encounter.
type EncounterType struct {
	Characteristic string `json:"characteristic"`
	TieBreak       string `json:"tie_break"`
}

// Ruleset is one ruleset instance's configuration.
type Ruleset struct {
	Characteristics []string
	Dice            dice.Set
	EncounterTypes  map[string]EncounterType
	ScriptTypes     []string
}

type rawDie struct {
	Faces       int                 `json:"faces"`
	ExplodeFace int                 `json:"explode_face"`
	Symbols     map[string][]string `json:"symbols"`
}

type rawRuleset struct {
	Characteristics []string                 `json:"characteristics"`
	Dice            map[string]rawDie        `json:"dice"`
	EncounterTypes  map[string]EncounterType `json:"encounter_types"`
	ScriptTypes     []string                 `json:"script_types"`
}

// Default returns the embedded WFRP3e ruleset.
func Default() (Ruleset, error) {
	return Parse(defaultRuleset)
}

// MustDefault returns the embedded ruleset and panics when it is invalid.
func MustDefault() Ruleset {
	rs, err := Default()
	if err != nil {
		panic(fmt.Sprintf("embedded ruleset: %v", err))
	}
	return rs
}

// Load reads a ruleset document from path. An empty path returns Default.
func Load(path string) (Ruleset, error) {
	if strings.TrimSpace(path) == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Ruleset{}, fmt.Errorf("read ruleset: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a ruleset document.
func Parse(data []byte) (Ruleset, error) {
	var raw rawRuleset
	if err := json.Unmarshal(data, &raw); err != nil {
		return Ruleset{}, fmt.Errorf("decode ruleset: %w", err)
	}

	rs := Ruleset{
		Characteristics: raw.Characteristics,
		Dice:            dice.Set{},
		EncounterTypes:  raw.EncounterTypes,
		ScriptTypes:     raw.ScriptTypes,
	}
	for name, die := range raw.Dice {
		dieType, err := dice.ParseDieType(name)
		if err != nil {
			return Ruleset{}, err
		}
		faces := symbol.Faces{}
		for key, names := range die.Symbols {
			face, err := strconv.Atoi(key)
			if err != nil {
				return Ruleset{}, fmt.Errorf("%s: face %q is not a number", name, key)
			}
			tags := make([]symbol.Tag, 0, len(names))
			for _, n := range names {
				tag, err := symbol.ParseTag(n)
				if err != nil {
					return Ruleset{}, fmt.Errorf("%s face %d: %w", name, face, err)
				}
				tags = append(tags, tag)
			}
			faces[face] = tags
		}
		rs.Dice[dieType] = dice.Definition{
			Type:        dieType,
			FaceCount:   die.Faces,
			Faces:       faces,
			ExplodeFace: die.ExplodeFace,
		}
	}
	if err := rs.Validate(); err != nil {
		return Ruleset{}, err
	}
	return rs, nil
}

// Validate checks the die tables and the initiative configuration.
func (r Ruleset) Validate() error {
	if len(r.Dice) == 0 {
		return errors.New("ruleset defines no dice")
	}
	if err := r.Dice.Validate(); err != nil {
		return err
	}
	for name, et := range r.EncounterTypes {
		if !r.HasCharacteristic(et.Characteristic) {
			return fmt.Errorf("encounter type %q: unknown characteristic %q", name, et.Characteristic)
		}
		if et.TieBreak != "" && !r.HasCharacteristic(et.TieBreak) {
			return fmt.Errorf("encounter type %q: unknown tie-break characteristic %q", name, et.TieBreak)
		}
	}
	if len(r.ScriptTypes) == 0 {
		return errors.New("ruleset defines no script types")
	}
	return nil
}

// HasCharacteristic reports whether name is a configured characteristic.
func (r Ruleset) HasCharacteristic(name string) bool {
	return slices.Contains(r.Characteristics, name)
}

// HasScriptType reports whether name is a configured effect classification.
func (r Ruleset) HasScriptType(name string) bool {
	return slices.Contains(r.ScriptTypes, name)
}

// Encounter returns the initiative configuration for an encounter type.
func (r Ruleset) Encounter(name string) (EncounterType, error) {
	et, ok := r.EncounterTypes[strings.TrimSpace(name)]
	if !ok {
		return EncounterType{}, fmt.Errorf("%w: %q", ErrUnknownEncounterType, name)
	}
	return et, nil
}
