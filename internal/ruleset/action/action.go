// Package action models action cards: two faces, each with an ordered table
// of effects bound to symbol outcomes.
package action

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/louisbranch/wfrp3e/internal/ruleset/symbol"
	"github.com/louisbranch/wfrp3e/internal/storage"
)

// Face is one of the two resolution profiles of an action card.
type Face string

const (
	Conservative Face = "conservative"
	Reckless     Face = "reckless"
)

// ErrUnknownFace indicates a face other than conservative or reckless.
var ErrUnknownFace = errors.New("unknown action face")

// ErrInvalidTable indicates an effect table that cannot be resolved.
var ErrInvalidTable = errors.New("invalid effect table")

// Faces lists both faces in display order.
func Faces() []Face {
	return []Face{Conservative, Reckless}
}

// ParseFace resolves a face name.
func ParseFace(value string) (Face, error) {
	switch Face(strings.ToLower(strings.TrimSpace(value))) {
	case Conservative:
		return Conservative, nil
	case Reckless:
		return Reckless, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFace, value)
	}
}

// Effect is one authored slot: it unlocks when the tally reaches Rank
// occurrences of Symbol and its condition holds.
type Effect struct {
	ID              string     `json:"id"`
	Symbol          symbol.Tag `json:"symbol"`
	Rank            int        `json:"rank"`
	Type            string     `json:"type"`
	Description     string     `json:"description,omitempty"`
	ConditionScript string     `json:"condition_script,omitempty"`
	Script          string     `json:"script,omitempty"`
	ReverseScript   string     `json:"reverse_script,omitempty"`
	PostScript      string     `json:"post_script,omitempty"`
}

// Table is a face's effects in authoring order.
type Table []Effect

// Validate checks ranks, symbols, types and ID uniqueness. An empty
// scriptTypes list accepts any type.
func (t Table) Validate(scriptTypes []string) error {
	seen := make(map[string]bool, len(t))
	for i, effect := range t {
		if strings.TrimSpace(effect.ID) == "" {
			return fmt.Errorf("%w: slot %d has no id", ErrInvalidTable, i)
		}
		if seen[effect.ID] {
			return fmt.Errorf("%w: duplicate effect id %q", ErrInvalidTable, effect.ID)
		}
		seen[effect.ID] = true
		if !effect.Symbol.Valid() {
			return fmt.Errorf("%w: effect %q: %w: %q", ErrInvalidTable, effect.ID, symbol.ErrUnknownTag, effect.Symbol)
		}
		if effect.Rank < 1 {
			return fmt.Errorf("%w: effect %q rank %d", ErrInvalidTable, effect.ID, effect.Rank)
		}
		if len(scriptTypes) > 0 && !slices.Contains(scriptTypes, effect.Type) {
			return fmt.Errorf("%w: effect %q type %q", ErrInvalidTable, effect.ID, effect.Type)
		}
	}
	return nil
}

// Match returns the slots whose rank the tally satisfies, in authoring order.
func (t Table) Match(tally symbol.Tally) Table {
	var out Table
	for _, effect := range t {
		if tally.Satisfies(effect.Symbol, effect.Rank) {
			out = append(out, effect)
		}
	}
	return out
}

// BySymbol groups the table per symbol, keeping authoring order within each.
func (t Table) BySymbol() map[symbol.Tag]Table {
	out := map[symbol.Tag]Table{}
	for _, effect := range t {
		out[effect.Symbol] = append(out[effect.Symbol], effect)
	}
	return out
}

// Action is an action card item.
type Action struct {
	ID   string
	Name string
	// CheckCharacteristic is the characteristic rolled for the check.
	CheckCharacteristic string
	// Difficulty adds challenge dice to every check made with the action.
	Difficulty int
	Faces      map[Face]Table
}

// Table returns the effects on face.
func (a Action) Table(face Face) (Table, error) {
	if _, err := ParseFace(string(face)); err != nil {
		return nil, err
	}
	return a.Faces[face], nil
}

// Effect finds an effect by ID across both faces.
func (a Action) Effect(id string) (Effect, Face, bool) {
	for _, face := range Faces() {
		for _, effect := range a.Faces[face] {
			if effect.ID == id {
				return effect, face, true
			}
		}
	}
	return Effect{}, "", false
}

// Validate validates both faces. IDs must be unique across the card.
func (a Action) Validate(scriptTypes []string) error {
	ids := map[string]Face{}
	for _, face := range Faces() {
		table := a.Faces[face]
		if err := table.Validate(scriptTypes); err != nil {
			return fmt.Errorf("%s face: %w", face, err)
		}
		for _, effect := range table {
			if other, ok := ids[effect.ID]; ok {
				return fmt.Errorf("%w: effect id %q on %s and %s faces", ErrInvalidTable, effect.ID, other, face)
			}
			ids[effect.ID] = face
		}
	}
	return nil
}

type documentBody struct {
	System struct {
		Characteristic string            `json:"characteristic"`
		Difficulty     int               `json:"difficulty"`
		Effects        map[Face][]Effect `json:"effects"`
	} `json:"system"`
}

// FromDocument decodes an action from an item document. Effects live under
// system.effects.conservative and system.effects.reckless.
func FromDocument(doc storage.Document) (Action, error) {
	if doc.Kind != "" && doc.Kind != storage.KindItem {
		return Action{}, fmt.Errorf("document %s is a %s, not an item", doc.ID, doc.Kind)
	}
	var body documentBody
	if len(doc.Data) > 0 {
		if err := json.Unmarshal(doc.Data, &body); err != nil {
			return Action{}, fmt.Errorf("decode action %s: %w", doc.ID, err)
		}
	}
	act := Action{
		ID:                  doc.ID,
		Name:                doc.Name,
		CheckCharacteristic: body.System.Characteristic,
		Difficulty:          body.System.Difficulty,
		Faces:               map[Face]Table{},
	}
	for face, effects := range body.System.Effects {
		parsed, err := ParseFace(string(face))
		if err != nil {
			return Action{}, fmt.Errorf("action %s: %w", doc.ID, err)
		}
		table := make(Table, 0, len(effects))
		for _, effect := range effects {
			tag, err := symbol.ParseTag(string(effect.Symbol))
			if err != nil {
				return Action{}, fmt.Errorf("action %s effect %q: %w", doc.ID, effect.ID, err)
			}
			effect.Symbol = tag
			table = append(table, effect)
		}
		act.Faces[parsed] = table
	}
	return act, nil
}
