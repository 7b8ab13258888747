// Package initiative rolls combat initiative and keeps turn order.
package initiative

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/louisbranch/wfrp3e/internal/storage"
)

// Combatant is one participant in a combat.
type Combatant struct {
	ID      string `json:"id"`
	ActorID string `json:"actor_id"`
	Name    string `json:"name"`
	// Initiative is nil until rolled.
	Initiative *int `json:"initiative,omitempty"`
	// TieBreak is the tie-break characteristic value at the last roll.
	TieBreak int `json:"tie_break"`
	// Order is the registration order.
	Order int `json:"order"`
}

// Combat is an encounter's turn state.
type Combat struct {
	ID            string      `json:"id"`
	EncounterType string      `json:"encounter_type"`
	Combatants    []Combatant `json:"combatants"`
	// Turn indexes Combatants; it follows the acting combatant across re-sorts.
	Turn int `json:"turn"`
}

// Current returns the acting combatant.
func (c Combat) Current() (Combatant, bool) {
	if c.Turn < 0 || c.Turn >= len(c.Combatants) {
		return Combatant{}, false
	}
	return c.Combatants[c.Turn], true
}

// Find returns the index of a combatant by ID, or -1.
func (c Combat) Find(id string) int {
	for i, cb := range c.Combatants {
		if cb.ID == id {
			return i
		}
	}
	return -1
}

// Add registers a combatant at the end of the registration order.
func (c *Combat) Add(cb Combatant) error {
	if cb.ID == "" {
		return fmt.Errorf("combatant id is required")
	}
	if c.Find(cb.ID) >= 0 {
		return fmt.Errorf("combatant %s already registered", cb.ID)
	}
	next := 0
	for _, existing := range c.Combatants {
		next = max(next, existing.Order+1)
	}
	cb.Order = next
	c.Combatants = append(c.Combatants, cb)
	return nil
}

// Sort reorders combatants and moves Turn to follow the acting combatant.
func (c *Combat) Sort() {
	current, ok := c.Current()
	c.Combatants = Order(c.Combatants)
	if !ok {
		c.Turn = 0
		return
	}
	if i := c.Find(current.ID); i >= 0 {
		c.Turn = i
	}
}

// Order returns combatants in turn order: initiative descending, then tie-break
// descending, then registration order. Unrolled combatants go last.
func Order(combatants []Combatant) []Combatant {
	out := make([]Combatant, len(combatants))
	copy(out, combatants)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if (a.Initiative == nil) != (b.Initiative == nil) {
			return a.Initiative != nil
		}
		if a.Initiative != nil && *a.Initiative != *b.Initiative {
			return *a.Initiative > *b.Initiative
		}
		if a.Initiative != nil && a.TieBreak != b.TieBreak {
			return a.TieBreak > b.TieBreak
		}
		return a.Order < b.Order
	})
	return out
}

// FromDocument decodes a combat document.
func FromDocument(doc storage.Document) (Combat, error) {
	if doc.Kind != storage.KindCombat {
		return Combat{}, fmt.Errorf("document %s is a %s, not a combat", doc.ID, doc.Kind)
	}
	var c Combat
	if err := json.Unmarshal(doc.Data, &c); err != nil {
		return Combat{}, fmt.Errorf("decode combat %s: %w", doc.ID, err)
	}
	c.ID = doc.ID
	return c, nil
}

// Document encodes the combat for the document store.
func (c Combat) Document() (storage.Document, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return storage.Document{}, fmt.Errorf("encode combat %s: %w", c.ID, err)
	}
	return storage.Document{ID: c.ID, Kind: storage.KindCombat, Name: c.EncounterType, Data: data}, nil
}
