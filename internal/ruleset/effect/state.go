// Package effect resolves action effects against an evaluated tally and
// drives their apply/reverse state machine.
package effect

import (
	"github.com/louisbranch/wfrp3e/internal/ruleset/action"
	"github.com/louisbranch/wfrp3e/internal/ruleset/script"
	"github.com/louisbranch/wfrp3e/internal/ruleset/symbol"
)

// State is one effect's position in the resolution state machine.
type State string

const (
	Inactive State = "inactive"
	Eligible State = "eligible"
	Applied  State = "applied"
	Reversed State = "reversed"
)

// Instance is the per-roll state of one authored effect.
type Instance struct {
	EffectID    string     `json:"effect_id"`
	Symbol      symbol.Tag `json:"symbol"`
	Rank        int        `json:"rank"`
	Type        string     `json:"type"`
	Description string     `json:"description,omitempty"`
	State       State      `json:"state"`
	// Changes are the actor fields the last apply wrote.
	Changes []script.Change `json:"changes,omitempty"`
	Chat    []string        `json:"chat,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Resolution is the effect bookkeeping of one roll. It travels with the
// roll record, so the same action rolled twice resolves independently.
type Resolution struct {
	ActorID  string       `json:"actor_id"`
	ActionID string       `json:"action_id"`
	Face     action.Face  `json:"face"`
	Tally    symbol.Tally `json:"tally"`
	// Effects lists every slot on Face in authoring order.
	Effects []Instance `json:"effects"`
}

// Find returns the instance for effectID.
func (r *Resolution) Find(effectID string) (*Instance, bool) {
	for i := range r.Effects {
		if r.Effects[i].EffectID == effectID {
			return &r.Effects[i], true
		}
	}
	return nil, false
}

// InState lists instances currently in state, in authoring order.
func (r *Resolution) InState(state State) []Instance {
	var out []Instance
	for _, inst := range r.Effects {
		if inst.State == state {
			out = append(out, inst)
		}
	}
	return out
}

// Outcome reports the result of one effect in a batch.
type Outcome struct {
	EffectID string
	State    State
	// Skipped is set when the condition stopped holding before the slot ran.
	Skipped bool
	Err     error
}

func canApply(s State) bool {
	return s == Eligible || s == Reversed
}
