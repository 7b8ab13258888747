// Package check rolls skill and action checks for actors and keeps each
// roll's resolution state on its chat message.
package check

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/louisbranch/wfrp3e/internal/ruleset/action"
	"github.com/louisbranch/wfrp3e/internal/ruleset/dice"
	"github.com/louisbranch/wfrp3e/internal/ruleset/effect"
	"github.com/louisbranch/wfrp3e/internal/ruleset/symbol"
	"github.com/louisbranch/wfrp3e/internal/storage"
)

// Message kinds posted by the service.
const (
	KindCheck   = "check"
	KindPool    = "pool"
	KindAdvance = "advance"
)

// EffectRef is an effect listed on a roll record.
type EffectRef struct {
	ID          string       `json:"id"`
	Rank        int          `json:"rank"`
	Type        string       `json:"type"`
	Description string       `json:"description,omitempty"`
	State       effect.State `json:"state"`
}

// CheckData is the outcome bookkeeping of a roll.
type CheckData struct {
	// Disabled is set once the roll's effects were applied as a batch.
	Disabled   bool               `json:"disabled"`
	Outcome    string             `json:"outcome"`
	Resolution *effect.Resolution `json:"resolution,omitempty"`
}

// RollRecord is the durable record of one roll, stored as the payload of
// its chat message.
type RollRecord struct {
	MessageID      string            `json:"-"`
	ActorID        string            `json:"actor_id,omitempty"`
	ActionID       string            `json:"action_id,omitempty"`
	Face           action.Face       `json:"face,omitempty"`
	Characteristic string            `json:"characteristic,omitempty"`
	Skill          string            `json:"skill,omitempty"`
	Formula        string            `json:"formula"`
	Mode           dice.Mode         `json:"mode"`
	Seed           int64             `json:"seed"`
	Faces          []dice.FaceResult `json:"faces"`
	TotalSymbols   symbol.Tally      `json:"total_symbols"`
	NetSuccesses   int               `json:"net_successes"`
	NetBoons       int               `json:"net_boons"`
	// Effects lists the unlocked effects of the rolled face by symbol.
	Effects   map[action.Face]map[symbol.Tag][]EffectRef `json:"effects,omitempty"`
	CheckData CheckData                                  `json:"check_data"`
	Flavor    string                                     `json:"flavor,omitempty"`
	CreatedAt time.Time                                  `json:"-"`
}

// refresh rebuilds Effects from the resolution's current states.
func (r *RollRecord) refresh() {
	res := r.CheckData.Resolution
	if res == nil {
		r.Effects = nil
		return
	}
	bySymbol := map[symbol.Tag][]EffectRef{}
	for _, inst := range res.Effects {
		if inst.State == effect.Inactive {
			continue
		}
		bySymbol[inst.Symbol] = append(bySymbol[inst.Symbol], EffectRef{
			ID:          inst.EffectID,
			Rank:        inst.Rank,
			Type:        inst.Type,
			Description: inst.Description,
			State:       inst.State,
		})
	}
	r.Effects = map[action.Face]map[symbol.Tag][]EffectRef{res.Face: bySymbol}
}

func (r RollRecord) payload() (json.RawMessage, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode roll record: %w", err)
	}
	return data, nil
}

// RecordFromMessage decodes the roll record carried by a check or pool message.
func RecordFromMessage(msg storage.Message) (RollRecord, error) {
	if msg.Kind != KindCheck && msg.Kind != KindPool {
		return RollRecord{}, fmt.Errorf("message %s is a %s message, not a roll", msg.ID, msg.Kind)
	}
	var rec RollRecord
	if err := json.Unmarshal(msg.Payload, &rec); err != nil {
		return RollRecord{}, fmt.Errorf("decode roll record %s: %w", msg.ID, err)
	}
	rec.MessageID = msg.ID
	rec.CreatedAt = msg.CreatedAt
	return rec, nil
}
