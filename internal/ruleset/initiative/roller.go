package initiative

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"

	"github.com/louisbranch/wfrp3e/internal/platform/errors"
	"github.com/louisbranch/wfrp3e/internal/platform/id"
	"github.com/louisbranch/wfrp3e/internal/random"
	"github.com/louisbranch/wfrp3e/internal/ruleset/actor"
	"github.com/louisbranch/wfrp3e/internal/ruleset/config"
	"github.com/louisbranch/wfrp3e/internal/ruleset/dice"
	"github.com/louisbranch/wfrp3e/internal/ruleset/symbol"
	"github.com/louisbranch/wfrp3e/internal/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// MessageKind classifies initiative chat messages.
const MessageKind = "initiative"

// Roll is the payload of one initiative message.
type Roll struct {
	CombatID    string       `json:"combat_id"`
	CombatantID string       `json:"combatant_id"`
	Formula     string       `json:"formula"`
	Tally       symbol.Tally `json:"tally"`
	Initiative  int          `json:"initiative"`
}

// Roller rolls initiative for a batch of combatants.
type Roller struct {
	ruleset  config.Ruleset
	docs     storage.DocumentStore
	messages storage.MessageStore
	source   func() (dice.Source, error)
	tracer   trace.Tracer
}

// RollerOption configures a Roller.
type RollerOption func(*Roller)

// WithSource overrides the per-batch randomness.
func WithSource(fn func() (dice.Source, error)) RollerOption {
	return func(r *Roller) {
		r.source = fn
	}
}

// NewRoller builds an initiative roller.
func NewRoller(rs config.Ruleset, docs storage.DocumentStore, messages storage.MessageStore, opts ...RollerOption) *Roller {
	r := &Roller{
		ruleset:  rs,
		docs:     docs,
		messages: messages,
		source:   seededSource,
		tracer:   otel.Tracer("github.com/louisbranch/wfrp3e/internal/ruleset/initiative"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func seededSource() (dice.Source, error) {
	seed, err := random.NewSeed()
	if err != nil {
		return nil, err
	}
	return dice.NewSeededSource(seed), nil
}

// SaveFunc persists the re-sorted combat.
type SaveFunc func(ctx context.Context, combat Combat) error

// Roll rolls for the named combatants, or all of them when ids is empty,
// then re-sorts the combat. save, when set, runs before anything is posted;
// if it fails no message is posted. One message is posted per combatant in
// iteration order and only the first is audible.
func (r *Roller) Roll(ctx context.Context, combat *Combat, ids []string, save SaveFunc) ([]storage.Message, error) {
	ctx, span := r.tracer.Start(ctx, "initiative.Roll", trace.WithAttributes(
		attribute.String("combat.id", combat.ID),
		attribute.String("encounter.type", combat.EncounterType),
	))
	defer span.End()

	encounter, err := r.ruleset.Encounter(combat.EncounterType)
	if err != nil {
		wrapped := errors.Wrap(errors.CodeUnknownEncounter, "unknown encounter type", err)
		wrapped.Metadata = map[string]string{"Type": combat.EncounterType}
		return nil, wrapped
	}
	if len(ids) == 0 {
		for _, cb := range combat.Combatants {
			ids = append(ids, cb.ID)
		}
	}
	indexes := make([]int, 0, len(ids))
	for _, cid := range ids {
		i := combat.Find(cid)
		if i < 0 {
			return nil, errors.WithMetadata(errors.CodeUnknownCombatant, "combatant not in combat", map[string]string{"CombatantID": cid})
		}
		indexes = append(indexes, i)
	}

	src, err := r.source()
	if err != nil {
		return nil, err
	}

	// Roll the whole batch before mutating the combat so a failure leaves it unchanged.
	rolls := make([]Roll, len(indexes))
	tieBreaks := make([]int, len(indexes))
	names := make([]string, len(indexes))
	for n, i := range indexes {
		cb := combat.Combatants[i]
		doc, err := r.docs.GetDocument(ctx, cb.ActorID)
		if err != nil {
			return nil, fmt.Errorf("load combatant %s: %w", cb.ID, err)
		}
		rating, fortune := actor.Characteristic(doc, encounter.Characteristic)
		counts := dice.Counts{dice.Characteristic: rating, dice.Fortune: fortune}
		if counts.Total() == 0 {
			counts = dice.Counts{dice.Characteristic: 1}
		}
		pool, err := dice.BuildPool(r.ruleset.Dice, counts, dice.RollContext{ActorID: cb.ActorID})
		if err != nil {
			return nil, errors.Wrap(errors.CodeInvalidPool, "invalid initiative pool", err)
		}
		result, err := dice.Evaluate(pool, src)
		if err != nil {
			return nil, rollFailed(err)
		}
		rolls[n] = Roll{
			CombatID:    combat.ID,
			CombatantID: cb.ID,
			Formula:     pool.Context.Formula,
			Tally:       result.Tally,
			Initiative:  result.Tally.NetSuccesses(),
		}
		if encounter.TieBreak != "" {
			tieBreaks[n], _ = actor.Characteristic(doc, encounter.TieBreak)
		}
		names[n] = cb.Name
		if names[n] == "" {
			names[n] = doc.Name
		}
	}

	for n, i := range indexes {
		value := rolls[n].Initiative
		combat.Combatants[i].Initiative = &value
		combat.Combatants[i].TieBreak = tieBreaks[n]
	}
	combat.Sort()
	if save != nil {
		if err := save(ctx, *combat); err != nil {
			return nil, err
		}
	}

	messages := make([]storage.Message, 0, len(rolls))
	for n, roll := range rolls {
		payload, err := json.Marshal(roll)
		if err != nil {
			return messages, fmt.Errorf("encode initiative roll: %w", err)
		}
		msgID, err := id.NewID()
		if err != nil {
			return messages, err
		}
		msg, err := r.messages.PutMessage(ctx, storage.Message{
			ID:      msgID,
			ActorID: combat.Combatants[combat.Find(roll.CombatantID)].ActorID,
			Kind:    MessageKind,
			Outcome: roll.Tally.Outcome(),
			Content: fmt.Sprintf("%s rolls initiative: %d", names[n], roll.Initiative),
			Sound:   n == 0,
			Payload: payload,
		})
		if err != nil {
			return messages, fmt.Errorf("post initiative message: %w", err)
		}
		messages = append(messages, msg)
	}
	span.SetAttributes(attribute.Int("combatants.rolled", len(rolls)))
	return messages, nil
}

func rollFailed(err error) error {
	if stderrors.Is(err, dice.ErrExplosionRunaway) {
		return errors.Wrap(errors.CodeExplosionRunaway, "initiative roll failed", err)
	}
	return errors.Wrap(errors.CodeSymbolConfig, "initiative roll failed", err)
}
