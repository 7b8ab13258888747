package effect

import (
	"context"
	stderrors "errors"
	"fmt"
	"log"
	"sync"

	"github.com/louisbranch/wfrp3e/internal/platform/errors"
	"github.com/louisbranch/wfrp3e/internal/ruleset/action"
	"github.com/louisbranch/wfrp3e/internal/ruleset/script"
	"github.com/louisbranch/wfrp3e/internal/ruleset/symbol"
	"github.com/louisbranch/wfrp3e/internal/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/louisbranch/wfrp3e/internal/ruleset/effect"

// ErrInsufficient indicates a spend larger than the field holds.
var ErrInsufficient = stderrors.New("not enough to spend")

// Resolver evaluates and executes effects. Scripts for one actor run one at
// a time; different actors proceed independently.
type Resolver struct {
	store  storage.DocumentStore
	host   *script.Host
	tracer trace.Tracer
	locks  keyedMutex
}

// NewResolver builds a resolver over the document store.
func NewResolver(store storage.DocumentStore, host *script.Host) *Resolver {
	if host == nil {
		host = script.NewHost()
	}
	return &Resolver{
		store:  store,
		host:   host,
		tracer: otel.Tracer(tracerName),
	}
}

// NewResolution lists every slot on face with its rank already checked.
// Condition scripts have not run yet; call Evaluate for that.
func NewResolution(actorID string, act action.Action, face action.Face, tally symbol.Tally) (*Resolution, error) {
	table, err := act.Table(face)
	if err != nil {
		return nil, errors.Wrap(errors.CodeUnknownFace, "unknown action face", err)
	}
	res := &Resolution{
		ActorID:  actorID,
		ActionID: act.ID,
		Face:     face,
		Tally:    tally.Clone(),
		Effects:  make([]Instance, 0, len(table)),
	}
	for _, eff := range table {
		res.Effects = append(res.Effects, Instance{
			EffectID:    eff.ID,
			Symbol:      eff.Symbol,
			Rank:        eff.Rank,
			Type:        eff.Type,
			Description: eff.Description,
			State:       Inactive,
		})
	}
	return res, nil
}

// Evaluate moves each inactive slot to eligible when its rank is satisfied
// and its condition script holds. A failing condition leaves the slot
// inactive and records the error on it.
func (r *Resolver) Evaluate(ctx context.Context, res *Resolution) error {
	ctx, span := r.tracer.Start(ctx, "effect.Evaluate", trace.WithAttributes(
		attribute.String("actor.id", res.ActorID),
		attribute.String("action.id", res.ActionID),
	))
	defer span.End()

	unlock := r.locks.lock(res.ActorID)
	defer unlock()

	env, act, err := r.load(ctx, res)
	if err != nil {
		recordError(span, err)
		return err
	}
	for i := range res.Effects {
		inst := &res.Effects[i]
		if inst.State != Inactive {
			continue
		}
		if !res.Tally.Satisfies(inst.Symbol, inst.Rank) {
			continue
		}
		eff, _, ok := act.Effect(inst.EffectID)
		if !ok {
			inst.Error = "effect removed from action"
			continue
		}
		ok, err := r.host.Condition(ctx, eff.ConditionScript, env)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			inst.Error = err.Error()
			continue
		}
		inst.Error = ""
		if ok {
			inst.State = Eligible
		}
	}
	span.SetAttributes(attribute.Int("effects.eligible", len(res.InState(Eligible))))
	return nil
}

// Apply runs the effect's script, writes its changes to the actor and then
// runs the post script. Only eligible or reversed effects can be applied.
func (r *Resolver) Apply(ctx context.Context, res *Resolution, effectID string) error {
	ctx, span := r.tracer.Start(ctx, "effect.Apply", trace.WithAttributes(
		attribute.String("actor.id", res.ActorID),
		attribute.String("effect.id", effectID),
	))
	defer span.End()

	unlock := r.locks.lock(res.ActorID)
	defer unlock()

	err := r.apply(ctx, res, effectID)
	recordError(span, err)
	return err
}

func (r *Resolver) apply(ctx context.Context, res *Resolution, effectID string) error {
	inst, ok := res.Find(effectID)
	if !ok {
		return errors.WithMetadata(errors.CodeUnknownEffect, "effect not on this roll", map[string]string{"EffectID": effectID})
	}
	if !canApply(inst.State) {
		return invalidTransition(inst, Applied)
	}

	env, act, err := r.load(ctx, res)
	if err != nil {
		return err
	}
	eff, _, ok := act.Effect(effectID)
	if !ok {
		return errors.WithMetadata(errors.CodeUnknownEffect, "effect removed from action", map[string]string{"EffectID": effectID})
	}

	result, err := r.host.Run(ctx, eff.Script, env)
	if err != nil {
		inst.Error = err.Error()
		return scriptFailed(effectID, "script", err)
	}
	updated, err := r.write(ctx, res.ActorID, result.Fields())
	if err != nil {
		return err
	}
	inst.State = Applied
	inst.Changes = result.Changes
	inst.Chat = result.Chat
	inst.Error = ""

	if eff.PostScript == "" {
		return nil
	}
	if updated.ID != "" {
		env.Actor = updated
	}
	post, err := r.host.Run(ctx, eff.PostScript, env)
	if err != nil {
		log.Printf("effect %s post script: %v", effectID, err)
		inst.Error = err.Error()
		return nil
	}
	if _, err := r.write(ctx, res.ActorID, post.Fields()); err != nil {
		log.Printf("effect %s post script update: %v", effectID, err)
		inst.Error = err.Error()
		return nil
	}
	inst.Chat = append(inst.Chat, post.Chat...)
	return nil
}

// Reverse undoes an applied effect. An authored reverse script runs as is.
// Without one, amounts the apply added are subtracted from the current
// values and fields it set go back to their prior values, so writes made by
// other effects since then survive.
func (r *Resolver) Reverse(ctx context.Context, res *Resolution, effectID string) error {
	ctx, span := r.tracer.Start(ctx, "effect.Reverse", trace.WithAttributes(
		attribute.String("actor.id", res.ActorID),
		attribute.String("effect.id", effectID),
	))
	defer span.End()

	unlock := r.locks.lock(res.ActorID)
	defer unlock()

	err := r.reverse(ctx, res, effectID)
	recordError(span, err)
	return err
}

func (r *Resolver) reverse(ctx context.Context, res *Resolution, effectID string) error {
	inst, ok := res.Find(effectID)
	if !ok {
		return errors.WithMetadata(errors.CodeUnknownEffect, "effect not on this roll", map[string]string{"EffectID": effectID})
	}
	if inst.State != Applied {
		return invalidTransition(inst, Reversed)
	}

	env, act, err := r.load(ctx, res)
	if err != nil {
		return err
	}
	eff, _, _ := act.Effect(effectID)

	var fields map[string]any
	var chat []string
	if eff.ReverseScript != "" {
		result, err := r.host.Run(ctx, eff.ReverseScript, env)
		if err != nil {
			inst.Error = err.Error()
			return scriptFailed(effectID, "reverse script", err)
		}
		fields = result.Fields()
		chat = result.Chat
	} else {
		fields, err = script.RestoreFields(inst.Changes, env.Actor)
		if err != nil {
			wrapped := errors.Wrap(errors.CodeEffectReverseConflict, fmt.Sprintf("effect %s cannot be reversed", effectID), err)
			wrapped.Metadata = map[string]string{"EffectID": effectID, "Reason": err.Error()}
			return wrapped
		}
	}
	if _, err := r.write(ctx, res.ActorID, fields); err != nil {
		return err
	}
	inst.State = Reversed
	inst.Changes = nil
	inst.Chat = chat
	inst.Error = ""
	return nil
}

// Toggle reverses an applied effect and applies an eligible or reversed one.
func (r *Resolver) Toggle(ctx context.Context, res *Resolution, effectID string) error {
	inst, ok := res.Find(effectID)
	if !ok {
		return errors.WithMetadata(errors.CodeUnknownEffect, "effect not on this roll", map[string]string{"EffectID": effectID})
	}
	if inst.State == Applied {
		return r.Reverse(ctx, res, effectID)
	}
	return r.Apply(ctx, res, effectID)
}

// ApplyAll applies every eligible effect in authoring order. Each slot's
// condition runs again against the actor as the earlier slots left it; a
// slot whose condition no longer holds drops back to inactive and is
// reported as skipped. A failing effect is reported in its Outcome and does
// not stop the rest.
func (r *Resolver) ApplyAll(ctx context.Context, res *Resolution) []Outcome {
	ctx, span := r.tracer.Start(ctx, "effect.ApplyAll", trace.WithAttributes(
		attribute.String("actor.id", res.ActorID),
		attribute.String("action.id", res.ActionID),
	))
	defer span.End()

	var outcomes []Outcome
	for _, inst := range res.InState(Eligible) {
		if ctx.Err() != nil {
			outcomes = append(outcomes, Outcome{EffectID: inst.EffectID, State: inst.State, Err: ctx.Err()})
			continue
		}
		outcome := r.applyNext(ctx, res, inst.EffectID)
		recordError(span, outcome.Err)
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

func (r *Resolver) applyNext(ctx context.Context, res *Resolution, effectID string) Outcome {
	unlock := r.locks.lock(res.ActorID)
	defer unlock()

	inst, _ := res.Find(effectID)
	env, act, err := r.load(ctx, res)
	if err != nil {
		return Outcome{EffectID: effectID, State: inst.State, Err: err}
	}
	if eff, _, ok := act.Effect(effectID); ok {
		holds, err := r.host.Condition(ctx, eff.ConditionScript, env)
		if err != nil {
			inst.Error = err.Error()
			return Outcome{EffectID: effectID, State: inst.State, Err: scriptFailed(effectID, "condition script", err)}
		}
		if !holds {
			inst.State = Inactive
			return Outcome{EffectID: effectID, State: Inactive, Skipped: true}
		}
	}
	err = r.apply(ctx, res, effectID)
	return Outcome{EffectID: effectID, State: inst.State, Err: err}
}

// Spend takes amount from the numeric field at path under the actor's lock
// and returns what the field held before. A negative amount refunds.
// Spending more than the field holds returns ErrInsufficient and leaves the
// field unchanged.
func (r *Resolver) Spend(ctx context.Context, actorID, path string, amount int) (int, error) {
	unlock := r.locks.lock(actorID)
	defer unlock()

	doc, err := r.store.GetDocument(ctx, actorID)
	if err != nil {
		return 0, fmt.Errorf("load actor: %w", err)
	}
	held := doc.Int(path)
	if amount > held {
		return held, ErrInsufficient
	}
	if _, err := r.write(ctx, actorID, map[string]any{path: held - amount}); err != nil {
		return held, err
	}
	return held, nil
}

func (r *Resolver) load(ctx context.Context, res *Resolution) (script.Env, action.Action, error) {
	actor, err := r.store.GetDocument(ctx, res.ActorID)
	if err != nil {
		return script.Env{}, action.Action{}, fmt.Errorf("load actor: %w", err)
	}
	item, err := r.store.GetDocument(ctx, res.ActionID)
	if err != nil {
		return script.Env{}, action.Action{}, fmt.Errorf("load action: %w", err)
	}
	act, err := action.FromDocument(item)
	if err != nil {
		return script.Env{}, action.Action{}, err
	}
	env := script.Env{
		Actor: actor,
		Item:  item,
		Tally: res.Tally,
		Face:  string(res.Face),
	}
	return env, act, nil
}

func (r *Resolver) write(ctx context.Context, actorID string, fields map[string]any) (storage.Document, error) {
	if len(fields) == 0 {
		return storage.Document{}, nil
	}
	doc, err := r.store.UpdateDocument(ctx, actorID, fields)
	if err != nil {
		return storage.Document{}, fmt.Errorf("update actor: %w", err)
	}
	return doc, nil
}

func invalidTransition(inst *Instance, to State) error {
	return errors.WithMetadata(errors.CodeEffectInvalidTransition,
		fmt.Sprintf("effect %s cannot move from %s to %s", inst.EffectID, inst.State, to),
		map[string]string{"EffectID": inst.EffectID, "From": string(inst.State), "To": string(to)},
	)
}

func scriptFailed(effectID, which string, err error) error {
	wrapped := errors.Wrap(errors.CodeEffectScriptFailed, fmt.Sprintf("effect %s %s failed", effectID, which), err)
	wrapped.Metadata = map[string]string{"EffectID": effectID, "Reason": err.Error()}
	return wrapped
}

func recordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = map[string]*sync.Mutex{}
	}
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
