package effect

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	apperrors "github.com/louisbranch/wfrp3e/internal/platform/errors"
	"github.com/louisbranch/wfrp3e/internal/ruleset/action"
	"github.com/louisbranch/wfrp3e/internal/ruleset/script"
	"github.com/louisbranch/wfrp3e/internal/ruleset/symbol"
	"github.com/louisbranch/wfrp3e/internal/storage"
	"github.com/louisbranch/wfrp3e/internal/storage/sqlite"
)

const strikeDoc = `{
	"system": {
		"characteristic": "strength",
		"effects": {
			"conservative": [
				{"id": "wound", "symbol": "success", "rank": 1, "type": "general",
				 "script": "actor.add('system.wounds.value', 2)",
				 "post_script": "chat('struck'); actor.add('system.stats.strikes', 1)"},
				{"id": "heavy", "symbol": "success", "rank": 2, "type": "general",
				 "script": "actor.add('system.wounds.value', 3)"},
				{"id": "rally", "symbol": "boon", "rank": 1, "type": "talent",
				 "condition_script": "actor.get('system.fortune.value') < 3",
				 "script": "actor.add('system.fortune.value', 1)",
				 "reverse_script": "actor.add('system.fortune.value', -1)"},
				{"id": "broken", "symbol": "success", "rank": 1, "type": "general",
				 "script": "error('broken effect')"},
				{"id": "focus", "symbol": "boon", "rank": 1, "type": "general",
				 "condition_script": "tally.net_boons > 5"}
			],
			"reckless": [
				{"id": "exhaust", "symbol": "bane", "rank": 1, "type": "general",
				 "script": "actor.add('system.fatigue.value', 1)"}
			]
		}
	}
}`

type fixture struct {
	store    *sqlite.Store
	resolver *Resolver
	action   action.Action
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "engine.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	if err := store.PutDocument(ctx, storage.Document{
		ID:   "actor-1",
		Kind: storage.KindActor,
		Name: "Gunther",
		Data: json.RawMessage(`{"system":{"wounds":{"value":1},"fortune":{"value":2}}}`),
	}); err != nil {
		t.Fatalf("put actor: %v", err)
	}
	item := storage.Document{ID: "strike", Kind: storage.KindItem, Name: "Strike", Data: json.RawMessage(strikeDoc)}
	if err := store.PutDocument(ctx, item); err != nil {
		t.Fatalf("put item: %v", err)
	}
	act, err := action.FromDocument(item)
	if err != nil {
		t.Fatalf("decode action: %v", err)
	}
	return fixture{store: store, resolver: NewResolver(store, script.NewHost()), action: act}
}

func (f fixture) resolve(t *testing.T, face action.Face, tally symbol.Tally) *Resolution {
	t.Helper()
	res, err := NewResolution("actor-1", f.action, face, tally)
	if err != nil {
		t.Fatalf("NewResolution returned error: %v", err)
	}
	if err := f.resolver.Evaluate(context.Background(), res); err != nil {
		t.Fatalf("Evaluate returned error: %v", err)
	}
	return res
}

func (f fixture) actorInt(t *testing.T, path string) int {
	t.Helper()
	doc, err := f.store.GetDocument(context.Background(), "actor-1")
	if err != nil {
		t.Fatalf("get actor: %v", err)
	}
	return doc.Int(path)
}

func states(res *Resolution) map[string]State {
	out := map[string]State{}
	for _, inst := range res.Effects {
		out[inst.EffectID] = inst.State
	}
	return out
}

func TestEvaluateEligibility(t *testing.T) {
	f := newFixture(t)
	// successes=3, failures=1: net 2 unlocks the rank-2 slot.
	res := f.resolve(t, action.Conservative, symbol.NewTally(symbol.Success, symbol.Success, symbol.Success, symbol.Failure, symbol.Boon))

	want := map[string]State{
		"wound":  Eligible,
		"heavy":  Eligible,
		"rally":  Eligible,
		"broken": Eligible,
		"focus":  Inactive,
	}
	got := states(res)
	for id, state := range want {
		if got[id] != state {
			t.Fatalf("%s state = %s, want %s", id, got[id], state)
		}
	}

	weaker := f.resolve(t, action.Conservative, symbol.NewTally(symbol.Success, symbol.Success, symbol.Failure))
	if s := states(weaker)["heavy"]; s != Inactive {
		t.Fatalf("heavy state with net 1 = %s, want %s", s, Inactive)
	}
}

func TestApplyReverseRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.resolve(t, action.Conservative, symbol.NewTally(symbol.Success))

	if err := f.resolver.Apply(ctx, res, "wound"); err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}
	if got := f.actorInt(t, "system.wounds.value"); got != 3 {
		t.Fatalf("wounds after apply = %d, want 3", got)
	}
	inst, _ := res.Find("wound")
	if inst.State != Applied || len(inst.Changes) != 1 || len(inst.Chat) != 1 || inst.Chat[0] != "struck" {
		t.Fatalf("instance = %+v", inst)
	}

	if err := f.resolver.Reverse(ctx, res, "wound"); err != nil {
		t.Fatalf("Reverse returned error: %v", err)
	}
	if got := f.actorInt(t, "system.wounds.value"); got != 1 {
		t.Fatalf("wounds after reverse = %d, want 1", got)
	}
	// Post script effects are never undone.
	if got := f.actorInt(t, "system.stats.strikes"); got != 1 {
		t.Fatalf("strikes after reverse = %d, want 1", got)
	}
}

func TestReverseScriptRunsWhenAuthored(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.resolve(t, action.Conservative, symbol.NewTally(symbol.Boon))

	if err := f.resolver.Apply(ctx, res, "rally"); err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}
	if got := f.actorInt(t, "system.fortune.value"); got != 3 {
		t.Fatalf("fortune = %d, want 3", got)
	}
	if _, err := f.store.UpdateDocument(ctx, "actor-1", map[string]any{"system.fortune.value": 5}); err != nil {
		t.Fatalf("update actor: %v", err)
	}
	if err := f.resolver.Reverse(ctx, res, "rally"); err != nil {
		t.Fatalf("Reverse returned error: %v", err)
	}
	// The reverse script removes only this effect's contribution.
	if got := f.actorInt(t, "system.fortune.value"); got != 4 {
		t.Fatalf("fortune = %d, want 4", got)
	}
}

func TestInvalidTransitionsAreRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.resolve(t, action.Conservative, symbol.NewTally(symbol.Success))

	if err := f.resolver.Reverse(ctx, res, "wound"); apperrors.CodeOf(err) != apperrors.CodeEffectInvalidTransition {
		t.Fatalf("Reverse before apply error = %v", err)
	}
	if err := f.resolver.Apply(ctx, res, "wound"); err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}
	if err := f.resolver.Apply(ctx, res, "wound"); apperrors.CodeOf(err) != apperrors.CodeEffectInvalidTransition {
		t.Fatalf("second Apply error = %v", err)
	}
	if got := f.actorInt(t, "system.wounds.value"); got != 3 {
		t.Fatalf("wounds = %d, want 3 (applied once)", got)
	}
	if err := f.resolver.Apply(ctx, res, "focus"); apperrors.CodeOf(err) != apperrors.CodeEffectInvalidTransition {
		t.Fatalf("Apply inactive error = %v", err)
	}
	if err := f.resolver.Apply(ctx, res, "nope"); apperrors.CodeOf(err) != apperrors.CodeUnknownEffect {
		t.Fatalf("Apply unknown error = %v", err)
	}
}

func TestToggle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.resolve(t, action.Reckless, symbol.NewTally(symbol.Bane))

	for i, want := range []int{1, 0, 1} {
		if err := f.resolver.Toggle(ctx, res, "exhaust"); err != nil {
			t.Fatalf("Toggle %d returned error: %v", i, err)
		}
		if got := f.actorInt(t, "system.fatigue.value"); got != want {
			t.Fatalf("fatigue after toggle %d = %d, want %d", i, got, want)
		}
	}
	inst, _ := res.Find("exhaust")
	if inst.State != Applied {
		t.Fatalf("state = %s, want %s", inst.State, Applied)
	}
}

func TestApplyAllCapturesFailuresPerEffect(t *testing.T) {
	f := newFixture(t)
	res := f.resolve(t, action.Conservative, symbol.NewTally(symbol.Success, symbol.Success, symbol.Boon))

	outcomes := f.resolver.ApplyAll(context.Background(), res)
	order := []string{"wound", "heavy", "rally", "broken"}
	if len(outcomes) != len(order) {
		t.Fatalf("outcomes = %+v", outcomes)
	}
	for i, id := range order {
		if outcomes[i].EffectID != id {
			t.Fatalf("outcome %d = %s, want %s", i, outcomes[i].EffectID, id)
		}
	}
	broken := outcomes[3]
	if apperrors.CodeOf(broken.Err) != apperrors.CodeEffectScriptFailed || broken.State != Eligible {
		t.Fatalf("broken outcome = %+v", broken)
	}
	if got := f.actorInt(t, "system.wounds.value"); got != 6 {
		t.Fatalf("wounds = %d, want 6", got)
	}
	if got := f.actorInt(t, "system.fortune.value"); got != 3 {
		t.Fatalf("fortune = %d, want 3", got)
	}
}

func TestSameActorEffectsDoNotInterleave(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		res := f.resolve(t, action.Reckless, symbol.NewTally(symbol.Bane))
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- f.resolver.Apply(ctx, res, "exhaust")
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("Apply returned error: %v", err)
		}
	}
	if got := f.actorInt(t, "system.fatigue.value"); got != 8 {
		t.Fatalf("fatigue = %d, want 8", got)
	}
}

func TestNewResolutionRejectsUnknownFace(t *testing.T) {
	f := newFixture(t)
	_, err := NewResolution("actor-1", f.action, "sideways", symbol.NewTally())
	if !errors.Is(err, action.ErrUnknownFace) {
		t.Fatalf("NewResolution error = %v, want %v", err, action.ErrUnknownFace)
	}
}

func TestReverseKeepsLaterEffectsOnSharedField(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.resolve(t, action.Conservative, symbol.NewTally(symbol.Success, symbol.Success))

	for _, id := range []string{"wound", "heavy"} {
		if err := f.resolver.Apply(ctx, res, id); err != nil {
			t.Fatalf("Apply(%s) returned error: %v", id, err)
		}
	}
	if got := f.actorInt(t, "system.wounds.value"); got != 6 {
		t.Fatalf("wounds after both = %d, want 6", got)
	}
	if err := f.resolver.Reverse(ctx, res, "wound"); err != nil {
		t.Fatalf("Reverse returned error: %v", err)
	}
	if got := f.actorInt(t, "system.wounds.value"); got != 4 {
		t.Fatalf("wounds after reversing wound = %d, want 4", got)
	}
	if err := f.resolver.Reverse(ctx, res, "heavy"); err != nil {
		t.Fatalf("Reverse returned error: %v", err)
	}
	if got := f.actorInt(t, "system.wounds.value"); got != 1 {
		t.Fatalf("wounds after reversing heavy = %d, want 1", got)
	}
}

const stanceDoc = `{
	"system": {
		"characteristic": "willpower",
		"effects": {
			"conservative": [
				{"id": "steady", "symbol": "success", "rank": 1, "type": "general",
				 "script": "actor.set('system.stance.label', 'steady')"},
				{"id": "calm", "symbol": "boon", "rank": 1, "type": "general",
				 "condition_script": "actor.get('system.fortune.value') < 3",
				 "script": "actor.add('system.fortune.value', 1)"},
				{"id": "serene", "symbol": "boon", "rank": 1, "type": "general",
				 "condition_script": "actor.get('system.fortune.value') < 3",
				 "script": "actor.add('system.fortune.value', 1)"}
			],
			"reckless": []
		}
	}
}`

func (f fixture) resolveItem(t *testing.T, id, data string, tally symbol.Tally) *Resolution {
	t.Helper()
	item := storage.Document{ID: id, Kind: storage.KindItem, Name: id, Data: json.RawMessage(data)}
	if err := f.store.PutDocument(context.Background(), item); err != nil {
		t.Fatalf("put item: %v", err)
	}
	act, err := action.FromDocument(item)
	if err != nil {
		t.Fatalf("decode action: %v", err)
	}
	res, err := NewResolution("actor-1", act, action.Conservative, tally)
	if err != nil {
		t.Fatalf("NewResolution returned error: %v", err)
	}
	if err := f.resolver.Evaluate(context.Background(), res); err != nil {
		t.Fatalf("Evaluate returned error: %v", err)
	}
	return res
}

func TestReverseRejectsOverwrittenSet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.resolveItem(t, "stance", stanceDoc, symbol.NewTally(symbol.Success))

	if err := f.resolver.Apply(ctx, res, "steady"); err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}
	if _, err := f.store.UpdateDocument(ctx, "actor-1", map[string]any{"system.stance.label": "wild"}); err != nil {
		t.Fatalf("update actor: %v", err)
	}
	err := f.resolver.Reverse(ctx, res, "steady")
	if apperrors.CodeOf(err) != apperrors.CodeEffectReverseConflict {
		t.Fatalf("Reverse error = %v, want %s", err, apperrors.CodeEffectReverseConflict)
	}
	if inst, _ := res.Find("steady"); inst.State != Applied {
		t.Fatalf("state = %s, want %s", inst.State, Applied)
	}
}

func TestApplyAllRechecksConditionsInOrder(t *testing.T) {
	f := newFixture(t)
	res := f.resolveItem(t, "stance", stanceDoc, symbol.NewTally(symbol.Boon))

	eligible := states(res)
	if eligible["calm"] != Eligible || eligible["serene"] != Eligible {
		t.Fatalf("states before batch = %v", eligible)
	}
	outcomes := f.resolver.ApplyAll(context.Background(), res)
	if len(outcomes) != 2 {
		t.Fatalf("outcomes = %+v", outcomes)
	}
	if o := outcomes[0]; o.EffectID != "calm" || o.State != Applied || o.Skipped || o.Err != nil {
		t.Fatalf("calm outcome = %+v", o)
	}
	if o := outcomes[1]; o.EffectID != "serene" || o.State != Inactive || !o.Skipped || o.Err != nil {
		t.Fatalf("serene outcome = %+v", o)
	}
	if got := f.actorInt(t, "system.fortune.value"); got != 3 {
		t.Fatalf("fortune = %d, want 3", got)
	}
}

func TestSpend(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	held, err := f.resolver.Spend(ctx, "actor-1", "system.fortune.value", 3)
	if !errors.Is(err, ErrInsufficient) || held != 2 {
		t.Fatalf("Spend(3) = %d, %v; want 2, %v", held, err, ErrInsufficient)
	}
	if got := f.actorInt(t, "system.fortune.value"); got != 2 {
		t.Fatalf("fortune = %d, want 2", got)
	}
	if _, err := f.resolver.Spend(ctx, "actor-1", "system.fortune.value", 2); err != nil {
		t.Fatalf("Spend(2) returned error: %v", err)
	}
	if _, err := f.resolver.Spend(ctx, "actor-1", "system.fortune.value", -1); err != nil {
		t.Fatalf("Spend(-1) returned error: %v", err)
	}
	if got := f.actorInt(t, "system.fortune.value"); got != 1 {
		t.Fatalf("fortune = %d, want 1", got)
	}
}

func TestSpendDoesNotLoseConcurrentWrites(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.store.UpdateDocument(ctx, "actor-1", map[string]any{"system.fortune.value": 20}); err != nil {
		t.Fatalf("update actor: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := f.resolver.Spend(ctx, "actor-1", "system.fortune.value", 2)
			errs <- err
		}()
		go func() {
			defer wg.Done()
			_, err := f.resolver.Spend(ctx, "actor-1", "system.fortune.value", -1)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("Spend returned error: %v", err)
		}
	}
	if got := f.actorInt(t, "system.fortune.value"); got != 10 {
		t.Fatalf("fortune = %d, want 10", got)
	}
}
