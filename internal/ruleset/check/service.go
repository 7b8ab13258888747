package check

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"sync"

	"github.com/louisbranch/wfrp3e/internal/platform/errors"
	"github.com/louisbranch/wfrp3e/internal/platform/id"
	"github.com/louisbranch/wfrp3e/internal/random"
	"github.com/louisbranch/wfrp3e/internal/ruleset/action"
	"github.com/louisbranch/wfrp3e/internal/ruleset/actor"
	"github.com/louisbranch/wfrp3e/internal/ruleset/config"
	"github.com/louisbranch/wfrp3e/internal/ruleset/dice"
	"github.com/louisbranch/wfrp3e/internal/ruleset/effect"
	"github.com/louisbranch/wfrp3e/internal/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Service rolls checks and drives their effects.
type Service struct {
	ruleset  config.Ruleset
	docs     storage.DocumentStore
	messages storage.MessageStore
	resolver *effect.Resolver
	seed     func() (int64, error)
	source   func(seed int64) dice.Source
	printer  *message.Printer
	tracer   trace.Tracer
	// mu serializes read-modify-write cycles on roll records.
	mu sync.Mutex
}

// Option configures a Service.
type Option func(*Service)

// WithSourceFactory overrides how a seed becomes a dice source.
func WithSourceFactory(fn func(seed int64) dice.Source) Option {
	return func(s *Service) {
		s.source = fn
	}
}

// WithSeedGenerator overrides the seed generator used when a request has none.
func WithSeedGenerator(fn func() (int64, error)) Option {
	return func(s *Service) {
		s.seed = fn
	}
}

// WithLanguage sets the language used for chat flavor lines.
func WithLanguage(tag language.Tag) Option {
	return func(s *Service) {
		s.printer = message.NewPrinter(tag)
	}
}

// NewService builds a check service.
func NewService(rs config.Ruleset, docs storage.DocumentStore, messages storage.MessageStore, resolver *effect.Resolver, opts ...Option) *Service {
	s := &Service{
		ruleset:  rs,
		docs:     docs,
		messages: messages,
		resolver: resolver,
		seed:     random.NewSeed,
		source:   dice.NewSeededSource,
		printer:  message.NewPrinter(language.English),
		tracer:   otel.Tracer("github.com/louisbranch/wfrp3e/internal/ruleset/check"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Request describes a check made by an actor.
type Request struct {
	ActorID string
	// ActionID names an action card; its effects resolve against the roll.
	ActionID string
	// Face picks the action face. Empty derives it from the actor's stance.
	Face action.Face
	// Characteristic defaults to the action's check characteristic.
	Characteristic string
	Skill          string
	// StanceDice overrides the actor's stance meter when set.
	StanceDice *int
	// Extra modifier dice.
	Expertise  int
	Fortune    int
	Challenge  int
	Misfortune int
	// FortunePoints spends points from the actor's pool, one fortune die each.
	FortunePoints int
	Mode          dice.Mode
	Seed          *int64
	Flavor        string
	// Cancelled marks a dismissed dialog: nothing is rolled or written.
	Cancelled bool
}

// RollCheck rolls a check and posts its record as a chat message.
func (s *Service) RollCheck(ctx context.Context, req Request) (RollRecord, error) {
	ctx, span := s.tracer.Start(ctx, "check.RollCheck", trace.WithAttributes(
		attribute.String("actor.id", req.ActorID),
		attribute.String("action.id", req.ActionID),
	))
	defer span.End()

	if req.Cancelled {
		return RollRecord{}, errors.New(errors.CodeCheckCancelled, "check cancelled")
	}
	if strings.TrimSpace(req.ActorID) == "" {
		return RollRecord{}, errors.New(errors.CodeInvalidArgument, "actor id is required")
	}
	if req.FortunePoints < 0 {
		return RollRecord{}, errors.New(errors.CodeInvalidArgument, "fortune points must not be negative")
	}
	mode, err := dice.ParseMode(string(req.Mode))
	if err != nil {
		return RollRecord{}, errors.Wrap(errors.CodeInvalidArgument, "invalid roll mode", err)
	}

	doc, err := s.docs.GetDocument(ctx, req.ActorID)
	if err != nil {
		return RollRecord{}, notFound(err, "Actor", req.ActorID)
	}

	var act *action.Action
	if req.ActionID != "" {
		item, err := s.docs.GetDocument(ctx, req.ActionID)
		if err != nil {
			return RollRecord{}, notFound(err, "Action", req.ActionID)
		}
		decoded, err := action.FromDocument(item)
		if err != nil {
			return RollRecord{}, errors.Wrap(errors.CodeInvalidArgument, "invalid action", err)
		}
		if err := decoded.Validate(s.ruleset.ScriptTypes); err != nil {
			return RollRecord{}, errors.Wrap(errors.CodeInvalidArgument, "invalid action", err)
		}
		act = &decoded
	}

	characteristic := req.Characteristic
	if characteristic == "" && act != nil {
		characteristic = act.CheckCharacteristic
	}
	if !s.ruleset.HasCharacteristic(characteristic) {
		return RollRecord{}, errors.WithMetadata(errors.CodeInvalidArgument, "unknown characteristic",
			map[string]string{"Characteristic": characteristic})
	}

	face, stanceDice, err := stance(doc, req)
	if err != nil {
		return RollRecord{}, err
	}
	rating, charFortune := actor.Characteristic(doc, characteristic)
	stanceDice = min(stanceDice, rating)

	spec := dice.Spec{
		Characteristic: rating,
		Expertise:      req.Expertise,
		Fortune:        charFortune + req.Fortune + req.FortunePoints,
		Challenge:      req.Challenge,
		Misfortune:     req.Misfortune,
	}
	if req.Skill != "" {
		spec.Expertise += doc.Int(actor.SkillTrainingPath(req.Skill))
	}
	if act != nil {
		spec.Challenge += act.Difficulty
	}
	if face == action.Reckless {
		spec.Reckless = stanceDice
	} else {
		spec.Conservative = stanceDice
	}

	available := doc.Int(actor.FortunePath)
	if req.FortunePoints > available {
		return RollRecord{}, errors.WithMetadata(errors.CodeInsufficientFortune, "not enough fortune points",
			map[string]string{"Requested": fmt.Sprint(req.FortunePoints), "Available": fmt.Sprint(available)})
	}

	counts, err := spec.Counts()
	if err != nil {
		return RollRecord{}, errors.Wrap(errors.CodeInvalidPool, "invalid dice pool", err)
	}
	rec, err := s.roll(counts, dice.RollContext{ActorID: req.ActorID, Mode: mode}, req.Seed)
	if err != nil {
		return RollRecord{}, err
	}
	rec.ActorID = req.ActorID
	rec.Characteristic = characteristic
	rec.Skill = req.Skill
	rec.Face = face

	if act != nil {
		rec.ActionID = act.ID
		res, err := effect.NewResolution(req.ActorID, *act, face, rec.TotalSymbols)
		if err != nil {
			return RollRecord{}, err
		}
		if err := s.resolver.Evaluate(ctx, res); err != nil {
			return RollRecord{}, err
		}
		rec.CheckData.Resolution = res
		rec.refresh()
	}

	label := characteristic
	if act != nil {
		label = act.Name
	} else if req.Skill != "" {
		label = req.Skill
	}
	rec.Flavor = req.Flavor
	if rec.Flavor == "" {
		rec.Flavor = s.printer.Sprintf("%s rolls %s: %d net successes, %d net boons", doc.Name, label, rec.NetSuccesses, rec.NetBoons)
	}

	if req.FortunePoints > 0 {
		held, err := s.resolver.Spend(ctx, req.ActorID, actor.FortunePath, req.FortunePoints)
		if stderrors.Is(err, effect.ErrInsufficient) {
			return RollRecord{}, errors.WithMetadata(errors.CodeInsufficientFortune, "not enough fortune points",
				map[string]string{"Requested": fmt.Sprint(req.FortunePoints), "Available": fmt.Sprint(held)})
		}
		if err != nil {
			return RollRecord{}, fmt.Errorf("spend fortune: %w", err)
		}
	}
	if err := s.post(ctx, &rec, KindCheck); err != nil {
		if req.FortunePoints > 0 {
			if _, restoreErr := s.resolver.Spend(ctx, req.ActorID, actor.FortunePath, -req.FortunePoints); restoreErr != nil {
				return RollRecord{}, stderrors.Join(err, restoreErr)
			}
		}
		return RollRecord{}, err
	}
	span.SetAttributes(attribute.String("check.outcome", rec.CheckData.Outcome))
	return rec, nil
}

// PoolRequest is a raw pool roll from a formula such as "3dch+1dco+2dcl".
type PoolRequest struct {
	ActorID string
	Formula string
	Mode    dice.Mode
	Seed    *int64
	Flavor  string
}

// RollPool rolls a formula without actor or action bookkeeping.
func (s *Service) RollPool(ctx context.Context, req PoolRequest) (RollRecord, error) {
	ctx, span := s.tracer.Start(ctx, "check.RollPool", trace.WithAttributes(attribute.String("pool.formula", req.Formula)))
	defer span.End()

	counts, err := dice.ParseFormula(req.Formula)
	if err != nil {
		return RollRecord{}, errors.Wrap(errors.CodeInvalidPool, "invalid dice formula", err)
	}
	mode, err := dice.ParseMode(string(req.Mode))
	if err != nil {
		return RollRecord{}, errors.Wrap(errors.CodeInvalidArgument, "invalid roll mode", err)
	}
	rec, err := s.roll(counts, dice.RollContext{ActorID: req.ActorID, Mode: mode}, req.Seed)
	if err != nil {
		return RollRecord{}, err
	}
	rec.ActorID = req.ActorID
	rec.Flavor = req.Flavor
	if rec.Flavor == "" {
		rec.Flavor = s.printer.Sprintf("Rolled %s: %d net successes, %d net boons", rec.Formula, rec.NetSuccesses, rec.NetBoons)
	}
	if err := s.post(ctx, &rec, KindPool); err != nil {
		return RollRecord{}, err
	}
	return rec, nil
}

func (s *Service) roll(counts dice.Counts, rctx dice.RollContext, requested *int64) (RollRecord, error) {
	pool, err := dice.BuildPool(s.ruleset.Dice, counts, rctx)
	if err != nil {
		return RollRecord{}, errors.Wrap(errors.CodeInvalidPool, "invalid dice pool", err)
	}
	seed, err := random.ResolveSeed(requested, s.seed)
	if err != nil {
		return RollRecord{}, err
	}
	result, err := dice.Evaluate(pool, s.source(seed))
	if err != nil {
		return RollRecord{}, rollFailed(err)
	}
	return RollRecord{
		Formula:      pool.Context.Formula,
		Mode:         pool.Context.Mode,
		Seed:         seed,
		Faces:        result.Faces,
		TotalSymbols: result.Tally,
		NetSuccesses: result.Tally.NetSuccesses(),
		NetBoons:     result.Tally.NetBoons(),
		CheckData:    CheckData{Outcome: result.Tally.Outcome()},
	}, nil
}

func (s *Service) post(ctx context.Context, rec *RollRecord, kind string) error {
	msgID, err := id.NewID()
	if err != nil {
		return err
	}
	payload, err := rec.payload()
	if err != nil {
		return err
	}
	msg, err := s.messages.PutMessage(ctx, storage.Message{
		ID:      msgID,
		ActorID: rec.ActorID,
		Kind:    kind,
		Outcome: rec.CheckData.Outcome,
		Mode:    string(rec.Mode),
		Content: rec.Flavor,
		Sound:   true,
		Payload: payload,
	})
	if err != nil {
		return fmt.Errorf("post roll message: %w", err)
	}
	rec.MessageID = msg.ID
	rec.CreatedAt = msg.CreatedAt
	return nil
}

// Record loads the roll record attached to a message.
func (s *Service) Record(ctx context.Context, messageID string) (RollRecord, error) {
	msg, err := s.messages.GetMessage(ctx, messageID)
	if err != nil {
		return RollRecord{}, notFound(err, "Message", messageID)
	}
	rec, err := RecordFromMessage(msg)
	if err != nil {
		return RollRecord{}, errors.Wrap(errors.CodeInvalidArgument, "message has no roll record", err)
	}
	return rec, nil
}

// Apply applies one effect of a roll.
func (s *Service) Apply(ctx context.Context, messageID, effectID string) (RollRecord, error) {
	return s.mutate(ctx, messageID, func(res *effect.Resolution, _ *RollRecord) error {
		return s.resolver.Apply(ctx, res, effectID)
	})
}

// Reverse reverses one applied effect of a roll.
func (s *Service) Reverse(ctx context.Context, messageID, effectID string) (RollRecord, error) {
	return s.mutate(ctx, messageID, func(res *effect.Resolution, _ *RollRecord) error {
		return s.resolver.Reverse(ctx, res, effectID)
	})
}

// Toggle flips one effect between applied and reversed.
func (s *Service) Toggle(ctx context.Context, messageID, effectID string) (RollRecord, error) {
	return s.mutate(ctx, messageID, func(res *effect.Resolution, _ *RollRecord) error {
		return s.resolver.Toggle(ctx, res, effectID)
	})
}

// ApplyAll applies every eligible effect and disables further batch
// application on the roll. Per-effect failures are reported in the outcomes.
func (s *Service) ApplyAll(ctx context.Context, messageID string) (RollRecord, []effect.Outcome, error) {
	var outcomes []effect.Outcome
	rec, err := s.mutate(ctx, messageID, func(res *effect.Resolution, rec *RollRecord) error {
		if rec.CheckData.Disabled {
			return errors.New(errors.CodeCheckDisabled, "effects were already applied")
		}
		outcomes = s.resolver.ApplyAll(ctx, res)
		rec.CheckData.Disabled = true
		return nil
	})
	return rec, outcomes, err
}

// mutate runs fn on a roll's resolution and persists the record when fn
// changed anything, including a failed script's error note.
func (s *Service) mutate(ctx context.Context, messageID string, fn func(*effect.Resolution, *RollRecord) error) (RollRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.Record(ctx, messageID)
	if err != nil {
		return RollRecord{}, err
	}
	res := rec.CheckData.Resolution
	if res == nil {
		return rec, errors.New(errors.CodeUnknownEffect, "roll has no action effects")
	}
	before, err := rec.payload()
	if err != nil {
		return RollRecord{}, err
	}

	opErr := fn(res, &rec)
	rec.refresh()

	after, err := rec.payload()
	if err != nil {
		return RollRecord{}, err
	}
	if string(before) != string(after) {
		if err := s.messages.UpdatePayload(ctx, messageID, rec.CheckData.Outcome, after); err != nil {
			return RollRecord{}, fmt.Errorf("save roll record: %w", err)
		}
	}
	return rec, opErr
}

// stance picks the face and the number of stance dice.
func stance(doc storage.Document, req Request) (action.Face, int, error) {
	meter := actor.Stance(doc)
	face := req.Face
	if face == "" {
		face = action.Conservative
		if meter < 0 {
			face = action.Reckless
		}
	} else if _, err := action.ParseFace(string(face)); err != nil {
		return "", 0, errors.Wrap(errors.CodeUnknownFace, "unknown action face", err)
	}

	n := max(meter, -meter)
	if req.StanceDice != nil {
		n = *req.StanceDice
	}
	if n < 0 {
		return "", 0, errors.New(errors.CodeInvalidPool, "stance dice must not be negative")
	}
	return face, n, nil
}

func rollFailed(err error) error {
	if stderrors.Is(err, dice.ErrExplosionRunaway) {
		return errors.Wrap(errors.CodeExplosionRunaway, "roll failed", err)
	}
	return errors.Wrap(errors.CodeSymbolConfig, "roll failed", err)
}

func notFound(err error, kind, id string) error {
	if !stderrors.Is(err, storage.ErrNotFound) {
		return err
	}
	wrapped := errors.Wrap(errors.CodeNotFound, kind+" not found", err)
	wrapped.Metadata = map[string]string{"Kind": kind, "ID": id}
	return wrapped
}
