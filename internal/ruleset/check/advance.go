package check

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/louisbranch/wfrp3e/internal/platform/errors"
	"github.com/louisbranch/wfrp3e/internal/platform/id"
	"github.com/louisbranch/wfrp3e/internal/ruleset/actor"
	"github.com/louisbranch/wfrp3e/internal/storage"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// AdvanceKinds lists the career advance slots an actor can fill.
var AdvanceKinds = []string{"action", "talent", "skill", "wound", "characteristic", "career"}

// AdvanceRequest buys one career advance with experience.
type AdvanceRequest struct {
	ActorID string
	Kind    string
	// Name is the selection made in the picker.
	Name string
	// Cost defaults to one experience point.
	Cost      int
	Cancelled bool
}

// Advance reports a bought advance.
type Advance struct {
	ActorID   string `json:"actor_id"`
	Kind      string `json:"kind"`
	Name      string `json:"name"`
	Cost      int    `json:"cost"`
	Remaining int    `json:"remaining"`
}

// BuyAdvance spends experience on an advance. A missing selection or too
// little experience is a warning and changes nothing.
func (s *Service) BuyAdvance(ctx context.Context, req AdvanceRequest) (Advance, error) {
	ctx, span := s.tracer.Start(ctx, "check.BuyAdvance", trace.WithAttributes(
		attribute.String("actor.id", req.ActorID),
		attribute.String("advance.kind", req.Kind),
	))
	defer span.End()

	if req.Cancelled {
		return Advance{}, errors.New(errors.CodeCheckCancelled, "advance cancelled")
	}
	kind := strings.ToLower(strings.TrimSpace(req.Kind))
	if !slices.Contains(AdvanceKinds, kind) {
		return Advance{}, errors.WithMetadata(errors.CodeInvalidArgument, "unknown advance kind", map[string]string{"Kind": req.Kind})
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return Advance{}, errors.New(errors.CodeSelectionMissing, "no selection made")
	}
	cost := req.Cost
	if cost == 0 {
		cost = 1
	}
	if cost < 0 {
		return Advance{}, errors.New(errors.CodeInvalidArgument, "advance cost must be positive")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.docs.GetDocument(ctx, req.ActorID)
	if err != nil {
		return Advance{}, notFound(err, "Actor", req.ActorID)
	}
	available := actor.AvailableExperience(doc)
	if available < cost {
		return Advance{}, errors.WithMetadata(errors.CodeInsufficientExperience, "not enough experience",
			map[string]string{"Cost": fmt.Sprint(cost), "Available": fmt.Sprint(available)})
	}

	if _, err := s.docs.UpdateDocument(ctx, req.ActorID, map[string]any{
		actor.AdvancePath(kind):   name,
		actor.ExperienceSpentPath: doc.Int(actor.ExperienceSpentPath) + cost,
	}); err != nil {
		return Advance{}, fmt.Errorf("record advance: %w", err)
	}

	adv := Advance{ActorID: req.ActorID, Kind: kind, Name: name, Cost: cost, Remaining: available - cost}
	payload, err := json.Marshal(adv)
	if err != nil {
		return Advance{}, fmt.Errorf("encode advance: %w", err)
	}
	msgID, err := id.NewID()
	if err != nil {
		return Advance{}, err
	}
	if _, err := s.messages.PutMessage(ctx, storage.Message{
		ID:      msgID,
		ActorID: req.ActorID,
		Kind:    KindAdvance,
		Content: s.printer.Sprintf("%s advances %s: %s (%d experience)", doc.Name, kind, name, cost),
		Payload: payload,
	}); err != nil {
		return Advance{}, fmt.Errorf("post advance message: %w", err)
	}
	return adv, nil
}
