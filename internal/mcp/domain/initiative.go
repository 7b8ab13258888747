package domain

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/louisbranch/wfrp3e/internal/platform/errors/i18n"
	"github.com/louisbranch/wfrp3e/internal/platform/id"
	"github.com/louisbranch/wfrp3e/internal/ruleset/initiative"
	"github.com/louisbranch/wfrp3e/internal/storage"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// CombatantInput registers one combatant.
type CombatantInput struct {
	ID      string `json:"id,omitempty" jsonschema:"combatant identifier; generated when empty"`
	ActorID string `json:"actor_id" jsonschema:"actor the combatant represents"`
	Name    string `json:"name,omitempty" jsonschema:"display name; defaults to the actor's name"`
}

// CombatPutInput represents the MCP tool input for creating an encounter.
type CombatPutInput struct {
	ID            string           `json:"id,omitempty" jsonschema:"combat identifier; generated when empty"`
	EncounterType string           `json:"encounter_type,omitempty" jsonschema:"combat (default) or social"`
	Combatants    []CombatantInput `json:"combatants" jsonschema:"combatants in registration order"`
}

// CombatGetInput represents the MCP tool input for reading an encounter.
type CombatGetInput struct {
	ID string `json:"id" jsonschema:"combat identifier"`
}

// InitiativeRollInput represents the MCP tool input for rolling initiative.
type InitiativeRollInput struct {
	CombatID     string   `json:"combat_id" jsonschema:"combat identifier"`
	CombatantIDs []string `json:"combatant_ids,omitempty" jsonschema:"combatants to roll; all when empty"`
}

// CombatantResult is one combatant in turn order.
type CombatantResult struct {
	ID         string `json:"id" jsonschema:"combatant identifier"`
	ActorID    string `json:"actor_id" jsonschema:"actor identifier"`
	Name       string `json:"name,omitempty" jsonschema:"display name"`
	Initiative *int   `json:"initiative,omitempty" jsonschema:"net successes of the last roll"`
	TieBreak   int    `json:"tie_break" jsonschema:"tie-break characteristic at the last roll"`
	Order      int    `json:"order" jsonschema:"registration order"`
}

// CombatResult represents an encounter in turn order.
type CombatResult struct {
	ID            string            `json:"id" jsonschema:"combat identifier"`
	EncounterType string            `json:"encounter_type" jsonschema:"encounter type"`
	Turn          int               `json:"turn" jsonschema:"index of the acting combatant"`
	Current       string            `json:"current,omitempty" jsonschema:"acting combatant id"`
	Combatants    []CombatantResult `json:"combatants" jsonschema:"combatants in turn order"`
}

// InitiativeRollResult represents the MCP tool output for an initiative roll.
type InitiativeRollResult struct {
	Combat   CombatResult    `json:"combat" jsonschema:"re-sorted combat"`
	Messages []MessageResult `json:"messages" jsonschema:"posted initiative messages; only the first is audible"`
}

// CombatPutTool defines the MCP tool schema for creating encounters.
func CombatPutTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "combat_put",
		Description: "Creates or replaces an encounter with its combatants",
	}
}

// CombatGetTool defines the MCP tool schema for reading encounters.
func CombatGetTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "combat_get",
		Description: "Reads an encounter in turn order",
	}
}

// InitiativeRollTool defines the MCP tool schema for rolling initiative.
func InitiativeRollTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "initiative_roll",
		Description: "Rolls initiative for combatants and re-sorts the encounter, keeping the current turn",
	}
}

// CombatPutHandler stores a new encounter.
func CombatPutHandler(docs storage.DocumentStore, cat *i18n.Catalog) mcp.ToolHandlerFor[CombatPutInput, CombatResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input CombatPutInput) (*mcp.CallToolResult, CombatResult, error) {
		combat := initiative.Combat{ID: strings.TrimSpace(input.ID), EncounterType: strings.TrimSpace(input.EncounterType)}
		if combat.EncounterType == "" {
			combat.EncounterType = "combat"
		}
		if combat.ID == "" {
			var err error
			if combat.ID, err = id.NewID(); err != nil {
				return nil, CombatResult{}, err
			}
		}
		for _, in := range input.Combatants {
			if strings.TrimSpace(in.ActorID) == "" {
				return nil, CombatResult{}, fmt.Errorf("combatant actor_id is required")
			}
			cid := strings.TrimSpace(in.ID)
			if cid == "" {
				var err error
				if cid, err = id.NewID(); err != nil {
					return nil, CombatResult{}, err
				}
			}
			if err := combat.Add(initiative.Combatant{ID: cid, ActorID: in.ActorID, Name: in.Name}); err != nil {
				return nil, CombatResult{}, err
			}
		}
		if err := saveCombat(ctx, docs, combat); err != nil {
			return nil, CombatResult{}, toolError(cat, "combat put", err)
		}
		return nil, combatResult(combat), nil
	}
}

// CombatGetHandler reads an encounter.
func CombatGetHandler(docs storage.DocumentStore, cat *i18n.Catalog) mcp.ToolHandlerFor[CombatGetInput, CombatResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input CombatGetInput) (*mcp.CallToolResult, CombatResult, error) {
		combat, err := loadCombat(ctx, docs, input.ID)
		if err != nil {
			return nil, CombatResult{}, toolError(cat, "combat get", err)
		}
		return nil, combatResult(combat), nil
	}
}

// InitiativeRollHandler rolls initiative and saves the re-sorted encounter.
func InitiativeRollHandler(roller *initiative.Roller, docs storage.DocumentStore, cat *i18n.Catalog) mcp.ToolHandlerFor[InitiativeRollInput, InitiativeRollResult] {
	// mu serializes load-roll-save cycles on encounters.
	var mu sync.Mutex
	return func(ctx context.Context, _ *mcp.CallToolRequest, input InitiativeRollInput) (*mcp.CallToolResult, InitiativeRollResult, error) {
		mu.Lock()
		defer mu.Unlock()

		combat, err := loadCombat(ctx, docs, input.CombatID)
		if err != nil {
			return nil, InitiativeRollResult{}, toolError(cat, "initiative roll", err)
		}
		messages, err := roller.Roll(ctx, &combat, input.CombatantIDs, func(ctx context.Context, sorted initiative.Combat) error {
			return saveCombat(ctx, docs, sorted)
		})
		if err != nil {
			return nil, InitiativeRollResult{}, toolError(cat, "initiative roll", err)
		}

		result := InitiativeRollResult{Combat: combatResult(combat), Messages: make([]MessageResult, 0, len(messages))}
		for _, msg := range messages {
			entry, err := messageResult(msg)
			if err != nil {
				return nil, InitiativeRollResult{}, err
			}
			result.Messages = append(result.Messages, entry)
		}
		return nil, result, nil
	}
}

func loadCombat(ctx context.Context, docs storage.DocumentStore, combatID string) (initiative.Combat, error) {
	doc, err := docs.GetDocument(ctx, combatID)
	if err != nil {
		return initiative.Combat{}, err
	}
	return initiative.FromDocument(doc)
}

func saveCombat(ctx context.Context, docs storage.DocumentStore, combat initiative.Combat) error {
	doc, err := combat.Document()
	if err != nil {
		return err
	}
	return docs.PutDocument(ctx, doc)
}

func combatResult(combat initiative.Combat) CombatResult {
	result := CombatResult{
		ID:            combat.ID,
		EncounterType: combat.EncounterType,
		Turn:          combat.Turn,
		Combatants:    make([]CombatantResult, 0, len(combat.Combatants)),
	}
	if current, ok := combat.Current(); ok {
		result.Current = current.ID
	}
	for _, cb := range combat.Combatants {
		result.Combatants = append(result.Combatants, CombatantResult{
			ID:         cb.ID,
			ActorID:    cb.ActorID,
			Name:       cb.Name,
			Initiative: cb.Initiative,
			TieBreak:   cb.TieBreak,
			Order:      cb.Order,
		})
	}
	return result
}
