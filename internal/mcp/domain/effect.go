package domain

import (
	"context"

	"github.com/louisbranch/wfrp3e/internal/platform/errors/i18n"
	"github.com/louisbranch/wfrp3e/internal/ruleset/check"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// EffectInput represents the MCP tool input for a single-effect operation.
type EffectInput struct {
	MessageID string `json:"message_id" jsonschema:"chat message holding the roll record"`
	EffectID  string `json:"effect_id" jsonschema:"effect on the rolled face"`
}

// EffectsApplyAllInput represents the MCP tool input for batch application.
type EffectsApplyAllInput struct {
	MessageID string `json:"message_id" jsonschema:"chat message holding the roll record"`
}

// EffectOutcomeResult reports one effect of a batch.
type EffectOutcomeResult struct {
	EffectID string `json:"effect_id" jsonschema:"effect identifier"`
	State    string `json:"state" jsonschema:"state after the batch"`
	Skipped  bool   `json:"skipped,omitempty" jsonschema:"condition no longer held when the effect's turn came"`
	Error    string `json:"error,omitempty" jsonschema:"script failure"`
}

// EffectsApplyAllResult represents the MCP tool output for batch application.
type EffectsApplyAllResult struct {
	Roll     RollResult            `json:"roll" jsonschema:"updated roll record"`
	Outcomes []EffectOutcomeResult `json:"outcomes" jsonschema:"per-effect results in authoring order"`
}

// EffectApplyTool defines the MCP tool schema for applying an effect.
func EffectApplyTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "effect_apply",
		Description: "Applies an eligible or reversed effect of a roll to its actor",
	}
}

// EffectReverseTool defines the MCP tool schema for reversing an effect.
func EffectReverseTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "effect_reverse",
		Description: "Reverses an applied effect of a roll",
	}
}

// EffectToggleTool defines the MCP tool schema for toggling an effect.
func EffectToggleTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "effect_toggle",
		Description: "Reverses an applied effect or applies an eligible one",
	}
}

// EffectsApplyAllTool defines the MCP tool schema for batch application.
func EffectsApplyAllTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "effects_apply_all",
		Description: "Applies every eligible effect of a roll once; failures are reported per effect",
	}
}

// EffectApplyHandler applies one effect.
func EffectApplyHandler(svc *check.Service, cat *i18n.Catalog) mcp.ToolHandlerFor[EffectInput, RollResult] {
	return effectHandler("effect apply", svc.Apply, cat)
}

// EffectReverseHandler reverses one effect.
func EffectReverseHandler(svc *check.Service, cat *i18n.Catalog) mcp.ToolHandlerFor[EffectInput, RollResult] {
	return effectHandler("effect reverse", svc.Reverse, cat)
}

// EffectToggleHandler toggles one effect.
func EffectToggleHandler(svc *check.Service, cat *i18n.Catalog) mcp.ToolHandlerFor[EffectInput, RollResult] {
	return effectHandler("effect toggle", svc.Toggle, cat)
}

func effectHandler(op string, fn func(ctx context.Context, messageID, effectID string) (check.RollRecord, error), cat *i18n.Catalog) mcp.ToolHandlerFor[EffectInput, RollResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input EffectInput) (*mcp.CallToolResult, RollResult, error) {
		rec, err := fn(ctx, input.MessageID, input.EffectID)
		if err != nil {
			return nil, RollResult{}, toolError(cat, op, err)
		}
		return nil, rollResult(rec), nil
	}
}

// EffectsApplyAllHandler applies every eligible effect of a roll.
func EffectsApplyAllHandler(svc *check.Service, cat *i18n.Catalog) mcp.ToolHandlerFor[EffectsApplyAllInput, EffectsApplyAllResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input EffectsApplyAllInput) (*mcp.CallToolResult, EffectsApplyAllResult, error) {
		rec, outcomes, err := svc.ApplyAll(ctx, input.MessageID)
		if err != nil {
			return nil, EffectsApplyAllResult{}, toolError(cat, "effects apply all", err)
		}
		result := EffectsApplyAllResult{Roll: rollResult(rec), Outcomes: make([]EffectOutcomeResult, 0, len(outcomes))}
		for _, outcome := range outcomes {
			entry := EffectOutcomeResult{EffectID: outcome.EffectID, State: string(outcome.State), Skipped: outcome.Skipped}
			if outcome.Err != nil {
				entry.Error = toolError(cat, "effect apply", outcome.Err).Error()
			}
			result.Outcomes = append(result.Outcomes, entry)
		}
		return nil, result, nil
	}
}
