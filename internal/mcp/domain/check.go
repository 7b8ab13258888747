package domain

import (
	"context"

	"github.com/louisbranch/wfrp3e/internal/platform/errors/i18n"
	"github.com/louisbranch/wfrp3e/internal/ruleset/action"
	"github.com/louisbranch/wfrp3e/internal/ruleset/check"
	"github.com/louisbranch/wfrp3e/internal/ruleset/dice"
	"github.com/louisbranch/wfrp3e/internal/ruleset/symbol"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// CheckRollInput represents the MCP tool input for an actor check.
type CheckRollInput struct {
	ActorID        string `json:"actor_id" jsonschema:"rolling actor"`
	ActionID       string `json:"action_id,omitempty" jsonschema:"optional action card whose effects resolve against the roll"`
	Face           string `json:"face,omitempty" jsonschema:"conservative or reckless; derived from the actor's stance when empty"`
	Characteristic string `json:"characteristic,omitempty" jsonschema:"characteristic; defaults to the action's check characteristic"`
	Skill          string `json:"skill,omitempty" jsonschema:"trained skill adding expertise dice"`
	StanceDice     *int   `json:"stance_dice,omitempty" jsonschema:"overrides the actor's stance meter"`
	Expertise      int    `json:"expertise,omitempty" jsonschema:"extra expertise dice"`
	Fortune        int    `json:"fortune,omitempty" jsonschema:"extra fortune dice"`
	Challenge      int    `json:"challenge,omitempty" jsonschema:"extra challenge dice"`
	Misfortune     int    `json:"misfortune,omitempty" jsonschema:"extra misfortune dice"`
	FortunePoints  int    `json:"fortune_points,omitempty" jsonschema:"fortune points to spend, one fortune die each"`
	Mode           string `json:"mode,omitempty" jsonschema:"public, gm, blind or self"`
	Seed           *int64 `json:"seed,omitempty" jsonschema:"optional seed for a reproducible roll"`
	Flavor         string `json:"flavor,omitempty" jsonschema:"chat flavor text"`
	Cancelled      bool   `json:"cancelled,omitempty" jsonschema:"marks a dismissed check dialog"`
}

// PoolRollInput represents the MCP tool input for a raw pool roll.
type PoolRollInput struct {
	Formula string `json:"formula" jsonschema:"dice formula such as 2dch+1dco+1dcl"`
	ActorID string `json:"actor_id,omitempty" jsonschema:"optional speaking actor"`
	Mode    string `json:"mode,omitempty" jsonschema:"public, gm, blind or self"`
	Seed    *int64 `json:"seed,omitempty" jsonschema:"optional seed for a reproducible roll"`
	Flavor  string `json:"flavor,omitempty" jsonschema:"chat flavor text"`
}

// DieFaceResult is one rolled die.
type DieFaceResult struct {
	Type    string   `json:"type" jsonschema:"die type"`
	Face    int      `json:"face" jsonschema:"first face rolled"`
	Rolls   []int    `json:"rolls" jsonschema:"every face rolled, including explosions"`
	Symbols []string `json:"symbols" jsonschema:"symbols shown"`
}

// EffectResult is one effect slot on a roll.
type EffectResult struct {
	ID          string   `json:"id" jsonschema:"effect identifier"`
	Symbol      string   `json:"symbol" jsonschema:"symbol the slot is keyed by"`
	Rank        int      `json:"rank" jsonschema:"symbols required"`
	Type        string   `json:"type" jsonschema:"effect type"`
	Description string   `json:"description,omitempty" jsonschema:"effect text"`
	State       string   `json:"state" jsonschema:"inactive, eligible, applied or reversed"`
	Chat        []string `json:"chat,omitempty" jsonschema:"lines the last script posted"`
	Error       string   `json:"error,omitempty" jsonschema:"last script failure"`
}

// RollResult represents a posted roll record.
type RollResult struct {
	MessageID      string          `json:"message_id" jsonschema:"chat message holding the record"`
	ActorID        string          `json:"actor_id,omitempty" jsonschema:"rolling actor"`
	ActionID       string          `json:"action_id,omitempty" jsonschema:"action card"`
	Face           string          `json:"face,omitempty" jsonschema:"action face"`
	Characteristic string          `json:"characteristic,omitempty" jsonschema:"characteristic rolled"`
	Skill          string          `json:"skill,omitempty" jsonschema:"skill rolled"`
	Formula        string          `json:"formula" jsonschema:"pool formula"`
	Mode           string          `json:"mode" jsonschema:"visibility mode"`
	Seed           int64           `json:"seed" jsonschema:"seed used"`
	Faces          []DieFaceResult `json:"faces" jsonschema:"rolled dice"`
	Symbols        map[string]int  `json:"symbols" jsonschema:"symbol tally"`
	NetSuccesses   int             `json:"net_successes" jsonschema:"successes minus failures"`
	NetBoons       int             `json:"net_boons" jsonschema:"boons minus banes"`
	Outcome        string          `json:"outcome" jsonschema:"success or failure"`
	Disabled       bool            `json:"disabled" jsonschema:"effects were applied as a batch"`
	Effects        []EffectResult  `json:"effects,omitempty" jsonschema:"effect slots of the rolled face in authoring order"`
	Flavor         string          `json:"flavor,omitempty" jsonschema:"chat line"`
}

// CheckRollTool defines the MCP tool schema for actor checks.
func CheckRollTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "check_roll",
		Description: "Rolls a characteristic, skill or action check for an actor and posts the roll record",
	}
}

// PoolRollTool defines the MCP tool schema for raw pool rolls.
func PoolRollTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "pool_roll",
		Description: "Rolls a dice formula and posts the result",
	}
}

// CheckRollHandler executes an actor check.
func CheckRollHandler(svc *check.Service, cat *i18n.Catalog) mcp.ToolHandlerFor[CheckRollInput, RollResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input CheckRollInput) (*mcp.CallToolResult, RollResult, error) {
		rec, err := svc.RollCheck(ctx, check.Request{
			ActorID:        input.ActorID,
			ActionID:       input.ActionID,
			Face:           action.Face(input.Face),
			Characteristic: input.Characteristic,
			Skill:          input.Skill,
			StanceDice:     input.StanceDice,
			Expertise:      input.Expertise,
			Fortune:        input.Fortune,
			Challenge:      input.Challenge,
			Misfortune:     input.Misfortune,
			FortunePoints:  input.FortunePoints,
			Mode:           dice.Mode(input.Mode),
			Seed:           input.Seed,
			Flavor:         input.Flavor,
			Cancelled:      input.Cancelled,
		})
		if err != nil {
			return nil, RollResult{}, toolError(cat, "check roll", err)
		}
		return nil, rollResult(rec), nil
	}
}

// PoolRollHandler executes a raw pool roll.
func PoolRollHandler(svc *check.Service, cat *i18n.Catalog) mcp.ToolHandlerFor[PoolRollInput, RollResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input PoolRollInput) (*mcp.CallToolResult, RollResult, error) {
		rec, err := svc.RollPool(ctx, check.PoolRequest{
			ActorID: input.ActorID,
			Formula: input.Formula,
			Mode:    dice.Mode(input.Mode),
			Seed:    input.Seed,
			Flavor:  input.Flavor,
		})
		if err != nil {
			return nil, RollResult{}, toolError(cat, "pool roll", err)
		}
		return nil, rollResult(rec), nil
	}
}

func rollResult(rec check.RollRecord) RollResult {
	result := RollResult{
		MessageID:      rec.MessageID,
		ActorID:        rec.ActorID,
		ActionID:       rec.ActionID,
		Face:           string(rec.Face),
		Characteristic: rec.Characteristic,
		Skill:          rec.Skill,
		Formula:        rec.Formula,
		Mode:           string(rec.Mode),
		Seed:           rec.Seed,
		Faces:          make([]DieFaceResult, 0, len(rec.Faces)),
		Symbols:        map[string]int{},
		NetSuccesses:   rec.NetSuccesses,
		NetBoons:       rec.NetBoons,
		Outcome:        rec.CheckData.Outcome,
		Disabled:       rec.CheckData.Disabled,
		Flavor:         rec.Flavor,
	}
	for _, face := range rec.Faces {
		result.Faces = append(result.Faces, DieFaceResult{
			Type:    face.Type.String(),
			Face:    face.Face,
			Rolls:   face.Rolls,
			Symbols: tagStrings(face.Symbols),
		})
	}
	for tag, n := range rec.TotalSymbols.Counts {
		if n != 0 {
			result.Symbols[string(tag)] = n
		}
	}
	if res := rec.CheckData.Resolution; res != nil {
		for _, inst := range res.Effects {
			result.Effects = append(result.Effects, EffectResult{
				ID:          inst.EffectID,
				Symbol:      string(inst.Symbol),
				Rank:        inst.Rank,
				Type:        inst.Type,
				Description: inst.Description,
				State:       string(inst.State),
				Chat:        inst.Chat,
				Error:       inst.Error,
			})
		}
	}
	return result
}

func tagStrings(tags []symbol.Tag) []string {
	out := make([]string, len(tags))
	for i, tag := range tags {
		out[i] = string(tag)
	}
	return out
}
