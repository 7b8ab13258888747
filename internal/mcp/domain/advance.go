package domain

import (
	"context"

	"github.com/louisbranch/wfrp3e/internal/platform/errors/i18n"
	"github.com/louisbranch/wfrp3e/internal/ruleset/check"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// AdvanceBuyInput represents the MCP tool input for buying a career advance.
type AdvanceBuyInput struct {
	ActorID   string `json:"actor_id" jsonschema:"actor spending experience"`
	Kind      string `json:"kind" jsonschema:"action, talent, skill, wound, characteristic or career"`
	Name      string `json:"name" jsonschema:"selected advance"`
	Cost      int    `json:"cost,omitempty" jsonschema:"experience cost; defaults to 1"`
	Cancelled bool   `json:"cancelled,omitempty" jsonschema:"marks a dismissed advance dialog"`
}

// AdvanceBuyResult represents the MCP tool output for a bought advance.
type AdvanceBuyResult struct {
	ActorID   string `json:"actor_id" jsonschema:"actor identifier"`
	Kind      string `json:"kind" jsonschema:"advance kind"`
	Name      string `json:"name" jsonschema:"advance bought"`
	Cost      int    `json:"cost" jsonschema:"experience spent"`
	Remaining int    `json:"remaining" jsonschema:"experience left"`
}

// AdvanceBuyTool defines the MCP tool schema for buying advances.
func AdvanceBuyTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "advance_buy",
		Description: "Spends experience on a career advance",
	}
}

// AdvanceBuyHandler buys an advance.
func AdvanceBuyHandler(svc *check.Service, cat *i18n.Catalog) mcp.ToolHandlerFor[AdvanceBuyInput, AdvanceBuyResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input AdvanceBuyInput) (*mcp.CallToolResult, AdvanceBuyResult, error) {
		adv, err := svc.BuyAdvance(ctx, check.AdvanceRequest{
			ActorID:   input.ActorID,
			Kind:      input.Kind,
			Name:      input.Name,
			Cost:      input.Cost,
			Cancelled: input.Cancelled,
		})
		if err != nil {
			return nil, AdvanceBuyResult{}, toolError(cat, "advance buy", err)
		}
		return nil, AdvanceBuyResult{
			ActorID:   adv.ActorID,
			Kind:      adv.Kind,
			Name:      adv.Name,
			Cost:      adv.Cost,
			Remaining: adv.Remaining,
		}, nil
	}
}
