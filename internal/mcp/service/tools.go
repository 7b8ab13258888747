package service

import (
	"github.com/louisbranch/wfrp3e/internal/mcp/domain"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func registerDocumentTools(mcpServer *mcp.Server, engine Engine) {
	mcp.AddTool(mcpServer, domain.ActorPutTool(), domain.ActorPutHandler(engine.Docs, engine.Catalog))
	mcp.AddTool(mcpServer, domain.ActorGetTool(), domain.ActorGetHandler(engine.Docs, engine.Catalog))
}

func registerCheckTools(mcpServer *mcp.Server, engine Engine) {
	mcp.AddTool(mcpServer, domain.CheckRollTool(), domain.CheckRollHandler(engine.Checks, engine.Catalog))
	mcp.AddTool(mcpServer, domain.PoolRollTool(), domain.PoolRollHandler(engine.Checks, engine.Catalog))
	mcp.AddTool(mcpServer, domain.AdvanceBuyTool(), domain.AdvanceBuyHandler(engine.Checks, engine.Catalog))
}

func registerEffectTools(mcpServer *mcp.Server, engine Engine) {
	mcp.AddTool(mcpServer, domain.EffectApplyTool(), domain.EffectApplyHandler(engine.Checks, engine.Catalog))
	mcp.AddTool(mcpServer, domain.EffectReverseTool(), domain.EffectReverseHandler(engine.Checks, engine.Catalog))
	mcp.AddTool(mcpServer, domain.EffectToggleTool(), domain.EffectToggleHandler(engine.Checks, engine.Catalog))
	mcp.AddTool(mcpServer, domain.EffectsApplyAllTool(), domain.EffectsApplyAllHandler(engine.Checks, engine.Catalog))
}

func registerInitiativeTools(mcpServer *mcp.Server, engine Engine) {
	mcp.AddTool(mcpServer, domain.CombatPutTool(), domain.CombatPutHandler(engine.Docs, engine.Catalog))
	mcp.AddTool(mcpServer, domain.CombatGetTool(), domain.CombatGetHandler(engine.Docs, engine.Catalog))
	mcp.AddTool(mcpServer, domain.InitiativeRollTool(), domain.InitiativeRollHandler(engine.Initiative, engine.Docs, engine.Catalog))
}

func registerMessageTools(mcpServer *mcp.Server, engine Engine) {
	mcp.AddTool(mcpServer, domain.MessagesListTool(), domain.MessagesListHandler(engine.Messages, engine.Catalog))
}
