package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/wfrp3e/internal/platform/errors/i18n"
	"github.com/louisbranch/wfrp3e/internal/platform/id"
	"github.com/louisbranch/wfrp3e/internal/storage"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ActorPutInput represents the MCP tool input for storing an actor or item.
type ActorPutInput struct {
	ID   string         `json:"id,omitempty" jsonschema:"document identifier; generated when empty"`
	Kind string         `json:"kind,omitempty" jsonschema:"actor (default) or item"`
	Name string         `json:"name" jsonschema:"display name"`
	Data map[string]any `json:"data,omitempty" jsonschema:"document body, e.g. {system: {fortune: {value: 2}}}"`
}

// ActorGetInput represents the MCP tool input for reading a document.
type ActorGetInput struct {
	ID string `json:"id" jsonschema:"document identifier"`
}

// DocumentResult represents a stored actor, item or combat.
type DocumentResult struct {
	ID        string         `json:"id" jsonschema:"document identifier"`
	Kind      string         `json:"kind" jsonschema:"document kind"`
	Name      string         `json:"name" jsonschema:"display name"`
	Data      map[string]any `json:"data" jsonschema:"document body"`
	UpdatedAt string         `json:"updated_at,omitempty" jsonschema:"RFC3339 timestamp of the last write"`
}

// ActorPutTool defines the MCP tool schema for storing documents.
func ActorPutTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "actor_put",
		Description: "Creates or replaces an actor or item document (actions are items with effect tables)",
	}
}

// ActorGetTool defines the MCP tool schema for reading documents.
func ActorGetTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "actor_get",
		Description: "Reads an actor, item or combat document by id",
	}
}

// ActorPutHandler stores a document.
func ActorPutHandler(docs storage.DocumentStore, cat *i18n.Catalog) mcp.ToolHandlerFor[ActorPutInput, DocumentResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input ActorPutInput) (*mcp.CallToolResult, DocumentResult, error) {
		kind := strings.ToLower(strings.TrimSpace(input.Kind))
		if kind == "" {
			kind = storage.KindActor
		}
		if kind != storage.KindActor && kind != storage.KindItem {
			return nil, DocumentResult{}, fmt.Errorf("kind must be actor or item, got %q", input.Kind)
		}
		docID := strings.TrimSpace(input.ID)
		if docID == "" {
			var err error
			if docID, err = id.NewID(); err != nil {
				return nil, DocumentResult{}, err
			}
		}
		data, err := json.Marshal(input.Data)
		if err != nil {
			return nil, DocumentResult{}, fmt.Errorf("encode document data: %w", err)
		}
		if input.Data == nil {
			data = []byte("{}")
		}

		doc := storage.Document{ID: docID, Kind: kind, Name: input.Name, Data: data}
		if err := docs.PutDocument(ctx, doc); err != nil {
			return nil, DocumentResult{}, toolError(cat, "actor put", err)
		}
		stored, err := docs.GetDocument(ctx, docID)
		if err != nil {
			return nil, DocumentResult{}, toolError(cat, "actor put", err)
		}
		result, err := documentResult(stored)
		return nil, result, err
	}
}

// ActorGetHandler reads a document.
func ActorGetHandler(docs storage.DocumentStore, cat *i18n.Catalog) mcp.ToolHandlerFor[ActorGetInput, DocumentResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input ActorGetInput) (*mcp.CallToolResult, DocumentResult, error) {
		doc, err := docs.GetDocument(ctx, input.ID)
		if err != nil {
			return nil, DocumentResult{}, toolError(cat, "actor get", err)
		}
		result, err := documentResult(doc)
		return nil, result, err
	}
}

func documentResult(doc storage.Document) (DocumentResult, error) {
	data := map[string]any{}
	if len(doc.Data) > 0 {
		if err := json.Unmarshal(doc.Data, &data); err != nil {
			return DocumentResult{}, fmt.Errorf("decode document %s: %w", doc.ID, err)
		}
	}
	return DocumentResult{
		ID:        doc.ID,
		Kind:      doc.Kind,
		Name:      doc.Name,
		Data:      data,
		UpdatedAt: formatTimestamp(doc.UpdatedAt),
	}, nil
}

// formatTimestamp returns an RFC3339 timestamp or empty string.
func formatTimestamp(ts time.Time) string {
	if ts.IsZero() {
		return ""
	}
	return ts.UTC().Format(time.RFC3339)
}
