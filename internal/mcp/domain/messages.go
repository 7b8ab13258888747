package domain

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/louisbranch/wfrp3e/internal/platform/errors/i18n"
	"github.com/louisbranch/wfrp3e/internal/storage"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// MessagesListInput represents the MCP tool input for listing chat messages.
type MessagesListInput struct {
	Filter    string `json:"filter,omitempty" jsonschema:"AIP-160 filter, e.g. actor_id = \"a1\" AND outcome = \"success\""`
	PageSize  int    `json:"page_size,omitempty" jsonschema:"maximum messages to return (default 50, max 200)"`
	PageToken string `json:"page_token,omitempty" jsonschema:"token from a previous page"`
}

// MessageResult is one chat message.
type MessageResult struct {
	Seq       int64  `json:"seq" jsonschema:"position in the chat log"`
	ID        string `json:"id" jsonschema:"message identifier"`
	ActorID   string `json:"actor_id,omitempty" jsonschema:"speaking actor"`
	Kind      string `json:"kind" jsonschema:"check, pool, initiative or advance"`
	Outcome   string `json:"outcome,omitempty" jsonschema:"success or failure"`
	Mode      string `json:"mode" jsonschema:"visibility mode"`
	Content   string `json:"content,omitempty" jsonschema:"chat line"`
	Sound     bool   `json:"sound" jsonschema:"message was audible when posted"`
	Payload   any    `json:"payload,omitempty" jsonschema:"structured record carried by the message"`
	CreatedAt string `json:"created_at,omitempty" jsonschema:"RFC3339 timestamp"`
}

// MessagesListResult represents the MCP tool output for message listings.
type MessagesListResult struct {
	Messages      []MessageResult `json:"messages" jsonschema:"messages oldest first"`
	NextPageToken string          `json:"next_page_token,omitempty" jsonschema:"token for the next page"`
}

// MessagesListTool defines the MCP tool schema for listing chat messages.
func MessagesListTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "messages_list",
		Description: "Lists chat messages and their roll records, oldest first",
	}
}

// MessagesListHandler lists chat messages.
func MessagesListHandler(messages storage.MessageStore, cat *i18n.Catalog) mcp.ToolHandlerFor[MessagesListInput, MessagesListResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input MessagesListInput) (*mcp.CallToolResult, MessagesListResult, error) {
		page, err := messages.ListMessages(ctx, input.Filter, input.PageSize, input.PageToken)
		if err != nil {
			return nil, MessagesListResult{}, toolError(cat, "messages list", err)
		}
		result := MessagesListResult{
			Messages:      make([]MessageResult, 0, len(page.Messages)),
			NextPageToken: page.NextPageToken,
		}
		for _, msg := range page.Messages {
			entry, err := messageResult(msg)
			if err != nil {
				return nil, MessagesListResult{}, err
			}
			result.Messages = append(result.Messages, entry)
		}
		return nil, result, nil
	}
}

func messageResult(msg storage.Message) (MessageResult, error) {
	result := MessageResult{
		Seq:       msg.Seq,
		ID:        msg.ID,
		ActorID:   msg.ActorID,
		Kind:      msg.Kind,
		Outcome:   msg.Outcome,
		Mode:      msg.Mode,
		Content:   msg.Content,
		Sound:     msg.Sound,
		CreatedAt: formatTimestamp(msg.CreatedAt),
	}
	if len(msg.Payload) > 0 {
		if err := json.Unmarshal(msg.Payload, &result.Payload); err != nil {
			return MessageResult{}, fmt.Errorf("decode message %s payload: %w", msg.ID, err)
		}
	}
	return result, nil
}
