package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New("record not found")

// Document kinds stored by the engine.
const (
	KindActor  = "actor"
	KindItem   = "item"
	KindCombat = "combat"
)

// Document is an actor or item addressed by ID. Data holds the document body
// as JSON, e.g. {"system": {"fortune": {"value": 2}}}.
type Document struct {
	ID        string
	Kind      string
	Name      string
	Data      json.RawMessage
	UpdatedAt time.Time
}

// Field reads a dotted path from the document body.
func (d Document) Field(path string) gjson.Result {
	return gjson.GetBytes(d.Data, path)
}

// Int reads a dotted path as an integer; missing paths read as zero.
func (d Document) Int(path string) int {
	return int(d.Field(path).Int())
}

// DocumentStore is the external key-value document store.
type DocumentStore interface {
	GetDocument(ctx context.Context, id string) (Document, error)
	PutDocument(ctx context.Context, doc Document) error
	// UpdateDocument sets only the named dotted paths; a nil value deletes the path.
	UpdateDocument(ctx context.Context, id string, fields map[string]any) (Document, error)
}

// ApplyFields writes fields into a JSON document body in sorted path order.
func ApplyFields(data []byte, fields map[string]any) ([]byte, error) {
	if len(data) == 0 {
		data = []byte("{}")
	}
	paths := make([]string, 0, len(fields))
	for path := range fields {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	out := data
	for _, path := range paths {
		clean := strings.TrimSpace(path)
		if clean == "" {
			return nil, fmt.Errorf("field path is required")
		}
		var err error
		if value := fields[path]; value == nil {
			out, err = sjson.DeleteBytes(out, clean)
		} else {
			out, err = sjson.SetBytes(out, clean, value)
		}
		if err != nil {
			return nil, fmt.Errorf("set %s: %w", clean, err)
		}
	}
	return out, nil
}

// Message is one chat-log entry.
type Message struct {
	Seq     int64
	ID      string
	ActorID string
	// Kind classifies the message: "check", "initiative", "effect".
	Kind    string
	Outcome string
	Mode    string
	Content string
	// Sound marks the message as audible when posted.
	Sound     bool
	Payload   json.RawMessage
	CreatedAt time.Time
	UpdatedAt time.Time
}

// MessagePage is one page of chat messages.
type MessagePage struct {
	Messages      []Message
	NextPageToken string
}

// MessageStore persists chat messages and their roll records.
type MessageStore interface {
	PutMessage(ctx context.Context, msg Message) (Message, error)
	GetMessage(ctx context.Context, id string) (Message, error)
	// UpdatePayload replaces a message's payload and outcome.
	UpdatePayload(ctx context.Context, id, outcome string, payload json.RawMessage) error
	// ListMessages returns messages oldest first. filter is an AIP-160 expression.
	ListMessages(ctx context.Context, filter string, pageSize int, pageToken string) (MessagePage, error)
}
