// Package service tests the MCP server wiring.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/louisbranch/wfrp3e/internal/mcp/domain"
	"github.com/louisbranch/wfrp3e/internal/ruleset/check"
	"github.com/louisbranch/wfrp3e/internal/ruleset/config"
	"github.com/louisbranch/wfrp3e/internal/ruleset/dice"
	"github.com/louisbranch/wfrp3e/internal/ruleset/effect"
	"github.com/louisbranch/wfrp3e/internal/ruleset/initiative"
	"github.com/louisbranch/wfrp3e/internal/ruleset/script"
	"github.com/louisbranch/wfrp3e/internal/storage/sqlite"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/tidwall/gjson"
)

// failingTransport returns a connection error for tests.
type failingTransport struct{}

// Connect returns the configured error for tests.
func (f failingTransport) Connect(context.Context) (mcp.Connection, error) {
	return nil, errors.New("transport failure")
}

const actorData = `{
	"system": {
		"characteristics": {"strength": {"rating": 3}, "agility": {"rating": 1}, "intelligence": {"rating": 2}},
		"stance": {"current": 1},
		"fortune": {"value": 2},
		"wounds": {"value": 0},
		"experience": {"total": 5, "spent": 1}
	}
}`

const strikeData = `{
	"system": {
		"characteristic": "strength",
		"difficulty": 1,
		"effects": {
			"conservative": [
				{"id": "wound", "symbol": "success", "rank": 1, "type": "general",
				 "script": "actor.add('system.wounds.value', 2)"},
				{"id": "rally", "symbol": "boon", "rank": 1, "type": "talent",
				 "script": "actor.add('system.fortune.value', 1)"}
			]
		}
	}
}`

// Check pool order is characteristic, conservative, challenge: one net
// success and one net boon for the strike action.
var strikeFaces = []int{5, 1, 10, 2}

func newTestEngine(t *testing.T, initiativeFaces ...int) Engine {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "engine.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	rs := config.MustDefault()
	checks := check.NewService(rs, store, store, effect.NewResolver(store, script.NewHost()),
		check.WithSourceFactory(func(int64) dice.Source { return dice.NewSequenceSource(strikeFaces...) }),
		check.WithSeedGenerator(func() (int64, error) { return 7, nil }),
	)
	roller := initiative.NewRoller(rs, store, store, initiative.WithSource(func() (dice.Source, error) {
		return dice.NewSequenceSource(initiativeFaces...), nil
	}))
	return Engine{Docs: store, Messages: store, Checks: checks, Initiative: roller}
}

// connect serves engine over in-memory transports and returns a client session.
func connect(t *testing.T, engine Engine) *mcp.ClientSession {
	t.Helper()
	server, err := New(engine)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.serveWithTransport(ctx, serverTransport)
	}()

	client := mcp.NewClient(&mcp.Implementation{Name: "client", Version: "v0.0.1"}, nil)
	session, err := client.Connect(context.Background(), clientTransport, nil)
	if err != nil {
		cancel()
		t.Fatalf("connect client: %v", err)
	}
	t.Cleanup(func() {
		_ = session.Close()
		cancel()
		<-serveErr
	})
	return session
}

// callTool invokes a tool and decodes its structured output into out.
func callTool(t *testing.T, session *mcp.ClientSession, name string, args any, out any) *mcp.CallToolResult {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		t.Fatalf("call %s: %v", name, err)
	}
	if result.IsError || out == nil {
		return result
	}
	data, err := json.Marshal(result.StructuredContent)
	if err != nil {
		t.Fatalf("encode %s output: %v", name, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		t.Fatalf("decode %s output: %v", name, err)
	}
	return result
}

func resultText(result *mcp.CallToolResult) string {
	var parts []string
	for _, content := range result.Content {
		if text, ok := content.(*mcp.TextContent); ok {
			parts = append(parts, text.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func putDocument(t *testing.T, session *mcp.ClientSession, docID, kind, name, body string) {
	t.Helper()
	var data map[string]any
	if err := json.Unmarshal([]byte(body), &data); err != nil {
		t.Fatalf("decode fixture: %v", err)
	}
	var doc domain.DocumentResult
	result := callTool(t, session, "actor_put", map[string]any{"id": docID, "kind": kind, "name": name, "data": data}, &doc)
	if result.IsError {
		t.Fatalf("actor_put %s: %s", docID, resultText(result))
	}
	if doc.ID != docID || doc.Kind != kind {
		t.Fatalf("stored document = %+v", doc)
	}
}

func actorField(t *testing.T, session *mcp.ClientSession, docID, path string) int64 {
	t.Helper()
	var doc domain.DocumentResult
	result := callTool(t, session, "actor_get", map[string]any{"id": docID}, &doc)
	if result.IsError {
		t.Fatalf("actor_get %s: %s", docID, resultText(result))
	}
	data, err := json.Marshal(doc.Data)
	if err != nil {
		t.Fatalf("encode document data: %v", err)
	}
	return gjson.GetBytes(data, path).Int()
}

// TestNewRejectsIncompleteEngine ensures New requires every engine service.
func TestNewRejectsIncompleteEngine(t *testing.T) {
	if _, err := New(Engine{}); err == nil {
		t.Fatal("expected error for empty engine")
	}
}

// TestServeStopsOnContext ensures the server exits when the context is cancelled.
func TestServeStopsOnContext(t *testing.T) {
	server, err := New(newTestEngine(t))
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.serveWithTransport(ctx, serverTransport)
	}()

	client := mcp.NewClient(&mcp.Implementation{Name: "client", Version: "v0.0.1"}, nil)
	clientSession, err := client.Connect(context.Background(), clientTransport, nil)
	if err != nil {
		t.Fatalf("connect client: %v", err)
	}
	defer clientSession.Close()

	cancel()

	select {
	case err := <-serveErr:
		if err != nil {
			t.Fatalf("serve returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop after cancel")
	}
}

// TestServeReturnsTransportError ensures transport failures are reported.
func TestServeReturnsTransportError(t *testing.T) {
	server, err := New(newTestEngine(t))
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	if err := server.serveWithTransport(context.Background(), failingTransport{}); err == nil {
		t.Fatal("expected transport error")
	}
}

// TestRunRejectsUnknownTransport ensures only stdio and http are served.
func TestRunRejectsUnknownTransport(t *testing.T) {
	err := Run(context.Background(), Config{Transport: "carrier-pigeon"}, newTestEngine(t))
	if err == nil || !strings.Contains(err.Error(), "not supported") {
		t.Fatalf("Run error = %v", err)
	}
}

// TestToolsAreRegistered ensures every engine tool is listed.
func TestToolsAreRegistered(t *testing.T) {
	session := connect(t, newTestEngine(t))
	result, err := session.ListTools(context.Background(), nil)
	if err != nil {
		t.Fatalf("list tools: %v", err)
	}
	got := map[string]bool{}
	for _, tool := range result.Tools {
		got[tool.Name] = true
	}
	for _, name := range []string{
		"actor_put", "actor_get", "check_roll", "pool_roll", "advance_buy",
		"effect_apply", "effect_reverse", "effect_toggle", "effects_apply_all",
		"combat_put", "combat_get", "initiative_roll", "messages_list",
	} {
		if !got[name] {
			t.Fatalf("tool %s not registered", name)
		}
	}
}

// TestCheckEffectLifecycle drives a check and its effects through the tools.
func TestCheckEffectLifecycle(t *testing.T) {
	session := connect(t, newTestEngine(t))
	putDocument(t, session, "actor-1", "actor", "Gunther", actorData)
	putDocument(t, session, "strike", "item", "Melee Strike", strikeData)

	var roll domain.RollResult
	result := callTool(t, session, "check_roll", map[string]any{"actor_id": "actor-1", "action_id": "strike"}, &roll)
	if result.IsError {
		t.Fatalf("check_roll: %s", resultText(result))
	}
	if roll.Formula != "2dch+1dco+1dcl" || roll.NetSuccesses != 1 || roll.NetBoons != 1 || roll.Seed != 7 {
		t.Fatalf("roll = %+v", roll)
	}
	if len(roll.Effects) != 2 || roll.Effects[0].State != "eligible" || roll.Effects[1].State != "eligible" {
		t.Fatalf("effects = %+v", roll.Effects)
	}

	var applied domain.RollResult
	result = callTool(t, session, "effect_apply", map[string]any{"message_id": roll.MessageID, "effect_id": "wound"}, &applied)
	if result.IsError {
		t.Fatalf("effect_apply: %s", resultText(result))
	}
	if applied.Effects[0].State != "applied" {
		t.Fatalf("wound state = %s", applied.Effects[0].State)
	}
	if got := actorField(t, session, "actor-1", "system.wounds.value"); got != 2 {
		t.Fatalf("wounds = %d, want 2", got)
	}

	result = callTool(t, session, "effect_apply", map[string]any{"message_id": roll.MessageID, "effect_id": "wound"}, nil)
	if !result.IsError || !strings.Contains(resultText(result), "EFFECT_INVALID_TRANSITION") {
		t.Fatalf("double apply result = %s", resultText(result))
	}

	var toggled domain.RollResult
	result = callTool(t, session, "effect_toggle", map[string]any{"message_id": roll.MessageID, "effect_id": "wound"}, &toggled)
	if result.IsError || toggled.Effects[0].State != "reversed" {
		t.Fatalf("toggle result = %s %+v", resultText(result), toggled.Effects)
	}
	if got := actorField(t, session, "actor-1", "system.wounds.value"); got != 0 {
		t.Fatalf("wounds after toggle = %d, want 0", got)
	}

	var batch domain.EffectsApplyAllResult
	result = callTool(t, session, "effects_apply_all", map[string]any{"message_id": roll.MessageID}, &batch)
	if result.IsError {
		t.Fatalf("effects_apply_all: %s", resultText(result))
	}
	if !batch.Roll.Disabled || len(batch.Outcomes) != 1 || batch.Outcomes[0].EffectID != "rally" {
		t.Fatalf("batch = %+v", batch)
	}
	if got := actorField(t, session, "actor-1", "system.fortune.value"); got != 3 {
		t.Fatalf("fortune = %d, want 3", got)
	}
}

// TestWarningsRenderThroughCatalog ensures validation warnings read as text.
func TestWarningsRenderThroughCatalog(t *testing.T) {
	session := connect(t, newTestEngine(t))
	putDocument(t, session, "actor-1", "actor", "Gunther", actorData)

	result := callTool(t, session, "advance_buy", map[string]any{
		"actor_id": "actor-1", "kind": "talent", "name": "Mighty Shot", "cost": 10,
	}, nil)
	want := "warning INSUFFICIENT_EXPERIENCE: This advance costs 10 experience but only 4 is available."
	if !result.IsError || !strings.Contains(resultText(result), want) {
		t.Fatalf("advance_buy result = %q", resultText(result))
	}

	result = callTool(t, session, "check_roll", map[string]any{
		"actor_id": "actor-1", "characteristic": "strength", "fortune_points": 5,
	}, nil)
	if !result.IsError || !strings.Contains(resultText(result), "Cannot spend 5 fortune points, only 2 left.") {
		t.Fatalf("check_roll result = %q", resultText(result))
	}

	var adv domain.AdvanceBuyResult
	result = callTool(t, session, "advance_buy", map[string]any{
		"actor_id": "actor-1", "kind": "talent", "name": "Mighty Shot", "cost": 2,
	}, &adv)
	if result.IsError || adv.Remaining != 2 {
		t.Fatalf("advance_buy = %s %+v", resultText(result), adv)
	}
	if got := actorField(t, session, "actor-1", "system.experience.spent"); got != 3 {
		t.Fatalf("experience spent = %d, want 3", got)
	}
}

// TestInitiativeRollSortsCombat rolls initiative through the tools.
func TestInitiativeRollSortsCombat(t *testing.T) {
	// Characteristic die faces 4-8 show a success: the first combatant
	// rolls blank and the second rolls one success.
	session := connect(t, newTestEngine(t, 1, 5))
	putDocument(t, session, "actor-1", "actor", "Gunther", actorData)
	putDocument(t, session, "actor-2", "actor", "Ilse", actorData)

	var combat domain.CombatResult
	result := callTool(t, session, "combat_put", map[string]any{
		"id": "combat-1",
		"combatants": []map[string]any{
			{"id": "c1", "actor_id": "actor-1"},
			{"id": "c2", "actor_id": "actor-2"},
		},
	}, &combat)
	if result.IsError {
		t.Fatalf("combat_put: %s", resultText(result))
	}
	if combat.EncounterType != "combat" || combat.Current != "c1" {
		t.Fatalf("combat = %+v", combat)
	}

	var rolled domain.InitiativeRollResult
	result = callTool(t, session, "initiative_roll", map[string]any{"combat_id": "combat-1"}, &rolled)
	if result.IsError {
		t.Fatalf("initiative_roll: %s", resultText(result))
	}
	got := rolled.Combat.Combatants
	if len(got) != 2 || got[0].ID != "c2" || got[1].ID != "c1" {
		t.Fatalf("combatants = %+v", got)
	}
	if rolled.Combat.Current != "c1" {
		t.Fatalf("current = %s, want c1", rolled.Combat.Current)
	}
	if len(rolled.Messages) != 2 || !rolled.Messages[0].Sound || rolled.Messages[1].Sound {
		t.Fatalf("messages = %+v", rolled.Messages)
	}

	var stored domain.CombatResult
	result = callTool(t, session, "combat_get", map[string]any{"id": "combat-1"}, &stored)
	if result.IsError || stored.Combatants[0].ID != "c2" || stored.Turn != 1 {
		t.Fatalf("stored combat = %s %+v", resultText(result), stored)
	}

	var page domain.MessagesListResult
	result = callTool(t, session, "messages_list", map[string]any{"filter": `kind = "initiative"`}, &page)
	if result.IsError || len(page.Messages) != 2 {
		t.Fatalf("messages_list = %s %+v", resultText(result), page)
	}
}

// TestHandlerServesHealth ensures the HTTP handler answers health checks.
func TestHandlerServesHealth(t *testing.T) {
	server, err := New(newTestEngine(t))
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	recorder := httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/mcp/health", nil))
	if recorder.Code != http.StatusOK || !strings.Contains(recorder.Body.String(), "ok") {
		t.Fatalf("health = %d %q", recorder.Code, recorder.Body.String())
	}

	recorder = httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/mcp/health", nil))
	if recorder.Code != http.StatusMethodNotAllowed {
		t.Fatalf("health POST = %d", recorder.Code)
	}
}

// TestServeHTTPStopsOnContext serves over a real listener and shuts down on cancel.
func TestServeHTTPStopsOnContext(t *testing.T) {
	server, err := New(newTestEngine(t))
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ln, err := listen("127.0.0.1:0", 2)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.serveHTTP(ctx, ln)
	}()

	resp, err := http.Get("http://" + ln.Addr().String() + "/mcp/health")
	if err != nil {
		t.Fatalf("get health: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-serveErr:
		if err != nil {
			t.Fatalf("serveHTTP returned error: %v", err)
		}
	case <-time.After(6 * time.Second):
		t.Fatal("HTTP server did not stop after cancel")
	}
}
