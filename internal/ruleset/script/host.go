// Package script runs authored effect scripts in a restricted Lua state.
//
// A script sees a fixed context: the tally, the active face, the acting
// actor and the action item. Writes to the actor are collected as Changes
// and never reach the document store from inside the interpreter.
package script

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/Shopify/go-lua"
	"github.com/louisbranch/wfrp3e/internal/ruleset/symbol"
	"github.com/louisbranch/wfrp3e/internal/storage"
	"github.com/tidwall/gjson"
)

const (
	// DefaultInstructionBudget bounds one script run.
	DefaultInstructionBudget = 1_000_000
	hookInterval             = 1000
)

// ErrBudgetExceeded indicates a script ran past its instruction budget.
var ErrBudgetExceeded = errors.New("script instruction budget exceeded")

// ErrReadOnly indicates a write attempted from a condition script.
var ErrReadOnly = errors.New("condition scripts cannot modify the actor")

// ErrFieldChanged indicates a field no longer holds the value an effect set.
var ErrFieldChanged = errors.New("field changed since the effect set it")

// Env is the context bound into one script run.
type Env struct {
	Actor storage.Document
	Item  storage.Document
	Tally symbol.Tally
	Face  string
}

// Change is one actor field a script wrote. Before is nil when the path did
// not exist. Delta is set while every write to the path was an actor.add.
type Change struct {
	Path   string   `json:"path"`
	Before any      `json:"before"`
	After  any      `json:"after"`
	Delta  *float64 `json:"delta,omitempty"`
}

// Result is what a script run produced.
type Result struct {
	Changes []Change `json:"changes,omitempty"`
	Chat    []string `json:"chat,omitempty"`
}

// Fields returns the partial update that applies the changes.
func (r Result) Fields() map[string]any {
	fields := make(map[string]any, len(r.Changes))
	for _, c := range r.Changes {
		fields[c.Path] = c.After
	}
	return fields
}

// RestoreFields returns the partial update that takes the changes back out
// of current. Added amounts are subtracted from whatever the field holds
// now. A set field is restored only while it still holds the value the
// script wrote; otherwise ErrFieldChanged is returned.
func RestoreFields(changes []Change, current storage.Document) (map[string]any, error) {
	fields := make(map[string]any, len(changes))
	for _, c := range changes {
		value := gjson.GetBytes(current.Data, c.Path)
		if c.Delta != nil {
			fields[c.Path] = normalizeNumber(value.Float() - *c.Delta)
			continue
		}
		if !sameValue(jsonValue(value), c.After) {
			return nil, fmt.Errorf("%w: %s", ErrFieldChanged, c.Path)
		}
		fields[c.Path] = c.Before
	}
	return fields, nil
}

// sameValue compares two values by their JSON form.
func sameValue(a, b any) bool {
	var left, right any
	if !roundTrip(a, &left) || !roundTrip(b, &right) {
		return false
	}
	return reflect.DeepEqual(left, right)
}

func roundTrip(value any, out *any) bool {
	raw, err := json.Marshal(value)
	if err != nil {
		return false
	}
	return json.Unmarshal(raw, out) == nil
}

// Host compiles and runs scripts. It is safe for concurrent use; every run
// gets a fresh Lua state.
type Host struct {
	budget int
}

// Option configures a Host.
type Option func(*Host)

// WithInstructionBudget overrides the per-run instruction budget.
func WithInstructionBudget(n int) Option {
	return func(h *Host) {
		if n > 0 {
			h.budget = n
		}
	}
}

// NewHost returns a script host.
func NewHost(opts ...Option) *Host {
	h := &Host{budget: DefaultInstructionBudget}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Condition evaluates src as a predicate. src may be a bare expression
// ("tally.boon >= 2") or a chunk with a return statement.
func (h *Host) Condition(ctx context.Context, src string, env Env) (bool, error) {
	if strings.TrimSpace(src) == "" {
		return true, nil
	}
	run := newRun(env, false)
	truthy := false
	err := h.exec(ctx, run, src, true, func(l *lua.State) {
		truthy = l.ToBoolean(-1)
	})
	if err != nil {
		return false, err
	}
	return truthy, nil
}

// Run executes src and returns the actor writes and chat lines it produced.
func (h *Host) Run(ctx context.Context, src string, env Env) (Result, error) {
	run := newRun(env, true)
	if strings.TrimSpace(src) == "" {
		return Result{}, nil
	}
	if err := h.exec(ctx, run, src, false, nil); err != nil {
		return Result{}, err
	}
	return run.result(), nil
}

func (h *Host) exec(ctx context.Context, run *scriptRun, src string, expression bool, inspect func(*lua.State)) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	l := lua.NewState()
	openSandbox(l)
	run.bind(l)

	ticks := 0
	limit := max(h.budget/hookInterval, 1)
	lua.SetDebugHook(l, func(state *lua.State, _ lua.Debug) {
		if ctx.Err() != nil {
			lua.Errorf(state, "%s", ctx.Err().Error())
		}
		ticks++
		if ticks > limit {
			lua.Errorf(state, "%s", ErrBudgetExceeded.Error())
		}
	}, lua.MaskCount, hookInterval)

	if err := load(l, src, expression); err != nil {
		return fmt.Errorf("compile script: %w", err)
	}
	if err := l.ProtectedCall(0, 1, 0); err != nil {
		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case ticks > limit:
			return ErrBudgetExceeded
		case run.readOnlyViolation:
			return ErrReadOnly
		}
		return fmt.Errorf("run script: %w", err)
	}
	if inspect != nil {
		inspect(l)
	}
	l.Pop(1)
	return nil
}

// load compiles an expression form first so bare predicates need no return.
func load(l *lua.State, src string, expression bool) error {
	if expression {
		if err := lua.LoadString(l, "return "+src); err == nil {
			return nil
		}
		l.SetTop(0)
	}
	return lua.LoadString(l, src)
}

var sandboxLibraries = []struct {
	name string
	open lua.Function
}{
	{"_G", lua.BaseOpen},
	{"string", lua.StringOpen},
	{"table", lua.TableOpen},
	{"math", lua.MathOpen},
}

// Budget and cancellation errors raised by the debug hook always unwind the
// whole run, so nothing may catch them.
var removedGlobals = []string{"dofile", "loadfile", "load", "loadstring", "require", "collectgarbage", "pcall", "xpcall"}

func openSandbox(l *lua.State) {
	for _, lib := range sandboxLibraries {
		lua.Require(l, lib.name, lib.open, true)
		l.Pop(1)
	}
	for _, name := range removedGlobals {
		l.PushNil()
		l.SetGlobal(name)
	}
}

// scriptRun holds the working copy of the actor for one run.
type scriptRun struct {
	env               Env
	writable          bool
	data              []byte
	changes           []Change
	index             map[string]int
	chat              []string
	readOnlyViolation bool
}

func newRun(env Env, writable bool) *scriptRun {
	data := []byte(env.Actor.Data)
	if len(data) == 0 {
		data = []byte("{}")
	}
	return &scriptRun{
		env:      env,
		writable: writable,
		data:     data,
		index:    map[string]int{},
	}
}

func (r *scriptRun) result() Result {
	return Result{Changes: r.changes, Chat: r.chat}
}

func (r *scriptRun) bind(l *lua.State) {
	l.NewTable()
	for _, tag := range symbol.AllTags() {
		l.PushInteger(r.env.Tally.Count(tag))
		l.SetField(-2, string(tag))
	}
	l.PushInteger(r.env.Tally.NetSuccesses())
	l.SetField(-2, "net_successes")
	l.PushInteger(r.env.Tally.NetBoons())
	l.SetField(-2, "net_boons")
	l.SetGlobal("tally")

	l.PushString(r.env.Face)
	l.SetGlobal("face")

	l.NewTable()
	lua.SetFunctions(l, []lua.RegistryFunction{
		{Name: "get", Function: r.actorGet},
		{Name: "set", Function: r.actorSet},
		{Name: "add", Function: r.actorAdd},
	}, 0)
	l.PushString(r.env.Actor.ID)
	l.SetField(-2, "id")
	l.PushString(r.env.Actor.Name)
	l.SetField(-2, "name")
	l.SetGlobal("actor")

	l.NewTable()
	lua.SetFunctions(l, []lua.RegistryFunction{
		{Name: "get", Function: r.itemGet},
	}, 0)
	l.PushString(r.env.Item.ID)
	l.SetField(-2, "id")
	l.PushString(r.env.Item.Name)
	l.SetField(-2, "name")
	l.SetGlobal("item")

	l.Register("chat", r.chatLine)
}

func (r *scriptRun) actorGet(l *lua.State) int {
	pushJSON(l, gjson.GetBytes(r.data, lua.CheckString(l, 1)))
	return 1
}

func (r *scriptRun) itemGet(l *lua.State) int {
	pushJSON(l, gjson.GetBytes(r.env.Item.Data, lua.CheckString(l, 1)))
	return 1
}

func (r *scriptRun) actorSet(l *lua.State) int {
	path := lua.CheckString(l, 1)
	l.SetTop(2)
	r.write(l, path, luaToGo(l, 2), nil)
	return 0
}

func (r *scriptRun) actorAdd(l *lua.State) int {
	path := lua.CheckString(l, 1)
	delta := lua.CheckNumber(l, 2)
	current := gjson.GetBytes(r.data, path).Float()
	next := normalizeNumber(current + delta)
	r.write(l, path, next, &delta)
	pushValue(l, next)
	return 1
}

func (r *scriptRun) write(l *lua.State, path string, value any, delta *float64) {
	if !r.writable {
		r.readOnlyViolation = true
		lua.Errorf(l, "%s", ErrReadOnly.Error())
		return
	}
	path = strings.TrimSpace(path)
	if path == "" {
		lua.ArgumentError(l, 1, "path is required")
		return
	}
	before := gjson.GetBytes(r.data, path)
	data, err := storage.ApplyFields(r.data, map[string]any{path: value})
	if err != nil {
		lua.Errorf(l, "%s", err.Error())
		return
	}
	r.data = data

	if i, ok := r.index[path]; ok {
		c := &r.changes[i]
		c.After = value
		if delta == nil || c.Delta == nil {
			c.Delta = nil
			return
		}
		sum := *c.Delta + *delta
		c.Delta = &sum
		return
	}
	r.index[path] = len(r.changes)
	r.changes = append(r.changes, Change{Path: path, Before: jsonValue(before), After: value, Delta: delta})
}

func (r *scriptRun) chatLine(l *lua.State) int {
	r.chat = append(r.chat, lua.CheckString(l, 1))
	return 0
}
