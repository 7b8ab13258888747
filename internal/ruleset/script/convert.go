package script

import (
	"math"

	"github.com/Shopify/go-lua"
	"github.com/tidwall/gjson"
)

func pushJSON(l *lua.State, value gjson.Result) {
	switch value.Type {
	case gjson.True, gjson.False:
		l.PushBoolean(value.Bool())
	case gjson.Number:
		pushValue(l, normalizeNumber(value.Float()))
	case gjson.String:
		l.PushString(value.String())
	case gjson.JSON:
		l.NewTable()
		if value.IsArray() {
			i := 1
			value.ForEach(func(_, item gjson.Result) bool {
				pushJSON(l, item)
				l.RawSetInt(-2, i)
				i++
				return true
			})
			return
		}
		value.ForEach(func(key, item gjson.Result) bool {
			pushJSON(l, item)
			l.SetField(-2, key.String())
			return true
		})
	default:
		l.PushNil()
	}
}

func pushValue(l *lua.State, value any) {
	switch v := value.(type) {
	case nil:
		l.PushNil()
	case bool:
		l.PushBoolean(v)
	case int:
		l.PushInteger(v)
	case float64:
		l.PushNumber(v)
	case string:
		l.PushString(v)
	default:
		l.PushNil()
	}
}

func jsonValue(value gjson.Result) any {
	if !value.Exists() {
		return nil
	}
	if value.Type == gjson.Number {
		return normalizeNumber(value.Float())
	}
	return value.Value()
}

func luaToGo(l *lua.State, index int) any {
	switch l.TypeOf(index) {
	case lua.TypeString:
		value, _ := l.ToString(index)
		return value
	case lua.TypeNumber:
		value, _ := l.ToNumber(index)
		return normalizeNumber(value)
	case lua.TypeBoolean:
		return l.ToBoolean(index)
	case lua.TypeTable:
		return tableToGo(l, index)
	default:
		return nil
	}
}

// tableToGo converts sequences to slices and everything else to maps with
// string keys.
func tableToGo(l *lua.State, index int) any {
	index = l.AbsIndex(index)
	isArray := true
	maxIndex := 0
	count := 0
	l.PushNil()
	for l.Next(index) {
		if isArray {
			if l.TypeOf(-2) != lua.TypeNumber {
				isArray = false
			} else if idx, ok := l.ToInteger(-2); ok && idx > 0 {
				count++
				maxIndex = max(maxIndex, idx)
			} else {
				isArray = false
			}
		}
		l.Pop(1)
	}

	if isArray && count > 0 && maxIndex == count {
		out := make([]any, 0, maxIndex)
		for i := 1; i <= maxIndex; i++ {
			l.RawGetInt(index, i)
			out = append(out, luaToGo(l, -1))
			l.Pop(1)
		}
		return out
	}

	out := map[string]any{}
	l.PushNil()
	for l.Next(index) {
		if l.TypeOf(-2) == lua.TypeString {
			key, _ := l.ToString(-2)
			out[key] = luaToGo(l, -1)
		}
		l.Pop(1)
	}
	return out
}

func normalizeNumber(value float64) any {
	if math.Mod(value, 1) == 0 && math.Abs(value) < 1<<53 {
		return int(value)
	}
	return value
}
