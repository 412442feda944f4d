// SPDX-FileCopyrightText: Copyright 2026 The Uitsmijter Authors
// SPDX-License-Identifier: Apache-2.0

package script

import (
	lua "github.com/yuin/gopher-lua"
)

// goToLua converts a Go value into its Lua representation.
func goToLua(state *lua.LState, value any) lua.LValue {
	switch v := value.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(v)
	case int:
		return lua.LNumber(v)
	case int64:
		return lua.LNumber(v)
	case float64:
		return lua.LNumber(v)
	case string:
		return lua.LString(v)
	case []any:
		tbl := state.NewTable()
		for _, item := range v {
			tbl.Append(goToLua(state, item))
		}
		return tbl
	case map[string]any:
		tbl := state.NewTable()
		for key, item := range v {
			state.SetField(tbl, key, goToLua(state, item))
		}
		return tbl
	default:
		return lua.LNil
	}
}

// luaToGo converts a Lua value into a plain Go value. Tables with only
// consecutive integer keys become slices, everything else becomes maps.
func luaToGo(value lua.LValue) any {
	switch v := value.(type) {
	case *lua.LNilType:
		return nil
	case lua.LBool:
		return bool(v)
	case lua.LNumber:
		return float64(v)
	case lua.LString:
		return string(v)
	case *lua.LTable:
		maxIndex := v.MaxN()
		if maxIndex > 0 && v.Len() == maxIndex {
			out := make([]any, 0, maxIndex)
			for i := 1; i <= maxIndex; i++ {
				out = append(out, luaToGo(v.RawGetInt(i)))
			}
			return out
		}
		out := map[string]any{}
		v.ForEach(func(key, item lua.LValue) {
			out[key.String()] = luaToGo(item)
		})
		return out
	default:
		return nil
	}
}
