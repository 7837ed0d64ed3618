package narrative

import (
	"fmt"
	"sort"

	"github.com/Shopify/go-lua"
)

// luaLibs is the sandbox available to story expressions. File loading is removed below.
var luaLibs = []lua.RegistryFunction{
	{Name: "_G", Function: lua.BaseOpen},
	{Name: "string", Function: lua.StringOpen},
	{Name: "table", Function: lua.TableOpen},
	{Name: "math", Function: lua.MathOpen},
}

func newSandbox(vars map[string]interface{}) *lua.State {
	l := lua.NewState()
	for _, lib := range luaLibs {
		lua.Require(l, lib.Name, lib.Function, true)
		l.Pop(1)
	}
	for _, name := range []string{"dofile", "loadfile", "load", "require"} {
		l.PushNil()
		l.SetGlobal(name)
	}
	for name, value := range vars {
		pushValue(l, value)
		l.SetGlobal(name)
	}
	return l
}

func pushValue(l *lua.State, value interface{}) {
	switch v := value.(type) {
	case nil:
		l.PushNil()
	case bool:
		l.PushBoolean(v)
	case string:
		l.PushString(v)
	case int:
		l.PushInteger(v)
	case int64:
		l.PushNumber(float64(v))
	case float64:
		l.PushNumber(v)
	default:
		l.PushString(fmt.Sprint(v))
	}
}

func readValue(l *lua.State, index int) interface{} {
	switch l.TypeOf(index) {
	case lua.TypeBoolean:
		return l.ToBoolean(index)
	case lua.TypeNumber:
		n, _ := l.ToNumber(index)
		return n
	case lua.TypeString:
		s, _ := l.ToString(index)
		return s
	default:
		return nil
	}
}

// checkSyntax compiles an expression without running it.
func checkSyntax(chunk string) error {
	l := lua.NewState()
	return lua.LoadString(l, chunk)
}

func conditionChunk(expr string) string { return "return (" + expr + ")" }

// evalCondition runs expr against vars and reports its truthiness.
func evalCondition(expr string, vars map[string]interface{}) (bool, error) {
	if expr == "" {
		return true, nil
	}
	l := newSandbox(vars)
	if err := lua.LoadString(l, conditionChunk(expr)); err != nil {
		return false, fmt.Errorf("condition %q: %w", expr, err)
	}
	if err := l.ProtectedCall(0, 1, 0); err != nil {
		return false, fmt.Errorf("condition %q: %w", expr, err)
	}
	return l.ToBoolean(-1), nil
}

// execEffect runs statements against vars and returns the updated values of
// the variables it knew about. New globals created by the chunk are dropped.
func execEffect(chunk string, vars map[string]interface{}) (map[string]interface{}, error) {
	if chunk == "" {
		return vars, nil
	}
	l := newSandbox(vars)
	if err := lua.LoadString(l, chunk); err != nil {
		return nil, fmt.Errorf("effect %q: %w", chunk, err)
	}
	if err := l.ProtectedCall(0, 0, 0); err != nil {
		return nil, fmt.Errorf("effect %q: %w", chunk, err)
	}

	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make(map[string]interface{}, len(vars))
	for _, name := range names {
		l.Global(name)
		out[name] = readValue(l, -1)
		l.Pop(1)
	}
	return out, nil
}
