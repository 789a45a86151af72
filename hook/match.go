package hook

import "context"

// ForTools limits h to calls of the named tools.
func ForTools(h PreToolHandler, names ...string) PreToolHandler {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return PreToolFunc(func(ctx context.Context, ev PreToolUseEvent) *Decision {
		if _, ok := set[ev.ToolName]; !ok {
			return nil
		}
		return h.OnPreToolUse(ctx, ev)
	})
}

// DenyTools blocks every call to the named tools.
func DenyTools(reason string, names ...string) PreToolHandler {
	return ForTools(PreToolFunc(func(context.Context, PreToolUseEvent) *Decision {
		return Block(reason)
	}), names...)
}
