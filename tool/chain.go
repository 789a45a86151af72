package tool

import "sort"

// Chain combines executors. Lookup consults them in order, so an earlier
// executor shadows a later tool of the same name.
func Chain(execs ...Executor) Executor {
	return chain(execs)
}

type chain []Executor

func (c chain) Lookup(name string) (Capability, bool) {
	for _, exec := range c {
		if capability, ok := exec.Lookup(name); ok {
			return capability, true
		}
	}
	return nil, false
}

func (c chain) Tools() []Tool {
	seen := make(map[string]bool)
	var out []Tool
	for _, exec := range c {
		for _, t := range exec.Tools() {
			if seen[t.Name] {
				continue
			}
			seen[t.Name] = true
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
