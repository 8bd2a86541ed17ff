package radix

import (
	"golang.org/x/sync/syncmap"
)

type registryKey struct {
	token string
	node  int
}

// Registry hands the split buffers of a node from the split stage to the
// send stage. Entries are taken exactly once.
type Registry struct {
	entries syncmap.Map
}

func NewRegistry() *Registry {
	return &Registry{}
}

func (reg *Registry) Put(token string, node int, split *localSplit) {
	reg.entries.Store(registryKey{token: token, node: node}, split)
}

func (reg *Registry) Take(token string, node int) (*localSplit, bool) {
	val, ok := reg.entries.LoadAndDelete(registryKey{token: token, node: node})
	if !ok {
		return nil, false
	}
	return val.(*localSplit), true
}

// Drop removes whatever a failed job left behind.
func (reg *Registry) Drop(token string) int {
	cnt := 0
	reg.entries.Range(func(key, _ any) bool {
		if key.(registryKey).token == token {
			reg.entries.Delete(key)
			cnt++
		}
		return true
	})
	return cnt
}

func (reg *Registry) Len() int {
	cnt := 0
	reg.entries.Range(func(_, _ any) bool {
		cnt++
		return true
	})
	return cnt
}
