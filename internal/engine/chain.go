package engine

import "github.com/roach88/fixtures/internal/ir"

// callChain is the stack of keys currently being materialized by one Get
// call, innermost last.
//
// A chain is immutable: push returns a new chain sharing its parent, so a
// dependency resolved from one template call never sees keys pushed by a
// sibling call. Each Get starts from an empty (nil) chain, which is why two
// independent callers resolving the same key are never mistaken for a
// cycle; they meet at admission instead.
type callChain struct {
	key    ir.FixtureKey
	parent *callChain
	depth  int
}

// push returns a chain with key on top.
func (c *callChain) push(key ir.FixtureKey) *callChain {
	return &callChain{key: key, parent: c, depth: c.len() + 1}
}

// contains reports whether key is already in progress on this chain.
func (c *callChain) contains(key ir.FixtureKey) bool {
	for n := c; n != nil; n = n.parent {
		if n.key == key {
			return true
		}
	}
	return false
}

func (c *callChain) len() int {
	if c == nil {
		return 0
	}
	return c.depth
}

// path returns the keys outermost first.
func (c *callChain) path() []ir.FixtureKey {
	out := make([]ir.FixtureKey, c.len())
	i := len(out) - 1
	for n := c; n != nil; n = n.parent {
		out[i] = n.key
		i--
	}
	return out
}

// cycle builds the CYCLIC_DEPENDENCY error for key re-entering the chain.
func (c *callChain) cycle(key ir.FixtureKey) *ir.FixtureError {
	return ir.NewCyclicDependency(key, append(c.path(), key))
}
