package manifest

import (
	"fmt"
	"sort"
	"text/template/parse"

	"github.com/roach88/fixtures/internal/engine"
	"github.com/roach88/fixtures/internal/ir"
)

// Warning describes a finding of static analysis.
//
// Cycles are warnings rather than errors: the analysis cannot see calls
// whose arguments are computed, and a recipe that never reaches its
// cyclic branch still resolves.
type Warning struct {
	Path    []ir.FixtureKey `json:"path"`
	Message string          `json:"message"`
	Level   string          `json:"level"` // "warning" or "info"
}

// Report is the result of Analyze.
type Report struct {
	// Graph maps each declared key to the keys its expression depends on.
	Graph map[ir.FixtureKey][]ir.FixtureKey `json:"-"`

	// Cycles lists every strongly connected component of the graph that
	// forms a cycle, including self-dependencies.
	Cycles []Warning `json:"cycles"`

	// Undeclared lists dependencies on keys the manifest does not declare.
	// They may be registered elsewhere.
	Undeclared []Warning `json:"undeclared"`

	// Dynamic lists keys whose expressions call a dependency function with
	// computed arguments. Their edges are missing from Graph.
	Dynamic []ir.FixtureKey `json:"dynamic"`
}

// AnalyzeCycles returns the dependency cycles of m.
// A manifest without cycles returns an empty list.
func AnalyzeCycles(m *Manifest) ([]Warning, error) {
	r, err := Analyze(m)
	if err != nil {
		return nil, err
	}
	return r.Cycles, nil
}

// Analyze builds the static dependency graph of m and reports cycles,
// undeclared dependencies and dynamic calls.
//
// The algorithm:
//  1. Parse every expression and collect fixture, ref and refs calls whose
//     entity type and set name are string literals
//  2. Use Tarjan's algorithm to find strongly connected components
//  3. Report each SCC with size > 1 or a self-loop as a cycle
func Analyze(m *Manifest) (*Report, error) {
	r := &Report{
		Graph:      make(map[ir.FixtureKey][]ir.FixtureKey),
		Cycles:     []Warning{},
		Undeclared: []Warning{},
		Dynamic:    []ir.FixtureKey{},
	}

	declared := make(map[ir.FixtureKey]bool)
	for _, key := range m.Keys() {
		declared[key] = true
	}

	for _, entity := range m.EntityTypes() {
		for _, rc := range m.Entities[entity] {
			key := ir.Key(entity, rc.SetName)
			deps, dynamic, err := Dependencies(key, rc.Expression)
			if err != nil {
				return nil, err
			}
			if dynamic {
				r.Dynamic = append(r.Dynamic, key)
			}
			r.Graph[key] = deps
			for _, dep := range deps {
				if !declared[dep] {
					r.Undeclared = append(r.Undeclared, Warning{
						Path:    []ir.FixtureKey{key, dep},
						Message: fmt.Sprintf("%s depends on undeclared fixture %s", key, dep),
						Level:   "info",
					})
				}
			}
		}
	}

	for _, scc := range tarjanSCC(r.Graph) {
		if len(scc) > 1 || hasSelfLoop(scc[0], r.Graph) {
			path := reconstructCyclePath(scc, r.Graph)
			r.Cycles = append(r.Cycles, Warning{
				Path:    path,
				Message: "potential cycle: " + ir.FormatPath(path),
				Level:   "warning",
			})
		}
	}
	sort.Slice(r.Cycles, func(i, j int) bool {
		return less(r.Cycles[i].Path[0], r.Cycles[j].Path[0])
	})
	return r, nil
}

// Dependencies returns the keys that the expression of key names in
// dependency calls with literal arguments, in first-use order. dynamic
// reports whether some dependency call had computed arguments.
func Dependencies(key ir.FixtureKey, expr string) (deps []ir.FixtureKey, dynamic bool, err error) {
	t, err := engine.ParseExpression(key.String(), expr)
	if err != nil {
		return nil, false, ir.NewInvalidRecipeList(key.EntityType, "set %q: %v", key.SetName, err)
	}

	seen := make(map[ir.FixtureKey]bool)
	deps = []ir.FixtureKey{}
	var walk func(n parse.Node)
	walk = func(n parse.Node) {
		switch n := n.(type) {
		case *parse.ListNode:
			if n == nil {
				return
			}
			for _, c := range n.Nodes {
				walk(c)
			}
		case *parse.ActionNode:
			walk(n.Pipe)
		case *parse.PipeNode:
			if n == nil {
				return
			}
			for _, c := range n.Cmds {
				walk(c)
			}
		case *parse.CommandNode:
			if len(n.Args) == 0 {
				return
			}
			if id, ok := n.Args[0].(*parse.IdentifierNode); ok && isDependencyFunc(id.Ident) {
				if dep, ok := literalKey(n.Args[1:]); ok {
					if !seen[dep] {
						seen[dep] = true
						deps = append(deps, dep)
					}
				} else {
					dynamic = true
				}
			}
			for _, a := range n.Args {
				walk(a)
			}
		case *parse.ChainNode:
			walk(n.Node)
		case *parse.IfNode:
			walk(n.Pipe)
			walk(n.List)
			walk(n.ElseList)
		case *parse.RangeNode:
			walk(n.Pipe)
			walk(n.List)
			walk(n.ElseList)
		case *parse.WithNode:
			walk(n.Pipe)
			walk(n.List)
			walk(n.ElseList)
		case *parse.TemplateNode:
			walk(n.Pipe)
		}
	}

	templates := t.Templates()
	sort.Slice(templates, func(i, j int) bool { return templates[i].Name() < templates[j].Name() })
	for _, tt := range templates {
		if tt.Tree != nil {
			walk(tt.Tree.Root)
		}
	}
	return deps, dynamic, nil
}

func isDependencyFunc(name string) bool {
	return name == engine.FuncFixture || name == engine.FuncRef || name == engine.FuncRefs
}

func literalKey(args []parse.Node) (ir.FixtureKey, bool) {
	if len(args) < 2 {
		return ir.FixtureKey{}, false
	}
	entity, ok := args[0].(*parse.StringNode)
	if !ok {
		return ir.FixtureKey{}, false
	}
	set, ok := args[1].(*parse.StringNode)
	if !ok {
		return ir.FixtureKey{}, false
	}
	return ir.Key(entity.Text, set.Text), true
}

type dependencyGraph = map[ir.FixtureKey][]ir.FixtureKey

func less(a, b ir.FixtureKey) bool {
	if a.EntityType != b.EntityType {
		return a.EntityType < b.EntityType
	}
	return a.SetName < b.SetName
}

func hasSelfLoop(node ir.FixtureKey, graph dependencyGraph) bool {
	for _, neighbor := range graph[node] {
		if neighbor == node {
			return true
		}
	}
	return false
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
// Nodes are visited in sorted order so results are stable.
func tarjanSCC(graph dependencyGraph) [][]ir.FixtureKey {
	var (
		index   = 0
		stack   []ir.FixtureKey
		indices = make(map[ir.FixtureKey]int)
		lowlink = make(map[ir.FixtureKey]int)
		onStack = make(map[ir.FixtureKey]bool)
		sccs    [][]ir.FixtureKey
	)

	var strongConnect func(ir.FixtureKey)
	strongConnect = func(v ir.FixtureKey) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []ir.FixtureKey
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	nodes := make([]ir.FixtureKey, 0, len(graph))
	for node := range graph {
		nodes = append(nodes, node)
	}
	sort.Slice(nodes, func(i, j int) bool { return less(nodes[i], nodes[j]) })
	for _, node := range nodes {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}
	return sccs
}

// reconstructCyclePath returns the shortest cycle through the smallest
// key of the SCC, starting and ending at that key.
func reconstructCyclePath(scc []ir.FixtureKey, graph dependencyGraph) []ir.FixtureKey {
	members := make(map[ir.FixtureKey]bool, len(scc))
	start := scc[0]
	for _, node := range scc {
		members[node] = true
		if less(node, start) {
			start = node
		}
	}

	parent := map[ir.FixtureKey]ir.FixtureKey{}
	queue := []ir.FixtureKey{start}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, next := range graph[current] {
			if !members[next] {
				continue
			}
			if next == start {
				path := []ir.FixtureKey{start}
				for n := current; n != start; n = parent[n] {
					path = append(path, n)
				}
				path = append(path, start)
				// path is start, reversed interior, start
				for i, j := 1, len(path)-2; i < j; i, j = i+1, j-1 {
					path[i], path[j] = path[j], path[i]
				}
				return path
			}
			if _, seen := parent[next]; !seen {
				parent[next] = current
				queue = append(queue, next)
			}
		}
	}
	return []ir.FixtureKey{start}
}
