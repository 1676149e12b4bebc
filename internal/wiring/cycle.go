package wiring

import "github.com/roach88/circuit/internal/ir"

// checkCycles rejects the graph when any strongly connected component is a
// cycle: more than one block, or a single block wired to itself. Tombstoned
// producers never run and cannot close a cycle.
func (g *Graph) checkCycles() error {
	succ := make(map[ir.BlockID][]ir.BlockID, len(g.order))
	for _, id := range g.order {
		for _, e := range g.consumers[id] {
			succ[id] = append(succ[id], e.Consumer)
		}
	}

	for _, scc := range tarjanSCC(g.order, succ) {
		if len(scc) > 1 || hasSelfLoop(scc[0], succ) {
			return &CycleError{Path: cyclePath(scc, succ, g.order)}
		}
	}
	return nil
}

func hasSelfLoop(id ir.BlockID, succ map[ir.BlockID][]ir.BlockID) bool {
	for _, w := range succ[id] {
		if w == id {
			return true
		}
	}
	return false
}

// tarjanSCC finds strongly connected components. Nodes and successors are
// visited in slice order so the result is deterministic.
func tarjanSCC(nodes []ir.BlockID, succ map[ir.BlockID][]ir.BlockID) [][]ir.BlockID {
	var (
		index   = 0
		stack   []ir.BlockID
		indices = make(map[ir.BlockID]int)
		lowlink = make(map[ir.BlockID]int)
		onStack = make(map[ir.BlockID]bool)
		sccs    [][]ir.BlockID
	)

	var strongConnect func(ir.BlockID)
	strongConnect = func(v ir.BlockID) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range succ[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []ir.BlockID
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

	for _, n := range nodes {
		if _, visited := indices[n]; !visited {
			strongConnect(n)
		}
	}
	return sccs
}

// cyclePath returns a closed walk through the component starting at its
// earliest-created member.
func cyclePath(scc []ir.BlockID, succ map[ir.BlockID][]ir.BlockID, order []ir.BlockID) []ir.BlockID {
	member := make(map[ir.BlockID]bool, len(scc))
	for _, id := range scc {
		member[id] = true
	}
	var start ir.BlockID
	for _, id := range order {
		if member[id] {
			start = id
			break
		}
	}
	if len(scc) == 1 {
		return []ir.BlockID{start, start}
	}

	// Depth-first search back to start; one exists inside any SCC.
	visited := map[ir.BlockID]bool{}
	var path []ir.BlockID
	var dfs func(ir.BlockID) bool
	dfs = func(v ir.BlockID) bool {
		path = append(path, v)
		visited[v] = true
		for _, w := range succ[v] {
			if !member[w] {
				continue
			}
			if w == start {
				path = append(path, w)
				return true
			}
			if !visited[w] && dfs(w) {
				return true
			}
		}
		path = path[:len(path)-1]
		return false
	}
	dfs(start)
	return path
}
