package dag

import "slices"

// Adjacency maps a node ID to the ordered IDs of its direct successors.
type Adjacency map[string][]string

// BuildAdjacency serializes one Dag's nodes and edges into an adjacency mapping.
//
// Every node appears as a key, isolated nodes with an empty list. Successors
// keep edge order and are not repeated when parallel edges exist.
func BuildAdjacency(nodes []Node, edges []Edge) Adjacency {
	adj := make(Adjacency, len(nodes))
	for _, n := range nodes {
		adj[n.ID] = []string{}
	}
	for _, e := range edges {
		adj[e.FromNodeID] = appendUnique(adj[e.FromNodeID], e.ToNodeID)
	}
	return adj
}

// without returns a copy of edges minus the edge with the given ID.
func without(edges []Edge, edgeID string) []Edge {
	out := make([]Edge, 0, len(edges))
	for _, e := range edges {
		if e.ID != edgeID {
			out = append(out, e)
		}
	}
	return out
}

// IsAcyclic reports whether adj admits a topological ordering.
// Every key and every referenced successor is a vertex; a vertex listed as
// its own successor is a cycle.
func IsAcyclic(adj Adjacency) bool {
	_, err := TopologicalOrder(adj)
	return err == nil
}

// TopologicalOrder returns the vertices of adj so that every edge points from
// an earlier to a later position, using Kahn's algorithm. Ties are broken by
// ID so the order is deterministic. Returns ErrCycleDetected if no such order
// exists.
func TopologicalOrder(adj Adjacency) ([]string, error) {
	inDegree := make(map[string]int, len(adj))
	for v, succ := range adj {
		if _, ok := inDegree[v]; !ok {
			inDegree[v] = 0
		}
		for _, w := range succ {
			inDegree[w]++
		}
	}

	var ready []string
	for v, d := range inDegree {
		if d == 0 {
			ready = append(ready, v)
		}
	}
	slices.Sort(ready)

	order := make([]string, 0, len(inDegree))
	for len(ready) > 0 {
		v := ready[0]
		ready = ready[1:]
		order = append(order, v)

		var released []string
		for _, w := range adj[v] {
			inDegree[w]--
			if inDegree[w] == 0 {
				released = append(released, w)
			}
		}
		if len(released) > 0 {
			ready = append(ready, released...)
			slices.Sort(ready)
		}
	}

	if len(order) != len(inDegree) {
		return nil, ErrCycleDetected
	}
	return order, nil
}

// Reachable reports whether a directed path leads from one vertex to another
// in adj. A vertex always reaches itself.
func Reachable(adj Adjacency, from, to string) bool {
	if from == to {
		return true
	}

	visited := map[string]bool{from: true}
	stack := []string{from}
	for len(stack) > 0 {
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, next := range adj[v] {
			if next == to {
				return true
			}
			if !visited[next] {
				visited[next] = true
				stack = append(stack, next)
			}
		}
	}
	return false
}
