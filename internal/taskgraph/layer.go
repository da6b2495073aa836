package taskgraph

import (
	"fmt"
	"strings"

	mapset "github.com/deckarep/golang-set"
	"github.com/pyr-sh/dag"
	"github.com/shuntksh/openturbo/internal/workflow"
)

// Node is the minimal shape the layerer operates on: an identity plus a list
// of dependency IDs. workflow.TaskNode projects onto this shape through
// LayerTasks; no other adapter exists in this package.
type Node struct {
	ID   string
	Deps []string
}

// CycleError is returned by Layer when a round would emit an empty layer
// while work remains; it enumerates the IDs still stuck in the graph.
type CycleError struct {
	Remaining []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("Circular dependency detected among: %s", strings.Join(e.Remaining, ", "))
}

// Layer partitions nodes into an ordered list of layers: each layer holds
// the maximal set of remaining nodes whose dependencies (restricted to IDs
// present in the input) are all satisfied by earlier layers. Within a
// layer, order follows the input order. Edges whose target is absent from
// the input set are ignored.
func Layer(nodes []*Node) ([][]*Node, error) {
	graph := &dag.AcyclicGraph{}
	byID := make(map[string]*Node, len(nodes))
	for _, n := range nodes {
		graph.Add(n.ID)
		byID[n.ID] = n
	}
	for _, n := range nodes {
		for _, dep := range n.Deps {
			if _, ok := byID[dep]; !ok {
				continue
			}
			graph.Connect(dag.BasicEdge(n.ID, dep))
		}
	}

	// The library validates acyclicity over the real graph structure before
	// any layering is attempted; stuckIDs below only has to run the
	// dependency-reduction pass again to name the offending nodes for the
	// error, not to decide whether there's a cycle in the first place.
	if err := graph.Validate(); err != nil {
		return nil, &CycleError{Remaining: stuckIDs(nodes, byID)}
	}

	indegree := make(map[string]int, len(nodes))
	dependents := make(map[string][]string, len(nodes))
	for _, n := range nodes {
		count := 0
		for _, dep := range n.Deps {
			if _, ok := byID[dep]; !ok {
				continue
			}
			count++
			dependents[dep] = append(dependents[dep], n.ID)
		}
		indegree[n.ID] = count
	}

	remaining := mapset.NewSet()
	for _, n := range nodes {
		remaining.Add(n.ID)
	}

	var layers [][]*Node
	for remaining.Cardinality() > 0 {
		var layer []*Node
		for _, n := range nodes {
			if !remaining.Contains(n.ID) {
				continue
			}
			if indegree[n.ID] == 0 {
				layer = append(layer, n)
			}
		}
		if len(layer) == 0 {
			// Should be unreachable: graph.Validate() above already rejects
			// any cyclic input. Kept as a defensive backstop rather than a
			// silent infinite loop if that invariant is ever violated.
			return nil, &CycleError{Remaining: stuckIDs(nodes, byID)}
		}
		for _, n := range layer {
			remaining.Remove(n.ID)
			for _, dependent := range dependents[n.ID] {
				indegree[dependent]--
			}
		}
		layers = append(layers, layer)
	}

	return layers, nil
}

// stuckIDs runs the same dependency-reduction Kahn's algorithm performs,
// without building layers, and returns the IDs that never reach indegree
// zero — the cycle members plus every node that depends on them, named in
// CycleError.Remaining in no particular order.
func stuckIDs(nodes []*Node, byID map[string]*Node) []string {
	indegree := make(map[string]int, len(nodes))
	dependents := make(map[string][]string, len(nodes))
	for _, n := range nodes {
		count := 0
		for _, dep := range n.Deps {
			if _, ok := byID[dep]; !ok {
				continue
			}
			count++
			dependents[dep] = append(dependents[dep], n.ID)
		}
		indegree[n.ID] = count
	}

	remaining := mapset.NewSet()
	for _, n := range nodes {
		remaining.Add(n.ID)
	}
	for {
		var ready []string
		for _, n := range nodes {
			if remaining.Contains(n.ID) && indegree[n.ID] == 0 {
				ready = append(ready, n.ID)
			}
		}
		if len(ready) == 0 {
			break
		}
		for _, id := range ready {
			remaining.Remove(id)
			for _, dependent := range dependents[id] {
				indegree[dependent]--
			}
		}
	}

	stuck := make([]string, 0, remaining.Cardinality())
	for _, v := range remaining.ToSlice() {
		stuck = append(stuck, fmt.Sprintf("%v", v))
	}
	return stuck
}

// LayerTasks adapts TaskNodes to Node, layers them, and projects the result
// back to TaskNodes.
func LayerTasks(tasks []*workflow.TaskNode) ([][]*workflow.TaskNode, error) {
	byID := make(map[string]*workflow.TaskNode, len(tasks))
	nodes := make([]*Node, len(tasks))
	for i, t := range tasks {
		nodes[i] = &Node{ID: t.ID(), Deps: t.Dependencies}
		byID[t.ID()] = t
	}
	layers, err := Layer(nodes)
	if err != nil {
		return nil, err
	}
	result := make([][]*workflow.TaskNode, len(layers))
	for i, layer := range layers {
		tasks := make([]*workflow.TaskNode, len(layer))
		for j, n := range layer {
			tasks[j] = byID[n.ID]
		}
		result[i] = tasks
	}
	return result, nil
}
