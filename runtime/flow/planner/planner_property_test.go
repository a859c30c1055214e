package planner

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"goa.design/flowrun/runtime/flow/workflow"
)

// dagSpec describes a randomly generated DAG: n nodes and a set of forward
// edges (i -> j with i < j), which is acyclic by construction.
type dagSpec struct {
	n     int
	edges [][2]int
}

func (s dagSpec) workflow() *workflow.Workflow {
	nodes := make([]workflow.Node, s.n)
	for i := range nodes {
		nodes[i] = node(fmt.Sprintf("n%d", i))
	}
	edges := make([]workflow.Edge, len(s.edges))
	for i, e := range s.edges {
		edges[i] = edge(fmt.Sprintf("n%d", e[0]), fmt.Sprintf("n%d", e[1]))
	}
	return wf(nodes, edges)
}

func genDAG() gopter.Gen {
	return gen.IntRange(1, 12).FlatMap(func(v any) gopter.Gen {
		n := v.(int)
		return gen.SliceOf(genForwardEdge(n)).Map(func(edges [][2]int) dagSpec {
			return dagSpec{n: n, edges: edges}
		})
	}, reflect.TypeOf(dagSpec{}))
}

func genForwardEdge(n int) gopter.Gen {
	return gen.IntRange(0, n*n-1).Map(func(k int) [2]int {
		i, j := k/n, k%n
		if i == j {
			j = (j + 1) % n
		}
		if i > j {
			i, j = j, i
		}
		return [2]int{i, j}
	}).SuchThat(func(e [2]int) bool { return e[0] != e[1] })
}

// TestPlanPartitionIsTopological verifies that for every generated DAG the
// plan covers all nodes exactly once and places every edge's source in a
// strictly earlier level than its target.
func TestPlanPartitionIsTopological(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("levels form a topological partition", prop.ForAll(
		func(spec dagSpec) bool {
			w := spec.workflow()
			levels, err := Plan(w)
			if err != nil {
				return false
			}
			levelOf := make(map[string]int)
			for i, lvl := range levels {
				if len(lvl) == 0 {
					return false
				}
				for _, id := range lvl {
					if _, dup := levelOf[id]; dup {
						return false
					}
					levelOf[id] = i
				}
			}
			if len(levelOf) != len(w.Nodes) {
				return false
			}
			for _, e := range w.Edges {
				if levelOf[e.Source] >= levelOf[e.Target] {
					return false
				}
			}
			return true
		},
		genDAG(),
	))

	properties.Property("plan is deterministic", prop.ForAll(
		func(spec dagSpec) bool {
			w := spec.workflow()
			first, err := Plan(w)
			if err != nil {
				return false
			}
			for range 4 {
				again, err := Plan(w)
				if err != nil {
					return false
				}
				if len(again) != len(first) {
					return false
				}
				for i := range first {
					if len(first[i]) != len(again[i]) {
						return false
					}
					for j := range first[i] {
						if first[i][j] != again[i][j] {
							return false
						}
					}
				}
			}
			return true
		},
		genDAG(),
	))

	properties.TestingRun(t)
}
