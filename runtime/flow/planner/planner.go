// Package planner validates a workflow graph and partitions its nodes into
// execution levels. A level is a set of mutually independent nodes: every
// predecessor of a node in level i lies in a level strictly before i. Levels
// run sequentially; nodes within a level run in parallel.
package planner

import (
	"fmt"
	"sort"
	"strings"

	"goa.design/flowrun/runtime/flow/workflow"
)

// CycleError reports that the workflow graph is not a DAG. It is fatal to the
// execution and never retried.
type CycleError struct {
	// Remaining lists the node IDs that could not be scheduled, sorted.
	Remaining []string
}

// Error implements error.
func (e *CycleError) Error() string {
	return fmt.Sprintf("cycle detected in workflow graph involving nodes [%s]", strings.Join(e.Remaining, ", "))
}

// Plan validates the workflow and computes its execution levels using Kahn's
// algorithm: level 0 holds the nodes with no incoming edges; each subsequent
// level holds the nodes whose last predecessor completed in the previous
// level. Node order within a level follows workflow declaration order, so the
// plan is deterministic for a given workflow.
//
// An empty workflow plans to zero levels. Parallel edges each count toward
// in-degree but do not change the partition. A self-loop (or any cycle)
// yields *CycleError; structural defects yield *workflow.ValidationError.
func Plan(w *workflow.Workflow) ([][]string, error) {
	if err := workflow.Validate(w); err != nil {
		return nil, err
	}

	inDegree := make(map[string]int, len(w.Nodes))
	successors := make(map[string][]string, len(w.Nodes))
	for _, n := range w.Nodes {
		inDegree[n.ID] = 0
	}
	for _, e := range w.Edges {
		inDegree[e.Target]++
		successors[e.Source] = append(successors[e.Source], e.Target)
	}

	var levels [][]string
	scheduled := 0
	// Iterate workflow.Nodes rather than the degree map so level membership
	// order is stable across runs.
	current := make([]string, 0, len(w.Nodes))
	for _, n := range w.Nodes {
		if inDegree[n.ID] == 0 {
			current = append(current, n.ID)
		}
	}
	for len(current) > 0 {
		levels = append(levels, current)
		scheduled += len(current)

		ready := make(map[string]struct{})
		for _, id := range current {
			for _, succ := range successors[id] {
				inDegree[succ]--
				if inDegree[succ] == 0 {
					ready[succ] = struct{}{}
				}
			}
		}
		next := make([]string, 0, len(ready))
		for _, n := range w.Nodes {
			if _, ok := ready[n.ID]; ok {
				next = append(next, n.ID)
			}
		}
		current = next
	}

	if scheduled < len(w.Nodes) {
		remaining := make([]string, 0, len(w.Nodes)-scheduled)
		for _, n := range w.Nodes {
			if inDegree[n.ID] > 0 {
				remaining = append(remaining, n.ID)
			}
		}
		sort.Strings(remaining)
		return nil, &CycleError{Remaining: remaining}
	}
	return levels, nil
}

// Flatten concatenates the levels into a single ordered node ID slice.
func Flatten(levels [][]string) []string {
	var out []string
	for _, lvl := range levels {
		out = append(out, lvl...)
	}
	return out
}
