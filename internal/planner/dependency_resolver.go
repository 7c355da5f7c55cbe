package planner

import (
	"fmt"
	"sort"

	"github.com/sourceplane/liteflow/internal/model"
)

// DependencyResolver answers dependency questions over a built graph
type DependencyResolver struct {
	graph *Graph
}

// NewDependencyResolver creates a new dependency resolver
func NewDependencyResolver(graph *Graph) *DependencyResolver {
	return &DependencyResolver{graph: graph}
}

// GetDependencies returns the direct predecessors of a job or job group
func (dr *DependencyResolver) GetDependencies(name string) []string {
	set := make(map[int]bool)
	for _, i := range dr.graph.Resolve(name) {
		for _, edge := range dr.graph.Node(i).Predecessors {
			set[edge.From] = true
		}
	}
	return dr.names(set)
}

// GetDependents returns the jobs that directly depend on a job or job group
func (dr *DependencyResolver) GetDependents(name string) []string {
	set := make(map[int]bool)
	for _, i := range dr.graph.Resolve(name) {
		for _, succ := range dr.graph.Node(i).Successors {
			set[succ] = true
		}
	}
	return dr.names(set)
}

// GetTransitiveDependencies returns every job a job or job group waits on
func (dr *DependencyResolver) GetTransitiveDependencies(name string) map[string]bool {
	return dr.walk(dr.graph.Resolve(name), func(n *Node) []int {
		preds := make([]int, len(n.Predecessors))
		for i, edge := range n.Predecessors {
			preds[i] = edge.From
		}
		return preds
	})
}

// GetTransitiveDependents returns every job that transitively waits on a job or job group
func (dr *DependencyResolver) GetTransitiveDependents(name string) map[string]bool {
	return dr.walk(dr.graph.Resolve(name), func(n *Node) []int {
		return n.Successors
	})
}

func (dr *DependencyResolver) walk(start []int, next func(*Node) []int) map[string]bool {
	result := make(map[string]bool)
	visited := make(map[int]bool)

	var traverse func(int)
	traverse = func(i int) {
		if visited[i] {
			return
		}
		visited[i] = true

		for _, n := range next(dr.graph.Node(i)) {
			result[dr.graph.Node(n).Job.Name] = true
			traverse(n)
		}
	}

	for _, i := range start {
		traverse(i)
	}
	return result
}

// ResolveJobSet takes a set of target jobs or groups and returns the names of
// all their instances plus everything they transitively depend on
func (dr *DependencyResolver) ResolveJobSet(targets []string) (map[string]bool, error) {
	included := make(map[string]bool)
	for _, target := range targets {
		indices := dr.graph.Resolve(target)
		if len(indices) == 0 {
			return nil, fmt.Errorf("unknown job %q", target)
		}
		for _, i := range indices {
			included[dr.graph.Node(i).Job.Name] = true
		}
		for dep := range dr.GetTransitiveDependencies(target) {
			included[dep] = true
		}
	}
	return included, nil
}

// CategorizeDependencies splits the neighbourhood of the given jobs into
// their transitive dependencies and transitive dependents
func (dr *DependencyResolver) CategorizeDependencies(names []string) (dependencies, dependents []string) {
	own := make(map[string]bool)
	for _, name := range names {
		for _, i := range dr.graph.Resolve(name) {
			own[dr.graph.Node(i).Job.Name] = true
		}
	}

	deps := make(map[string]bool)
	depts := make(map[string]bool)
	for _, name := range names {
		for dep := range dr.GetTransitiveDependencies(name) {
			if !own[dep] {
				deps[dep] = true
			}
		}
		for dept := range dr.GetTransitiveDependents(name) {
			if !own[dept] {
				depts[dept] = true
			}
		}
	}
	return sortedKeys(deps), sortedKeys(depts)
}

// Select returns the sub-graph holding the targets and their transitive
// predecessors. Edges to jobs outside the selection cannot exist because
// every predecessor of a selected job is itself selected.
func (dr *DependencyResolver) Select(targets []string) (*Graph, error) {
	included, err := dr.ResolveJobSet(targets)
	if err != nil {
		return nil, err
	}

	instances := make([]*model.JobInstance, 0, len(included))
	for _, inst := range dr.graph.Instances() {
		if included[inst.Name] {
			instances = append(instances, inst)
		}
	}
	return Build(instances)
}

func (dr *DependencyResolver) names(set map[int]bool) []string {
	out := make([]string, 0, len(set))
	for i := range dr.graph.nodes {
		if set[i] {
			out = append(out, dr.graph.Node(i).Job.Name)
		}
	}
	return out
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
