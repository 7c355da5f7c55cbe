package planner

import (
	"sort"

	"github.com/sourceplane/liteflow/internal/model"
)

// Edge is an incoming dependency edge
type Edge struct {
	From   int
	Policy model.DependencyPolicy
}

// Node is one job instance in the graph
type Node struct {
	Index        int
	Job          *model.JobInstance
	Predecessors []Edge
	Successors   []int
}

// Graph is the DAG of job instances. Nodes keep the order in which their
// jobs were declared; edges point from a job to the jobs waiting on it.
type Graph struct {
	nodes  []*Node
	index  map[string]int
	groups map[string][]int
}

// Build links instances by their dependsOn references and rejects cycles.
// A reference resolves to the instance with that exact name, otherwise to
// every instance of the job group with that name.
func Build(instances []*model.JobInstance) (*Graph, error) {
	g := &Graph{
		nodes:  make([]*Node, len(instances)),
		index:  make(map[string]int, len(instances)),
		groups: make(map[string][]int),
	}

	for i, inst := range instances {
		if _, exists := g.index[inst.Name]; exists {
			return nil, model.NewDefinitionError(model.ErrDuplicateJobName, inst.Name, "job declared twice")
		}
		g.nodes[i] = &Node{Index: i, Job: inst}
		g.index[inst.Name] = i
		g.groups[inst.Group] = append(g.groups[inst.Group], i)
	}

	for _, node := range g.nodes {
		linked := make(map[int]bool)
		for _, dep := range node.Job.DependsOn {
			targets := g.Resolve(dep.Job)
			if len(targets) == 0 {
				return nil, model.NewDefinitionError(model.ErrUnresolvedDependency, node.Job.Name,
					"depends on %q which matches no job or job group", dep.Job)
			}
			for _, from := range targets {
				if linked[from] {
					continue
				}
				linked[from] = true
				node.Predecessors = append(node.Predecessors, Edge{From: from, Policy: dep.Policy()})
				g.nodes[from].Successors = append(g.nodes[from].Successors, node.Index)
			}
		}
	}

	if cycle := g.findCycle(); cycle != nil {
		err := model.NewDefinitionError(model.ErrDependencyCycle, cycle[0], "jobs depend on each other")
		err.Cycle = cycle
		return nil, err
	}

	return g, nil
}

// Resolve returns the node indices a dependency name refers to
func (g *Graph) Resolve(name string) []int {
	if i, ok := g.index[name]; ok {
		return []int{i}
	}
	return g.groups[name]
}

// Len returns the number of nodes
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Nodes returns all nodes in declaration order
func (g *Graph) Nodes() []*Node {
	return g.nodes
}

// Node returns the node at index i
func (g *Graph) Node(i int) *Node {
	return g.nodes[i]
}

// Lookup finds a node by instance name
func (g *Graph) Lookup(name string) (*Node, bool) {
	i, ok := g.index[name]
	if !ok {
		return nil, false
	}
	return g.nodes[i], true
}

// Instances returns the job instances in declaration order
func (g *Graph) Instances() []*model.JobInstance {
	out := make([]*model.JobInstance, len(g.nodes))
	for i, node := range g.nodes {
		out[i] = node.Job
	}
	return out
}

// Roots returns the nodes without predecessors
func (g *Graph) Roots() []int {
	roots := make([]int, 0)
	for _, node := range g.nodes {
		if len(node.Predecessors) == 0 {
			roots = append(roots, node.Index)
		}
	}
	return roots
}

// findCycle performs DFS cycle detection along dependsOn edges and returns
// the participating job names, first name repeated at the end
func (g *Graph) findCycle() []string {
	const (
		unvisited = iota
		onStack
		done
	)
	state := make([]int, len(g.nodes))
	stack := make([]int, 0)

	var visit func(int) []string
	visit = func(i int) []string {
		state[i] = onStack
		stack = append(stack, i)

		for _, edge := range g.nodes[i].Predecessors {
			switch state[edge.From] {
			case unvisited:
				if cycle := visit(edge.From); cycle != nil {
					return cycle
				}
			case onStack:
				start := 0
				for pos, n := range stack {
					if n == edge.From {
						start = pos
						break
					}
				}
				cycle := make([]string, 0, len(stack)-start+1)
				for _, n := range stack[start:] {
					cycle = append(cycle, g.nodes[n].Job.Name)
				}
				return append(cycle, g.nodes[edge.From].Job.Name)
			}
		}

		stack = stack[:len(stack)-1]
		state[i] = done
		return nil
	}

	for i := range g.nodes {
		if state[i] == unvisited {
			if cycle := visit(i); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}

// TopologicalSort orders nodes with Kahn's algorithm. Among nodes that are
// ready at the same time, the one declared first comes first.
func (g *Graph) TopologicalSort() []int {
	inDegree := make([]int, len(g.nodes))
	for _, node := range g.nodes {
		inDegree[node.Index] = len(node.Predecessors)
	}

	queue := g.Roots()
	sorted := make([]int, 0, len(g.nodes))
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		sorted = append(sorted, current)

		for _, succ := range g.nodes[current].Successors {
			inDegree[succ]--
			if inDegree[succ] == 0 {
				pos := sort.SearchInts(queue, succ)
				queue = append(queue, 0)
				copy(queue[pos+1:], queue[pos:])
				queue[pos] = succ
			}
		}
	}

	return sorted
}

// Levels assigns every node its stage: roots are stage 0 and every other
// node sits one stage after its latest predecessor
func (g *Graph) Levels() []int {
	levels := make([]int, len(g.nodes))
	for _, i := range g.TopologicalSort() {
		for _, edge := range g.nodes[i].Predecessors {
			if levels[edge.From]+1 > levels[i] {
				levels[i] = levels[edge.From] + 1
			}
		}
	}
	return levels
}
