package planner

import (
	"errors"
	"testing"

	"github.com/sourceplane/liteflow/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func job(name string, deps ...string) *model.JobInstance {
	inst := &model.JobInstance{Name: name, Group: name}
	for _, d := range deps {
		inst.DependsOn = append(inst.DependsOn, model.Dependency{Job: d})
	}
	return inst
}

func matrixJob(group, name string, deps ...string) *model.JobInstance {
	inst := job(name, deps...)
	inst.Group = group
	return inst
}

func nodeNames(g *Graph, indices []int) []string {
	out := make([]string, len(indices))
	for i, idx := range indices {
		out[i] = g.Node(idx).Job.Name
	}
	return out
}

func TestBuild_GroupDependencies(t *testing.T) {
	g, err := Build([]*model.JobInstance{
		job("fmt"),
		matrixJob("test", "test(rust=nightly)", "fmt"),
		matrixJob("test", "test(rust=stable)", "fmt"),
		job("publish", "test"),
		job("notify", "test(rust=stable)"),
	})
	require.NoError(t, err)

	assert.Equal(t, 5, g.Len())
	assert.Equal(t, []string{"fmt"}, nodeNames(g, g.Roots()))

	publish, ok := g.Lookup("publish")
	require.True(t, ok)
	require.Len(t, publish.Predecessors, 2, "a group reference waits for every instance")
	assert.Equal(t, model.PolicySuccess, publish.Predecessors[0].Policy)

	notify, _ := g.Lookup("notify")
	require.Len(t, notify.Predecessors, 1, "an exact instance name wins over the group")
	assert.Equal(t, "test(rust=stable)", g.Node(notify.Predecessors[0].From).Job.Name)

	fmtNode, _ := g.Lookup("fmt")
	assert.Equal(t, []string{"test(rust=nightly)", "test(rust=stable)"}, nodeNames(g, fmtNode.Successors))
}

func TestBuild_DependencyPolicy(t *testing.T) {
	cleanup := job("cleanup")
	cleanup.DependsOn = []model.Dependency{{Job: "deploy", Requires: model.PolicyAlways}, {Job: "deploy"}}

	g, err := Build([]*model.JobInstance{job("deploy"), cleanup})
	require.NoError(t, err)

	node, _ := g.Lookup("cleanup")
	require.Len(t, node.Predecessors, 1, "duplicate edges collapse to the first")
	assert.Equal(t, model.PolicyAlways, node.Predecessors[0].Policy)
}

func TestBuild_UnresolvedDependency(t *testing.T) {
	_, err := Build([]*model.JobInstance{job("a", "ghost")})
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrUnresolvedDependency))
	assert.ErrorContains(t, err, `"ghost"`)
}

func TestBuild_Cycle(t *testing.T) {
	_, err := Build([]*model.JobInstance{
		job("root"),
		job("a", "root", "c"),
		job("b", "a"),
		job("c", "b"),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrDependencyCycle))

	var de *model.DefinitionError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, []string{"a", "c", "b", "a"}, de.Cycle)
}

func TestBuild_SelfDependency(t *testing.T) {
	_, err := Build([]*model.JobInstance{job("loop", "loop")})
	assert.True(t, errors.Is(err, model.ErrDependencyCycle))
}

func TestTopologicalSortAndLevels(t *testing.T) {
	g, err := Build([]*model.JobInstance{
		job("publish", "test", "lint"),
		job("test", "build"),
		job("lint"),
		job("build"),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"lint", "build", "test", "publish"}, nodeNames(g, g.TopologicalSort()))
	assert.Equal(t, []int{2, 1, 0, 0}, g.Levels())
}

func TestDependencyResolver(t *testing.T) {
	g, err := Build([]*model.JobInstance{
		job("fmt"),
		matrixJob("test", "test(rust=nightly)", "fmt"),
		matrixJob("test", "test(rust=stable)", "fmt"),
		job("docs"),
		job("publish", "test", "docs"),
	})
	require.NoError(t, err)
	dr := NewDependencyResolver(g)

	assert.Equal(t, []string{"fmt"}, dr.GetDependencies("test"))
	assert.Equal(t, []string{"publish"}, dr.GetDependents("test(rust=stable)"))
	assert.Equal(t, map[string]bool{
		"fmt": true, "test(rust=nightly)": true, "test(rust=stable)": true, "docs": true,
	}, dr.GetTransitiveDependencies("publish"))
	assert.Equal(t, map[string]bool{
		"test(rust=nightly)": true, "test(rust=stable)": true, "publish": true,
	}, dr.GetTransitiveDependents("fmt"))

	deps, depts := dr.CategorizeDependencies([]string{"test"})
	assert.Equal(t, []string{"fmt"}, deps)
	assert.Equal(t, []string{"publish"}, depts)

	sub, err := dr.Select([]string{"test(rust=stable)"})
	require.NoError(t, err)
	assert.Equal(t, []string{"fmt", "test(rust=stable)"}, nodeNames(sub, sub.TopologicalSort()))

	_, err = dr.Select([]string{"nope"})
	assert.ErrorContains(t, err, `unknown job "nope"`)
}
