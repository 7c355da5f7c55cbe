package trigger

import (
	"testing"

	"github.com/sourceplane/liteflow/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEvaluator(t *testing.T) *Evaluator {
	t.Helper()
	e, err := NewEvaluator()
	require.NoError(t, err)
	return e
}

func TestShouldRun(t *testing.T) {
	triggers := model.Triggers{
		Push: &model.Trigger{Branches: model.Filter{Include: []string{"master", "release-*"}, Exclude: []string{"release-old*"}}},
		PullRequest: &model.Trigger{
			Branches: model.Filter{Include: []string{"master"}},
			Paths:    model.Filter{Include: []string{"tokio/**", "*.toml"}, Exclude: []string{"tokio/docs/**"}},
		},
	}

	cases := []struct {
		name string
		inv  model.Invocation
		want bool
	}{
		{"push to master", model.Invocation{Event: model.EventPush, Branch: "master"}, true},
		{"push with full ref", model.Invocation{Event: model.EventPush, Branch: "refs/heads/master"}, true},
		{"push to feature branch", model.Invocation{Event: model.EventPush, Branch: "feature/x"}, false},
		{"push to release branch", model.Invocation{Event: model.EventPush, Branch: "release-1.2"}, true},
		{"push to excluded release", model.Invocation{Event: model.EventPush, Branch: "release-old-1"}, false},
		{"schedule uses trigger block", model.Invocation{Event: model.EventSchedule, Branch: "master"}, true},
		{"pr into master", model.Invocation{Event: model.EventPullRequest, Branch: "feature/x", TargetBranch: "master"}, true},
		{"pr into other branch", model.Invocation{Event: model.EventPullRequest, Branch: "master", TargetBranch: "v0.1.x"}, false},
		{"pr touching sources", model.Invocation{Event: model.EventPullRequest, TargetBranch: "master", ChangedFiles: []string{"tokio/src/lib.rs"}}, true},
		{"pr touching manifest", model.Invocation{Event: model.EventPullRequest, TargetBranch: "master", ChangedFiles: []string{"Cargo.toml"}}, true},
		{"pr touching only docs", model.Invocation{Event: model.EventPullRequest, TargetBranch: "master", ChangedFiles: []string{"tokio/docs/a.md", "README.md"}}, false},
		{"manual always runs", model.Invocation{Event: model.EventManual, Branch: "anything"}, true},
		{"unknown event", model.Invocation{Event: "tag", Branch: "master"}, false},
	}

	e := newEvaluator(t)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, reason := e.ShouldRun(triggers, tc.inv)
			assert.Equal(t, tc.want, got, reason)
			assert.NotEmpty(t, reason)
		})
	}
}

func TestShouldRun_NoBlocks(t *testing.T) {
	e := newEvaluator(t)
	ok, _ := e.ShouldRun(model.Triggers{}, model.Invocation{Event: model.EventPush, Branch: "any"})
	assert.True(t, ok)
	ok, _ = e.ShouldRun(model.Triggers{}, model.Invocation{Event: model.EventPullRequest, TargetBranch: "any"})
	assert.True(t, ok)
}

func TestIsIncluded(t *testing.T) {
	e := newEvaluator(t)
	job := &model.JobInstance{
		Name:       "tsan(rust=nightly)",
		Parameters: map[string]any{"rust": "nightly", "shards": 4},
	}
	inv := model.Invocation{
		Event:     model.EventPush,
		Branch:    "refs/heads/master",
		Variables: map[string]string{"deploy": "yes"},
	}

	cases := []struct {
		expr string
		want bool
	}{
		{``, true},
		{`event == "push" && branch == "master"`, true},
		{`event == "pull_request"`, false},
		{`parameters.rust == "nightly"`, true},
		{`parameters.shards > 2`, true},
		{`variables["deploy"] == "yes"`, true},
		{`"deploy" in variables && branch.startsWith("mas")`, true},
		{`size(changedFiles) > 0`, false},
	}
	for _, tc := range cases {
		t.Run(tc.expr, func(t *testing.T) {
			job := *job
			job.Condition = tc.expr
			got, err := e.IsIncluded(&job, inv)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestCompile(t *testing.T) {
	e := newEvaluator(t)

	assert.NoError(t, e.Compile(`branch == "master"`))
	assert.NoError(t, e.Compile(`parameters.tsan`))
	assert.ErrorContains(t, e.Compile(`branch ==`), "CEL compilation error")
	assert.ErrorContains(t, e.Compile(`branch`), "must evaluate to bool")
	assert.Error(t, e.Compile(`unknownVar == 1`))
}

func TestIsIncluded_NonBoolResult(t *testing.T) {
	e := newEvaluator(t)
	job := &model.JobInstance{Name: "x", Condition: `parameters.rust`, Parameters: map[string]any{"rust": "stable"}}
	_, err := e.IsIncluded(job, model.Invocation{Event: model.EventManual})
	assert.ErrorContains(t, err, "not bool")
}
