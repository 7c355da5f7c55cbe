package normalize

import (
	"errors"
	"testing"

	"github.com/sourceplane/liteflow/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func step() []model.Step {
	return []model.Step{{Name: "s", Run: "true"}}
}

func TestNormalizePipeline(t *testing.T) {
	in := &model.Pipeline{
		Trigger: &model.Trigger{Branches: model.Filter{Include: []string{"refs/heads/master", " release/* "}}},
		Jobs: []model.JobEntry{
			{Name: " build ", Steps: step()},
			{Template: "crate-test", DependsOn: []model.Dependency{{Job: "build"}, {Job: "build", Requires: model.PolicyAlways}}},
		},
	}

	out, err := NormalizePipeline(in)
	require.NoError(t, err)

	assert.Equal(t, DefaultPipelineName, out.Metadata.Name)
	assert.Equal(t, []string{"master", "release/*"}, out.Trigger.Branches.Include)
	assert.Equal(t, "build", out.Jobs[0].Name)
	assert.NotNil(t, out.Jobs[0].Env)
	assert.NotNil(t, out.Jobs[0].Parameters)
	assert.Equal(t, "crate-test", out.Jobs[1].Name, "template reference names the job by default")
	assert.Equal(t, model.PolicySuccess, out.Jobs[1].DependsOn[0].Requires)
	assert.Equal(t, model.PolicyAlways, out.Jobs[1].DependsOn[1].Requires)

	assert.Equal(t, " build ", in.Jobs[0].Name, "input is left untouched")
	assert.Equal(t, "refs/heads/master", in.Trigger.Branches.Include[0])
}

func TestNormalizePipeline_Errors(t *testing.T) {
	cases := []struct {
		name     string
		pipeline *model.Pipeline
		kind     error
	}{
		{
			name:     "duplicate job",
			pipeline: &model.Pipeline{Jobs: []model.JobEntry{{Name: "a", Steps: step()}, {Name: "a", Steps: step()}}},
			kind:     model.ErrDuplicateJobName,
		},
		{
			name:     "missing name",
			pipeline: &model.Pipeline{Jobs: []model.JobEntry{{Steps: step()}}},
			kind:     model.ErrInvalidDeclaration,
		},
		{
			name:     "steps and template",
			pipeline: &model.Pipeline{Jobs: []model.JobEntry{{Name: "a", Template: "t", Steps: step()}}},
			kind:     model.ErrInvalidDeclaration,
		},
		{
			name: "unknown policy",
			pipeline: &model.Pipeline{Jobs: []model.JobEntry{
				{Name: "a", Steps: step(), DependsOn: []model.Dependency{{Job: "b", Requires: "maybe"}}},
			}},
			kind: model.ErrInvalidDeclaration,
		},
		{
			name: "template without body",
			pipeline: &model.Pipeline{
				Templates: []model.Template{{Name: "t"}},
				Jobs:      []model.JobEntry{{Name: "a", Steps: step()}},
			},
			kind: model.ErrInvalidDeclaration,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NormalizePipeline(tc.pipeline)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.kind), "got %v", err)
		})
	}
}
