package expand

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/sourceplane/liteflow/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSpec() *model.JobSpec {
	return &model.JobSpec{
		Name:     "test",
		Template: "crate-test",
		Parameters: map[string]model.Value{
			"crates": model.Sequence("tokio", "tokio-io"),
			"rust":   model.Sequence("stable", "nightly"),
			"os":     model.Scalar("linux"),
		},
		Platform:  "{{ .os }}",
		Timeout:   "20m",
		Env:       map[string]string{"TOOLCHAIN": "{{ .rust }}"},
		DependsOn: []model.Dependency{{Job: "fmt"}},
		Steps: []model.Step{
			{Name: "test", Run: "cargo +{{ .rust }} test -p {{ .crates }}", Timeout: "5m", Retry: 1},
			{Name: "report", Run: "echo {{ .Job }} in {{ .Group }}"},
		},
	}
}

func names(instances []*model.JobInstance) []string {
	out := make([]string, len(instances))
	for i, inst := range instances {
		out[i] = inst.Name
	}
	return out
}

func TestExpand_ScalarParametersYieldOneInstance(t *testing.T) {
	spec := &model.JobSpec{
		Name:       "fmt",
		Parameters: map[string]model.Value{"rust": model.Scalar("stable")},
		Steps:      []model.Step{{Name: "fmt", Run: "cargo +{{ .rust }} fmt"}},
	}

	instances, err := NewExpander().Expand(spec)
	require.NoError(t, err)
	require.Len(t, instances, 1)

	inst := instances[0]
	assert.Equal(t, "fmt", inst.Name)
	assert.Equal(t, "fmt", inst.Group)
	assert.Nil(t, inst.Coordinate)
	assert.Equal(t, "cargo +stable fmt", inst.Payload.Steps[0].Run)
}

func TestExpand_CartesianProduct(t *testing.T) {
	instances, err := NewExpander().Expand(testSpec())
	require.NoError(t, err)

	want := []string{
		"test(crates=tokio,rust=nightly)",
		"test(crates=tokio,rust=stable)",
		"test(crates=tokio-io,rust=nightly)",
		"test(crates=tokio-io,rust=stable)",
	}
	if diff := cmp.Diff(want, names(instances)); diff != "" {
		t.Errorf("instance names mismatch (-want +got):\n%s", diff)
	}

	first := instances[0]
	assert.Equal(t, map[string]string{"crates": "tokio", "rust": "nightly"}, first.Coordinate)
	assert.Equal(t, "linux", first.Parameters["os"])
	assert.Equal(t, "linux", first.Platform)
	assert.Equal(t, 20*time.Minute, first.Timeout)
	assert.Equal(t, "nightly", first.Payload.Env["TOOLCHAIN"])
	assert.Equal(t, []model.Dependency{{Job: "fmt"}}, first.DependsOn)

	wantSteps := []model.RenderedStep{
		{Name: "test", Run: "cargo +nightly test -p tokio", Timeout: 5 * time.Minute, Retry: 1},
		{Name: "report", Run: "echo test(crates=tokio,rust=nightly) in test"},
	}
	if diff := cmp.Diff(wantSteps, first.Payload.Steps); diff != "" {
		t.Errorf("rendered steps mismatch (-want +got):\n%s", diff)
	}
}

func TestExpand_MappingValues(t *testing.T) {
	spec := &model.JobSpec{
		Name: "cross",
		Parameters: map[string]model.Value{
			"target": model.Sequence(
				map[string]any{"os": "linux", "arch": "arm64"},
				map[string]any{"os": "darwin", "arch": "amd64"},
			),
		},
		Steps: []model.Step{{Name: "build", Run: "build {{ .target.os }}/{{ .target.arch }}"}},
	}

	instances, err := NewExpander().Expand(spec)
	require.NoError(t, err)
	assert.Equal(t, []string{
		`cross(target={"arch":"amd64","os":"darwin"})`,
		`cross(target={"arch":"arm64","os":"linux"})`,
	}, names(instances))
	assert.Equal(t, "build darwin/amd64", instances[0].Payload.Steps[0].Run)
}

func TestExpand_EmptyMatrix(t *testing.T) {
	spec := &model.JobSpec{
		Name:       "test",
		Parameters: map[string]model.Value{"crates": model.Sequence()},
	}
	_, err := NewExpander().Expand(spec)
	assert.True(t, errors.Is(err, model.ErrEmptyMatrix))
}

func TestExpand_DuplicateJobName(t *testing.T) {
	e := NewExpander()
	_, err := e.Expand(&model.JobSpec{Name: "build"})
	require.NoError(t, err)

	_, err = e.Expand(&model.JobSpec{Name: "build"})
	assert.True(t, errors.Is(err, model.ErrDuplicateJobName))

	_, err = NewExpander().Expand(&model.JobSpec{
		Name:       "dup",
		Parameters: map[string]model.Value{"v": model.Sequence("a", "a")},
	})
	assert.True(t, errors.Is(err, model.ErrDuplicateJobName))
}

func TestExpand_InvalidTemplate(t *testing.T) {
	spec := &model.JobSpec{
		Name:  "bad",
		Steps: []model.Step{{Name: "s", Run: "echo {{ .undefined }}"}},
	}
	_, err := NewExpander().Expand(spec)
	assert.True(t, errors.Is(err, model.ErrInvalidTemplate))
}

func TestExpand_InvalidTimeout(t *testing.T) {
	_, err := NewExpander().Expand(&model.JobSpec{Name: "slow", Timeout: "forever"})
	assert.True(t, errors.Is(err, model.ErrInvalidDeclaration))
}

func TestJobAnalyzer(t *testing.T) {
	e := NewExpander()
	tests, err := e.Expand(testSpec())
	require.NoError(t, err)
	fmtJob, err := e.Expand(&model.JobSpec{Name: "fmt"})
	require.NoError(t, err)

	ja := NewJobAnalyzer(append(fmtJob, tests...))
	groups := ja.ListAll()
	require.Len(t, groups, 2)
	assert.Equal(t, "fmt", groups[0].Name)
	assert.Equal(t, "test", groups[1].Name)

	group := ja.GetGroup("test")
	require.NotNil(t, group)
	assert.Equal(t, []string{"crates", "rust"}, group.Axes)
	assert.Equal(t, []string{"fmt"}, group.Dependencies)
	assert.Len(t, group.Instances, 4)
	assert.Nil(t, ja.GetGroup("missing"))
}
