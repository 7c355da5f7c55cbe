package template

import (
	"errors"
	"testing"

	"github.com/sourceplane/liteflow/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultOf(v any) *model.Value {
	val := model.ValueOf(v)
	return &val
}

func crateTest() model.Template {
	return model.Template{
		Name: "crate-test",
		Parameters: []model.ParameterSpec{
			{Name: "crates"},
			{Name: "rust", Default: defaultOf("stable")},
		},
		Job: &model.JobBody{
			Platform: "linux",
			Timeout:  "30m",
			Env:      map[string]string{"RUSTFLAGS": "-Dwarnings"},
			Steps: []model.Step{
				{Name: "test", Run: "cargo +{{ .rust }} test -p {{ .crates }}"},
			},
		},
	}
}

func newResolver(t *testing.T, templates ...model.Template) *Resolver {
	t.Helper()
	r, err := NewResolver(templates, 0)
	require.NoError(t, err)
	return r
}

func TestResolve_LiteralBody(t *testing.T) {
	r := newResolver(t, crateTest())

	spec, err := r.Resolve("crate-test", map[string]model.Value{
		"crates": model.Sequence("tokio", "tokio-io"),
	})
	require.NoError(t, err)

	assert.Equal(t, "crate-test", spec.Template)
	assert.Equal(t, "linux", spec.Platform)
	assert.Equal(t, "30m", spec.Timeout)
	assert.Equal(t, "-Dwarnings", spec.Env["RUSTFLAGS"])
	require.Len(t, spec.Steps, 1)
	assert.Equal(t, model.Sequence("tokio", "tokio-io"), spec.Parameters["crates"])
	assert.Equal(t, model.Scalar("stable"), spec.Parameters["rust"], "default applied")

	spec.Env["RUSTFLAGS"] = "changed"
	again, err := r.Resolve("crate-test", map[string]model.Value{"crates": model.Scalar("tokio")})
	require.NoError(t, err)
	assert.Equal(t, "-Dwarnings", again.Env["RUSTFLAGS"], "resolution must not share state")
}

func TestResolve_MissingParameter(t *testing.T) {
	r := newResolver(t, crateTest())

	_, err := r.Resolve("crate-test", map[string]model.Value{"rust": model.Scalar("nightly")})
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrMissingParameter))

	var de *model.DefinitionError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "crate-test", de.Subject)
	assert.Contains(t, de.Detail, `"crates"`)
}

func TestResolve_UnknownParameter(t *testing.T) {
	r := newResolver(t, crateTest())

	_, err := r.Resolve("crate-test", map[string]model.Value{
		"crates": model.Scalar("tokio"),
		"os":     model.Scalar("linux"),
	})
	assert.True(t, errors.Is(err, model.ErrUnknownParameter))
	assert.ErrorContains(t, err, `"os"`)
}

func TestResolve_UnknownTemplate(t *testing.T) {
	r := newResolver(t, crateTest(), model.Template{Name: "outer", Template: "missing"})

	_, err := r.Resolve("nope", nil)
	assert.True(t, errors.Is(err, model.ErrUnknownTemplate))

	_, err = r.Resolve("outer", nil)
	assert.True(t, errors.Is(err, model.ErrUnknownTemplate))
	assert.ErrorContains(t, err, `referenced from template "outer"`)
}

func TestResolve_NestedForwarding(t *testing.T) {
	tsan := model.Template{
		Name:       "tsan",
		Parameters: []model.ParameterSpec{{Name: "crates"}, {Name: "suffix", Default: defaultOf("fast")}},
		Template:   "crate-test",
		With: map[string]model.Value{
			"crates": model.Scalar("{{ .crates }}"),
			"rust":   model.Scalar("nightly-{{ .suffix }}"),
		},
	}
	r := newResolver(t, crateTest(), tsan)

	spec, err := r.Resolve("tsan", map[string]model.Value{
		"crates": model.Sequence("tokio", "tokio-net"),
	})
	require.NoError(t, err)

	assert.Equal(t, "crate-test", spec.Template, "innermost template supplies the body")
	assert.Equal(t, model.Sequence("tokio", "tokio-net"), spec.Parameters["crates"], "sequence forwarded intact")
	assert.Equal(t, model.Scalar("nightly-fast"), spec.Parameters["rust"])
}

func TestResolve_ForwardUndeclared(t *testing.T) {
	bad := model.Template{
		Name:     "bad",
		Template: "crate-test",
		With:     map[string]model.Value{"crates": model.Scalar("{{ .nothing }}")},
	}
	r := newResolver(t, crateTest(), bad)

	_, err := r.Resolve("bad", nil)
	assert.True(t, errors.Is(err, model.ErrInvalidTemplate))
}

func TestResolve_RecursionLimit(t *testing.T) {
	loop := model.Template{Name: "loop", Template: "loop"}
	r, err := NewResolver([]model.Template{loop}, 3)
	require.NoError(t, err)

	_, err = r.Resolve("loop", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrTemplateRecursionLimit))
	assert.ErrorContains(t, err, "loop -> loop -> loop -> loop")
}

func TestNewResolver_DuplicateTemplate(t *testing.T) {
	a := crateTest()
	a.Source = "a.yaml"
	b := crateTest()
	b.Source = "b.yaml"

	_, err := NewResolver([]model.Template{a, b}, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrDuplicateTemplate))
	assert.ErrorContains(t, err, "a.yaml and b.yaml")
}

func TestResolver_Names(t *testing.T) {
	r := newResolver(t, model.Template{Name: "zeta", Template: "alpha"}, model.Template{Name: "alpha", Template: "zeta"})
	assert.Equal(t, []string{"alpha", "zeta"}, r.Names())

	tmpl, ok := r.Lookup("zeta")
	require.True(t, ok)
	assert.Equal(t, "alpha", tmpl.Template)
}

func TestRenderer(t *testing.T) {
	r := NewRenderer()

	out, err := r.Render("step", "cargo test -p {{ .crate }}", map[string]any{"crate": "tokio"})
	require.NoError(t, err)
	assert.Equal(t, "cargo test -p tokio", out)

	out, err = r.Render("step", "plain text", nil)
	require.NoError(t, err)
	assert.Equal(t, "plain text", out)

	_, err = r.Render("step", "{{ .missing }}", map[string]any{})
	assert.Error(t, err)

	_, err = r.Render("step", "{{ .broken", nil)
	assert.ErrorContains(t, err, "invalid template in step")
}
