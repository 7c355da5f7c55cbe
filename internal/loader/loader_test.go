package loader

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/sourceplane/liteflow/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

const library = `
apiVersion: liteflow.sourceplane.io/v1
kind: TemplateLibrary
metadata:
  name: rust
templates:
  - name: crate-test
    parameters:
      - name: crates
      - name: rust
        default: stable
    job:
      platform: linux
      steps:
        - name: test
          run: cargo +{{ .rust }} test -p {{ .crates }}
`

func TestLoadPipeline_WithIncludes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "ci", "rust.yaml"), library)
	writeFile(t, filepath.Join(dir, "pipeline.yaml"), `
apiVersion: liteflow.sourceplane.io/v1
kind: Pipeline
metadata:
  name: tokio
include:
  - ci/*.yaml
jobs:
  - name: test
    template: crate-test
    parameters:
      crates: [tokio, tokio-io]
      rust:
        - stable
        - nightly
    dependsOn:
      - fmt
      - job: lint
        requires: always
  - name: fmt
    steps:
      - name: fmt
        run: cargo fmt --check
  - name: lint
    steps:
      - name: clippy
        run: cargo clippy
`)

	l, err := New()
	require.NoError(t, err)

	p, err := l.LoadPipeline(filepath.Join(dir, "pipeline.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "tokio", p.Metadata.Name)
	require.Len(t, p.Templates, 1)
	tmpl := p.Templates[0]
	assert.Equal(t, "crate-test", tmpl.Name)
	assert.Equal(t, filepath.Join(dir, "ci", "rust.yaml"), tmpl.Source)
	require.Len(t, tmpl.Parameters, 2)
	assert.True(t, tmpl.Parameters[0].Required())
	assert.False(t, tmpl.Parameters[1].Required())
	assert.Equal(t, "stable", tmpl.Parameters[1].Default.Raw())

	require.Len(t, p.Jobs, 3)
	job := p.Jobs[0]
	assert.True(t, job.IsTemplateRef())
	assert.True(t, job.Parameters["crates"].IsSequence())
	assert.Equal(t, []any{"stable", "nightly"}, job.Parameters["rust"].Raw())
	assert.Equal(t, []model.Dependency{
		{Job: "fmt"},
		{Job: "lint", Requires: model.PolicyAlways},
	}, job.DependsOn)
	assert.Equal(t, model.PolicySuccess, job.DependsOn[0].Policy())
}

func TestLoadPipeline_SchemaViolation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pipeline.yaml")
	writeFile(t, path, `
jobs:
  - name: a
`)

	l, err := New()
	require.NoError(t, err)

	_, err = l.LoadPipeline(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrInvalidDeclaration))
	assert.True(t, model.IsDefinitionError(err))
}

func TestLoadTemplates(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.yaml"), library)
	writeFile(t, filepath.Join(dir, "nested", "b.yml"), `
kind: TemplateLibrary
templates:
  - name: tsan
    template: crate-test
    with:
      rust: nightly
`)
	writeFile(t, filepath.Join(dir, "README.md"), "not a library")

	l, err := New()
	require.NoError(t, err)

	t.Run("exact directory is not recursive", func(t *testing.T) {
		templates, err := l.LoadTemplates(dir)
		require.NoError(t, err)
		require.Len(t, templates, 1)
		assert.Equal(t, "crate-test", templates[0].Name)
	})

	t.Run("glob walks matched directories", func(t *testing.T) {
		templates, err := l.LoadTemplates(filepath.Join(dir, "**"))
		require.NoError(t, err)
		names := []string{}
		for _, tmpl := range templates {
			names = append(names, tmpl.Name)
		}
		assert.ElementsMatch(t, []string{"crate-test", "tsan"}, names)
	})

	t.Run("single file", func(t *testing.T) {
		templates, err := l.LoadTemplates(filepath.Join(dir, "nested", "b.yml"))
		require.NoError(t, err)
		require.Len(t, templates, 1)
		assert.Equal(t, "nightly", templates[0].With["rust"].Raw())
	})

	t.Run("glob matching nothing", func(t *testing.T) {
		_, err := l.LoadTemplates(filepath.Join(dir, "missing-*"))
		assert.ErrorContains(t, err, "matched nothing")
	})
}
