package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sourceplane/liteflow/internal/model"
	"github.com/sourceplane/liteflow/internal/schema"
	"gopkg.in/yaml.v3"
)

// Loader reads and validates declaration documents
type Loader struct {
	validator *schema.Validator
}

// New creates a loader with the embedded declaration schemas
func New() (*Loader, error) {
	v, err := schema.NewValidator()
	if err != nil {
		return nil, err
	}
	return &Loader{validator: v}, nil
}

// LoadPipeline loads and parses a pipeline YAML file. Template libraries
// named by its include list are loaded relative to the pipeline file and
// appended to the pipeline's templates.
func (l *Loader) LoadPipeline(path string) (*model.Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pipeline file: %w", err)
	}

	pipeline, err := l.ParsePipeline(data, path)
	if err != nil {
		return nil, err
	}

	baseDir := filepath.Dir(path)
	for _, pattern := range pipeline.Include {
		if !filepath.IsAbs(pattern) {
			pattern = filepath.Join(baseDir, pattern)
		}
		templates, err := l.LoadTemplates(pattern)
		if err != nil {
			return nil, fmt.Errorf("failed to load include %s: %w", pattern, err)
		}
		pipeline.Templates = append(pipeline.Templates, templates...)
	}

	return pipeline, nil
}

// ParsePipeline validates and decodes pipeline bytes; source names the
// document in error messages.
func (l *Loader) ParsePipeline(data []byte, source string) (*model.Pipeline, error) {
	if err := l.validator.ValidatePipeline(data); err != nil {
		return nil, model.NewDefinitionError(model.ErrInvalidDeclaration, source, "%v", err)
	}

	var pipeline model.Pipeline
	if err := yaml.Unmarshal(data, &pipeline); err != nil {
		return nil, model.NewDefinitionError(model.ErrInvalidDeclaration, source, "failed to parse pipeline YAML: %v", err)
	}

	for i := range pipeline.Templates {
		pipeline.Templates[i].Source = source
	}
	return &pipeline, nil
}

// LoadLibrary loads and parses a template library YAML file
func (l *Loader) LoadLibrary(path string) (*model.TemplateLibrary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read template library file: %w", err)
	}

	if err := l.validator.ValidateLibrary(data); err != nil {
		return nil, model.NewDefinitionError(model.ErrInvalidDeclaration, path, "%v", err)
	}

	var library model.TemplateLibrary
	if err := yaml.Unmarshal(data, &library); err != nil {
		return nil, model.NewDefinitionError(model.ErrInvalidDeclaration, path, "failed to parse template library YAML: %v", err)
	}

	for i := range library.Templates {
		library.Templates[i].Source = path
	}
	return &library, nil
}

// LoadTemplates loads template libraries from a file, a directory or a glob.
// Supports glob patterns for recursive search:
//   - A file: loaded as a single library
//   - Exact directory: non-recursive, every *.yaml/*.yml directly inside it
//   - Path with * or **: every match; matched directories are walked recursively
//
// Files are processed in lexical order so template order is stable.
func (l *Loader) LoadTemplates(configPath string) ([]model.Template, error) {
	files, err := findLibraryFiles(configPath)
	if err != nil {
		return nil, err
	}

	var templates []model.Template
	for _, file := range files {
		library, err := l.LoadLibrary(file)
		if err != nil {
			return nil, err
		}
		templates = append(templates, library.Templates...)
	}
	return templates, nil
}

func findLibraryFiles(configPath string) ([]string, error) {
	isRecursive := strings.Contains(configPath, "*")

	var searchPaths []string
	if isRecursive {
		// filepath.Glob has no ** support; treat it as * and walk the matches
		pattern := strings.ReplaceAll(configPath, "**", "*")
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("failed to evaluate glob pattern %s: %w", configPath, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("glob pattern %s matched nothing", configPath)
		}
		searchPaths = matches
	} else {
		info, err := os.Stat(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to access template path %s: %w", configPath, err)
		}
		if !info.IsDir() {
			return []string{configPath}, nil
		}
		searchPaths = []string{configPath}
	}

	seen := make(map[string]bool)
	var files []string
	add := func(path string) {
		if !seen[path] {
			seen[path] = true
			files = append(files, path)
		}
	}

	for _, basePath := range searchPaths {
		info, err := os.Stat(basePath)
		if err != nil {
			return nil, fmt.Errorf("failed to access template path %s: %w", basePath, err)
		}
		if !info.IsDir() {
			if isYAML(basePath) {
				add(basePath)
			}
			continue
		}

		if isRecursive {
			err := filepath.Walk(basePath, func(path string, info os.FileInfo, err error) error {
				if err != nil {
					return err
				}
				if !info.IsDir() && isYAML(path) {
					add(path)
				}
				return nil
			})
			if err != nil {
				return nil, fmt.Errorf("failed to walk directory %s: %w", basePath, err)
			}
			continue
		}

		entries, err := os.ReadDir(basePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read directory %s: %w", basePath, err)
		}
		for _, entry := range entries {
			if !entry.IsDir() && isYAML(entry.Name()) {
				add(filepath.Join(basePath, entry.Name()))
			}
		}
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("no template library files found in path: %s", configPath)
	}

	sort.Strings(files)
	return files, nil
}

func isYAML(path string) bool {
	ext := filepath.Ext(path)
	return ext == ".yaml" || ext == ".yml"
}
