package schema

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed schemas/*.json
var schemaFS embed.FS

const (
	pipelineSchemaURL = "liteflow://schemas/pipeline.schema.json"
	librarySchemaURL  = "liteflow://schemas/library.schema.json"
)

// Validator handles JSON schema validation of declaration documents
type Validator struct {
	pipelineSchema *jsonschema.Schema
	librarySchema  *jsonschema.Schema
}

// NewValidator compiles the embedded pipeline and template library schemas
func NewValidator() (*Validator, error) {
	compiler := jsonschema.NewCompiler()

	resources := map[string]string{
		pipelineSchemaURL: "schemas/pipeline.schema.json",
		librarySchemaURL:  "schemas/library.schema.json",
	}
	for url, path := range resources {
		data, err := schemaFS.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read embedded schema %s: %w", path, err)
		}
		if err := compiler.AddResource(url, bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("failed to add schema %s: %w", path, err)
		}
	}

	v := &Validator{}
	var err error
	if v.pipelineSchema, err = compiler.Compile(pipelineSchemaURL); err != nil {
		return nil, fmt.Errorf("failed to compile pipeline schema: %w", err)
	}
	if v.librarySchema, err = compiler.Compile(librarySchemaURL); err != nil {
		return nil, fmt.Errorf("failed to compile template library schema: %w", err)
	}
	return v, nil
}

// ValidatePipeline validates a pipeline document given as YAML or JSON bytes
func (v *Validator) ValidatePipeline(data []byte) error {
	return validateYAML(v.pipelineSchema, data)
}

// ValidateLibrary validates a template library document given as YAML or JSON bytes
func (v *Validator) ValidateLibrary(data []byte) error {
	return validateYAML(v.librarySchema, data)
}

func validateYAML(schema *jsonschema.Schema, data []byte) error {
	if schema == nil {
		return fmt.Errorf("schema not loaded")
	}

	doc, err := toJSONValue(data)
	if err != nil {
		return err
	}
	return schema.Validate(doc)
}

// toJSONValue parses YAML and converts it into the value shapes produced by
// encoding/json, which is what the schema compiler validates.
func toJSONValue(data []byte) (interface{}, error) {
	var raw interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}

	jsonData, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to convert document to JSON: %w", err)
	}

	var doc interface{}
	if err := json.Unmarshal(jsonData, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	return doc, nil
}
