package main

import (
	"context"
	"fmt"

	"github.com/sourceplane/liteflow/internal/engine"
)

// compilePipeline loads and compiles the pipeline named by the global flags
func compilePipeline(ctx context.Context) (*engine.Compiled, error) {
	fmt.Printf("□ Compiling %s...\n", pipelineFile)
	compiled, err := engine.Compile(ctx, engine.CompileOptions{
		PipelineFile:  pipelineFile,
		TemplatePaths: templatePaths,
		MaxDepth:      cfg.Templates.MaxDepth,
	})
	if err != nil {
		return nil, err
	}
	return compiled, nil
}
