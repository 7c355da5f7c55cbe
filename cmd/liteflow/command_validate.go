package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a pipeline declaration",
	Long:  "Load, schema-check and compile a pipeline without running it. Definition errors exit with status 2.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return validatePipeline(cmd)
	},
}

func registerValidateCommand(root *cobra.Command) {
	root.AddCommand(validateCmd)
}

func validatePipeline(cmd *cobra.Command) error {
	compiled, err := compilePipeline(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Printf("✓ Pipeline %s is valid\n", compiled.Pipeline.Metadata.Name)
	fmt.Printf("  %d templates, %d job entries, %d job instances\n",
		len(compiled.Resolver.Names()), len(compiled.Pipeline.Jobs), compiled.Graph.Len())
	return nil
}
