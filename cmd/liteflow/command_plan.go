package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sourceplane/liteflow/internal/render"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Compile a pipeline into an execution plan",
	RunE: func(cmd *cobra.Command, args []string) error {
		return generatePlan(cmd)
	},
}

func registerPlanCommand(root *cobra.Command) {
	root.AddCommand(planCmd)

	planCmd.Flags().StringVarP(&outputFile, "output", "o", "plan.json", "Output plan file path (.json/.yaml)")
	planCmd.Flags().BoolVar(&debugMode, "debug", false, "Print the plan in a readable form")
	planCmd.Flags().StringVarP(&viewPlan, "view", "v", "", "View plan (dag/dependencies/job=NAME)")
}

func generatePlan(cmd *cobra.Command) error {
	compiled, err := compilePipeline(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Println("□ Rendering plan...")
	renderer := render.NewRenderer()
	plan := renderer.RenderPlan(compiled.Pipeline, compiled.Graph)

	if debugMode {
		fmt.Println("\n" + renderer.DebugDump(plan))
	}

	if err := renderer.WritePlan(plan, outputFile); err != nil {
		return fmt.Errorf("failed to write plan: %w", err)
	}

	fmt.Printf("✓ Plan generated with %d jobs\n", len(plan.Jobs))
	fmt.Printf("✓ Saved to: %s\n", outputFile)

	if viewPlan != "" {
		viewer := render.NewPlanViewer(plan)
		var output string

		switch {
		case viewPlan == "dependencies":
			output = viewer.ViewDependencies()
		case strings.HasPrefix(viewPlan, "job="):
			output = viewer.ViewByJob(strings.TrimPrefix(viewPlan, "job="))
		default:
			output = viewer.ViewDAG()
		}

		fmt.Println("\n" + output)
	}

	return nil
}
