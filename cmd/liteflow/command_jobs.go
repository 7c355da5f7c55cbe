package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sourceplane/liteflow/internal/expand"
	"github.com/sourceplane/liteflow/internal/model"
	"github.com/sourceplane/liteflow/internal/planner"
)

var jobsCmd = &cobra.Command{
	Use:     "jobs [job-name]",
	Aliases: []string{"job"},
	Short:   "List expanded job instances",
	Long:    "List every job group with its matrix instances. Use 'liteflow jobs <name>' for its dependencies and dependents.",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return listJobs(cmd, args)
	},
}

func registerJobsCommand(root *cobra.Command) {
	root.AddCommand(jobsCmd)

	jobsCmd.Flags().BoolVarP(&longFormat, "long", "l", false, "Show detailed information")
}

func listJobs(cmd *cobra.Command, args []string) error {
	compiled, err := compilePipeline(cmd.Context())
	if err != nil {
		return err
	}

	analyzer := expand.NewJobAnalyzer(compiled.Graph.Instances())
	resolver := planner.NewDependencyResolver(compiled.Graph)

	if len(args) > 0 {
		name := args[0]
		if group := analyzer.GetGroup(name); group != nil {
			printGroupDetails(group)
		} else if node, ok := compiled.Graph.Lookup(name); ok {
			printInstance(node.Job)
		} else {
			return fmt.Errorf("job not found: %s", name)
		}

		deps, dependents := resolver.CategorizeDependencies([]string{name})
		fmt.Printf("  Depends on (%d):\n", len(deps))
		for _, dep := range deps {
			fmt.Printf("    - %s\n", dep)
		}
		fmt.Printf("  Required by (%d):\n", len(dependents))
		for _, dept := range dependents {
			fmt.Printf("    - %s\n", dept)
		}
		return nil
	}

	groups := analyzer.ListAll()
	fmt.Printf("Jobs (%d groups, %d instances):\n", len(groups), compiled.Graph.Len())
	for _, group := range groups {
		if longFormat {
			printGroupDetails(group)
			continue
		}
		fmt.Printf("  %-24s  %d instance(s)\n", group.Name, len(group.Instances))
	}
	return nil
}

func printGroupDetails(group *expand.JobGroup) {
	fmt.Printf("\n[Job] %s\n", group.Name)
	if group.Template != "" {
		fmt.Printf("  Template:   %s\n", group.Template)
	}
	if len(group.Axes) > 0 {
		fmt.Printf("  Matrix:     %s\n", strings.Join(group.Axes, " × "))
	}
	if len(group.Dependencies) > 0 {
		fmt.Printf("  Dependencies: %s\n", strings.Join(group.Dependencies, ", "))
	}

	fmt.Printf("  Instances (%d):\n", len(group.Instances))
	for _, inst := range group.Instances {
		fmt.Printf("    %s", inst.Name)
		if inst.Platform != "" {
			fmt.Printf(" [%s]", inst.Platform)
		}
		fmt.Printf("\n")
	}
}

func printInstance(job *model.JobInstance) {
	fmt.Printf("\n[Job] %s\n", job.Name)
	fmt.Printf("  Group:      %s\n", job.Group)
	if job.Platform != "" {
		fmt.Printf("  Platform:   %s\n", job.Platform)
	}
	if job.Timeout > 0 {
		fmt.Printf("  Timeout:    %s\n", job.Timeout)
	}
	if job.Condition != "" {
		fmt.Printf("  Condition:  %s\n", job.Condition)
	}
	if len(job.Coordinate) > 0 {
		fmt.Printf("  Coordinate:\n")
		for _, axis := range sortedKeys(job.Coordinate) {
			fmt.Printf("    %s: %s\n", axis, job.Coordinate[axis])
		}
	}
	fmt.Printf("  Steps (%d):\n", len(job.Payload.Steps))
	for _, step := range job.Payload.Steps {
		fmt.Printf("    - %s: %s\n", step.Name, strings.TrimSpace(step.Run))
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedValueKeys(m map[string]model.Value) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
