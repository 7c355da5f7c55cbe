package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sourceplane/liteflow/internal/model"
	"github.com/sourceplane/liteflow/internal/template"
)

const rule = "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"

var templatesCmd = &cobra.Command{
	Use:     "templates [template-name]",
	Aliases: []string{"template"},
	Short:   "List and inspect job templates",
	Long:    "List the templates visible to a pipeline. Use 'liteflow templates <name>' for parameters and steps.",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return listTemplates(cmd, args)
	},
}

func registerTemplatesCommand(root *cobra.Command) {
	root.AddCommand(templatesCmd)

	templatesCmd.Flags().BoolVarP(&longFormat, "long", "l", false, "Show detailed information")
}

func listTemplates(cmd *cobra.Command, args []string) error {
	compiled, err := compilePipeline(cmd.Context())
	if err != nil {
		return err
	}
	resolver := compiled.Resolver

	if len(args) > 0 {
		tmpl, ok := resolver.Lookup(args[0])
		if !ok {
			return fmt.Errorf("template not found: %s", args[0])
		}
		printTemplateLong(resolver, tmpl)
		return nil
	}

	fmt.Println("Available Templates:")
	for _, name := range resolver.Names() {
		tmpl, _ := resolver.Lookup(name)
		if longFormat {
			printTemplateLong(resolver, tmpl)
			continue
		}
		fmt.Printf("  %-24s  %s\n", tmpl.Name, tmpl.Description)
	}

	if !longFormat {
		fmt.Println("\nRun 'liteflow templates <name>' for detailed information")
	}
	return nil
}

func printTemplateLong(resolver *template.Resolver, tmpl *model.Template) {
	fmt.Printf("\n%s\nTemplate: %s\n%s\n\n", rule, tmpl.Name, rule)

	if tmpl.Description != "" {
		fmt.Printf("Description:\n  %s\n\n", tmpl.Description)
	}
	if tmpl.Source != "" {
		fmt.Printf("Source: %s\n\n", tmpl.Source)
	}

	if len(tmpl.Parameters) > 0 {
		fmt.Printf("Parameters:\n")
		for _, param := range tmpl.Parameters {
			switch {
			case param.Required():
				fmt.Printf("  • %-20s (required)", param.Name)
			default:
				fmt.Printf("  • %-20s default: %s", param.Name, param.Default.String())
			}
			if param.Description != "" {
				fmt.Printf(" - %s", param.Description)
			}
			fmt.Printf("\n")
		}
		fmt.Printf("\n")
	}

	if tmpl.Template != "" {
		fmt.Printf("Extends: %s\n", tmpl.Template)
		for _, key := range sortedValueKeys(tmpl.With) {
			fmt.Printf("  %s: %s\n", key, tmpl.With[key].String())
		}
		fmt.Printf("\n")
		if parent, ok := resolver.Lookup(tmpl.Template); ok && parent.Job != nil {
			printSteps(parent.Job.Steps)
		}
		return
	}

	if tmpl.Job != nil {
		if tmpl.Job.Platform != "" || tmpl.Job.Timeout != "" {
			fmt.Printf("Platform: %s | Timeout: %s\n\n", orDash(tmpl.Job.Platform), orDash(tmpl.Job.Timeout))
		}
		printSteps(tmpl.Job.Steps)
	}
}

func printSteps(steps []model.Step) {
	fmt.Printf("Steps:\n")
	for i, step := range steps {
		fmt.Printf("  %d. %s\n", i+1, step.Name)
		if step.Timeout != "" {
			fmt.Printf("     Timeout: %s\n", step.Timeout)
		}
		if step.Retry > 0 {
			fmt.Printf("     Retry: %d\n", step.Retry)
		}
		fmt.Printf("     Command: %s\n", strings.TrimSpace(step.Run))
	}
	fmt.Printf("\n")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
