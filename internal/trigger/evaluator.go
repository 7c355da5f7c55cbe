// Package trigger decides whether an invocation runs a pipeline and which
// conditional jobs it includes.
package trigger

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/ext"

	"github.com/sourceplane/liteflow/internal/model"
)

// Variable names available to job conditions
const (
	VarEvent        = "event"
	VarBranch       = "branch"
	VarTargetBranch = "targetBranch"
	VarVariables    = "variables"
	VarParameters   = "parameters"
	VarChangedFiles = "changedFiles"
)

// Evaluator matches invocations against trigger blocks and evaluates job
// conditions. Compiled condition programs are cached; it is safe for
// concurrent use.
type Evaluator struct {
	env *cel.Env

	mu       sync.Mutex
	programs map[string]cel.Program
}

// NewEvaluator builds the CEL environment for job conditions
func NewEvaluator() (*Evaluator, error) {
	env, err := cel.NewEnv(
		ext.Strings(),
		cel.Variable(VarEvent, cel.StringType),
		cel.Variable(VarBranch, cel.StringType),
		cel.Variable(VarTargetBranch, cel.StringType),
		cel.Variable(VarVariables, cel.MapType(cel.StringType, cel.StringType)),
		cel.Variable(VarParameters, cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable(VarChangedFiles, cel.ListType(cel.StringType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build CEL environment: %w", err)
	}
	return &Evaluator{
		env:      env,
		programs: make(map[string]cel.Program),
	}, nil
}

// ShouldRun decides whether the invocation runs the pipeline at all and
// returns a human-readable reason
func (e *Evaluator) ShouldRun(triggers model.Triggers, inv model.Invocation) (bool, string) {
	var (
		block  *model.Trigger
		branch string
		label  string
	)

	switch inv.Event {
	case model.EventManual:
		return true, "manual invocation"
	case model.EventPullRequest:
		block, branch, label = triggers.PullRequest, inv.TargetBranch, "pr"
	case model.EventPush, model.EventSchedule:
		block, branch, label = triggers.Push, inv.Branch, "trigger"
	default:
		return false, fmt.Sprintf("unknown event %q", inv.Event)
	}

	if block == nil {
		return true, fmt.Sprintf("no %s filter declared", label)
	}

	branch = strings.TrimPrefix(branch, "refs/heads/")
	if !matchFilter(block.Branches, branch, matchesWildcard) {
		return false, fmt.Sprintf("branch %q does not match the %s filter", branch, label)
	}

	hasPathFilter := len(block.Paths.Include) > 0 || len(block.Paths.Exclude) > 0
	if hasPathFilter && len(inv.ChangedFiles) > 0 {
		for _, file := range inv.ChangedFiles {
			if matchFilter(block.Paths, file, matchesPath) {
				return true, fmt.Sprintf("branch %q and changed file %q match the %s filter", branch, file, label)
			}
		}
		return false, fmt.Sprintf("no changed file matches the %s path filter", label)
	}

	return true, fmt.Sprintf("branch %q matches the %s filter", branch, label)
}

// Compile checks that expr is a valid boolean condition
func (e *Evaluator) Compile(expr string) error {
	_, err := e.program(expr)
	return err
}

// IsIncluded evaluates the job's condition; jobs without one are always included
func (e *Evaluator) IsIncluded(job *model.JobInstance, inv model.Invocation) (bool, error) {
	if strings.TrimSpace(job.Condition) == "" {
		return true, nil
	}

	program, err := e.program(job.Condition)
	if err != nil {
		return false, err
	}

	variables := inv.Variables
	if variables == nil {
		variables = map[string]string{}
	}
	parameters := job.Parameters
	if parameters == nil {
		parameters = map[string]any{}
	}
	changed := inv.ChangedFiles
	if changed == nil {
		changed = []string{}
	}

	out, _, err := program.Eval(map[string]any{
		VarEvent:        inv.Event,
		VarBranch:       strings.TrimPrefix(inv.Branch, "refs/heads/"),
		VarTargetBranch: strings.TrimPrefix(inv.TargetBranch, "refs/heads/"),
		VarVariables:    variables,
		VarParameters:   parameters,
		VarChangedFiles: changed,
	})
	if err != nil {
		return false, fmt.Errorf("CEL evaluation error in condition '%s': %w", job.Condition, err)
	}

	included, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("condition '%s' evaluated to %s, not bool", job.Condition, out.Type().TypeName())
	}
	return included, nil
}

func (e *Evaluator) program(expr string) (cel.Program, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if program, ok := e.programs[expr]; ok {
		return program, nil
	}

	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("CEL compilation error in condition '%s': %w", expr, issues.Err())
	}
	if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("condition '%s' must evaluate to bool, got %s", expr, out)
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("CEL program creation error for condition '%s': %w", expr, err)
	}
	e.programs[expr] = program
	return program, nil
}
