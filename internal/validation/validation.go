// Package validation checks declared stacks and their synthesized templates.
//
// Validation runs in two layers:
//   - structure: the dependency graph and cross-resource references of the stack
//   - cfn-lint-go: the synthesized CloudFormation template (library dependency)
//
// Neither layer resolves function entrypoints. A handler that does not exist
// in its artifact still validates and only fails when invoked.
package validation

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/lex00/cfn-lint-go/pkg/lint"

	stackwire "github.com/schedulegen/stackwire-go"
	"github.com/schedulegen/stackwire-go/construct"
	"github.com/schedulegen/stackwire-go/internal/graph"
	"github.com/schedulegen/stackwire-go/internal/template"
	"github.com/schedulegen/stackwire-go/resources/apigateway"
	"github.com/schedulegen/stackwire-go/resources/lambda"
)

// StructureResult contains the result of the structural checks.
type StructureResult struct {
	Passed   bool     `json:"passed"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// CfnLintResult contains the result of running cfn-lint.
type CfnLintResult struct {
	Passed        bool     `json:"passed"`
	Errors        []string `json:"errors"`
	Warnings      []string `json:"warnings"`
	Informational []string `json:"informational"`
}

// TotalIssues returns the total number of issues found.
func (r CfnLintResult) TotalIssues() int {
	return len(r.Errors) + len(r.Warnings) + len(r.Informational)
}

// ValidationResult contains all validation results for a stack.
type ValidationResult struct {
	Structure *StructureResult `json:"structure"`
	CfnLint   *CfnLintResult   `json:"cfn_lint"`
}

// Passed reports whether both layers passed.
func (r *ValidationResult) Passed() bool {
	return r.Structure != nil && r.Structure.Passed && r.CfnLint != nil && r.CfnLint.Passed
}

// CheckStructure validates the graph and references of stack.
func CheckStructure(stack *construct.Stack) *StructureResult {
	result := &StructureResult{Errors: []string{}, Warnings: []string{}}

	g := graph.FromStack(stack)
	if err := g.Validate(); err != nil {
		result.Errors = append(result.Errors, err.Error())
	}

	for _, r := range stack.Resources() {
		switch res := r.(type) {
		case *apigateway.LambdaRestApi:
			target, ok := stack.Resource(res.Handler().ID())
			if !ok || target != stackwire.Resource(res.Handler()) {
				result.Errors = append(result.Errors,
					fmt.Sprintf("%s: handler %s is not declared in stack %s", res.ID(), res.Handler().ID(), stack.ID()))
			}
		case *lambda.Function:
			if strings.TrimSpace(res.Handler()) == "" {
				result.Warnings = append(result.Warnings, fmt.Sprintf("%s: handler is empty", res.ID()))
			}
			if _, known := lambda.LookupRuntime(res.Runtime().Name()); !known {
				result.Warnings = append(result.Warnings,
					fmt.Sprintf("%s: runtime %q is not a managed runtime", res.ID(), res.Runtime().Name()))
			}
		}
	}

	for _, n := range g.Nodes {
		if n.Kind == stackwire.KindStorage && g.EdgesTouching(n.ID) == 0 {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("%s: no resource in the stack references this bucket", n.ID))
		}
	}

	result.Passed = len(result.Errors) == 0
	return result
}

// RunCfnLint runs cfn-lint-go on the given template file.
func RunCfnLint(templatePath string) (*CfnLintResult, error) {
	if _, err := os.Stat(templatePath); err != nil {
		return &CfnLintResult{
			Passed: false,
			Errors: []string{fmt.Sprintf("Template file not found: %s", templatePath)},
		}, nil
	}

	linter := lint.New(lint.Options{})
	matches, err := linter.LintFile(templatePath)
	if err != nil {
		return &CfnLintResult{
			Passed: false,
			Errors: []string{fmt.Sprintf("Linter error: %v", err)},
		}, nil
	}

	result := &CfnLintResult{
		Errors:        []string{},
		Warnings:      []string{},
		Informational: []string{},
	}

	for _, match := range matches {
		formatted := formatMatch(match)

		switch match.Level {
		case "Error":
			result.Errors = append(result.Errors, formatted)
		case "Warning":
			result.Warnings = append(result.Warnings, formatted)
		default:
			result.Informational = append(result.Informational, formatted)
		}
	}

	// warnings are acceptable
	result.Passed = len(result.Errors) == 0

	return result, nil
}

// LintTemplate writes tmpl to a temporary file and lints it.
func LintTemplate(tmpl *stackwire.Template) (*CfnLintResult, error) {
	data, err := template.ToJSON(tmpl)
	if err != nil {
		return nil, fmt.Errorf("serializing template: %w", err)
	}

	dir, err := os.MkdirTemp("", "stackwire-lint-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "template.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, err
	}
	return RunCfnLint(path)
}

// formatMatch formats a cfn-lint-go match for display.
func formatMatch(match lint.Match) string {
	pathStr := ""
	if len(match.Location.Path) > 0 {
		parts := make([]string, len(match.Location.Path))
		for i, p := range match.Location.Path {
			parts[i] = fmt.Sprintf("%v", p)
		}
		pathStr = strings.Join(parts, "/")
	}

	if pathStr != "" {
		return fmt.Sprintf("%s: %s (at %s)", match.Rule.ID, match.Message, pathStr)
	}
	return fmt.Sprintf("%s: %s", match.Rule.ID, match.Message)
}

// ValidateStack runs the structural checks, synthesizes the stack and lints
// the template. Lint is skipped when the structure is broken or synthesis
// fails.
func ValidateStack(stack *construct.Stack) (*ValidationResult, error) {
	result := &ValidationResult{Structure: CheckStructure(stack)}

	if !result.Structure.Passed {
		result.CfnLint = &CfnLintResult{
			Passed: false,
			Errors: []string{"structure invalid - no template to validate"},
		}
		return result, nil
	}

	res, err := template.Synthesize(stack, template.Options{})
	if err != nil {
		result.CfnLint = &CfnLintResult{
			Passed: false,
			Errors: []string{fmt.Sprintf("synthesis failed: %v", err)},
		}
		return result, nil
	}

	lintResult, err := LintTemplate(res.Template)
	if err != nil {
		return nil, fmt.Errorf("running cfn-lint: %w", err)
	}
	result.CfnLint = lintResult
	return result, nil
}
