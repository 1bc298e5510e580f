// Package optimizer reviews a declared stack and suggests improvements.
// Suggestions never block synthesis or deployment.
package optimizer

import (
	"fmt"
	"sort"

	stackwire "github.com/schedulegen/stackwire-go"
	"github.com/schedulegen/stackwire-go/construct"
	"github.com/schedulegen/stackwire-go/resources/apigateway"
	"github.com/schedulegen/stackwire-go/resources/lambda"
	"github.com/schedulegen/stackwire-go/resources/s3"
)

// Categories in report order.
const (
	CategorySecurity    = "security"
	CategoryCost        = "cost"
	CategoryPerformance = "performance"
	CategoryReliability = "reliability"
)

// Categories lists every category in report order.
var Categories = []string{CategorySecurity, CategoryCost, CategoryPerformance, CategoryReliability}

// Options configures the optimizer.
type Options struct {
	// Category filters suggestions: "all" or one of Categories. Empty means all.
	Category string
}

// Suggestion is one finding on one resource.
type Suggestion struct {
	Rule        string `json:"rule"`
	Resource    string `json:"resource"`
	Category    string `json:"category"`
	Severity    string `json:"severity"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Suggestion  string `json:"suggestion"`
}

// Summary counts suggestions by category.
type Summary struct {
	Security    int `json:"security"`
	Cost        int `json:"cost"`
	Performance int `json:"performance"`
	Reliability int `json:"reliability"`
	Total       int `json:"total"`
}

// Result contains optimization suggestions.
type Result struct {
	Stack         string       `json:"stack"`
	ResourceCount int          `json:"resourceCount"`
	Suggestions   []Suggestion `json:"suggestions"`
	Summary       Summary      `json:"summary"`
}

// Rule is a single check.
type Rule struct {
	ID       string
	Category string
	Check    func(stack *construct.Stack, r stackwire.Resource) *Suggestion
}

// Optimize applies the rules of each resource type to every resource in stack.
func Optimize(stack *construct.Stack, opts Options) (*Result, error) {
	category := opts.Category
	if category == "" {
		category = "all"
	}
	if category != "all" && !knownCategory(category) {
		return nil, fmt.Errorf("unknown category %q", category)
	}

	result := &Result{Stack: stack.ID(), Suggestions: []Suggestion{}}
	for _, r := range stack.Resources() {
		result.ResourceCount++
		result.Suggestions = append(result.Suggestions, analyzeResource(stack, r, category)...)
	}
	sort.SliceStable(result.Suggestions, func(i, j int) bool {
		a, b := result.Suggestions[i], result.Suggestions[j]
		if a.Resource != b.Resource {
			return a.Resource < b.Resource
		}
		return a.Rule < b.Rule
	})

	result.Summary = calculateSummary(result.Suggestions)
	return result, nil
}

func analyzeResource(stack *construct.Stack, r stackwire.Resource, category string) []Suggestion {
	var suggestions []Suggestion
	for _, rule := range rulesFor(r) {
		if category != "all" && rule.Category != category {
			continue
		}
		if s := rule.Check(stack, r); s != nil {
			s.Rule = rule.ID
			s.Resource = r.ID()
			s.Category = rule.Category
			suggestions = append(suggestions, *s)
		}
	}
	return suggestions
}

// rulesFor returns the rules written for the concrete type of r. Each rule
// may assert that type.
func rulesFor(r stackwire.Resource) []Rule {
	switch r.(type) {
	case *s3.Bucket:
		return bucketRules
	case *lambda.Function:
		return functionRules
	case *apigateway.LambdaRestApi:
		return gatewayRules
	}
	return nil
}

func calculateSummary(suggestions []Suggestion) Summary {
	summary := Summary{}
	for _, s := range suggestions {
		switch s.Category {
		case CategorySecurity:
			summary.Security++
		case CategoryCost:
			summary.Cost++
		case CategoryPerformance:
			summary.Performance++
		case CategoryReliability:
			summary.Reliability++
		}
		summary.Total++
	}
	return summary
}

func knownCategory(c string) bool {
	for _, k := range Categories {
		if k == c {
			return true
		}
	}
	return false
}
