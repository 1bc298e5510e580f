// Package differ provides semantic comparison of CloudFormation templates.
//
// A modified resource is classified as a replacement when one of the changed
// properties cannot be updated in place for its type. Replacing a resource
// creates a new physical resource and removes the old one, which for a bucket
// means its objects do not carry over.
package differ

import (
	"encoding/json"
	"fmt"
	"os"
	"reflect"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	stackwire "github.com/schedulegen/stackwire-go"
)

// Options configures the differ.
type Options struct {
	// IgnoreOrder ignores array element order in comparisons
	IgnoreOrder bool
}

// Result contains the difference between two templates.
type Result struct {
	Diff    stackwire.TemplateDiff
	Summary stackwire.DiffSummary

	// Outputs lists changed output names.
	Outputs []string
}

// replacementProperties lists, per type, the properties whose change forces
// a new physical resource.
var replacementProperties = map[string][]string{
	"AWS::S3::Bucket":             {"BucketName"},
	"AWS::Lambda::Function":       {"FunctionName"},
	"AWS::IAM::Role":              {"RoleName", "Path"},
	"AWS::ApiGateway::Resource":   {"ParentId", "PathPart", "RestApiId"},
	"AWS::ApiGateway::Method":     {"HttpMethod", "ResourceId", "RestApiId"},
	"AWS::ApiGateway::Deployment": {"RestApiId"},
	"AWS::ApiGateway::Stage":      {"StageName", "RestApiId"},
	"AWS::Lambda::Permission":     {"Action", "FunctionName", "Principal", "SourceArn"},
}

// RequiresReplacement reports whether changing property on a resource of
// typ replaces it.
func RequiresReplacement(typ, property string) bool {
	for _, p := range replacementProperties[typ] {
		if p == property {
			return true
		}
	}
	return false
}

// Compare compares two CloudFormation templates and returns differences.
func Compare(template1, template2 *stackwire.Template, opts Options) (*Result, error) {
	if template1 == nil || template2 == nil {
		return nil, fmt.Errorf("compare: nil template")
	}
	result := &Result{}

	res1 := template1.Resources
	res2 := template2.Resources

	for name, def := range res2 {
		if _, exists := res1[name]; !exists {
			result.Diff.Added = append(result.Diff.Added, stackwire.DiffEntry{
				Resource: name,
				Type:     def.Type,
				Action:   stackwire.DiffAdd,
			})
		}
	}

	for name, def := range res1 {
		if _, exists := res2[name]; !exists {
			result.Diff.Removed = append(result.Diff.Removed, stackwire.DiffEntry{
				Resource: name,
				Type:     def.Type,
				Action:   stackwire.DiffRemove,
			})
		}
	}

	for name, def1 := range res1 {
		def2, exists := res2[name]
		if !exists {
			continue
		}
		changes, replace := compareResources(def1, def2, opts)
		if len(changes) == 0 {
			continue
		}
		entry := stackwire.DiffEntry{
			Resource: name,
			Type:     def1.Type,
			Action:   stackwire.DiffModify,
			Changes:  changes,
		}
		if replace {
			entry.Action = stackwire.DiffReplace
			result.Summary.Replaced++
		}
		result.Diff.Modified = append(result.Diff.Modified, entry)
	}

	sortEntries(result.Diff.Added)
	sortEntries(result.Diff.Removed)
	sortEntries(result.Diff.Modified)

	result.Outputs = compareOutputs(template1.Outputs, template2.Outputs, opts)

	result.Summary.Added = len(result.Diff.Added)
	result.Summary.Removed = len(result.Diff.Removed)
	result.Summary.Modified = len(result.Diff.Modified)
	result.Summary.Total = result.Summary.Added + result.Summary.Removed + result.Summary.Modified

	return result, nil
}

// CompareFiles compares two template files.
func CompareFiles(file1, file2 string, opts Options) (*Result, error) {
	t1, err := LoadTemplate(file1)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", file1, err)
	}

	t2, err := LoadTemplate(file2)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", file2, err)
	}

	return Compare(t1, t2, opts)
}

// LoadTemplate loads a CloudFormation template from a file.
func LoadTemplate(path string) (*stackwire.Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseTemplate(data)
}

// ParseTemplate decodes a JSON or YAML template.
func ParseTemplate(data []byte) (*stackwire.Template, error) {
	var template stackwire.Template

	if err := json.Unmarshal(data, &template); err != nil {
		if err := yaml.Unmarshal(data, &template); err != nil {
			return nil, fmt.Errorf("failed to parse as JSON or YAML: %w", err)
		}
		// YAML numbers decode as int; JSON as float64. Round-trip through
		// JSON so templates from either source compare equal.
		normalized, err := json.Marshal(&template)
		if err != nil {
			return nil, err
		}
		template = stackwire.Template{}
		if err := json.Unmarshal(normalized, &template); err != nil {
			return nil, err
		}
	}

	return &template, nil
}

// compareResources compares two resource definitions and returns changes and
// whether they force a replacement.
func compareResources(def1, def2 stackwire.ResourceDef, opts Options) ([]string, bool) {
	var changes []string
	replace := false

	if def1.Type != def2.Type {
		changes = append(changes, fmt.Sprintf("Type changed: %s → %s", def1.Type, def2.Type))
		replace = true
	}

	for _, key := range changedKeys(def1.Properties, def2.Properties, opts) {
		_, in1 := def1.Properties[key]
		_, in2 := def2.Properties[key]
		switch {
		case !in1:
			changes = append(changes, key+" added")
		case !in2:
			changes = append(changes, key+" removed")
		default:
			changes = append(changes, key+" modified")
		}
		if RequiresReplacement(def1.Type, key) {
			replace = true
		}
	}

	if !equalStringSlices(def1.DependsOn, def2.DependsOn) {
		changes = append(changes, "DependsOn changed")
	}
	if def1.DeletionPolicy != def2.DeletionPolicy {
		changes = append(changes, fmt.Sprintf("DeletionPolicy changed: %s → %s", orNone(def1.DeletionPolicy), orNone(def2.DeletionPolicy)))
	}

	return changes, replace
}

// changedKeys returns the sorted top-level keys that differ between two
// property maps.
func changedKeys(props1, props2 map[string]any, opts Options) []string {
	var keys []string
	for key, val2 := range props2 {
		if val1, exists := props1[key]; !exists || !deepEqual(val1, val2, opts) {
			keys = append(keys, key)
		}
	}
	for key := range props1 {
		if _, exists := props2[key]; !exists {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

func compareOutputs(out1, out2 map[string]stackwire.Output, opts Options) []string {
	var names []string
	for name, o2 := range out2 {
		if o1, ok := out1[name]; !ok || !deepEqual(o1.Value, o2.Value, opts) {
			names = append(names, name)
		}
	}
	for name := range out1 {
		if _, ok := out2[name]; !ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// deepEqual compares two values deeply, optionally ignoring order.
func deepEqual(a, b any, opts Options) bool {
	if opts.IgnoreOrder {
		a = normalizeValue(a)
		b = normalizeValue(b)
	}
	return reflect.DeepEqual(a, b)
}

// normalizeValue sorts slices by their JSON encoding so element order does
// not matter.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case []any:
		result := make([]any, len(val))
		for i, elem := range val {
			result[i] = normalizeValue(elem)
		}
		sort.SliceStable(result, func(i, j int) bool {
			return encode(result[i]) < encode(result[j])
		})
		return result
	case map[string]any:
		result := make(map[string]any, len(val))
		for k, v := range val {
			result[k] = normalizeValue(v)
		}
		return result
	default:
		return v
	}
}

func encode(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(none)"
	}
	return s
}

// equalStringSlices compares two string slices for equality.
func equalStringSlices(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// sortEntries sorts diff entries by resource name.
func sortEntries(entries []stackwire.DiffEntry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Resource < entries[j].Resource
	})
}
