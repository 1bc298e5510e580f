package memory

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/schedulegen/stackwire-go/internal/cloud"
	"github.com/schedulegen/stackwire-go/resources/lambda"
)

var (
	javaHandler   = regexp.MustCompile(`^([A-Za-z_$][A-Za-z0-9_$]*\.)*[A-Za-z_$][A-Za-z0-9_$]*(::[A-Za-z_$][A-Za-z0-9_$]*)?$`)
	pythonHandler = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*/)*[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)+$`)
	nodeHandler   = regexp.MustCompile(`^([A-Za-z0-9_.-]+/)*[A-Za-z0-9_-]+\.[A-Za-z_$][A-Za-z0-9_$]*$`)
)

// artifactFamilies reports which runtime families an artifact carries code for.
func artifactFamilies(files []string) map[lambda.Family]bool {
	fams := make(map[lambda.Family]bool)
	for _, f := range files {
		switch strings.ToLower(path.Ext(f)) {
		case ".class", ".jar":
			fams[lambda.FamilyJava] = true
		case ".py":
			fams[lambda.FamilyPython] = true
		case ".js", ".mjs", ".cjs":
			fams[lambda.FamilyNode] = true
		}
		if f == "bootstrap" {
			fams[lambda.FamilyProvided] = true
		}
	}
	return fams
}

// ResolveEntrypoint finds the file a handler names inside an artifact.
//
//	java     pkg.Class::method  -> pkg/Class.class
//	python   pkg/mod.fn         -> pkg/mod.py
//	nodejs   dir/file.fn        -> dir/file.js, .mjs or .cjs
//	provided any                -> bootstrap
//
// An artifact holding code for other families only fails with
// cloud.ErrRuntimeMismatch; a handler that is malformed or names a missing
// file fails with cloud.ErrEntrypointNotFound.
func ResolveEntrypoint(runtime lambda.Runtime, handler string, files []string) (string, error) {
	fams := artifactFamilies(files)
	if len(fams) > 0 && !fams[runtime.Family()] {
		var found []string
		for _, f := range []lambda.Family{lambda.FamilyJava, lambda.FamilyPython, lambda.FamilyNode, lambda.FamilyProvided} {
			if fams[f] {
				found = append(found, string(f))
			}
		}
		return "", fmt.Errorf("runtime %s, artifact contains %s: %w",
			runtime.Name(), strings.Join(found, ", "), cloud.ErrRuntimeMismatch)
	}

	has := make(map[string]bool, len(files))
	for _, f := range files {
		has[f] = true
	}

	var candidates []string
	switch runtime.Family() {
	case lambda.FamilyJava:
		if !javaHandler.MatchString(handler) {
			return "", malformed(handler)
		}
		class, _, _ := strings.Cut(handler, "::")
		candidates = []string{strings.ReplaceAll(class, ".", "/") + ".class"}
	case lambda.FamilyPython:
		if !pythonHandler.MatchString(handler) {
			return "", malformed(handler)
		}
		i := strings.LastIndex(handler, ".")
		candidates = []string{strings.ReplaceAll(handler[:i], ".", "/") + ".py"}
	case lambda.FamilyNode:
		if !nodeHandler.MatchString(handler) {
			return "", malformed(handler)
		}
		i := strings.LastIndex(handler, ".")
		base := handler[:i]
		candidates = []string{base + ".js", base + ".mjs", base + ".cjs"}
	case lambda.FamilyProvided:
		candidates = []string{"bootstrap"}
	default:
		return "", fmt.Errorf("runtime %s has no known family: %w", runtime.Name(), cloud.ErrRuntimeMismatch)
	}

	for _, c := range candidates {
		if has[c] {
			return c, nil
		}
	}
	return "", fmt.Errorf("handler %q: %s not in artifact: %w", handler, strings.Join(candidates, " or "), cloud.ErrEntrypointNotFound)
}

func malformed(handler string) error {
	return fmt.Errorf("handler %q is malformed: %w", handler, cloud.ErrEntrypointNotFound)
}
