package lambda

import (
	"path/filepath"
)

// Code references the artifact a function runs.
type Code struct {
	path   string
	inline string
}

// FromAsset references a local directory or .zip archive. Relative paths are
// resolved against the stack's AssetRoot when the asset is staged, not against
// the process working directory. The path is not checked here.
func FromAsset(path string) *Code {
	return &Code{path: path}
}

// FromInline embeds source code directly in the template.
func FromInline(source string) *Code {
	return &Code{inline: source}
}

// IsAsset reports whether the code is a local asset.
func (c *Code) IsAsset() bool { return c.inline == "" }

// Path returns the asset path as declared.
func (c *Code) Path() string { return c.path }

// Inline returns the inline source.
func (c *Code) Inline() string { return c.inline }

// Resolve returns the asset path anchored at root.
func (c *Code) Resolve(root string) string {
	if filepath.IsAbs(c.path) || root == "" {
		return filepath.Clean(c.path)
	}
	return filepath.Join(root, c.path)
}
