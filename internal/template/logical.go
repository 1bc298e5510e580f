package template

import (
	"crypto/md5"
	"encoding/hex"
	"strings"

	"github.com/schedulegen/stackwire-go/construct"
)

// LogicalID derives the logical id of the construct at path below stack.
// The readable part concatenates the alphanumeric characters of every path
// component except "Resource" and "Default"; the suffix is the first 8 hex
// characters of the md5 of the full path, so ids are stable across runs and
// unique even when readable parts collide.
func LogicalID(stack *construct.Stack, path ...string) string {
	var human strings.Builder
	for _, part := range path {
		if part == "Resource" || part == "Default" {
			continue
		}
		for _, r := range part {
			if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
				human.WriteRune(r)
			}
		}
	}

	sum := md5.Sum([]byte(stack.Path(path...)))
	suffix := strings.ToUpper(hex.EncodeToString(sum[:])[:8])

	name := human.String()
	if len(name) > 247 {
		name = name[:247]
	}
	return name + suffix
}
