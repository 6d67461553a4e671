// Package classify derives the kind of captured content.
package classify

import (
	"strings"

	"github.com/snipvault/snipvault/internal/types"
)

// commandPrefixes are CLI verbs that mark content as command-like
// when they open the text. Matched case-insensitively.
var commandPrefixes = []string{
	"git ", "npm ", "docker ", "cd ", "ls ", "sudo ", "python ", "pip ",
}

// shellMetachars mark content as command-like anywhere in the text.
var shellMetachars = []string{"|", "&&", ">", "<", ";"}

// Detect classifies content as plain text or a shell command. The rule
// is deterministic and applied once at item creation; the result is
// immutable afterwards.
func Detect(content string) types.Kind {
	lower := strings.ToLower(content)
	for _, p := range commandPrefixes {
		if strings.HasPrefix(lower, p) {
			return types.KindCommand
		}
	}
	for _, c := range shellMetachars {
		if strings.Contains(content, c) {
			return types.KindCommand
		}
	}
	return types.KindText
}
