// ABOUTME: Deterministic display-name generation for conversations
// ABOUTME: Name ordering is alphabetical by agent name, independent of ID ordering

package store

import (
	"fmt"
	"sort"
)

// GenerateDMName returns the stable display label for a DM between two
// agents. Names are sorted alphabetically, so the result is the same
// regardless of argument order. This is purely cosmetic ordering; the
// storage key ordering for DM conversations uses ID-string comparison
// and must not be conflated with it.
func GenerateDMName(aName, bName string) string {
	names := []string{aName, bName}
	sort.Strings(names)
	return fmt.Sprintf("Direct Message between %s and %s", names[0], names[1])
}

// GenerateSelfDMName returns the stable display label for an agent's
// self-conversation.
func GenerateSelfDMName(name string) string {
	return fmt.Sprintf("Direct Message with %s (self)", name)
}
