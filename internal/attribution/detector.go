// Package attribution resolves a default provenance.created_by value for
// writes that don't supply one explicitly, so every memory still carries a
// meaningful author even when a thin client omits it.
package attribution

import (
	"os"
	"os/exec"
	"strings"
	"sync"
)

var (
	cachedName string
	once       sync.Once
)

// DetectCreator returns the best available default for provenance.created_by.
// Checks in order: MNEMO_AGENT_NAME env, MNEMO_OPERATOR env, git config
// user.name, "unknown". The git config lookup is cached after first call.
func DetectCreator() string {
	once.Do(func() {
		cachedName = detectCreatorUncached()
	})
	return cachedName
}

// detectCreatorUncached performs detection without caching, for tests that
// need to exercise a fresh environment each time.
func detectCreatorUncached() string {
	if name := os.Getenv("MNEMO_AGENT_NAME"); name != "" {
		return name
	}
	if name := os.Getenv("MNEMO_OPERATOR"); name != "" {
		return name
	}
	if name := gitUserName(); name != "" {
		return name
	}
	return "unknown"
}

// gitUserName runs `git config --get user.name` and returns the trimmed
// result, or "" on any error.
func gitUserName() string {
	out, err := exec.Command("git", "config", "--get", "user.name").Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}
