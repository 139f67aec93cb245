// Package envutil provides environment variable utilities.
package envutil

import (
	"sort"
	"strings"
)

// MinimalEnvironment returns a minimal safe environment.
func MinimalEnvironment() map[string]string {
	return map[string]string{
		"PATH":   "/usr/bin:/bin",
		"LANG":   "C.UTF-8",
		"LC_ALL": "C.UTF-8",
		"HOME":   "/tmp",
		"USER":   "nobody",
	}
}

// MergeEnvironment merges base environment with overrides.
// Overrides take precedence.
func MergeEnvironment(base, override map[string]string) map[string]string {
	result := make(map[string]string, len(base)+len(override))

	for k, v := range base {
		result[k] = v
	}

	for k, v := range override {
		result[k] = v
	}

	return result
}

// ToSlice converts an environment map to sorted KEY=value form, the shape a
// child's replacement environment takes.
func ToSlice(env map[string]string) []string {
	result := make([]string, 0, len(env))
	for k, v := range env {
		result = append(result, k+"="+v)
	}
	sort.Strings(result)
	return result
}

// ToMap converts KEY=value entries to a map. Later entries win; entries
// without '=' are skipped.
func ToMap(env []string) map[string]string {
	result := make(map[string]string, len(env))
	for _, kv := range env {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		result[k] = v
	}
	return result
}
