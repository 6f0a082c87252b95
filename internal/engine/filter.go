package engine

import (
	"path"
	"strings"

	"codeownerscan/internal/config"
	"codeownerscan/internal/models"
)

// FilterTargets applies the include/exclude patterns, then the limit.
func FilterTargets(targets []models.RepositoryTarget, in config.Input) []models.RepositoryTarget {
	var filtered []models.RepositoryTarget

	for _, t := range targets {
		fullName := t.RepoName
		repoName := fullName
		if i := strings.LastIndex(fullName, "/"); i >= 0 {
			repoName = fullName[i+1:]
		}

		// If Include is set, must match at least one
		if len(in.Include) > 0 && !matchesAnyPattern(in.Include, fullName, repoName) {
			continue
		}

		// If Exclude is set, must not match any
		if len(in.Exclude) > 0 && matchesAnyPattern(in.Exclude, fullName, repoName) {
			continue
		}

		filtered = append(filtered, t)
	}

	if in.Limit > 0 && len(filtered) > in.Limit {
		filtered = filtered[:in.Limit]
	}

	return filtered
}

func matchesAnyPattern(patterns []string, fullName, repoName string) bool {
	for _, p := range patterns {
		if matchPattern(p, fullName, repoName) {
			return true
		}
	}
	return false
}

func matchPattern(pattern, fullName, repoName string) bool {
	pattern = strings.ToLower(strings.TrimSpace(pattern))
	if pattern == "" {
		return false
	}
	// A pattern with an owner component (contains '/') matches the full name;
	// otherwise it matches the repository name so "*-service" works across owners.
	if strings.Contains(pattern, "/") {
		matched, _ := path.Match(pattern, fullName)
		return matched
	}
	matched, _ := path.Match(pattern, repoName)
	return matched
}
