package github

import (
	"regexp"
	"strings"
)

var (
	ownerPattern    = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]*[a-zA-Z0-9])?$`)
	repoNamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)
)

// IsValidOwner reports whether s is a syntactically valid user or
// organization login.
func IsValidOwner(s string) bool {
	return len(s) <= 39 && ownerPattern.MatchString(s)
}

// IsValidRepoName reports whether s is a syntactically valid repository
// name. "." and ".." are reserved.
func IsValidRepoName(s string) bool {
	if s == "." || s == ".." || len(s) > 100 {
		return false
	}
	return repoNamePattern.MatchString(s)
}

// IsValidRepository reports whether owner and repo are both valid.
func IsValidRepository(owner, repo string) bool {
	return IsValidOwner(owner) && IsValidRepoName(repo)
}

// SplitFullName splits "owner/repo" at the first slash.
func SplitFullName(full string) (owner, repo string, ok bool) {
	owner, repo, ok = strings.Cut(full, "/")
	if !ok || owner == "" || repo == "" {
		return "", "", false
	}
	return owner, repo, true
}
