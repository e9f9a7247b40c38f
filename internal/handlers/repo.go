package handlers

import (
	"regexp"
	"strings"

	"github.com/alekspetrov/claudehub/internal/adapters/github"
)

var repoPrefix = regexp.MustCompile(`^([\w.-]+)/([\w.-]+)(\s+(.*))?$`)

// Defaults is the repository used when free text names none. Repo may
// itself contain a slash ("owner/project"), in which case Owner may be
// empty.
type Defaults struct {
	Owner string `yaml:"owner"`
	Repo  string `yaml:"repo"`
}

// RepoRef is the repository target parsed from free text.
type RepoRef struct {
	Owner     string
	Repo      string
	Remaining string
	// Explicit is true when the text named the repository itself.
	Explicit bool
}

// FullName returns "owner/repo".
func (r RepoRef) FullName() string {
	return r.Owner + "/" + r.Repo
}

// Valid reports whether the owner and repository are well-formed.
func (r RepoRef) Valid() bool {
	return github.IsValidRepository(r.Owner, r.Repo)
}

// ParseRepositoryFromText splits a leading "owner/repo" from text. Text
// without one resolves to the defaults and is returned whole.
func ParseRepositoryFromText(text string, defaults Defaults) RepoRef {
	text = strings.TrimSpace(text)
	if m := repoPrefix.FindStringSubmatch(text); m != nil {
		return RepoRef{
			Owner:     m[1],
			Repo:      m[2],
			Remaining: strings.TrimSpace(m[4]),
			Explicit:  true,
		}
	}

	ref := RepoRef{Owner: defaults.Owner, Repo: defaults.Repo, Remaining: text}
	if owner, repo, ok := github.SplitFullName(defaults.Repo); ok {
		ref.Owner, ref.Repo = owner, repo
	}
	return ref
}
