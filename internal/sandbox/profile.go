package sandbox

import (
	"strings"

	"github.com/alekspetrov/claudehub/internal/dispatch"
)

// Profile is the allow-list of tools granted to one sandbox run.
type Profile struct {
	Name         string
	ReadOnly     bool
	AllowedTools []string
}

// ToolList renders the allow-list for the ALLOWED_TOOLS variable.
func (p Profile) ToolList() string {
	return strings.Join(p.AllowedTools, ",")
}

var readOnlyTools = []string{"Read", "Grep", "Glob", "LS"}

var (
	// ProfileReadOnly is granted to task types without an explicit profile.
	ProfileReadOnly = Profile{
		Name:         "read-only",
		ReadOnly:     true,
		AllowedTools: readOnlyTools,
	}

	ProfileAutoTag = Profile{
		Name:     "auto-tag",
		ReadOnly: true,
		AllowedTools: append(append([]string{}, readOnlyTools...),
			"Bash(gh issue view:*)",
			"Bash(gh issue edit:*)",
			"Bash(gh label list:*)",
		),
	}

	ProfileReview = Profile{
		Name:     "review",
		ReadOnly: true,
		AllowedTools: append(append([]string{}, readOnlyTools...),
			"Bash(git diff:*)",
			"Bash(git log:*)",
			"Bash(git blame:*)",
			"Bash(git show:*)",
			"Bash(gh pr view:*)",
			"Bash(gh pr diff:*)",
		),
	}

	ProfileFull = Profile{
		Name: "full",
		AllowedTools: append(append([]string{}, readOnlyTools...),
			"Edit",
			"MultiEdit",
			"Write",
			"Bash",
			"WebFetch",
			"WebSearch",
		),
	}
)

// profiles is the allow-list table. Types missing here get ProfileReadOnly.
var profiles = map[dispatch.TaskType]Profile{
	dispatch.TaskAutoTag:            ProfileAutoTag,
	dispatch.TaskPRReview:           ProfileReview,
	dispatch.TaskManualPRReview:     ProfileReview,
	dispatch.TaskCheckSuite:         ProfileReview,
	dispatch.TaskIssueComment:       ProfileFull,
	dispatch.TaskPullRequestComment: ProfileFull,
	dispatch.TaskSlashCommand:       ProfileFull,
}

// ProfileFor returns the permission profile for a task type.
func ProfileFor(t dispatch.TaskType) Profile {
	if p, ok := profiles[t]; ok {
		return p
	}
	return ProfileReadOnly
}
