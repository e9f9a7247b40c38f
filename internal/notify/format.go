package notify

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/alekspetrov/claudehub/internal/dispatch"
)

// Preview limits for embedded text.
const (
	CommandPreviewChars  = 100
	ResponsePreviewChars = 500
	StackPreviewLines    = 5
)

var operationNames = map[dispatch.TaskType]string{
	dispatch.TaskIssueComment:       "Issue Comment",
	dispatch.TaskPullRequestComment: "PR Comment",
	dispatch.TaskPRReview:           "PR Review",
	dispatch.TaskManualPRReview:     "Manual PR Review",
	dispatch.TaskAutoTag:            "Auto-Tagging",
	dispatch.TaskCheckSuite:         "Check Suite Review",
	dispatch.TaskSlashCommand:       "Slash Command",
}

// OperationName returns the display name of a task type.
func OperationName(t dispatch.TaskType) string {
	if name, ok := operationNames[t]; ok {
		return name
	}
	return string(t)
}

// FormatDuration renders d as "45s", "2m 5s" or "2h 2m". Seconds are
// dropped once hours are shown.
func FormatDuration(d time.Duration) string {
	secs := int64(d / time.Second)
	if secs < 0 {
		secs = 0
	}
	h, m, s := secs/3600, (secs%3600)/60, secs%60
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %dm", h, m)
	case m > 0:
		return fmt.Sprintf("%dm %ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}

// Truncate shortens s to at most n runes, marking the cut with "...".
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	if n <= 3 {
		return string([]rune(s)[:n])
	}
	return string([]rune(s)[:n-3]) + "..."
}

// FirstLines keeps the first n lines of s.
func FirstLines(s string, n int) string {
	lines := strings.SplitN(s, "\n", n+1)
	if len(lines) <= n {
		return s
	}
	return strings.Join(lines[:n], "\n") + "\n..."
}
