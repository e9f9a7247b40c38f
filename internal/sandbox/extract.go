package sandbox

import (
	"errors"
	"regexp"
	"strings"
)

// Response delimiters. Each must appear alone on its line.
const (
	StartSentinel = "__CLAUDE_RESPONSE_START__"
	EndSentinel   = "__CLAUDE_RESPONSE_END__"
)

// ErrNoResponse is returned when the output holds no usable answer.
var ErrNoResponse = errors.New("no response in sandbox output")

// ExtractMode records which rule produced an answer.
type ExtractMode string

const (
	// ModeSentinel is the normal path: text between the delimiters.
	ModeSentinel ExtractMode = "sentinel"
	// ModeToolMarker takes the text after the last tool invocation line.
	ModeToolMarker ExtractMode = "tool_marker"
	// ModeWholeOutput is used when the output has neither delimiters nor
	// tool invocation lines.
	ModeWholeOutput ExtractMode = "whole_output"
)

// Degraded reports whether the answer came from a fallback rule.
func (m ExtractMode) Degraded() bool {
	return m != ModeSentinel
}

// Extraction is the answer found in a sandbox output stream.
type Extraction struct {
	Text string
	Mode ExtractMode
}

// toolMarker matches the lines the CLI prints when it invokes a tool.
var toolMarker = regexp.MustCompile(`^\s*(?:(?:⏺|●)\s*[A-Z][A-Za-z]*\(|\[Tool:\s*\w+|Tool (?:use|call):\s*\w+)`)

// DirectiveSuffix is appended to every instruction so the CLI delimits
// its final answer.
const DirectiveSuffix = "\n\nWhen you are done, print your final answer between a line containing only " +
	StartSentinel + " and a line containing only " + EndSentinel + "."

// WithDirective appends DirectiveSuffix unless instruction already ends
// with it.
func WithDirective(instruction string) string {
	if strings.HasSuffix(instruction, DirectiveSuffix) {
		return instruction
	}
	return strings.TrimRight(instruction, "\n") + DirectiveSuffix
}

// Extract finds the final answer in output. Delimited text always wins
// when a complete start/end pair is present; the last pair is used.
// Delimiters with nothing between them are a failure, not a fallback.
func Extract(output string) (Extraction, error) {
	lines := strings.Split(strings.ReplaceAll(output, "\r\n", "\n"), "\n")

	if body, found := lastDelimited(lines); found {
		if text := joinNonBlank(body); text != "" {
			return Extraction{Text: text, Mode: ModeSentinel}, nil
		}
		return Extraction{}, ErrNoResponse
	}

	lastTool := -1
	for i, line := range lines {
		if toolMarker.MatchString(line) {
			lastTool = i
		}
	}
	if lastTool >= 0 {
		if text := joinNonBlank(lines[lastTool+1:]); text != "" {
			return Extraction{Text: text, Mode: ModeToolMarker}, nil
		}
		return Extraction{}, ErrNoResponse
	}

	if text := joinNonBlank(lines); text != "" {
		return Extraction{Text: text, Mode: ModeWholeOutput}, nil
	}
	return Extraction{}, ErrNoResponse
}

func lastDelimited(lines []string) ([]string, bool) {
	end := -1
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.TrimSpace(lines[i]) == EndSentinel {
			end = i
			break
		}
	}
	if end < 0 {
		return nil, false
	}
	for i := end - 1; i >= 0; i-- {
		if strings.TrimSpace(lines[i]) == StartSentinel {
			return lines[i+1 : end], true
		}
	}
	return nil, false
}

func joinNonBlank(lines []string) string {
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		kept = append(kept, strings.TrimRight(line, " \t"))
	}
	return strings.Join(kept, "\n")
}
