// Package review holds the review-comment domain types shared by the page
// controller, the LLM client and the HTTP surface.
package review

import (
	"regexp"
	"strings"
)

// ReviewComment is a single user-authored comment extracted from the page.
// It is re-read on every enhancement request and never persisted.
type ReviewComment struct {
	ID         string `json:"id"`
	Content    string `json:"content"`
	LineNumber int    `json:"line_number,omitempty"`
	FilePath   string `json:"file_path,omitempty"`
	IsResolved bool   `json:"is_resolved,omitempty"`
}

// Severity is the label the model attaches to a rewritten comment.
type Severity string

const (
	SeverityCritical   Severity = "Critical"
	SeverityImportant  Severity = "Important"
	SeveritySuggestion Severity = "Suggestion"
)

// EnhancedComment is the non-streaming result of an enhancement.
type EnhancedComment struct {
	ReviewComment
	ImprovedContent string   `json:"improved_content"`
	Pros            []string `json:"pros,omitempty"`
	Cons            []string `json:"cons,omitempty"`
	Suggestions     []string `json:"suggestions,omitempty"`
	Severity        Severity `json:"severity,omitempty"`
}

var severityPattern = regexp.MustCompile(`(?i)\b(critical|important|suggestion)\b`)

// ParseEnhanced splits collected model output into the improved text and any
// "Pros:", "Cons:" or "Suggestions:" bullet sections that follow it.
func ParseEnhanced(c ReviewComment, text string) EnhancedComment {
	out := EnhancedComment{ReviewComment: c}

	var improved []string
	var section *[]string
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		switch strings.ToLower(strings.TrimSuffix(trimmed, ":")) {
		case "pros":
			section = &out.Pros
			continue
		case "cons":
			section = &out.Cons
			continue
		case "suggestions":
			section = &out.Suggestions
			continue
		}

		if section != nil {
			item := strings.TrimSpace(strings.TrimLeft(trimmed, "-*•"))
			if item != "" {
				*section = append(*section, item)
			}
			continue
		}
		improved = append(improved, line)
	}

	out.ImprovedContent = strings.TrimSpace(strings.Join(improved, "\n"))
	out.Severity = detectSeverity(out.ImprovedContent)
	return out
}

// detectSeverity looks for the label in the trailing "(Severity: X)" or
// "[X]" tag; the last match wins since the tag closes the comment.
func detectSeverity(text string) Severity {
	matches := severityPattern.FindAllString(text, -1)
	if len(matches) == 0 {
		return ""
	}
	last := strings.ToLower(matches[len(matches)-1])
	switch last {
	case "critical":
		return SeverityCritical
	case "important":
		return SeverityImportant
	default:
		return SeveritySuggestion
	}
}
