package tutor

import (
	"regexp"
	"strings"
)

// ExtractSection pulls the tutoring content for one component out of a
// reply. Models sometimes wrap their answer in "Concept: <name>" headers
// (with or without Markdown bold); when a matching section exists it is
// returned normalized under a clean header, otherwise the trimmed reply is
// returned whole.
func ExtractSection(response, kcName string) string {
	response = strings.TrimSpace(response)
	if response == "" {
		return ""
	}

	pattern := regexp.MustCompile(`(?is)Concept:\s*\**\s*` + regexp.QuoteMeta(kcName) + `\s*\**(.*?)(?:Concept:|\z)`)
	if m := pattern.FindStringSubmatch(response); m != nil {
		if content := strings.TrimSpace(m[1]); content != "" {
			return "Concept: " + kcName + "\n" + content
		}
	}

	// Fuzzy fallback: a section whose first line overlaps the component name.
	sections := strings.Split(response, "Concept:")
	for _, section := range sections[1:] {
		section = strings.TrimSpace(section)
		if section == "" {
			continue
		}
		firstLine, rest, _ := strings.Cut(section, "\n")
		firstLine = strings.TrimSpace(strings.Trim(strings.TrimSpace(firstLine), "*"))
		if nameOverlaps(firstLine, kcName) {
			return "Concept: " + kcName + "\n" + strings.TrimSpace(rest)
		}
	}

	return response
}

func nameOverlaps(a, b string) bool {
	la, lb := strings.ToLower(a), strings.ToLower(b)
	return la != "" && lb != "" && (strings.Contains(la, lb) || strings.Contains(lb, la))
}
