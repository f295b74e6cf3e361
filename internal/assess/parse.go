package assess

import "strings"

// Unparsed marks a field the response did not provide.
const Unparsed = "N/A"

// Result holds the structured fields of an assessment reply.
type Result struct {
	MasteryLevel string
	Rationale    string
	Suggestions  string
}

// Parse extracts the structured fields from a raw reply. It never fails:
// missing fields come back as Unparsed, and lines that follow a recognized
// header are folded into that field until the next header.
func Parse(text string) Result {
	result := Result{
		MasteryLevel: Unparsed,
		Rationale:    Unparsed,
		Suggestions:  Unparsed,
	}

	current := (*string)(nil)
	for _, line := range strings.Split(strings.TrimSpace(text), "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "Mastery Level:"):
			result.MasteryLevel = valueOf(line)
			current = &result.MasteryLevel
		case strings.HasPrefix(line, "Rationale:"):
			result.Rationale = valueOf(line)
			current = &result.Rationale
		case strings.HasPrefix(line, "Suggestions:"):
			result.Suggestions = valueOf(line)
			current = &result.Suggestions
		case current != nil:
			*current += " " + line
		}
	}
	return result
}

func valueOf(line string) string {
	_, value, _ := strings.Cut(line, ":")
	return strings.TrimSpace(value)
}
