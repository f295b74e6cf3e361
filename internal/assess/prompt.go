// Package assess builds mastery-assessment requests from a student's exam
// history and parses the structured reply.
package assess

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/manabi-dev/manabi/internal/dataset"
)

// Mode selects how much evidence goes into each prompt.
type Mode string

const (
	// ModeFull includes the behavioral signals (difficulty, confidence,
	// hints, hesitation, timing) alongside the answer record.
	ModeFull Mode = "full"
	// ModeMinimal includes only the question, the answer, and the result.
	ModeMinimal Mode = "minimal"
)

// Valid reports whether m names a known mode.
func (m Mode) Valid() bool { return m == ModeFull || m == ModeMinimal }

const systemPrompt = `You are an experienced educational assessment expert. Your task is to evaluate a student's mastery level of a specific knowledge component based on their exam performance data.

Focus on analyzing:
- Overall performance patterns across all questions
- Performance consistency and stability
- Handling of questions with different difficulties
- Behavioral signals (confidence, hint usage, hesitation)
- Performance on questions involving multiple knowledge components`

const taskInstructions = `--- ASSESSMENT TASK ---

Based on the exam performance records above, evaluate the student's mastery level of this knowledge component.

Choose ONE mastery level from: [Novice, Developing, Proficient, Mastered]

Level Definitions:
- Novice: Limited understanding, frequent errors, low confidence
- Developing: Partial understanding, inconsistent performance, needs improvement
- Proficient: Solid understanding, mostly correct answers, occasional mistakes on complex questions
- Mastered: Comprehensive understanding, consistently correct, high confidence across all difficulty levels

Provide:
1. Your chosen mastery level
2. Detailed rationale citing specific question performances and behavioral patterns
3. Actionable suggestions for improvement (if applicable)

--- OUTPUT FORMAT ---
Please structure your response exactly as follows:

Mastery Level: <Your chosen level>

Rationale: <Detailed explanation with specific evidence from the exam records>

Suggestions: <Actionable recommendations for the student>
`

const maxQuestionTextLen = 150

var difficultyNames = map[string]string{
	"0": "Very Easy", "1": "Easy", "2": "Medium", "3": "Hard", "4": "Very Hard",
}

var perceivedNames = map[string]string{
	"0": "Very Easy", "1": "Easy", "2": "Medium", "3": "Hard",
}

var confidenceNames = map[string]string{
	"0": "No confidence", "1": "Low confidence", "2": "Medium confidence", "3": "High confidence",
}

// BuildPrompt renders the system and user prompt for one (student,
// component) assessment from the component's trajectory.
func BuildPrompt(studentID, kcName, kcDescription string, trajectory []dataset.Interaction, lib *dataset.Library, prerequisites []string, mode Mode) (string, string) {
	var b strings.Builder

	b.WriteString("--- ASSESSMENT CONTEXT ---\n")
	fmt.Fprintf(&b, "Student ID: %s\n", studentID)
	fmt.Fprintf(&b, "Knowledge Component: '%s'\n", kcName)
	if kcDescription != "" {
		fmt.Fprintf(&b, "Description: %s\n", kcDescription)
	}
	if len(prerequisites) > 0 {
		fmt.Fprintf(&b, "Prerequisite Components: %s\n", strings.Join(prerequisites, ", "))
	}

	fmt.Fprintf(&b, "\n--- EXAM PERFORMANCE RECORDS FOR '%s' ---\n", kcName)
	fmt.Fprintf(&b, "Total questions answered: %d\n\n", len(trajectory))

	if len(trajectory) == 0 {
		b.WriteString("No exam records found for this knowledge component.\n")
	}

	for i, rec := range trajectory {
		fmt.Fprintf(&b, "【Question %d】\n", i+1)
		fmt.Fprintf(&b, "  • Question ID: %s\n", rec.QuestionID)

		if text := truncate(rec.QuestionText, maxQuestionTextLen); text != "" {
			fmt.Fprintf(&b, "  • Question Content: %s\n", text)
		}

		if choices := lib.ChoicesFor(rec.QuestionID); len(choices) > 0 {
			b.WriteString("  • Answer Choices:\n")
			for _, choice := range choices {
				correctMark := ""
				if choice.Correct {
					correctMark = " [Correct Answer]"
				}
				chosenMark := ""
				if rec.AnswerChoiceID != "" && choice.ID == rec.AnswerChoiceID {
					chosenMark = " ← [Student's Choice]"
				}
				fmt.Fprintf(&b, "    - %s%s%s\n", strings.TrimSpace(choice.Text), correctMark, chosenMark)
			}
		}

		if answer := strings.TrimSpace(rec.AnswerText); answer != "" {
			fmt.Fprintf(&b, "  • Student's Answer Text: %s\n", answer)
		}

		if rec.Correct {
			b.WriteString("  • Result: ✓ Correct\n")
		} else {
			b.WriteString("  • Result: ✗ Incorrect\n")
		}

		if mode == ModeFull {
			writeBehavioralFields(&b, rec)
		}

		b.WriteString("\n")
	}

	b.WriteString(taskInstructions)
	return systemPrompt, b.String()
}

func writeBehavioralFields(b *strings.Builder, rec dataset.Interaction) {
	if rec.Difficulty != "" {
		name := difficultyNames[rec.Difficulty]
		if name == "" {
			name = "Unknown"
		}
		fmt.Fprintf(b, "  • Question Difficulty: %s (Level %s)\n", name, rec.Difficulty)
	}

	if rec.PerceivedDifficulty != "" {
		name := perceivedNames[rec.PerceivedDifficulty]
		if name == "" {
			name = "Unknown"
		}
		fmt.Fprintf(b, "  • Student's Perceived Difficulty: %s (Level %s)\n", name, rec.PerceivedDifficulty)
	}

	if rec.Confidence != "" {
		name := confidenceNames[rec.Confidence]
		if name == "" {
			name = "Unknown"
		}
		fmt.Fprintf(b, "  • Confidence Level: %s (%s/3)\n", name, rec.Confidence)
	}

	if rec.HintUsed != "" {
		used := "No"
		if rec.HintUsed == "1" || strings.EqualFold(rec.HintUsed, "true") {
			used = "Yes"
		}
		fmt.Fprintf(b, "  • Used Hint: %s\n", used)
	}

	if changes, err := strconv.Atoi(rec.AnswerChanges); err == nil && rec.AnswerChanges != "" {
		fmt.Fprintf(b, "  • Answer Changes: %d", changes)
		switch {
		case changes > 2:
			b.WriteString(" (significant hesitation)")
		case changes > 0:
			b.WriteString(" (some hesitation)")
		}
		b.WriteString("\n")
	}

	if seconds, err := strconv.ParseFloat(rec.Duration, 64); err == nil && seconds > 0 {
		fmt.Fprintf(b, "  • Time Spent: %.1f seconds", seconds)
		switch {
		case seconds > 120:
			b.WriteString(" (took longer time)")
		case seconds < 10:
			b.WriteString(" (answered quickly)")
		}
		b.WriteString("\n")
	}

	if len(rec.OtherKCs) > 0 {
		fmt.Fprintf(b, "  • Other KCs in this question: %s\n", strings.Join(rec.OtherKCs, ", "))
	}
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if runes := []rune(s); len(runes) > max {
		return string(runes[:max]) + "..."
	}
	return s
}
