// Package tutor builds per-component tutoring requests for a student's weak
// knowledge components and extracts the generated content.
package tutor

import (
	"fmt"
	"hash/fnv"
	"math/rand"
	"strings"

	"github.com/manabi-dev/manabi/internal/dataset"
)

const systemPrompt = `You are an experienced tutoring teacher. Your task:
1. Explain the concept clearly - what it is and why it matters
2. For each example, show step-by-step solution AND explicitly connect it to the concept

Output format:
Concept Explanation:
[Clear explanation of the key ideas and their importance]

Example 1 (Question ID: X):
Solution: [Step-by-step process]
Connection: [How this example demonstrates the concept]

Example 2 (Question ID: Y):
Solution: [Step-by-step process]
Connection: [How this example demonstrates the concept]

Example 3 (Question ID: Z):
Solution: [Step-by-step process]
Connection: [How this example demonstrates the concept]`

const maxExamples = 3

const maxQuestionTextLen = 150

// Example is one worked question shown in a tutoring prompt.
type Example struct {
	QuestionID    string
	QuestionText  string
	Choices       []LetteredChoice
	CorrectLetter string
}

// LetteredChoice pairs an answer option with its display letter.
type LetteredChoice struct {
	Letter string
	Text   string
}

// SelectExamples picks up to three questions for the component, never
// drawing from the held-out question pool. The pick order is shuffled
// deterministically per (student, component) so manifests rebuild
// identically.
func SelectExamples(lib *dataset.Library, studentID, kcName string, excluded map[string]bool) []Example {
	var pool []string
	for _, qid := range lib.QuestionsForKC(kcName) {
		if !excluded[qid] {
			pool = append(pool, qid)
		}
	}
	if len(pool) == 0 {
		return nil
	}

	rng := rand.New(rand.NewSource(exampleSeed(studentID, kcName)))
	rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })

	var examples []Example
	for _, qid := range pool {
		if len(examples) >= maxExamples {
			break
		}
		ex := Example{
			QuestionID:   qid,
			QuestionText: truncate(lib.QuestionText(qid), maxQuestionTextLen),
		}
		for i, choice := range lib.ChoicesFor(qid) {
			letter := string(rune('A' + i))
			ex.Choices = append(ex.Choices, LetteredChoice{Letter: letter, Text: choice.Text})
			if choice.Correct {
				ex.CorrectLetter = letter
			}
		}
		examples = append(examples, ex)
	}
	return examples
}

func exampleSeed(studentID, kcName string) int64 {
	h := fnv.New64a()
	h.Write([]byte(studentID))
	h.Write([]byte{'/'})
	h.Write([]byte(kcName))
	return int64(h.Sum64())
}

// BuildPrompt renders the tutoring request for one weak component.
func BuildPrompt(studentID, kcName, kcDescription string, examples []Example) (string, string) {
	var b strings.Builder
	fmt.Fprintf(&b, "Student ID: %s\n", studentID)
	fmt.Fprintf(&b, "Concept: %s\n", kcName)

	if kcDescription != "" {
		fmt.Fprintf(&b, "\nConcept Description: %s\n", kcDescription)
	}

	b.WriteString("\nPractice Examples:\n")
	for i, ex := range examples {
		fmt.Fprintf(&b, "\nExample %d (Question ID: %s):\n", i+1, ex.QuestionID)
		fmt.Fprintf(&b, "%s\n", ex.QuestionText)
		for _, choice := range ex.Choices {
			fmt.Fprintf(&b, "%s. %s\n", choice.Letter, choice.Text)
		}
		if ex.CorrectLetter != "" {
			fmt.Fprintf(&b, "Correct Answer: %s\n", ex.CorrectLetter)
		}
	}

	return systemPrompt, strings.TrimRight(b.String(), "\n")
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if runes := []rune(s); len(runes) > max {
		return string(runes[:max]) + "..."
	}
	return s
}
