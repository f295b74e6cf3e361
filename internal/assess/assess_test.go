package assess

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manabi-dev/manabi/internal/dataset"
	"github.com/manabi-dev/manabi/internal/task"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func fixtureLibrary(t *testing.T) *dataset.Library {
	t.Helper()
	dir := t.TempDir()

	writeFile(t, dir, "Questions.csv",
		"id,question_text\nq1,What is 1/2 + 1/4?\nq2,Write 0.75 as a fraction\n")
	writeFile(t, dir, "Question_Choices.csv",
		"id,question_id,choice_text,is_correct\nc1,q1,3/4,1\nc2,q1,2/6,0\n")
	writeFile(t, dir, "Question_KC_Relationships.csv",
		"question_id,knowledgecomponent_id\nq1,kc1\nq2,kc1\nq2,kc2\n")
	writeFile(t, dir, "Transaction.csv",
		"id,student_id,question_id,answer_state,start_time,answer_choice_id,answer_text,difficulty,difficulty_feedback,trust_feedback,hint_used,selection_change,duration\n"+
			"t1,s1,q1,1,2024-01-01T09:00:00,c1,,2,1,3,0,0,45.0\n"+
			"t2,s1,q2,0,2024-01-02T10:00:00,,my answer,3,,1,1,3,150.0\n")
	writeFile(t, dir, "KCs.csv",
		"id,name,description\nkc1,Fractions,Adding and comparing fractions\nkc2,Decimals,\n")
	writeFile(t, dir, "KC_Relationships.csv",
		"from_knowledgecomponent_id,to_knowledgecomponent_id\nkc1,kc2\n")

	lib, err := dataset.Load(dir)
	require.NoError(t, err)
	return lib
}

func TestBuildPrompt_FullMode(t *testing.T) {
	lib := fixtureLibrary(t)
	trajectory := dataset.Trajectory(lib.Records("s1"), "Fractions")
	require.Len(t, trajectory, 2)

	system, user := BuildPrompt("s1", "Fractions", lib.KCDescription("Fractions"),
		trajectory, lib, nil, ModeFull)

	assert.Contains(t, system, "educational assessment expert")

	assert.Contains(t, user, "Student ID: s1")
	assert.Contains(t, user, "Knowledge Component: 'Fractions'")
	assert.Contains(t, user, "Description: Adding and comparing fractions")
	assert.Contains(t, user, "Total questions answered: 2")

	// Choices rendered with the correct answer and the student's pick.
	assert.Contains(t, user, "3/4 [Correct Answer] ← [Student's Choice]")
	assert.Contains(t, user, "✓ Correct")
	assert.Contains(t, user, "✗ Incorrect")

	// Behavioral fields present in full mode.
	assert.Contains(t, user, "Question Difficulty: Medium (Level 2)")
	assert.Contains(t, user, "Confidence Level: High confidence (3/3)")
	assert.Contains(t, user, "Answer Changes: 3 (significant hesitation)")
	assert.Contains(t, user, "Time Spent: 150.0 seconds (took longer time)")
	assert.Contains(t, user, "Other KCs in this question: Decimals")
	assert.Contains(t, user, "Student's Answer Text: my answer")

	assert.Contains(t, user, "Choose ONE mastery level from: [Novice, Developing, Proficient, Mastered]")
	assert.Contains(t, user, "Mastery Level: <Your chosen level>")
}

func TestBuildPrompt_MinimalModeOmitsBehavioralFields(t *testing.T) {
	lib := fixtureLibrary(t)
	trajectory := dataset.Trajectory(lib.Records("s1"), "Fractions")

	_, user := BuildPrompt("s1", "Fractions", "", trajectory, lib, nil, ModeMinimal)

	assert.Contains(t, user, "✓ Correct")
	assert.NotContains(t, user, "Question Difficulty")
	assert.NotContains(t, user, "Confidence Level")
	assert.NotContains(t, user, "Used Hint")
	assert.NotContains(t, user, "Time Spent")
	assert.NotContains(t, user, "Description:")
}

func TestBuildPrompt_EmptyTrajectory(t *testing.T) {
	lib := fixtureLibrary(t)
	_, user := BuildPrompt("s9", "Fractions", "", nil, lib, nil, ModeFull)
	assert.Contains(t, user, "No exam records found for this knowledge component.")
}

func TestParse(t *testing.T) {
	t.Run("well formed", func(t *testing.T) {
		got := Parse("Mastery Level: Proficient\n\nRationale: Solid work on q1.\nMore detail here.\n\nSuggestions: Practice harder items.")
		assert.Equal(t, "Proficient", got.MasteryLevel)
		assert.Contains(t, got.Rationale, "Solid work on q1.")
		assert.Contains(t, got.Rationale, "More detail here.")
		assert.Equal(t, "Practice harder items.", got.Suggestions)
	})

	t.Run("missing fields stay unparsed", func(t *testing.T) {
		got := Parse("Mastery Level: Novice")
		assert.Equal(t, "Novice", got.MasteryLevel)
		assert.Equal(t, Unparsed, got.Rationale)
		assert.Equal(t, Unparsed, got.Suggestions)
	})

	t.Run("free text never fails", func(t *testing.T) {
		got := Parse("The student seems fine overall.")
		assert.Equal(t, Unparsed, got.MasteryLevel)
	})

	t.Run("empty input", func(t *testing.T) {
		got := Parse("")
		assert.Equal(t, Unparsed, got.MasteryLevel)
		assert.Equal(t, Unparsed, got.Rationale)
		assert.Equal(t, Unparsed, got.Suggestions)
	})
}

func TestBuilder_EntitiesAndPayload(t *testing.T) {
	lib := fixtureLibrary(t)
	b, err := NewBuilder(lib, ModeFull, "test-model")
	require.NoError(t, err)

	entities := b.Entities(nil)
	require.Len(t, entities, 1)
	assert.Equal(t, "s1", entities[0].StudentID)
	assert.ElementsMatch(t, []string{"Fractions", "Decimals"}, entities[0].KCNames)

	payload, err := b.Payload("s1", "Fractions")
	require.NoError(t, err)
	assert.Equal(t, "test-model", payload.Model)
	assert.Contains(t, payload.UserPrompt, "Knowledge Component: 'Fractions'")

	_, err = b.Payload("s1", "NoSuchComponent")
	assert.ErrorIs(t, err, task.ErrSkip)

	_, err = NewBuilder(lib, Mode("bogus"), "m")
	assert.Error(t, err)
}

func TestProcess(t *testing.T) {
	tk := task.Task{Key: task.Key{StudentID: "s1", KCName: "Fractions"}}
	rec := Process(tk, "Mastery Level: Mastered\nRationale: Flawless.\nSuggestions: None.")
	assert.Equal(t, tk.Key, rec.Key)
	assert.Equal(t, "Mastered", rec.Outcome)
	assert.Equal(t, "Flawless.", rec.Detail)
	assert.Equal(t, "None.", rec.Extra)
	assert.Contains(t, rec.RawResponse, "Mastery Level: Mastered")
}
