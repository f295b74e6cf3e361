package tutor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manabi-dev/manabi/internal/checkpoint"
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
		"id,question_text\nq1,What is 1/2 + 1/4?\nq2,Write 0.75 as a fraction\nq3,Order these decimals\n")
	writeFile(t, dir, "Question_Choices.csv",
		"id,question_id,choice_text,is_correct\nc1,q1,3/4,1\nc2,q1,2/6,0\nc3,q2,3/4,1\n")
	writeFile(t, dir, "Question_KC_Relationships.csv",
		"question_id,knowledgecomponent_id\nq1,kc1\nq2,kc1\nq3,kc2\n")
	writeFile(t, dir, "Transaction.csv",
		"id,student_id,question_id,answer_state,start_time,answer_choice_id,answer_text,difficulty,difficulty_feedback,trust_feedback,hint_used,selection_change,duration\n"+
			"t1,s1,q1,0,2024-01-01T09:00:00,c2,,,,,,,\n"+
			"t2,s1,q1,0,2024-01-02T09:00:00,c2,,,,,,,\n"+
			"t3,s1,q3,0,2024-01-03T09:00:00,,,,,,,,\n"+
			"t4,s1,q2,1,2024-01-04T09:00:00,c3,,,,,,,\n")
	writeFile(t, dir, "KCs.csv",
		"id,name,description\nkc1,Fractions,Adding and comparing fractions\nkc2,Decimals,\n")
	writeFile(t, dir, "KC_Relationships.csv",
		"from_knowledgecomponent_id,to_knowledgecomponent_id\n")

	lib, err := dataset.Load(dir)
	require.NoError(t, err)
	return lib
}

func TestSelectExamples(t *testing.T) {
	lib := fixtureLibrary(t)

	examples := SelectExamples(lib, "s1", "Fractions", nil)
	require.Len(t, examples, 2, "only two questions touch Fractions")

	again := SelectExamples(lib, "s1", "Fractions", nil)
	assert.Equal(t, examples, again, "selection is deterministic per student and component")

	byID := map[string]Example{}
	for _, ex := range examples {
		byID[ex.QuestionID] = ex
	}
	q1 := byID["q1"]
	require.Len(t, q1.Choices, 2)
	assert.Equal(t, "A", q1.Choices[0].Letter)
	assert.Equal(t, "A", q1.CorrectLetter, "3/4 is the first, correct choice")

	t.Run("held-out questions are excluded", func(t *testing.T) {
		examples := SelectExamples(lib, "s1", "Fractions", map[string]bool{"q1": true})
		require.Len(t, examples, 1)
		assert.Equal(t, "q2", examples[0].QuestionID)
	})

	t.Run("empty pool", func(t *testing.T) {
		examples := SelectExamples(lib, "s1", "Fractions", map[string]bool{"q1": true, "q2": true})
		assert.Empty(t, examples)
	})
}

func TestBuildPrompt(t *testing.T) {
	lib := fixtureLibrary(t)
	examples := SelectExamples(lib, "s1", "Fractions", nil)

	system, user := BuildPrompt("s1", "Fractions", "Adding and comparing fractions", examples)

	assert.Contains(t, system, "experienced tutoring teacher")
	assert.Contains(t, system, "Concept Explanation:")

	assert.Contains(t, user, "Student ID: s1")
	assert.Contains(t, user, "Concept: Fractions")
	assert.Contains(t, user, "Concept Description: Adding and comparing fractions")
	assert.Contains(t, user, "Practice Examples:")
	assert.Contains(t, user, "(Question ID: q1):")
	assert.Contains(t, user, "A. 3/4")
	assert.Contains(t, user, "Correct Answer: A")
}

func TestExtractSection(t *testing.T) {
	t.Run("labeled section", func(t *testing.T) {
		resp := "Concept: Fractions\nHalves and quarters.\n\nConcept: Decimals\nTenths."
		got := ExtractSection(resp, "Fractions")
		assert.Equal(t, "Concept: Fractions\nHalves and quarters.", got)
	})

	t.Run("markdown bold header", func(t *testing.T) {
		resp := "Concept: **Fractions**\nHalves and quarters."
		got := ExtractSection(resp, "Fractions")
		assert.Equal(t, "Concept: Fractions\nHalves and quarters.", got)
	})

	t.Run("fuzzy name match", func(t *testing.T) {
		resp := "Concept: Basic Fractions and Ratios\nHalves and quarters."
		got := ExtractSection(resp, "Fractions")
		assert.Contains(t, got, "Concept: Fractions")
		assert.Contains(t, got, "Halves and quarters.")
	})

	t.Run("unlabeled reply returned whole", func(t *testing.T) {
		resp := "Concept Explanation:\nA fraction names part of a whole."
		assert.Equal(t, resp, ExtractSection(resp, "Fractions"))
	})

	t.Run("empty reply", func(t *testing.T) {
		assert.Empty(t, ExtractSection("  \n", "Fractions"))
	})
}

func TestLoadMastery(t *testing.T) {
	store, err := checkpoint.NewCSVStore(filepath.Join(t.TempDir(), "mastery.csv"))
	require.NoError(t, err)

	key := func(sid, kc string) task.Key { return task.Key{StudentID: sid, KCName: kc} }
	require.NoError(t, store.Append([]checkpoint.ResultRecord{
		{Key: key("s1", "Fractions"), Outcome: " **Novice** ", RawResponse: "x"},
		{Key: key("s1", "Decimals"), Outcome: "Mastered", RawResponse: "x"},
		{Key: key("s2", "Fractions"), Outcome: "ERROR", RawResponse: checkpoint.FailureMarker + "boom"},
	}))
	// A later record supersedes the first.
	require.NoError(t, store.Append([]checkpoint.ResultRecord{
		{Key: key("s1", "Decimals"), Outcome: "Developing", RawResponse: "x"},
	}))

	lookup, err := LoadMastery(store)
	require.NoError(t, err)
	assert.Equal(t, "Novice", lookup["s1"]["Fractions"], "markdown markers stripped")
	assert.Equal(t, "Developing", lookup["s1"]["Decimals"], "last record wins")
	assert.NotContains(t, lookup, "s2", "failed records carry no level")
}

func TestBuilder_WeakKCs(t *testing.T) {
	lib := fixtureLibrary(t)

	t.Run("mastery levels win", func(t *testing.T) {
		mastery := MasteryLookup{"s1": {"Fractions": "Novice", "Decimals": "Mastered"}}
		b := NewBuilder(lib, mastery, "m")
		train, _ := dataset.Split(lib.Records("s1"))
		assert.Equal(t, []string{"Fractions"}, b.WeakKCs("s1", train))
	})

	t.Run("wrong-answer fallback ordered by frequency", func(t *testing.T) {
		b := NewBuilder(lib, nil, "m")
		train, _ := dataset.Split(lib.Records("s1"))
		// Two wrong answers on Fractions (q1 twice), one on Decimals (q3).
		assert.Equal(t, []string{"Fractions", "Decimals"}, b.WeakKCs("s1", train))
	})

	t.Run("no weak mastery falls back", func(t *testing.T) {
		mastery := MasteryLookup{"s1": {"Fractions": "Mastered"}}
		b := NewBuilder(lib, mastery, "m")
		train, _ := dataset.Split(lib.Records("s1"))
		assert.NotEmpty(t, b.WeakKCs("s1", train))
	})
}

func TestBuilder_EntitiesAndPayload(t *testing.T) {
	lib := fixtureLibrary(t)
	mastery := MasteryLookup{"s1": {"Fractions": "Developing", "Decimals": "Novice"}}
	b := NewBuilder(lib, mastery, "tutor-model")

	entities := b.Entities(nil)
	require.Len(t, entities, 1)
	assert.Equal(t, "s1", entities[0].StudentID)
	assert.Equal(t, []string{"Decimals", "Fractions"}, entities[0].KCNames)

	payload, err := b.Payload("s1", "Fractions")
	require.NoError(t, err)
	assert.Equal(t, "tutor-model", payload.Model)
	assert.Contains(t, payload.UserPrompt, "Concept: Fractions")

	_, err = b.Payload("s1", "NoSuchComponent")
	assert.ErrorIs(t, err, task.ErrSkip)
}

func TestProcess(t *testing.T) {
	tk := task.Task{
		Key: task.Key{StudentID: "s1", KCName: "Fractions"},
		Payload: task.Payload{
			UserPrompt: "Student ID: s1\nConcept: Fractions\n\nPractice Examples:\n\nExample 1 (Question ID: q1):\ntext\n\nExample 2 (Question ID: q2):\ntext",
		},
	}

	rec := Process(tk, "Concept Explanation:\nA fraction names part of a whole.")
	assert.Equal(t, tk.Key, rec.Key)
	assert.Contains(t, rec.Outcome, "part of a whole")
	assert.Equal(t, `["q1","q2"]`, rec.Extra)
	assert.NotEmpty(t, rec.RawResponse)
}
