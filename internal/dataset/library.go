package dataset

import (
	"fmt"
	"path/filepath"
	"sort"
)

// The six source files expected under the data directory.
const (
	questionsFile    = "Questions.csv"
	choicesFile      = "Question_Choices.csv"
	questionKCsFile  = "Question_KC_Relationships.csv"
	transactionsFile = "Transaction.csv"
	kcsFile          = "KCs.csv"
	kcRelationsFile  = "KC_Relationships.csv"
)

// NoDescription is returned for components the dataset does not describe.
const NoDescription = "No description available."

// Choice is one answer option of a multiple-choice question.
type Choice struct {
	ID         string
	QuestionID string
	Text       string
	Correct    bool
}

// Interaction is one student attempt on one question, replicated per
// knowledge component the question touches. Optional behavioral fields keep
// their raw CSV text; blank means the signal was not recorded.
type Interaction struct {
	StudentID    string
	QuestionID   string
	QuestionText string
	KCName       string
	Correct      bool
	StartTime    string

	AnswerChoiceID      string
	AnswerText          string
	Difficulty          string
	PerceivedDifficulty string
	Confidence          string
	HintUsed            string
	AnswerChanges       string
	Duration            string

	// OtherKCs lists the components this attempt touched besides KCName.
	OtherKCs []string
}

// Library is the joined, in-memory view of the learning-record dataset.
type Library struct {
	byStudent     map[string][]Interaction
	students      []string
	questionText  map[string]string
	choicesByQ    map[string][]Choice
	questionsByKC map[string][]string
	kcDescription map[string]string
	prerequisites map[string][]string
}

// Load reads the six CSVs under dir and joins them: transactions gain their
// question text, then fan out into one interaction per related knowledge
// component. Transactions whose question maps to no component are dropped.
func Load(dir string) (*Library, error) {
	questions, err := LoadCSV(filepath.Join(dir, questionsFile))
	if err != nil {
		return nil, err
	}
	choices, err := LoadCSV(filepath.Join(dir, choicesFile))
	if err != nil {
		return nil, err
	}
	questionKCs, err := LoadCSV(filepath.Join(dir, questionKCsFile))
	if err != nil {
		return nil, err
	}
	transactions, err := LoadCSV(filepath.Join(dir, transactionsFile))
	if err != nil {
		return nil, err
	}
	kcs, err := LoadCSV(filepath.Join(dir, kcsFile))
	if err != nil {
		return nil, err
	}
	kcRelations, err := LoadCSV(filepath.Join(dir, kcRelationsFile))
	if err != nil {
		return nil, err
	}

	lib := &Library{
		byStudent:     make(map[string][]Interaction),
		questionText:  make(map[string]string, len(questions)),
		choicesByQ:    make(map[string][]Choice),
		questionsByKC: make(map[string][]string),
		kcDescription: make(map[string]string, len(kcs)),
		prerequisites: make(map[string][]string),
	}

	for _, q := range questions {
		lib.questionText[q["id"]] = q["question_text"]
	}

	for _, c := range choices {
		qid := c["question_id"]
		lib.choicesByQ[qid] = append(lib.choicesByQ[qid], Choice{
			ID:         c["id"],
			QuestionID: qid,
			Text:       c["choice_text"],
			Correct:    isTruthy(c["is_correct"]),
		})
	}

	kcName := make(map[string]string, len(kcs))
	for _, kc := range kcs {
		kcName[kc["id"]] = kc["name"]
		lib.kcDescription[kc["name"]] = kc["description"]
	}

	kcsByQuestion := make(map[string][]string)
	for _, rel := range questionKCs {
		name, ok := kcName[rel["knowledgecomponent_id"]]
		if !ok {
			continue
		}
		qid := rel["question_id"]
		kcsByQuestion[qid] = append(kcsByQuestion[qid], name)
		lib.questionsByKC[name] = append(lib.questionsByKC[name], qid)
	}

	for _, rel := range kcRelations {
		from, okFrom := kcName[rel["from_knowledgecomponent_id"]]
		to, okTo := kcName[rel["to_knowledgecomponent_id"]]
		if !okFrom || !okTo {
			continue
		}
		lib.prerequisites[to] = append(lib.prerequisites[to], from)
	}

	for _, tx := range transactions {
		qid := tx["question_id"]
		names := kcsByQuestion[qid]
		if len(names) == 0 {
			continue
		}
		sid := tx["student_id"]
		for _, name := range names {
			others := make([]string, 0, len(names)-1)
			for _, other := range names {
				if other != name {
					others = append(others, other)
				}
			}
			lib.byStudent[sid] = append(lib.byStudent[sid], Interaction{
				StudentID:           sid,
				QuestionID:          qid,
				QuestionText:        lib.questionText[qid],
				KCName:              name,
				Correct:             tx["answer_state"] == "1",
				StartTime:           tx["start_time"],
				AnswerChoiceID:      tx["answer_choice_id"],
				AnswerText:          tx["answer_text"],
				Difficulty:          tx["difficulty"],
				PerceivedDifficulty: tx["difficulty_feedback"],
				Confidence:          tx["trust_feedback"],
				HintUsed:            tx["hint_used"],
				AnswerChanges:       tx["selection_change"],
				Duration:            tx["duration"],
				OtherKCs:            others,
			})
		}
	}

	for sid, records := range lib.byStudent {
		sort.SliceStable(records, func(i, j int) bool {
			return records[i].StartTime < records[j].StartTime
		})
		lib.students = append(lib.students, sid)
	}
	sort.Strings(lib.students)

	if len(lib.byStudent) == 0 {
		return nil, fmt.Errorf("dataset: no usable interactions in %s", dir)
	}
	return lib, nil
}

func isTruthy(v string) bool {
	switch v {
	case "1", "true", "True", "TRUE", "t", "T":
		return true
	}
	return false
}

// Students returns every student ID present in the dataset, sorted.
func (l *Library) Students() []string {
	return l.students
}

// Records returns a student's interactions ordered by start time.
func (l *Library) Records(studentID string) []Interaction {
	return l.byStudent[studentID]
}

// PracticedKCs returns the distinct components in the given records, in
// first-encounter order.
func PracticedKCs(records []Interaction) []string {
	seen := make(map[string]bool)
	var kcs []string
	for _, r := range records {
		if !seen[r.KCName] {
			seen[r.KCName] = true
			kcs = append(kcs, r.KCName)
		}
	}
	return kcs
}

// Trajectory filters records down to one component, ordered by start time.
func Trajectory(records []Interaction, kcName string) []Interaction {
	var out []Interaction
	for _, r := range records {
		if r.KCName == kcName {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartTime < out[j].StartTime
	})
	return out
}

// KCDescription returns the component's description, or a placeholder when
// the dataset has none.
func (l *Library) KCDescription(kcName string) string {
	if desc := l.kcDescription[kcName]; desc != "" {
		return desc
	}
	return NoDescription
}

// Prerequisites returns the components that feed into kcName.
func (l *Library) Prerequisites(kcName string) []string {
	return l.prerequisites[kcName]
}

// ChoicesFor returns the answer options of a question in file order.
func (l *Library) ChoicesFor(questionID string) []Choice {
	return l.choicesByQ[questionID]
}

// QuestionsForKC returns the IDs of every question touching the component.
func (l *Library) QuestionsForKC(kcName string) []string {
	return l.questionsByKC[kcName]
}

// QuestionText returns the prompt text of a question, blank if unknown.
func (l *Library) QuestionText(questionID string) string {
	return l.questionText[questionID]
}
