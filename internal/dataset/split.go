package dataset

import (
	"math"
	"math/rand"
)

// splitSeed keeps every run of every pipeline carving identical train/test
// partitions, so assessments never see held-out questions.
const splitSeed = 42

// Split partitions a student's records into train and test sets with a
// deterministic shuffle. Students with ten or fewer records are too small to
// hold anything out: everything is train and test is empty. Otherwise one
// tenth (rounded up) is held out.
func Split(records []Interaction) (train, test []Interaction) {
	if len(records) <= 10 {
		return records, nil
	}

	shuffled := make([]Interaction, len(records))
	copy(shuffled, records)
	rng := rand.New(rand.NewSource(splitSeed))
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	nTest := int(math.Ceil(float64(len(shuffled)) * 0.1))
	return shuffled[nTest:], shuffled[:nTest]
}

// TestQuestionIDs collects the distinct question IDs of the held-out set, the
// pool that tutoring examples must never draw from.
func TestQuestionIDs(test []Interaction) map[string]bool {
	ids := make(map[string]bool, len(test))
	for _, r := range test {
		ids[r.QuestionID] = true
	}
	return ids
}
